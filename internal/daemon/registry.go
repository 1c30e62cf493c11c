package daemon

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/sahilm/fuzzy"
)

// Registry owns the running schedulers, keyed by instance name and kept in
// configuration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]*tts.Scheduler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*tts.Scheduler)}
}

// Add registers s under its instance name.
func (r *Registry) Add(s *tts.Scheduler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("instance %q already registered", name)
	}
	r.byName[name] = s
	r.order = append(r.order, name)
	return nil
}

// Remove unregisters the named instance and returns its scheduler, or nil.
// The scheduler is not stopped.
func (r *Registry) Remove(name string) *tts.Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[name]
	if !ok {
		return nil
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s
}

// Replace swaps the whole set for schedulers, in the given order.
func (r *Registry) Replace(schedulers []*tts.Scheduler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = make([]string, 0, len(schedulers))
	r.byName = make(map[string]*tts.Scheduler, len(schedulers))
	for _, s := range schedulers {
		r.order = append(r.order, s.Name())
		r.byName[s.Name()] = s
	}
}

// Get returns the named scheduler.
func (r *Registry) Get(name string) (*tts.Scheduler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// All returns the schedulers in configuration order.
func (r *Registry) All() []*tts.Scheduler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*tts.Scheduler, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Resolve picks the scheduler for a request. A non-empty instance must name
// a registered instance. Otherwise the first instance whose default target
// equals target wins, and failing that the first configured instance.
func (r *Registry) Resolve(instance, target string) (*tts.Scheduler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance = strings.TrimSpace(instance)
	if instance != "" {
		s, ok := r.byName[instance]
		if !ok {
			return nil, r.unknownLocked(instance)
		}
		return s, nil
	}

	if target = strings.TrimSpace(target); target != "" {
		for _, name := range r.order {
			if s := r.byName[name]; s.Config().Target == target {
				return s, nil
			}
		}
	}

	if len(r.order) == 0 {
		return nil, fmt.Errorf("%w: no instances configured", tts.ErrUnknownInstance)
	}
	return r.byName[r.order[0]], nil
}

// Unknown returns the error for a name that is not registered, suggesting
// the closest registered name when there is one.
func (r *Registry) Unknown(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unknownLocked(name)
}

func (r *Registry) unknownLocked(name string) error {
	if matches := fuzzy.Find(name, r.order); len(matches) > 0 {
		return fmt.Errorf("%w: %q (did you mean %q?)", tts.ErrUnknownInstance, name, matches[0].Str)
	}
	return fmt.Errorf("%w: %q", tts.ErrUnknownInstance, name)
}
