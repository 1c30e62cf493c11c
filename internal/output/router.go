package output

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// ErrUnknownTarget is returned for a target no backend serves.
var ErrUnknownTarget = errors.New("unknown target")

// Router dispatches each call to the backend serving its target. Named
// outputs (such as the local speaker) match by exact id; anything that looks
// like an entity id ("domain.object") goes to the remote backend.
type Router struct {
	mu     sync.RWMutex
	remote ttypes.Output
	named  map[string]ttypes.Output
}

// NewRouter creates a router. remote may be nil when no remote backend is
// configured.
func NewRouter(remote ttypes.Output) *Router {
	return &Router{remote: remote, named: make(map[string]ttypes.Output)}
}

// Register binds an exact target id to out.
func (r *Router) Register(name string, out ttypes.Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = out
}

// Serves reports whether some backend handles target.
func (r *Router) Serves(target string) bool {
	_, err := r.route(target)
	return err == nil
}

func (r *Router) route(target string) (ttypes.Output, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if out, ok := r.named[target]; ok {
		return out, nil
	}
	if r.remote != nil && strings.Contains(target, ".") {
		return r.remote, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
}

func (r *Router) Speak(ctx context.Context, req ttypes.SpeakRequest) error {
	out, err := r.route(req.Target)
	if err != nil {
		return err
	}
	return out.Speak(ctx, req)
}

func (r *Router) SetVolume(ctx context.Context, target string, level float64) error {
	out, err := r.route(target)
	if err != nil {
		return err
	}
	return out.SetVolume(ctx, target, level)
}

func (r *Router) StopPlayback(ctx context.Context, target string) error {
	out, err := r.route(target)
	if err != nil {
		return err
	}
	return out.StopPlayback(ctx, target)
}

func (r *Router) PlayMedia(ctx context.Context, target, mediaID string) error {
	out, err := r.route(target)
	if err != nil {
		return err
	}
	return out.PlayMedia(ctx, target, mediaID)
}

func (r *Router) ReadState(ctx context.Context, target string) (ttypes.PlaybackStatus, error) {
	out, err := r.route(target)
	if err != nil {
		return ttypes.PlaybackStatus{State: ttypes.PlaybackUnknown}, err
	}
	return out.ReadState(ctx, target)
}

var _ ttypes.Output = (*Router)(nil)
