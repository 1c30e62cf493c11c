package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/queue"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

const (
	// DefaultBackoff is how long the worker pauses after a recovered failure.
	DefaultBackoff = 5 * time.Second

	// Bound on best-effort calls made outside an announcement's own context.
	cleanupTimeout = 5 * time.Second

	// Longest the next announcement waits for an interrupt's stop request.
	stopWaitTimeout = 2 * time.Second

	// MaxPreRoll bounds a per-request pre-roll override.
	MaxPreRoll = time.Second
)

var (
	errItemSkipped     = errors.New("skipped")
	errItemInterrupted = errors.New("interrupted")
)

// Clock returns the current time. Tests replace it to pin quiet hours.
type Clock func() time.Time

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for quiet hours and timestamps.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithBackoff sets the pause after a recovered worker failure.
func WithBackoff(d time.Duration) Option {
	return func(s *Scheduler) {
		s.backoff = d
	}
}

// WithCompletion replaces the configured completion detector.
func WithCompletion(d CompletionDetector) Option {
	return func(s *Scheduler) {
		if d != nil {
			s.completion = d
		}
	}
}

// EnqueueRequest is a caller's request to speak a message.
type EnqueueRequest struct {
	Message        string
	Target         string         // Defaults to the instance target
	Language       string         // Defaults to the instance language
	Options        map[string]any // Overlaid on the instance defaults
	Priority       int
	VolumeOverride *float64
	PreRollMs      *int
	Interrupt      bool
}

// Outcome is how an announcement left the worker.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeSkipped
	OutcomeInterrupted
	OutcomeCancelled
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Finished records the last announcement the worker handled.
type Finished struct {
	Announcement ttypes.Announcement
	Outcome      Outcome
	Completion   CompletionResult
	Err          string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Status is a point-in-time view of a scheduler.
type Status struct {
	Instance     string
	Target       string
	State        SchedulerState
	StateSince   time.Time
	QueueSize    int
	Pending      []ttypes.Announcement
	Current      *ttypes.Announcement
	LastFinished *Finished
	Ducked       []string
	Processed    int64
	Failed       int64
}

// Scheduler owns one announcement queue and the single worker that plays it.
type Scheduler struct {
	cfg        InstanceConfig
	out        ttypes.Output
	queue      *queue.AnnouncementQueue
	duck       *DuckController
	completion CompletionDetector
	state      *StateMachine
	logger     *log.Logger
	clock      Clock
	backoff    time.Duration

	mu            sync.Mutex
	started       bool
	stopped       bool
	cancel        context.CancelFunc
	done          chan struct{}
	current       *ttypes.Announcement
	currentCancel context.CancelCauseFunc
	pendingStop   chan struct{}
	lastFinished  *Finished
	processed     int64
	failed        int64
}

// NewScheduler validates cfg and builds an idle scheduler for it.
func NewScheduler(cfg InstanceConfig, out ttypes.Output, opts ...Option) (*Scheduler, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: output is required", ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:     cfg,
		out:     out,
		queue:   queue.New(),
		state:   NewStateMachine(),
		logger:  log.Default().WithPrefix(cfg.Name),
		clock:   time.Now,
		backoff: DefaultBackoff,
		done:    make(chan struct{}),
	}
	s.completion = NewCompletionDetector(cfg, out)

	for _, opt := range opts {
		opt(s)
	}
	s.duck = NewDuckController(out, s.logger)

	s.state.OnChange(func(from, to SchedulerState) {
		s.logger.Debug("state", "from", from, "to", to)
	})

	return s, nil
}

// Name returns the instance name.
func (s *Scheduler) Name() string {
	return s.cfg.Name
}

// Config returns the instance configuration.
func (s *Scheduler) Config() InstanceConfig {
	return s.cfg
}

// Start launches the worker. Calling Start on a running scheduler does
// nothing; a stopped scheduler cannot be restarted.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.state.Transition(StateRunning)

	go s.run(loopCtx)

	s.logger.Info("scheduler started", "target", s.cfg.Target, "mode", s.cfg.DetectDoneMode)
	return nil
}

// Stop cancels the worker, waits for it to restore any ducked outputs and
// exit, and drops pending announcements. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.done
		}
		return
	}
	s.stopped = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	dropped := s.queue.Clear()
	_ = s.queue.Close()
	if cancel != nil {
		cancel()
	}

	if started {
		<-s.done
	} else {
		s.state.Transition(StateStopped)
	}

	// No-op unless the worker could not finish its own restore.
	ctx, done := context.WithTimeout(context.Background(), cleanupTimeout)
	defer done()
	s.duck.Restore(ctx)

	s.logger.Info("scheduler stopped", "dropped", dropped)
}

// Enqueue validates req, resolves its defaults and inserts it. An interrupt
// request atomically replaces everything pending, cancels the current
// announcement and asks the target to stop playing.
func (s *Scheduler) Enqueue(ctx context.Context, req EnqueueRequest) (ttypes.Announcement, error) {
	if err := ctx.Err(); err != nil {
		return ttypes.Announcement{}, err
	}

	a, err := s.resolve(req)
	if err != nil {
		return ttypes.Announcement{}, err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ttypes.Announcement{}, ErrSchedulerStopped
	}

	if !a.Interrupt {
		err := s.queue.Enqueue(a)
		s.mu.Unlock()
		if err != nil {
			return ttypes.Announcement{}, fmt.Errorf("%w: %v", ErrSchedulerStopped, err)
		}
		s.logger.Debug("enqueued", "id", a.ID, "priority", a.Priority, "pending", s.queue.Size())
		return a, nil
	}

	dropped, err := s.queue.Interrupt(a)
	if err != nil {
		s.mu.Unlock()
		return ttypes.Announcement{}, fmt.Errorf("%w: %v", ErrSchedulerStopped, err)
	}
	targets := []string{a.Target}
	if s.current != nil && s.current.Target != a.Target {
		targets = append([]string{s.current.Target}, targets...)
	}
	if s.currentCancel != nil {
		s.currentCancel(errItemInterrupted)
	}
	stopped := make(chan struct{})
	s.pendingStop = stopped
	s.mu.Unlock()

	go s.stopTargets(targets, stopped)

	s.logger.Info("interrupt", "id", a.ID, "dropped", len(dropped), "targets", targets)
	return a, nil
}

// stopTargets asks every target to stop concurrently and closes done once
// all of them have answered.
func (s *Scheduler) stopTargets(targets []string, done chan<- struct{}) {
	defer close(done)
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			if err := s.out.StopPlayback(ctx, target); err != nil {
				s.logger.Warn("interrupt: stop failed", "err", &OutputError{Op: "stop", Target: target, Err: err})
			}
		}(target)
	}
	wg.Wait()
}

// Clear drops every pending announcement and returns how many were dropped.
// The announcement currently playing is not affected.
func (s *Scheduler) Clear() int {
	n := s.queue.Clear()
	if n > 0 {
		s.logger.Info("queue cleared", "dropped", n)
	}
	return n
}

// SkipCurrent stops the announcement currently playing and moves on to the
// next one. Pending announcements are kept. With nothing playing it still
// asks the default target to stop.
func (s *Scheduler) SkipCurrent(ctx context.Context) error {
	s.mu.Lock()
	target := s.cfg.Target
	if s.current != nil {
		target = s.current.Target
		s.logger.Info("skipping", "id", s.current.ID)
	}
	if s.currentCancel != nil {
		s.currentCancel(errItemSkipped)
	}
	s.mu.Unlock()

	if err := s.out.StopPlayback(ctx, target); err != nil {
		return &OutputError{Op: "stop", Target: target, Err: err}
	}
	return nil
}

// Size returns the number of pending announcements.
func (s *Scheduler) Size() int {
	return s.queue.Size()
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	st := Status{
		Instance:   s.cfg.Name,
		Target:     s.cfg.Target,
		State:      s.state.Current(),
		StateSince: s.state.Since(),
		Pending:    s.queue.Snapshot(),
		Ducked:     s.duck.Ducked(),
	}
	st.QueueSize = len(st.Pending)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		cur := *s.current
		st.Current = &cur
	}
	if s.lastFinished != nil {
		last := *s.lastFinished
		st.LastFinished = &last
	}
	st.Processed = s.processed
	st.Failed = s.failed
	return st
}

// Done is closed once the worker has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) resolve(req EnqueueRequest) (ttypes.Announcement, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return ttypes.Announcement{}, ErrEmptyMessage
	}

	a := ttypes.Announcement{
		ID:             uuid.NewString(),
		Instance:       s.cfg.Name,
		Message:        msg,
		Target:         strings.TrimSpace(req.Target),
		Language:       strings.TrimSpace(req.Language),
		Options:        MergeOptions(s.cfg.DefaultOptions, req.Options),
		Priority:       req.Priority,
		VolumeOverride: req.VolumeOverride,
		Interrupt:      req.Interrupt,
		EnqueuedAt:     s.clock(),
	}
	if a.Target == "" {
		a.Target = s.cfg.Target
	}
	if a.Language == "" {
		a.Language = s.cfg.DefaultLanguage
	} else if _, err := language.Parse(a.Language); err != nil {
		return ttypes.Announcement{}, fmt.Errorf("%w: language %q: %v", ErrInvalidRequest, a.Language, err)
	}

	if req.PreRollMs != nil {
		d := time.Duration(*req.PreRollMs) * time.Millisecond
		if d < 0 || d > MaxPreRoll {
			return ttypes.Announcement{}, fmt.Errorf("%w: pre_roll_ms %d out of range", ErrInvalidRequest, *req.PreRollMs)
		}
		a.PreRoll = &d
	}

	return a, nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.state.Transition(StateStopped)

	for {
		a, itemCtx, cancel, err := s.next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			s.logger.Error("dequeue failed", "err", err)
			if sleepContext(ctx, s.backoff) != nil {
				return
			}
			continue
		}

		if err := s.process(itemCtx, cancel, a); err != nil {
			s.logger.Error("worker recovered", "id", a.ID, "err", err, "backoff", s.backoff)
			if sleepContext(ctx, s.backoff) != nil {
				return
			}
		}
	}
}

// next waits for an announcement and marks it current under s.mu, so an
// interrupt either sees it as current or discards it while still pending.
func (s *Scheduler) next(ctx context.Context) (ttypes.Announcement, context.Context, context.CancelCauseFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ttypes.Announcement{}, nil, nil, err
		}
		if err := s.queue.Wait(ctx); err != nil {
			return ttypes.Announcement{}, nil, nil, err
		}

		s.mu.Lock()
		a, ok := s.queue.TryDequeue()
		if ok {
			itemCtx, cancel := context.WithCancelCause(ctx)
			s.current = &a
			s.currentCancel = cancel
			s.mu.Unlock()
			return a, itemCtx, cancel, nil
		}
		s.mu.Unlock()
	}
}

// process plays one announcement. Ducked outputs are restored on every exit
// path, including a panic, which is returned as ErrWorkerPanic.
func (s *Scheduler) process(ctx context.Context, cancel context.CancelCauseFunc, a ttypes.Announcement) (err error) {
	started := s.clock()
	var result CompletionResult
	var playErr error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			playErr = err
		}
		cause := context.Cause(ctx)
		cancel(nil)

		s.state.Transition(StateRestoring)
		restoreCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		if n := s.duck.Restore(restoreCtx); n > 0 {
			s.logger.Debug("restored", "targets", n)
		}
		stop()

		s.finish(a, result, playErr, cause, started)
		s.state.Transition(StateRunning)
	}()

	result, playErr = s.play(ctx, a)
	return nil
}

func (s *Scheduler) play(ctx context.Context, a ttypes.Announcement) (CompletionResult, error) {
	s.state.Transition(StateDucking)
	if s.cfg.DuckEnable && len(s.cfg.DuckTargets) > 0 {
		s.duck.Duck(ctx, s.cfg.DuckTargets, a.Target, s.cfg.DuckVolume)
	}

	volume := SelectVolume(s.cfg, a.VolumeOverride, s.clock())
	if err := s.out.SetVolume(ctx, a.Target, volume); err != nil {
		return CompletionNone, &OutputError{Op: "set_volume", Target: a.Target, Err: err}
	}

	s.state.Transition(StatePreRoll)
	if s.cfg.PreRollSound != "" {
		if err := s.out.PlayMedia(ctx, a.Target, s.cfg.PreRollSound); err != nil {
			s.logger.Warn("pre-roll sound failed", "err", &OutputError{Op: "play_media", Target: a.Target, Err: err})
		}
	}
	preRoll := s.cfg.PreRoll()
	if a.PreRoll != nil {
		preRoll = *a.PreRoll
	}
	if err := sleepContext(ctx, preRoll); err != nil {
		return CompletionNone, err
	}
	if err := s.awaitPendingStop(ctx); err != nil {
		return CompletionNone, err
	}

	s.state.Transition(StateSpeaking)
	domain, service := s.cfg.ServiceParts()
	req := ttypes.SpeakRequest{
		Target:   a.Target,
		Message:  a.Message,
		Language: a.Language,
		Options:  a.Options,
		Service:  domain + "." + service,
		Engine:   s.cfg.TTSEntity,
	}
	if err := s.out.Speak(ctx, req); err != nil {
		if ctx.Err() != nil {
			return CompletionNone, ctx.Err()
		}
		return CompletionNone, &OutputError{Op: "speak", Target: a.Target, Err: err}
	}

	s.state.Transition(StateAwaitingCompletion)
	result := s.completion.AwaitCompletion(ctx, a.Target)
	if result == CompletionCancelled {
		return result, ctx.Err()
	}
	if result == CompletionTimeout {
		s.logger.Debug("completion not observed, assuming done", "id", a.ID)
	}

	s.state.Transition(StatePostGrace)
	if err := sleepContext(ctx, s.cfg.PostGrace()); err != nil {
		return result, err
	}
	return result, nil
}

// awaitPendingStop holds the next announcement until an interrupt's stop
// request has been sent, so the stop cannot cut it off.
func (s *Scheduler) awaitPendingStop(ctx context.Context) error {
	s.mu.Lock()
	ch := s.pendingStop
	s.pendingStop = nil
	s.mu.Unlock()

	if ch == nil {
		return nil
	}

	t := time.NewTimer(stopWaitTimeout)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	case <-t.C:
		s.logger.Warn("interrupt stop still pending, speaking anyway")
	}
	return nil
}

func (s *Scheduler) finish(a ttypes.Announcement, result CompletionResult, playErr, cause error, started time.Time) {
	f := &Finished{
		Announcement: a,
		Outcome:      OutcomeCompleted,
		Completion:   result,
		StartedAt:    started,
		FinishedAt:   s.clock(),
	}

	switch {
	case errors.Is(cause, errItemSkipped):
		f.Outcome = OutcomeSkipped
	case errors.Is(cause, errItemInterrupted):
		f.Outcome = OutcomeInterrupted
	case cause != nil:
		f.Outcome = OutcomeCancelled
	case playErr != nil:
		f.Outcome = OutcomeFailed
		f.Err = playErr.Error()
	}

	s.mu.Lock()
	s.current = nil
	s.currentCancel = nil
	s.lastFinished = f
	s.processed++
	if f.Outcome == OutcomeFailed {
		s.failed++
	}
	s.mu.Unlock()

	elapsed := f.FinishedAt.Sub(started)
	switch f.Outcome {
	case OutcomeFailed:
		s.logger.Warn("announcement abandoned", "id", a.ID, "err", playErr, "elapsed", elapsed)
	default:
		s.logger.Info("announcement finished", "id", a.ID, "outcome", f.Outcome, "completion", result, "elapsed", elapsed)
	}
}
