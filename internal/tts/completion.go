package tts

import (
	"context"
	"time"

	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// Completion detection bounds.
const (
	PollInterval = 250 * time.Millisecond
	PollSettle   = 200 * time.Millisecond
	PollMinWait  = 4 * time.Second
	PollMaxWait  = 120 * time.Second
	TimerMin     = 2 * time.Second
	TimerMax     = 90 * time.Second
)

// CompletionResult describes how a wait for end of speech ended.
type CompletionResult int

const (
	// CompletionNone means the wait was never reached.
	CompletionNone CompletionResult = iota
	// CompletionObserved means the output reported a non-playing state.
	CompletionObserved
	// CompletionUnobservable means the state could not be read; treated as done.
	CompletionUnobservable
	// CompletionTimeout means the wait bound was reached; treated as done.
	CompletionTimeout
	// CompletionElapsed means the fixed timer ran out.
	CompletionElapsed
	// CompletionCancelled means the context ended the wait.
	CompletionCancelled
)

// String returns a string representation of the result.
func (r CompletionResult) String() string {
	switch r {
	case CompletionNone:
		return "none"
	case CompletionObserved:
		return "observed"
	case CompletionUnobservable:
		return "unobservable"
	case CompletionTimeout:
		return "timeout"
	case CompletionElapsed:
		return "elapsed"
	case CompletionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CompletionDetector waits until an announcement has finished playing.
// Implementations never fail; anything unobservable counts as done.
type CompletionDetector interface {
	AwaitCompletion(ctx context.Context, target string) CompletionResult
}

// PollCompletion polls the target's playback state until it stops playing
// or MaxWait passes.
type PollCompletion struct {
	Output   ttypes.Output
	Interval time.Duration
	MaxWait  time.Duration
	Settle   time.Duration
}

// AwaitCompletion implements CompletionDetector.
func (p PollCompletion) AwaitCompletion(ctx context.Context, target string) CompletionResult {
	interval := p.Interval
	if interval <= 0 {
		interval = PollInterval
	}

	deadline := time.NewTimer(p.MaxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := p.Output.ReadState(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return CompletionCancelled
			}
			return CompletionUnobservable
		}
		if !status.State.IsActive() {
			if err := sleepContext(ctx, p.Settle); err != nil {
				return CompletionCancelled
			}
			return CompletionObserved
		}

		select {
		case <-ctx.Done():
			return CompletionCancelled
		case <-deadline.C:
			return CompletionTimeout
		case <-ticker.C:
		}
	}
}

// TimerCompletion waits a fixed duration.
type TimerCompletion struct {
	Duration time.Duration
}

// AwaitCompletion implements CompletionDetector.
func (t TimerCompletion) AwaitCompletion(ctx context.Context, _ string) CompletionResult {
	if err := sleepContext(ctx, t.Duration); err != nil {
		return CompletionCancelled
	}
	return CompletionElapsed
}

// NewCompletionDetector picks the strategy configured for an instance.
func NewCompletionDetector(cfg InstanceConfig, out ttypes.Output) CompletionDetector {
	if cfg.DetectDoneMode == DetectModeTimer {
		return TimerCompletion{Duration: clampDuration(cfg.MaxSpeech(), TimerMin, TimerMax)}
	}
	return PollCompletion{
		Output:   out,
		Interval: PollInterval,
		MaxWait:  clampDuration(cfg.MaxSpeech(), PollMinWait, PollMaxWait),
		Settle:   PollSettle,
	}
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
