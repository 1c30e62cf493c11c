package daemon

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// recordingOutput records spoken messages and stop requests.
type recordingOutput struct {
	mu      sync.Mutex
	spoken  []string
	stops   []string
	stopErr error
}

func (o *recordingOutput) Speak(_ context.Context, req ttypes.SpeakRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spoken = append(o.spoken, req.Message)
	return nil
}

func (o *recordingOutput) SetVolume(context.Context, string, float64) error { return nil }

func (o *recordingOutput) StopPlayback(_ context.Context, target string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stops = append(o.stops, target)
	return o.stopErr
}

func (o *recordingOutput) PlayMedia(context.Context, string, string) error { return nil }

func (o *recordingOutput) ReadState(context.Context, string) (ttypes.PlaybackStatus, error) {
	return ttypes.PlaybackStatus{State: ttypes.PlaybackIdle}, nil
}

func (o *recordingOutput) messages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.spoken...)
}

func (o *recordingOutput) stopCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.stops)
}

// instantCompletion reports every announcement finished immediately.
type instantCompletion struct{}

func (instantCompletion) AwaitCompletion(context.Context, string) tts.CompletionResult {
	return tts.CompletionElapsed
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func testInstance(name, target string) tts.InstanceConfig {
	cfg := tts.DefaultInstanceConfig()
	cfg.Name = name
	cfg.Target = target
	cfg.PreRollMs = 0
	cfg.PostGraceMs = 0
	cfg.DuckEnable = false
	cfg.DetectDoneMode = tts.DetectModeTimer
	return cfg
}

// newIdleScheduler builds a scheduler that is never started, so everything
// enqueued stays pending.
func newIdleScheduler(t *testing.T, cfg tts.InstanceConfig, out ttypes.Output) *tts.Scheduler {
	t.Helper()
	s, err := tts.NewScheduler(cfg, out, tts.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
