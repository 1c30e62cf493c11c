package tts

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// outputCall is one recorded call against fakeOutput.
type outputCall struct {
	Op      string
	Target  string
	Level   float64
	Message string
	Media   string
	Request ttypes.SpeakRequest
}

// fakeOutput records every call and simulates per-target playback state.
type fakeOutput struct {
	mu      sync.Mutex
	calls   []outputCall
	states  map[string]ttypes.PlaybackState
	volumes map[string]float64

	speakErr     map[string]error // by message
	setVolumeErr map[string]error // by target
	readErr      map[string]error // by target
	stopErr      error

	// speakHook runs inside Speak after the call is recorded.
	speakHook func(ctx context.Context, req ttypes.SpeakRequest) error
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{
		states:       make(map[string]ttypes.PlaybackState),
		volumes:      make(map[string]float64),
		speakErr:     make(map[string]error),
		setVolumeErr: make(map[string]error),
		readErr:      make(map[string]error),
	}
}

func (f *fakeOutput) record(c outputCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeOutput) Speak(ctx context.Context, req ttypes.SpeakRequest) error {
	f.record(outputCall{Op: "speak", Target: req.Target, Message: req.Message, Request: req})

	f.mu.Lock()
	err := f.speakErr[req.Message]
	hook := f.speakHook
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		return hook(ctx, req)
	}
	return nil
}

func (f *fakeOutput) SetVolume(ctx context.Context, target string, level float64) error {
	f.record(outputCall{Op: "set_volume", Target: target, Level: level})

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setVolumeErr[target]; err != nil {
		return err
	}
	f.volumes[target] = level
	return nil
}

func (f *fakeOutput) StopPlayback(ctx context.Context, target string) error {
	f.record(outputCall{Op: "stop", Target: target})

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopErr
}

func (f *fakeOutput) PlayMedia(ctx context.Context, target, mediaID string) error {
	f.record(outputCall{Op: "play_media", Target: target, Media: mediaID})
	return nil
}

func (f *fakeOutput) ReadState(ctx context.Context, target string) (ttypes.PlaybackStatus, error) {
	f.record(outputCall{Op: "read_state", Target: target})

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[target]; err != nil {
		return ttypes.PlaybackStatus{}, err
	}

	st, ok := f.states[target]
	if !ok {
		st = ttypes.PlaybackIdle
	}
	status := ttypes.PlaybackStatus{State: st}
	if v, ok := f.volumes[target]; ok {
		status.Volume = &v
	}
	return status, nil
}

func (f *fakeOutput) setState(target string, st ttypes.PlaybackState, volume *float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[target] = st
	if volume != nil {
		f.volumes[target] = *volume
	}
}

func (f *fakeOutput) volume(target string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[target]
	return v, ok
}

// callsFor returns the recorded calls with the given op.
func (f *fakeOutput) callsFor(op string) []outputCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []outputCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeOutput) spoken() []string {
	var out []string
	for _, c := range f.callsFor("speak") {
		out = append(out, c.Message)
	}
	return out
}

// indexOf returns the position of the first call matching op and, when
// non-empty, message.
func (f *fakeOutput) indexOf(op, message string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if c.Op == op && (message == "" || c.Message == message) {
			return i
		}
	}
	return -1
}

// lastIndexOf returns the position of the last call matching op and, when
// non-empty, message.
func (f *fakeOutput) lastIndexOf(op, message string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		c := f.calls[i]
		if c.Op == op && (message == "" || c.Message == message) {
			return i
		}
	}
	return -1
}

// gatedCompletion blocks the next N waits until their context ends and
// returns immediately afterwards.
type gatedCompletion struct {
	block atomic.Int32
	waits atomic.Int32
}

func (g *gatedCompletion) AwaitCompletion(ctx context.Context, _ string) CompletionResult {
	g.waits.Add(1)
	if g.block.Add(-1) >= 0 {
		<-ctx.Done()
		return CompletionCancelled
	}
	return CompletionElapsed
}

var errFake = errors.New("output unreachable")

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

func testInstance() InstanceConfig {
	cfg := DefaultInstanceConfig()
	cfg.Name = "living"
	cfg.Target = "media_player.living"
	cfg.PreRollMs = 0
	cfg.PostGraceMs = 0
	cfg.DuckTargets = []string{"media_player.kitchen"}
	cfg.DetectDoneMode = DetectModeTimer
	cfg.MaxSpeechSeconds = 5
	return cfg
}

// waitFor polls cond until it holds or the timeout expires.
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
