package engines

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// MockCall records one Synthesize call.
type MockCall struct {
	Text     string
	Language string
	Options  map[string]any
}

// MockEngine returns silence sized to the message, about 60ms per word.
// It is selectable as engine "mock" for dry runs without audio tools.
type MockEngine struct {
	sampleRate int

	mu    sync.Mutex
	calls []MockCall
	err   error
	delay time.Duration
}

// NewMockEngine creates a mock engine producing PCM at sampleRate.
func NewMockEngine(sampleRate int) *MockEngine {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &MockEngine{sampleRate: sampleRate}
}

// SetError makes every following call fail with err (nil to clear).
func (e *MockEngine) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// SetDelay simulates synthesis time.
func (e *MockEngine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// Calls returns the recorded calls.
func (e *MockEngine) Calls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]MockCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// Synthesize records the call and returns silence.
func (e *MockEngine) Synthesize(ctx context.Context, text, language string, options map[string]any) ([]byte, error) {
	e.mu.Lock()
	e.calls = append(e.calls, MockCall{Text: text, Language: language, Options: options})
	err, delay := e.err, e.delay
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text cannot be empty")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	words := len(strings.Fields(text))
	return Silence(time.Duration(words)*60*time.Millisecond, e.sampleRate), nil
}

// GetInfo returns engine capabilities and configuration.
func (e *MockEngine) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:        "mock",
		SampleRate:  e.sampleRate,
		Channels:    1,
		BitDepth:    16,
		MaxTextSize: 5000,
	}
}

// Validate always succeeds.
func (e *MockEngine) Validate() error { return nil }

// Close releases resources held by the engine.
func (e *MockEngine) Close() error { return nil }

var _ ttypes.Synthesizer = (*MockEngine)(nil)
