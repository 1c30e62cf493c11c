package audio

import (
	"errors"
	"sync"
	"time"
)

// MockPlayer simulates playback without a sound device. A played buffer
// "plays" for its PCM duration scaled by the speed factor.
type MockPlayer struct {
	cfg PlayerConfig

	mu      sync.Mutex
	state   PlayerState
	volume  float64
	speed   float64
	played  [][]byte
	stops   int
	playErr error
	timer   *time.Timer
	done    chan struct{}
}

// NewMockPlayer creates a mock player for the given format.
func NewMockPlayer(cfg PlayerConfig) *MockPlayer {
	return &MockPlayer{
		cfg:    cfg,
		volume: 1.0,
		speed:  1.0,
	}
}

// SetSpeed scales simulated playback; 10 plays ten times faster.
func (m *MockPlayer) SetSpeed(factor float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if factor > 0 {
		m.speed = factor
	}
}

// FailNextPlay makes the next Play call return err.
func (m *MockPlayer) FailNextPlay(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// Play starts simulated playback.
func (m *MockPlayer) Play(audio []byte) error {
	if len(audio) == 0 {
		return errors.New("audio data is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return ErrPlayerClosed
	}
	if err := m.playErr; err != nil {
		m.playErr = nil
		return err
	}
	m.stopLocked()

	data := make([]byte, len(audio))
	copy(data, audio)
	m.played = append(m.played, data)

	d := time.Duration(float64(m.cfg.Duration(len(data))) / m.speed)
	done := make(chan struct{})
	m.done = done
	m.state = StatePlaying
	m.timer = time.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.done == done {
			m.state = StateStopped
			m.done = nil
			close(done)
		}
	})
	return nil
}

// Stop ends simulated playback.
func (m *MockPlayer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stops++
	m.stopLocked()
	return nil
}

func (m *MockPlayer) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	if m.state == StatePlaying {
		m.state = StateStopped
	}
}

// IsPlaying reports whether simulated playback is running.
func (m *MockPlayer) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatePlaying
}

// State returns the current player state.
func (m *MockPlayer) State() PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetVolume sets the simulated volume.
func (m *MockPlayer) SetVolume(volume float64) error {
	if err := checkVolume(volume); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = volume
	return nil
}

// GetVolume returns the simulated volume.
func (m *MockPlayer) GetVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Close stops playback and rejects further Play calls.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.state = StateClosed
	return nil
}

// Played returns copies of every buffer passed to Play.
func (m *MockPlayer) Played() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.played))
	copy(out, m.played)
	return out
}

// Stops returns how many times Stop was called.
func (m *MockPlayer) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// WaitForCompletion blocks until the current playback ends or timeout
// passes. It returns true when nothing is playing.
func (m *MockPlayer) WaitForCompletion(timeout time.Duration) bool {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
