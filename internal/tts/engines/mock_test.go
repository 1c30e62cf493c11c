package engines

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/cache"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
)

func TestMockEngine(t *testing.T) {
	e := NewMockEngine(44100)

	pcm, err := e.Synthesize(context.Background(), "one two three", "en", nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	// 3 words * 60ms at 44.1kHz mono 16-bit
	if len(pcm) != 15876 {
		t.Errorf("Expected 15876 bytes, got %d", len(pcm))
	}

	boom := errors.New("boom")
	e.SetError(boom)
	if _, err := e.Synthesize(context.Background(), "x", "", nil); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}

	if calls := e.Calls(); len(calls) != 2 || calls[0].Language != "en" {
		t.Errorf("Expected 2 recorded calls, got %+v", calls)
	}
}

func TestMockEngine_DelayHonoursContext(t *testing.T) {
	e := NewMockEngine(44100)
	e.SetDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Synthesize(ctx, "hello", "", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestCached(t *testing.T) {
	mgr, err := cache.NewManager(cache.Config{MemoryBytes: 1 << 20}, log.New(io.Discard))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	engine := NewMockEngine(44100)
	c := NewCached(engine, mgr, "", log.New(io.Discard))
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Synthesize(ctx, "doorbell", "en", nil); err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
	}
	if _, err := c.Synthesize(ctx, "doorbell", "de", nil); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if n := len(engine.Calls()); n != 2 {
		t.Errorf("Expected 2 engine calls (one per language), got %d", n)
	}
	if c.GetInfo().Name != "mock" {
		t.Errorf("Expected wrapped engine info, got %q", c.GetInfo().Name)
	}
}

func TestNew(t *testing.T) {
	cfg := tts.DefaultLocalConfig()
	cfg.Engine = "mock"
	cfg.Cache = tts.CacheConfig{}

	engine, err := New(cfg, "", log.New(io.Discard))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := engine.(*MockEngine); !ok {
		t.Errorf("Expected bare mock engine without cache, got %T", engine)
	}

	cfg.Cache = tts.CacheConfig{MemoryMB: 1, DiskMB: 1}
	engine, err = New(cfg, t.TempDir(), log.New(io.Discard))
	if err != nil {
		t.Fatalf("New with cache failed: %v", err)
	}
	if _, ok := engine.(*Cached); !ok {
		t.Errorf("Expected cached engine, got %T", engine)
	}
	_ = engine.Close()

	cfg.Engine = "espeak"
	if _, err := New(cfg, "", nil); !errors.Is(err, tts.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}
