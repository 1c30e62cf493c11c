package engines

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/cache"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// New builds the engine named in cfg, wrapped in the audio cache when the
// cache has any capacity. cacheDir is used when cfg.Cache.Dir is empty.
func New(cfg tts.LocalConfig, cacheDir string, logger *log.Logger) (ttypes.Synthesizer, error) {
	if logger == nil {
		logger = log.Default()
	}

	var (
		engine ttypes.Synthesizer
		voice  string
	)
	switch cfg.Engine {
	case "piper":
		e, err := NewPiperEngine(cfg.Piper, cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("piper: %w", err)
		}
		engine, voice = e, filepath.Base(cfg.Piper.ModelPath)
	case "gtts":
		engine = NewGTTSEngine(cfg.GTTS, cfg.SampleRate)
	case "mock":
		engine = NewMockEngine(cfg.SampleRate)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", tts.ErrInvalidConfig, cfg.Engine)
	}

	if cfg.Cache.MemoryMB <= 0 && cfg.Cache.DiskMB <= 0 {
		return engine, nil
	}

	cc := cache.DefaultConfig()
	cc.MemoryBytes = int64(cfg.Cache.MemoryMB) << 20
	cc.DiskBytes = int64(cfg.Cache.DiskMB) << 20
	cc.Dir = cfg.Cache.Dir
	if cc.Dir == "" {
		cc.Dir = cacheDir
	}

	mgr, err := cache.NewManager(cc, logger.WithPrefix("cache"))
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return NewCached(engine, mgr, voice, logger), nil
}
