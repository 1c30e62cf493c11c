package engines

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/cache"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// Cached serves repeated messages from a cache instead of the engine.
type Cached struct {
	ttypes.Synthesizer
	cache  *cache.Manager
	voice  string
	logger *log.Logger
}

// NewCached wraps engine with c. voice distinguishes entries from engines
// that share a name but not a model.
func NewCached(engine ttypes.Synthesizer, c *cache.Manager, voice string, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{Synthesizer: engine, cache: c, voice: voice, logger: logger}
}

// Synthesize returns cached audio when present and stores fresh results.
func (c *Cached) Synthesize(ctx context.Context, text, language string, options map[string]any) ([]byte, error) {
	key := cache.Key(c.GetInfo().Name, c.voice, language, text, options)
	if pcm, level, ok := c.cache.Get(key); ok {
		c.logger.Debug("Audio cache hit", "level", level, "bytes", len(pcm))
		return pcm, nil
	}

	pcm, err := c.Synthesizer.Synthesize(ctx, text, language, options)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(key, pcm); err != nil {
		c.logger.Warn("Failed to cache audio", "error", err)
	}
	return pcm, nil
}

// Close closes the engine and persists the cache.
func (c *Cached) Close() error {
	err := c.Synthesizer.Close()
	if cerr := c.cache.Close(); err == nil {
		err = cerr
	}
	return err
}
