package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored item cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies a cache tier.
type Level int

const (
	// LevelMemory is the in-process LRU tier.
	LevelMemory Level = iota

	// LevelDisk is the persistent compressed tier.
	LevelDisk
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds the counters of one tier.
type Stats struct {
	Capacity  int64 // Maximum size in bytes
	Size      int64 // Current size in bytes
	Items     int   // Number of stored items
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Cache is implemented by both tiers.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Size() int64
	Stats() Stats
}

// Config holds settings for a Manager.
type Config struct {
	// MemoryBytes is the L1 capacity. Zero disables the memory tier.
	MemoryBytes int64

	// DiskBytes is the L2 capacity. Zero disables the disk tier.
	DiskBytes int64

	// Dir is where L2 files live.
	Dir string

	// CompressionLevel is the zstd level (1-22). Zero stores raw PCM.
	CompressionLevel int

	// TTL expires entries older than this during cleanup. Zero keeps them.
	TTL time.Duration

	// CleanupInterval runs cleanup periodically. Zero disables it.
	CleanupInterval time.Duration
}

// DefaultConfig returns the cache settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		MemoryBytes:      32 << 20,
		DiskBytes:        256 << 20,
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Key derives a cache key from everything that changes the rendered audio.
// Option maps are encoded with sorted keys so equal maps give equal keys.
func Key(engine, voice, language, text string, options map[string]any) string {
	opts, err := json.Marshal(options)
	if err != nil {
		opts = nil
	}

	h := sha256.New()
	for _, part := range [][]byte{[]byte(engine), []byte(voice), []byte(language), opts, []byte(text)} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
