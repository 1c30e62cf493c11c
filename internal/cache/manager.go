package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager fronts the memory and disk tiers. Reads check memory first and
// promote disk hits; writes go to both tiers.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	promotions int64
	cleanups   int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// ManagerStats aggregates both tiers.
type ManagerStats struct {
	Memory     Stats
	Disk       Stats
	Promotions int64
	Cleanups   int64
}

// NewManager builds the tiers described by cfg. A tier with zero capacity is
// skipped; the disk tier also needs a directory.
func NewManager(cfg Config, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}

	m := &Manager{cfg: cfg, logger: logger, stop: make(chan struct{})}

	if cfg.MemoryBytes > 0 {
		m.memory = NewMemoryCache(cfg.MemoryBytes)
	}
	if cfg.DiskBytes > 0 && cfg.Dir != "" {
		disk, err := NewDiskCache(cfg.Dir, cfg.DiskBytes, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.disk = disk
	}

	if cfg.CleanupInterval > 0 && m.disk != nil {
		m.wg.Add(1)
		go m.cleanupLoop(cfg.CleanupInterval)
	}

	return m, nil
}

// Get looks key up in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, Level, bool) {
	if m.memory != nil {
		if data, ok := m.memory.Get(key); ok {
			return data, LevelMemory, true
		}
	}
	if m.disk != nil {
		if data, ok := m.disk.Get(key); ok {
			if m.memory != nil && m.memory.Put(key, data) == nil {
				m.mu.Lock()
				m.promotions++
				m.mu.Unlock()
			}
			return data, LevelDisk, true
		}
	}
	return nil, LevelMemory, false
}

// Put stores value in every tier that can hold it. Values too large for a
// tier are skipped there; the call fails only when no tier stored it.
func (m *Manager) Put(key string, value []byte) error {
	var errs []error
	stored := false

	if m.memory != nil {
		if err := m.memory.Put(key, value); err != nil {
			errs = append(errs, fmt.Errorf("memory: %w", err))
		} else {
			stored = true
		}
	}
	if m.disk != nil {
		if err := m.disk.Put(key, value); err != nil {
			m.logger.Warn("Disk cache write failed", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("disk: %w", err))
		} else {
			stored = true
		}
	}

	if stored {
		return nil
	}
	return errors.Join(errs...)
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	var errs []error
	if m.memory != nil {
		errs = append(errs, m.memory.Clear())
	}
	if m.disk != nil {
		errs = append(errs, m.disk.Clear())
	}
	return errors.Join(errs...)
}

// Cleanup expires entries older than the configured TTL.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	m.cleanups++
	m.mu.Unlock()

	if m.cfg.TTL <= 0 {
		return 0
	}

	removed := 0
	if m.memory != nil {
		removed += m.memory.Prune(m.cfg.TTL)
	}
	if m.disk != nil {
		removed += m.disk.RemoveOlderThan(m.disk.now().Add(-m.cfg.TTL))
	}
	if removed > 0 {
		m.logger.Debug("Cache cleanup", "removed", removed)
	}
	return removed
}

// Stats returns counters for both tiers.
func (m *Manager) Stats() ManagerStats {
	var s ManagerStats
	if m.memory != nil {
		s.Memory = m.memory.Stats()
	}
	if m.disk != nil {
		s.Disk = m.disk.Stats()
	}

	m.mu.Lock()
	s.Promotions = m.promotions
	s.Cleanups = m.cleanups
	m.mu.Unlock()
	return s
}

// Close stops the cleanup loop and persists the disk index.
func (m *Manager) Close() error {
	select {
	case <-m.stop:
		return nil
	default:
		close(m.stop)
	}
	m.wg.Wait()

	if m.disk != nil {
		if err := m.disk.Close(); err != nil {
			return fmt.Errorf("failed to close disk cache: %w", err)
		}
	}
	return nil
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}
