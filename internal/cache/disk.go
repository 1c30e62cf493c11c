package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const indexFile = "index.json"

// DiskCache is the L2 tier. Each value is one file named after its key,
// compressed with zstd when that makes it smaller. An index of sizes and
// access times is kept beside the files and rewritten on Close.
type DiskCache struct {
	mu       sync.Mutex
	dir      string
	capacity int64
	size     int64
	index    map[string]*diskEntry
	stats    Stats
	now      func() time.Time

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

type diskEntry struct {
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	StoredAt   time.Time `json:"stored_at"`
	LastAccess time.Time `json:"last_access"`
}

// NewDiskCache opens or creates a disk cache in dir. A missing or unreadable
// index starts the cache empty; stray files are overwritten on reuse.
func NewDiskCache(dir string, capacity int64, level int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		now:      time.Now,
	}

	if level > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	dc.decoder = decoder

	if data, err := os.ReadFile(filepath.Join(dir, indexFile)); err == nil {
		if err := json.Unmarshal(data, &dc.index); err != nil {
			dc.index = make(map[string]*diskEntry)
		}
	}
	for key, e := range dc.index {
		if _, err := os.Stat(dc.path(key)); err != nil {
			delete(dc.index, key)
			continue
		}
		dc.size += e.Size
	}

	return dc, nil
}

// Get reads and decompresses the value for key. Unreadable entries are
// dropped and reported as misses.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := dc.read(key, entry)
	if err != nil {
		dc.drop(key)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = dc.now()
	dc.stats.Hits++
	return data, true
}

func (dc *DiskCache) read(key string, entry *diskEntry) ([]byte, error) {
	data, err := os.ReadFile(dc.path(key))
	if err != nil {
		return nil, err
	}
	if !entry.Compressed {
		return data, nil
	}
	out, err := dc.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return out, nil
}

// Put writes value to disk, evicting the least recently read entries first
// when the tier would exceed its capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	data, compressed := value, false
	if dc.encoder != nil && len(value) > 1024 {
		if enc := dc.encoder.EncodeAll(value, nil); len(enc) < len(value) {
			data, compressed = enc, true
		}
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	if _, ok := dc.index[key]; ok {
		dc.drop(key)
	}
	dc.evictFor(n)

	if err := writeAtomic(dc.path(key), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := dc.now()
	dc.index[key] = &diskEntry{Size: n, Compressed: compressed, StoredAt: now, LastAccess: now}
	dc.size += n
	return nil
}

// Delete removes key from disk.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if _, ok := dc.index[key]; ok {
		dc.drop(key)
	}
	return nil
}

// Clear removes every cached file and the index.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key := range dc.index {
		dc.drop(key)
	}
	return dc.saveIndex()
}

// Size returns the stored bytes on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Stats returns a snapshot of the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Capacity = dc.capacity
	s.Size = dc.size
	s.Items = len(dc.index)
	return s
}

// RemoveOlderThan drops entries stored before cutoff.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, e := range dc.index {
		if e.StoredAt.Before(cutoff) {
			dc.drop(key)
			removed++
		}
	}
	return removed
}

// Close persists the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.encoder != nil {
		dc.encoder.Close()
	}
	dc.decoder.Close()
	return dc.saveIndex()
}

// evictFor frees space for n more bytes. Must be called with dc.mu held.
func (dc *DiskCache) evictFor(n int64) {
	if dc.size+n <= dc.capacity {
		return
	}

	keys := make([]string, 0, len(dc.index))
	for key := range dc.index {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return dc.index[keys[i]].LastAccess.Before(dc.index[keys[j]].LastAccess)
	})

	for _, key := range keys {
		if dc.size+n <= dc.capacity {
			return
		}
		dc.drop(key)
		dc.stats.Evictions++
	}
}

// drop must be called with dc.mu held.
func (dc *DiskCache) drop(key string) {
	e := dc.index[key]
	if e == nil {
		return
	}
	if err := os.Remove(dc.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Leave the accounting alone; the file still occupies space.
		return
	}
	delete(dc.index, key)
	dc.size -= e.Size
}

func (dc *DiskCache) path(key string) string {
	return filepath.Join(dc.dir, key+".pcm.zst")
}

func (dc *DiskCache) saveIndex() error {
	data, err := json.Marshal(dc.index)
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dc.dir, indexFile), data)
}

// writeAtomic writes to a temp file and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
