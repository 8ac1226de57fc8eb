package templates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/certmint/certmint/pkg/log"
	"github.com/certmint/certmint/pkg/metrics"
)

// Downloader fetches template bytes by file id. Implemented by the file
// gateway client.
type Downloader interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Config holds cache settings.
type Config struct {
	// Dir is the disk tier location. Created if missing.
	Dir string
	// TTL bounds the age of both tiers.
	TTL time.Duration
	// SweepInterval is how often the background cleanup runs.
	SweepInterval time.Duration
}

// Stats is a point-in-time snapshot of cache population and traffic.
type Stats struct {
	MemoryEntries int   `json:"memory_entries"`
	MemoryBytes   int64 `json:"memory_bytes"`
	DiskEntries   int   `json:"disk_entries"`
	DiskBytes     int64 `json:"disk_bytes"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Downloads     int64 `json:"downloads"`
}

type entry struct {
	data      []byte
	fetchedAt time.Time
}

// Cache is a two-tier (memory, disk) template cache with per-template
// single-flight download. One batch of N certificates sharing a template
// costs one gateway download.
type Cache struct {
	downloader    Downloader
	dir           string
	ttl           time.Duration
	sweepInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	locks   map[string]*sync.Mutex

	hits      atomic.Int64
	misses    atomic.Int64
	downloads atomic.Int64

	stopCh chan struct{}
	logger zerolog.Logger
}

// New creates the cache and its disk directory.
func New(downloader Downloader, cfg Config) (*Cache, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{
		downloader:    downloader,
		dir:           cfg.Dir,
		ttl:           cfg.TTL,
		sweepInterval: cfg.SweepInterval,
		entries:       make(map[string]*entry),
		locks:         make(map[string]*sync.Mutex),
		stopCh:        make(chan struct{}),
		logger:        log.WithComponent("templates"),
	}, nil
}

// Get returns the template bytes, consulting memory, then disk, then the
// gateway. Concurrent calls for the same template serialize on a
// per-template mutex so a cold key is downloaded exactly once.
func (c *Cache) Get(ctx context.Context, templateID string) ([]byte, error) {
	lock := c.lockFor(templateID)
	lock.Lock()
	defer lock.Unlock()

	// Memory tier
	c.mu.Lock()
	e := c.entries[templateID]
	c.mu.Unlock()
	if e != nil && time.Since(e.fetchedAt) <= c.ttl {
		c.hits.Add(1)
		metrics.TemplateCacheLookups.WithLabelValues("memory").Inc()
		return e.data, nil
	}

	// Disk tier
	path := c.diskPath(templateID)
	if fi, err := os.Stat(path); err == nil && time.Since(fi.ModTime()) <= c.ttl {
		data, err := os.ReadFile(path)
		if err == nil {
			c.insert(templateID, data)
			c.hits.Add(1)
			metrics.TemplateCacheLookups.WithLabelValues("disk").Inc()
			return data, nil
		}
		// Unreadable disk entry falls through to download.
		c.logger.Warn().Err(err).Str("template_id", templateID).Msg("Failed to read cached template, re-downloading")
	}

	// Gateway
	c.misses.Add(1)
	metrics.TemplateCacheLookups.WithLabelValues("miss").Inc()

	data, err := c.downloader.Download(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to download template %s: %w", templateID, err)
	}
	c.downloads.Add(1)

	// Disk write failures are non-fatal; the memory tier stays authoritative.
	if err := c.writeDisk(path, data); err != nil {
		c.logger.Warn().Err(err).Str("template_id", templateID).Msg("Failed to cache template on disk")
	}
	c.insert(templateID, data)
	return data, nil
}

// Invalidate removes the template from both tiers. The per-template lock
// entry stays: an in-flight Get may hold it, and dropping it would let a
// concurrent Get mint a second lock and duplicate the download.
func (c *Cache) Invalidate(templateID string) {
	c.mu.Lock()
	delete(c.entries, templateID)
	c.updateGauges()
	c.mu.Unlock()

	_ = os.Remove(c.diskPath(templateID))
}

// CleanupExpired removes entries older than the TTL from both tiers and
// returns how many were dropped.
func (c *Cache) CleanupExpired() int {
	removed := 0
	now := time.Now()

	c.mu.Lock()
	for id, e := range c.entries {
		if now.Sub(e.fetchedAt) > c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	c.updateGauges()
	c.mu.Unlock()

	files, err := os.ReadDir(c.dir)
	if err != nil {
		return removed
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".pdf") {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > c.ttl {
			if os.Remove(filepath.Join(c.dir, f.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// Stats returns a snapshot of cache population and traffic counters.
func (c *Cache) Stats() Stats {
	st := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Downloads: c.downloads.Load(),
	}

	c.mu.Lock()
	st.MemoryEntries = len(c.entries)
	for _, e := range c.entries {
		st.MemoryBytes += int64(len(e.data))
	}
	c.mu.Unlock()

	files, err := os.ReadDir(c.dir)
	if err != nil {
		return st
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".pdf") {
			continue
		}
		if info, err := f.Info(); err == nil {
			st.DiskEntries++
			st.DiskBytes += info.Size()
		}
	}
	return st
}

// Start begins the background expiry sweep.
func (c *Cache) Start() {
	if c.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.sweepInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := c.CleanupExpired(); n > 0 {
					c.logger.Debug().Int("removed", n).Msg("Swept expired templates")
				}
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the background sweep.
func (c *Cache) Stop() {
	close(c.stopCh)
}

func (c *Cache) lockFor(templateID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[templateID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[templateID] = lock
	}
	return lock
}

func (c *Cache) insert(templateID string, data []byte) {
	c.mu.Lock()
	c.entries[templateID] = &entry{data: data, fetchedAt: time.Now()}
	c.updateGauges()
	c.mu.Unlock()
}

// updateGauges must be called with c.mu held.
func (c *Cache) updateGauges() {
	var bytes int64
	for _, e := range c.entries {
		bytes += int64(len(e.data))
	}
	metrics.TemplateCacheEntries.Set(float64(len(c.entries)))
	metrics.TemplateCacheBytes.Set(float64(bytes))
}

func (c *Cache) diskPath(templateID string) string {
	return filepath.Join(c.dir, templateID+".pdf")
}

// writeDisk writes to a temp file in the cache directory and renames it
// into place so readers never observe a partial template.
func (c *Cache) writeDisk(path string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
