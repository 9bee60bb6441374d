package specialty

import (
	"sync"

	"npisearch/internal/logger"
)

// Cache loads the side table once and hands out the same Mapping afterwards.
// A failed load is cached as an empty Mapping until Reload is called.
type Cache struct {
	path string
	log  logger.Logger

	mu      sync.Mutex
	loaded  bool
	mapping Mapping
	report  LoadReport
	err     error
}

func NewCache(path string, log logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{path: path, log: log}
}

// Get returns the cached Mapping, loading it on first use.
func (c *Cache) Get() Mapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.loadLocked()
	}
	return c.mapping
}

// Reload drops the cached Mapping and reads the side table again.
func (c *Cache) Reload() (Mapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return c.mapping, c.err
}

// Status returns the report and error of the last load.
func (c *Cache) Status() (LoadReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report, c.err
}

func (c *Cache) loadLocked() {
	mapping, report, err := Load(c.path)
	c.mapping, c.report, c.err, c.loaded = mapping, report, err, true
	if err != nil {
		c.log.Error("specialty table unavailable, derived specialties will be empty", "path", c.path, "err", err)
		return
	}
	if report.SkippedRows > 0 {
		c.log.Warn("specialty rows without id or name skipped", "path", c.path, "skipped", report.SkippedRows)
	}
	if len(report.DuplicateIDs) > 0 {
		c.log.Warn("duplicate specialty ids, last row wins", "path", c.path, "ids", report.DuplicateIDs)
	}
	c.log.Debug("specialty table loaded", "path", c.path, "entries", report.Entries)
}
