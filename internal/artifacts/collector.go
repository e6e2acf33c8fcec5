// Package artifacts tracks files created by the remote task and delivers
// them to the session thread at the end of a run.
package artifacts

import "sync"

// Record identifies one remote artifact.
type Record struct {
	RemotePath  string
	DisplayName string
}

// Collector is the per-session artifact list. Adds are idempotent on the
// (RemotePath, DisplayName) pair; insertion order is preserved.
type Collector struct {
	mu      sync.Mutex
	records []Record
	index   map[Record]struct{}
}

func NewCollector() *Collector {
	return &Collector{index: map[Record]struct{}{}}
}

// Add tracks an artifact, reporting whether it was new.
func (c *Collector) Add(remotePath, displayName string) bool {
	rec := Record{RemotePath: remotePath, DisplayName: displayName}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[rec]; ok {
		return false
	}
	c.index[rec] = struct{}{}
	c.records = append(c.records, rec)
	return true
}

func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a snapshot in insertion order.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
	c.index = map[Record]struct{}{}
}
