// Package metrics tracks model download activity for the current session.
package metrics

import (
	"sync"
	"time"
)

// Download records one completed model download.
type Download struct {
	Path     string
	Bytes    int64
	Duration time.Duration
	When     time.Time
}

// Snapshot is a point-in-time summary of download activity.
type Snapshot struct {
	Downloads     int
	TotalBytes    int64
	TotalDuration time.Duration
	Last          *Download
}

// Tracker accumulates download records. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	downloads []Download
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record adds one completed download.
func (t *Tracker) Record(path string, bytes int64, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloads = append(t.downloads, Download{
		Path:     path,
		Bytes:    bytes,
		Duration: duration,
		When:     time.Now(),
	})
}

// Snapshot returns a summary of all recorded downloads.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{Downloads: len(t.downloads)}
	for _, d := range t.downloads {
		s.TotalBytes += d.Bytes
		s.TotalDuration += d.Duration
	}
	if n := len(t.downloads); n > 0 {
		last := t.downloads[n-1]
		s.Last = &last
	}
	return s
}
