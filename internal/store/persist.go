package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"pulsebridge/pkg/pulsetypes"
)

// Persisted file names, one per history buffer kind.
const (
	hrFileName     = "hr_history.json"
	windowFileName = "window_history.json"
)

// Persistor loads the history buffers from disk at startup and writes
// point-in-time snapshots back on a fixed cadence and at shutdown. Reads and
// writes both tolerate failure: the store keeps operating in memory and a
// failed write is retried on the next cycle.
type Persistor struct {
	store    *Store
	dir      string
	interval time.Duration
	logger   *log.Logger
}

// NewPersistor creates a persistor for the given store writing under dir.
func NewPersistor(s *Store, dir string, interval time.Duration, logger *log.Logger) *Persistor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Persistor{store: s, dir: dir, interval: interval, logger: logger}
}

// Load restores both buffers from their persisted files. A missing or
// malformed file leaves the corresponding buffer empty and is only logged.
func (p *Persistor) Load() {
	var samples []pulsetypes.Sample
	if ok := p.readFile(hrFileName, &samples); ok {
		p.store.RestoreSamples(samples)
		p.logger.Info("Loaded heart-rate history", "entries", len(samples))
	}

	var windows []pulsetypes.WindowInterval
	if ok := p.readFile(windowFileName, &windows); ok {
		p.store.RestoreWindows(windows)
		p.logger.Info("Loaded window history", "entries", len(windows))
	}
}

// Run flushes snapshots on the configured interval until ctx is cancelled,
// then performs one final flush. A failed flush never stops the loop.
func (p *Persistor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := p.Flush(); err != nil {
				p.logger.Error("Final flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := p.Flush(); err != nil {
				p.logger.Error("Periodic flush failed", "error", err)
			}
		}
	}
}

// Flush writes point-in-time snapshots of both buffers to disk. Snapshots
// are taken through the store's copy operations so the lock is held only for
// the copy, never for the disk write. Each file is written to a temp file in
// the same directory and renamed into place so a crash mid-write cannot
// corrupt the next successful read.
func (p *Persistor) Flush() error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if err := writeJSONAtomic(filepath.Join(p.dir, hrFileName), p.store.SnapshotSamples()); err != nil {
		return fmt.Errorf("write heart-rate history: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(p.dir, windowFileName), p.store.SnapshotWindows()); err != nil {
		return fmt.Errorf("write window history: %w", err)
	}
	return nil
}

// readFile reads one persisted buffer file into dst. It returns false when
// the file is absent or unreadable; malformed content is treated the same
// way so the process always starts.
func (p *Persistor) readFile(name string, dst interface{}) bool {
	path := filepath.Join(p.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Warn("Failed to read history file", "file", name, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		p.logger.Warn("Malformed history file, starting empty", "file", name, "error", err)
		return false
	}
	return true
}

// writeJSONAtomic serializes v to path via a temp file and rename.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}
