// Package logging sets up the process-wide slog backend, writing to stderr
// and optionally to a rotated log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// Manager owns the log backend and file rotator.
type Manager struct {
	backend *slog.Backend
	rotator *rotator.Rotator
	level   slog.Level
}

type teeWriter struct {
	rot *rotator.Rotator
}

func (w teeWriter) Write(p []byte) (int, error) {
	os.Stderr.Write(p)
	if w.rot != nil {
		w.rot.Write(p)
	}
	return len(p), nil
}

// New builds a manager at the given level name. An empty logFile disables
// file logging.
func New(logFile, level string) (*Manager, error) {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	m := &Manager{level: lvl}
	var w io.Writer = teeWriter{}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		rot, err := rotator.New(logFile, 32*1024, false, 3)
		if err != nil {
			return nil, fmt.Errorf("open log rotator: %w", err)
		}
		m.rotator = rot
		w = teeWriter{rot: rot}
	}
	m.backend = slog.NewBackend(w)
	return m, nil
}

// Logger returns a subsystem logger at the manager's level.
func (m *Manager) Logger(tag string) slog.Logger {
	l := m.backend.Logger(tag)
	l.SetLevel(m.level)
	return l
}

// Close flushes and closes the rotated file.
func (m *Manager) Close() error {
	if m.rotator != nil {
		return m.rotator.Close()
	}
	return nil
}

// Discard returns a logger that drops everything, for tests.
func Discard() slog.Logger {
	return slog.Disabled
}
