// Package logbackend provides the overlay node's leveled logging backend.
//
// It reconstructs the small surface katzenpost/core/log exposed to the
// client packages we are descended from (Backend, GetLogger) on top of
// gopkg.in/op/go-logging.v1 directly, since the wrapper package itself
// never shipped in isolation.
package logbackend

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/op/go-logging.v1"
)

var logFormat = logging.MustStringFormatter(
	"%{level:.4s} %{id:03x} %{module} %{message}",
)

// Backend is a named, leveled logging.LeveledBackend factory.
type Backend struct {
	backend logging.LeveledBackend
	level   logging.Level
}

// New creates a Backend writing to w (os.Stderr when w is nil) at the
// given level name (DEBUG, INFO, NOTICE, WARNING, ERROR, CRITICAL).
func New(w io.Writer, level string) (*Backend, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logbackend: invalid level %q: %w", level, err)
	}
	raw := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(raw, logFormat)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	return &Backend{backend: leveled, level: lvl}, nil
}

// GetLogger returns a logger scoped to the given component name.
func (b *Backend) GetLogger(name string) *logging.Logger {
	log := logging.MustGetLogger(name)
	log.SetBackend(b.backend)
	return log
}
