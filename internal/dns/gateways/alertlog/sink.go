// Package alertlog persists, reads back, and announces raised alerts.
package alertlog

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// DefaultPath is the alert log location used when none is configured.
const DefaultPath = "alerts.log"

// ErrSinkClosed is returned by Append after Close.
var ErrSinkClosed = errors.New("alert sink closed")

// FileSink appends alert lines to a file. The file is opened lazily in
// append mode and created if absent. Each record is written with a single
// Write call under a mutex, so concurrent appends never interleave.
//
// After a failed write the handle is dropped and reopened on the next Append.
type FileSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// NewFileSink returns a sink for path. Nothing is opened until the first Append.
func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultPath
	}
	return &FileSink{path: path}
}

// Path returns the file the sink appends to.
func (s *FileSink) Path() string {
	return s.path
}

// Append writes rec as one line.
func (s *FileSink) Append(rec domain.AlertRecord) error {
	line := []byte(rec.Line() + "\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if s.file == nil {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open alert log %s: %w", s.path, err)
		}
		s.file = f
	}
	if _, err := s.file.Write(line); err != nil {
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to append to alert log %s: %w", s.path, err)
	}
	return nil
}

// Sync flushes the file to stable storage if it is open.
func (s *FileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Close syncs and closes the file. Further appends return ErrSinkClosed.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	syncErr := f.Sync()
	if err := f.Close(); err != nil {
		return err
	}
	return syncErr
}
