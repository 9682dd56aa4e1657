// Package capture records raw EEG samples to CSV session files. A Sink owns
// at most one open session; writes are unbuffered so every row has reached
// the operating system by the time Write returns.
package capture

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	// Header is the first line of every session file.
	Header = "RawValue,Timestamp"

	// TimestampLayout formats the second column, e.g. 2026-10-16 14:03:22.517.
	TimestampLayout = "2006-01-02 15:04:05.000"

	filePrefix = "RawEEG_"
	fileExt    = ".csv"
)

// StorageError reports a session file that could not be opened, written,
// flushed, or closed.
type StorageError struct {
	Op   string // open, write, sync, close
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("capture: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SessionFileName returns the file name for a session started at t.
func SessionFileName(t time.Time) string {
	return filePrefix + t.Format("20060102_150405") + fileExt
}

// Summary describes a finished session.
type Summary struct {
	Path string `json:"path"`
	Rows int64  `json:"rows"`
}

// Sink serializes samples into the active session file. All methods are
// safe for concurrent use; Write and Stop share one lock so a row is never
// written against a half-closed file.
type Sink struct {
	log   *log.Logger
	fsync bool

	mu     sync.Mutex
	f      *os.File
	path   string
	rows   int64
	active bool
	buf    []byte
}

// Options configures a Sink.
type Options struct {
	Logger *log.Logger
	// Fsync forces each row to stable storage before Write returns.
	Fsync bool
}

// NewSink returns an idle sink.
func NewSink(opts Options) *Sink {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Sink{
		log:   logger,
		fsync: opts.Fsync,
		buf:   make([]byte, 0, 64),
	}
}

// Start opens path for append and writes the header. If a session is
// already active it is stopped first; an error from that stop is logged and
// does not prevent the new session from opening.
func (s *Sink) Start(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		sum, err := s.closeLocked()
		if err != nil {
			s.log.Printf("capture: implicit stop of %s: %v", sum.Path, err)
		} else {
			s.log.Printf("capture: implicit stop of %s after %d rows", sum.Path, sum.Rows)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &StorageError{Op: "open", Path: path, Err: err}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageError{Op: "open", Path: path, Err: err}
	}
	if _, err := f.WriteString(Header + "\n"); err != nil {
		_ = f.Close()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if s.fsync {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return &StorageError{Op: "sync", Path: path, Err: err}
		}
	}

	s.f = f
	s.path = path
	s.rows = 0
	s.active = true
	return nil
}

// Write appends one row. It is a no-op when no session is active. A failed
// write closes the session and returns a *StorageError.
func (s *Sink) Write(raw int, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}

	b := strconv.AppendInt(s.buf[:0], int64(raw), 10)
	b = append(b, ',')
	b = ts.AppendFormat(b, TimestampLayout)
	b = append(b, '\n')
	s.buf = b

	var err error
	op := "write"
	if _, err = s.f.Write(b); err == nil && s.fsync {
		op = "sync"
		err = s.f.Sync()
	}
	if err != nil {
		path := s.path
		if _, cerr := s.closeLocked(); cerr != nil {
			s.log.Printf("capture: close after failed %s: %v", op, cerr)
		}
		return &StorageError{Op: op, Path: path, Err: err}
	}

	s.rows++
	return nil
}

// Stop flushes and closes the active session. Stopping an idle sink returns
// a zero Summary and no error. The session is always deactivated, even when
// the returned error is non-nil.
func (s *Sink) Stop() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return Summary{}, nil
	}
	return s.closeLocked()
}

func (s *Sink) closeLocked() (Summary, error) {
	sum := Summary{Path: s.path, Rows: s.rows}
	f := s.f

	s.f = nil
	s.active = false

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return sum, &StorageError{Op: "sync", Path: sum.Path, Err: err}
	}
	if err := f.Close(); err != nil {
		return sum, &StorageError{Op: "close", Path: sum.Path, Err: err}
	}
	return sum, nil
}

// Active reports whether a session is open.
func (s *Sink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Current returns the path and row count of the active session.
func (s *Sink) Current() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return Summary{}, false
	}
	return Summary{Path: s.path, Rows: s.rows}, true
}
