package capture

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestSink() *Sink {
	return NewSink(Options{Logger: log.New(io.Discard, "", 0)})
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestWrite_BeforeStartIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := newTestSink()

	if err := s.Write(100, time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if s.Active() {
		t.Error("sink should not be active")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files, found %d", len(entries))
	}
}

func TestStartWriteStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	s := newTestSink()

	if err := s.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t1 := time.Date(2026, 10, 16, 14, 3, 22, 517_000_000, time.Local)
	if err := s.Write(100, t1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sum, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sum.Path != path || sum.Rows != 1 {
		t.Errorf("summary = %+v", sum)
	}

	lines := readLines(t, path)
	want := []string{Header, "100,2026-10-16 14:03:22.517"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestWrite_VisibleBeforeStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	s := newTestSink()
	if err := s.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Write(-7, time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Header and row must already be on disk while the session is open.
	lines := readLines(t, path)
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "-7,") {
		t.Errorf("lines = %q", lines)
	}
}

func TestWrite_AfterStopIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	s := newTestSink()
	if err := s.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Write(1, time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if lines := readLines(t, path); len(lines) != 1 {
		t.Errorf("expected header only, got %q", lines)
	}
}

func TestStop_IdleIsNoop(t *testing.T) {
	s := newTestSink()
	sum, err := s.Stop()
	if err != nil || sum != (Summary{}) {
		t.Errorf("Stop() = %+v, %v", sum, err)
	}
}

func TestStart_WhileActiveStopsPrevious(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")
	s := newTestSink()

	if err := s.Start(first); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	_ = s.Write(1, time.Now())
	if err := s.Start(second); err != nil {
		t.Fatalf("Start second: %v", err)
	}
	_ = s.Write(2, time.Now())

	cur, ok := s.Current()
	if !ok || cur.Path != second || cur.Rows != 1 {
		t.Errorf("Current() = %+v, %v", cur, ok)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if lines := readLines(t, first); len(lines) != 2 || !strings.HasPrefix(lines[1], "1,") {
		t.Errorf("first session = %q", lines)
	}
	if lines := readLines(t, second); len(lines) != 2 || !strings.HasPrefix(lines[1], "2,") {
		t.Errorf("second session = %q", lines)
	}
}

func TestStart_UnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestSink()
	err := s.Start(filepath.Join(blocker, "session.csv"))
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StorageError", err)
	}
	if se.Op != "open" {
		t.Errorf("Op = %q, want open", se.Op)
	}
	if s.Active() {
		t.Error("sink must stay inactive after a failed start")
	}
}

func TestStart_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	if err := os.WriteFile(path, []byte("existing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newTestSink()
	if err := s.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, _ = s.Stop()

	lines := readLines(t, path)
	if len(lines) != 2 || lines[0] != "existing" || lines[1] != Header {
		t.Errorf("lines = %q", lines)
	}
}

var rowPattern = regexp.MustCompile(`^-?\d+,\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}$`)

func TestSink_ConcurrentWriteAndStop(t *testing.T) {
	for round := 0; round < 20; round++ {
		path := filepath.Join(t.TempDir(), fmt.Sprintf("stress-%d.csv", round))
		s := newTestSink()
		if err := s.Start(path); err != nil {
			t.Fatalf("Start: %v", err)
		}

		var wg sync.WaitGroup
		start := make(chan struct{})
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				<-start
				for i := 0; i < 200; i++ {
					if err := s.Write(w*1000+i-2048, time.Now()); err != nil {
						t.Errorf("Write: %v", err)
						return
					}
				}
			}(w)
		}

		var sum Summary
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			time.Sleep(time.Duration(round) * 50 * time.Microsecond)
			var err error
			sum, err = s.Stop()
			if err != nil {
				t.Errorf("Stop: %v", err)
			}
		}()

		close(start)
		wg.Wait()

		lines := readLines(t, path)
		if lines[0] != Header {
			t.Fatalf("first line = %q", lines[0])
		}
		rows := lines[1:]
		if len(rows) == 1 && rows[0] == "" {
			rows = nil
		}
		if int64(len(rows)) != sum.Rows {
			t.Errorf("round %d: file has %d rows, summary says %d", round, len(rows), sum.Rows)
		}
		for i, row := range rows {
			if !rowPattern.MatchString(row) {
				t.Fatalf("round %d: torn row %d: %q", round, i, row)
			}
		}
	}
}

func TestSessionFileName(t *testing.T) {
	ts := time.Date(2026, 10, 16, 9, 5, 7, 0, time.Local)
	if got := SessionFileName(ts); got != "RawEEG_20261016_090507.csv" {
		t.Errorf("SessionFileName = %q", got)
	}
}

func TestWrite_FailureClosesSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	s := newTestSink()
	if err := s.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Write(1, time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Pull the file out from under the session so the next row fails.
	_ = s.f.Close()

	err := s.Write(2, time.Now())
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Write error = %v, want *StorageError", err)
	}
	if se.Op != "write" || se.Path != path {
		t.Errorf("StorageError = %+v", se)
	}
	if !errors.Is(err, os.ErrClosed) {
		t.Errorf("error does not unwrap to os.ErrClosed: %v", err)
	}
	if s.Active() {
		t.Fatal("session still active after failed write")
	}
	if _, ok := s.Current(); ok {
		t.Fatal("Current reports a session after failed write")
	}

	if err := s.Write(3, time.Now()); err != nil {
		t.Fatalf("Write after failure = %v, want no-op", err)
	}
	if sum, err := s.Stop(); err != nil || sum != (Summary{}) {
		t.Fatalf("Stop after failure = %+v, %v", sum, err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "1,") {
		t.Fatalf("file = %q", lines)
	}
}

func TestStop_CloseFailureReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	s := newTestSink()
	if err := s.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = s.f.Close()

	sum, err := s.Stop()
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "sync" {
		t.Fatalf("Stop error = %v, want sync *StorageError", err)
	}
	if sum.Path != path {
		t.Errorf("summary path = %q", sum.Path)
	}
	if s.Active() {
		t.Fatal("session still active after failed stop")
	}
}
