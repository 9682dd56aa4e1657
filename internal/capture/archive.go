package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const archiveExt = ".zst"

// Archive compresses a finished session file into dir as <name>.csv.zst and
// removes the original. The returned path is the compressed file. If that
// archive already exists (a second session started in the same second), the
// session is appended to it as a further zstd frame; decoders read
// concatenated frames back to back.
func Archive(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &StorageError{Op: "open", Path: dir, Err: err}
	}

	in, err := os.Open(src)
	if err != nil {
		return "", &StorageError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	dst := filepath.Join(dir, filepath.Base(src)+archiveExt)
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", &StorageError{Op: "open", Path: tmp, Err: err}
	}
	defer os.Remove(tmp)

	if err := compressTo(out, in); err != nil {
		_ = out.Close()
		return "", &StorageError{Op: "write", Path: tmp, Err: err}
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return "", &StorageError{Op: "sync", Path: tmp, Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &StorageError{Op: "close", Path: tmp, Err: err}
	}

	if _, err := os.Stat(dst); err == nil {
		if err := appendFile(dst, tmp); err != nil {
			return "", err
		}
	} else if err := os.Rename(tmp, dst); err != nil {
		return "", &StorageError{Op: "write", Path: dst, Err: err}
	}

	_ = in.Close()
	if err := os.Remove(src); err != nil {
		return dst, fmt.Errorf("archive: remove original: %w", err)
	}
	return dst, nil
}

// appendFile copies the frame in src onto the end of dst.
func appendFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return &StorageError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageError{Op: "open", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return &StorageError{Op: "write", Path: dst, Err: err}
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return &StorageError{Op: "sync", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &StorageError{Op: "close", Path: dst, Err: err}
	}
	return nil
}

func compressTo(w io.Writer, r io.Reader) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, r); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// OpenArchived returns a reader over the decompressed contents of a
// .csv.zst session file. The caller must close it.
func OpenArchived(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("archive: %s: %w", path, err)
	}
	return &archivedReader{dec: dec, f: f}, nil
}

type archivedReader struct {
	dec *zstd.Decoder
	f   *os.File
}

func (r *archivedReader) Read(p []byte) (int, error) { return r.dec.Read(p) }

func (r *archivedReader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// Info describes one session file on disk.
type Info struct {
	Filename   string `json:"filename"`
	Dir        string `json:"dir"`
	Started    string `json:"started"`
	Size       int64  `json:"size"`
	Compressed bool   `json:"compressed"`
}

// List returns every session file found in dirs, newest first. Missing
// directories are skipped.
func List(dirs ...string) []Info {
	seen := make(map[string]bool)
	var out []Info
	for _, dir := range dirs {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			started, compressed, ok := ParseSessionName(e.Name())
			if !ok {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, Info{
				Filename:   e.Name(),
				Dir:        dir,
				Started:    started.Format(time.RFC3339),
				Size:       fi.Size(),
				Compressed: compressed,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Started > out[j].Started
	})
	return out
}

// ParseSessionName extracts the start time from "RawEEG_20261016_140322.csv"
// or its archived form.
func ParseSessionName(name string) (started time.Time, compressed bool, ok bool) {
	if strings.HasSuffix(name, archiveExt) {
		compressed = true
		name = strings.TrimSuffix(name, archiveExt)
	}
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	t, err := time.ParseInLocation("20060102_150405", stamp, time.Local)
	if err != nil {
		return time.Time{}, false, false
	}
	return t, compressed, true
}
