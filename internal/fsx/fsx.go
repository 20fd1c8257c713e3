// Package fsx provides atomic file writes for downloaded assets.
package fsx

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// Replaceable so tests can simulate rename failures.
var (
	renameFunc = os.Rename
	removeFunc = os.Remove
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// AtomicFile streams into a hidden temp file next to the destination and
// replaces the destination only on Commit. The destination never holds a
// partial write.
type AtomicFile struct {
	f    *os.File
	dst  string
	done bool
}

// CreateAtomic creates the parent directories of dst and opens a temp file beside it.
func CreateAtomic(dst string) (*AtomicFile, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, err
	}
	// Leading dot keeps the temp file out of media library views.
	f, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{f: f, dst: dst}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

// TempName is the path of the in-progress file.
func (a *AtomicFile) TempName() string {
	return a.f.Name()
}

// Commit flushes the temp file and renames it over the destination.
func (a *AtomicFile) Commit() error {
	if a.done {
		return errors.New("fsx: atomic file already finished")
	}
	a.done = true
	tmp := a.f.Name()

	if err := a.f.Chmod(filePerm); err != nil && runtime.GOOS != "windows" {
		_ = a.f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := a.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := renameFunc(tmp, a.dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	_ = syncDirBestEffort(filepath.Dir(a.dst))
	return nil
}

// Abort discards the temp file. Safe to call after Commit.
func (a *AtomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	_ = a.f.Close()
	_ = os.Remove(a.f.Name())
}

// WriteFileAtomic replaces dst with data.
func WriteFileAtomic(dst string, data []byte) error {
	af, err := CreateAtomic(dst)
	if err != nil {
		return err
	}
	if err := writeAll(af, data); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// IsRegularFile reports whether path exists and is a regular file. Errors read as false.
func IsRegularFile(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// RemoveFile deletes path; a missing file is not an error.
func RemoveFile(path string) error {
	err := removeFunc(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
