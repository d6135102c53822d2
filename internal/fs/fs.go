package fs

import (
	"io"
	"os"
)

// File is an open file handle. Archive bundles are streamed sequentially,
// so no seeking surface is exposed.
type File interface {
	io.Reader
	io.Writer
	io.Closer
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem abstracts the archive directory so tests can inject faults.
type FileSystem interface {
	// Create opens name for writing, truncating any existing file.
	Create(name string) (File, error)

	// Open opens name for reading.
	Open(name string) (File, error)

	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
}

// Local is the os-backed FileSystem.
type Local struct{}

func (Local) Create(name string) (File, error)      { return os.Create(name) }
func (Local) Open(name string) (File, error)        { return os.Open(name) }
func (Local) Remove(name string) error              { return os.Remove(name) }
func (Local) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
func (Local) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (Local) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Default is the local filesystem.
var Default FileSystem = Local{}
