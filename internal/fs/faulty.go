package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the failure Faulty injects unless overridden.
var ErrInjected = errors.New("fs: injected fault")

// Faulty wraps a FileSystem and injects failures at chosen points. The
// zero configuration injects nothing.
type Faulty struct {
	FS FileSystem

	mu          sync.Mutex
	err         error
	writeBudget int64
	written     int64
	failSync    bool
	failCreate  string
	failRename  string
}

// NewFaulty wraps fsys, or Default when fsys is nil.
func NewFaulty(fsys FileSystem) *Faulty {
	if fsys == nil {
		fsys = Default
	}
	return &Faulty{FS: fsys, err: ErrInjected, writeBudget: -1}
}

// SetErr replaces the injected error.
func (f *Faulty) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetWriteBudget makes writes fail once n total bytes have been written
// across all files. Negative disables the budget.
func (f *Faulty) SetWriteBudget(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeBudget = n
	f.written = 0
}

// FailSync makes Sync fail on every file opened afterwards.
func (f *Faulty) FailSync(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSync = on
}

// FailCreateOf makes Create fail for paths containing substr. Empty
// disables.
func (f *Faulty) FailCreateOf(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate = substr
}

// FailRenameOf makes Rename fail when the destination contains substr.
// Empty disables.
func (f *Faulty) FailRenameOf(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRename = substr
}

// Written reports total bytes written through the wrapper.
func (f *Faulty) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

func (f *Faulty) Create(name string) (File, error) {
	f.mu.Lock()
	failCreate, failSync, err := f.failCreate, f.failSync, f.err
	f.mu.Unlock()

	if failCreate != "" && strings.Contains(name, failCreate) {
		return nil, err
	}
	file, cerr := f.FS.Create(name)
	if cerr != nil {
		return nil, cerr
	}
	return &faultyFile{File: file, fs: f, failSync: failSync}, nil
}

func (f *Faulty) Open(name string) (File, error) { return f.FS.Open(name) }
func (f *Faulty) Remove(name string) error       { return f.FS.Remove(name) }

func (f *Faulty) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	failRename, err := f.failRename, f.err
	f.mu.Unlock()

	if failRename != "" && strings.Contains(newpath, failRename) {
		return err
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *Faulty) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	fs       *Faulty
	failSync bool
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	ff.fs.mu.Lock()
	exceeded := ff.fs.writeBudget >= 0 && ff.fs.written+int64(len(p)) > ff.fs.writeBudget
	err := ff.fs.err
	if !exceeded {
		ff.fs.written += int64(len(p))
	}
	ff.fs.mu.Unlock()

	if exceeded {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) Sync() error {
	if ff.failSync {
		ff.fs.mu.Lock()
		err := ff.fs.err
		ff.fs.mu.Unlock()
		return err
	}
	return ff.File.Sync()
}
