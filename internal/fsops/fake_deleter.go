package fsops

import (
	"errors"
	"os"
	"sync"
)

// ErrInjected is returned by FaultyDeleter for scripted failures.
var ErrInjected = errors.New("injected failure")

// FakeDeleter implements Deleter for testing
// Records all mutating calls without performing them; reads hit the real filesystem
type FakeDeleter struct {
	Calls []string
}

func (f *FakeDeleter) Remove(path string) error {
	f.Calls = append(f.Calls, "rm:"+path)
	return nil
}

func (f *FakeDeleter) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

func (f *FakeDeleter) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

func (f *FakeDeleter) Chmod(path string, mode os.FileMode) error {
	f.Calls = append(f.Calls, "chmod:"+path)
	return nil
}

// FaultyDeleter wraps another Deleter and fails scripted operations.
// RemoveFailures maps a path to the number of Remove calls that fail before
// the wrapped Deleter is consulted; a negative count fails forever.
// ReadDirFailures does the same for ReadDir.
type FaultyDeleter struct {
	Base            Deleter
	RemoveFailures  map[string]int
	ReadDirFailures map[string]int

	mu      sync.Mutex
	Removes map[string]int
	Chmods  []string
}

func (f *FaultyDeleter) base() Deleter {
	if f.Base == nil {
		return OSDeleter{}
	}
	return f.Base
}

func (f *FaultyDeleter) consume(m map[string]int, path string) bool {
	n, ok := m[path]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		m[path] = n - 1
	}
	return true
}

func (f *FaultyDeleter) Remove(path string) error {
	f.mu.Lock()
	if f.Removes == nil {
		f.Removes = make(map[string]int)
	}
	f.Removes[path]++
	fail := f.consume(f.RemoveFailures, path)
	f.mu.Unlock()

	if fail {
		return &os.PathError{Op: "remove", Path: path, Err: ErrInjected}
	}
	return f.base().Remove(path)
}

func (f *FaultyDeleter) Lstat(path string) (os.FileInfo, error) {
	return f.base().Lstat(path)
}

func (f *FaultyDeleter) ReadDir(path string) ([]os.DirEntry, error) {
	f.mu.Lock()
	fail := f.consume(f.ReadDirFailures, path)
	f.mu.Unlock()

	if fail {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: ErrInjected}
	}
	return f.base().ReadDir(path)
}

func (f *FaultyDeleter) Chmod(path string, mode os.FileMode) error {
	f.mu.Lock()
	f.Chmods = append(f.Chmods, path)
	f.mu.Unlock()
	return f.base().Chmod(path, mode)
}
