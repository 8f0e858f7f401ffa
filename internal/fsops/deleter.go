package fsops

import "os"

// Deleter abstracts the filesystem calls used by force-delete.
// Enables fault injection in tests so retry and fallback paths run
// regardless of the uid the tests execute under.
type Deleter interface {
	Remove(path string) error
	Lstat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.DirEntry, error)
	Chmod(path string, mode os.FileMode) error
}

// ClearProtection grants the owner read and write access to path, plus
// search access when it is a directory. Existing bits are preserved.
func ClearProtection(d Deleter, path string, isDir bool) error {
	info, err := d.Lstat(path)
	if err != nil {
		return err
	}
	// chmod follows links; the link itself never blocks removal.
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	want := info.Mode().Perm() | 0o600
	if isDir || info.IsDir() {
		want |= 0o700
	}
	if want == info.Mode().Perm() {
		return nil
	}
	return d.Chmod(path, want)
}
