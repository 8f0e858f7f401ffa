package fsops

import "os"

// OSDeleter implements Deleter using real os package calls
type OSDeleter struct{}

func (OSDeleter) Remove(path string) error {
	return os.Remove(path)
}

func (OSDeleter) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

func (OSDeleter) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

func (OSDeleter) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}
