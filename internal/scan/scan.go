package scan

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Summary is an inventory of a directory tree
type Summary struct {
	Root     string
	Files    int   // Regular files and other non-directory, non-link entries
	Dirs     int   // Directories below Root; Root itself is not counted
	Symlinks int   // Links are counted, never followed
	Bytes    int64 // Size of regular files
	ReadOnly int   // Entries missing owner write permission
	Errors   int   // Entries that could not be inspected
	ByExt    map[string]int
}

// Entries returns the number of entries below Root
func (s Summary) Entries() int {
	return s.Files + s.Dirs + s.Symlinks
}

// Tree walks root without following links and counts what it finds.
// Unreadable entries are tallied in Errors rather than aborting the walk;
// only a failure to stat root itself is returned.
func Tree(root string) (Summary, error) {
	sum := Summary{Root: root, ByExt: make(map[string]int)}

	if _, err := os.Lstat(root); err != nil {
		return sum, err
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			sum.Errors++
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			sum.Errors++
			return nil
		}
		if info.Mode().Perm()&0o200 == 0 {
			sum.ReadOnly++
		}

		switch {
		case path == root:
		case d.IsDir():
			sum.Dirs++
		case d.Type()&fs.ModeSymlink != 0:
			sum.Symlinks++
		default:
			sum.Files++
			if info.Mode().IsRegular() {
				sum.Bytes += info.Size()
			}
			sum.ByExt[filepath.Ext(path)]++
		}
		return nil
	})

	return sum, err
}
