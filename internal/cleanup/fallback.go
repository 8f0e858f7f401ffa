package cleanup

import (
	"fmt"
	"os"
	"path/filepath"

	"depot-tools/internal/fsops"
)

type walkEntry struct {
	path  string
	isDir bool
	size  int64
}

// removeFallback is the manual bottom-up pass: every entry is made writable
// and removed once, deepest first; failures are logged and skipped. Only a
// root that survives is returned as an error.
func (c *Cleaner) removeFallback(root string, res *Result) error {
	var entries []walkEntry
	c.collect(root, &entries, res)

	for _, e := range entries {
		op := OpRemove
		if e.isDir {
			op = OpRmdir
		}

		if err := fsops.ClearProtection(c.deleter, e.path, e.isDir); err != nil && !os.IsNotExist(err) {
			c.fail(res, op, e.path, err)
			fmt.Fprintf(c.out, "Could not delete %s: %s: %v\n", kind(e.isDir), e.path, err)
			continue
		}
		if err := c.deleter.Remove(e.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			c.fail(res, op, e.path, err)
			fmt.Fprintf(c.out, "Could not delete %s: %s: %v\n", kind(e.isDir), e.path, err)
			continue
		}
		c.removed(res, e.isDir, e.size)
	}

	if err := c.deleter.Remove(root); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	c.removed(res, true, 0)
	return nil
}

// collect lists dir recursively in post-order, so children always precede
// their parent. Directories are made listable before being read.
func (c *Cleaner) collect(dir string, out *[]walkEntry, res *Result) {
	_ = fsops.ClearProtection(c.deleter, dir, true)

	children, err := c.deleter.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.fail(res, OpReadDir, dir, err)
		}
		return
	}

	for _, ch := range children {
		p := filepath.Join(dir, ch.Name())
		if ch.IsDir() {
			c.collect(p, out, res)
			*out = append(*out, walkEntry{path: p, isDir: true})
			continue
		}
		*out = append(*out, walkEntry{path: p, size: entrySize(ch)})
	}
}

func kind(isDir bool) string {
	if isDir {
		return "directory"
	}
	return "file"
}
