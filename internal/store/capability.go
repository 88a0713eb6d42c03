package store

import (
	"path"
	"path/filepath"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
)

const probeName = ".dictload-probe"

// FSCapability returns a probe reporting whether root on fsys can be created and written.
func FSCapability(fsys core.FS, root string) func() bool {
	return func() bool {
		if fsys == nil {
			return false
		}
		if err := fsys.MkdirAll(root, 0o755); err != nil {
			return false
		}
		probe := path.Join(root, probeName)
		if err := fsys.WriteFile(probe, []byte("ok"), 0o600); err != nil {
			return false
		}
		_ = fsys.Remove(probe)
		return true
	}
}

// DirCapability returns a probe reporting whether dir on local disk can be created and written.
// An empty dir reports false.
func DirCapability(dir string) func() bool {
	return func() bool {
		if dir == "" {
			return false
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return false
		}
		return FSCapability(billy.NewLocal(), filepath.ToSlash(abs))()
	}
}
