package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arthur-debert/dotapply/pkg/types"
)

// osFS implements types.FS on the host filesystem
type osFS struct{}

// NewOS creates the host filesystem implementation
func NewOS() types.FS {
	return &osFS{}
}

func (o *osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (o *osFS) Lstat(name string) (fs.FileInfo, error) { return os.Lstat(name) }
func (o *osFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (o *osFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (o *osFS) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }
func (o *osFS) Symlink(oldname, newname string) error { return os.Symlink(oldname, newname) }
func (o *osFS) Readlink(name string) (string, error) { return os.Readlink(name) }
func (o *osFS) Remove(name string) error { return os.Remove(name) }
func (o *osFS) RemoveAll(path string) error { return os.RemoveAll(path) }
func (o *osFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }
func (o *osFS) Chmod(name string, mode fs.FileMode) error { return os.Chmod(name, mode) }

// WriteFile writes through a temporary file in the same directory and
// renames it into place. The file carries perm before it becomes visible
// at name, and a failed write never leaves a truncated file behind.
func (o *osFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, name)
}
