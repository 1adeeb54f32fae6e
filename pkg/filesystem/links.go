package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/types"
)

// maxLinkHops bounds link resolution, matching the usual ELOOP limit
const maxLinkHops = 40

// ResolveLinks returns the physical location of path by following every
// symlink among its components through fsys. The final component is only
// followed when followLast is set. Resolution stops at the first missing
// component; the rest of the path is appended as written.
func ResolveLinks(fsys types.FS, path string, followLast bool) (string, error) {
	if !filepath.IsAbs(path) {
		return "", errors.Newf(errors.ErrInvalidInput, "path must be absolute, got %q", path)
	}

	sep := string(filepath.Separator)
	resolved := sep
	rest := split(path)
	hops := 0
	for len(rest) > 0 {
		part := rest[0]
		rest = rest[1:]
		next := filepath.Join(resolved, part)
		if len(rest) == 0 && !followLast {
			return next, nil
		}

		info, err := fsys.Lstat(next)
		if os.IsNotExist(err) {
			return filepath.Join(append([]string{next}, rest...)...), nil
		}
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrFileAccess, "cannot inspect %s", next)
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		hops++
		if hops > maxLinkHops {
			return "", errors.Newf(errors.ErrFileAccess, "too many levels of symbolic links in %s", path)
		}
		dest, err := fsys.Readlink(next)
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrFileAccess, "cannot read link %s", next)
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(resolved, dest)
		}
		rest = append(split(dest), rest...)
		resolved = sep
	}
	return resolved, nil
}

func split(path string) []string {
	var parts []string
	for _, p := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
