package testutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxLinkHops bounds symlink resolution, matching the usual ELOOP limit
const maxLinkHops = 40

// MemoryFS implements types.FS with in-memory storage. Symlinks are real
// nodes: Lstat reports them, Stat and ReadFile follow them, and links in
// the middle of a path are always followed, as the kernel does.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string]*fileNode
	umask os.FileMode
	clock func() time.Time

	// Error injection
	errorPaths map[string]error

	// Statistics
	readCount int
	mutations int
}

// fileNode represents a file, directory or symlink in memory
type fileNode struct {
	name     string
	mode     os.FileMode
	modTime  time.Time
	content  []byte
	isDir    bool
	isLink   bool
	linkDest string
	children map[string]*fileNode
}

// NewMemoryFS creates a new in-memory filesystem
func NewMemoryFS() *MemoryFS {
	root := &fileNode{
		name:     "/",
		mode:     0755 | os.ModeDir,
		modTime:  time.Now(),
		isDir:    true,
		children: make(map[string]*fileNode),
	}

	return &MemoryFS{
		files:      map[string]*fileNode{"/": root},
		umask:      0022,
		clock:      time.Now,
		errorPaths: make(map[string]error),
	}
}

// WithClock sets the time source used for modification times
func (m *MemoryFS) WithClock(clock func() time.Time) *MemoryFS {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
	return m
}

func clean(path string) string {
	if !filepath.IsAbs(path) {
		path = "/" + path
	}
	return filepath.Clean(path)
}

// walk resolves path one component at a time. Links in the middle of the
// path are always followed, the final one only when followLast is set.
// It returns the resolved path of the final component and its node. When
// only the final component is missing, the resolved path is still returned
// so callers can create it; otherwise it is empty.
func (m *MemoryFS) walk(op, path string, followLast bool, hops *int) (string, *fileNode, error) {
	if err, ok := m.errorPaths[path]; ok {
		return "", nil, &fs.PathError{Op: op, Path: path, Err: err}
	}

	resolved, node := "/", m.files["/"]
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		last := i == len(parts)-1
		if !node.isDir {
			return "", nil, &fs.PathError{Op: op, Path: path, Err: errors.New("not a directory")}
		}

		next := filepath.Join(resolved, part)
		child, ok := node.children[part]
		if !ok {
			if last {
				return next, nil, &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
			}
			return "", nil, &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
		}

		if child.isLink && (!last || followLast) {
			*hops++
			if *hops > maxLinkHops {
				return "", nil, &fs.PathError{Op: op, Path: path, Err: errors.New("too many levels of symbolic links")}
			}
			dest, target, err := m.walk(op, clean(resolvedDest(next, child.linkDest)), true, hops)
			if err != nil {
				if !last {
					dest = ""
				}
				return dest, nil, err
			}
			resolved, node = dest, target
			continue
		}
		resolved, node = next, child
	}
	return resolved, node, nil
}

// lookup retrieves the node at path without following a final link
func (m *MemoryFS) lookup(op, path string) (*fileNode, string, error) {
	hops := 0
	resolved, node, err := m.walk(op, clean(path), false, &hops)
	return node, resolved, err
}

// follow resolves path and any final link down to a non-link node
func (m *MemoryFS) follow(op, path string) (*fileNode, string, error) {
	hops := 0
	resolved, node, err := m.walk(op, clean(path), true, &hops)
	return node, resolved, err
}

// parentOf returns the directory node that holds path, the final name and
// the resolved path the entry has once its parent is resolved
func (m *MemoryFS) parentOf(op, path string) (*fileNode, string, string, error) {
	path = clean(path)
	dir, base := filepath.Dir(path), filepath.Base(path)
	parent, realDir, err := m.follow(op, dir)
	if err != nil {
		return nil, "", "", err
	}
	if !parent.isDir {
		return nil, "", "", &fs.PathError{Op: op, Path: dir, Err: errors.New("not a directory")}
	}
	return parent, base, filepath.Join(realDir, base), nil
}

// ReadFile reads the entire file content, following symlinks
func (m *MemoryFS) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.readCount++

	node, _, err := m.follow("open", name)
	if err != nil {
		return nil, err
	}
	if node.isDir {
		return nil, &fs.PathError{Op: "read", Path: name, Err: errors.New("is a directory")}
	}

	content := make([]byte, len(node.content))
	copy(content, node.content)
	return content, nil
}

// WriteFile writes data to a file. Like os.WriteFile, the parent must exist
// and an existing file keeps its permissions. Writing through a symlink
// writes the link's destination.
func (m *MemoryFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, resolved, err := m.follow("open", name)
	if err == nil {
		if node.isDir {
			return &fs.PathError{Op: "open", Path: name, Err: errors.New("is a directory")}
		}
		node.content = append([]byte(nil), data...)
		node.modTime = m.clock()
		m.mutations++
		return nil
	}
	if resolved == "" || !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// resolved is the missing final entry, possibly a dangling link's destination
	parent, filename, resolved, err := m.parentOf("open", resolved)
	if err != nil {
		return err
	}

	node = &fileNode{
		name:    filename,
		mode:    perm &^ m.umask,
		modTime: m.clock(),
		content: append([]byte(nil), data...),
	}
	parent.children[filename] = node
	m.files[resolved] = node
	m.mutations++
	return nil
}

func resolvedDest(link, dest string) string {
	if filepath.IsAbs(dest) {
		return dest
	}
	return filepath.Join(filepath.Dir(link), dest)
}

// Stat returns file info, following symlinks
func (m *MemoryFS) Stat(name string) (os.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, _, err := m.follow("stat", name)
	if err != nil {
		return nil, err
	}
	return &fileInfo{node: node, name: filepath.Base(clean(name))}, nil
}

// Lstat returns file info without following symlinks
func (m *MemoryFS) Lstat(name string) (os.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, _, err := m.lookup("lstat", name)
	if err != nil {
		return nil, err
	}
	return &fileInfo{node: node, name: filepath.Base(clean(name))}, nil
}

// Chmod changes the permission bits of the node a path resolves to
func (m *MemoryFS) Chmod(name string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, _, err := m.follow("chmod", name)
	if err != nil {
		return err
	}
	node.mode = node.mode.Type() | mode.Perm()
	m.mutations++
	return nil
}

// Rename moves a node and everything under it
func (m *MemoryFS) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, from, err := m.lookup("rename", oldpath)
	if err != nil {
		return err
	}
	oldParent, oldName, _, err := m.parentOf("rename", from)
	if err != nil {
		return err
	}
	newParent, newName, to, err := m.parentOf("rename", newpath)
	if err != nil {
		return err
	}
	if existing, ok := m.files[to]; ok && existing.isDir && len(existing.children) > 0 {
		return &fs.PathError{Op: "rename", Path: newpath, Err: errors.New("directory not empty")}
	}

	moved := map[string]*fileNode{}
	for p, n := range m.files {
		if p == from || strings.HasPrefix(p, from+"/") {
			moved[to+strings.TrimPrefix(p, from)] = n
			delete(m.files, p)
		}
	}
	for p, n := range moved {
		m.files[p] = n
	}

	delete(oldParent.children, oldName)
	node.name = newName
	newParent.children[newName] = node
	m.mutations++
	return nil
}

// Remove removes a file, symlink or empty directory
func (m *MemoryFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, resolved, err := m.lookup("remove", name)
	if err != nil {
		return err
	}
	if node.isDir && len(node.children) > 0 {
		return &fs.PathError{Op: "remove", Path: name, Err: errors.New("directory not empty")}
	}

	parent, filename, _, err := m.parentOf("remove", resolved)
	if err != nil {
		return err
	}
	delete(parent.children, filename)
	delete(m.files, resolved)
	m.mutations++
	return nil
}

// RemoveAll removes a path and everything under it. Links are removed,
// never followed.
func (m *MemoryFS) RemoveAll(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, path, err := m.lookup("removeall", name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for p := range m.files {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.files, p)
		}
	}
	if parent, ok := m.files[filepath.Dir(path)]; ok && parent.isDir {
		delete(parent.children, filepath.Base(path))
	}
	m.mutations++
	return nil
}

// MkdirAll creates a directory and all necessary parents
func (m *MemoryFS) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mkdirAll(path, perm)
}

func (m *MemoryFS) mkdirAll(path string, perm os.FileMode) error {
	path = clean(path)

	if node, _, err := m.follow("mkdir", path); err == nil {
		if !node.isDir {
			return &fs.PathError{Op: "mkdir", Path: path, Err: errors.New("not a directory")}
		}
		return nil
	}

	if dir := filepath.Dir(path); dir != path {
		if err := m.mkdirAll(dir, perm); err != nil {
			return err
		}
	}

	parent, name, resolved, err := m.parentOf("mkdir", path)
	if err != nil {
		return err
	}
	if _, exists := parent.children[name]; exists {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
	}

	dir := &fileNode{
		name:     name,
		mode:     (perm &^ m.umask) | os.ModeDir,
		modTime:  m.clock(),
		isDir:    true,
		children: make(map[string]*fileNode),
	}
	parent.children[name] = dir
	m.files[resolved] = dir
	m.mutations++
	return nil
}

// Readlink returns the destination of a symbolic link
func (m *MemoryFS) Readlink(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, _, err := m.lookup("readlink", name)
	if err != nil {
		return "", err
	}
	if !node.isLink {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: errors.New("invalid argument")}
	}
	return node.linkDest, nil
}

// Symlink creates newname as a symbolic link to oldname
func (m *MemoryFS) Symlink(oldname, newname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, filename, linkPath, err := m.parentOf("symlink", newname)
	if err != nil {
		return err
	}
	if _, ok := parent.children[filename]; ok {
		return &fs.PathError{Op: "symlink", Path: newname, Err: fs.ErrExist}
	}

	node := &fileNode{
		name:     filename,
		mode:     0777 | os.ModeSymlink,
		modTime:  m.clock(),
		isLink:   true,
		linkDest: oldname,
	}
	parent.children[filename] = node
	m.files[linkPath] = node
	m.mutations++
	return nil
}

// ReadDir reads a directory and returns its entries sorted by name
func (m *MemoryFS) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, _, err := m.follow("readdir", name)
	if err != nil {
		return nil, err
	}
	if !node.isDir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errors.New("not a directory")}
	}

	entries := make([]fs.DirEntry, 0, len(node.children))
	for childName, child := range node.children {
		entries = append(entries, &dirEntry{
			name: childName,
			info: &fileInfo{node: child, name: childName},
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// SetModTime overrides the modification time of the node at path
func (m *MemoryFS) SetModTime(path string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, _, err := m.lookup("chtimes", path)
	if err != nil {
		return err
	}
	node.modTime = t
	return nil
}

// WithError configures the filesystem to return an error for a specific path
func (m *MemoryFS) WithError(path string, err error) *MemoryFS {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorPaths[clean(path)] = err
	return m
}

// Mutations returns the number of state-changing calls made so far
func (m *MemoryFS) Mutations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mutations
}

// Paths lists every stored path in sorted order
func (m *MemoryFS) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// fileInfo implements os.FileInfo
type fileInfo struct {
	node *fileNode
	name string
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return int64(len(fi.node.content)) }
func (fi *fileInfo) Mode() os.FileMode  { return fi.node.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.node.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.node.isDir }
func (fi *fileInfo) Sys() interface{}   { return nil }

// dirEntry implements fs.DirEntry
type dirEntry struct {
	name string
	info os.FileInfo
}

func (de *dirEntry) Name() string               { return de.name }
func (de *dirEntry) IsDir() bool                { return de.info.IsDir() }
func (de *dirEntry) Type() os.FileMode          { return de.info.Mode().Type() }
func (de *dirEntry) Info() (os.FileInfo, error) { return de.info, nil }
