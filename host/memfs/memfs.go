// Package memfs is an in-memory host.FileSystem, enough to bring up a
// userspace and run the conformance scenarios without real block drivers.
package memfs

import (
	"bytes"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/keelos/pengolin/host"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

type node struct {
	info host.FileInfo
	data []byte
}

type FS struct {
	mu      sync.Mutex
	nodes   map[string]*node
	mounts  map[string]string
	nextIno uint64

	Console *Console
}

func New() *FS {
	fs := &FS{
		nodes:   make(map[string]*node),
		mounts:  make(map[string]string),
		Console: &Console{},
	}
	fs.mkNode("/", enum.S_IFDIR|0o755)
	fs.mkNode("/dev", enum.S_IFDIR|0o755)
	fs.mkNode("/dev/console", enum.S_IFCHR|0o666)
	fs.mkNode("/tmp", enum.S_IFDIR|0o777)
	return fs
}

func (fs *FS) mkNode(p string, mode uint32) *node {
	fs.nextIno++
	n := &node{info: host.FileInfo{
		Name:  path.Base(p),
		Ino:   fs.nextIno,
		Mode:  mode,
		Nlink: 1,
		Mtime: time.Now().Unix(),
	}}
	fs.nodes[p] = n
	return n
}

func clean(p string) string {
	p = path.Clean("/" + p)
	return p
}

func (fs *FS) lookup(p string) (*node, string) {
	p = clean(p)
	return fs.nodes[p], p
}

// WriteFile seeds a file, creating parents. Used to provision images.
func (fs *FS) WriteFile(p string, data []byte, mode uint32) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = clean(p)
	for dir := path.Dir(p); dir != "/"; dir = path.Dir(dir) {
		if _, ok := fs.nodes[dir]; !ok {
			fs.mkNode(dir, enum.S_IFDIR|0o755)
		}
	}
	n := fs.mkNode(p, enum.S_IFREG|mode)
	n.data = append([]byte(nil), data...)
	n.info.Size = int64(len(data))
}

func (fs *FS) Open(p string, flags int, mode uint32) (host.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, p := fs.lookup(p)
	of := enum.OpenFlag(flags)
	if n == nil {
		if of&enum.O_CREAT == 0 {
			return nil, native.ENOENT
		}
		if _, ok := fs.nodes[path.Dir(p)]; !ok {
			return nil, native.ENOENT
		}
		n = fs.mkNode(p, enum.S_IFREG|(mode&0o7777))
	} else {
		if of&enum.O_CREAT != 0 && of&enum.O_EXCL != 0 {
			return nil, native.EEXIST
		}
		if n.info.Mode&enum.S_IFMT == enum.S_IFDIR && of&enum.O_ACCMODE != enum.O_RDONLY {
			return nil, native.EISDIR
		}
		if of&enum.O_DIRECTORY != 0 && n.info.Mode&enum.S_IFMT != enum.S_IFDIR {
			return nil, native.ENOTDIR
		}
	}
	if n.info.Mode&enum.S_IFMT == enum.S_IFCHR {
		return fs.Console, nil
	}
	if of&enum.O_TRUNC != 0 {
		n.data = nil
		n.info.Size = 0
	}
	return &file{fs: fs, n: n}, nil
}

func (fs *FS) Stat(p string) (*host.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, _ := fs.lookup(p)
	if n == nil {
		return nil, native.ENOENT
	}
	info := n.info
	return &info, nil
}

func (fs *FS) Mkdir(p string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, p := fs.lookup(p)
	if n != nil {
		return native.EEXIST
	}
	if _, ok := fs.nodes[path.Dir(p)]; !ok {
		return native.ENOENT
	}
	fs.mkNode(p, enum.S_IFDIR|(mode&0o7777))
	return nil
}

func (fs *FS) Unlink(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, p := fs.lookup(p)
	if n == nil {
		return native.ENOENT
	}
	if n.info.Mode&enum.S_IFMT == enum.S_IFDIR {
		return native.EISDIR
	}
	delete(fs.nodes, p)
	return nil
}

func (fs *FS) Rmdir(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, p := fs.lookup(p)
	if n == nil {
		return native.ENOENT
	}
	if n.info.Mode&enum.S_IFMT != enum.S_IFDIR {
		return native.ENOTDIR
	}
	for other := range fs.nodes {
		if strings.HasPrefix(other, p+"/") {
			return native.ENOTEMPTY
		}
	}
	delete(fs.nodes, p)
	return nil
}

func (fs *FS) Rename(oldpath, newpath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, oldpath := fs.lookup(oldpath)
	if n == nil {
		return native.ENOENT
	}
	newpath = clean(newpath)
	if _, ok := fs.nodes[path.Dir(newpath)]; !ok {
		return native.ENOENT
	}
	delete(fs.nodes, oldpath)
	n.info.Name = path.Base(newpath)
	fs.nodes[newpath] = n
	return nil
}

func (fs *FS) ReadDir(p string) ([]host.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, p := fs.lookup(p)
	if n == nil {
		return nil, native.ENOENT
	}
	if n.info.Mode&enum.S_IFMT != enum.S_IFDIR {
		return nil, native.ENOTDIR
	}
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}
	var out []host.FileInfo
	for other, on := range fs.nodes {
		if other == p || !strings.HasPrefix(other, prefix) {
			continue
		}
		if strings.Contains(other[len(prefix):], "/") {
			continue
		}
		out = append(out, on.info)
	}
	return out, nil
}

func (fs *FS) Mount(src, dst, fstype string, flags uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dst = clean(dst)
	if _, ok := fs.mounts[dst]; ok {
		return native.EBUSY
	}
	if _, ok := fs.nodes[dst]; !ok {
		return native.ENOENT
	}
	fs.mounts[dst] = fstype
	return nil
}

func (fs *FS) Unmount(dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dst = clean(dst)
	if _, ok := fs.mounts[dst]; !ok {
		return native.EINVAL
	}
	delete(fs.mounts, dst)
	return nil
}

type file struct {
	fs *FS
	n  *node
}

func (f *file) Read(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if off >= int64(len(f.n.data)) {
		return 0, nil
	}
	return copy(p, f.n.data[off:]), nil
}

func (f *file) Write(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if grow := off + int64(len(p)) - int64(len(f.n.data)); grow > 0 {
		f.n.data = append(f.n.data, make([]byte, grow)...)
	}
	copy(f.n.data[off:], p)
	f.n.info.Size = int64(len(f.n.data))
	f.n.info.Mtime = time.Now().Unix()
	return len(p), nil
}

func (f *file) Stat() (*host.FileInfo, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	info := f.n.info
	return &info, nil
}

func (f *file) Truncate(size int64) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if size <= int64(len(f.n.data)) {
		f.n.data = f.n.data[:size]
	} else {
		f.n.data = append(f.n.data, make([]byte, size-int64(len(f.n.data)))...)
	}
	f.n.info.Size = size
	return nil
}

func (f *file) Close() error { return nil }

// Console is the write-only character device backing fds 0-2 at boot.
type Console struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *Console) Read(p []byte, off int64) (int, error) { return 0, nil }

func (c *Console) Write(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *Console) Stat() (*host.FileInfo, error) {
	return &host.FileInfo{Name: "console", Mode: enum.S_IFCHR | 0o666}, nil
}

func (c *Console) Truncate(size int64) error { return native.EINVAL }
func (c *Console) Close() error              { return nil }

// Output returns everything written to the console so far.
func (c *Console) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
