// Package host declares the unikernel primitives the Linux personality is
// built on. The kernel proper never reaches outside these interfaces; the
// surrounding unikernel (or a test) supplies the implementations.
package host

import (
	"github.com/keelos/pengolin/models"
)

// FileInfo is the host's stat record. Mode carries the S_IF* type bits.
type FileInfo struct {
	Name  string
	Ino   uint64
	Mode  uint32
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Rdev  uint64
	Size  int64
	Atime int64
	Mtime int64
	Ctime int64
}

// File is one open host object. Regular files honor off; character
// devices and sockets ignore it.
type File interface {
	Read(p []byte, off int64) (int, error)
	Write(p []byte, off int64) (int, error)
	Stat() (*FileInfo, error)
	Truncate(size int64) error
	Close() error
}

// FileSystem is the path-keyed filesystem primitive. Errors are
// native.Errno values.
type FileSystem interface {
	Open(path string, flags int, mode uint32) (File, error)
	Stat(path string) (*FileInfo, error)
	Mkdir(path string, mode uint32) error
	Unlink(path string) error
	Rmdir(path string) error
	Rename(oldpath, newpath string) error
	ReadDir(path string) ([]FileInfo, error)
	Mount(src, dst, fstype string, flags uint64) error
	Unmount(dst string) error
}

// Scheduler is the task primitive. The personality blocks and wakes tasks
// itself; it only needs the unikernel to start and retire them.
type Scheduler interface {
	// Spawn makes a new user task runnable with the given initial frame.
	Spawn(pid int, ctx models.TrapContext) error
	// Exit retires a task that has fully exited (post-reap).
	Exit(pid int, status int)
	Yield()
}

// Net is the socket primitive. A nil Net makes socket syscalls fail with
// EAFNOSUPPORT.
type Net interface {
	Socket(domain, typ, proto int) (File, error)
}
