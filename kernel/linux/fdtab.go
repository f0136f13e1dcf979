package linux

import (
	"sync"
	"sync/atomic"

	"github.com/keelos/pengolin/host"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

// FileDesc is one open file description: host file or pipe end plus the
// file offset and status flags. dup and fork share the description, so the
// offset moves for every holder.
type FileDesc struct {
	mu    sync.Mutex
	refs  int32
	f     host.File
	pipe  *pipeEnd
	path  string
	flags enum.OpenFlag
	off   int64

	// getdents cursor
	dents []host.FileInfo
	dread bool
	dpos  int
}

func newFileDesc(f host.File, path string, flags enum.OpenFlag) *FileDesc {
	return &FileDesc{refs: 1, f: f, path: path, flags: flags}
}

func (d *FileDesc) IncRef() *FileDesc {
	atomic.AddInt32(&d.refs, 1)
	return d
}

func (d *FileDesc) DecRef() {
	if atomic.AddInt32(&d.refs, -1) == 0 {
		if d.pipe != nil {
			d.pipe.close()
		}
		if d.f != nil {
			d.f.Close()
		}
	}
}

func (d *FileDesc) readable() bool {
	acc := d.flags & enum.O_ACCMODE
	return acc == enum.O_RDONLY || acc == enum.O_RDWR
}

func (d *FileDesc) writable() bool {
	acc := d.flags & enum.O_ACCMODE
	return acc == enum.O_WRONLY || acc == enum.O_RDWR
}

// Read advances the shared offset. p is the calling task, used by pipe
// ends to sleep interruptibly.
func (d *FileDesc) Read(p *Process, buf []byte) (int, error) {
	if !d.readable() {
		return 0, native.EBADF
	}
	if d.pipe != nil {
		return d.pipe.read(p, buf, d.flags&enum.O_NONBLOCK != 0)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.f.Read(buf, d.off)
	d.off += int64(n)
	return n, err
}

func (d *FileDesc) Write(p *Process, buf []byte) (int, error) {
	if !d.writable() {
		return 0, native.EBADF
	}
	if d.pipe != nil {
		return d.pipe.pump(p, buf, d.flags&enum.O_NONBLOCK != 0)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flags&enum.O_APPEND != 0 {
		if fi, err := d.f.Stat(); err == nil {
			d.off = fi.Size
		}
	}
	n, err := d.f.Write(buf, d.off)
	d.off += int64(n)
	return n, err
}

func (d *FileDesc) Pread(buf []byte, off int64) (int, error) {
	if !d.readable() {
		return 0, native.EBADF
	}
	if d.pipe != nil {
		return 0, native.ESPIPE
	}
	return d.f.Read(buf, off)
}

func (d *FileDesc) Pwrite(buf []byte, off int64) (int, error) {
	if !d.writable() {
		return 0, native.EBADF
	}
	if d.pipe != nil {
		return 0, native.ESPIPE
	}
	return d.f.Write(buf, off)
}

func (d *FileDesc) Seek(off int64, whence int) (int64, error) {
	if d.pipe != nil {
		return 0, native.ESPIPE
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var base int64
	switch whence {
	case enum.SEEK_SET:
		base = 0
	case enum.SEEK_CUR:
		base = d.off
	case enum.SEEK_END:
		fi, err := d.f.Stat()
		if err != nil {
			return 0, err
		}
		base = fi.Size
	default:
		return 0, native.EINVAL
	}
	if base+off < 0 {
		return 0, native.EINVAL
	}
	d.off = base + off
	return d.off, nil
}

func (d *FileDesc) Stat() (*host.FileInfo, error) {
	if d.pipe != nil {
		return &host.FileInfo{Mode: enum.S_IFIFO | 0600, Nlink: 1}, nil
	}
	return d.f.Stat()
}

const fdLimit = 1024

type fdEntry struct {
	desc    *FileDesc
	cloexec bool
}

// FdTable is a refcounted descriptor table. CLONE_FILES shares it; plain
// fork copies the entries while sharing the descriptions underneath.
type FdTable struct {
	mu      sync.Mutex
	refs    int32
	entries map[int]*fdEntry
}

func NewFdTable() *FdTable {
	return &FdTable{refs: 1, entries: make(map[int]*fdEntry)}
}

func (t *FdTable) IncRef() *FdTable {
	atomic.AddInt32(&t.refs, 1)
	return t
}

func (t *FdTable) DecRef() {
	if atomic.AddInt32(&t.refs, -1) == 0 {
		t.mu.Lock()
		defer t.mu.Unlock()
		for fd, e := range t.entries {
			e.desc.DecRef()
			delete(t.entries, fd)
		}
	}
}

func (t *FdTable) Fork() *FdTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := NewFdTable()
	for fd, e := range t.entries {
		n.entries[fd] = &fdEntry{desc: e.desc.IncRef(), cloexec: e.cloexec}
	}
	return n
}

func (t *FdTable) Get(fd int) (*FileDesc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[fd]; ok {
		return e.desc, nil
	}
	return nil, native.EBADF
}

// Install places desc at the lowest free slot >= min, taking ownership of
// the caller's reference.
func (t *FdTable) Install(min int, desc *FileDesc, cloexec bool) (int, error) {
	if min < 0 {
		return 0, native.EINVAL
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd := min; fd < fdLimit; fd++ {
		if _, ok := t.entries[fd]; !ok {
			t.entries[fd] = &fdEntry{desc: desc, cloexec: cloexec}
			return fd, nil
		}
	}
	return 0, native.EMFILE
}

// Dup2 places a new reference to oldfd's description at newfd, closing
// whatever was there.
func (t *FdTable) Dup2(oldfd, newfd int, cloexec bool) (int, error) {
	if newfd < 0 || newfd >= fdLimit {
		return 0, native.EBADF
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[oldfd]
	if !ok {
		return 0, native.EBADF
	}
	if oldfd == newfd {
		return newfd, nil
	}
	if old, ok := t.entries[newfd]; ok {
		old.desc.DecRef()
	}
	t.entries[newfd] = &fdEntry{desc: e.desc.IncRef(), cloexec: cloexec}
	return newfd, nil
}

func (t *FdTable) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return native.EBADF
	}
	delete(t.entries, fd)
	e.desc.DecRef()
	return nil
}

func (t *FdTable) Cloexec(fd int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[fd]; ok {
		return e.cloexec, nil
	}
	return false, native.EBADF
}

func (t *FdTable) SetCloexec(fd int, on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[fd]; ok {
		e.cloexec = on
		return nil
	}
	return native.EBADF
}

// OnExec closes every close-on-exec descriptor.
func (t *FdTable) OnExec() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, e := range t.entries {
		if e.cloexec {
			e.desc.DecRef()
			delete(t.entries, fd)
		}
	}
}
