package linux

import (
	gopath "path"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

// absPath resolves a user path against the task's working directory.
func (p *Process) absPath(path string) string {
	if !gopath.IsAbs(path) {
		path = gopath.Join(p.cwd, path)
	}
	return gopath.Clean(path)
}

// atPath resolves the dirfd/path pair of the *at syscalls.
func (p *Process) atPath(dirfd int, path string) (string, error) {
	if gopath.IsAbs(path) {
		return gopath.Clean(path), nil
	}
	if dirfd == enum.AT_FDCWD {
		return p.absPath(path), nil
	}
	desc, err := p.fds.Get(dirfd)
	if err != nil {
		return "", err
	}
	return gopath.Clean(gopath.Join(desc.path, path)), nil
}

// readPtrArray reads a NULL-terminated pointer vector of strings (argv,
// envp).
func (p *Process) readPtrArray(addr uint64) ([]string, error) {
	if addr == 0 {
		return nil, nil
	}
	step := uint64(p.Bits() / 8)
	var out []string
	buf := make([]byte, step)
	for i := 0; i < 4096; i++ {
		if _, err := p.mem.ReadAt(buf, addr); err != nil {
			return nil, err
		}
		ptr := p.UnpackAddr(buf)
		if ptr == 0 {
			return out, nil
		}
		s, err := p.mem.ReadStrAt(ptr)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		addr += step
	}
	return nil, native.E2BIG
}

// Linux truncates read/write counts to MAX_RW_COUNT.
const maxRWCount = 0x7ffff000

// ioCount clamps a user transfer length and verifies the guest range is
// mapped before the transfer buffer is allocated, so a hostile length
// cannot outgrow the kernel.
func (p *Process) ioCount(addr uint64, size co.Len) (uint64, error) {
	n := uint64(size)
	if n > maxRWCount {
		n = maxRWCount
	}
	if n > 0 && !p.mem.Mapped(addr, n) {
		return 0, native.EFAULT
	}
	return n, nil
}

func (lk *LinuxKernel) Read(fd co.Fd, buf co.Obuf, size co.Len) uint64 {
	p := lk.P
	desc, err := p.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	count, err := p.ioCount(buf.Addr, size)
	if err != nil {
		return Errno(err)
	}
	tmp := make([]byte, count)
	n, err := desc.Read(p, tmp)
	if err != nil {
		return Errno(err)
	}
	if n > 0 {
		if _, err := p.mem.WriteAt(tmp[:n], buf.Addr); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return uint64(n)
}

func (lk *LinuxKernel) Write(fd co.Fd, buf co.Buf, size co.Len) uint64 {
	p := lk.P
	desc, err := p.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	count, err := p.ioCount(buf.Addr, size)
	if err != nil {
		return Errno(err)
	}
	tmp := make([]byte, count)
	if _, err := p.mem.ReadAt(tmp, buf.Addr); err != nil {
		return Errno(native.EFAULT)
	}
	n, err := desc.Write(p, tmp)
	if err != nil {
		return Errno(err)
	}
	return uint64(n)
}

func (lk *LinuxKernel) Pread64(fd co.Fd, buf co.Obuf, size co.Len, off co.Off) uint64 {
	p := lk.P
	desc, err := p.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	count, err := p.ioCount(buf.Addr, size)
	if err != nil {
		return Errno(err)
	}
	tmp := make([]byte, count)
	n, err := desc.Pread(tmp, int64(off))
	if err != nil {
		return Errno(err)
	}
	if n > 0 {
		if _, err := p.mem.WriteAt(tmp[:n], buf.Addr); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return uint64(n)
}

func (lk *LinuxKernel) Pwrite64(fd co.Fd, buf co.Buf, size co.Len, off co.Off) uint64 {
	p := lk.P
	desc, err := p.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	count, err := p.ioCount(buf.Addr, size)
	if err != nil {
		return Errno(err)
	}
	tmp := make([]byte, count)
	if _, err := p.mem.ReadAt(tmp, buf.Addr); err != nil {
		return Errno(native.EFAULT)
	}
	n, err := desc.Pwrite(tmp, int64(off))
	if err != nil {
		return Errno(err)
	}
	return uint64(n)
}

func (lk *LinuxKernel) open(path string, flags enum.OpenFlag, mode int) uint64 {
	p := lk.P
	f, err := p.k.fs.Open(path, int(flags), uint32(mode)&^p.umask)
	if err != nil {
		return Errno(err)
	}
	desc := newFileDesc(f, path, flags)
	fd, err := p.fds.Install(0, desc, flags&enum.O_CLOEXEC != 0)
	if err != nil {
		desc.DecRef()
		return Errno(err)
	}
	return uint64(fd)
}

func (lk *LinuxKernel) Open(path string, flags enum.OpenFlag, mode int) uint64 {
	return lk.open(lk.P.absPath(path), flags, mode)
}

func (lk *LinuxKernel) Openat(dirfd co.Fd, path string, flags enum.OpenFlag, mode int) uint64 {
	abs, err := lk.P.atPath(int(dirfd), path)
	if err != nil {
		return Errno(err)
	}
	return lk.open(abs, flags, mode)
}

func (lk *LinuxKernel) Creat(path string, mode int) uint64 {
	return lk.Open(path, enum.O_CREAT|enum.O_WRONLY|enum.O_TRUNC, mode)
}

func (lk *LinuxKernel) Close(fd co.Fd) uint64 {
	return Errno(lk.P.fds.Close(int(fd)))
}

func (lk *LinuxKernel) Lseek(fd co.Fd, off co.Off, whence int) uint64 {
	desc, err := lk.P.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	pos, err := desc.Seek(int64(off), whence)
	if err != nil {
		return Errno(err)
	}
	return uint64(pos)
}

func (lk *LinuxKernel) Dup(fd co.Fd) uint64 {
	t := lk.P.fds
	desc, err := t.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	nfd, err := t.Install(0, desc.IncRef(), false)
	if err != nil {
		desc.DecRef()
		return Errno(err)
	}
	return uint64(nfd)
}

func (lk *LinuxKernel) Dup2(oldfd, newfd co.Fd) uint64 {
	nfd, err := lk.P.fds.Dup2(int(oldfd), int(newfd), false)
	if err != nil {
		return Errno(err)
	}
	return uint64(nfd)
}

func (lk *LinuxKernel) Dup3(oldfd, newfd co.Fd, flags enum.OpenFlag) uint64 {
	if oldfd == newfd || flags&^enum.O_CLOEXEC != 0 {
		return Errno(native.EINVAL)
	}
	nfd, err := lk.P.fds.Dup2(int(oldfd), int(newfd), flags&enum.O_CLOEXEC != 0)
	if err != nil {
		return Errno(err)
	}
	return uint64(nfd)
}

func (lk *LinuxKernel) pipe2(fds co.Obuf, flags enum.OpenFlag) uint64 {
	p := lk.P
	if flags&^(enum.O_CLOEXEC|enum.O_NONBLOCK) != 0 {
		return Errno(native.EINVAL)
	}
	r, w := p.k.newPipe(flags & enum.O_NONBLOCK)
	cloexec := flags&enum.O_CLOEXEC != 0
	rfd, err := p.fds.Install(0, r, cloexec)
	if err != nil {
		r.DecRef()
		w.DecRef()
		return Errno(err)
	}
	wfd, err := p.fds.Install(0, w, cloexec)
	if err != nil {
		p.fds.Close(rfd)
		w.DecRef()
		return Errno(err)
	}
	var buf [8]byte
	p.order.PutUint32(buf[0:], uint32(rfd))
	p.order.PutUint32(buf[4:], uint32(wfd))
	if _, err := p.mem.WriteAt(buf[:], fds.Addr); err != nil {
		p.fds.Close(rfd)
		p.fds.Close(wfd)
		return Errno(native.EFAULT)
	}
	return 0
}

func (lk *LinuxKernel) Pipe(fds co.Obuf) uint64 {
	return lk.pipe2(fds, 0)
}

func (lk *LinuxKernel) Pipe2(fds co.Obuf, flags enum.OpenFlag) uint64 {
	return lk.pipe2(fds, flags)
}

func (lk *LinuxKernel) Fcntl(fd co.Fd, cmd int, arg uint64) uint64 {
	t := lk.P.fds
	desc, err := t.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	switch cmd {
	case enum.F_DUPFD, enum.F_DUPFD_CLOEXEC:
		nfd, err := t.Install(int(arg), desc.IncRef(), cmd == enum.F_DUPFD_CLOEXEC)
		if err != nil {
			desc.DecRef()
			return Errno(err)
		}
		return uint64(nfd)
	case enum.F_GETFD:
		on, err := t.Cloexec(int(fd))
		if err != nil {
			return Errno(err)
		}
		if on {
			return enum.FD_CLOEXEC
		}
		return 0
	case enum.F_SETFD:
		return Errno(t.SetCloexec(int(fd), arg&enum.FD_CLOEXEC != 0))
	case enum.F_GETFL:
		return uint64(desc.flags)
	case enum.F_SETFL:
		mutable := enum.O_APPEND | enum.O_NONBLOCK
		desc.mu.Lock()
		desc.flags = desc.flags&^mutable | enum.OpenFlag(arg)&mutable
		desc.mu.Unlock()
		return 0
	}
	return Errno(native.EINVAL)
}

func (p *Process) iovecs(addr uint64, count int) ([]native.Iovec64, error) {
	if count < 0 || count > 1024 {
		return nil, native.EINVAL
	}
	s := p.StrucAt(addr)
	out := make([]native.Iovec64, count)
	for i := range out {
		if p.Bits() == 64 {
			if err := s.Unpack(&out[i]); err != nil {
				return nil, native.EFAULT
			}
		} else {
			var iv native.Iovec32
			if err := s.Unpack(&iv); err != nil {
				return nil, native.EFAULT
			}
			out[i] = native.Iovec64{Base: uint64(iv.Base), Len: uint64(iv.Len)}
		}
	}
	return out, nil
}

func (lk *LinuxKernel) Readv(fd co.Fd, iov co.Buf, count int) uint64 {
	p := lk.P
	vecs, err := p.iovecs(iov.Addr, count)
	if err != nil {
		return Errno(err)
	}
	var total uint64
	for _, v := range vecs {
		if v.Len == 0 {
			continue
		}
		n := lk.Read(fd, co.Obuf{Buf: co.NewBuf(lk, v.Base)}, co.Len(v.Len))
		if iserrno(n) {
			if total > 0 {
				break
			}
			return n
		}
		total += n
		if n < v.Len {
			break
		}
	}
	return total
}

func (lk *LinuxKernel) Writev(fd co.Fd, iov co.Buf, count int) uint64 {
	p := lk.P
	vecs, err := p.iovecs(iov.Addr, count)
	if err != nil {
		return Errno(err)
	}
	var total uint64
	for _, v := range vecs {
		if v.Len == 0 {
			continue
		}
		n := lk.Write(fd, co.NewBuf(lk, v.Base), co.Len(v.Len))
		if iserrno(n) {
			if total > 0 {
				break
			}
			return n
		}
		total += n
		if n < v.Len {
			break
		}
	}
	return total
}

func direntType(mode uint32) byte {
	switch mode & enum.S_IFMT {
	case enum.S_IFIFO:
		return enum.DT_FIFO
	case enum.S_IFCHR:
		return enum.DT_CHR
	case enum.S_IFDIR:
		return enum.DT_DIR
	case enum.S_IFBLK:
		return enum.DT_BLK
	case enum.S_IFREG:
		return enum.DT_REG
	case enum.S_IFLNK:
		return enum.DT_LNK
	case enum.S_IFSOCK:
		return enum.DT_SOCK
	}
	return enum.DT_UNKNOWN
}

// Getdents64 emits linux_dirent64 records from a cached directory listing
// held in the open file description.
func (lk *LinuxKernel) Getdents64(fd co.Fd, dirp co.Obuf, size co.Len) uint64 {
	p := lk.P
	desc, err := p.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	desc.mu.Lock()
	defer desc.mu.Unlock()
	if !desc.dread {
		fis, err := p.k.fs.ReadDir(desc.path)
		if err != nil {
			return Errno(err)
		}
		desc.dents = fis
		desc.dread = true
		desc.dpos = 0
	}
	var out []byte
	pos := desc.dpos
	for pos < len(desc.dents) {
		fi := desc.dents[pos]
		name := fi.Name
		reclen := (19 + len(name) + 1 + 7) &^ 7
		if uint64(len(out)+reclen) > uint64(size) {
			break
		}
		rec := make([]byte, reclen)
		p.order.PutUint64(rec[0:], fi.Ino)
		p.order.PutUint64(rec[8:], uint64(pos+1))
		p.order.PutUint16(rec[16:], uint16(reclen))
		rec[18] = direntType(fi.Mode)
		copy(rec[19:], name)
		out = append(out, rec...)
		pos++
	}
	if len(out) == 0 && pos < len(desc.dents) {
		return Errno(native.EINVAL)
	}
	desc.dpos = pos
	if len(out) > 0 {
		if _, err := p.mem.WriteAt(out, dirp.Addr); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return uint64(len(out))
}

func (lk *LinuxKernel) Access(path string, mode int) uint64 {
	_, err := lk.P.k.fs.Stat(lk.P.absPath(path))
	return Errno(err)
}

func (lk *LinuxKernel) Faccessat(dirfd co.Fd, path string, mode int) uint64 {
	abs, err := lk.P.atPath(int(dirfd), path)
	if err != nil {
		return Errno(err)
	}
	_, err = lk.P.k.fs.Stat(abs)
	return Errno(err)
}

func (lk *LinuxKernel) Unlink(path string) uint64 {
	return Errno(lk.P.k.fs.Unlink(lk.P.absPath(path)))
}

const atRemoveDir = 0x200

func (lk *LinuxKernel) Unlinkat(dirfd co.Fd, path string, flags int) uint64 {
	abs, err := lk.P.atPath(int(dirfd), path)
	if err != nil {
		return Errno(err)
	}
	if flags&atRemoveDir != 0 {
		return Errno(lk.P.k.fs.Rmdir(abs))
	}
	return Errno(lk.P.k.fs.Unlink(abs))
}

func (lk *LinuxKernel) Mkdir(path string, mode int) uint64 {
	return Errno(lk.P.k.fs.Mkdir(lk.P.absPath(path), uint32(mode)&^lk.P.umask))
}

func (lk *LinuxKernel) Mkdirat(dirfd co.Fd, path string, mode int) uint64 {
	abs, err := lk.P.atPath(int(dirfd), path)
	if err != nil {
		return Errno(err)
	}
	return Errno(lk.P.k.fs.Mkdir(abs, uint32(mode)&^lk.P.umask))
}

func (lk *LinuxKernel) Rmdir(path string) uint64 {
	return Errno(lk.P.k.fs.Rmdir(lk.P.absPath(path)))
}

func (lk *LinuxKernel) Rename(oldpath, newpath string) uint64 {
	p := lk.P
	return Errno(p.k.fs.Rename(p.absPath(oldpath), p.absPath(newpath)))
}

func (lk *LinuxKernel) Renameat(olddir co.Fd, oldpath string, newdir co.Fd, newpath string) uint64 {
	p := lk.P
	oldabs, err := p.atPath(int(olddir), oldpath)
	if err != nil {
		return Errno(err)
	}
	newabs, err := p.atPath(int(newdir), newpath)
	if err != nil {
		return Errno(err)
	}
	return Errno(p.k.fs.Rename(oldabs, newabs))
}

func (lk *LinuxKernel) readlink(abs string, buf co.Obuf, size co.Len) uint64 {
	p := lk.P
	var target string
	switch abs {
	case "/proc/self/exe":
		target = p.exe
	default:
		if _, err := p.k.fs.Stat(abs); err != nil {
			return Errno(err)
		}
		return Errno(native.EINVAL)
	}
	out := []byte(target)
	if uint64(len(out)) > uint64(size) {
		out = out[:size]
	}
	if _, err := p.mem.WriteAt(out, buf.Addr); err != nil {
		return Errno(native.EFAULT)
	}
	return uint64(len(out))
}

func (lk *LinuxKernel) Readlink(path string, buf co.Obuf, size co.Len) uint64 {
	return lk.readlink(lk.P.absPath(path), buf, size)
}

func (lk *LinuxKernel) Readlinkat(dirfd co.Fd, path string, buf co.Obuf, size co.Len) uint64 {
	abs, err := lk.P.atPath(int(dirfd), path)
	if err != nil {
		return Errno(err)
	}
	return lk.readlink(abs, buf, size)
}

func (lk *LinuxKernel) Truncate(path string, size uint64) uint64 {
	p := lk.P
	f, err := p.k.fs.Open(p.absPath(path), int(enum.O_WRONLY), 0)
	if err != nil {
		return Errno(err)
	}
	defer f.Close()
	return Errno(f.Truncate(int64(size)))
}

func (lk *LinuxKernel) Ftruncate(fd co.Fd, size uint64) uint64 {
	desc, err := lk.P.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	if desc.pipe != nil || !desc.writable() {
		return Errno(native.EINVAL)
	}
	return Errno(desc.f.Truncate(int64(size)))
}

func (lk *LinuxKernel) Ioctl(fd co.Fd, cmd int, arg uint64) uint64 {
	if _, err := lk.P.fds.Get(int(fd)); err != nil {
		return Errno(err)
	}
	return Errno(native.ENOTTY)
}

func (lk *LinuxKernel) Fsync(fd co.Fd) uint64 {
	if _, err := lk.P.fds.Get(int(fd)); err != nil {
		return Errno(err)
	}
	return 0
}

func (lk *LinuxKernel) Fdatasync(fd co.Fd) uint64 {
	return lk.Fsync(fd)
}

func (lk *LinuxKernel) Sync() uint64 {
	return 0
}

func (lk *LinuxKernel) Utimensat(dirfd co.Fd, path string, times co.Ptr, flags int) uint64 {
	return 0
}

func (lk *LinuxKernel) Mount(src, dst, fstype string, flags uint64, data co.Ptr) uint64 {
	p := lk.P
	return Errno(p.k.fs.Mount(src, p.absPath(dst), fstype, flags))
}

func (lk *LinuxKernel) Umount2(dst string, flags int) uint64 {
	return Errno(lk.P.k.fs.Unmount(lk.P.absPath(dst)))
}

func (lk *LinuxKernel) Socket(domain, typ, proto int) uint64 {
	p := lk.P
	if p.k.net == nil {
		return Errno(native.EAFNOSUPPORT)
	}
	f, err := p.k.net.Socket(domain, typ, proto)
	if err != nil {
		return Errno(err)
	}
	desc := newFileDesc(f, "socket", enum.O_RDWR)
	fd, err := p.fds.Install(0, desc, false)
	if err != nil {
		desc.DecRef()
		return Errno(err)
	}
	return uint64(fd)
}
