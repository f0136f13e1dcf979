package linux

import (
	"github.com/keelos/pengolin/host"
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/native"
)

func hostStat(fi *host.FileInfo) *native.Stat {
	return &native.Stat{
		Dev:     1,
		Ino:     fi.Ino,
		Nlink:   uint64(fi.Nlink),
		Mode:    fi.Mode,
		Uid:     fi.Uid,
		Gid:     fi.Gid,
		Rdev:    fi.Rdev,
		Size:    fi.Size,
		Blksize: 4096,
		Blocks:  (fi.Size + 511) / 512,
		Atime:   native.Timespec{Sec: fi.Atime},
		Mtime:   native.Timespec{Sec: fi.Mtime},
		Ctime:   native.Timespec{Sec: fi.Ctime},
	}
}

func (lk *LinuxKernel) packStat(buf co.Obuf, fi *host.FileInfo) uint64 {
	if err := buf.Pack(hostStat(fi)); err != nil {
		return Errno(native.EFAULT)
	}
	return 0
}

func (lk *LinuxKernel) Stat(path string, buf co.Obuf) uint64 {
	fi, err := lk.P.k.fs.Stat(lk.P.absPath(path))
	if err != nil {
		return Errno(err)
	}
	return lk.packStat(buf, fi)
}

// Lstat matches Stat; the filesystem primitive has no symlinks.
func (lk *LinuxKernel) Lstat(path string, buf co.Obuf) uint64 {
	return lk.Stat(path, buf)
}

func (lk *LinuxKernel) Fstat(fd co.Fd, buf co.Obuf) uint64 {
	desc, err := lk.P.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	fi, err := desc.Stat()
	if err != nil {
		return Errno(err)
	}
	return lk.packStat(buf, fi)
}

func (lk *LinuxKernel) Newfstatat(dirfd co.Fd, path string, buf co.Obuf, flags int) uint64 {
	abs, err := lk.P.atPath(int(dirfd), path)
	if err != nil {
		return Errno(err)
	}
	fi, err := lk.P.k.fs.Stat(abs)
	if err != nil {
		return Errno(err)
	}
	return lk.packStat(buf, fi)
}
