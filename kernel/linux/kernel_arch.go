package linux

import (
	"github.com/keelos/pengolin/host"
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/models"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

// X8664Kernel adds the x86_64-only syscalls.
type X8664Kernel struct {
	*LinuxKernel
}

func NewX8664Kernel(t models.Task) *X8664Kernel {
	return &X8664Kernel{BaseKernel(t)}
}

const (
	archSetGs = 0x1001
	archSetFs = 0x1002
	archGetFs = 0x1003
	archGetGs = 0x1004
)

func (lk *X8664Kernel) ArchPrctl(code int, addr uint64) uint64 {
	p := lk.P
	switch code {
	case archSetFs, archSetGs:
		p.tls = addr
		return 0
	case archGetFs, archGetGs:
		var tmp [8]byte
		buf, err := p.PackAddr(tmp[:], p.tls)
		if err != nil {
			return Errno(native.EFAULT)
		}
		if _, err := p.mem.WriteAt(buf, addr); err != nil {
			return Errno(native.EFAULT)
		}
		return 0
	}
	return Errno(native.EINVAL)
}

// AsmGenericKernel is the arm64/riscv64 flavor: the asm-generic table and
// the tls-before-ctid clone argument order.
type AsmGenericKernel struct {
	*LinuxKernel
}

func NewAsmGenericKernel(t models.Task) *AsmGenericKernel {
	return &AsmGenericKernel{BaseKernel(t)}
}

func (lk *AsmGenericKernel) Clone(flags enum.CloneFlag, stack uint64, ptid co.Ptr, tls uint64, ctid co.Ptr) uint64 {
	return lk.doClone(flags, stack, ptid, ctid, tls)
}

// X86Kernel is the 32-bit flavor: stat64 layouts, page-offset mmap2 and
// the legacy single-purpose calls.
type X86Kernel struct {
	*LinuxKernel
}

func NewX86Kernel(t models.Task) *X86Kernel {
	return &X86Kernel{BaseKernel(t)}
}

func (lk *X86Kernel) Clone(flags enum.CloneFlag, stack uint64, ptid co.Ptr, tls uint64, ctid co.Ptr) uint64 {
	return lk.doClone(flags, stack, ptid, ctid, tls)
}

func (lk *X86Kernel) Mmap2(addr, size uint64, prot enum.MmapProt, flags enum.MmapFlag, fd co.Fd, pgoff uint64) uint64 {
	return lk.mmap(addr, size, prot, flags, fd, int64(pgoff)*0x1000)
}

func (lk *X86Kernel) Waitpid(pid int, wstatus co.Obuf, options enum.WaitOpt) uint64 {
	return lk.Wait4(pid, wstatus, options, co.Obuf{})
}

func (lk *X86Kernel) Sigreturn() uint64 {
	return lk.RtSigreturn()
}

func hostStat64X86(fi *host.FileInfo) *native.Stat64X86 {
	return &native.Stat64X86{
		Dev:      1,
		InoTrunc: uint32(fi.Ino),
		Mode:     fi.Mode,
		Nlink:    fi.Nlink,
		Uid:      fi.Uid,
		Gid:      fi.Gid,
		Rdev:     fi.Rdev,
		Size:     fi.Size,
		Blksize:  4096,
		Blocks:   uint64(fi.Size+511) / 512,
		Atime:    uint32(fi.Atime),
		Mtime:    uint32(fi.Mtime),
		Ctime:    uint32(fi.Ctime),
		Ino:      fi.Ino,
	}
}

func (lk *X86Kernel) packStat64(buf co.Obuf, fi *host.FileInfo) uint64 {
	if err := buf.Pack(hostStat64X86(fi)); err != nil {
		return Errno(native.EFAULT)
	}
	return 0
}

func (lk *X86Kernel) Stat64(path string, buf co.Obuf) uint64 {
	fi, err := lk.P.k.fs.Stat(lk.P.absPath(path))
	if err != nil {
		return Errno(err)
	}
	return lk.packStat64(buf, fi)
}

func (lk *X86Kernel) Lstat64(path string, buf co.Obuf) uint64 {
	return lk.Stat64(path, buf)
}

func (lk *X86Kernel) Fstat64(fd co.Fd, buf co.Obuf) uint64 {
	desc, err := lk.P.fds.Get(int(fd))
	if err != nil {
		return Errno(err)
	}
	fi, err := desc.Stat()
	if err != nil {
		return Errno(err)
	}
	return lk.packStat64(buf, fi)
}

func (lk *X86Kernel) Fstatat64(dirfd co.Fd, path string, buf co.Obuf, flags int) uint64 {
	abs, err := lk.P.atPath(int(dirfd), path)
	if err != nil {
		return Errno(err)
	}
	fi, err := lk.P.k.fs.Stat(abs)
	if err != nil {
		return Errno(err)
	}
	return lk.packStat64(buf, fi)
}
