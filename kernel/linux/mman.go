package linux

import (
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/mem"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

func memProt(prot enum.MmapProt) int {
	out := 0
	if prot&enum.PROT_READ != 0 {
		out |= mem.PROT_READ
	}
	if prot&enum.PROT_WRITE != 0 {
		out |= mem.PROT_WRITE
	}
	if prot&enum.PROT_EXEC != 0 {
		out |= mem.PROT_EXEC
	}
	return out
}

// mmap backs MAP_ANONYMOUS with zero pages and file mappings with a copy
// of the file contents at the given offset.
func (lk *LinuxKernel) mmap(addr, size uint64, prot enum.MmapProt, flags enum.MmapFlag, fd co.Fd, off int64) uint64 {
	p := lk.P
	if size == 0 {
		return Errno(native.EINVAL)
	}
	if flags&(enum.MAP_PRIVATE|enum.MAP_SHARED) == 0 {
		return Errno(native.EINVAL)
	}
	fixed := flags&enum.MAP_FIXED != 0
	shared := flags&enum.MAP_SHARED != 0

	var data []byte
	var file *mem.FileDesc
	if flags&enum.MAP_ANONYMOUS == 0 {
		desc, err := p.fds.Get(int(fd))
		if err != nil {
			return Errno(err)
		}
		if off < 0 || off&int64(p.mem.PageSize()-1) != 0 {
			return Errno(native.EINVAL)
		}
		if desc.pipe != nil {
			return Errno(native.ENODEV)
		}
		fi, err := desc.Stat()
		if err != nil {
			return Errno(err)
		}
		// the copy buffer is bounded by the file tail, not the request
		want := uint64(0)
		if off < fi.Size {
			want = uint64(fi.Size - off)
			if want > size {
				want = size
			}
		}
		data = make([]byte, want)
		if want > 0 {
			n, err := desc.Pread(data, off)
			if err != nil {
				return Errno(err)
			}
			data = data[:n]
		}
		file = &mem.FileDesc{Name: desc.path, Off: uint64(off), Len: size}
	}

	base, err := p.mem.MapData(addr, size, memProt(prot), fixed, shared, file, data)
	if err != nil {
		return Errno(err)
	}
	return base
}

func (lk *LinuxKernel) Mmap(addr, size uint64, prot enum.MmapProt, flags enum.MmapFlag, fd co.Fd, off co.Off) uint64 {
	return lk.mmap(addr, size, prot, flags, fd, int64(off))
}

func (lk *LinuxKernel) Munmap(addr, size uint64) uint64 {
	return Errno(lk.P.mem.Munmap(addr, size))
}

func (lk *LinuxKernel) Mprotect(addr, size uint64, prot enum.MmapProt) uint64 {
	return Errno(lk.P.mem.Protect(addr, size, memProt(prot)))
}

// Brk queries with 0 and otherwise moves the heap end, returning the
// current break on any failure.
func (lk *LinuxKernel) Brk(addr uint64) uint64 {
	cur, _ := lk.P.mem.Brk(addr)
	return cur
}

func (lk *LinuxKernel) Madvise(addr, size uint64, advice int) uint64 {
	return 0
}
