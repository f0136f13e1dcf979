package linux

import (
	"crypto/rand"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/models"
	"github.com/keelos/pengolin/native"
)

// machine names the uname machine field per arch.
var machine = map[string]string{
	"x86_64":  "x86_64",
	"x86":     "i686",
	"arm64":   "aarch64",
	"riscv64": "riscv64",
}

func (lk *LinuxKernel) Uname(buf co.Buf) uint64 {
	m, ok := machine[lk.P.arch.Name]
	if !ok {
		m = lk.P.arch.Name
	}
	uname := &models.Uname{
		Sysname:  "Linux",
		Nodename: "keelos",
		Release:  "4.19.0-pengolin",
		Version:  "#1 SMP",
		Machine:  m,
	}
	// uname fields are fixed-width, null-padded
	uname.Pad(65)
	if err := buf.Pack(uname); err != nil {
		return Errno(native.EFAULT)
	}
	return 0
}

func (lk *LinuxKernel) Getrandom(buf co.Obuf, size co.Len, flags int) uint64 {
	p := lk.P
	if size > 256 {
		size = 256
	}
	tmp := make([]byte, size)
	rand.Read(tmp)
	if _, err := p.mem.WriteAt(tmp, buf.Addr); err != nil {
		return Errno(native.EFAULT)
	}
	return uint64(size)
}

func (lk *LinuxKernel) Getrlimit(resource int, rlim co.Obuf) uint64 {
	if rlim.Addr == 0 {
		return Errno(native.EFAULT)
	}
	if err := rlim.Pack(&native.Rlimit{Cur: native.RLIM_INFINITY, Max: native.RLIM_INFINITY}); err != nil {
		return Errno(native.EFAULT)
	}
	return 0
}

func (lk *LinuxKernel) Prlimit64(pid, resource int, newlim co.Buf, oldlim co.Obuf) uint64 {
	if oldlim.Addr != 0 {
		if err := oldlim.Pack(&native.Rlimit{Cur: native.RLIM_INFINITY, Max: native.RLIM_INFINITY}); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return 0
}
