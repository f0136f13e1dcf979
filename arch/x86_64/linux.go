package x86_64

import (
	num "github.com/lunixbochs/ghostrace/ghost/sys/num"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/kernel/linux"
	"github.com/keelos/pengolin/models"
)

var LinuxRegs = []int{RDI, RSI, RDX, R10, R8, R9}

func LinuxKernel(t models.Task) interface{} {
	return linux.NewX8664Kernel(t)
}

func LinuxSyscall(t models.Task) {
	rax, _ := t.RegRead(RAX)
	name := num.Linux_x86_64[int(rax)]
	ret, _ := t.Syscall(int(rax), name, co.RegArgs(t, LinuxRegs))
	t.RegWrite(RAX, ret)
}

func init() {
	Arch.RegisterOS(&models.OS{
		Name:    "linux",
		Kernel:  LinuxKernel,
		Syscall: LinuxSyscall,
	})
}
