package x86

import (
	"github.com/lunixbochs/ghostrace/ghost/sys/num"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/kernel/linux"
	"github.com/keelos/pengolin/models"
)

var LinuxRegs = []int{EBX, ECX, EDX, ESI, EDI, EBP}

func LinuxKernel(t models.Task) interface{} {
	return linux.NewX86Kernel(t)
}

func LinuxSyscall(t models.Task) {
	eax, _ := t.RegRead(EAX)
	name := num.Linux_x86[int(eax)]
	ret, _ := t.Syscall(int(eax), name, co.RegArgs(t, LinuxRegs))
	t.RegWrite(EAX, ret)
}

func init() {
	Arch.RegisterOS(&models.OS{
		Name:    "linux",
		Kernel:  LinuxKernel,
		Syscall: LinuxSyscall,
	})
}
