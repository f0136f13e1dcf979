package arm64

import (
	"github.com/keelos/pengolin/arch/sysnum"
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/kernel/linux"
	"github.com/keelos/pengolin/models"
)

var LinuxRegs = []int{X0, X1, X2, X3, X4, X5}

func LinuxKernel(t models.Task) interface{} {
	return linux.NewAsmGenericKernel(t)
}

func LinuxSyscall(t models.Task) {
	x8, _ := t.RegRead(X8)
	name := sysnum.LinuxAsmGeneric[int(x8)]
	ret, _ := t.Syscall(int(x8), name, co.RegArgs(t, LinuxRegs))
	t.RegWrite(X0, ret)
}

func init() {
	Arch.RegisterOS(&models.OS{
		Name:    "linux",
		Kernel:  LinuxKernel,
		Syscall: LinuxSyscall,
	})
}
