package riscv64

import (
	"github.com/keelos/pengolin/arch/sysnum"
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/kernel/linux"
	"github.com/keelos/pengolin/models"
)

var LinuxRegs = []int{A0, A1, A2, A3, A4, A5}

func LinuxKernel(t models.Task) interface{} {
	return linux.NewAsmGenericKernel(t)
}

func LinuxSyscall(t models.Task) {
	a7, _ := t.RegRead(A7)
	name := sysnum.LinuxAsmGeneric[int(a7)]
	ret, _ := t.Syscall(int(a7), name, co.RegArgs(t, LinuxRegs))
	t.RegWrite(A0, ret)
}

func init() {
	Arch.RegisterOS(&models.OS{
		Name:    "linux",
		Kernel:  LinuxKernel,
		Syscall: LinuxSyscall,
	})
}
