// Package linux is the Linux personality: a syscall dispatch table over
// the process, memory, file and signal state of the tasks it hosts.
package linux

import (
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/models"
)

// LinuxKernel is the per-task handler instance. Arch packages embed it in
// flavored kernels that add or override arch-specific syscalls.
type LinuxKernel struct {
	*co.KernelBase
	K *Kernel
	P *Process
}

func NewLinuxKernel(p *Process) *LinuxKernel {
	lk := &LinuxKernel{
		KernelBase: &co.KernelBase{},
		K:          p.k,
		P:          p,
	}
	lk.Argjoy.Register(lk.unpackArg)
	return lk
}

// BaseKernel builds the generic handler set for a task created by this
// package's Kernel. Arch packages call this from their OS.Kernel hooks.
func BaseKernel(t models.Task) *LinuxKernel {
	p, ok := t.(*Process)
	if !ok {
		panic("linux: task does not belong to this kernel")
	}
	return NewLinuxKernel(p)
}
