package linux

import (
	"encoding/binary"

	"github.com/pkg/errors"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/mem"
	"github.com/keelos/pengolin/models"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

func (p *Process) Arch() *models.Arch           { return p.arch }
func (p *Process) OS() string                   { return p.os.Name }
func (p *Process) Bits() uint                   { return uint(p.arch.Bits) }
func (p *Process) ByteOrder() binary.ByteOrder  { return p.order }
func (p *Process) Pid() int                     { return p.tgid }
func (p *Process) Tid() int                     { return p.pid }
func (p *Process) Exe() string                  { return p.exe }
func (p *Process) Config() *models.Config       { return p.k.config }
func (p *Process) Mem() models.Mem              { return p.mem }
func (p *Process) AddrSpace() *mem.AddrSpace    { return p.mem }
func (p *Process) Trap() models.TrapContext     { return p.trap }
func (p *Process) SetTrap(c models.TrapContext) { p.trap = c }

func (p *Process) Alive() bool {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	return p.state != statZombie
}

// WaitStatus returns the encoded exit status once the task is a zombie.
func (p *Process) WaitStatus() int {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	return p.exitStatus
}

func (p *Process) RegRead(e int) (uint64, error) {
	return p.trap.RegRead(e)
}

func (p *Process) RegWrite(e int, val uint64) error {
	return p.trap.RegWrite(e, val)
}

func (p *Process) ReadRegs(enums []int) ([]uint64, error) {
	return models.ReadRegs(p.trap, enums)
}

func (p *Process) RegDump() ([]models.RegVal, error) {
	return p.arch.RegDump(p.trap)
}

func (p *Process) StrucAt(addr uint64) *models.StrucStream {
	return models.StrucAt(p.mem, addr, p.order)
}

func (p *Process) PackAddr(buf []byte, n uint64) ([]byte, error) {
	if p.Bits() == 64 {
		if len(buf) < 8 {
			return nil, errors.New("buffer too small")
		}
		p.order.PutUint64(buf, n)
		return buf[:8], nil
	}
	if len(buf) < 4 {
		return nil, errors.New("buffer too small")
	}
	p.order.PutUint32(buf, uint32(n))
	return buf[:4], nil
}

func (p *Process) UnpackAddr(buf []byte) uint64 {
	if p.Bits() == 64 {
		return p.order.Uint64(buf)
	}
	return uint64(p.order.Uint32(buf))
}

func (p *Process) PushBytes(b []byte) (uint64, error) {
	sp, err := p.RegRead(p.arch.SP)
	if err != nil {
		return 0, err
	}
	sp -= uint64(len(b))
	if _, err := p.mem.WriteAt(b, sp); err != nil {
		return 0, err
	}
	return sp, p.RegWrite(p.arch.SP, sp)
}

func (p *Process) Push(n uint64) (uint64, error) {
	var tmp [8]byte
	buf, err := p.PackAddr(tmp[:], n)
	if err != nil {
		return 0, err
	}
	return p.PushBytes(buf)
}

// kernel returns the per-task handler instance, building it on first use.
func (p *Process) kernel() co.Kernel {
	if p.osk == nil {
		p.osk = p.os.Kernel(p)
	}
	return p.osk.(co.Kernel)
}

// Syscall resolves and invokes one trapped syscall. An unknown name is
// ENOSYS; argument conversion failure is EFAULT. Pending signals are
// consumed at the return boundary, converting an interrupted handler's
// ERESTARTSYS into a transparent restart or EINTR depending on SA_RESTART.
func (p *Process) Syscall(num int, name string, getArgs func(n int) ([]uint64, error)) (uint64, error) {
	if name == "" {
		return Errno(native.ENOSYS), nil
	}
	sys := co.Lookup(p, p.kernel(), name)
	if sys == nil {
		return Errno(native.ENOSYS), nil
	}
	args, err := getArgs(len(sys.In))
	if err != nil {
		return Errno(native.EFAULT), nil
	}
	if p.k.tracer != nil {
		p.k.tracer.OnEnter(p.pid, num, sys, args)
	}
	ret, err := sys.Call(args)
	if err != nil {
		ret = Errno(native.EFAULT)
	}
	ret = p.signalReturn(num, args, ret)
	if p.k.tracer != nil {
		p.k.tracer.OnExit(p.pid, num, sys, args, ret)
	}
	return ret, nil
}

// signalReturn is the delivery point: every syscall passes through here on
// the way back to user mode.
func (p *Process) signalReturn(num int, args []uint64, ret uint64) uint64 {
	k := p.k
	k.mu.Lock()
	sig, act, ok := p.takeSignalLocked()
	k.mu.Unlock()

	interrupted := int64(ret) == -int64(native.ERESTARTSYS)
	if !ok {
		if p.suspendedMask != nil {
			// the suspend-interrupting signal evaporated; put the
			// caller's mask back ourselves
			p.sigMask = *p.suspendedMask
			p.suspendedMask = nil
		}
		if interrupted && p.Alive() {
			// the signal evaporated (ignored or defaulted away);
			// re-arm the trap so user code never observes it
			ret = p.restartTrap(num, args)
		}
		return ret
	}

	restart := interrupted && act.Flags&enum.SA_RESTART != 0
	if interrupted && !restart {
		ret = Errno(native.EINTR)
	}
	if restart {
		ret = p.restartRet(num, args)
	}
	if err := p.pushHandlerFrame(sig, act, ret, num, restart); err != nil {
		k.mu.Lock()
		k.terminateLocked(p, enum.SIGSEGV)
		k.mu.Unlock()
	}
	return ret
}

// restartTrap rewinds the PC over the trap instruction and reloads the
// syscall number register so the same syscall re-executes.
func (p *Process) restartTrap(num int, args []uint64) uint64 {
	pc, err := p.RegRead(p.arch.PC)
	if err != nil {
		return Errno(native.EINTR)
	}
	p.RegWrite(p.arch.PC, pc-p.arch.SysInsSize)
	p.RegWrite(p.arch.SysReg, uint64(num))
	return p.restartRet(num, args)
}

// restartRet is the value the return register must hold when the trap
// re-executes: the syscall number where it doubles as the return register,
// the first argument where it doubles as an argument register.
func (p *Process) restartRet(num int, args []uint64) uint64 {
	if p.arch.SysReg == p.arch.RetReg {
		return uint64(num)
	}
	if len(args) > 0 {
		return args[0]
	}
	if len(p.arch.ArgRegs) > 0 {
		if v, err := p.RegRead(p.arch.ArgRegs[0]); err == nil {
			return v
		}
	}
	return 0
}

// interruptible reports whether a blocking handler should give up and
// return ERESTARTSYS. Callers must hold k.mu.
func (p *Process) interruptibleLocked() bool {
	return p.state == statZombie || p.pending.next(p.effMask()) != 0
}
