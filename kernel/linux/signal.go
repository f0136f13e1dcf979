package linux

import (
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

func (p *Process) readSigset(addr uint64) (uint64, error) {
	var buf [8]byte
	n := 8
	if p.Bits() == 32 {
		n = 4
	}
	if _, err := p.mem.ReadAt(buf[:n], addr); err != nil {
		return 0, err
	}
	if n == 4 {
		return uint64(p.order.Uint32(buf[:4])), nil
	}
	return p.order.Uint64(buf[:]), nil
}

func (p *Process) writeSigset(addr, set uint64) error {
	var buf [8]byte
	n := 8
	if p.Bits() == 32 {
		n = 4
		p.order.PutUint32(buf[:4], uint32(set))
	} else {
		p.order.PutUint64(buf[:], set)
	}
	_, err := p.mem.WriteAt(buf[:n], addr)
	return err
}

func (lk *LinuxKernel) RtSigaction(sig enum.Signal, act co.Buf, oldact co.Obuf, size co.Len) uint64 {
	p := lk.P
	if sig < 1 || sig > enum.NSIG {
		return Errno(native.EINVAL)
	}
	if act.Addr != 0 && (sig == enum.SIGKILL || sig == enum.SIGSTOP) {
		return Errno(native.EINVAL)
	}
	old := p.sig.action(sig)
	if act.Addr != 0 {
		var next native.Sigaction
		if err := act.Unpack(&next); err != nil {
			return Errno(native.EFAULT)
		}
		p.sig.setAction(sig, next)
	}
	if oldact.Addr != 0 {
		if err := oldact.Pack(&old); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return 0
}

func (lk *LinuxKernel) RtSigprocmask(how int, set co.Buf, oldset co.Obuf, size co.Len) uint64 {
	p := lk.P
	old := p.sigMask
	if set.Addr != 0 {
		mask, err := p.readSigset(set.Addr)
		if err != nil {
			return Errno(native.EFAULT)
		}
		switch how {
		case enum.SIG_BLOCK:
			p.sigMask |= mask
		case enum.SIG_UNBLOCK:
			p.sigMask &^= mask
		case enum.SIG_SETMASK:
			p.sigMask = mask
		default:
			return Errno(native.EINVAL)
		}
		p.sigMask &^= unblockable
	}
	if oldset.Addr != 0 {
		if err := p.writeSigset(oldset.Addr, old); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return 0
}

func (lk *LinuxKernel) RtSigpending(set co.Obuf, size co.Len) uint64 {
	p := lk.P
	k := lk.K
	k.mu.Lock()
	pend := p.pending.set() & p.sigMask
	k.mu.Unlock()
	if err := p.writeSigset(set.Addr, pend); err != nil {
		return Errno(native.EFAULT)
	}
	return 0
}

func (lk *LinuxKernel) RtSigreturn() uint64 {
	ret, err := lk.P.popHandlerFrame()
	if err != nil {
		k := lk.K
		k.mu.Lock()
		k.terminateLocked(lk.P, enum.SIGSEGV)
		k.mu.Unlock()
		return 0
	}
	return ret
}

func (lk *LinuxKernel) Sigaltstack(nss co.Buf, oss co.Obuf) uint64 {
	p := lk.P
	old := p.altStack
	if old.Size == 0 {
		old.Flags = enum.SS_DISABLE
	}
	if nss.Addr != 0 {
		var next native.StackT
		if err := nss.Unpack(&next); err != nil {
			return Errno(native.EFAULT)
		}
		if next.Flags&^int32(enum.SS_DISABLE) != 0 {
			return Errno(native.EINVAL)
		}
		if next.Flags&enum.SS_DISABLE != 0 {
			p.altStack = native.StackT{Flags: enum.SS_DISABLE}
		} else {
			p.altStack = next
		}
	}
	if oss.Addr != 0 {
		if err := oss.Pack(&old); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return 0
}

// Pause sleeps until a deliverable signal is pending. Always EINTR; the
// handler runs at the dispatcher return boundary.
func (lk *LinuxKernel) Pause() uint64 {
	p := lk.P
	k := lk.K
	k.mu.Lock()
	for !p.interruptibleLocked() {
		k.cond.Wait()
	}
	k.mu.Unlock()
	return Errno(native.EINTR)
}

func (lk *LinuxKernel) RtSigsuspend(mask co.Buf, size co.Len) uint64 {
	p := lk.P
	k := lk.K
	next, err := p.readSigset(mask.Addr)
	if err != nil {
		return Errno(native.EFAULT)
	}
	old := p.sigMask
	p.sigMask = next &^ unblockable
	k.mu.Lock()
	for !p.interruptibleLocked() {
		k.cond.Wait()
	}
	k.mu.Unlock()
	// the temporary mask must stay in force through delivery at the
	// dispatcher return; the handler frame restores the original
	p.suspendedMask = &old
	return Errno(native.EINTR)
}
