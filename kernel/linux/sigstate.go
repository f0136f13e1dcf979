package linux

import (
	"sync"
	"sync/atomic"

	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

func sigbit(sig enum.Signal) uint64 {
	return 1 << (uint(sig) - 1)
}

const unblockable = uint64(1<<(enum.SIGKILL-1)) | uint64(1<<(enum.SIGSTOP-1))

// SigTable holds the signal dispositions of a thread group. Shared across
// CLONE_SIGHAND clones, deep-copied otherwise.
type SigTable struct {
	mu      sync.Mutex
	refs    int32
	actions [enum.NSIG + 1]native.Sigaction
}

func newSigTable() *SigTable {
	return &SigTable{refs: 1}
}

func (s *SigTable) IncRef() *SigTable {
	atomic.AddInt32(&s.refs, 1)
	return s
}

func (s *SigTable) DecRef() {
	atomic.AddInt32(&s.refs, -1)
}

func (s *SigTable) shared() bool {
	return atomic.LoadInt32(&s.refs) > 1
}

func (s *SigTable) Fork() *SigTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := newSigTable()
	n.actions = s.actions
	return n
}

func (s *SigTable) action(sig enum.Signal) native.Sigaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions[sig]
}

func (s *SigTable) setAction(sig enum.Signal, act native.Sigaction) native.Sigaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.actions[sig]
	s.actions[sig] = act
	return old
}

// resetCustom reverts caught signals to SIG_DFL across execve. Ignored
// dispositions survive.
func (s *SigTable) resetCustom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.actions {
		if s.actions[i].Handler != enum.SIG_DFL && s.actions[i].Handler != enum.SIG_IGN {
			s.actions[i] = native.Sigaction{}
		}
	}
}

// SigPending is the pending set of a thread group, guarded by Kernel.mu.
// Standard signals coalesce to a single pending instance; realtime signals
// accumulate.
type SigPending struct {
	counts [enum.NSIG + 1]uint32
}

func (s *SigPending) post(sig enum.Signal) {
	if !sig.Realtime() && s.counts[sig] > 0 {
		return
	}
	s.counts[sig]++
}

func (s *SigPending) clear(sig enum.Signal) {
	s.counts[sig] = 0
}

func (s *SigPending) has(sig enum.Signal) bool {
	return s.counts[sig] > 0
}

// next returns the lowest-numbered deliverable signal given mask, 0 if
// none. Lower numbers win; within one realtime number delivery is FIFO by
// construction.
func (s *SigPending) next(mask uint64) enum.Signal {
	for sig := enum.Signal(1); sig <= enum.NSIG; sig++ {
		if s.counts[sig] > 0 && mask&sigbit(sig) == 0 {
			return sig
		}
	}
	return 0
}

func (s *SigPending) take(sig enum.Signal) {
	if s.counts[sig] > 0 {
		s.counts[sig]--
	}
}

func (s *SigPending) set() uint64 {
	var out uint64
	for sig := enum.Signal(1); sig <= enum.NSIG; sig++ {
		if s.counts[sig] > 0 {
			out |= sigbit(sig)
		}
	}
	return out
}

// effMask is the blocked set with the unblockable signals forced clear.
func (p *Process) effMask() uint64 {
	return p.sigMask &^ unblockable
}

type sigAction int

const (
	actTerm sigAction = iota
	actIgn
	actStop
	actCont
)

func defaultAction(sig enum.Signal) sigAction {
	switch sig {
	case enum.SIGCHLD, enum.SIGURG, enum.SIGWINCH:
		return actIgn
	case enum.SIGSTOP, enum.SIGTSTP, enum.SIGTTIN, enum.SIGTTOU:
		return actStop
	case enum.SIGCONT:
		return actCont
	}
	return actTerm
}

// sigFrame records the context a handler interrupted so rt_sigreturn can
// resume it. For restarted syscalls pc already points back at the trap
// instruction and sysnum must be reloaded into the syscall register.
type sigFrame struct {
	sig     enum.Signal
	pc      uint64
	sp      uint64
	ret     uint64
	mask    uint64
	sysnum  int
	restart bool
}

// takeSignalLocked consumes pending signals until one needs a user
// handler, applying default actions along the way. A stop parks the task
// here until SIGCONT or SIGKILL. Returns ok=false when nothing is left to
// hand to user code (including when the task died).
func (p *Process) takeSignalLocked() (enum.Signal, native.Sigaction, bool) {
	k := p.k
	for p.state != statZombie {
		if p.state == statStopped {
			if p.pending.has(enum.SIGKILL) {
				k.terminateLocked(p, enum.SIGKILL)
				return 0, native.Sigaction{}, false
			}
			k.cond.Wait()
			continue
		}
		sig := p.pending.next(p.effMask())
		if sig == 0 {
			return 0, native.Sigaction{}, false
		}
		p.pending.take(sig)
		act := p.sig.action(sig)
		if act.Handler == enum.SIG_IGN {
			continue
		}
		if act.Handler == enum.SIG_DFL {
			switch defaultAction(sig) {
			case actIgn, actCont:
				continue
			case actStop:
				p.state = statStopped
				p.stopSig = sig
				p.stopPending = true
				k.cond.Broadcast()
				continue
			default:
				k.terminateLocked(p, sig)
				return 0, native.Sigaction{}, false
			}
		}
		return sig, act, true
	}
	return 0, native.Sigaction{}, false
}

// pushHandlerFrame redirects the task to act.Handler for sig, saving the
// interrupted context. ret is the value rt_sigreturn will hand back; for a
// restart frame it re-arms the trap instead.
func (p *Process) pushHandlerFrame(sig enum.Signal, act native.Sigaction, ret uint64, sysnum int, restart bool) error {
	pc, err := p.RegRead(p.arch.PC)
	if err != nil {
		return err
	}
	sp, err := p.RegRead(p.arch.SP)
	if err != nil {
		return err
	}
	if restart {
		pc -= p.arch.SysInsSize
	}
	saved := p.sigMask
	if p.suspendedMask != nil {
		// sigsuspend: the frame restores the pre-suspend mask
		saved = *p.suspendedMask
		p.suspendedMask = nil
	}
	frame := sigFrame{
		sig:     sig,
		pc:      pc,
		sp:      sp,
		ret:     ret,
		mask:    saved,
		sysnum:  sysnum,
		restart: restart,
	}
	p.frames = append(p.frames, frame)

	hsp := sp
	if act.Flags&enum.SA_ONSTACK != 0 && p.altStack.Flags&enum.SS_DISABLE == 0 && p.altStack.Size > 0 {
		onstack := sp >= p.altStack.Sp && sp < p.altStack.Sp+p.altStack.Size
		if !onstack {
			hsp = p.altStack.Sp + p.altStack.Size
		}
	}
	hsp &^= 0xf

	mask := p.sigMask | act.Mask
	if act.Flags&enum.SA_NODEFER == 0 {
		mask |= sigbit(sig)
	}
	p.sigMask = mask &^ unblockable
	if act.Flags&enum.SA_RESETHAND != 0 {
		p.sig.setAction(sig, native.Sigaction{})
	}

	if p.Bits() == 64 {
		if err := p.RegWrite(p.arch.ArgRegs[0], uint64(sig)); err != nil {
			return err
		}
		if err := p.RegWrite(p.arch.SP, hsp); err != nil {
			return err
		}
	} else {
		// 32-bit handlers take the signal number on the stack, below a
		// return slot pointing at the restorer trampoline.
		if err := p.RegWrite(p.arch.SP, hsp); err != nil {
			return err
		}
		if _, err := p.Push(uint64(sig)); err != nil {
			return err
		}
		if _, err := p.Push(act.Restorer); err != nil {
			return err
		}
	}
	return p.RegWrite(p.arch.PC, act.Handler)
}

// popHandlerFrame unwinds the newest frame and returns the value for the
// return register of the interrupted context.
func (p *Process) popHandlerFrame() (uint64, error) {
	n := len(p.frames)
	if n == 0 {
		return 0, native.EINVAL
	}
	fr := p.frames[n-1]
	p.frames = p.frames[:n-1]
	p.sigMask = fr.mask &^ unblockable
	if err := p.RegWrite(p.arch.SP, fr.sp); err != nil {
		return 0, err
	}
	if err := p.RegWrite(p.arch.PC, fr.pc); err != nil {
		return 0, err
	}
	if fr.restart {
		if err := p.RegWrite(p.arch.SysReg, uint64(fr.sysnum)); err != nil {
			return 0, err
		}
	}
	return fr.ret, nil
}
