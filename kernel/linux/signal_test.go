package linux

import (
	"testing"
	"time"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

func pcOf(t *testing.T, p *Process) uint64 {
	t.Helper()
	pc, err := p.RegRead(testArch.PC)
	if err != nil {
		t.Fatal(err)
	}
	return pc
}

func installHandler(p *Process, sig enum.Signal, handler uint64, flags uint64) {
	p.sig.setAction(sig, native.Sigaction{Handler: handler, Flags: flags})
}

func post(t *testing.T, p *Process, sig enum.Signal) {
	t.Helper()
	if err := p.k.sendSignal(p, p.pid, sig); err != nil {
		t.Fatal(err)
	}
}

func TestDeliveryLowestFirst(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	p := forkProc(t, init)
	const h1, h2 = 0x500000, 0x600000
	installHandler(p, enum.SIGUSR1, h1, 0)
	installHandler(p, enum.SIGUSR2, h2, 0)

	// posted high first; the lower number still wins
	post(t, p, enum.SIGUSR2)
	post(t, p, enum.SIGUSR1)

	pc0 := pcOf(t, p)
	ret1, _ := p.Syscall(39, "getpid", noArgs)
	if ret1 != uint64(p.tgid) {
		t.Fatalf("getpid = %d", ret1)
	}
	if pc := pcOf(t, p); pc != h1 {
		t.Fatalf("pc = %#x, want first handler", pc)
	}
	if arg, _ := p.RegRead(testArch.ArgRegs[0]); arg != uint64(enum.SIGUSR1) {
		t.Fatalf("handler arg = %d", arg)
	}
	if sp, _ := p.RegRead(testArch.SP); sp&0xf != 0 {
		t.Fatalf("handler sp %#x not 16-aligned", sp)
	}

	// sigreturn resumes delivery with the next pending signal
	ret2, _ := p.Syscall(15, "rt_sigreturn", noArgs)
	if ret2 != ret1 {
		t.Fatalf("sigreturn = %d, want interrupted return %d", ret2, ret1)
	}
	if pc := pcOf(t, p); pc != h2 {
		t.Fatalf("pc = %#x, want second handler", pc)
	}
	if arg, _ := p.RegRead(testArch.ArgRegs[0]); arg != uint64(enum.SIGUSR2) {
		t.Fatalf("handler arg = %d", arg)
	}

	ret3, _ := p.Syscall(15, "rt_sigreturn", noArgs)
	if ret3 != ret1 {
		t.Fatalf("final sigreturn = %d", ret3)
	}
	if pc := pcOf(t, p); pc != pc0 {
		t.Fatalf("pc = %#x, want resume at %#x", pc, pc0)
	}
}

func TestStandardCoalesceRealtimeQueue(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	p := forkProc(t, init)
	rt := enum.Signal(40)
	const h = 0x500000
	installHandler(p, enum.SIGUSR1, h, 0)
	installHandler(p, rt, h, 0)

	for i := 0; i < 3; i++ {
		post(t, p, enum.SIGUSR1)
		post(t, p, rt)
	}
	k.mu.Lock()
	std, queued := p.pending.counts[enum.SIGUSR1], p.pending.counts[rt]
	k.mu.Unlock()
	if std != 1 {
		t.Fatalf("standard signal queued %d times", std)
	}
	if queued != 3 {
		t.Fatalf("realtime signal coalesced to %d", queued)
	}

	deliveries := 0
	p.Syscall(39, "getpid", noArgs)
	for pcOf(t, p) == h {
		deliveries++
		p.Syscall(15, "rt_sigreturn", noArgs)
	}
	if deliveries != 4 {
		t.Fatalf("%d deliveries, want 1 coalesced + 3 queued", deliveries)
	}
}

func TestBlockedSignalHeld(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	p := forkProc(t, init)
	const h = 0x500000
	installHandler(p, enum.SIGUSR1, h, 0)

	addr, err := p.mem.Mmap(0, 0x1000, 3, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.writeSigset(addr, sigbit(enum.SIGUSR1)); err != nil {
		t.Fatal(err)
	}
	ret, _ := p.Syscall(14, "rt_sigprocmask", argList(enum.SIG_BLOCK, addr, 0, 8))
	if ret != 0 {
		t.Fatalf("rt_sigprocmask = %#x", ret)
	}

	post(t, p, enum.SIGUSR1)
	pc0 := pcOf(t, p)
	p.Syscall(39, "getpid", noArgs)
	if pc := pcOf(t, p); pc != pc0 {
		t.Fatal("blocked signal was delivered")
	}

	// pending set reports the held signal
	lk := lkFor(p)
	if ret := lk.RtSigpending(co.Obuf{Buf: co.NewBuf(lk, addr + 0x100)}, 8); ret != 0 {
		t.Fatalf("rt_sigpending = %#x", ret)
	}
	pend, err := p.readSigset(addr + 0x100)
	if err != nil {
		t.Fatal(err)
	}
	if pend != sigbit(enum.SIGUSR1) {
		t.Fatalf("pending set = %#x", pend)
	}

	// unblock delivers at that syscall's return boundary
	p.Syscall(14, "rt_sigprocmask", argList(enum.SIG_UNBLOCK, addr, 0, 8))
	if pc := pcOf(t, p); pc != h {
		t.Fatalf("pc = %#x after unblock", pc)
	}
}

func TestRtSigaction(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	lk := lkFor(init)
	addr, err := init.mem.Mmap(0, 0x1000, 3, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	if ret := lk.RtSigaction(0, co.Buf{}, co.Obuf{}, 8); ret != Errno(native.EINVAL) {
		t.Fatalf("sig 0 = %#x", ret)
	}
	if ret := lk.RtSigaction(enum.Signal(65), co.Buf{}, co.Obuf{}, 8); ret != Errno(native.EINVAL) {
		t.Fatalf("sig 65 = %#x", ret)
	}
	// KILL and STOP dispositions are immutable
	if ret := lk.RtSigaction(enum.SIGKILL, co.NewBuf(lk, addr), co.Obuf{}, 8); ret != Errno(native.EINVAL) {
		t.Fatalf("sigaction on SIGKILL = %#x", ret)
	}
	if ret := lk.RtSigaction(enum.SIGSTOP, co.NewBuf(lk, addr), co.Obuf{}, 8); ret != Errno(native.EINVAL) {
		t.Fatalf("sigaction on SIGSTOP = %#x", ret)
	}

	want := native.Sigaction{Handler: 0x500000, Flags: enum.SA_RESTART}
	if err := init.StrucAt(addr).Pack(&want); err != nil {
		t.Fatal(err)
	}
	if ret := lk.RtSigaction(enum.SIGUSR1, co.NewBuf(lk, addr), co.Obuf{}, 8); ret != 0 {
		t.Fatalf("install = %#x", ret)
	}
	if got := init.sig.action(enum.SIGUSR1); got != want {
		t.Fatalf("installed action = %+v", got)
	}

	// replacing returns the previous disposition
	if ret := lk.RtSigaction(enum.SIGUSR1, co.Buf{}, co.Obuf{Buf: co.NewBuf(lk, addr + 0x100)}, 8); ret != 0 {
		t.Fatalf("readback = %#x", ret)
	}
	var old native.Sigaction
	if err := init.StrucAt(addr + 0x100).Unpack(&old); err != nil {
		t.Fatal(err)
	}
	if old != want {
		t.Fatalf("old action = %+v", old)
	}
}

func TestDefaultDispositions(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	p := forkProc(t, init)

	// SIGCHLD defaults to ignore
	post(t, p, enum.SIGCHLD)
	pc0 := pcOf(t, p)
	ret, _ := p.Syscall(39, "getpid", noArgs)
	if ret != uint64(p.tgid) || pcOf(t, p) != pc0 {
		t.Fatal("default-ignore signal disturbed the task")
	}
	k.mu.Lock()
	held := p.pending.has(enum.SIGCHLD)
	k.mu.Unlock()
	if held {
		t.Fatal("consumed signal still pending")
	}

	// explicit SIG_IGN drops too
	p.sig.setAction(enum.SIGTERM, native.Sigaction{Handler: enum.SIG_IGN})
	post(t, p, enum.SIGTERM)
	p.Syscall(39, "getpid", noArgs)
	if !p.Alive() {
		t.Fatal("ignored SIGTERM killed the task")
	}

	// default action of SIGTERM is death
	p.sig.setAction(enum.SIGTERM, native.Sigaction{})
	post(t, p, enum.SIGTERM)
	p.Syscall(39, "getpid", noArgs)
	if p.Alive() {
		t.Fatal("defaulted SIGTERM did not kill the task")
	}
	if p.WaitStatus() != enum.StatusSignal(enum.SIGTERM) {
		t.Fatalf("wait status = %#x", p.WaitStatus())
	}
}

func TestInterruptedSyscallEintr(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)
	const h = 0x500000
	installHandler(c, enum.SIGUSR1, h, 0)
	pc0 := pcOf(t, c)

	done := make(chan uint64, 1)
	go func() {
		ret, _ := c.Syscall(34, "pause", noArgs)
		done <- ret
	}()
	time.Sleep(10 * time.Millisecond)
	post(t, c, enum.SIGUSR1)
	if ret := <-done; ret != Errno(native.EINTR) {
		t.Fatalf("pause = %#x", ret)
	}
	if pc := pcOf(t, c); pc != h {
		t.Fatalf("pc = %#x, want handler", pc)
	}
	ret, _ := c.Syscall(15, "rt_sigreturn", noArgs)
	if ret != Errno(native.EINTR) {
		t.Fatalf("sigreturn = %#x", ret)
	}
	if pc := pcOf(t, c); pc != pc0 {
		t.Fatalf("pc = %#x, want %#x with no rewind", pc, pc0)
	}
}

func TestSaRestartRewindsTrap(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)
	forkProc(t, c) // live child keeps wait4 blocking
	const h = 0x500000
	installHandler(c, enum.SIGUSR1, h, enum.SA_RESTART)
	pc0 := pcOf(t, c)

	done := make(chan uint64, 1)
	go func() {
		ret, _ := c.Syscall(61, "wait4", argList(0xffffffffffffffff, 0, 0, 0))
		done <- ret
	}()
	time.Sleep(10 * time.Millisecond)
	post(t, c, enum.SIGUSR1)

	// the syscall register doubles as the return register, so a restart
	// frame hands back the syscall number for the re-executed trap
	if ret := <-done; ret != 61 {
		t.Fatalf("interrupted wait4 = %#x", ret)
	}
	if pc := pcOf(t, c); pc != h {
		t.Fatalf("pc = %#x, want handler", pc)
	}

	ret, _ := c.Syscall(15, "rt_sigreturn", noArgs)
	if ret != 61 {
		t.Fatalf("sigreturn = %#x", ret)
	}
	if pc := pcOf(t, c); pc != pc0-testArch.SysInsSize {
		t.Fatalf("pc = %#x, want trap rewound from %#x", pc, pc0)
	}
	if sysnum, _ := c.RegRead(testArch.SysReg); sysnum != 61 {
		t.Fatalf("syscall register = %d after restart unwind", sysnum)
	}
}

func TestSigaltstack(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	p := forkProc(t, init)
	lk := lkFor(p)
	buf, err := p.mem.Mmap(0, 0x1000, 3, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	// unset stack reads back as disabled
	if ret := lk.Sigaltstack(co.Buf{}, co.Obuf{Buf: co.NewBuf(lk, buf)}); ret != 0 {
		t.Fatalf("sigaltstack = %#x", ret)
	}
	var old native.StackT
	if err := p.StrucAt(buf).Unpack(&old); err != nil {
		t.Fatal(err)
	}
	if old.Flags&enum.SS_DISABLE == 0 {
		t.Fatalf("initial stack not disabled: %+v", old)
	}

	stack, err := p.mem.Mmap(0, 0x2000, 3, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	next := native.StackT{Sp: stack, Size: 0x2000}
	if err := p.StrucAt(buf).Pack(&next); err != nil {
		t.Fatal(err)
	}
	if ret := lk.Sigaltstack(co.NewBuf(lk, buf), co.Obuf{}); ret != 0 {
		t.Fatalf("install = %#x", ret)
	}

	// SA_ONSTACK delivery lands at the top of the alternate stack
	const h = 0x500000
	installHandler(p, enum.SIGUSR1, h, enum.SA_ONSTACK)
	sp0, _ := p.RegRead(testArch.SP)
	post(t, p, enum.SIGUSR1)
	p.Syscall(39, "getpid", noArgs)
	if sp, _ := p.RegRead(testArch.SP); sp != stack+0x2000 {
		t.Fatalf("handler sp = %#x, want alt stack top %#x", sp, stack+0x2000)
	}
	p.Syscall(15, "rt_sigreturn", noArgs)
	if sp, _ := p.RegRead(testArch.SP); sp != sp0 {
		t.Fatalf("sp = %#x, want restored %#x", sp, sp0)
	}

	// bogus flags are rejected
	bad := native.StackT{Sp: stack, Flags: enum.SS_ONSTACK, Size: 0x2000}
	if err := p.StrucAt(buf).Pack(&bad); err != nil {
		t.Fatal(err)
	}
	if ret := lk.Sigaltstack(co.NewBuf(lk, buf), co.Obuf{}); ret != Errno(native.EINVAL) {
		t.Fatalf("bad flags = %#x", ret)
	}
}

func TestHandlerMasksOwnSignal(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	p := forkProc(t, init)
	const h = 0x500000
	installHandler(p, enum.SIGUSR1, h, 0)

	post(t, p, enum.SIGUSR1)
	p.Syscall(39, "getpid", noArgs)
	if pcOf(t, p) != h {
		t.Fatal("first delivery missing")
	}
	// inside the handler the signal is masked; a second instance waits
	post(t, p, enum.SIGUSR1)
	p.Syscall(39, "getpid", noArgs)
	if pc := pcOf(t, p); pc != h {
		t.Fatalf("pc = %#x inside handler", pc)
	}
	if len(p.frames) != 1 {
		t.Fatalf("%d handler frames, want masked nesting", len(p.frames))
	}
	// sigreturn restores the mask and delivers the held instance
	p.Syscall(15, "rt_sigreturn", noArgs)
	if pcOf(t, p) != h || len(p.frames) != 1 {
		t.Fatal("held signal not delivered after sigreturn")
	}
}

func TestSigkillUnblockable(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	p := forkProc(t, init)
	lk := lkFor(p)
	addr, err := p.mem.Mmap(0, 0x1000, 3, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.writeSigset(addr, ^uint64(0)); err != nil {
		t.Fatal(err)
	}
	if ret := lk.RtSigprocmask(enum.SIG_SETMASK, co.NewBuf(lk, addr), co.Obuf{}, 8); ret != 0 {
		t.Fatalf("rt_sigprocmask = %#x", ret)
	}
	if p.sigMask&sigbit(enum.SIGKILL) != 0 || p.sigMask&sigbit(enum.SIGSTOP) != 0 {
		t.Fatal("mask holds unblockable signals")
	}
	post(t, p, enum.SIGKILL)
	p.Syscall(39, "getpid", noArgs)
	if p.Alive() {
		t.Fatal("SIGKILL blocked")
	}
	if p.WaitStatus() != enum.StatusSignal(enum.SIGKILL) {
		t.Fatalf("wait status = %#x", p.WaitStatus())
	}
}

func TestSigsuspendDeliversUnblocked(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)
	const h = 0x500000
	installHandler(c, enum.SIGUSR1, h, 0)
	c.sigMask = sigbit(enum.SIGUSR1)
	addr := scratchPage(t, c)

	// the suspend mask unblocks everything
	done := make(chan uint64, 1)
	go func() {
		ret, _ := c.Syscall(130, "rt_sigsuspend", argList(addr, 8))
		done <- ret
	}()
	time.Sleep(10 * time.Millisecond)
	post(t, c, enum.SIGUSR1)

	if ret := <-done; ret != Errno(native.EINTR) {
		t.Fatalf("sigsuspend = %#x", ret)
	}
	// the handler ran rather than leaving the signal pending
	if pc := pcOf(t, c); pc != h {
		t.Fatalf("pc = %#x, want handler", pc)
	}
	k.mu.Lock()
	pend := c.pending.has(enum.SIGUSR1)
	k.mu.Unlock()
	if pend {
		t.Fatal("signal stayed pending across sigsuspend")
	}
	if len(c.frames) != 1 || c.frames[0].mask != sigbit(enum.SIGUSR1) {
		t.Fatalf("frames = %+v", c.frames)
	}
	// sigreturn reinstates the pre-suspend mask
	lkFor(c).RtSigreturn()
	if c.sigMask != sigbit(enum.SIGUSR1) {
		t.Fatalf("mask after sigreturn = %#x", c.sigMask)
	}
}
