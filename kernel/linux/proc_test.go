package linux

import (
	"testing"
	"time"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

func TestPidsUnique(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	seen := map[int]bool{init.pid: true}
	var children []*Process
	for i := 0; i < 8; i++ {
		c := forkProc(t, init)
		if seen[c.pid] {
			t.Fatalf("pid %d reused", c.pid)
		}
		seen[c.pid] = true
		children = append(children, c)
	}
	// a zombie's pid stays taken until the parent reaps it
	exitProc(children[0], 0)
	if k.Lookup(children[0].pid) == nil {
		t.Fatal("zombie dropped from the process table before reap")
	}
}

func TestWaitReapsExactlyOnce(t *testing.T) {
	k, _, sched := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)
	exitProc(c, 7)

	pid, status, err := k.wait(init, c.pid, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pid != c.pid || status != enum.StatusExit(7) {
		t.Fatalf("wait = %d, %#x", pid, status)
	}
	if k.Lookup(c.pid) != nil {
		t.Fatal("reap left the zombie in the process table")
	}
	sched.mu.Lock()
	if sched.exited[c.pid] != enum.StatusExit(7) {
		t.Fatal("reap did not retire the task with the scheduler")
	}
	sched.mu.Unlock()

	// second wait for the same pid: no such child
	if _, _, err := k.wait(init, c.pid, 0); err != native.ECHILD {
		t.Fatalf("wait after reap: %v", err)
	}
}

func TestWaitNohang(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	forkProc(t, init)
	pid, _, err := k.wait(init, -1, enum.WNOHANG)
	if err != nil || pid != 0 {
		t.Fatalf("WNOHANG with live child = %d, %v", pid, err)
	}
}

func TestWaitSelectors(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	a := forkProc(t, init)
	b := forkProc(t, init)

	// move b into its own group; wait by -pgid must not reap a
	if err := k.setpgid(b, b.pid, 0); err != nil {
		t.Fatal(err)
	}
	exitProc(a, 1)
	exitProc(b, 2)
	pid, status, err := k.wait(init, -b.pid, 0)
	if err != nil || pid != b.pid || status != enum.StatusExit(2) {
		t.Fatalf("wait(-pgid) = %d, %#x, %v", pid, status, err)
	}
	pid, _, err = k.wait(init, -1, 0)
	if err != nil || pid != a.pid {
		t.Fatalf("wait(-1) = %d, %v", pid, err)
	}
}

func TestConcurrentWaitersReapOnce(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)

	type res struct {
		pid int
		err error
	}
	results := make(chan res, 2)
	for i := 0; i < 2; i++ {
		go func() {
			pid, _, err := k.wait(init, -1, 0)
			results <- res{pid, err}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	exitProc(c, 0)

	var reaped, echild int
	for i := 0; i < 2; i++ {
		r := <-results
		switch {
		case r.err == nil && r.pid == c.pid:
			reaped++
		case r.err == native.ECHILD:
			echild++
		default:
			t.Fatalf("unexpected wait result: %d, %v", r.pid, r.err)
		}
	}
	if reaped != 1 || echild != 1 {
		t.Fatalf("reaped %d times, ECHILD %d times", reaped, echild)
	}
}

func TestReparentToInit(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	a := forkProc(t, init)
	b := forkProc(t, a)

	exitProc(a, 0)
	if b.parent != init {
		t.Fatal("orphan not reparented to init")
	}
	if _, _, err := k.wait(init, a.pid, 0); err != nil {
		t.Fatal(err)
	}
	exitProc(b, 3)
	pid, status, err := k.wait(init, b.pid, 0)
	if err != nil || pid != b.pid || status != enum.StatusExit(3) {
		t.Fatalf("init wait for grandchild = %d, %#x, %v", pid, status, err)
	}
}

func TestSetpgidSelf(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)
	lk := lkFor(c)

	if ret := lk.Setpgid(0, 0); ret != 0 {
		t.Fatalf("setpgid(0,0) = %#x", ret)
	}
	if ret := lk.Getpgid(0); ret != uint64(c.pid) {
		t.Fatalf("getpgid(0) = %d, want %d", ret, c.pid)
	}
	if ret := lk.Getpgrp(); ret != uint64(c.pid) {
		t.Fatalf("getpgrp() = %d, want %d", ret, c.pid)
	}
}

func TestSetpgidRules(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	a := forkProc(t, init)
	b := forkProc(t, init)

	// session leaders keep their group
	if err := k.setpgid(init, 0, 0); err != native.EPERM {
		t.Fatalf("setpgid on session leader: %v", err)
	}
	// only the caller or its children may be targeted
	if err := k.setpgid(a, b.pid, 0); err != native.ESRCH {
		t.Fatalf("setpgid on sibling: %v", err)
	}
	// joining a nonexistent group other than your own pid
	if err := k.setpgid(init, a.pid, 4242); err != native.EPERM {
		t.Fatalf("setpgid to missing group: %v", err)
	}
	// a child that has execed is out of reach
	b.didExec = true
	if err := k.setpgid(init, b.pid, 0); err != native.EACCES {
		t.Fatalf("setpgid on execed child: %v", err)
	}

	// a group in another session is off limits
	if _, err := k.setsid(a); err != nil {
		t.Fatal(err)
	}
	c := forkProc(t, a)
	if err := k.setpgid(c, 0, init.group.pgid); err != native.EPERM {
		t.Fatalf("setpgid across sessions: %v", err)
	}
}

func TestSetsid(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	a := forkProc(t, init)

	sid, err := k.setsid(a)
	if err != nil || sid != a.pid {
		t.Fatalf("setsid = %d, %v", sid, err)
	}
	if a.group.session.sid != a.pid || a.group.pgid != a.pid {
		t.Fatal("setsid did not make a leader of a fresh group")
	}
	// a group leader cannot start a session
	if _, err := k.setsid(a); err != native.EPERM {
		t.Fatalf("setsid as leader: %v", err)
	}
}

func TestForkThenReapRestoresParent(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)

	beforeRegions := init.mem.Regions()
	beforeFds := make(map[int]*FileDesc)
	for fd := 0; fd < 8; fd++ {
		if d, err := init.fds.Get(fd); err == nil {
			beforeFds[fd] = d
		}
	}

	c := forkProc(t, init)
	exitProc(c, 0)
	if _, _, err := k.wait(init, c.pid, 0); err != nil {
		t.Fatal(err)
	}

	afterRegions := init.mem.Regions()
	if len(afterRegions) != len(beforeRegions) {
		t.Fatalf("region count changed: %d -> %d", len(beforeRegions), len(afterRegions))
	}
	for i, r := range afterRegions {
		b := beforeRegions[i]
		if r.Addr != b.Addr || r.Size != b.Size || r.Prot != b.Prot || r.Shared != b.Shared {
			t.Fatalf("region %d changed: %s -> %s", i, b.String(), r.String())
		}
	}
	for fd, d := range beforeFds {
		after, err := init.fds.Get(fd)
		if err != nil || after != d {
			t.Fatalf("fd %d changed across fork+reap", fd)
		}
	}
	if len(init.children) != 0 {
		t.Fatal("reaped child still linked")
	}
}

func TestCloneSharing(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)

	th, err := k.clone(init, enum.CLONE_VM|enum.CLONE_FILES|enum.CLONE_SIGHAND|enum.CLONE_THREAD, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if th.mem != init.mem || th.fds != init.fds || th.sig != init.sig {
		t.Fatal("thread clone copied instead of sharing")
	}
	if th.tgid != init.tgid || th.pid == init.pid {
		t.Fatalf("thread identity: pid %d tgid %d", th.pid, th.tgid)
	}
	if th.pending != init.pending {
		t.Fatal("thread has a private pending set")
	}

	proc, err := k.clone(init, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if proc.mem == init.mem || proc.fds == init.fds || proc.sig == init.sig {
		t.Fatal("fork shared instead of copying")
	}
	if proc.tgid != proc.pid {
		t.Fatal("forked child is not a group leader")
	}

	// CLONE_THREAD requires CLONE_SIGHAND, which requires CLONE_VM
	if _, err := k.clone(init, enum.CLONE_THREAD, 0, 0); err != native.EINVAL {
		t.Fatalf("bare CLONE_THREAD: %v", err)
	}
	if _, err := k.clone(init, enum.CLONE_SIGHAND, 0, 0); err != native.EINVAL {
		t.Fatalf("bare CLONE_SIGHAND: %v", err)
	}
}

func TestWaitSignaledStatus(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)

	done := make(chan uint64, 1)
	go func() {
		ret, _ := c.Syscall(34, "pause", noArgs)
		done <- ret
	}()
	time.Sleep(10 * time.Millisecond)
	if err := k.sendSignal(init, c.pid, enum.SIGKILL); err != nil {
		t.Fatal(err)
	}
	<-done

	pid, status, err := k.wait(init, c.pid, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pid != c.pid || status != enum.StatusSignal(enum.SIGKILL) {
		t.Fatalf("wait = %d, %#x", pid, status)
	}
}

func TestKillSelectors(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	a := forkProc(t, init)
	b := forkProc(t, init)

	if err := k.sendSignal(init, 4242, enum.SIGTERM); err != native.ESRCH {
		t.Fatalf("kill of missing pid: %v", err)
	}
	// signal 0 checks permission without posting
	if err := k.sendSignal(init, a.pid, 0); err != nil {
		t.Fatal(err)
	}
	k.mu.Lock()
	pend := a.pending.has(enum.SIGTERM)
	k.mu.Unlock()
	if pend {
		t.Fatal("signal 0 posted a signal")
	}

	// negative pid targets the whole group
	if err := k.setpgid(a, a.pid, 0); err != nil {
		t.Fatal(err)
	}
	if err := k.sendSignal(init, -a.pid, enum.SIGTERM); err != nil {
		t.Fatal(err)
	}
	k.mu.Lock()
	aHit, bHit := a.pending.has(enum.SIGTERM), b.pending.has(enum.SIGTERM)
	k.mu.Unlock()
	if !aHit || bHit {
		t.Fatalf("kill(-pgid) hit a=%v b=%v", aHit, bHit)
	}
}

func TestGetppid(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)
	if ret := lkFor(c).Getppid(); ret != init.pid {
		t.Fatalf("getppid = %d", ret)
	}
	if ret := lkFor(init).Getppid(); ret != 0 {
		t.Fatalf("init getppid = %d", ret)
	}
}

func TestWait4Handler(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)
	exitProc(c, 5)

	lk := lkFor(init)
	addr, err := init.mem.Mmap(0, 0x1000, 3, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	ret := lk.Wait4(c.pid, co.Obuf{Buf: co.NewBuf(lk, addr)}, 0, co.Obuf{})
	if ret != uint64(c.pid) {
		t.Fatalf("wait4 = %#x", ret)
	}
	var buf [4]byte
	init.mem.ReadAt(buf[:], addr)
	if int32(init.order.Uint32(buf[:])) != int32(enum.StatusExit(5)) {
		t.Fatalf("wstatus = %#x", init.order.Uint32(buf[:]))
	}
}

func TestDispatchNegativePidArgs(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	c := forkProc(t, init)
	exitProc(c, 3)

	// wait4(-1) arrives sign-extended to 64 bits
	ret, _ := init.Syscall(61, "wait4", argList(^uint64(0), 0, 0, 0))
	if ret != uint64(c.pid) {
		t.Fatalf("wait4(-1) = %#x", ret)
	}

	c2 := forkProc(t, init)
	if ret := lkFor(init).Setpgid(c2.pid, 0); ret != 0 {
		t.Fatalf("setpgid = %#x", ret)
	}
	// kill(-pgid, 0) checks the group exists without posting
	ret, _ = init.Syscall(62, "kill", argList(uint64(int64(-c2.pid)), 0))
	if ret != 0 {
		t.Fatalf("kill(-pgid, 0) = %#x", ret)
	}
}

func TestForkClearsExecFlag(t *testing.T) {
	k, _, _ := newTestKernel(t)
	init := bootInit(t, k)
	if !init.didExec {
		t.Fatal("boot did not mark init as execed")
	}
	c := forkProc(t, init)
	if c.didExec {
		t.Fatal("fork carried the exec flag into the child")
	}
	// the parent may still move the fresh child between groups
	if ret := lkFor(init).Setpgid(c.pid, 0); ret != 0 {
		t.Fatalf("setpgid on fresh child = %#x", ret)
	}
}
