package linux

import (
	"encoding/binary"
	"sync"

	"github.com/keelos/pengolin/host"
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/mem"
	"github.com/keelos/pengolin/models"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

type Creds struct {
	Uid  uint32
	Gid  uint32
	Euid uint32
	Egid uint32
}

type procState int

const (
	statRunning procState = iota
	statStopped
	statZombie
)

// Session and Group mirror the job-control hierarchy. Both are keyed by
// the pid of the leader that created them and are collected when the last
// member leaves.
type Session struct {
	sid    int
	groups map[int]*Group
}

type Group struct {
	pgid    int
	session *Session
	members map[int]*Process
}

// Kernel is the system-wide Linux personality state: the process table,
// group and session arenas, and the condition variable every blocking
// syscall sleeps on. One Kernel serves all tasks; each task additionally
// carries its own handler instance.
type Kernel struct {
	mu   sync.Mutex
	cond *sync.Cond

	config *models.Config
	fs     host.FileSystem
	sched  host.Scheduler
	net    host.Net
	tracer Tracer

	procs    map[int]*Process
	groups   map[int]*Group
	sessions map[int]*Session
	nextPid  int
}

// Tracer observes syscall entry and exit. Wired up by the embedder when
// strace output or trace recording is enabled.
type Tracer interface {
	OnEnter(pid int, num int, sys *co.Syscall, args []uint64)
	OnExit(pid int, num int, sys *co.Syscall, args []uint64, ret uint64)
}

func NewKernel(fs host.FileSystem, sched host.Scheduler, config *models.Config) *Kernel {
	if config == nil {
		config = &models.Config{}
	}
	config.Init()
	k := &Kernel{
		config:   config,
		fs:       fs,
		sched:    sched,
		procs:    make(map[int]*Process),
		groups:   make(map[int]*Group),
		sessions: make(map[int]*Session),
		nextPid:  1,
	}
	k.cond = sync.NewCond(&k.mu)
	return k
}

func (k *Kernel) SetNet(n host.Net)    { k.net = n }
func (k *Kernel) SetTracer(t Tracer)   { k.tracer = t }
func (k *Kernel) Config() *models.Config { return k.config }

// Lookup returns the live or zombie process with the given pid.
func (k *Kernel) Lookup(pid int) *Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.procs[pid]
}

// Process is one schedulable Linux task. It implements models.Task, so the
// same object flows from the trap layer through the dispatcher into the
// handlers.
type Process struct {
	k     *Kernel
	arch  *models.Arch
	os    *models.OS
	osk   interface{} // personality handler instance, built on first dispatch
	order binary.ByteOrder

	trap models.TrapContext

	pid      int
	tgid     int
	parent   *Process
	children map[int]*Process
	group    *Group
	creds    Creds
	exe      string
	cwd      string
	umask    uint32
	didExec  bool

	mem     *mem.AddrSpace
	fds     *FdTable
	sig     *SigTable
	pending *SigPending // shared for CLONE_THREAD siblings
	sigMask uint64
	// mask to reinstate after a sigsuspend-interrupting handler is set up
	suspendedMask *uint64
	altStack native.StackT
	frames  []sigFrame

	state       procState
	exitStatus  int
	stopSig     enum.Signal
	stopPending bool
	contPending bool

	tls           uint64
	clearChildTid uint64

	// kicks timed sleeps when a signal arrives
	wake chan struct{}
}

func (k *Kernel) newProcessLocked(parent *Process, a *models.Arch, osv *models.OS) *Process {
	pid := k.nextPid
	k.nextPid++
	p := &Process{
		k:        k,
		arch:     a,
		os:       osv,
		order:    binary.LittleEndian,
		pid:      pid,
		tgid:     pid,
		children: make(map[int]*Process),
		cwd:      "/",
		umask:    0022,
		state:    statRunning,
		wake:     make(chan struct{}, 1),
	}
	k.procs[pid] = p
	if parent == nil {
		s := &Session{sid: pid, groups: make(map[int]*Group)}
		k.sessions[pid] = s
		g := k.newGroupLocked(pid, s)
		k.joinGroupLocked(p, g)
	} else {
		p.parent = parent
		parent.children[pid] = p
		p.creds = parent.creds
		p.cwd = parent.cwd
		p.umask = parent.umask
		p.sigMask = parent.sigMask
		p.altStack = parent.altStack
		k.joinGroupLocked(p, parent.group)
	}
	return p
}

func (k *Kernel) newGroupLocked(pgid int, s *Session) *Group {
	g := &Group{pgid: pgid, session: s, members: make(map[int]*Process)}
	k.groups[pgid] = g
	s.groups[pgid] = g
	return g
}

func (k *Kernel) joinGroupLocked(p *Process, g *Group) {
	k.leaveGroupLocked(p)
	p.group = g
	g.members[p.pid] = p
}

func (k *Kernel) leaveGroupLocked(p *Process) {
	g := p.group
	if g == nil {
		return
	}
	delete(g.members, p.pid)
	p.group = nil
	if len(g.members) == 0 {
		delete(k.groups, g.pgid)
		s := g.session
		delete(s.groups, g.pgid)
		if len(s.groups) == 0 {
			delete(k.sessions, s.sid)
		}
	}
}

// Boot creates pid 1 with fds 0-2 on the console, loads the executable at
// path and hands the task to the scheduler.
func (k *Kernel) Boot(a *models.Arch, osv *models.OS, ctx models.TrapContext, path string, argv, env []string) (*Process, error) {
	k.mu.Lock()
	p := k.newProcessLocked(nil, a, osv)
	p.trap = ctx
	p.mem = mem.NewAddrSpace(a.UserBase, a.UserSize, a.PageSize)
	p.fds = NewFdTable()
	p.sig = newSigTable()
	p.pending = &SigPending{}
	k.mu.Unlock()

	for fd := 0; fd < 3; fd++ {
		f, err := k.fs.Open("/dev/console", int(enum.O_RDWR), 0)
		if err != nil {
			return nil, err
		}
		desc := newFileDesc(f, "/dev/console", enum.O_RDWR)
		if _, err := p.fds.Install(fd, desc, false); err != nil {
			return nil, err
		}
	}
	if err := p.execImage(path, argv, env); err != nil {
		return nil, err
	}
	if err := k.sched.Spawn(p.pid, p.trap); err != nil {
		return nil, native.EAGAIN
	}
	return p, nil
}

// Dispatch services one trapped syscall on behalf of the trap layer.
func (k *Kernel) Dispatch(p *Process, ctx models.TrapContext) {
	if ctx != nil {
		p.trap = ctx
	}
	p.os.Syscall(p)
}

// clone creates a child sharing resources according to flags. The child's
// trap frame is a copy of the parent's with the return register zeroed.
func (k *Kernel) clone(parent *Process, flags enum.CloneFlag, stack, tls uint64) (*Process, error) {
	if flags&enum.CLONE_THREAD != 0 && flags&enum.CLONE_SIGHAND == 0 {
		return nil, native.EINVAL
	}
	if flags&enum.CLONE_SIGHAND != 0 && flags&enum.CLONE_VM == 0 {
		return nil, native.EINVAL
	}
	k.mu.Lock()
	child := k.newProcessLocked(parent, parent.arch, parent.os)
	child.exe = parent.exe
	if flags&enum.CLONE_VM != 0 {
		child.mem = parent.mem.IncRef()
	} else {
		child.mem = parent.mem.Fork()
	}
	if flags&enum.CLONE_FILES != 0 {
		child.fds = parent.fds.IncRef()
	} else {
		child.fds = parent.fds.Fork()
	}
	if flags&enum.CLONE_SIGHAND != 0 {
		child.sig = parent.sig.IncRef()
	} else {
		child.sig = parent.sig.Fork()
	}
	if flags&enum.CLONE_THREAD != 0 {
		child.tgid = parent.tgid
		child.pending = parent.pending
		child.parent = parent.parent
	} else {
		child.pending = &SigPending{}
	}
	k.mu.Unlock()

	child.trap = parent.trap.Clone()
	child.trap.RegWrite(parent.arch.RetReg, 0)
	if stack != 0 {
		child.trap.RegWrite(parent.arch.SP, stack)
	}
	if flags&enum.CLONE_SETTLS != 0 {
		child.tls = tls
	}
	return child, nil
}

// exitLocked turns p into a zombie, releases its resources, reparents its
// children to init and notifies the parent.
func (k *Kernel) exitLocked(p *Process, status int) {
	if p.state == statZombie {
		return
	}
	p.exitStatus = status
	p.state = statZombie
	if p.clearChildTid != 0 {
		var zero [4]byte
		p.mem.WriteAt(zero[:], p.clearChildTid)
		p.clearChildTid = 0
	}
	p.mem.DecRef()
	p.fds.DecRef()
	p.sig.DecRef()

	init := k.procs[1]
	for cpid, c := range p.children {
		c.parent = init
		if init != nil && init != p {
			init.children[cpid] = c
		}
	}
	p.children = make(map[int]*Process)

	if p.pid != p.tgid {
		// non-leader threads are invisible to wait; retire immediately
		k.reapLocked(p)
	} else if p.parent != nil {
		k.postSignalLocked(p.parent, enum.SIGCHLD)
	}
	k.cond.Broadcast()
}

// terminateLocked is signal-driven death for the whole thread group.
func (k *Kernel) terminateLocked(p *Process, sig enum.Signal) {
	k.exitGroupLocked(p, enum.StatusSignal(sig))
}

func (k *Kernel) exitGroupLocked(p *Process, status int) {
	for _, q := range k.procs {
		if q != p && q.tgid == p.tgid {
			k.exitLocked(q, status)
		}
	}
	k.exitLocked(p, status)
}

func (k *Kernel) reapLocked(p *Process) {
	delete(k.procs, p.pid)
	if p.parent != nil {
		delete(p.parent.children, p.pid)
	}
	k.leaveGroupLocked(p)
	k.sched.Exit(p.pid, p.exitStatus)
}

func waitMatch(caller, c *Process, pid int) bool {
	switch {
	case pid > 0:
		return c.pid == pid
	case pid == -1:
		return true
	case pid == 0:
		return c.group == caller.group
	default:
		return c.group != nil && c.group.pgid == -pid
	}
}

// wait implements the wait4 selector loop. Returns (0, 0, nil) for an
// unsatisfied WNOHANG and ERESTARTSYS when interrupted by a signal.
func (k *Kernel) wait(caller *Process, pid int, options enum.WaitOpt) (int, int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for {
		found := false
		for _, c := range caller.children {
			if c.pid != c.tgid || !waitMatch(caller, c, pid) {
				continue
			}
			found = true
			if c.state == statZombie {
				cpid, status := c.pid, c.exitStatus
				k.reapLocked(c)
				return cpid, status, nil
			}
			if options&enum.WUNTRACED != 0 && c.state == statStopped && c.stopPending {
				c.stopPending = false
				return c.pid, enum.StatusStop(c.stopSig), nil
			}
			if options&enum.WCONTINUED != 0 && c.contPending {
				c.contPending = false
				return c.pid, enum.StatusCont(), nil
			}
		}
		if !found {
			return 0, 0, native.ECHILD
		}
		if options&enum.WNOHANG != 0 {
			return 0, 0, nil
		}
		if caller.state == statZombie || caller.pending.next(caller.effMask()) != 0 {
			return 0, 0, native.ERESTARTSYS
		}
		k.cond.Wait()
	}
}

// setpgid moves a process (the caller or one of its children that has not
// execed) into a process group within the caller's session.
func (k *Kernel) setpgid(caller *Process, pid, pgid int) error {
	if pgid < 0 {
		return native.EINVAL
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	target := caller
	if pid != 0 && pid != caller.pid {
		t := k.procs[pid]
		if t == nil || t.state == statZombie || t.parent != caller {
			return native.ESRCH
		}
		if t.didExec {
			return native.EACCES
		}
		target = t
	}
	if pgid == 0 {
		pgid = target.pid
	}
	if target.group.session.sid == target.pid {
		// session leaders keep their group
		return native.EPERM
	}
	if target.group.session != caller.group.session {
		return native.EPERM
	}
	g := k.groups[pgid]
	if g == nil {
		if pgid != target.pid {
			return native.EPERM
		}
		g = k.newGroupLocked(pgid, target.group.session)
	} else if g.session != caller.group.session {
		return native.EPERM
	}
	k.joinGroupLocked(target, g)
	return nil
}

func (k *Kernel) getpgid(caller *Process, pid int) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	target := caller
	if pid != 0 {
		if target = k.procs[pid]; target == nil {
			return 0, native.ESRCH
		}
	}
	return target.group.pgid, nil
}

func (k *Kernel) getsid(caller *Process, pid int) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	target := caller
	if pid != 0 {
		if target = k.procs[pid]; target == nil {
			return 0, native.ESRCH
		}
	}
	return target.group.session.sid, nil
}

func (k *Kernel) setsid(caller *Process) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if caller.group.pgid == caller.pid {
		return 0, native.EPERM
	}
	s := &Session{sid: caller.pid, groups: make(map[int]*Group)}
	k.sessions[caller.pid] = s
	g := k.newGroupLocked(caller.pid, s)
	k.joinGroupLocked(caller, g)
	return caller.pid, nil
}

// sendSignal resolves a kill-style pid selector and posts sig to every
// matching process. sig 0 checks for existence only.
func (k *Kernel) sendSignal(caller *Process, pid int, sig enum.Signal) error {
	if sig < 0 || sig > enum.NSIG {
		return native.EINVAL
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	var targets []*Process
	switch {
	case pid > 0:
		t := k.procs[pid]
		if t == nil {
			return native.ESRCH
		}
		targets = append(targets, t)
	case pid == 0:
		for _, t := range caller.group.members {
			targets = append(targets, t)
		}
	case pid == -1:
		for _, t := range k.procs {
			if t.pid != 1 && t.tgid != caller.tgid {
				targets = append(targets, t)
			}
		}
	default:
		g := k.groups[-pid]
		if g == nil {
			return native.ESRCH
		}
		for _, t := range g.members {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return native.ESRCH
	}
	if sig == 0 {
		return nil
	}
	for _, t := range targets {
		k.postSignalLocked(t, sig)
	}
	return nil
}

func (k *Kernel) sendTgkill(tgid, tid int, sig enum.Signal) error {
	if sig < 0 || sig > enum.NSIG {
		return native.EINVAL
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.procs[tid]
	if t == nil || (tgid > 0 && t.tgid != tgid) {
		return native.ESRCH
	}
	if sig != 0 {
		k.postSignalLocked(t, sig)
	}
	return nil
}

// postSignalLocked marks sig pending on p and wakes any sleep it may be
// blocked in. SIGCONT resumes a stopped target even if it is ignored.
func (k *Kernel) postSignalLocked(p *Process, sig enum.Signal) {
	if p.state == statZombie || sig == 0 {
		return
	}
	if sig == enum.SIGCONT {
		p.pending.clear(enum.SIGSTOP)
		p.pending.clear(enum.SIGTSTP)
		p.pending.clear(enum.SIGTTIN)
		p.pending.clear(enum.SIGTTOU)
		if p.state == statStopped {
			p.state = statRunning
			p.contPending = true
		}
	}
	if sig == enum.SIGSTOP {
		p.pending.clear(enum.SIGCONT)
	}
	p.pending.post(sig)
	k.cond.Broadcast()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
