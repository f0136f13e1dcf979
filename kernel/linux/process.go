package linux

import (
	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

func (lk *LinuxKernel) Getpid() int  { return lk.P.tgid }
func (lk *LinuxKernel) Gettid() int  { return lk.P.pid }

func (lk *LinuxKernel) Getppid() int {
	k := lk.K
	k.mu.Lock()
	defer k.mu.Unlock()
	if lk.P.parent != nil {
		return lk.P.parent.tgid
	}
	return 0
}

func (lk *LinuxKernel) Getuid() int  { return int(lk.P.creds.Uid) }
func (lk *LinuxKernel) Geteuid() int { return int(lk.P.creds.Euid) }
func (lk *LinuxKernel) Getgid() int  { return int(lk.P.creds.Gid) }
func (lk *LinuxKernel) Getegid() int { return int(lk.P.creds.Egid) }

func (lk *LinuxKernel) Setuid(uid int) uint64 {
	c := &lk.P.creds
	if c.Euid != 0 && uint32(uid) != c.Uid && uint32(uid) != c.Euid {
		return Errno(native.EPERM)
	}
	c.Uid = uint32(uid)
	c.Euid = uint32(uid)
	return 0
}

func (lk *LinuxKernel) Setgid(gid int) uint64 {
	c := &lk.P.creds
	if c.Euid != 0 && uint32(gid) != c.Gid && uint32(gid) != c.Egid {
		return Errno(native.EPERM)
	}
	c.Gid = uint32(gid)
	c.Egid = uint32(gid)
	return 0
}

func (lk *LinuxKernel) Getpgid(pid int) uint64 {
	pgid, err := lk.K.getpgid(lk.P, pid)
	if err != nil {
		return Errno(err)
	}
	return uint64(pgid)
}

func (lk *LinuxKernel) Getpgrp() uint64 {
	return lk.Getpgid(0)
}

func (lk *LinuxKernel) Setpgid(pid, pgid int) uint64 {
	return Errno(lk.K.setpgid(lk.P, pid, pgid))
}

func (lk *LinuxKernel) Getsid(pid int) uint64 {
	sid, err := lk.K.getsid(lk.P, pid)
	if err != nil {
		return Errno(err)
	}
	return uint64(sid)
}

func (lk *LinuxKernel) Setsid() uint64 {
	sid, err := lk.K.setsid(lk.P)
	if err != nil {
		return Errno(err)
	}
	return uint64(sid)
}

// doClone finishes a clone after the kernel built the child: tid writes,
// then hand the child to the scheduler.
func (lk *LinuxKernel) doClone(flags enum.CloneFlag, stack uint64, ptid, ctid co.Ptr, tls uint64) uint64 {
	p := lk.P
	child, err := p.k.clone(p, flags, stack, tls)
	if err != nil {
		return Errno(err)
	}
	var pidbuf [4]byte
	p.order.PutUint32(pidbuf[:], uint32(child.pid))
	if flags&enum.CLONE_PARENT_SETTID != 0 && ptid != 0 {
		p.mem.WriteAt(pidbuf[:], uint64(ptid))
	}
	if flags&enum.CLONE_CHILD_SETTID != 0 && ctid != 0 {
		child.mem.WriteAt(pidbuf[:], uint64(ctid))
	}
	if flags&enum.CLONE_CHILD_CLEARTID != 0 {
		child.clearChildTid = uint64(ctid)
	}
	if err := p.k.sched.Spawn(child.pid, child.trap); err != nil {
		return Errno(native.EAGAIN)
	}
	return uint64(child.pid)
}

func (lk *LinuxKernel) Fork() uint64 {
	return lk.doClone(0, 0, 0, 0, 0)
}

func (lk *LinuxKernel) Vfork() uint64 {
	return lk.doClone(0, 0, 0, 0, 0)
}

// Clone uses the x86_64 argument order; arches with the ctid/tls swap
// override this method.
func (lk *LinuxKernel) Clone(flags enum.CloneFlag, stack uint64, ptid co.Ptr, ctid co.Ptr, tls uint64) uint64 {
	return lk.doClone(flags, stack, ptid, ctid, tls)
}

func (lk *LinuxKernel) Execve(path string, argv co.Ptr, envp co.Ptr) uint64 {
	p := lk.P
	args, err := p.readPtrArray(uint64(argv))
	if err != nil {
		return Errno(native.EFAULT)
	}
	env, err := p.readPtrArray(uint64(envp))
	if err != nil {
		return Errno(native.EFAULT)
	}
	if err := p.execImage(p.absPath(path), args, env); err != nil {
		return Errno(err)
	}
	return 0
}

func (lk *LinuxKernel) Exit(code int) {
	k := lk.K
	k.mu.Lock()
	k.exitLocked(lk.P, enum.StatusExit(code))
	k.mu.Unlock()
}

func (lk *LinuxKernel) ExitGroup(code int) {
	k := lk.K
	k.mu.Lock()
	k.exitGroupLocked(lk.P, enum.StatusExit(code))
	k.mu.Unlock()
}

func (lk *LinuxKernel) Wait4(pid int, wstatus co.Obuf, options enum.WaitOpt, rusage co.Obuf) uint64 {
	cpid, status, err := lk.K.wait(lk.P, pid, options)
	if err != nil {
		return Errno(err)
	}
	if cpid == 0 {
		// unsatisfied WNOHANG
		return 0
	}
	if wstatus.Addr != 0 {
		if err := wstatus.Pack(int32(status)); err != nil {
			return Errno(native.EFAULT)
		}
	}
	if rusage.Addr != 0 {
		if err := rusage.Pack(&native.Rusage{}); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return uint64(cpid)
}

func (lk *LinuxKernel) Kill(pid int, sig enum.Signal) uint64 {
	return Errno(lk.K.sendSignal(lk.P, pid, sig))
}

func (lk *LinuxKernel) Tkill(tid int, sig enum.Signal) uint64 {
	return Errno(lk.K.sendTgkill(0, tid, sig))
}

func (lk *LinuxKernel) Tgkill(tgid, tid int, sig enum.Signal) uint64 {
	return Errno(lk.K.sendTgkill(tgid, tid, sig))
}

func (lk *LinuxKernel) SetTidAddress(tidptr co.Ptr) int {
	lk.P.clearChildTid = uint64(tidptr)
	return lk.P.pid
}

func (lk *LinuxKernel) Umask(mask int) int {
	old := lk.P.umask
	lk.P.umask = uint32(mask) & 0777
	return int(old)
}

func (lk *LinuxKernel) Getcwd(buf co.Obuf, size co.Len) uint64 {
	cwd := lk.P.cwd + "\x00"
	if uint64(len(cwd)) > uint64(size) {
		return Errno(native.ERANGE)
	}
	if err := buf.Pack([]byte(cwd)); err != nil {
		return Errno(native.EFAULT)
	}
	return uint64(len(cwd))
}

func (lk *LinuxKernel) Chdir(path string) uint64 {
	p := lk.P
	abs := p.absPath(path)
	fi, err := p.k.fs.Stat(abs)
	if err != nil {
		return Errno(err)
	}
	if fi.Mode&enum.S_IFMT != enum.S_IFDIR {
		return Errno(native.ENOTDIR)
	}
	p.cwd = abs
	return 0
}
