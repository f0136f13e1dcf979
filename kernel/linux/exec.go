package linux

import (
	"crypto/rand"

	"github.com/keelos/pengolin/loader"
	"github.com/keelos/pengolin/mem"
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

const (
	stackSize = 8 * 1024 * 1024

	maxInterpDepth = 4
)

// ELF auxiliary vector types
const (
	elfAtNull     = 0
	elfAtPhdr     = 3
	elfAtPhent    = 4
	elfAtPhnum    = 5
	elfAtPagesz   = 6
	elfAtBase     = 7
	elfAtFlags    = 8
	elfAtEntry    = 9
	elfAtUid      = 11
	elfAtEuid     = 12
	elfAtGid      = 13
	elfAtEgid     = 14
	elfAtPlatform = 15
	elfAtClktck   = 17
	elfAtSecure   = 23
	elfAtRandom   = 25
)

func (p *Process) readImage(path string) ([]byte, error) {
	f, err := p.k.fs.Open(path, int(enum.O_RDONLY), 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Mode&enum.S_IFMT == enum.S_IFDIR {
		return nil, native.EISDIR
	}
	data := make([]byte, fi.Size)
	if _, err := f.Read(data, 0); err != nil && fi.Size > 0 {
		return nil, native.EIO
	}
	return data, nil
}

// execImage replaces the task's user context with a fresh image. All
// validation happens before the old address space is torn down, so a
// failed exec leaves the caller able to return the error.
func (p *Process) execImage(path string, argv, env []string) error {
	data, err := p.readImage(path)
	if err != nil {
		if no, ok := err.(native.Errno); ok {
			return no
		}
		return native.ENOEXEC
	}

	for depth := 0; loader.MatchShebang(data); depth++ {
		if depth >= maxInterpDepth {
			return native.ELOOP
		}
		interp, arg := loader.ParseShebang(data)
		if interp == "" {
			return native.ENOEXEC
		}
		// the script path becomes the interpreter's argument
		newArgv := []string{interp}
		if arg != "" {
			newArgv = append(newArgv, arg)
		}
		newArgv = append(newArgv, path)
		if len(argv) > 1 {
			newArgv = append(newArgv, argv[1:]...)
		}
		argv = newArgv
		path = p.absPath(interp)
		data, err = p.readImage(path)
		if err != nil {
			if no, ok := err.(native.Errno); ok {
				return no
			}
			return native.ENOEXEC
		}
	}

	l, err := loader.New(data)
	if err != nil {
		return native.ENOEXEC
	}
	if l.Arch() != p.arch.Name || l.OS() != "linux" {
		return native.ENOEXEC
	}
	if l.Type() != loader.EXEC || l.Interp() != "" {
		// only static executables load here
		return native.ENOEXEC
	}
	segments, err := l.Segments()
	if err != nil {
		return native.ENOEXEC
	}
	if len(argv) == 0 {
		argv = []string{path}
	}

	// point of no return
	p.mem.DecRef()
	p.mem = mem.NewAddrSpace(p.arch.UserBase, p.arch.UserSize, p.arch.PageSize)
	p.fds.OnExec()
	if p.sig.shared() {
		old := p.sig
		p.sig = old.Fork()
		old.DecRef()
	}
	p.sig.resetCustom()
	p.frames = nil
	p.suspendedMask = nil
	p.altStack = native.StackT{Flags: enum.SS_DISABLE}
	p.tls = 0
	p.clearChildTid = 0
	p.exe = path
	p.didExec = true

	if err := p.mapSegments(segments); err != nil {
		p.execFailed()
		return err
	}
	if err := p.setupStack(l, argv, env); err != nil {
		p.execFailed()
		return err
	}
	return nil
}

// execFailed handles a load failure after the old image is already gone:
// there is nothing to return to, so the task dies as if it faulted.
func (p *Process) execFailed() {
	k := p.k
	k.mu.Lock()
	if p.state != statZombie {
		k.terminateLocked(p, enum.SIGSEGV)
	}
	k.mu.Unlock()
}

func (p *Process) mapSegments(segments []loader.Segment) error {
	pageMask := p.arch.PageSize - 1
	var brk uint64
	for _, seg := range segments {
		base := seg.Addr &^ pageMask
		end := (seg.Addr + uint64(len(seg.Data)) + pageMask) &^ pageMask
		padded := make([]byte, end-base)
		copy(padded[seg.Addr-base:], seg.Data)
		// segments stay writable during load; mprotect from user code
		// can still tighten them later
		prot := seg.Prot | mem.PROT_WRITE
		if _, err := p.mem.MapData(base, end-base, prot, true, false, nil, padded); err != nil {
			return native.ENOMEM
		}
		if end > brk {
			brk = end
		}
	}
	p.mem.SetBrk(brk)
	return nil
}

func (p *Process) auxvBytes(l loader.Loader, randAddr, platformAddr, loadBase uint64) []byte {
	type pair struct{ typ, val uint64 }
	auxv := []pair{
		{elfAtPagesz, p.arch.PageSize},
		{elfAtBase, 0},
		{elfAtFlags, 0},
		{elfAtEntry, l.Entry()},
		{elfAtUid, uint64(p.creds.Uid)},
		{elfAtEuid, uint64(p.creds.Euid)},
		{elfAtGid, uint64(p.creds.Gid)},
		{elfAtEgid, uint64(p.creds.Egid)},
		{elfAtSecure, 0},
		{elfAtPlatform, platformAddr},
		{elfAtClktck, 100},
		{elfAtRandom, randAddr},
		{elfAtNull, 0},
	}
	if l.Phoff() > 0 {
		auxv = append([]pair{
			{elfAtPhdr, loadBase + l.Phoff()},
			{elfAtPhent, uint64(l.Phentsize())},
			{elfAtPhnum, uint64(l.Phnum())},
		}, auxv...)
	}
	step := int(p.Bits() / 8)
	out := make([]byte, 0, len(auxv)*step*2)
	var tmp [8]byte
	for _, a := range auxv {
		b, _ := p.PackAddr(tmp[:], a.typ)
		out = append(out, b...)
		b, _ = p.PackAddr(tmp[:], a.val)
		out = append(out, b...)
	}
	return out
}

// setupStack maps the stack and lays out the SysV process start block:
// strings on top, then auxv, envp, argv and argc at the final SP.
func (p *Process) setupStack(l loader.Loader, argv, env []string) error {
	top := p.arch.UserBase + p.arch.UserSize
	base := top - stackSize
	if _, err := p.mem.Mmap(base, stackSize, mem.PROT_READ|mem.PROT_WRITE, true, false, nil); err != nil {
		return native.ENOMEM
	}
	if err := p.RegWrite(p.arch.SP, top); err != nil {
		return err
	}

	var randTmp [16]byte
	rand.Read(randTmp[:])
	randAddr, err := p.PushBytes(randTmp[:])
	if err != nil {
		return err
	}
	platformAddr, err := p.PushBytes([]byte(p.arch.Name + "\x00"))
	if err != nil {
		return err
	}
	pushAll := func(strs []string) ([]uint64, error) {
		addrs := make([]uint64, len(strs))
		for i := len(strs) - 1; i >= 0; i-- {
			addr, err := p.PushBytes([]byte(strs[i] + "\x00"))
			if err != nil {
				return nil, err
			}
			addrs[i] = addr
		}
		return addrs, nil
	}
	envAddrs, err := pushAll(env)
	if err != nil {
		return err
	}
	argvAddrs, err := pushAll(argv)
	if err != nil {
		return err
	}

	var loadBase uint64
	segments, _ := l.Segments()
	for i, seg := range segments {
		segBase := seg.Addr &^ (p.arch.PageSize - 1)
		if i == 0 || segBase < loadBase {
			loadBase = segBase
		}
	}
	auxv := p.auxvBytes(l, randAddr, platformAddr, loadBase)

	// keep the final SP 16-aligned: argc + argv + NULL + envp + NULL
	step := uint64(p.Bits() / 8)
	words := 1 + uint64(len(argvAddrs)) + 1 + uint64(len(envAddrs)) + 1
	sp, err := p.RegRead(p.arch.SP)
	if err != nil {
		return err
	}
	sp = (sp - uint64(len(auxv)) - words*step) &^ 0xf
	if err := p.RegWrite(p.arch.SP, sp+uint64(len(auxv))+words*step); err != nil {
		return err
	}

	if _, err := p.PushBytes(auxv); err != nil {
		return err
	}
	if _, err := p.Push(0); err != nil {
		return err
	}
	for i := len(envAddrs) - 1; i >= 0; i-- {
		if _, err := p.Push(envAddrs[i]); err != nil {
			return err
		}
	}
	if _, err := p.Push(0); err != nil {
		return err
	}
	for i := len(argvAddrs) - 1; i >= 0; i-- {
		if _, err := p.Push(argvAddrs[i]); err != nil {
			return err
		}
	}
	if _, err := p.Push(uint64(len(argvAddrs))); err != nil {
		return err
	}

	// scrub the register file before entry
	for e := range p.arch.Regs {
		if e != p.arch.SP {
			p.RegWrite(e, 0)
		}
	}
	return p.RegWrite(p.arch.PC, l.Entry())
}
