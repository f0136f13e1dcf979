package models

import (
	"github.com/pkg/errors"
)

// Regs is a read/write view of a task's register file.
type Regs interface {
	RegRead(enum int) (uint64, error)
	RegWrite(enum int, val uint64) error
}

// TrapContext is the architecture-tagged machine state handed to the
// dispatcher by the trap layer when a task executes a syscall instruction.
// The dispatcher writes the result register (and possibly the PC and SP,
// for signal delivery and syscall restart) back through it.
type TrapContext interface {
	Regs
	Clone() TrapContext
}

func ReadRegs(r Regs, enums []int) ([]uint64, error) {
	ret := make([]uint64, len(enums))
	for i, e := range enums {
		val, err := r.RegRead(e)
		if err != nil {
			return nil, err
		}
		ret[i] = val
	}
	return ret, nil
}

// RegFile is a plain map-backed TrapContext. Trap layers that keep their
// frame in a hardware-specific format implement TrapContext directly; this
// one serves software-created tasks and tests.
type RegFile struct {
	arch *Arch
	vals map[int]uint64
}

func NewRegFile(a *Arch) *RegFile {
	return &RegFile{arch: a, vals: make(map[int]uint64)}
}

func (r *RegFile) RegRead(enum int) (uint64, error) {
	if _, ok := r.arch.Regs[enum]; !ok {
		return 0, errors.Errorf("%s has no register %d", r.arch.Name, enum)
	}
	return r.vals[enum], nil
}

func (r *RegFile) RegWrite(enum int, val uint64) error {
	if _, ok := r.arch.Regs[enum]; !ok {
		return errors.Errorf("%s has no register %d", r.arch.Name, enum)
	}
	r.vals[enum] = val
	return nil
}

func (r *RegFile) Clone() TrapContext {
	vals := make(map[int]uint64, len(r.vals))
	for k, v := range r.vals {
		vals[k] = v
	}
	return &RegFile{arch: r.arch, vals: vals}
}
