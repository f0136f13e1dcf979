package models

import (
	"fmt"
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"
)

type Reg struct {
	Enum int
	Name string
}

type RegVal struct {
	Reg
	Val uint64
}

type regList []Reg

func (r regList) Len() int           { return len(r) }
func (r regList) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool { return sortorder.NaturalLess(r[i].Name, r[j].Name) }

type regMap map[int]string

func (r regMap) Items() regList {
	ret := make(regList, 0, len(r))
	for e, n := range r {
		ret = append(ret, Reg{e, n})
	}
	return ret
}

// Arch describes one instruction set's view of the syscall ABI: the
// register file, the registers carrying the syscall number, arguments and
// return value, and the valid user address range.
type Arch struct {
	Name string
	Bits int

	// syscall calling convention
	SysReg  int
	RetReg  int
	ArgRegs []int
	PC      int
	SP      int

	// length of the trapping syscall instruction, used to rewind the PC
	// when a syscall is restarted after a signal
	SysInsSize uint64

	PageSize uint64
	UserBase uint64
	UserSize uint64

	OS   map[string]*OS
	Regs regMap

	// sorted for RegDump
	regList regList
}

func (a *Arch) RegisterOS(os *OS) {
	if a.OS == nil {
		a.OS = make(map[string]*OS)
	}
	if _, ok := a.OS[os.Name]; ok {
		panic("Duplicate OS " + os.Name)
	}
	a.OS[os.Name] = os
}

// UserContains reports whether [addr, addr+size) lies inside the
// architecture's user address range.
func (a *Arch) UserContains(addr, size uint64) bool {
	end := addr + size
	if end < addr {
		return false
	}
	return addr >= a.UserBase && end <= a.UserBase+a.UserSize
}

func (a *Arch) RegDump(r Regs) ([]RegVal, error) {
	if a.regList == nil {
		rl := a.Regs.Items()
		sort.Sort(rl)
		a.regList = rl
	}
	ret := make([]RegVal, len(a.Regs))
	for i, reg := range a.regList {
		val, err := r.RegRead(reg.Enum)
		if err != nil {
			return nil, err
		}
		ret[i] = RegVal{reg, val}
	}
	return ret, nil
}

// OS binds a personality to an Arch. Kernel builds the arch-flavored
// handler instance for one task; Syscall is invoked by the trap layer with
// the calling task after it decodes a syscall trap.
type OS struct {
	Name    string
	Kernel  func(t Task) interface{}
	Syscall func(t Task)
}

func (o *OS) String() string {
	return fmt.Sprintf("<OS %s>", o.Name)
}
