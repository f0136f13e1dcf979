package models

import (
	"encoding/binary"
)

// Mem is a task's view of its own user memory, used for syscall argument
// access. Reads and writes fail on unmapped or insufficiently-permissioned
// addresses; the dispatcher turns those failures into EFAULT.
type Mem interface {
	ReadAt(p []byte, addr uint64) (int, error)
	WriteAt(p []byte, addr uint64) (int, error)
	ReadStrAt(addr uint64) (string, error)
}

// Task is the dispatcher-facing view of one schedulable task: its
// architecture, its user memory, and the trap frame of the syscall
// currently being serviced.
type Task interface {
	Regs

	Arch() *Arch
	OS() string
	Bits() uint
	ByteOrder() binary.ByteOrder

	Pid() int
	Exe() string

	Mem() Mem
	StrucAt(addr uint64) *StrucStream

	ReadRegs(enums []int) ([]uint64, error)
	RegDump() ([]RegVal, error)

	PackAddr(buf []byte, n uint64) ([]byte, error)
	UnpackAddr(buf []byte) uint64
	Push(n uint64) (uint64, error)
	PushBytes(p []byte) (uint64, error)

	// Syscall resolves and invokes the handler for one trapped syscall,
	// returning the value for the arch return register (negative errno
	// encoded as two's complement).
	Syscall(num int, name string, getArgs func(n int) ([]uint64, error)) (uint64, error)

	Config() *Config
}
