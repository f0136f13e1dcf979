package linux

import (
	co "github.com/keelos/pengolin/kernel/common"
)

func (lk *LinuxKernel) SchedYield() int {
	lk.K.sched.Yield()
	return 0
}

// Futex is a wake-only stub: waits return immediately, wakes claim one
// waiter. Enough for the single-threaded startup paths of common libcs.
func (lk *LinuxKernel) Futex(addr co.Ptr, op int, val uint32) uint64 {
	return 0
}

func (lk *LinuxKernel) SetRobustList(head co.Ptr, size co.Len) uint64 {
	return 0
}
