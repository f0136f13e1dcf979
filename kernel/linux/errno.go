package linux

import (
	"github.com/pkg/errors"

	"github.com/keelos/pengolin/mem"
	"github.com/keelos/pengolin/native"
)

const UINT64_MAX = 0xFFFFFFFFFFFFFFFF

// Errno encodes err into the syscall return convention: zero for nil,
// otherwise the negated errno as unsigned 64-bit.
func Errno(err error) uint64 {
	if err == nil {
		return 0
	}
	if no, ok := errors.Cause(err).(native.Errno); ok {
		return uint64(-int64(no))
	}
	switch errors.Cause(err) {
	case mem.ErrFault:
		return Errno(native.EFAULT)
	case mem.ErrNoMem:
		return Errno(native.ENOMEM)
	case mem.ErrInval:
		return Errno(native.EINVAL)
	}
	// anything else that escapes a handler is a bad user pointer
	return Errno(native.EFAULT)
}

// iserrno reports whether ret encodes an errno (negative syscall result).
func iserrno(ret uint64) bool {
	return int64(ret) < 0 && int64(ret) > -4096
}
