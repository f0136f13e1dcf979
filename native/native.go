// Package native holds the Linux ABI types that cross the user/kernel
// boundary. Layouts follow the 64-bit asm-generic ABI unless a 32-bit
// variant is named explicitly; everything is packed with struc using the
// task's byte order.
package native

type Timespec struct {
	Sec  int64
	Nsec int64
}

type Timeval struct {
	Sec  int64
	Usec int64
}

// Stat is the asm-generic 64-bit struct stat (x86_64, arm64, riscv64).
type Stat struct {
	Dev     uint64
	Ino     uint64
	Nlink   uint64
	Mode    uint32
	Uid     uint32
	Gid     uint32
	Pad0    uint32
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
	Atime   Timespec
	Mtime   Timespec
	Ctime   Timespec
	Unused  [3]int64
}

// Stat64X86 is the 32-bit x86 struct stat64.
type Stat64X86 struct {
	Dev      uint64
	Pad0     [4]byte
	InoTrunc uint32
	Mode     uint32
	Nlink    uint32
	Uid      uint32
	Gid      uint32
	Rdev     uint64
	Pad3     [4]byte
	Size     int64
	Blksize  uint32
	Blocks   uint64
	Atime    uint32
	AtimeNs  uint32
	Mtime    uint32
	MtimeNs  uint32
	Ctime    uint32
	CtimeNs  uint32
	Ino      uint64
}

type Iovec64 struct {
	Base uint64
	Len  uint64
}

type Iovec32 struct {
	Base uint32
	Len  uint32
}

// Sigaction is struct sigaction for rt_sigaction (64-bit mask form).
type Sigaction struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64
	Mask     uint64
}

// StackT is stack_t for sigaltstack.
type StackT struct {
	Sp    uint64
	Flags int32
	Pad   int32
	Size  uint64
}

const RLIM_INFINITY = ^uint64(0)

type Rlimit struct {
	Cur uint64
	Max uint64
}

// Rusage is struct rusage; only the time fields are ever populated.
type Rusage struct {
	Utime  Timeval
	Stime  Timeval
	Unused [14]int64
}
