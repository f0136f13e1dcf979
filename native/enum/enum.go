// Package enum defines the flag and constant values of the Linux syscall
// ABI as typed integers, so handler signatures document what they accept.
package enum

type MmapProt int

const (
	PROT_NONE  MmapProt = 0
	PROT_READ  MmapProt = 1
	PROT_WRITE MmapProt = 2
	PROT_EXEC  MmapProt = 4
)

type MmapFlag int

const (
	MAP_SHARED    MmapFlag = 0x1
	MAP_PRIVATE   MmapFlag = 0x2
	MAP_FIXED     MmapFlag = 0x10
	MAP_ANONYMOUS MmapFlag = 0x20
)

type OpenFlag int

const (
	O_RDONLY    OpenFlag = 0x0
	O_WRONLY    OpenFlag = 0x1
	O_RDWR      OpenFlag = 0x2
	O_ACCMODE   OpenFlag = 0x3
	O_CREAT     OpenFlag = 0x40
	O_EXCL      OpenFlag = 0x80
	O_TRUNC     OpenFlag = 0x200
	O_APPEND    OpenFlag = 0x400
	O_NONBLOCK  OpenFlag = 0x800
	O_DIRECTORY OpenFlag = 0x10000
	O_CLOEXEC   OpenFlag = 0x80000
)

type CloneFlag uint64

const (
	CSIGNAL              CloneFlag = 0xff
	CLONE_VM             CloneFlag = 0x100
	CLONE_FS             CloneFlag = 0x200
	CLONE_FILES          CloneFlag = 0x400
	CLONE_SIGHAND        CloneFlag = 0x800
	CLONE_THREAD         CloneFlag = 0x10000
	CLONE_SETTLS         CloneFlag = 0x80000
	CLONE_PARENT_SETTID  CloneFlag = 0x100000
	CLONE_CHILD_CLEARTID CloneFlag = 0x200000
	CLONE_CHILD_SETTID   CloneFlag = 0x1000000
)

type WaitOpt int

const (
	WNOHANG    WaitOpt = 0x1
	WUNTRACED  WaitOpt = 0x2
	WCONTINUED WaitOpt = 0x8
)

const AT_FDCWD = -100

// fcntl commands
const (
	F_DUPFD         = 0
	F_GETFD         = 1
	F_SETFD         = 2
	F_GETFL         = 3
	F_SETFL         = 4
	F_DUPFD_CLOEXEC = 1030
)

const FD_CLOEXEC = 1

// lseek whence
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// file types for dirents
const (
	DT_UNKNOWN = 0
	DT_FIFO    = 1
	DT_CHR     = 2
	DT_DIR     = 4
	DT_BLK     = 6
	DT_REG     = 8
	DT_LNK     = 10
	DT_SOCK    = 12
)

// mode bits
const (
	S_IFMT   = 0xf000
	S_IFIFO  = 0x1000
	S_IFCHR  = 0x2000
	S_IFDIR  = 0x4000
	S_IFBLK  = 0x6000
	S_IFREG  = 0x8000
	S_IFLNK  = 0xa000
	S_IFSOCK = 0xc000
)
