// Package sysnum holds the asm-generic syscall number table shared by the
// arm64 and riscv64 ports. The legacy-free architectures dropped the
// single-purpose calls (fork, open, pipe, dup2), so the table is sparser
// than the x86 ones.
package sysnum

var LinuxAsmGeneric = map[int]string{
	17:  "getcwd",
	23:  "dup",
	24:  "dup3",
	25:  "fcntl",
	29:  "ioctl",
	34:  "mkdirat",
	35:  "unlinkat",
	38:  "renameat",
	39:  "umount2",
	40:  "mount",
	45:  "truncate",
	46:  "ftruncate",
	48:  "faccessat",
	49:  "chdir",
	56:  "openat",
	57:  "close",
	59:  "pipe2",
	61:  "getdents64",
	62:  "lseek",
	63:  "read",
	64:  "write",
	65:  "readv",
	66:  "writev",
	67:  "pread64",
	68:  "pwrite64",
	78:  "readlinkat",
	79:  "newfstatat",
	80:  "fstat",
	81:  "sync",
	82:  "fsync",
	83:  "fdatasync",
	88:  "utimensat",
	93:  "exit",
	94:  "exit_group",
	96:  "set_tid_address",
	98:  "futex",
	99:  "set_robust_list",
	101: "nanosleep",
	113: "clock_gettime",
	115: "clock_nanosleep",
	124: "sched_yield",
	129: "kill",
	130: "tkill",
	131: "tgkill",
	132: "sigaltstack",
	133: "rt_sigsuspend",
	134: "rt_sigaction",
	135: "rt_sigprocmask",
	136: "rt_sigpending",
	139: "rt_sigreturn",
	144: "setgid",
	146: "setuid",
	154: "setpgid",
	155: "getpgid",
	156: "getsid",
	157: "setsid",
	160: "uname",
	163: "getrlimit",
	166: "umask",
	169: "gettimeofday",
	172: "getpid",
	173: "getppid",
	174: "getuid",
	175: "geteuid",
	176: "getgid",
	177: "getegid",
	178: "gettid",
	198: "socket",
	214: "brk",
	215: "munmap",
	220: "clone",
	221: "execve",
	222: "mmap",
	226: "mprotect",
	233: "madvise",
	260: "wait4",
	261: "prlimit64",
	278: "getrandom",
}
