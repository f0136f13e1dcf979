package enum

import "fmt"

type Signal int

const (
	SIGHUP    Signal = 1
	SIGINT    Signal = 2
	SIGQUIT   Signal = 3
	SIGILL    Signal = 4
	SIGTRAP   Signal = 5
	SIGABRT   Signal = 6
	SIGBUS    Signal = 7
	SIGFPE    Signal = 8
	SIGKILL   Signal = 9
	SIGUSR1   Signal = 10
	SIGSEGV   Signal = 11
	SIGUSR2   Signal = 12
	SIGPIPE   Signal = 13
	SIGALRM   Signal = 14
	SIGTERM   Signal = 15
	SIGSTKFLT Signal = 16
	SIGCHLD   Signal = 17
	SIGCONT   Signal = 18
	SIGSTOP   Signal = 19
	SIGTSTP   Signal = 20
	SIGTTIN   Signal = 21
	SIGTTOU   Signal = 22
	SIGURG    Signal = 23
	SIGXCPU   Signal = 24
	SIGXFSZ   Signal = 25
	SIGVTALRM Signal = 26
	SIGPROF   Signal = 27
	SIGWINCH  Signal = 28
	SIGIO     Signal = 29
	SIGPWR    Signal = 30
	SIGSYS    Signal = 31

	SIGRTMIN Signal = 32
	SIGRTMAX Signal = 64

	NSIG = 64
)

var signalNames = map[Signal]string{
	SIGHUP: "SIGHUP", SIGINT: "SIGINT", SIGQUIT: "SIGQUIT", SIGILL: "SIGILL",
	SIGTRAP: "SIGTRAP", SIGABRT: "SIGABRT", SIGBUS: "SIGBUS", SIGFPE: "SIGFPE",
	SIGKILL: "SIGKILL", SIGUSR1: "SIGUSR1", SIGSEGV: "SIGSEGV", SIGUSR2: "SIGUSR2",
	SIGPIPE: "SIGPIPE", SIGALRM: "SIGALRM", SIGTERM: "SIGTERM", SIGSTKFLT: "SIGSTKFLT",
	SIGCHLD: "SIGCHLD", SIGCONT: "SIGCONT", SIGSTOP: "SIGSTOP", SIGTSTP: "SIGTSTP",
	SIGTTIN: "SIGTTIN", SIGTTOU: "SIGTTOU", SIGURG: "SIGURG", SIGXCPU: "SIGXCPU",
	SIGXFSZ: "SIGXFSZ", SIGVTALRM: "SIGVTALRM", SIGPROF: "SIGPROF", SIGWINCH: "SIGWINCH",
	SIGIO: "SIGIO", SIGPWR: "SIGPWR", SIGSYS: "SIGSYS",
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	if s >= SIGRTMIN && s <= SIGRTMAX {
		return fmt.Sprintf("SIGRT%d", s-SIGRTMIN)
	}
	return fmt.Sprintf("signal %d", int(s))
}

// Realtime reports whether occurrences of s queue rather than coalesce.
func (s Signal) Realtime() bool {
	return s >= SIGRTMIN && s <= SIGRTMAX
}

// sigaction flags
const (
	SA_SIGINFO  = 0x4
	SA_ONSTACK  = 0x08000000
	SA_RESTART  = 0x10000000
	SA_NODEFER  = 0x40000000
	SA_RESETHAND = 0x80000000
	SA_RESTORER = 0x04000000
)

// rt_sigprocmask how
const (
	SIG_BLOCK   = 0
	SIG_UNBLOCK = 1
	SIG_SETMASK = 2
)

// default-ignored handler sentinels
const (
	SIG_DFL = 0
	SIG_IGN = 1
)

// sigaltstack flags
const (
	SS_ONSTACK = 1
	SS_DISABLE = 2
)

// wait status encodings
func StatusExit(code int) int     { return (code & 0xff) << 8 }
func StatusSignal(sig Signal) int { return int(sig) & 0x7f }
func StatusStop(sig Signal) int   { return int(sig)<<8 | 0x7f }
func StatusCont() int             { return 0xffff }
