package x86_64

import (
	"github.com/keelos/pengolin/models"
)

// register enums
const (
	RAX = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
)

var Arch = &models.Arch{
	Name:    "x86_64",
	Bits:    64,
	SysReg:  RAX,
	RetReg:  RAX,
	ArgRegs: []int{RDI, RSI, RDX, R10, R8, R9},
	PC:      RIP,
	SP:      RSP,

	// syscall is 0f 05
	SysInsSize: 2,

	PageSize: 0x1000,
	UserBase: 0x10000,
	UserSize: (1 << 47) - 0x10000,

	Regs: map[int]string{
		RAX: "rax",
		RBX: "rbx",
		RCX: "rcx",
		RDX: "rdx",
		RSI: "rsi",
		RDI: "rdi",
		RBP: "rbp",
		RSP: "rsp",
		R8:  "r8",
		R9:  "r9",
		R10: "r10",
		R11: "r11",
		R12: "r12",
		R13: "r13",
		R14: "r14",
		R15: "r15",
		RIP: "rip",
	},
}
