package x86

import (
	"github.com/keelos/pengolin/models"
)

// register enums
const (
	EAX = iota
	EBX
	ECX
	EDX
	ESI
	EDI
	EBP
	ESP
	EIP
)

var Arch = &models.Arch{
	Name:    "x86",
	Bits:    32,
	SysReg:  EAX,
	RetReg:  EAX,
	ArgRegs: []int{EBX, ECX, EDX, ESI, EDI, EBP},
	PC:      EIP,
	SP:      ESP,

	// int 0x80 is cd 80
	SysInsSize: 2,

	PageSize: 0x1000,
	UserBase: 0x10000,
	UserSize: 0xc0000000 - 0x10000,

	Regs: map[int]string{
		EAX: "eax",
		EBX: "ebx",
		ECX: "ecx",
		EDX: "edx",
		ESI: "esi",
		EDI: "edi",
		EBP: "ebp",
		ESP: "esp",
		EIP: "eip",
	},
}
