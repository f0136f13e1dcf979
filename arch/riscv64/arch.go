package riscv64

import (
	"github.com/keelos/pengolin/models"
)

// register enums
const (
	RA = iota
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
	PC
)

var Arch = &models.Arch{
	Name:    "riscv64",
	Bits:    64,
	SysReg:  A7,
	RetReg:  A0,
	ArgRegs: []int{A0, A1, A2, A3, A4, A5},
	PC:      PC,
	SP:      SP,

	// ecall
	SysInsSize: 4,

	PageSize: 0x1000,
	UserBase: 0x10000,
	UserSize: (1 << 47) - 0x10000,

	Regs: map[int]string{
		RA: "ra", SP: "sp", GP: "gp", TP: "tp",
		T0: "t0", T1: "t1", T2: "t2",
		S0: "s0", S1: "s1",
		A0: "a0", A1: "a1", A2: "a2", A3: "a3",
		A4: "a4", A5: "a5", A6: "a6", A7: "a7",
		S2: "s2", S3: "s3", S4: "s4", S5: "s5",
		S6: "s6", S7: "s7", S8: "s8", S9: "s9",
		S10: "s10", S11: "s11",
		T3: "t3", T4: "t4", T5: "t5", T6: "t6",
		PC: "pc",
	},
}
