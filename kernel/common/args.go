package common

import (
	"github.com/keelos/pengolin/models"
)

func RegArgs(t models.Task, regs []int) func(n int) ([]uint64, error) {
	return func(n int) ([]uint64, error) {
		return t.ReadRegs(regs[:n])
	}
}
