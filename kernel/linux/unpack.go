package linux

import (
	"github.com/lunixbochs/argjoy"

	"github.com/keelos/pengolin/native/enum"
)

// unpackArg converts raw syscall registers into the typed enums handler
// signatures declare.
func (lk *LinuxKernel) unpackArg(arg interface{}, vals []interface{}) error {
	reg, ok := vals[0].(uint64)
	if !ok {
		return argjoy.NoMatch
	}
	switch v := arg.(type) {
	case *enum.MmapProt:
		*v = enum.MmapProt(reg)
	case *enum.MmapFlag:
		*v = enum.MmapFlag(reg)
	case *enum.OpenFlag:
		*v = enum.OpenFlag(reg)
	case *enum.CloneFlag:
		*v = enum.CloneFlag(reg)
	case *enum.WaitOpt:
		*v = enum.WaitOpt(int32(reg))
	case *enum.Signal:
		*v = enum.Signal(int32(reg))
	default:
		return argjoy.NoMatch
	}
	return nil
}
