package models

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
)

type StrucStream struct {
	Stream io.ReadWriter
	Order  binary.ByteOrder
}

func (s *StrucStream) Pack(i interface{}) error {
	return struc.PackWithOrder(s.Stream, i, s.Order)
}

func (s *StrucStream) Unpack(i interface{}) error {
	return struc.UnpackWithOrder(s.Stream, i, s.Order)
}

func (s *StrucStream) Sizeof(i interface{}) (int, error) {
	return struc.Sizeof(i)
}

// memCursor adapts a Mem to io.ReadWriter with a moving offset, so struc
// can pack and unpack directly against task memory.
type memCursor struct {
	mem  Mem
	addr uint64
}

func (m *memCursor) Read(p []byte) (int, error) {
	n, err := m.mem.ReadAt(p, m.addr)
	m.addr += uint64(n)
	return n, err
}

func (m *memCursor) Write(p []byte) (int, error) {
	n, err := m.mem.WriteAt(p, m.addr)
	m.addr += uint64(n)
	return n, err
}

func StrucAt(mem Mem, addr uint64, order binary.ByteOrder) *StrucStream {
	return &StrucStream{Stream: &memCursor{mem: mem, addr: addr}, Order: order}
}
