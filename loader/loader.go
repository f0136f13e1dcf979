// Package loader parses executable images into the segments, entry point
// and program-header metadata the exec path needs.
package loader

import (
	"bytes"
	"encoding/binary"
)

const (
	UNKNOWN = iota
	EXEC
	DYN
)

// Segment is one loadable chunk of an image. Data is already padded to the
// in-memory size, so Addr+len(Data) is the segment end.
type Segment struct {
	Addr uint64
	Prot int
	Data []byte
}

type Loader interface {
	Arch() string
	Bits() int
	ByteOrder() binary.ByteOrder
	OS() string
	Entry() uint64
	Type() int
	Interp() string
	Segments() ([]Segment, error)

	// program header info for the auxiliary vector
	Phoff() uint64
	Phentsize() int
	Phnum() int
}

type LoaderHeader struct {
	arch      string
	bits      int
	byteOrder binary.ByteOrder
	os        string
	entry     uint64
}

func (l *LoaderHeader) Arch() string {
	return l.arch
}

func (l *LoaderHeader) Bits() int {
	return l.bits
}

func (l *LoaderHeader) ByteOrder() binary.ByteOrder {
	if l.byteOrder == nil {
		return binary.LittleEndian
	}
	return l.byteOrder
}

func (l *LoaderHeader) OS() string {
	return l.os
}

func (l *LoaderHeader) Entry() uint64 {
	return l.entry
}

var shebangMagic = []byte{'#', '!'}

// MatchShebang reports whether the image is an interpreter script.
func MatchShebang(data []byte) bool {
	return bytes.HasPrefix(data, shebangMagic)
}

// ParseShebang returns the interpreter path and optional argument of a
// script image.
func ParseShebang(data []byte) (string, string) {
	line := data[2:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSpace(line)
	if i := bytes.IndexAny(line, " \t"); i >= 0 {
		return string(line[:i]), string(bytes.TrimSpace(line[i:]))
	}
	return string(line), ""
}

// New picks a loader for the image.
func New(data []byte) (Loader, error) {
	return NewElfLoader(data)
}
