package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var machineMap = map[elf.Machine]string{
	elf.EM_386:     "x86",
	elf.EM_X86_64:  "x86_64",
	elf.EM_AARCH64: "arm64",
	elf.EM_RISCV:   "riscv64",
}

// segment prot bits in PROT_* convention
const (
	elfProtRead  = 1
	elfProtWrite = 2
	elfProtExec  = 4
)

type ElfLoader struct {
	LoaderHeader
	file *elf.File

	phoff     uint64
	phentsize int
	phnum     int
}

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

func MatchElf(data []byte) bool {
	return bytes.HasPrefix(data, elfMagic)
}

func NewElfLoader(data []byte) (Loader, error) {
	if !MatchElf(data) {
		return nil, errors.New("not an ELF image")
	}
	r := bytes.NewReader(data)
	file, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	var bits int
	switch file.Class {
	case elf.ELFCLASS32:
		bits = 32
	case elf.ELFCLASS64:
		bits = 64
	default:
		return nil, errors.New("unknown ELF class")
	}
	machineName, ok := machineMap[file.Machine]
	if !ok {
		return nil, errors.Errorf("unsupported machine: %s", file.Machine)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if file.Data == elf.ELFDATA2MSB {
		order = binary.BigEndian
	}
	l := &ElfLoader{
		LoaderHeader: LoaderHeader{
			arch:      machineName,
			bits:      bits,
			byteOrder: order,
			os:        "linux",
			entry:     file.Entry,
		},
		file:      file,
		phentsize: 56,
		phnum:     len(file.Progs),
	}
	if bits == 32 {
		l.phentsize = 32
	}
	// e_phoff sits at a class-dependent offset in the file header
	if bits == 64 && len(data) >= 40 {
		l.phoff = order.Uint64(data[32:40])
	} else if bits == 32 && len(data) >= 32 {
		l.phoff = uint64(order.Uint32(data[28:32]))
	}
	return l, nil
}

func (e *ElfLoader) Interp() string {
	for _, prog := range e.file.Progs {
		if prog.Type == elf.PT_INTERP {
			data, _ := io.ReadAll(prog.Open())
			return string(bytes.TrimRight(data, "\x00"))
		}
	}
	return ""
}

func (e *ElfLoader) Type() int {
	switch e.file.Type {
	case elf.ET_EXEC:
		return EXEC
	case elf.ET_DYN:
		return DYN
	default:
		return UNKNOWN
	}
}

func (e *ElfLoader) Segments() ([]Segment, error) {
	ret := make([]Segment, 0, len(e.file.Progs))
	for _, prog := range e.file.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Memsz)
		filesz := prog.Filesz
		if filesz > prog.Memsz {
			filesz = prog.Memsz
		}
		if filesz > 0 {
			if _, err := io.ReadFull(prog.Open(), data[:filesz]); err != nil {
				return nil, errors.Wrap(err, "short segment read")
			}
		}
		prot := 0
		if prog.Flags&elf.PF_R != 0 {
			prot |= elfProtRead
		}
		if prog.Flags&elf.PF_W != 0 {
			prot |= elfProtWrite
		}
		if prog.Flags&elf.PF_X != 0 {
			prot |= elfProtExec
		}
		ret = append(ret, Segment{
			Addr: prog.Vaddr,
			Prot: prot,
			Data: data,
		})
	}
	return ret, nil
}

func (e *ElfLoader) Phoff() uint64   { return e.phoff }
func (e *ElfLoader) Phentsize() int  { return e.phentsize }
func (e *ElfLoader) Phnum() int      { return e.phnum }
