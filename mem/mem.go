// Package mem tracks a task's virtual address space as an ordered set of
// non-overlapping regions and implements the mmap/munmap/mprotect/brk
// state machine over it.
package mem

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

var (
	ErrNoMem = errors.New("no usable address range")
	ErrInval = errors.New("bad address or length")
	ErrFault = errors.New("address not mapped")
)

// FileDesc records the file backing of a mapped region, for /proc-style
// listings and for tracing.
type FileDesc struct {
	Name string
	Off  uint64
	Len  uint64
}

// Region is a contiguous virtual range with uniform backing and
// permissions. Private region data goes copy-on-write across Fork; shared
// regions alias the same buffer in parent and child.
type Region struct {
	Addr, Size uint64
	Prot       int
	Shared     bool
	File       *FileDesc

	data *regionData
}

type regionData struct {
	bytes []byte
	refs  int32
}

func (r *Region) Contains(addr uint64) bool {
	return r.Addr <= addr && addr < r.Addr+r.Size
}

func (r *Region) Overlaps(addr, size uint64) bool {
	e1, e2 := r.Addr+r.Size, addr+size
	return (r.Addr >= addr && r.Addr < e2) || (addr >= r.Addr && addr < e1)
}

func (r *Region) String() string {
	desc := fmt.Sprintf("0x%x-0x%x", r.Addr, r.Addr+r.Size)
	chars := []string{"r", "w", "x"}
	prots := []int{PROT_READ, PROT_WRITE, PROT_EXEC}
	prot := " "
	for i := range prots {
		if r.Prot&prots[i] != 0 {
			prot += chars[i]
		} else {
			prot += "-"
		}
	}
	desc += prot
	if r.Shared {
		desc += "s"
	} else {
		desc += "p"
	}
	if r.File != nil {
		desc += fmt.Sprintf(" %s", r.File.Name)
	}
	return desc
}

// write ensures the region owns its data before mutating it.
func (r *Region) write(off uint64, p []byte) {
	if !r.Shared && atomic.LoadInt32(&r.data.refs) > 1 {
		owned := make([]byte, len(r.data.bytes))
		copy(owned, r.data.bytes)
		atomic.AddInt32(&r.data.refs, -1)
		r.data = &regionData{bytes: owned, refs: 1}
	}
	copy(r.data.bytes[off:], p)
}

// split carves [addr, addr+size) out of the region, returning the
// remainders on either side. The receiver is discarded by the caller.
func (r *Region) split(addr, size uint64) (left, right *Region) {
	if addr > r.Addr {
		left = r.slice(r.Addr, addr-r.Addr)
	}
	if addr+size < r.Addr+r.Size {
		right = r.slice(addr+size, r.Addr+r.Size-(addr+size))
	}
	return left, right
}

// slice returns a sub-region aliasing the receiver's data buffer.
func (r *Region) slice(addr, size uint64) *Region {
	off := addr - r.Addr
	sub := &Region{
		Addr: addr, Size: size,
		Prot: r.Prot, Shared: r.Shared,
		data: &regionData{bytes: r.data.bytes[off : off+size], refs: atomic.LoadInt32(&r.data.refs)},
	}
	if r.File != nil {
		f := *r.File
		f.Off += off
		sub.File = &f
	}
	return sub
}

// AddrSpace is the set of regions mapped for one process, shared by
// clone-created threads. All mutation is serialized by the embedded lock.
type AddrSpace struct {
	sync.Mutex

	pageSize       uint64
	base, size     uint64
	regions        []*Region
	brkBase, brkCur uint64

	refs int32
}

func NewAddrSpace(base, size, pageSize uint64) *AddrSpace {
	return &AddrSpace{pageSize: pageSize, base: base, size: size, refs: 1}
}

func (a *AddrSpace) IncRef() *AddrSpace {
	atomic.AddInt32(&a.refs, 1)
	return a
}

// DecRef drops one holder; the last drop discards all regions.
func (a *AddrSpace) DecRef() {
	if atomic.AddInt32(&a.refs, -1) == 0 {
		a.Lock()
		a.regions = nil
		a.brkBase, a.brkCur = 0, 0
		a.Unlock()
	}
}

func (a *AddrSpace) PageSize() uint64 { return a.pageSize }

func (a *AddrSpace) align(n uint64) uint64 {
	mask := a.pageSize - 1
	return (n + mask) &^ mask
}

func (a *AddrSpace) aligned(n uint64) bool {
	return n&(a.pageSize-1) == 0
}

func (a *AddrSpace) contains(addr, size uint64) bool {
	end := addr + size
	return end >= addr && addr >= a.base && end <= a.base+a.size
}

func (a *AddrSpace) find(addr uint64) *Region {
	for _, r := range a.regions {
		if r.Contains(addr) {
			return r
		}
	}
	return nil
}

func (a *AddrSpace) insert(r *Region) {
	a.regions = append(a.regions, r)
	sort.Slice(a.regions, func(i, j int) bool { return a.regions[i].Addr < a.regions[j].Addr })
}

// gap finds the lowest page-aligned base >= floor with room for size.
func (a *AddrSpace) gap(floor, size uint64) (uint64, error) {
	addr := a.align(floor)
	if addr < a.base {
		addr = a.base
	}
	for {
		if !a.contains(addr, size) {
			return 0, ErrNoMem
		}
		conflict := false
		for _, r := range a.regions {
			if r.Overlaps(addr, size) {
				conflict = true
				if r.Addr+r.Size > addr {
					addr = a.align(r.Addr + r.Size)
				}
				break
			}
		}
		if !conflict {
			return addr, nil
		}
	}
}

// Mmap inserts a new region. A zero hint (or a hint outside the user
// range) lets the kernel choose placement; fixed placement atomically
// unmaps anything it overlaps first.
func (a *AddrSpace) Mmap(hint, size uint64, prot int, fixed, shared bool, file *FileDesc) (uint64, error) {
	if size == 0 {
		return 0, ErrInval
	}
	a.Lock()
	defer a.Unlock()
	size = a.align(size)
	var addr uint64
	if fixed {
		if !a.aligned(hint) || !a.contains(hint, size) {
			return 0, ErrInval
		}
		a.unmap(hint, size)
		addr = hint
	} else {
		floor := hint
		if floor == 0 || !a.contains(floor, size) {
			// stay clear of the heap's growth room
			floor = a.brkCur + 0x800000
		}
		var err error
		if addr, err = a.gap(floor, size); err != nil {
			// hint exhausted the top of the range; retry from the bottom
			if addr, err = a.gap(a.base, size); err != nil {
				return 0, err
			}
		}
	}
	a.insert(&Region{
		Addr: addr, Size: size, Prot: prot, Shared: shared, File: file,
		data: &regionData{bytes: make([]byte, size), refs: 1},
	})
	return addr, nil
}

// MapData is Mmap followed by seeding the region's contents, regardless of
// the requested protections. Used by exec and file-backed mmap.
func (a *AddrSpace) MapData(hint, size uint64, prot int, fixed, shared bool, file *FileDesc, data []byte) (uint64, error) {
	addr, err := a.Mmap(hint, size, prot, fixed, shared, file)
	if err != nil {
		return 0, err
	}
	a.Lock()
	if r := a.find(addr); r != nil {
		copy(r.data.bytes, data)
	}
	a.Unlock()
	return addr, nil
}

func (a *AddrSpace) Munmap(addr, size uint64) error {
	if size == 0 || !a.aligned(addr) {
		return ErrInval
	}
	a.Lock()
	defer a.Unlock()
	a.unmap(addr, a.align(size))
	return nil
}

func (a *AddrSpace) unmap(addr, size uint64) {
	var keep []*Region
	for _, r := range a.regions {
		if !r.Overlaps(addr, size) {
			keep = append(keep, r)
			continue
		}
		left, right := r.split(addr, size)
		if left != nil {
			keep = append(keep, left)
		}
		if right != nil {
			keep = append(keep, right)
		}
	}
	a.regions = keep
	sort.Slice(a.regions, func(i, j int) bool { return a.regions[i].Addr < a.regions[j].Addr })
}

// Protect changes permissions on [addr, addr+size). The range must be
// fully covered by existing regions.
func (a *AddrSpace) Protect(addr, size uint64, prot int) error {
	if size == 0 || !a.aligned(addr) {
		return ErrInval
	}
	size = a.align(size)
	a.Lock()
	defer a.Unlock()
	// coverage check before any mutation
	for cur := addr; cur < addr+size; {
		r := a.find(cur)
		if r == nil {
			return ErrNoMem
		}
		cur = r.Addr + r.Size
	}
	var out []*Region
	for _, r := range a.regions {
		if !r.Overlaps(addr, size) {
			out = append(out, r)
			continue
		}
		lo, hi := addr, addr+size
		if r.Addr > lo {
			lo = r.Addr
		}
		if r.Addr+r.Size < hi {
			hi = r.Addr + r.Size
		}
		left, right := r.split(lo, hi-lo)
		mid := r.slice(lo, hi-lo)
		mid.Prot = prot
		if left != nil {
			out = append(out, left)
		}
		out = append(out, mid)
		if right != nil {
			out = append(out, right)
		}
	}
	a.regions = out
	sort.Slice(a.regions, func(i, j int) bool { return a.regions[i].Addr < a.regions[j].Addr })
	return nil
}

// SetBrk establishes the heap region's base. Called once per image load.
func (a *AddrSpace) SetBrk(base uint64) {
	a.Lock()
	a.brkBase = a.align(base)
	a.brkCur = a.brkBase
	a.Unlock()
}

// Brk grows or shrinks the heap to end at top, returning the new break.
// Brk(0) queries.
func (a *AddrSpace) Brk(top uint64) (uint64, error) {
	a.Lock()
	defer a.Unlock()
	if top == 0 {
		return a.brkCur, nil
	}
	if top < a.brkBase {
		return a.brkCur, ErrInval
	}
	newCur := a.align(top)
	if newCur > a.brkCur {
		// growth must not collide with another mapping
		for _, r := range a.regions {
			if r.Addr >= a.brkBase && r.Addr < a.brkCur {
				continue // the heap itself
			}
			if r.Overlaps(a.brkBase, newCur-a.brkBase) {
				return a.brkCur, ErrNoMem
			}
		}
		if !a.contains(a.brkBase, newCur-a.brkBase) {
			return a.brkCur, ErrNoMem
		}
		var oldData []byte
		if old := a.heap(); old != nil {
			oldData = old.data.bytes
		}
		a.unmap(a.brkBase, newCur-a.brkBase)
		grown := &Region{
			Addr: a.brkBase, Size: newCur - a.brkBase,
			Prot: PROT_READ | PROT_WRITE,
			data: &regionData{bytes: make([]byte, newCur-a.brkBase), refs: 1},
		}
		copy(grown.data.bytes, oldData)
		a.insert(grown)
	} else if newCur < a.brkCur {
		a.unmap(newCur, a.brkCur-newCur)
	}
	a.brkCur = newCur
	return a.brkCur, nil
}

func (a *AddrSpace) heap() *Region {
	for _, r := range a.regions {
		if r.Addr == a.brkBase && a.brkCur > a.brkBase {
			return r
		}
	}
	return nil
}

// Fork returns a copy sharing MAP_SHARED buffers and marking private data
// copy-on-write in both address spaces.
func (a *AddrSpace) Fork() *AddrSpace {
	a.Lock()
	defer a.Unlock()
	child := NewAddrSpace(a.base, a.size, a.pageSize)
	child.brkBase, child.brkCur = a.brkBase, a.brkCur
	for _, r := range a.regions {
		// shared regions alias the buffer for good; private ones only
		// until one side writes
		nr := &Region{Addr: r.Addr, Size: r.Size, Prot: r.Prot, Shared: r.Shared, File: r.File}
		atomic.AddInt32(&r.data.refs, 1)
		nr.data = r.data
		child.regions = append(child.regions, nr)
	}
	return child
}

// Clear discards every region; exec calls this at the point of no return.
func (a *AddrSpace) Clear() {
	a.Lock()
	a.regions = nil
	a.brkBase, a.brkCur = 0, 0
	a.Unlock()
}

// Mapped reports whether [addr, addr+size) is fully covered by regions.
func (a *AddrSpace) Mapped(addr, size uint64) bool {
	a.Lock()
	defer a.Unlock()
	end := addr + size
	if end < addr {
		return false
	}
	for cur := addr; cur < end; {
		r := a.find(cur)
		if r == nil {
			return false
		}
		cur = r.Addr + r.Size
	}
	return true
}

// Regions returns a snapshot of the mapped ranges in address order.
func (a *AddrSpace) Regions() []Region {
	a.Lock()
	defer a.Unlock()
	out := make([]Region, len(a.regions))
	for i, r := range a.regions {
		out[i] = *r
	}
	return out
}

func (a *AddrSpace) read(addr uint64, p []byte, prot int) (int, error) {
	total := 0
	for total < len(p) {
		r := a.find(addr + uint64(total))
		if r == nil || r.Prot&prot != prot {
			return total, errors.Wrapf(ErrFault, "read at 0x%x", addr+uint64(total))
		}
		off := addr + uint64(total) - r.Addr
		n := copy(p[total:], r.data.bytes[off:])
		total += n
	}
	return total, nil
}

func (a *AddrSpace) ReadAt(p []byte, addr uint64) (int, error) {
	a.Lock()
	defer a.Unlock()
	return a.read(addr, p, PROT_READ)
}

func (a *AddrSpace) WriteAt(p []byte, addr uint64) (int, error) {
	a.Lock()
	defer a.Unlock()
	total := 0
	for total < len(p) {
		r := a.find(addr + uint64(total))
		if r == nil || r.Prot&PROT_WRITE == 0 {
			return total, errors.Wrapf(ErrFault, "write at 0x%x", addr+uint64(total))
		}
		off := addr + uint64(total) - r.Addr
		n := len(p) - total
		if avail := int(r.Size - off); n > avail {
			n = avail
		}
		r.write(off, p[total:total+n])
		total += n
	}
	return total, nil
}

// ReadStrAt reads a NUL-terminated string.
func (a *AddrSpace) ReadStrAt(addr uint64) (string, error) {
	a.Lock()
	defer a.Unlock()
	var out []byte
	var tmp [64]byte
	for {
		n, err := a.read(addr+uint64(len(out)), tmp[:], PROT_READ)
		if i := bytes.IndexByte(tmp[:n], 0); i >= 0 {
			return string(append(out, tmp[:i]...)), nil
		}
		out = append(out, tmp[:n]...)
		if err != nil {
			return "", err
		}
	}
}
