package mem

import (
	"testing"
)

const (
	testBase = 0x10000
	testSize = 1 << 32
	testPage = 0x1000
)

func testSpace() *AddrSpace {
	return NewAddrSpace(testBase, testSize, testPage)
}

func checkInvariants(t *testing.T, a *AddrSpace) {
	t.Helper()
	regions := a.Regions()
	for i, r := range regions {
		if r.Addr < testBase || r.Addr+r.Size > testBase+testSize {
			t.Fatalf("region %s outside user range", r.String())
		}
		if i > 0 {
			prev := regions[i-1]
			if prev.Addr+prev.Size > r.Addr {
				t.Fatalf("regions overlap: %s then %s", prev.String(), r.String())
			}
		}
	}
}

func TestMmapChoosesDisjoint(t *testing.T) {
	a := testSpace()
	seen := make(map[uint64]bool)
	for i := 0; i < 32; i++ {
		addr, err := a.Mmap(0, 0x3000, PROT_READ|PROT_WRITE, false, false, nil)
		if err != nil {
			t.Fatal(err)
		}
		if addr&(testPage-1) != 0 {
			t.Fatalf("unaligned mmap result 0x%x", addr)
		}
		if seen[addr] {
			t.Fatalf("mmap returned 0x%x twice", addr)
		}
		seen[addr] = true
		checkInvariants(t, a)
	}
}

func TestMmapFixedReplaces(t *testing.T) {
	a := testSpace()
	if _, err := a.Mmap(0x20000, 0x4000, PROT_READ|PROT_WRITE, true, false, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := a.WriteAt([]byte{1, 2, 3}, 0x21000); err != nil {
		t.Fatal(err)
	}
	// overlapping fixed map replaces the middle pages
	if _, err := a.Mmap(0x21000, 0x1000, PROT_READ, true, false, nil); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, a)
	var buf [3]byte
	if _, err := a.ReadAt(buf[:], 0x21000); err != nil {
		t.Fatal(err)
	}
	if buf != [3]byte{} {
		t.Fatalf("fixed remap kept old contents: %v", buf)
	}
}

func TestMmapFixedMisaligned(t *testing.T) {
	a := testSpace()
	if _, err := a.Mmap(0x20800, 0x1000, PROT_READ, true, false, nil); err != ErrInval {
		t.Fatalf("want ErrInval, got %v", err)
	}
}

func TestMunmapSplits(t *testing.T) {
	a := testSpace()
	addr, err := a.Mmap(0x30000, 0x4000, PROT_READ|PROT_WRITE, true, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Munmap(addr+0x1000, 0x1000); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, a)
	regions := a.Regions()
	if len(regions) != 2 {
		t.Fatalf("want 2 regions after split, got %d", len(regions))
	}
	if regions[0].Addr != addr || regions[0].Size != 0x1000 {
		t.Fatalf("bad left remainder: %s", regions[0].String())
	}
	if regions[1].Addr != addr+0x2000 || regions[1].Size != 0x2000 {
		t.Fatalf("bad right remainder: %s", regions[1].String())
	}
	if _, err := a.ReadAt(make([]byte, 1), addr+0x1000); err == nil {
		t.Fatal("read of unmapped hole succeeded")
	}
}

func TestProtectRequiresCoverage(t *testing.T) {
	a := testSpace()
	if _, err := a.Mmap(0x40000, 0x2000, PROT_READ|PROT_WRITE, true, false, nil); err != nil {
		t.Fatal(err)
	}
	// range extends past the mapping
	if err := a.Protect(0x40000, 0x4000, PROT_READ); err != ErrNoMem {
		t.Fatalf("want ErrNoMem, got %v", err)
	}
	if err := a.Protect(0x41000, 0x1000, PROT_READ); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, a)
	if _, err := a.WriteAt([]byte{1}, 0x41000); err == nil {
		t.Fatal("write through PROT_READ region succeeded")
	}
	if _, err := a.WriteAt([]byte{1}, 0x40000); err != nil {
		t.Fatalf("untouched half lost PROT_WRITE: %v", err)
	}
}

func TestBrk(t *testing.T) {
	a := testSpace()
	a.SetBrk(0x50000)
	if cur, _ := a.Brk(0); cur != 0x50000 {
		t.Fatalf("initial brk = 0x%x", cur)
	}
	cur, err := a.Brk(0x52000)
	if err != nil || cur != 0x52000 {
		t.Fatalf("grow: 0x%x, %v", cur, err)
	}
	if _, err := a.WriteAt([]byte{7}, 0x51000); err != nil {
		t.Fatal(err)
	}
	// shrink below base rejected
	if _, err := a.Brk(0x4f000); err != ErrInval {
		t.Fatalf("want ErrInval, got %v", err)
	}
	// growth into another mapping rejected
	if _, err := a.Mmap(0x54000, 0x1000, PROT_READ, true, false, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Brk(0x60000); err != ErrNoMem {
		t.Fatalf("want ErrNoMem, got %v", err)
	}
	// contents survive a grow
	cur, err = a.Brk(0x53000)
	if err != nil || cur != 0x53000 {
		t.Fatalf("regrow: 0x%x, %v", cur, err)
	}
	var b [1]byte
	if _, err := a.ReadAt(b[:], 0x51000); err != nil || b[0] != 7 {
		t.Fatalf("heap contents lost across grow: %v %v", b, err)
	}
	checkInvariants(t, a)
}

func TestForkCopyOnWrite(t *testing.T) {
	a := testSpace()
	addr, err := a.Mmap(0, 0x1000, PROT_READ|PROT_WRITE, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.WriteAt([]byte("parent"), addr); err != nil {
		t.Fatal(err)
	}
	child := a.Fork()
	checkInvariants(t, child)

	// child write must not be visible to the parent
	if _, err := child.WriteAt([]byte("child!"), addr); err != nil {
		t.Fatal(err)
	}
	var buf [6]byte
	if _, err := a.ReadAt(buf[:], addr); err != nil {
		t.Fatal(err)
	}
	if string(buf[:]) != "parent" {
		t.Fatalf("parent saw child write: %q", buf)
	}
	if _, err := child.ReadAt(buf[:], addr); err != nil {
		t.Fatal(err)
	}
	if string(buf[:]) != "child!" {
		t.Fatalf("child lost its write: %q", buf)
	}
}

func TestForkShared(t *testing.T) {
	a := testSpace()
	addr, err := a.Mmap(0, 0x1000, PROT_READ|PROT_WRITE, false, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	child := a.Fork()
	if _, err := child.WriteAt([]byte("shared"), addr); err != nil {
		t.Fatal(err)
	}
	var buf [6]byte
	if _, err := a.ReadAt(buf[:], addr); err != nil {
		t.Fatal(err)
	}
	if string(buf[:]) != "shared" {
		t.Fatalf("MAP_SHARED write not visible to parent: %q", buf)
	}
}

func TestReadStrAt(t *testing.T) {
	a := testSpace()
	addr, err := a.Mmap(0, 0x1000, PROT_READ|PROT_WRITE, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.WriteAt([]byte("hello\x00world"), addr); err != nil {
		t.Fatal(err)
	}
	s, err := a.ReadStrAt(addr)
	if err != nil || s != "hello" {
		t.Fatalf("ReadStrAt = %q, %v", s, err)
	}
	if _, err := a.ReadStrAt(0xdead0000); err == nil {
		t.Fatal("ReadStrAt of unmapped address succeeded")
	}
}
