package memfs

import (
	"testing"

	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

func TestOpenCreate(t *testing.T) {
	fs := New()
	if _, err := fs.Open("/missing", int(enum.O_RDONLY), 0); err != native.ENOENT {
		t.Fatalf("open missing: %v", err)
	}
	f, err := fs.Open("/new", int(enum.O_CREAT|enum.O_RDWR), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("abc"), 0); err != nil {
		t.Fatal(err)
	}
	fi, err := fs.Stat("/new")
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode != enum.S_IFREG|0o644 || fi.Size != 3 {
		t.Fatalf("stat = %+v", fi)
	}
	// O_EXCL on an existing path
	if _, err := fs.Open("/new", int(enum.O_CREAT|enum.O_EXCL), 0o644); err != native.EEXIST {
		t.Fatalf("O_EXCL: %v", err)
	}
	// creation requires the parent directory
	if _, err := fs.Open("/no/such/dir", int(enum.O_CREAT), 0o644); err != native.ENOENT {
		t.Fatalf("create under missing dir: %v", err)
	}
}

func TestTruncateOnOpen(t *testing.T) {
	fs := New()
	fs.WriteFile("/f", []byte("content"), 0o644)
	if _, err := fs.Open("/f", int(enum.O_WRONLY|enum.O_TRUNC), 0); err != nil {
		t.Fatal(err)
	}
	fi, _ := fs.Stat("/f")
	if fi.Size != 0 {
		t.Fatalf("size = %d after O_TRUNC", fi.Size)
	}
}

func TestReadWriteOffsets(t *testing.T) {
	fs := New()
	fs.WriteFile("/f", []byte("hello"), 0o644)
	f, err := fs.Open("/f", int(enum.O_RDWR), 0)
	if err != nil {
		t.Fatal(err)
	}
	var buf [3]byte
	n, err := f.Read(buf[:], 2)
	if err != nil || n != 3 || string(buf[:]) != "llo" {
		t.Fatalf("read = %d %q %v", n, buf, err)
	}
	if n, _ := f.Read(buf[:], 10); n != 0 {
		t.Fatalf("read past end = %d", n)
	}
	// sparse write grows the file
	if _, err := f.Write([]byte("z"), 8); err != nil {
		t.Fatal(err)
	}
	fi, _ := f.Stat()
	if fi.Size != 9 {
		t.Fatalf("size = %d after sparse write", fi.Size)
	}
}

func TestDirectories(t *testing.T) {
	fs := New()
	if err := fs.Mkdir("/a", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := fs.Mkdir("/a", 0o755); err != native.EEXIST {
		t.Fatalf("mkdir twice: %v", err)
	}
	if err := fs.Mkdir("/x/y", 0o755); err != native.ENOENT {
		t.Fatalf("mkdir under missing parent: %v", err)
	}
	fs.WriteFile("/a/f", []byte("x"), 0o644)

	if err := fs.Rmdir("/a"); err != native.ENOTEMPTY {
		t.Fatalf("rmdir non-empty: %v", err)
	}
	if err := fs.Unlink("/a"); err != native.EISDIR {
		t.Fatalf("unlink dir: %v", err)
	}
	if err := fs.Unlink("/a/f"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Rmdir("/a"); err != nil {
		t.Fatal(err)
	}

	// directories refuse writable opens
	if _, err := fs.Open("/tmp", int(enum.O_RDWR), 0); err != native.EISDIR {
		t.Fatalf("open dir rdwr: %v", err)
	}
	if _, err := fs.Open("/dev/console", int(enum.O_RDONLY|enum.O_DIRECTORY), 0); err != native.ENOTDIR {
		t.Fatalf("O_DIRECTORY on device: %v", err)
	}
}

func TestReadDir(t *testing.T) {
	fs := New()
	fs.WriteFile("/d/one", []byte("1"), 0o644)
	fs.WriteFile("/d/two", []byte("2"), 0o644)
	fs.WriteFile("/d/sub/deep", []byte("3"), 0o644)

	fis, err := fs.ReadDir("/d")
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, fi := range fis {
		names[fi.Name] = true
	}
	// direct children only
	if len(fis) != 3 || !names["one"] || !names["two"] || !names["sub"] {
		t.Fatalf("readdir = %v", names)
	}
	if _, err := fs.ReadDir("/d/one"); err != native.ENOTDIR {
		t.Fatalf("readdir on file: %v", err)
	}
}

func TestRename(t *testing.T) {
	fs := New()
	fs.WriteFile("/old", []byte("data"), 0o644)
	if err := fs.Rename("/old", "/tmp/new"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Stat("/old"); err != native.ENOENT {
		t.Fatalf("old path: %v", err)
	}
	fi, err := fs.Stat("/tmp/new")
	if err != nil || fi.Name != "new" {
		t.Fatalf("renamed: %+v, %v", fi, err)
	}
	if err := fs.Rename("/gone", "/x"); err != native.ENOENT {
		t.Fatalf("rename missing: %v", err)
	}
}

func TestMounts(t *testing.T) {
	fs := New()
	if err := fs.Mount("none", "/tmp", "tmpfs", 0); err != nil {
		t.Fatal(err)
	}
	if err := fs.Mount("none", "/tmp", "tmpfs", 0); err != native.EBUSY {
		t.Fatalf("double mount: %v", err)
	}
	if err := fs.Mount("none", "/nowhere", "tmpfs", 0); err != native.ENOENT {
		t.Fatalf("mount on missing dir: %v", err)
	}
	if err := fs.Unmount("/tmp"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Unmount("/tmp"); err != native.EINVAL {
		t.Fatalf("double unmount: %v", err)
	}
}

func TestConsole(t *testing.T) {
	fs := New()
	f, err := fs.Open("/dev/console", int(enum.O_RDWR), 0)
	if err != nil {
		t.Fatal(err)
	}
	if f != fs.Console {
		t.Fatal("console open returned a regular file")
	}
	f.Write([]byte("boot: "), 0)
	f.Write([]byte("ok"), 0)
	if out := fs.Console.Output(); out != "boot: ok" {
		t.Fatalf("console output = %q", out)
	}
	var buf [8]byte
	if n, _ := f.Read(buf[:], 0); n != 0 {
		t.Fatalf("console read = %d", n)
	}
}
