// Package trace renders live strace-style output and records syscall
// streams to a compressed file for offline inspection.
package trace

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/models"
)

type Tracer struct {
	mu     sync.Mutex
	config *models.Config
	w      io.Writer
	color  bool
	rec    *TraceWriter
}

// New builds a tracer printing to w (os.Stderr when nil). Colors are used
// when enabled in config and w is a terminal.
func New(config *models.Config, w io.Writer) *Tracer {
	if w == nil {
		w = os.Stderr
	}
	color := false
	if f, ok := w.(*os.File); ok && config.Color {
		color = isatty.IsTerminal(f.Fd())
	}
	return &Tracer{config: config, w: w, color: color}
}

// Record additionally packs every syscall into a trace file.
func (t *Tracer) Record(w io.WriteCloser, archName, osName string) error {
	tw, err := NewWriter(w, archName, osName, nil)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.rec = tw
	t.mu.Unlock()
	return nil
}

func (t *Tracer) OnEnter(pid, num int, sys *co.Syscall, args []uint64) {
}

func (t *Tracer) OnExit(pid, num int, sys *co.Syscall, args []uint64, ret uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.config.TraceSys {
		tag := fmt.Sprintf("[%d]", pid)
		if t.color {
			tag = ansi.Color(tag, "cyan")
		}
		fmt.Fprintf(t.w, "%s %s%s\n", tag, sys.Trace(args), sys.TraceRet(args, ret))
	}
	if t.rec != nil {
		rec := &Record{Pid: uint32(pid), Num: uint32(num), Ret: ret}
		copy(rec.Args[:], args)
		t.rec.Pack(rec)
	}
}

func (t *Tracer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec != nil {
		t.rec.Close()
		t.rec = nil
	}
}
