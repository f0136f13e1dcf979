package linux

import (
	"github.com/keelos/pengolin/native"
	"github.com/keelos/pengolin/native/enum"
)

const pipeBufSize = 65536

// pipeBuf is the shared half of a pipe pair. Blocking sides sleep on the
// kernel condition variable so signals can interrupt them.
type pipeBuf struct {
	k       *Kernel
	data    []byte
	readers int
	writers int
}

type pipeEnd struct {
	buf   *pipeBuf
	write bool
}

// newPipe returns the read and write descriptions of a fresh pipe.
func (k *Kernel) newPipe(flags enum.OpenFlag) (*FileDesc, *FileDesc) {
	buf := &pipeBuf{k: k, readers: 1, writers: 1}
	r := &FileDesc{refs: 1, pipe: &pipeEnd{buf: buf}, path: "pipe", flags: enum.O_RDONLY | flags}
	w := &FileDesc{refs: 1, pipe: &pipeEnd{buf: buf, write: true}, path: "pipe", flags: enum.O_WRONLY | flags}
	return r, w
}

func (e *pipeEnd) close() {
	k := e.buf.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if e.write {
		e.buf.writers--
	} else {
		e.buf.readers--
	}
	k.cond.Broadcast()
}

func (e *pipeEnd) read(p *Process, out []byte, nonblock bool) (int, error) {
	k := e.buf.k
	k.mu.Lock()
	defer k.mu.Unlock()
	for {
		if len(e.buf.data) > 0 {
			n := copy(out, e.buf.data)
			e.buf.data = e.buf.data[n:]
			k.cond.Broadcast()
			return n, nil
		}
		if e.buf.writers == 0 {
			return 0, nil
		}
		if len(out) == 0 {
			return 0, nil
		}
		if nonblock {
			return 0, native.EAGAIN
		}
		if p.interruptibleLocked() {
			return 0, native.ERESTARTSYS
		}
		k.cond.Wait()
	}
}

// pump moves bytes into the buffer, sleeping while it is full.
func (e *pipeEnd) pump(p *Process, in []byte, nonblock bool) (int, error) {
	k := e.buf.k
	k.mu.Lock()
	defer k.mu.Unlock()
	total := 0
	for len(in) > 0 {
		if e.buf.readers == 0 {
			k.postSignalLocked(p, enum.SIGPIPE)
			if total > 0 {
				return total, nil
			}
			return 0, native.EPIPE
		}
		room := pipeBufSize - len(e.buf.data)
		if room > 0 {
			n := room
			if n > len(in) {
				n = len(in)
			}
			e.buf.data = append(e.buf.data, in[:n]...)
			in = in[n:]
			total += n
			k.cond.Broadcast()
			continue
		}
		if nonblock {
			if total > 0 {
				return total, nil
			}
			return 0, native.EAGAIN
		}
		if p.interruptibleLocked() {
			if total > 0 {
				return total, nil
			}
			return 0, native.ERESTARTSYS
		}
		k.cond.Wait()
	}
	return total, nil
}
