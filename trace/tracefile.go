package trace

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var TRACE_MAGIC = "PGTR"

// TraceHeader starts a record file, uncompressed; the records after it are
// one snappy stream.
type TraceHeader struct {
	Magic   string `struc:"[4]byte"`
	Version uint32

	// right-null-padded
	Arch string `struc:"[32]byte"`
	OS   string `struc:"[32]byte"`

	// 0 for little, 1 for big
	OrderNum uint8
}

// Record is one syscall: number, raw arguments and the value returned to
// the task.
type Record struct {
	Pid  uint32
	Num  uint32
	Ret  uint64
	Args [6]uint64
}

type TraceWriter struct {
	w, zw io.WriteCloser
}

func NewWriter(w io.WriteCloser, archName, osName string, order binary.ByteOrder) (*TraceWriter, error) {
	var num uint8
	if order == binary.BigEndian {
		num = 1
	}
	header := &TraceHeader{
		Magic:    TRACE_MAGIC,
		Version:  1,
		Arch:     archName,
		OS:       osName,
		OrderNum: num,
	}
	if err := struc.Pack(w, header); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &TraceWriter{w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

func (t *TraceWriter) Pack(rec *Record) error {
	return struc.Pack(t.zw, rec)
}

func (t *TraceWriter) Close() {
	t.zw.Close()
	t.w.Close()
}

type TraceReader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header TraceHeader
	Order  binary.ByteOrder
}

func NewReader(r io.ReadCloser) (*TraceReader, error) {
	t := &TraceReader{r: r}
	if err := struc.Unpack(r, &t.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	t.Header.Arch = strings.TrimRight(t.Header.Arch, "\x00")
	t.Header.OS = strings.TrimRight(t.Header.OS, "\x00")
	if t.Header.OrderNum == 1 {
		t.Order = binary.BigEndian
	} else {
		t.Order = binary.LittleEndian
	}
	t.zr = snappy.NewReader(r)
	return t, nil
}

func (t *TraceReader) Next() (*Record, error) {
	var rec Record
	if err := struc.Unpack(t.zr, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *TraceReader) Close() {
	t.zr.Reset(nil)
	t.r.Close()
}
