package linux

import (
	"time"

	co "github.com/keelos/pengolin/kernel/common"
	"github.com/keelos/pengolin/native"
)

func nowTimespec() native.Timespec {
	now := time.Now()
	return native.Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())}
}

func (lk *LinuxKernel) ClockGettime(clockid int, tp co.Obuf) uint64 {
	ts := nowTimespec()
	if err := tp.Pack(&ts); err != nil {
		return Errno(native.EFAULT)
	}
	return 0
}

func (lk *LinuxKernel) Gettimeofday(tv co.Obuf, tz co.Ptr) uint64 {
	if tv.Addr == 0 {
		return 0
	}
	now := time.Now()
	val := native.Timeval{Sec: now.Unix(), Usec: int64(now.Nanosecond() / 1000)}
	if err := tv.Pack(&val); err != nil {
		return Errno(native.EFAULT)
	}
	return 0
}

func (lk *LinuxKernel) Time(tloc co.Obuf) uint64 {
	p := lk.P
	now := uint64(time.Now().Unix())
	if tloc.Addr != 0 {
		var tmp [8]byte
		buf, err := p.PackAddr(tmp[:], now)
		if err != nil {
			return Errno(native.EFAULT)
		}
		if _, err := p.mem.WriteAt(buf, tloc.Addr); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return now
}

// sleep blocks for d or until a signal becomes deliverable, returning the
// unslept remainder.
func (p *Process) sleep(d time.Duration) time.Duration {
	deadline := time.Now().Add(d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return 0
		case <-p.wake:
			p.k.mu.Lock()
			intr := p.interruptibleLocked()
			p.k.mu.Unlock()
			if intr {
				rem := time.Until(deadline)
				if rem < 0 {
					rem = 0
				}
				return rem
			}
		}
	}
}

func (lk *LinuxKernel) Nanosleep(req co.Buf, rem co.Obuf) uint64 {
	p := lk.P
	var ts native.Timespec
	if err := req.Unpack(&ts); err != nil {
		return Errno(native.EFAULT)
	}
	if ts.Sec < 0 || ts.Nsec < 0 || ts.Nsec >= 1e9 {
		return Errno(native.EINVAL)
	}
	left := p.sleep(time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec))
	if left == 0 {
		return 0
	}
	if rem.Addr != 0 {
		out := native.Timespec{
			Sec:  int64(left / time.Second),
			Nsec: int64(left % time.Second),
		}
		if err := rem.Pack(&out); err != nil {
			return Errno(native.EFAULT)
		}
	}
	return Errno(native.EINTR)
}

func (lk *LinuxKernel) ClockNanosleep(clockid, flags int, req co.Buf, rem co.Obuf) uint64 {
	return lk.Nanosleep(req, rem)
}
