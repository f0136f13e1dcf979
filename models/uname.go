package models

// Uname is the utsname payload. The ABI fixes every field at the same
// width, so callers pad before packing into guest memory.
type Uname struct {
	Sysname  string
	Nodename string
	Release  string
	Version  string
	Machine  string
}

// Pad clips and null-fills each field to width bytes, always leaving room
// for a terminator.
func (u *Uname) Pad(width int) {
	for _, f := range []*string{&u.Sysname, &u.Nodename, &u.Release, &u.Version, &u.Machine} {
		s := *f
		if len(s) >= width {
			s = s[:width-1]
		}
		*f = s + string(make([]byte, width-len(s)))
	}
}
