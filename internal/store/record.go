package store

import (
	"bytes"
	"os"
	"time"
	"unsafe"
)

// Record is the metadata kept for one path.
type Record struct {
	Mode  os.FileMode
	Uid   uint32
	Gid   uint32
	Nlink uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	// Xattrs is nil until the first attribute is set.
	Xattrs map[string][]byte
}

// IsDir reports whether the record describes a directory.
func (r *Record) IsDir() bool {
	return r.Mode.IsDir()
}

// IsSymlink reports whether the record describes a symbolic link.
func (r *Record) IsSymlink() bool {
	return r.Mode&os.ModeSymlink != 0
}

// Clone returns a deep copy of r. Journal entries hold clones only, never
// live records.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Xattrs != nil {
		c.Xattrs = make(map[string][]byte, len(r.Xattrs))
		for name, value := range r.Xattrs {
			c.Xattrs[name] = bytes.Clone(value)
		}
	}
	return &c
}

var recordOverhead = int64(unsafe.Sizeof(Record{}))

// footprint estimates the memory a record occupies. It is charged to the
// root size on insert and refunded on removal. It does not depend on
// content length.
func footprint(r *Record) int64 {
	n := recordOverhead
	for name, value := range r.Xattrs {
		n += int64(len(name) + len(value))
	}
	return n
}
