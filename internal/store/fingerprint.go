package store

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/zeebo/xxh3"
)

// Fingerprint digests every record and all content in path order. Two
// stores with equal fingerprints hold byte-identical metadata and data.
func (s *Store) Fingerprint() string {
	var buf bytes.Buffer
	for _, p := range s.Paths() {
		rec := s.records[p]
		fmt.Fprintf(&buf, "%s\x00%d %d %d %d %d %d %d %d\x00",
			p, uint32(rec.Mode), rec.Uid, rec.Gid, rec.Nlink, rec.Size,
			rec.Atime.UnixNano(), rec.Mtime.UnixNano(), rec.Ctime.UnixNano())

		names := make([]string, 0, len(rec.Xattrs))
		for name := range rec.Xattrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&buf, "x:%s=%d:", name, len(rec.Xattrs[name]))
			buf.Write(rec.Xattrs[name])
		}

		data := s.content[p]
		fmt.Fprintf(&buf, "\x00c:%d:", len(data))
		buf.Write(data)
	}
	return fmt.Sprintf("%x", xxh3.Hash128(buf.Bytes()).Bytes())
}
