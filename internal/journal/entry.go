// Package journal records undo and redo entries for store mutations and
// groups them into batches.
package journal

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"undofs/internal/store"
)

// Op names the primitive an entry replays.
type Op string

const (
	OpCreate      Op = store.OpCreate
	OpWrite       Op = store.OpWrite
	OpTruncate    Op = store.OpTruncate
	OpUnlink      Op = store.OpUnlink
	OpRename      Op = store.OpRename
	OpMkdir       Op = store.OpMkdir
	OpRmdir       Op = store.OpRmdir
	OpSymlink     Op = store.OpSymlink
	OpChmod       Op = store.OpChmod
	OpChown       Op = store.OpChown
	OpUtimens     Op = store.OpUtimens
	OpSetXattr    Op = store.OpSetXattr
	OpRemoveXattr Op = store.OpRemoveXattr
)

// Entry is one side of a journaled primitive. Undo entries carry the state
// before the primitive ran, redo entries the state after. Which fields are
// set depends on Op.
type Entry struct {
	ID      uuid.UUID
	Op      Op
	Path    string
	NewPath string // rename target

	Record  *store.Record
	Content []byte

	// Displaced holds the entry a rename replaced, if any.
	Displaced        *store.Record
	DisplacedContent []byte

	Attr    string
	Value   []byte
	Present bool
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	c := e
	c.Record = e.Record.Clone()
	c.Displaced = e.Displaced.Clone()
	c.Content = cloneBytes(e.Content)
	c.DisplacedContent = cloneBytes(e.DisplacedContent)
	c.Value = cloneBytes(e.Value)
	return c
}

// Paths returns the paths the entry touches.
func (e Entry) Paths() []string {
	if e.NewPath != "" {
		return []string{e.Path, e.NewPath}
	}
	return []string{e.Path}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

// Batch groups the entries produced by one command.
type Batch struct {
	ID       uuid.UUID
	Label    string
	Recorded time.Time
	Undo     []Entry
	Redo     []Entry
}

// Len returns the number of primitives in the batch.
func (b *Batch) Len() int {
	return len(b.Undo)
}
