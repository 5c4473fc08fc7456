// Package engine couples the store with its journal. Every primitive runs
// under one mutex, captures its pre- and post-state and, while recording,
// appends an undo/redo entry pair. Undo and redo replay whole batches.
package engine

import (
	"os"
	"sync"
	"time"

	"undofs/internal/journal"
	"undofs/internal/logging"
	"undofs/internal/store"
)

var (
	engineLogger = logging.GetLogger().WithPrefix("engine")
)

// Engine serializes all access to a store and its journal.
type Engine struct {
	mu      sync.Mutex
	store   *store.Store
	journal *journal.Journal
}

// New creates an engine over st and j. Both are owned by the engine from
// here on and must not be used directly.
func New(st *store.Store, j *journal.Journal) *Engine {
	return &Engine{store: st, journal: j}
}

func (e *Engine) record(undo, redo journal.Entry) {
	if e.journal.Record(undo, redo) {
		engineLogger.Trace("Journaled %s on %q", undo.Op, undo.Path)
	}
}

// Create adds a regular file.
func (e *Engine) Create(p string, perm os.FileMode) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.create(p, perm)
}

func (e *Engine) create(p string, perm os.FileMode) (uint64, error) {
	p = store.Clean(p)
	fd, err := e.store.Create(p, perm)
	if err != nil {
		return 0, err
	}
	post, _ := e.store.Getattr(p)
	e.record(
		journal.Entry{Op: journal.OpCreate, Path: p},
		journal.Entry{Op: journal.OpCreate, Path: p, Record: post, Content: []byte{}},
	)
	return fd, nil
}

// Mkdir adds a directory.
func (e *Engine) Mkdir(p string, perm os.FileMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p = store.Clean(p)
	if err := e.store.Mkdir(p, perm); err != nil {
		return err
	}
	post, _ := e.store.Getattr(p)
	e.record(
		journal.Entry{Op: journal.OpMkdir, Path: p},
		journal.Entry{Op: journal.OpMkdir, Path: p, Record: post, Content: []byte{}},
	)
	return nil
}

// Symlink creates target pointing at source.
func (e *Engine) Symlink(target, source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target = store.Clean(target)
	if err := e.store.Symlink(target, source); err != nil {
		return err
	}
	post, _ := e.store.Getattr(target)
	e.record(
		journal.Entry{Op: journal.OpSymlink, Path: target},
		journal.Entry{Op: journal.OpSymlink, Path: target, Record: post, Content: []byte(source)},
	)
	return nil
}

// capture returns copies of the record and content at p.
func (e *Engine) capture(p string) (*store.Record, []byte, error) {
	rec, err := e.store.Getattr(p)
	if err != nil {
		return nil, nil, err
	}
	data, err := e.store.Content(p)
	if err != nil {
		return nil, nil, err
	}
	return rec, data, nil
}

// Write overlays data at offset.
func (e *Engine) Write(p string, data []byte, offset int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p = store.Clean(p)
	preRec, preData, err := e.capture(p)
	if err != nil {
		return 0, err
	}
	n, err := e.store.Write(p, data, offset)
	if err != nil {
		return 0, err
	}
	postRec, postData, _ := e.capture(p)
	e.record(
		journal.Entry{Op: journal.OpWrite, Path: p, Record: preRec, Content: preData},
		journal.Entry{Op: journal.OpWrite, Path: p, Record: postRec, Content: postData},
	)
	return n, nil
}

// Truncate cuts or extends the file to length bytes.
func (e *Engine) Truncate(p string, length int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.truncate(p, length)
}

func (e *Engine) truncate(p string, length int64) error {
	p = store.Clean(p)
	preRec, preData, err := e.capture(p)
	if err != nil {
		return err
	}
	if err := e.store.Truncate(p, length); err != nil {
		return err
	}
	postRec, postData, _ := e.capture(p)
	e.record(
		journal.Entry{Op: journal.OpTruncate, Path: p, Record: preRec, Content: preData},
		journal.Entry{Op: journal.OpTruncate, Path: p, Record: postRec, Content: postData},
	)
	return nil
}

// Unlink removes a file or symlink.
func (e *Engine) Unlink(p string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unlink(p)
}

func (e *Engine) unlink(p string) error {
	p = store.Clean(p)
	preRec, preData, err := e.capture(p)
	if err != nil {
		return err
	}
	if err := e.store.Unlink(p); err != nil {
		return err
	}
	e.record(
		journal.Entry{Op: journal.OpUnlink, Path: p, Record: preRec, Content: preData},
		journal.Entry{Op: journal.OpUnlink, Path: p},
	)
	return nil
}

// Rmdir removes a directory.
func (e *Engine) Rmdir(p string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rmdir(p)
}

func (e *Engine) rmdir(p string) error {
	p = store.Clean(p)
	preRec, err := e.store.Getattr(p)
	if err != nil {
		return err
	}
	if err := e.store.Rmdir(p); err != nil {
		return err
	}
	e.record(
		journal.Entry{Op: journal.OpRmdir, Path: p, Record: preRec},
		journal.Entry{Op: journal.OpRmdir, Path: p},
	)
	return nil
}

// Rename moves oldPath to newPath, replacing whatever newPath held.
func (e *Engine) Rename(oldPath, newPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rename(oldPath, newPath)
}

func (e *Engine) rename(oldPath, newPath string) error {
	oldPath = store.Clean(oldPath)
	newPath = store.Clean(newPath)
	preRec, err := e.store.Getattr(oldPath)
	if err != nil {
		return err
	}
	undo := journal.Entry{Op: journal.OpRename, Path: oldPath, NewPath: newPath, Record: preRec}
	if oldPath != newPath && e.store.Exists(newPath) {
		undo.Displaced, undo.DisplacedContent, _ = e.capture(newPath)
	}

	if err := e.store.Rename(oldPath, newPath); err != nil {
		return err
	}
	if oldPath == newPath {
		return nil
	}
	postRec, _ := e.store.Getattr(newPath)
	e.record(undo, journal.Entry{Op: journal.OpRename, Path: oldPath, NewPath: newPath, Record: postRec})
	return nil
}

// attrChange journals a metadata-only primitive.
func (e *Engine) attrChange(op journal.Op, p string, apply func(p string) error) error {
	p = store.Clean(p)
	preRec, err := e.store.Getattr(p)
	if err != nil {
		return err
	}
	if err := apply(p); err != nil {
		return err
	}
	postRec, _ := e.store.Getattr(p)
	e.record(
		journal.Entry{Op: op, Path: p, Record: preRec},
		journal.Entry{Op: op, Path: p, Record: postRec},
	)
	return nil
}

// Chmod sets the permission bits.
func (e *Engine) Chmod(p string, mode os.FileMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrChange(journal.OpChmod, p, func(p string) error {
		return e.store.Chmod(p, mode)
	})
}

// Chown sets the owner ids.
func (e *Engine) Chown(p string, uid, gid uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrChange(journal.OpChown, p, func(p string) error {
		return e.store.Chown(p, uid, gid)
	})
}

// Utimens sets access and modification times; zero means now.
func (e *Engine) Utimens(p string, atime, mtime time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrChange(journal.OpUtimens, p, func(p string) error {
		return e.store.Utimens(p, atime, mtime)
	})
}

// SetXattr stores an extended attribute.
func (e *Engine) SetXattr(p, name string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p = store.Clean(p)
	old, getErr := e.store.GetXattr(p, name)
	if err := e.store.SetXattr(p, name, value); err != nil {
		return err
	}
	e.record(
		journal.Entry{Op: journal.OpSetXattr, Path: p, Attr: name, Value: old, Present: getErr == nil},
		journal.Entry{Op: journal.OpSetXattr, Path: p, Attr: name, Value: value, Present: true},
	)
	return nil
}

// RemoveXattr deletes an extended attribute.
func (e *Engine) RemoveXattr(p, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p = store.Clean(p)
	old, err := e.store.GetXattr(p, name)
	if err != nil {
		return err
	}
	if err := e.store.RemoveXattr(p, name); err != nil {
		return err
	}
	e.record(
		journal.Entry{Op: journal.OpRemoveXattr, Path: p, Attr: name, Value: old, Present: true},
		journal.Entry{Op: journal.OpRemoveXattr, Path: p, Attr: name},
	)
	return nil
}

// Getattr returns a copy of the record at p.
func (e *Engine) Getattr(p string) (*store.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Getattr(p)
}

// Open marks p accessed and returns a descriptor number.
func (e *Engine) Open(p string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Open(p)
}

// Read returns up to size bytes of p from offset.
func (e *Engine) Read(p string, size int, offset int64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Read(p, size, offset)
}

// Readdir lists the directory p.
func (e *Engine) Readdir(p string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Readdir(p)
}

// Readlink returns the target of the symlink p.
func (e *Engine) Readlink(p string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Readlink(p)
}

// GetXattr returns an extended attribute value.
func (e *Engine) GetXattr(p, name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.GetXattr(p, name)
}

// ListXattr returns the extended attribute names of p.
func (e *Engine) ListXattr(p string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListXattr(p)
}

// Statfs reports filesystem statistics.
func (e *Engine) Statfs() store.StatFS {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Statfs()
}

// Owner returns the uid/gid new entries are created with.
func (e *Engine) Owner() (uint32, uint32) {
	return e.store.Owner()
}
