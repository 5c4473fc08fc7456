package engine

import (
	"errors"
	"slices"

	"undofs/internal/journal"
	"undofs/internal/store"
)

// Move is a rename carried out by a replay.
type Move struct {
	From string
	To   string
}

// Replay describes what an undo or redo changed: every path it touched and,
// in replay order, the renames among them.
type Replay struct {
	Paths []string
	Moves []Move
}

func (r *Replay) add(entry journal.Entry) {
	for _, p := range entry.Paths() {
		if !slices.Contains(r.Paths, p) {
			r.Paths = append(r.Paths, p)
		}
	}
}

// Undo reverts the newest batch and reports what it touched. The store is
// left untouched when there is nothing to undo.
func (e *Engine) Undo() (*Replay, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.journal.End()
	if e.journal.Undoable() == 0 {
		return nil, journal.ErrNothingToUndo
	}
	if e.journal.Changed() {
		if n := e.journal.DiscardRedo(); n > 0 {
			engineLogger.Debug("Discarded %d stale redo batches", n)
		}
	}

	batch, err := e.journal.PopUndo()
	if err != nil {
		return nil, err
	}
	engineLogger.Info("Undoing %q (%d entries)", batch.Label, batch.Len())

	prev := e.journal.SetMode(journal.ReplayingUndo)
	defer e.journal.SetMode(prev)

	// Truncate entries seen so far in this pass, by path.
	overrides := make(map[string]journal.Entry)
	replay := &Replay{}
	for _, entry := range undoOrder(batch.Undo) {
		if err := e.invert(entry, overrides); err != nil {
			engineLogger.Error("Undo of %s on %q failed: %v", entry.Op, entry.Path, err)
		} else if entry.Op == journal.OpRename {
			replay.Moves = append(replay.Moves, Move{From: entry.NewPath, To: entry.Path})
		}
		replay.add(entry)
	}

	e.journal.PushRedo(batch)
	e.journal.MarkUndone()
	return replay, nil
}

// Redo reapplies the most recently undone batch. It is refused once
// anything has been recorded since the last undo.
func (e *Engine) Redo() (*Replay, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.journal.PopRedo()
	if err != nil {
		return nil, err
	}
	engineLogger.Info("Redoing %q (%d entries)", batch.Label, batch.Len())

	prev := e.journal.SetMode(journal.ReplayingRedo)
	defer e.journal.SetMode(prev)

	replay := &Replay{}
	for _, entry := range batch.Redo {
		if err := e.apply(entry); err != nil {
			engineLogger.Error("Redo of %s on %q failed: %v", entry.Op, entry.Path, err)
		} else if entry.Op == journal.OpRename {
			replay.Moves = append(replay.Moves, Move{From: entry.Path, To: entry.NewPath})
		}
		replay.add(entry)
	}

	e.journal.PushUndo(batch)
	return replay, nil
}

// undoOrder returns the replay order for a batch: newest first when the
// batch opens with a create, chronological otherwise.
func undoOrder(entries []journal.Entry) []journal.Entry {
	ordered := slices.Clone(entries)
	if len(ordered) > 0 && ordered[0].Op == journal.OpCreate {
		slices.Reverse(ordered)
	}
	return ordered
}

// invert applies the inverse of one undo entry.
func (e *Engine) invert(entry journal.Entry, overrides map[string]journal.Entry) error {
	switch entry.Op {
	case journal.OpCreate, journal.OpSymlink:
		return e.unlink(entry.Path)

	case journal.OpMkdir:
		return e.rmdir(entry.Path)

	case journal.OpUnlink:
		return e.store.Restore(entry.Path, entry.Record, entry.Content)

	case journal.OpRmdir:
		return e.store.Restore(entry.Path, entry.Record, []byte{})

	case journal.OpTruncate:
		overrides[entry.Path] = entry
		return e.restoreContent(entry.Path, entry.Content, entry.Record)

	case journal.OpWrite:
		// Once a truncate of this path has been undone, later writes
		// restore the truncate's snapshot instead of their own.
		if truncated, ok := overrides[entry.Path]; ok {
			entry = truncated
		}
		return e.restoreContent(entry.Path, entry.Content, entry.Record)

	case journal.OpRename:
		if err := e.rename(entry.NewPath, entry.Path); err != nil {
			return err
		}
		if err := e.store.Patch(entry.Path, func(rec *store.Record) {
			rec.Ctime = entry.Record.Ctime
		}); err != nil {
			return err
		}
		if entry.Displaced != nil {
			return e.store.Restore(entry.NewPath, entry.Displaced, entry.DisplacedContent)
		}
		return nil

	case journal.OpChmod, journal.OpChown, journal.OpUtimens:
		return e.restoreAttrs(entry)

	case journal.OpSetXattr, journal.OpRemoveXattr:
		return e.restoreXattr(entry)

	default:
		engineLogger.Error("Unknown journal entry %q for %q", entry.Op, entry.Path)
		return nil
	}
}

// apply replays the forward effect of one redo entry.
func (e *Engine) apply(entry journal.Entry) error {
	switch entry.Op {
	case journal.OpCreate, journal.OpSymlink, journal.OpMkdir:
		return e.store.Restore(entry.Path, entry.Record, entry.Content)

	case journal.OpWrite, journal.OpTruncate:
		return e.restoreContent(entry.Path, entry.Content, entry.Record)

	case journal.OpUnlink:
		return e.unlink(entry.Path)

	case journal.OpRmdir:
		return e.rmdir(entry.Path)

	case journal.OpRename:
		if err := e.rename(entry.Path, entry.NewPath); err != nil {
			return err
		}
		return e.store.Patch(entry.NewPath, func(rec *store.Record) {
			rec.Ctime = entry.Record.Ctime
		})

	case journal.OpChmod, journal.OpChown, journal.OpUtimens:
		return e.restoreAttrs(entry)

	case journal.OpSetXattr, journal.OpRemoveXattr:
		return e.restoreXattr(entry)

	default:
		engineLogger.Error("Unknown journal entry %q for %q", entry.Op, entry.Path)
		return nil
	}
}

// restoreContent resizes p to data, installs a copy of data and takes the
// size and timestamps from rec.
func (e *Engine) restoreContent(p string, data []byte, rec *store.Record) error {
	if err := e.truncate(p, int64(len(data))); err != nil {
		return err
	}
	if err := e.store.SetContent(p, data); err != nil {
		return err
	}
	return e.store.Patch(p, func(live *store.Record) {
		live.Size = int64(len(data))
		live.Mtime = rec.Mtime
		live.Ctime = rec.Ctime
	})
}

// restoreAttrs copies the fields a chmod, chown or utimens changes.
func (e *Engine) restoreAttrs(entry journal.Entry) error {
	saved := entry.Record
	return e.store.Patch(entry.Path, func(live *store.Record) {
		switch entry.Op {
		case journal.OpChmod:
			live.Mode = saved.Mode
			live.Ctime = saved.Ctime
		case journal.OpChown:
			live.Uid = saved.Uid
			live.Gid = saved.Gid
			live.Ctime = saved.Ctime
		case journal.OpUtimens:
			live.Atime = saved.Atime
			live.Mtime = saved.Mtime
		}
	})
}

// restoreXattr sets the attribute to the entry's value, or removes it when
// the entry records it as absent.
func (e *Engine) restoreXattr(entry journal.Entry) error {
	if entry.Present {
		return e.store.SetXattr(entry.Path, entry.Attr, entry.Value)
	}
	if err := e.store.RemoveXattr(entry.Path, entry.Attr); err != nil && !errors.Is(err, store.ErrNoAttr) {
		return err
	}
	return nil
}
