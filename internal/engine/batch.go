package engine

import (
	"time"

	"github.com/google/uuid"

	"undofs/internal/journal"
)

// Begin opens a batch: every primitive until End belongs to the command
// named by label.
func (e *Engine) Begin(label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.journal.Begin(label)
}

// End closes the open batch. It returns the number of entries the batch
// collected; empty batches are discarded.
func (e *Engine) End() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if batch := e.journal.End(); batch != nil {
		return batch.Len()
	}
	return 0
}

// Snapshot captures which batches are currently undoable and redoable.
func (e *Engine) Snapshot() journal.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.journal.Snapshot()
}

// Prune compares the journal against before. If anything changed, the
// batches that were redoable in before have been superseded and are
// removed from both sequences. It returns the number of batches removed.
func (e *Engine) Prune(before journal.Snapshot) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.journal.Snapshot().Equal(before) {
		return 0
	}
	return e.journal.Prune(before.Redo)
}

// Status summarizes the store and journal.
type Status struct {
	Undoable    int
	Redoable    int
	Entries     int
	RootSize    int64
	Fingerprint string
	Mode        journal.Mode
}

// Status returns a consistent summary taken under the lock.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Undoable:    e.journal.Undoable(),
		Redoable:    e.journal.Redoable(),
		Entries:     len(e.store.Paths()) - 1,
		RootSize:    e.store.RootSize(),
		Fingerprint: e.store.Fingerprint(),
		Mode:        e.journal.Mode(),
	}
}

// BatchInfo describes one undoable batch.
type BatchInfo struct {
	ID       uuid.UUID
	Label    string
	Recorded time.Time
	Entries  int
}

// History lists the undoable batches, oldest first.
func (e *Engine) History() []BatchInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	batches := e.journal.Batches()
	infos := make([]BatchInfo, 0, len(batches))
	for _, b := range batches {
		infos = append(infos, BatchInfo{
			ID:       b.ID,
			Label:    b.Label,
			Recorded: b.Recorded,
			Entries:  b.Len(),
		})
	}
	return infos
}
