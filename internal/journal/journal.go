package journal

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"undofs/internal/logging"
)

var (
	journalLogger = logging.GetLogger().WithPrefix("journal")

	// ErrNothingToUndo is returned when the undo sequence is empty.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned when no undone batch can be redone.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Mode gates whether primitives are journaled.
type Mode int

const (
	// Recording appends an entry pair for every primitive.
	Recording Mode = iota
	// ReplayingUndo is set while an undo batch is applied.
	ReplayingUndo
	// ReplayingRedo is set while a redo batch is applied.
	ReplayingRedo
)

func (m Mode) String() string {
	switch m {
	case Recording:
		return "recording"
	case ReplayingUndo:
		return "replaying-undo"
	case ReplayingRedo:
		return "replaying-redo"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Snapshot lists the batch IDs of both sequences at one instant.
type Snapshot struct {
	Undo []uuid.UUID
	Redo []uuid.UUID
}

// Equal reports whether both snapshots list the same batches.
func (s Snapshot) Equal(other Snapshot) bool {
	return slices.Equal(s.Undo, other.Undo) && slices.Equal(s.Redo, other.Redo)
}

// Journal holds the undo and redo sequences. It is not safe for concurrent
// use; the engine serializes access together with the store.
type Journal struct {
	mode    Mode
	undo    []*Batch
	redo    []*Batch
	open    *Batch
	changed bool // recorded since the last undo
	now     func() time.Time
}

// New creates an empty journal in recording mode.
func New() *Journal {
	return &Journal{mode: Recording, now: time.Now}
}

// Mode returns the current execution mode.
func (j *Journal) Mode() Mode {
	return j.mode
}

// SetMode switches the execution mode and returns the previous one.
func (j *Journal) SetMode(m Mode) Mode {
	prev := j.mode
	j.mode = m
	return prev
}

// Record appends deep copies of an undo/redo entry pair. Outside recording
// mode it does nothing and returns false. With no open batch the pair is
// committed as a batch of its own.
func (j *Journal) Record(undo, redo Entry) bool {
	if j.mode != Recording {
		return false
	}

	id := uuid.New()
	undo = undo.Clone()
	redo = redo.Clone()
	undo.ID = id
	redo.ID = id
	j.changed = true

	if j.open != nil {
		j.open.Undo = append(j.open.Undo, undo)
		j.open.Redo = append(j.open.Redo, redo)
		return true
	}

	batch := j.newBatch(fmt.Sprintf("%s %s", undo.Op, undo.Path))
	batch.Undo = []Entry{undo}
	batch.Redo = []Entry{redo}
	j.undo = append(j.undo, batch)
	journalLogger.Trace("Committed single-entry batch %s (%s)", batch.ID, batch.Label)
	return true
}

func (j *Journal) newBatch(label string) *Batch {
	return &Batch{ID: uuid.New(), Label: label, Recorded: j.now()}
}

// Begin opens a batch that collects every following entry until End. An
// already open batch is committed first.
func (j *Journal) Begin(label string) {
	if j.open != nil {
		j.End()
	}
	j.open = j.newBatch(label)
}

// End commits the open batch and returns it. Empty batches are dropped and
// nil is returned.
func (j *Journal) End() *Batch {
	batch := j.open
	j.open = nil
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	j.undo = append(j.undo, batch)
	journalLogger.Debug("Committed batch %s (%q, %d entries)", batch.ID, batch.Label, batch.Len())
	return batch
}

// InBatch reports whether a batch is open.
func (j *Journal) InBatch() bool {
	return j.open != nil
}

// Changed reports whether anything was recorded since the last undo.
func (j *Journal) Changed() bool {
	return j.changed
}

// MarkUndone clears the state-change flag after a successful undo.
func (j *Journal) MarkUndone() {
	j.changed = false
}

// Undoable returns the number of batches that can be undone.
func (j *Journal) Undoable() int {
	return len(j.undo)
}

// Redoable returns the number of batches waiting in the redo sequence.
func (j *Journal) Redoable() int {
	return len(j.redo)
}

// Batches returns the undoable batches, oldest first.
func (j *Journal) Batches() []*Batch {
	return slices.Clone(j.undo)
}

// PopUndo removes and returns the newest undoable batch.
func (j *Journal) PopUndo() (*Batch, error) {
	if len(j.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	batch := j.undo[len(j.undo)-1]
	j.undo = j.undo[:len(j.undo)-1]
	return batch, nil
}

// PushUndo makes batch undoable again.
func (j *Journal) PushUndo(batch *Batch) {
	j.undo = append(j.undo, batch)
}

// PopRedo removes and returns the newest redoable batch. Redo is refused
// once anything has been recorded since the last undo.
func (j *Journal) PopRedo() (*Batch, error) {
	if j.changed || len(j.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	batch := j.redo[len(j.redo)-1]
	j.redo = j.redo[:len(j.redo)-1]
	return batch, nil
}

// PushRedo makes batch redoable.
func (j *Journal) PushRedo(batch *Batch) {
	j.redo = append(j.redo, batch)
}

// DiscardRedo drops every redo batch and returns how many there were.
func (j *Journal) DiscardRedo() int {
	n := len(j.redo)
	j.redo = nil
	return n
}

// Snapshot captures the batch IDs of both sequences.
func (j *Journal) Snapshot() Snapshot {
	s := Snapshot{
		Undo: make([]uuid.UUID, 0, len(j.undo)),
		Redo: make([]uuid.UUID, 0, len(j.redo)),
	}
	for _, b := range j.undo {
		s.Undo = append(s.Undo, b.ID)
	}
	for _, b := range j.redo {
		s.Redo = append(s.Redo, b.ID)
	}
	return s
}

// Prune removes the listed batches from both sequences and returns how
// many were removed.
func (j *Journal) Prune(ids []uuid.UUID) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	keep := func(seq []*Batch) ([]*Batch, int) {
		kept := seq[:0]
		removed := 0
		for _, b := range seq {
			if _, ok := drop[b.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, b)
		}
		return kept, removed
	}

	var removedUndo, removedRedo int
	j.undo, removedUndo = keep(j.undo)
	j.redo, removedRedo = keep(j.redo)
	if total := removedUndo + removedRedo; total > 0 {
		journalLogger.Debug("Pruned %d abandoned batches", total)
	}
	return removedUndo + removedRedo
}
