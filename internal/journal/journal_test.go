package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"undofs/internal/store"
)

func TestRecordOnlyWhileRecording(t *testing.T) {
	j := New()

	assert.True(t, j.Record(Entry{Op: OpCreate, Path: "/a"}, Entry{Op: OpCreate, Path: "/a"}))
	assert.Equal(t, 1, j.Undoable())

	for _, mode := range []Mode{ReplayingUndo, ReplayingRedo} {
		t.Run(mode.String(), func(t *testing.T) {
			prev := j.SetMode(mode)
			defer j.SetMode(prev)

			assert.False(t, j.Record(Entry{Op: OpUnlink, Path: "/a"}, Entry{Op: OpUnlink, Path: "/a"}))
			assert.Equal(t, 1, j.Undoable())
		})
	}
}

func TestRecordSharesIDAndCopies(t *testing.T) {
	j := New()
	rec := &store.Record{Xattrs: map[string][]byte{"user.k": []byte("v")}}
	content := []byte("hello")

	j.Record(
		Entry{Op: OpWrite, Path: "/a", Record: rec, Content: content},
		Entry{Op: OpWrite, Path: "/a", Record: rec, Content: content},
	)

	// Mutating the caller's values must not reach the journal.
	rec.Xattrs["user.k"][0] = 'X'
	rec.Size = 99
	content[0] = 'J'

	batch := j.Batches()[0]
	undo, redo := batch.Undo[0], batch.Redo[0]
	assert.Equal(t, undo.ID, redo.ID)
	assert.Equal(t, "hello", string(undo.Content))
	assert.Equal(t, "v", string(undo.Record.Xattrs["user.k"]))
	assert.Zero(t, undo.Record.Size)
	assert.NotSame(t, undo.Record, redo.Record)
}

func TestBatches(t *testing.T) {
	j := New()

	t.Run("EntriesCollectIntoOpenBatch", func(t *testing.T) {
		j.Begin("touch a b")
		assert.True(t, j.InBatch())
		j.Record(Entry{Op: OpCreate, Path: "/a"}, Entry{Op: OpCreate, Path: "/a"})
		j.Record(Entry{Op: OpCreate, Path: "/b"}, Entry{Op: OpCreate, Path: "/b"})
		batch := j.End()

		require.NotNil(t, batch)
		assert.Equal(t, "touch a b", batch.Label)
		assert.Equal(t, 2, batch.Len())
		assert.Equal(t, 1, j.Undoable())
	})

	t.Run("EmptyBatchIsDropped", func(t *testing.T) {
		j.Begin("ls")
		assert.Nil(t, j.End())
		assert.Equal(t, 1, j.Undoable())
	})
}

func TestUndoRedoSequences(t *testing.T) {
	j := New()

	_, err := j.PopUndo()
	assert.ErrorIs(t, err, ErrNothingToUndo)
	_, err = j.PopRedo()
	assert.ErrorIs(t, err, ErrNothingToRedo)

	j.Record(Entry{Op: OpMkdir, Path: "/d"}, Entry{Op: OpMkdir, Path: "/d"})
	batch, err := j.PopUndo()
	require.NoError(t, err)
	j.PushRedo(batch)

	// Recorded since the last undo: redo is refused.
	_, err = j.PopRedo()
	assert.ErrorIs(t, err, ErrNothingToRedo)

	j.MarkUndone()
	got, err := j.PopRedo()
	require.NoError(t, err)
	assert.Same(t, batch, got)
}

func TestSnapshotAndPrune(t *testing.T) {
	j := New()
	j.Record(Entry{Op: OpCreate, Path: "/a"}, Entry{Op: OpCreate, Path: "/a"})
	j.Record(Entry{Op: OpCreate, Path: "/b"}, Entry{Op: OpCreate, Path: "/b"})

	undone, err := j.PopUndo()
	require.NoError(t, err)
	j.PushRedo(undone)
	j.MarkUndone()

	before := j.Snapshot()
	assert.Len(t, before.Undo, 1)
	assert.Equal(t, undone.ID, before.Redo[0])
	assert.True(t, before.Equal(j.Snapshot()))

	j.Record(Entry{Op: OpCreate, Path: "/c"}, Entry{Op: OpCreate, Path: "/c"})
	after := j.Snapshot()
	assert.False(t, before.Equal(after))

	assert.Equal(t, 1, j.Prune(before.Redo))
	assert.Equal(t, 0, j.Redoable())
	assert.Equal(t, 2, j.Undoable())
	assert.Zero(t, j.Prune(nil))
}
