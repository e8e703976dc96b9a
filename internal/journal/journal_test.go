package journal

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOperationLifecycle(t *testing.T) {
	j := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	j.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	id, err := j.Begin("/dev/usb01", "partition", map[string]any{"percent": 80})
	require.NoError(t, err)

	before := bytes.Repeat([]byte{0xAB}, 512)
	after := bytes.Repeat([]byte{0xCD}, 512)
	require.NoError(t, j.Snapshot(id, PhaseBefore, 0, before))
	require.NoError(t, j.Snapshot(id, PhaseAfter, 0, after))
	require.NoError(t, j.Finish(id, StatusSucceeded))

	op, err := j.Get(id[:8])
	require.NoError(t, err)
	assert.Equal(t, id, op.ID)
	assert.Equal(t, StatusSucceeded, op.Status)
	assert.Equal(t, "/dev/usb01", op.Device)
	assert.EqualValues(t, 80, op.Details["percent"])
	require.NotNil(t, op.FinishedAt)
	assert.Equal(t, 3*time.Second, op.FinishedAt.Sub(op.StartedAt))

	snap, err := j.SnapshotOf(id, PhaseBefore)
	require.NoError(t, err)
	assert.Equal(t, before, snap.Data)
	snap, err = j.SnapshotOf(id, PhaseAfter)
	require.NoError(t, err)
	assert.Equal(t, after, snap.Data)
}

func TestRecentOrderAndTable(t *testing.T) {
	j := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	j.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	first, err := j.Begin("/dev/sdcard01", "format", nil)
	require.NoError(t, err)
	second, err := j.Begin("/dev/usb01", "fix-order", nil)
	require.NoError(t, err)

	ops, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, second, ops[0].ID)
	assert.Equal(t, first, ops[1].ID)
	assert.Equal(t, StatusRunning, ops[1].Status)
	assert.Nil(t, ops[1].FinishedAt)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, ops, tick.Add(time.Hour)))
	out := buf.String()
	assert.Contains(t, out, first[:8])
	assert.Contains(t, out, "fix-order")
	assert.Contains(t, out, "ago")
}

func TestNotFound(t *testing.T) {
	j := openTemp(t)
	_, err := j.Get("deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, j.Finish("deadbeef", StatusFailed), ErrNotFound)

	id, err := j.Begin("/dev/usb01", "delete-mbr", nil)
	require.NoError(t, err)
	_, err = j.SnapshotOf(id, PhaseAfter)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	id, err := j.Begin("/dev/usb01", "format", nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	op, err := j.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "format", op.Kind)
}
