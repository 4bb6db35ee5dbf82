package replication_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/replication"
)

func TestCursorStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")

	store, err := replication.OpenCursorStore(path)
	require.NoError(t, err)

	cursor := replication.Cursor{RemoteSiteID: 2, StreamID: 0, LastAppliedSequence: 100, Lsn: 1000, Bytes: 4096}
	require.NoError(t, store.Put(cursor))
	require.NoError(t, store.Close())

	reopened, err := replication.OpenCursorStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, found, err := reopened.Get(2, 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cursor, got)
}

func TestCursorStoreGetMissingReturnsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")
	store, err := replication.OpenCursorStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.Get(99, 99)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCursorStoreLoadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")
	store, err := replication.OpenCursorStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(replication.Cursor{RemoteSiteID: 2, StreamID: 0, LastAppliedSequence: 100, Lsn: 1000}))
	require.NoError(t, store.Put(replication.Cursor{RemoteSiteID: 2, StreamID: 1, LastAppliedSequence: 200, Lsn: 2000}))

	all, err := store.LoadAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWALWithDurableStoreRejectsBackwardAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")
	store, err := replication.OpenCursorStore(path)
	require.NoError(t, err)
	defer store.Close()

	wal := replication.NewWAL(store)
	require.NoError(t, wal.Advance(2, 0, 100, 1000, 100))

	err = wal.Advance(2, 0, 50, 2000, 50)
	assert.Error(t, err)

	persisted, found, err := store.Get(2, 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(100), persisted.LastAppliedSequence)
}
