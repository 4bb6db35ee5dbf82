package replication

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

// Cursor is a (remote_site, stream) replication high-water mark (spec
// §3 data model). Sequence and Lsn advance monotonically within a
// stream.
type Cursor struct {
	RemoteSiteID        uint64
	StreamID            uint64
	LastAppliedSequence uint64
	Lsn                 uint64
	Bytes               uint64
}

func cursorKey(site, stream uint64) uint64 {
	return site<<32 | stream
}

// WAL tracks cursors for every (site, stream) pair the engine has
// advanced, optionally mirroring each advance to a durable bbolt store
// so cursors survive a restart.
type WAL struct {
	mu      sync.Mutex
	cursors map[uint64]Cursor
	store   *CursorStore
}

// NewWAL returns an empty in-memory WAL. A nil store disables
// durability.
func NewWAL(store *CursorStore) *WAL {
	return &WAL{cursors: make(map[uint64]Cursor), store: store}
}

// Advance updates the (site, stream) cursor to (seq, lsn, bytes),
// rejecting a sequence or lsn that would move the cursor backward or
// leave it unchanged (spec §4.9: "sequences strictly increasing, lsns
// strictly increasing").
func (w *WAL) Advance(site, stream, seq, lsn, bytes uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := cursorKey(site, stream)
	if existing, ok := w.cursors[key]; ok {
		if seq <= existing.LastAppliedSequence {
			return claudefserrs.Protocol.New("sequence %d does not advance cursor at %d", seq, existing.LastAppliedSequence)
		}
		if lsn <= existing.Lsn {
			return claudefserrs.Protocol.New("lsn %d does not advance cursor at %d", lsn, existing.Lsn)
		}
	}

	cursor := Cursor{RemoteSiteID: site, StreamID: stream, LastAppliedSequence: seq, Lsn: lsn, Bytes: bytes}
	w.cursors[key] = cursor

	if w.store != nil {
		if err := w.store.Put(cursor); err != nil {
			return err
		}
	}
	return nil
}

// Cursor returns the current cursor for (site, stream), if any.
func (w *WAL) Cursor(site, stream uint64) (Cursor, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.cursors[cursorKey(site, stream)]
	return c, ok
}

// AllCursors returns every tracked cursor, in no particular order.
func (w *WAL) AllCursors() []Cursor {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Cursor, 0, len(w.cursors))
	for _, c := range w.cursors {
		out = append(out, c)
	}
	return out
}

// cursorsBucket is the bbolt bucket holding one JSON-encoded Cursor per
// (site, stream) key.
var cursorsBucket = []byte("replication_cursors")

// CursorStore durably persists WAL cursors in a bbolt database so a
// restarted engine can resume from its last known position (spec's WAL
// is logically durable; this gives it a concrete on-disk store).
type CursorStore struct {
	db *bbolt.DB
}

// OpenCursorStore opens (creating if absent) a bbolt database at path
// for cursor durability.
func OpenCursorStore(path string) (*CursorStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, claudefserrs.DeviceError(path, err.Error())
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cursorsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, claudefserrs.DeviceError(path, err.Error())
	}
	return &CursorStore{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *CursorStore) Close() error {
	return s.db.Close()
}

func encodeCursorKey(site, stream uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], site)
	binary.BigEndian.PutUint64(b[8:], stream)
	return b
}

// Put durably writes cursor, keyed by (RemoteSiteID, StreamID).
func (s *CursorStore) Put(cursor Cursor) error {
	value, err := json.Marshal(cursor)
	if err != nil {
		return claudefserrs.SerializationError(err.Error())
	}
	key := encodeCursorKey(cursor.RemoteSiteID, cursor.StreamID)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(cursorsBucket).Put(key, value)
	})
	if err != nil {
		return claudefserrs.DeviceError("cursor-store", err.Error())
	}
	return nil
}

// Get returns the durably stored cursor for (site, stream), if any.
func (s *CursorStore) Get(site, stream uint64) (Cursor, bool, error) {
	var cursor Cursor
	var found bool
	key := encodeCursorKey(site, stream)
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(cursorsBucket).Get(key)
		if value == nil {
			return nil
		}
		found = true
		return json.Unmarshal(value, &cursor)
	})
	if err != nil {
		return Cursor{}, false, claudefserrs.SerializationError(fmt.Sprintf("decoding cursor: %v", err))
	}
	return cursor, found, nil
}

// LoadAll returns every durably stored cursor, for WAL restoration on
// startup.
func (s *CursorStore) LoadAll() ([]Cursor, error) {
	var out []Cursor
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(cursorsBucket).ForEach(func(_, value []byte) error {
			var c Cursor
			if err := json.Unmarshal(value, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, claudefserrs.SerializationError(err.Error())
	}
	return out, nil
}
