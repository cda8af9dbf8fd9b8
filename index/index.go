// Package index implements the Index Handle contract: an equality probe
// and lower/upper-bound positioning, forward leaf traversal, insert and
// delete, over a B+-tree keyed by a fixed-length composite key mapping
// key -> Rid, with duplicate keys permitted (rids distinguish entries).
//
// Backed by go.etcd.io/bbolt rather than an in-memory btree: a real
// on-disk B+-tree whose Cursor.Seek/Next are exactly the
// lower-bound/forward-traversal primitives the contract needs, making the
// index genuinely disk-backed the way the rest of this engine is. One
// bbolt bucket holds one index's entries.
package index

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/txn"
)

var indexBucket = []byte("index")

// Handle is one B+-tree secondary index, keyed by keyLen-byte composite
// keys. Entries are stored as bucket keys of keyLen+8 bytes (the index key
// followed by the big-endian Rid), so bbolt's native byte-wise key
// ordering groups duplicate-key entries together ordered by Rid, and a
// lower/upper bound over the index key alone is a bucket-key range.
type Handle struct {
	db     *bbolt.DB
	name   string
	keyLen uint32
}

// Open opens (creating if necessary) the on-disk bbolt file backing one
// index, named from its table and column names.
func Open(path, name string, keyLen uint32) (*Handle, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Handle{db: db, name: name, keyLen: keyLen}, nil
}

func (h *Handle) Close() error {
	return h.db.Close()
}

func (h *Handle) Name() string { return h.name }

func entryKey(key []byte, rid kschema.Rid) []byte {
	b := rid.Encode()
	out := make([]byte, len(key)+8)
	copy(out, key)
	copy(out[len(key):], b[:])
	return out
}

func splitEntryKey(entry []byte, keyLen uint32) ([]byte, kschema.Rid) {
	return entry[:keyLen], kschema.DecodeRid(entry[keyLen:])
}

// InsertEntry inserts (key, rid); duplicate keys with distinct rids are
// permitted. txn is accepted for interface symmetry with the rest of the
// engine's mutating calls but no index-level locking is required beyond
// what the heap mutation already acquired.
func (h *Handle) InsertEntry(key []byte, rid kschema.Rid, tx *txn.Transaction) error {
	if uint32(len(key)) != h.keyLen {
		return fmt.Errorf("index: %s: key length %d != %d", h.name, len(key), h.keyLen)
	}
	return h.db.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(indexBucket).Put(entryKey(key, rid), nil)
	})
}

// DeleteEntry removes the single entry for this exact (key, rid) pair; a
// caller must supply the rid because duplicate keys are permitted.
func (h *Handle) DeleteEntry(key []byte, rid kschema.Rid, tx *txn.Transaction) error {
	if uint32(len(key)) != h.keyLen {
		return fmt.Errorf("index: %s: key length %d != %d", h.name, len(key), h.keyLen)
	}
	return h.db.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(indexBucket).Delete(entryKey(key, rid))
	})
}

// Cursor is a forward leaf traversal over [lower, upper) entries,
// inclusive of lower and exclusive of upper.
type Cursor struct {
	tx     *bbolt.Tx
	cur    *bbolt.Cursor
	keyLen uint32
	upper  []byte // nil means unbounded (LeafEnd); may be shorter than keyLen for a prefix bound, compared against only that many leading bytes of each entry's key
	done   bool
	key    []byte
	rid    kschema.Rid
}

func (h *Handle) newCursor() (*Cursor, error) {
	btx, err := h.db.Begin(false)
	if err != nil {
		return nil, err
	}
	return &Cursor{tx: btx, cur: btx.Bucket(indexBucket).Cursor(), keyLen: h.keyLen}, nil
}

// LowerBound returns the key marking the inclusive start of the range for
// an equality probe on key: key itself.
func (h *Handle) LowerBound(key []byte) []byte {
	return key
}

// UpperBound returns the key marking the exclusive end of the range for
// an equality probe on key: the immediate successor of key in the
// composite key-space, or nil (unbounded) if key is already the maximum
// representable value.
func (h *Handle) UpperBound(key []byte) []byte {
	succ, ok := Successor(key)
	if !ok {
		return nil
	}
	return succ
}

// LeafBegin/LeafEnd mark the bounds of a full, unfiltered index scan.
func (h *Handle) LeafBegin() []byte { return nil }
func (h *Handle) LeafEnd() []byte   { return nil }

// NewScan returns a forward cursor over [lower, upper): lower == nil means
// "the first entry in the index"; upper == nil means unbounded. Passing
// LeafBegin()/LeafEnd() yields a full index scan; passing
// LowerBound(key)/UpperBound(key) yields the equality-probe range.
func (h *Handle) NewScan(lower, upper []byte) (*Cursor, error) {
	c, err := h.newCursor()
	if err != nil {
		return nil, err
	}
	var ek []byte
	if lower == nil {
		ek, _ = c.cur.First()
	} else {
		ek, _ = c.cur.Seek(lower)
	}
	if upper != nil {
		c.upper = append([]byte(nil), upper...)
	}
	c.advanceTo(ek)
	return c, nil
}

func (c *Cursor) advanceTo(entryKeyBytes []byte) {
	if entryKeyBytes == nil {
		c.done = true
		return
	}
	k, rid := splitEntryKey(entryKeyBytes, c.keyLen)
	if c.upper != nil && bytes.Compare(k[:len(c.upper)], c.upper) >= 0 {
		c.done = true
		return
	}
	c.key, c.rid = k, rid
	c.done = false
}

// Valid reports whether the cursor is positioned at an entry.
func (c *Cursor) Valid() bool { return !c.done }

// Key/Rid return the entry the cursor is positioned at.
func (c *Cursor) Key() []byte      { return c.key }
func (c *Cursor) Rid() kschema.Rid { return c.rid }

// Next advances the cursor one entry forward.
func (c *Cursor) Next() {
	if c.done {
		return
	}
	ek, _ := c.cur.Next()
	c.advanceTo(ek)
}

// Close releases the underlying read transaction.
func (c *Cursor) Close() error {
	return c.tx.Rollback()
}

// Successor returns the key immediately following key in the composite
// key-space, the exclusive upper bound of an equality or prefix probe on
// key. Since keys here are fixed-length big-endian/memcmp-ordered
// segments (kschema.EncodeInt32/EncodeFloat32), "immediately following"
// is computed by incrementing the key as a big-endian integer; an
// all-0xFF key is the maximum value and has no successor, reported as
// ok=false (callers then use an unbounded upper, LeafEnd semantics).
func Successor(key []byte) (succ []byte, ok bool) {
	out := append([]byte(nil), key...)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return out, true
		}
	}
	return nil, false
}
