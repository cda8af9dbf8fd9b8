package execute

import (
	"github.com/kestreldb/kestrel/heap"
	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/txn"
)

// SetFunc computes a record's new tuple buffer from its old one; callers
// build SetFunc from a SET clause's assignments, writing each assigned
// column's bytes with kschema.PutInt32/PutFloat32/PutFixedChar into a copy
// of the old tuple.
type SetFunc func(old []byte) []byte

// Update pulls (rid, old tuple) pairs from child, and for each: deletes
// every affected index's old entry, overwrites the heap record, then
// inserts every affected index's new entry — in that order, so an index
// is never observably missing an entry for a live rid nor holding two
// entries for one rid at once. This mirrors the original executor's
// update ordering: old index entries are removed for every index before
// the heap buffer is rewritten, and new entries are added only afterward.
type Update struct {
	hf      *heap.HeapFile
	indexes []IndexBinding
	set     SetFunc
	ctx     *txn.ExecContext
	child   Operator

	tuple []byte
	rid   kschema.Rid
	ended bool
}

func NewUpdate(hf *heap.HeapFile, indexes []IndexBinding, set SetFunc, child Operator, ctx *txn.ExecContext) *Update {
	return &Update{hf: hf, indexes: indexes, set: set, child: child, ctx: ctx}
}

func (u *Update) Begin() error {
	if err := u.child.Begin(); err != nil {
		return err
	}
	return u.process()
}

func (u *Update) NextTuple() error {
	if err := u.child.NextTuple(); err != nil {
		return err
	}
	return u.process()
}

func (u *Update) process() error {
	if u.child.IsEnd() {
		u.ended = true
		u.tuple = nil
		return nil
	}
	rid := u.child.CurrentRid()
	old := u.child.CurrentTuple()
	newTuple := u.set(old)

	for _, ib := range u.indexes {
		oldKey := ib.Meta.Key(old)
		if err := ib.Handle.DeleteEntry(oldKey, rid, txnOf(u.ctx)); err != nil {
			return err
		}
	}
	if err := u.hf.UpdateRecord(u.ctx, rid, newTuple); err != nil {
		return err
	}
	for _, ib := range u.indexes {
		newKey := ib.Meta.Key(newTuple)
		if err := ib.Handle.InsertEntry(newKey, rid, txnOf(u.ctx)); err != nil {
			return err
		}
	}

	u.tuple, u.rid = newTuple, rid
	return nil
}

func (u *Update) CurrentTuple() []byte    { return u.tuple }
func (u *Update) CurrentRid() kschema.Rid { return u.rid }
func (u *Update) IsEnd() bool             { return u.ended }
func (u *Update) TupleLen() uint32        { return u.hf.RecordSize() }
func (u *Update) Cols() []kschema.ColMeta { return u.child.Cols() }
