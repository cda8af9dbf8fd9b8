package execute

import (
	"github.com/kestreldb/kestrel/heap"
	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/txn"
)

// Delete pulls (rid, tuple) pairs from child — typically a SeqScan or
// IndexScan carrying the delete's predicate — removes each index entry
// bound to the table, then deletes the heap record itself.
type Delete struct {
	hf      *heap.HeapFile
	indexes []IndexBinding
	ctx     *txn.ExecContext
	child   Operator

	tuple []byte
	rid   kschema.Rid
	ended bool
}

func NewDelete(hf *heap.HeapFile, indexes []IndexBinding, child Operator, ctx *txn.ExecContext) *Delete {
	return &Delete{hf: hf, indexes: indexes, child: child, ctx: ctx}
}

func (d *Delete) Begin() error {
	if err := d.child.Begin(); err != nil {
		return err
	}
	return d.process()
}

func (d *Delete) NextTuple() error {
	if err := d.child.NextTuple(); err != nil {
		return err
	}
	return d.process()
}

func (d *Delete) process() error {
	if d.child.IsEnd() {
		d.ended = true
		d.tuple = nil
		return nil
	}
	rid := d.child.CurrentRid()
	tuple := d.child.CurrentTuple()

	for _, ib := range d.indexes {
		key := ib.Meta.Key(tuple)
		if err := ib.Handle.DeleteEntry(key, rid, txnOf(d.ctx)); err != nil {
			return err
		}
	}
	if err := d.hf.DeleteRecord(d.ctx, rid); err != nil {
		return err
	}
	d.tuple, d.rid = tuple, rid
	return nil
}

func (d *Delete) CurrentTuple() []byte    { return d.tuple }
func (d *Delete) CurrentRid() kschema.Rid { return d.rid }
func (d *Delete) IsEnd() bool             { return d.ended }
func (d *Delete) TupleLen() uint32        { return d.hf.RecordSize() }
func (d *Delete) Cols() []kschema.ColMeta { return d.child.Cols() }
