package execute

import (
	"github.com/kestreldb/kestrel/heap"
	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/txn"
)

// Insert pulls tuples from child (typically a Values operator), inserts
// each into the heap, and adds the corresponding entry to every index
// bound to the table. It yields the inserted tuple and its fresh rid.
type Insert struct {
	hf      *heap.HeapFile
	indexes []IndexBinding
	ctx     *txn.ExecContext
	child   Operator

	tuple []byte
	rid   kschema.Rid
	ended bool
}

func NewInsert(hf *heap.HeapFile, indexes []IndexBinding, child Operator, ctx *txn.ExecContext) *Insert {
	return &Insert{hf: hf, indexes: indexes, child: child, ctx: ctx}
}

func (ins *Insert) Begin() error {
	if err := ins.child.Begin(); err != nil {
		return err
	}
	return ins.process()
}

func (ins *Insert) NextTuple() error {
	if err := ins.child.NextTuple(); err != nil {
		return err
	}
	return ins.process()
}

func (ins *Insert) process() error {
	if ins.child.IsEnd() {
		ins.ended = true
		ins.tuple = nil
		return nil
	}
	tuple := ins.child.CurrentTuple()
	rid, err := ins.hf.InsertRecord(ins.ctx, tuple)
	if err != nil {
		return err
	}
	for _, ib := range ins.indexes {
		key := ib.Meta.Key(tuple)
		if err := ib.Handle.InsertEntry(key, rid, txnOf(ins.ctx)); err != nil {
			return err
		}
	}
	ins.tuple, ins.rid = tuple, rid
	return nil
}

func (ins *Insert) CurrentTuple() []byte      { return ins.tuple }
func (ins *Insert) CurrentRid() kschema.Rid   { return ins.rid }
func (ins *Insert) IsEnd() bool               { return ins.ended }
func (ins *Insert) TupleLen() uint32          { return ins.hf.RecordSize() }
func (ins *Insert) Cols() []kschema.ColMeta   { return ins.child.Cols() }
