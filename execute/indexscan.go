package execute

import (
	"errors"

	"github.com/kestreldb/kestrel/heap"
	"github.com/kestreldb/kestrel/index"
	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/lock"
	"github.com/kestreldb/kestrel/txn"
)

// IndexScan probes a secondary index for the equality-prefix of conds that
// matches the index's leading columns, in order, then filters every
// candidate rid against the full condition list. Unlike SeqScan, it takes
// one coarse S lock on the table up front rather than relying solely on
// per-record locking, since a range probe touches an a-priori-unbounded
// number of index entries.
//
// The feasible-prefix routine here mirrors the original executor's
// index-prefix matching: walk the index's columns in declaration order,
// and for as long as each column has a matching equality-with-constant
// condition, extend the probe key; stop at the first column with no such
// condition.
type IndexScan struct {
	hf    *heap.HeapFile
	idx   *index.Handle
	im    kschema.IndexMeta
	conds []Condition
	cols  []kschema.ColMeta
	ctx   *txn.ExecContext

	cur   *index.Cursor
	rid   kschema.Rid
	tuple []byte
	ended bool
}

func NewIndexScan(hf *heap.HeapFile, idx *index.Handle, im kschema.IndexMeta, cols []kschema.ColMeta, conds []Condition, ctx *txn.ExecContext) *IndexScan {
	return &IndexScan{hf: hf, idx: idx, im: im, cols: cols, conds: NormalizeForTable(conds, im.Table), ctx: ctx}
}

// feasiblePrefix returns the composite key bytes built from the longest
// leading run of im.Cols each matched by an Eq-with-constant condition.
func (s *IndexScan) feasiblePrefix() []byte {
	var prefix []byte
	for _, c := range s.im.Cols {
		matched := false
		for _, cond := range s.conds {
			if cond.Op == Eq && cond.RhsConst != nil && cond.Lhs.Name == c.Name && cond.Lhs.Table == c.Table {
				prefix = append(prefix, cond.RhsConst...)
				matched = true
				break
			}
		}
		if !matched {
			break
		}
	}
	return prefix
}

func (s *IndexScan) Begin() error {
	if err := acquireIndexLock(s.ctx, s.hf); err != nil {
		return err
	}

	prefix := s.feasiblePrefix()
	var lower, upper []byte
	if len(prefix) == 0 {
		lower, upper = s.idx.LeafBegin(), s.idx.LeafEnd()
	} else if uint32(len(prefix)) == s.im.KeyLen() {
		lower, upper = s.idx.LowerBound(prefix), s.idx.UpperBound(prefix)
	} else {
		lower = prefix
		succ, ok := index.Successor(prefix)
		if ok {
			upper = succ
		}
	}

	cur, err := s.idx.NewScan(lower, upper)
	if err != nil {
		return err
	}
	s.cur = cur
	return s.advance()
}

func (s *IndexScan) NextTuple() error {
	s.cur.Next()
	return s.advance()
}

func (s *IndexScan) advance() error {
	for s.cur.Valid() {
		rid := s.cur.Rid()
		tuple, err := s.hf.GetRecord(s.ctx, rid)
		if errors.Is(err, heap.ErrRecordNotFound) {
			s.cur.Next()
			continue
		}
		if err != nil {
			return err
		}
		if !EvalAll(s.conds, tuple) {
			s.cur.Next()
			continue
		}
		s.rid, s.tuple = rid, tuple
		return nil
	}
	s.ended = true
	s.tuple = nil
	return s.cur.Close()
}

func acquireIndexLock(ctx *txn.ExecContext, hf *heap.HeapFile) error {
	if ctx == nil || ctx.Lock == nil || ctx.Txn == nil {
		return nil
	}
	return ctx.Lock.Acquire(ctx.Txn, lock.TableID(hf.FileID()), lock.S)
}

func (s *IndexScan) CurrentTuple() []byte    { return s.tuple }
func (s *IndexScan) CurrentRid() kschema.Rid { return s.rid }
func (s *IndexScan) IsEnd() bool             { return s.ended }
func (s *IndexScan) TupleLen() uint32        { return tupleLenOf(s.cols) }
func (s *IndexScan) Cols() []kschema.ColMeta { return s.cols }
