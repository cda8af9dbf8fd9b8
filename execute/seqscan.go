package execute

import (
	"errors"

	"github.com/kestreldb/kestrel/heap"
	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/txn"
)

// SeqScan walks every occupied rid of a heap file in ascending (page, slot)
// order, returning the tuples matching conds. It does not take a table-
// level S lock: concurrency safety comes entirely from the per-record S
// lock heap.GetRecord acquires on each candidate rid, the accepted
// phantom-read gap for full-table scans this engine documents.
type SeqScan struct {
	hf    *heap.HeapFile
	ctx   *txn.ExecContext
	conds []Condition
	cols  []kschema.ColMeta

	scanner *heap.Scanner
	rid     kschema.Rid
	tuple   []byte
	ended   bool
}

func NewSeqScan(hf *heap.HeapFile, cols []kschema.ColMeta, conds []Condition, ctx *txn.ExecContext) *SeqScan {
	return &SeqScan{hf: hf, cols: cols, conds: conds, ctx: ctx}
}

func (s *SeqScan) Begin() error {
	s.scanner = s.hf.NewScanner()
	return s.advance()
}

func (s *SeqScan) NextTuple() error {
	return s.advance()
}

// advance walks forward from the scanner's current position to the next
// rid that is still a valid record and satisfies every condition,
// rechecking record validity on each step rather than only at scan start,
// since a concurrently deleted rid can fall mid-range.
func (s *SeqScan) advance() error {
	for {
		ok, err := s.scanner.Next()
		if err != nil {
			return err
		}
		if !ok {
			s.ended = true
			s.tuple = nil
			return nil
		}
		rid := s.scanner.Rid()
		tuple, err := s.hf.GetRecord(s.ctx, rid)
		if errors.Is(err, heap.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !EvalAll(s.conds, tuple) {
			continue
		}
		s.rid, s.tuple = rid, tuple
		return nil
	}
}

func (s *SeqScan) CurrentTuple() []byte      { return s.tuple }
func (s *SeqScan) CurrentRid() kschema.Rid   { return s.rid }
func (s *SeqScan) IsEnd() bool               { return s.ended }
func (s *SeqScan) TupleLen() uint32          { return tupleLenOf(s.cols) }
func (s *SeqScan) Cols() []kschema.ColMeta   { return s.cols }
