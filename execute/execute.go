// Package execute implements the Volcano-model DML operators: SeqScan,
// IndexScan, NestedLoopJoin, Projection, Insert, Delete, Update. Each
// operator pulls from its child (if any), acquires the locks its algorithm
// requires through the supplied *txn.ExecContext, and mutating operators
// maintain every secondary index bound to their table.
//
// Grounded on a pull-iterator shape (Next/Close/Columns over a rows
// struct), generalized from a single cursor-over-materialized-rows
// abstraction to the distinct operator kinds here, each driving package
// heap/index/lock directly instead of a single storage-engine Table
// interface.
package execute

import (
	"fmt"

	"github.com/kestreldb/kestrel/index"
	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/txn"
)

// txnOf returns ctx's transaction, or nil if ctx itself is nil — the
// shape every index-mutating call site needs since *index.Handle's
// InsertEntry/DeleteEntry take a *txn.Transaction directly rather than an
// *txn.ExecContext.
func txnOf(ctx *txn.ExecContext) *txn.Transaction {
	if ctx == nil {
		return nil
	}
	return ctx.Txn
}

// Operator is the pull-model iterator every DML operator implements.
// Begin positions the operator at its first tuple (or end, if empty);
// NextTuple advances past the current tuple to the next one.
type Operator interface {
	Begin() error
	NextTuple() error
	CurrentTuple() []byte
	CurrentRid() kschema.Rid
	IsEnd() bool
	TupleLen() uint32
	Cols() []kschema.ColMeta
}

// IndexBinding pairs a secondary index's metadata with its open handle, the
// unit Insert/Delete/Update operators use to keep every index on their
// table consistent with the heap.
type IndexBinding struct {
	Meta   kschema.IndexMeta
	Handle *index.Handle
}

// CmpOp is a condition's comparison operator.
type CmpOp int

const (
	Eq CmpOp = iota
	Ne
	Lt
	Gt
	Le
	Ge
)

func (op CmpOp) String() string {
	switch op {
	case Eq:
		return "="
	case Ne:
		return "<>"
	case Lt:
		return "<"
	case Gt:
		return ">"
	case Le:
		return "<="
	case Ge:
		return ">="
	default:
		return fmt.Sprintf("CmpOp(%d)", int(op))
	}
}

func (op CmpOp) invert() CmpOp {
	switch op {
	case Lt:
		return Gt
	case Gt:
		return Lt
	case Le:
		return Ge
	case Ge:
		return Le
	default:
		return op // Eq, Ne are their own inverse
	}
}

// Condition is one conjunct of a predicate: Lhs compared against either a
// constant (RhsConst) or another column (RhsCol), both evaluated against
// whatever single tuple buffer the condition is applied to. For a join,
// that buffer is the concatenated output tuple, so Lhs/RhsCol offsets must
// already be expressed in the combined schema.
type Condition struct {
	Lhs      kschema.ColMeta
	Op       CmpOp
	RhsConst []byte
	RhsCol   *kschema.ColMeta
}

// Eval evaluates the condition against one tuple buffer.
func (c Condition) Eval(tuple []byte) bool {
	lhs := tuple[c.Lhs.Offset : c.Lhs.Offset+c.Lhs.Len]
	var rhs []byte
	if c.RhsCol != nil {
		rhs = tuple[c.RhsCol.Offset : c.RhsCol.Offset+c.RhsCol.Len]
	} else {
		rhs = c.RhsConst
	}
	cmp := kschema.CompareSegment(c.Lhs.Type, lhs, rhs)
	switch c.Op {
	case Eq:
		return cmp == 0
	case Ne:
		return cmp != 0
	case Lt:
		return cmp < 0
	case Gt:
		return cmp > 0
	case Le:
		return cmp <= 0
	case Ge:
		return cmp >= 0
	default:
		return false
	}
}

// EvalAll evaluates a conjunction of conditions.
func EvalAll(conds []Condition, tuple []byte) bool {
	for _, c := range conds {
		if !c.Eval(tuple) {
			return false
		}
	}
	return true
}

// NormalizeForTable performs IndexScan's plan-time column-side
// normalization: any condition whose Lhs belongs to a different table than
// table, but whose RhsCol belongs to table, is rewritten with sides
// swapped and its operator inverted, so every returned condition's Lhs
// belongs to table whenever that's possible at all.
func NormalizeForTable(conds []Condition, table string) []Condition {
	out := make([]Condition, len(conds))
	for i, c := range conds {
		if c.Lhs.Table == table || c.RhsCol == nil || c.RhsCol.Table != table {
			out[i] = c
			continue
		}
		lhs := *c.RhsCol
		rhsCol := c.Lhs
		out[i] = Condition{Lhs: lhs, Op: c.Op.invert(), RhsCol: &rhsCol}
	}
	return out
}

// CombineCols concatenates a join's outer and inner schemas into one
// output schema, recomputing inner columns' Offset by shifting them past
// the outer tuple's length; outer columns keep their original offsets.
func CombineCols(outer, inner []kschema.ColMeta) []kschema.ColMeta {
	var outerLen uint32
	for _, c := range outer {
		outerLen += c.Len
	}
	out := make([]kschema.ColMeta, 0, len(outer)+len(inner))
	out = append(out, outer...)
	for _, c := range inner {
		c.Offset += outerLen
		out = append(out, c)
	}
	return out
}

func tupleLenOf(cols []kschema.ColMeta) uint32 {
	var n uint32
	for _, c := range cols {
		n += c.Len
	}
	return n
}
