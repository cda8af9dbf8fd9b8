package execute

import (
	"github.com/kestreldb/kestrel/kschema"
)

// NestedLoopJoin pairs every outer tuple with every inner tuple satisfying
// conds, restarting the inner side from scratch for each outer tuple. Since
// an Operator has no reset method (restart is always by construction of a
// fresh one, the same rule heap.Scanner follows), the inner side is
// supplied as a factory invoked once per outer tuple rather than as an
// already-built Operator.
type NestedLoopJoin struct {
	outer        Operator
	innerFactory func() (Operator, error)
	conds        []Condition
	cols         []kschema.ColMeta

	inner Operator
	tuple []byte
	ended bool
}

func NewNestedLoopJoin(outer Operator, innerFactory func() (Operator, error), conds []Condition) *NestedLoopJoin {
	return &NestedLoopJoin{outer: outer, innerFactory: innerFactory, conds: conds}
}

func (j *NestedLoopJoin) Begin() error {
	if err := j.outer.Begin(); err != nil {
		return err
	}
	if j.outer.IsEnd() {
		j.ended = true
		return nil
	}
	if err := j.restartInner(); err != nil {
		return err
	}
	return j.advance()
}

func (j *NestedLoopJoin) restartInner() error {
	inner, err := j.innerFactory()
	if err != nil {
		return err
	}
	if err := inner.Begin(); err != nil {
		return err
	}
	j.inner = inner
	if j.cols == nil {
		j.cols = CombineCols(j.outer.Cols(), inner.Cols())
	}
	return nil
}

func (j *NestedLoopJoin) NextTuple() error {
	if err := j.inner.NextTuple(); err != nil {
		return err
	}
	return j.advance()
}

// advance scans forward through the current inner pass, then through
// further outer tuples (each with a freshly restarted inner), until a
// matching pair is found or the outer side is exhausted.
func (j *NestedLoopJoin) advance() error {
	for {
		for !j.inner.IsEnd() {
			combined := append(append([]byte(nil), j.outer.CurrentTuple()...), j.inner.CurrentTuple()...)
			if EvalAll(j.conds, combined) {
				j.tuple = combined
				return nil
			}
			if err := j.inner.NextTuple(); err != nil {
				return err
			}
		}

		if err := j.outer.NextTuple(); err != nil {
			return err
		}
		if j.outer.IsEnd() {
			j.ended = true
			j.tuple = nil
			return nil
		}
		if err := j.restartInner(); err != nil {
			return err
		}
	}
}

// CurrentRid is undefined for a joined tuple (a Rid identifies a single
// heap record, not a pair); it returns the outer side's rid, the only one
// of the pair still meaningful for, e.g., a later Delete/Update built on
// top of a single-table side of the join.
func (j *NestedLoopJoin) CurrentRid() kschema.Rid { return j.outer.CurrentRid() }

func (j *NestedLoopJoin) CurrentTuple() []byte    { return j.tuple }
func (j *NestedLoopJoin) IsEnd() bool             { return j.ended }
func (j *NestedLoopJoin) TupleLen() uint32        { return tupleLenOf(j.cols) }
func (j *NestedLoopJoin) Cols() []kschema.ColMeta { return j.cols }
