package execute

import (
	"fmt"

	"github.com/kestreldb/kestrel/kschema"
)

// Projection narrows its child's tuples to a chosen subset of columns, in
// the given order, recomputing each output column's Offset for the
// projected tuple's own layout.
type Projection struct {
	child Operator
	src   []kschema.ColMeta // each entry's Offset/Len refer to the child's tuple layout
	cols  []kschema.ColMeta // output layout
}

// NewProjection selects cols (by name) from child's schema.
func NewProjection(child Operator, names []string) (*Projection, error) {
	childCols := child.Cols()
	src := make([]kschema.ColMeta, 0, len(names))
	for _, name := range names {
		found := false
		for _, c := range childCols {
			if c.Name == name {
				src = append(src, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("execute: projection: unknown column %q", name)
		}
	}
	return &Projection{child: child, src: src, cols: kschema.MakeColumns(src)}, nil
}

func (p *Projection) Begin() error     { return p.child.Begin() }
func (p *Projection) NextTuple() error { return p.child.NextTuple() }
func (p *Projection) IsEnd() bool      { return p.child.IsEnd() }

func (p *Projection) CurrentTuple() []byte {
	if p.child.IsEnd() {
		return nil
	}
	childTuple := p.child.CurrentTuple()
	out := make([]byte, 0, p.TupleLen())
	for _, c := range p.src {
		out = append(out, childTuple[c.Offset:c.Offset+c.Len]...)
	}
	return out
}

func (p *Projection) CurrentRid() kschema.Rid { return p.child.CurrentRid() }
func (p *Projection) TupleLen() uint32        { return tupleLenOf(p.cols) }
func (p *Projection) Cols() []kschema.ColMeta { return p.cols }
