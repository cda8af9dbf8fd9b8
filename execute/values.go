package execute

import (
	"github.com/kestreldb/kestrel/kschema"
)

// Values is a trivial source operator over a fixed in-memory list of
// tuples, the role an INSERT statement's VALUES clause plays as Insert's
// child.
type Values struct {
	cols   []kschema.ColMeta
	tuples [][]byte
	i      int
	ended  bool
}

func NewValues(cols []kschema.ColMeta, tuples [][]byte) *Values {
	return &Values{cols: cols, tuples: tuples}
}

func (v *Values) Begin() error {
	v.i = 0
	v.ended = len(v.tuples) == 0
	return nil
}

func (v *Values) NextTuple() error {
	v.i++
	v.ended = v.i >= len(v.tuples)
	return nil
}

func (v *Values) CurrentTuple() []byte {
	if v.ended {
		return nil
	}
	return v.tuples[v.i]
}

func (v *Values) CurrentRid() kschema.Rid   { return kschema.Rid{} }
func (v *Values) IsEnd() bool               { return v.ended }
func (v *Values) TupleLen() uint32          { return tupleLenOf(v.cols) }
func (v *Values) Cols() []kschema.ColMeta   { return v.cols }
