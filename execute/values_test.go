package execute_test

import (
	"testing"

	"github.com/kestreldb/kestrel/execute"
	"github.com/kestreldb/kestrel/kschema"
)

func TestValuesYieldsEachTupleOnceInOrder(t *testing.T) {
	cols := widgetsCols()
	tuples := [][]byte{
		widgetsTuple(cols, 1, "bolt", 0.15),
		widgetsTuple(cols, 2, "gasket", 1.25),
	}
	v := execute.NewValues(cols, tuples)

	var ids []int32
	drive(t, v, func() { ids = append(ids, decodeID(cols, v.CurrentTuple())) })
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}
}

func TestValuesOverEmptyListIsImmediatelyAtEnd(t *testing.T) {
	v := execute.NewValues(widgetsCols(), nil)
	if err := v.Begin(); err != nil {
		t.Fatalf("Begin: %s", err)
	}
	if !v.IsEnd() {
		t.Error("Values over an empty tuple list should be at end immediately after Begin")
	}
	if v.CurrentRid() != (kschema.Rid{}) {
		t.Errorf("CurrentRid = %s, want zero value", v.CurrentRid())
	}
}
