package execute_test

import (
	"testing"

	"github.com/kestreldb/kestrel/execute"
	"github.com/kestreldb/kestrel/kschema"
)

func TestSeqScanVisitsEveryRowInRidOrder(t *testing.T) {
	cols := widgetsCols()
	hf := openTestHeap(t, cols)
	insertWidgets(t, hf, nil, cols, [][3]interface{}{
		{int32(1), "bolt", float32(0.15)},
		{int32(2), "gasket", float32(1.25)},
		{int32(3), "washer", float32(0.05)},
	})

	scan := execute.NewSeqScan(hf, cols, nil, newExecContext())
	var ids []int32
	drive(t, scan, func() { ids = append(ids, decodeID(cols, scan.CurrentTuple())) })

	want := []int32{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("scanned %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestSeqScanFiltersByCondition(t *testing.T) {
	cols := widgetsCols()
	hf := openTestHeap(t, cols)
	insertWidgets(t, hf, nil, cols, [][3]interface{}{
		{int32(1), "bolt", float32(0.15)},
		{int32(2), "gasket", float32(1.25)},
		{int32(3), "washer", float32(0.05)},
	})

	idCol, _ := kschema.TabMeta{Cols: cols}.Column("id")
	two := kschema.EncodeInt32(2)
	scan := execute.NewSeqScan(hf, cols, []execute.Condition{
		{Lhs: idCol, Op: execute.Ge, RhsConst: two[:]},
	}, newExecContext())

	var ids []int32
	drive(t, scan, func() { ids = append(ids, decodeID(cols, scan.CurrentTuple())) })
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Errorf("filtered scan = %v, want [2 3]", ids)
	}
}

// TestSeqScanSkipsConcurrentlyDeletedRecord checks that a scanner already
// positioned past its first tuple tolerates a later tuple being deleted
// out from under it mid-scan, rather than erroring.
func TestSeqScanSkipsConcurrentlyDeletedRecord(t *testing.T) {
	cols := widgetsCols()
	hf := openTestHeap(t, cols)

	rid1, err := hf.InsertRecord(nil, widgetsTuple(cols, 1, "bolt", 0.15))
	if err != nil {
		t.Fatalf("InsertRecord: %s", err)
	}
	rid2, err := hf.InsertRecord(nil, widgetsTuple(cols, 2, "gasket", 1.25))
	if err != nil {
		t.Fatalf("InsertRecord: %s", err)
	}
	rid3, err := hf.InsertRecord(nil, widgetsTuple(cols, 3, "washer", 0.05))
	if err != nil {
		t.Fatalf("InsertRecord: %s", err)
	}
	_ = rid1

	scan := execute.NewSeqScan(hf, cols, nil, newExecContext())
	if err := scan.Begin(); err != nil {
		t.Fatalf("Begin: %s", err)
	}
	if got := decodeID(cols, scan.CurrentTuple()); got != 1 {
		t.Fatalf("first tuple id = %d, want 1", got)
	}

	// Delete the row the scanner has not yet visited, out from under it.
	if err := hf.DeleteRecord(nil, rid2); err != nil {
		t.Fatalf("DeleteRecord: %s", err)
	}

	var ids []int32
	for {
		if err := scan.NextTuple(); err != nil {
			t.Fatalf("NextTuple: %s", err)
		}
		if scan.IsEnd() {
			break
		}
		ids = append(ids, decodeID(cols, scan.CurrentTuple()))
	}

	if len(ids) != 1 || ids[0] != 3 {
		t.Errorf("ids after deletion = %v, want [3]", ids)
	}
	_ = rid3
}
