package execute_test

import (
	"testing"

	"github.com/kestreldb/kestrel/execute"
	"github.com/kestreldb/kestrel/heap"
	"github.com/kestreldb/kestrel/kschema"
)

func TestDeleteRemovesHeapRecordAndIndexEntry(t *testing.T) {
	cols := widgetsCols()
	im := widgetsIndexMeta(cols)
	hf := openTestHeap(t, cols)
	idx := openTestIndex(t, im)
	indexes := []execute.IndexBinding{{Meta: im, Handle: idx}}

	insertWidgets(t, hf, indexes, cols, [][3]interface{}{
		{int32(1), "bolt", float32(0.15)},
		{int32(2), "gasket", float32(1.25)},
	})

	idCol, _ := kschema.TabMeta{Cols: cols}.Column("id")
	one := kschema.EncodeInt32(1)
	target := execute.NewSeqScan(hf, cols, []execute.Condition{
		{Lhs: idCol, Op: execute.Eq, RhsConst: one[:]},
	}, newExecContext())

	del := execute.NewDelete(hf, indexes, target, newExecContext())
	var deleted []kschema.Rid
	drive(t, del, func() { deleted = append(deleted, del.CurrentRid()) })
	if len(deleted) != 1 {
		t.Fatalf("deleted %d rows, want 1", len(deleted))
	}

	if _, err := hf.GetRecord(nil, deleted[0]); err != heap.ErrRecordNotFound {
		t.Errorf("GetRecord after delete: err = %v, want ErrRecordNotFound", err)
	}

	scan := execute.NewIndexScan(hf, idx, im, cols, []execute.Condition{
		{Lhs: idCol, Op: execute.Eq, RhsConst: one[:]},
	}, newExecContext())
	found := 0
	drive(t, scan, func() { found++ })
	if found != 0 {
		t.Errorf("index still has an entry for the deleted row: found %d, want 0", found)
	}

	remaining := execute.NewSeqScan(hf, cols, nil, newExecContext())
	count := 0
	drive(t, remaining, func() { count++ })
	if count != 1 {
		t.Errorf("remaining rows = %d, want 1", count)
	}
}
