package execute_test

import (
	"path/filepath"
	"testing"

	"github.com/kestreldb/kestrel/execute"
	"github.com/kestreldb/kestrel/heap"
	"github.com/kestreldb/kestrel/index"
	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/lock"
	"github.com/kestreldb/kestrel/pager"
	"github.com/kestreldb/kestrel/txn"
)

// widgetsCols follows the demo command's schema (an indexed int32 id, a
// fixed-length name, and a float32 price), with an 8-byte name column where
// the demo uses 16 bytes.
func widgetsCols() []kschema.ColMeta {
	return kschema.MakeColumns([]kschema.ColMeta{
		{Name: "id", Table: "widgets", Type: kschema.INT32, Len: 4, Indexed: true},
		{Name: "name", Table: "widgets", Type: kschema.FIXEDCHAR, Len: 8},
		{Name: "price", Table: "widgets", Type: kschema.FLOAT32, Len: 4},
	})
}

func widgetsIndexMeta(cols []kschema.ColMeta) kschema.IndexMeta {
	idCol, _ := kschema.TabMeta{Cols: cols}.Column("id")
	return kschema.IndexMeta{Name: "widgets_id", Table: "widgets", Cols: []kschema.ColMeta{idCol}}
}

func widgetsTuple(cols []kschema.ColMeta, id int32, name string, price float32) []byte {
	tm := kschema.TabMeta{Cols: cols}
	buf := make([]byte, tm.TupleLen())
	idCol, _ := tm.Column("id")
	nameCol, _ := tm.Column("name")
	priceCol, _ := tm.Column("price")
	kschema.PutInt32(buf[idCol.Offset:idCol.Offset+idCol.Len], id)
	kschema.PutFixedChar(buf[nameCol.Offset:nameCol.Offset+nameCol.Len], name, nameCol.Len)
	kschema.PutFloat32(buf[priceCol.Offset:priceCol.Offset+priceCol.Len], price)
	return buf
}

func decodeID(cols []kschema.ColMeta, tuple []byte) int32 {
	idCol, _ := kschema.TabMeta{Cols: cols}.Column("id")
	return kschema.DecodeInt32(tuple[idCol.Offset : idCol.Offset+idCol.Len])
}

func openTestHeap(t *testing.T, cols []kschema.ColMeta) *heap.HeapFile {
	t.Helper()
	p, err := pager.Open(filepath.Join(t.TempDir(), "t.heap"), 512)
	if err != nil {
		t.Fatalf("pager.Open: %s", err)
	}
	t.Cleanup(func() { p.Close() })
	tm := kschema.TabMeta{Name: "widgets", Cols: cols}
	hf, err := heap.Create(p, 1, "widgets", tm.TupleLen(), nil)
	if err != nil {
		t.Fatalf("heap.Create: %s", err)
	}
	return hf
}

func openTestIndex(t *testing.T, im kschema.IndexMeta) *index.Handle {
	t.Helper()
	idx, err := index.Open(filepath.Join(t.TempDir(), "widgets_id.idx"), im.Name, im.KeyLen())
	if err != nil {
		t.Fatalf("index.Open: %s", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func newExecContext() *txn.ExecContext {
	lockMgr := lock.NewManager(nil)
	txnMgr := txn.NewManager(nil)
	tx := txnMgr.Begin(nil)
	return &txn.ExecContext{Txn: tx, Lock: lockMgr}
}

// drive runs op to completion, calling visit(op) for each tuple.
func drive(t *testing.T, op execute.Operator, visit func()) {
	t.Helper()
	if err := op.Begin(); err != nil {
		t.Fatalf("Begin: %s", err)
	}
	for !op.IsEnd() {
		visit()
		if err := op.NextTuple(); err != nil {
			t.Fatalf("NextTuple: %s", err)
		}
	}
}

func insertWidgets(t *testing.T, hf *heap.HeapFile, indexes []execute.IndexBinding, cols []kschema.ColMeta, rows [][3]interface{}) {
	t.Helper()
	var tuples [][]byte
	for _, r := range rows {
		tuples = append(tuples, widgetsTuple(cols, r[0].(int32), r[1].(string), r[2].(float32)))
	}
	ins := execute.NewInsert(hf, indexes, execute.NewValues(cols, tuples), newExecContext())
	drive(t, ins, func() {})
}
