package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestreldb/kestrel/catalog"
	"github.com/kestreldb/kestrel/execute"
	"github.com/kestreldb/kestrel/heap"
	"github.com/kestreldb/kestrel/index"
	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/lock"
	"github.com/kestreldb/kestrel/pager"
	"github.com/kestreldb/kestrel/txn"
	"github.com/kestreldb/kestrel/walog"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Insert a few rows into a scratch table, index them, and scan them back",
	RunE:  runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func widgetsSchema() kschema.TabMeta {
	cols := kschema.MakeColumns([]kschema.ColMeta{
		{Name: "id", Table: "widgets", Type: kschema.INT32, Len: 4, Indexed: true},
		{Name: "name", Table: "widgets", Type: kschema.FIXEDCHAR, Len: 16},
		{Name: "price", Table: "widgets", Type: kschema.FLOAT32, Len: 4},
	})
	var idCol kschema.ColMeta
	for _, c := range cols {
		if c.Name == "id" {
			idCol = c
		}
	}
	return kschema.TabMeta{
		Name: "widgets",
		Cols: cols,
		Indexes: []kschema.IndexMeta{
			{Name: "widgets_id", Table: "widgets", Cols: []kschema.ColMeta{idCol}},
		},
	}
}

func widgetsTuple(tm kschema.TabMeta, id int32, name string, price float32) []byte {
	buf := make([]byte, tm.TupleLen())
	idCol, _ := tm.Column("id")
	nameCol, _ := tm.Column("name")
	priceCol, _ := tm.Column("price")
	kschema.PutInt32(buf[idCol.Offset:idCol.Offset+idCol.Len], id)
	kschema.PutFixedChar(buf[nameCol.Offset:nameCol.Offset+nameCol.Len], name, nameCol.Len)
	kschema.PutFloat32(buf[priceCol.Offset:priceCol.Offset+priceCol.Len], price)
	return buf
}

func runDemo(cmd *cobra.Command, args []string) error {
	tm := widgetsSchema()

	p, err := pager.Open(filepath.Join(cfg.DataDir, "widgets.heap"), cfg.PageSize)
	if err != nil {
		return err
	}
	defer p.Close()

	n, err := p.NumPages()
	if err != nil {
		return err
	}
	var hf *heap.HeapFile
	if n == 0 {
		hf, err = heap.Create(p, 1, tm.Name, tm.TupleLen(), nil)
	} else {
		hf, err = heap.Open(p, 1, tm.Name, nil)
	}
	if err != nil {
		return err
	}

	idx, err := index.Open(filepath.Join(cfg.DataDir, "widgets_id.idx"), "widgets_id", tm.Indexes[0].KeyLen())
	if err != nil {
		return err
	}
	defer idx.Close()
	indexes := []execute.IndexBinding{{Meta: tm.Indexes[0], Handle: idx}}

	wal, err := walog.Open(filepath.Join(cfg.DataDir, "kestrel.wal"))
	if err != nil {
		return err
	}
	defer wal.Close()

	lockMgr := lock.NewManager(nil)
	txnMgr := txn.NewManager(nil)

	tx := txnMgr.Begin(nil)
	ctx := &txn.ExecContext{Txn: tx, Lock: lockMgr}

	tuples := [][]byte{
		widgetsTuple(tm, 1, "bolt", 0.15),
		widgetsTuple(tm, 2, "gasket", 1.25),
		widgetsTuple(tm, 3, "washer", 0.05),
	}
	ins := execute.NewInsert(hf, indexes, execute.NewValues(tm.Cols, tuples), ctx)
	if err := ins.Begin(); err != nil {
		_ = txnMgr.Abort(tx, lockMgr, wal)
		return err
	}
	for !ins.IsEnd() {
		fmt.Printf("inserted rid=%s\n", ins.CurrentRid())
		if err := ins.NextTuple(); err != nil {
			_ = txnMgr.Abort(tx, lockMgr, wal)
			return err
		}
	}
	if err := txnMgr.Commit(tx, lockMgr, wal); err != nil {
		return err
	}

	tx2 := txnMgr.Begin(nil)
	ctx2 := &txn.ExecContext{Txn: tx2, Lock: lockMgr}
	idCol, _ := tm.Column("id")
	nameCol, _ := tm.Column("name")
	priceCol, _ := tm.Column("price")

	scan := execute.NewSeqScan(hf, tm.Cols, nil, ctx2)
	if err := scan.Begin(); err != nil {
		_ = txnMgr.Abort(tx2, lockMgr, wal)
		return err
	}
	for !scan.IsEnd() {
		tuple := scan.CurrentTuple()
		id := kschema.DecodeInt32(tuple[idCol.Offset : idCol.Offset+idCol.Len])
		name := strings.TrimRight(string(tuple[nameCol.Offset:nameCol.Offset+nameCol.Len]), "\x00")
		price := kschema.DecodeFloat32(tuple[priceCol.Offset : priceCol.Offset+priceCol.Len])
		fmt.Printf("rid=%s id=%d name=%s price=%.2f\n", scan.CurrentRid(), id, name, price)
		if err := scan.NextTuple(); err != nil {
			_ = txnMgr.Abort(tx2, lockMgr, wal)
			return err
		}
	}
	if err := txnMgr.Commit(tx2, lockMgr, wal); err != nil {
		return err
	}

	return catalog.Save(filepath.Join(cfg.DataDir, cfg.CatalogFile), catalog.DbMeta{
		Name:   "kestrel_demo",
		Tables: []kschema.TabMeta{tm},
	})
}
