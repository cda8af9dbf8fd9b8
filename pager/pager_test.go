package pager_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/kestreldb/kestrel/pager"
)

func TestNewPageGrowsFileAndIsZeroFilled(t *testing.T) {
	p, err := pager.Open(filepath.Join(t.TempDir(), "t.heap"), 128)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	defer p.Close()

	n, err := p.NumPages()
	if err != nil {
		t.Fatalf("NumPages: %s", err)
	}
	if n != 0 {
		t.Fatalf("NumPages on a fresh file = %d, want 0", n)
	}

	pg, err := p.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %s", err)
	}
	if pg.PageNo != 0 {
		t.Errorf("first NewPage's PageNo = %d, want 0", pg.PageNo)
	}
	if !bytes.Equal(pg.Data, make([]byte, 128)) {
		t.Error("a freshly allocated page should be zero-filled")
	}

	n, err = p.NumPages()
	if err != nil {
		t.Fatalf("NumPages: %s", err)
	}
	if n != 1 {
		t.Errorf("NumPages after one NewPage = %d, want 1", n)
	}
}

func TestFetchPageReadsBackWhatWasWritten(t *testing.T) {
	p, err := pager.Open(filepath.Join(t.TempDir(), "t.heap"), 64)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	defer p.Close()

	pg, err := p.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %s", err)
	}
	copy(pg.Data, []byte("hello page"))
	if err := p.WritePage(pg); err != nil {
		t.Fatalf("WritePage: %s", err)
	}

	got, err := p.FetchPage(pg.PageNo)
	if err != nil {
		t.Fatalf("FetchPage: %s", err)
	}
	if !bytes.HasPrefix(got.Data, []byte("hello page")) {
		t.Errorf("FetchPage = %q, want prefix %q", got.Data, "hello page")
	}
}

func TestWritePageRejectsWrongSizedBuffer(t *testing.T) {
	p, err := pager.Open(filepath.Join(t.TempDir(), "t.heap"), 64)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	defer p.Close()

	err = p.WritePage(&pager.Page{PageNo: 0, Data: make([]byte, 10)})
	if err == nil {
		t.Error("WritePage with a wrong-sized buffer: expected an error, got nil")
	}
}

func TestPagesPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.heap")
	p1, err := pager.Open(path, 64)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	pg, err := p1.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %s", err)
	}
	copy(pg.Data, []byte("persisted"))
	if err := p1.WritePage(pg); err != nil {
		t.Fatalf("WritePage: %s", err)
	}
	if err := p1.Sync(); err != nil {
		t.Fatalf("Sync: %s", err)
	}
	p1.Close()

	p2, err := pager.Open(path, 64)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	defer p2.Close()
	got, err := p2.FetchPage(pg.PageNo)
	if err != nil {
		t.Fatalf("FetchPage: %s", err)
	}
	if !bytes.HasPrefix(got.Data, []byte("persisted")) {
		t.Errorf("FetchPage after reopen = %q, want prefix %q", got.Data, "persisted")
	}
}
