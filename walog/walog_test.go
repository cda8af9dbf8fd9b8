package walog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kestreldb/kestrel/walog"
)

func TestOpenWritesHeaderOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.wal")
	lm, err := walog.Open(path)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	if err := lm.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}

	fi1, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %s", err)
	}

	lm2, err := walog.Open(path)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	defer lm2.Close()

	fi2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %s", err)
	}
	if fi1.Size() != fi2.Size() {
		t.Errorf("reopening an existing WAL changed its size: %d -> %d, want unchanged", fi1.Size(), fi2.Size())
	}
}

func TestAppendAssignsIncreasingLSNs(t *testing.T) {
	lm, err := walog.Open(filepath.Join(t.TempDir(), "t.wal"))
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	defer lm.Close()

	lsn1, err := lm.Append([]byte("one"))
	if err != nil {
		t.Fatalf("Append: %s", err)
	}
	lsn2, err := lm.Append([]byte("two"))
	if err != nil {
		t.Fatalf("Append: %s", err)
	}
	if lsn2 <= lsn1 {
		t.Errorf("lsn2 = %d, lsn1 = %d, want lsn2 > lsn1", lsn2, lsn1)
	}
}

func TestAppendPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.wal")
	lm, err := walog.Open(path)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	if _, err := lm.Append([]byte("record-a")); err != nil {
		t.Fatalf("Append: %s", err)
	}
	if err := lm.FlushToDisk(); err != nil {
		t.Fatalf("FlushToDisk: %s", err)
	}
	beforeClose, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %s", err)
	}
	if err := lm.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}

	lm2, err := walog.Open(path)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	defer lm2.Close()
	afterReopen, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %s", err)
	}
	if beforeClose.Size() != afterReopen.Size() {
		t.Errorf("reopening lost or duplicated data: size %d -> %d", beforeClose.Size(), afterReopen.Size())
	}
}
