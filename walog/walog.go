// Package walog provides the append-only, flush-at-commit log the
// transaction manager relies on. Log record *contents* are a caller
// concern — callers pass opaque byte slices — so this package only
// implements the shape of the collaborator: Append and FlushToDisk, plus a
// signature + version header written when a log file is created. Open does
// not verify that header when it opens an existing file.
//
// Grounded on a signature + version header followed by a flat stream of
// records written through a single io.Writer, simplified to the
// opaque-record shape this engine needs.
package walog

import (
	"encoding/binary"
	"fmt"
	"os"
)

var walSignature = [4]byte{'k', 'w', 'a', 'l'}

const walVersion = 1

// LogManager is an append-only log file, flushed to disk on demand.
type LogManager struct {
	f       *os.File
	nextLSN uint64
}

// Open opens (creating if necessary) a WAL file, writing a fresh header
// if the file is new.
func Open(path string) (*LogManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		hdr := make([]byte, 0, 5)
		hdr = append(hdr, walSignature[:]...)
		hdr = append(hdr, walVersion)
		if _, err := f.Write(hdr); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &LogManager{f: f}, nil
}

func (lm *LogManager) Close() error {
	return lm.f.Close()
}

// Append writes one opaque record, framed with a 4-byte big-endian length
// prefix, and returns its log sequence number.
func (lm *LogManager) Append(rec []byte) (lsn uint64, err error) {
	buf := make([]byte, 4+len(rec))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(rec)))
	copy(buf[4:], rec)
	if _, err := lm.f.Write(buf); err != nil {
		return 0, fmt.Errorf("walog: append: %w", err)
	}
	lm.nextLSN++
	return lm.nextLSN, nil
}

// FlushToDisk fsyncs the log file; the transaction manager calls this at
// both commit and abort.
func (lm *LogManager) FlushToDisk() error {
	return lm.f.Sync()
}
