// Package heap implements the record manager: a per-table heap of
// fixed-length records over slotted pages with a per-page occupancy bitmap
// and a file-level singly-linked free-page list, plus the locking and
// undo-capture obligations every mutation carries.
//
// Grounded on a page allocator doing ReadAt/WriteAt at pageNo*pageSize with
// a metadata/header page separate from data pages, for the physical
// page-stride I/O shape, and on a table/transaction split for how locking
// and write-set capture hang off an execution context rather than off the
// heap file itself.
package heap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/lock"
	"github.com/kestreldb/kestrel/pager"
	"github.com/kestreldb/kestrel/txn"
)

// NoPage is the sentinel terminating the free-page list.
const NoPage uint32 = math.MaxUint32

const (
	fileHeaderSize = 20 // NumPages, NumRecordsPerPage, RecordSize, BitmapSize, FirstFreePageNo
	pageHeaderSize = 8  // NumRecords, NextFreePageNo
)

var (
	ErrPageNotExist   = errors.New("heap: page does not exist")
	ErrRecordNotFound = errors.New("heap: record not found")
	ErrInternal       = errors.New("heap: internal error")
)

// fileHeader is the heap file's header: num_pages, num_records_per_page,
// record_size, bitmap_size, first_free_page_no.
type fileHeader struct {
	NumPages          uint32
	NumRecordsPerPage uint32
	RecordSize        uint32
	BitmapSize        uint32
	FirstFreePageNo   uint32
}

func (h fileHeader) encode() []byte {
	buf := make([]byte, fileHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.NumPages)
	binary.BigEndian.PutUint32(buf[4:8], h.NumRecordsPerPage)
	binary.BigEndian.PutUint32(buf[8:12], h.RecordSize)
	binary.BigEndian.PutUint32(buf[12:16], h.BitmapSize)
	binary.BigEndian.PutUint32(buf[16:20], h.FirstFreePageNo)
	return buf
}

func decodeFileHeader(buf []byte) fileHeader {
	return fileHeader{
		NumPages:          binary.BigEndian.Uint32(buf[0:4]),
		NumRecordsPerPage: binary.BigEndian.Uint32(buf[4:8]),
		RecordSize:        binary.BigEndian.Uint32(buf[8:12]),
		BitmapSize:        binary.BigEndian.Uint32(buf[12:16]),
		FirstFreePageNo:   binary.BigEndian.Uint32(buf[16:20]),
	}
}

// pageHeader mirrors a data page's header: num_records, next_free_page_no.
type pageHeader struct {
	NumRecords     uint32
	NextFreePageNo uint32
}

func (h pageHeader) encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], h.NumRecords)
	binary.BigEndian.PutUint32(dst[4:8], h.NextFreePageNo)
}

func decodePageHeader(buf []byte) pageHeader {
	return pageHeader{
		NumRecords:     binary.BigEndian.Uint32(buf[0:4]),
		NextFreePageNo: binary.BigEndian.Uint32(buf[4:8]),
	}
}

// HeapFile is a single table's heap file handle.
type HeapFile struct {
	p      *pager.Pager
	fileID uint32
	table  string
	log    logrus.FieldLogger

	hdr fileHeader
}

// Create initializes a brand-new heap file for fixed-length records of
// recordSize bytes, computing num_records_per_page so each record costs
// one bitmap bit plus its bytes.
func Create(p *pager.Pager, fileID uint32, table string, recordSize uint32, log logrus.FieldLogger) (*HeapFile, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	usable := int64(p.PageSize()) - pageHeaderSize
	perPage := (usable * 8) / (int64(recordSize)*8 + 1)
	if perPage <= 0 {
		return nil, fmt.Errorf("heap: record size %d too large for page size %d", recordSize, p.PageSize())
	}
	bitmapSize := (perPage + 7) / 8

	hf := &HeapFile{
		p:      p,
		fileID: fileID,
		table:  table,
		log:    log,
		hdr: fileHeader{
			NumPages:          1, // the header page itself
			NumRecordsPerPage: uint32(perPage),
			RecordSize:        recordSize,
			BitmapSize:        uint32(bitmapSize),
			FirstFreePageNo:   NoPage,
		},
	}
	if err := hf.writeHeader(); err != nil {
		return nil, err
	}
	return hf, nil
}

// Open reads an existing heap file's header page.
func Open(p *pager.Pager, fileID uint32, table string, log logrus.FieldLogger) (*HeapFile, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	pg, err := p.FetchPage(pager.HeaderPageNo)
	if err != nil {
		return nil, err
	}
	return &HeapFile{p: p, fileID: fileID, table: table, log: log, hdr: decodeFileHeader(pg.Data)}, nil
}

func (hf *HeapFile) writeHeader() error {
	return hf.p.WritePage(&pager.Page{PageNo: pager.HeaderPageNo, Data: padTo(hf.hdr.encode(), hf.p.PageSize())})
}

func padTo(b []byte, n uint32) []byte {
	if uint32(len(b)) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (hf *HeapFile) FileID() uint32   { return hf.fileID }
func (hf *HeapFile) TableName() string { return hf.table }
func (hf *HeapFile) RecordSize() uint32 { return hf.hdr.RecordSize }

func (hf *HeapFile) dataOffset() uint32 {
	return pageHeaderSize + hf.hdr.BitmapSize
}

func (hf *HeapFile) slotOffset(slot uint32) uint32 {
	return hf.dataOffset() + slot*hf.hdr.RecordSize
}

func (hf *HeapFile) checkPageNo(pageNo uint32) error {
	if pageNo == pager.HeaderPageNo || pageNo >= hf.hdr.NumPages {
		return ErrPageNotExist
	}
	return nil
}

func (hf *HeapFile) checkSlotNo(slot uint32) error {
	if slot >= hf.hdr.NumRecordsPerPage {
		return ErrPageNotExist
	}
	return nil
}

func bitSet(bitmap []byte, i uint32) bool {
	return bitmap[i/8]&(1<<(i%8)) != 0
}

func setBit(bitmap []byte, i uint32) {
	bitmap[i/8] |= 1 << (i % 8)
}

func clearBit(bitmap []byte, i uint32) {
	bitmap[i/8] &^= 1 << (i % 8)
}

func (hf *HeapFile) fetchDataPage(pageNo uint32) (*pager.Page, error) {
	if err := hf.checkPageNo(pageNo); err != nil {
		return nil, err
	}
	return hf.p.FetchPage(pageNo)
}

func (hf *HeapFile) bitmapOf(pg *pager.Page) []byte {
	return pg.Data[pageHeaderSize : pageHeaderSize+hf.hdr.BitmapSize]
}

// acquire is a small helper so every public entry point can request a
// lock only when ctx carries a transaction and lock manager.
func acquire(ctx *txn.ExecContext, id lock.DataID, mode lock.Mode) error {
	if ctx == nil || ctx.Lock == nil || ctx.Txn == nil {
		return nil
	}
	return ctx.Lock.Acquire(ctx.Txn, id, mode)
}

// captureUndo appends a WriteRecord to the transaction's write-set iff the
// transaction is in GROWING state — the single gate that prevents undo
// recursion; AppendWrite itself re-checks the state, so a
// nil ctx.Txn (the undo path) is simply a no-op here.
func (hf *HeapFile) captureUndo(ctx *txn.ExecContext, wr txn.WriteRecord) {
	if ctx == nil || ctx.Txn == nil {
		return
	}
	ctx.Txn.AppendWrite(wr)
}

// GetRecord reads the tuple at rid. Acquires IS on the table then S on the
// record when ctx carries a transaction.
func (hf *HeapFile) GetRecord(ctx *txn.ExecContext, rid kschema.Rid) ([]byte, error) {
	if err := acquire(ctx, lock.TableID(hf.fileID), lock.IS); err != nil {
		return nil, err
	}
	if err := acquire(ctx, lock.RecordID(hf.fileID, rid), lock.S); err != nil {
		return nil, err
	}

	pg, err := hf.fetchDataPage(rid.PageNo)
	if err != nil {
		return nil, err
	}
	if err := hf.checkSlotNo(rid.SlotNo); err != nil {
		return nil, err
	}
	bitmap := hf.bitmapOf(pg)
	if !bitSet(bitmap, rid.SlotNo) {
		return nil, ErrRecordNotFound
	}
	off := hf.slotOffset(rid.SlotNo)
	buf := make([]byte, hf.hdr.RecordSize)
	copy(buf, pg.Data[off:off+hf.hdr.RecordSize])
	return buf, nil
}

// IsRecord reports whether rid's bit is currently set.
func (hf *HeapFile) IsRecord(rid kschema.Rid) (bool, error) {
	pg, err := hf.fetchDataPage(rid.PageNo)
	if err != nil {
		return false, err
	}
	if err := hf.checkSlotNo(rid.SlotNo); err != nil {
		return false, err
	}
	return bitSet(hf.bitmapOf(pg), rid.SlotNo), nil
}

// InsertRecord finds or allocates a page with a free slot, sets the
// lowest zero bit, and unlinks the page from the free list if it is now
// full. Acquires IX on the table.
func (hf *HeapFile) InsertRecord(ctx *txn.ExecContext, buf []byte) (kschema.Rid, error) {
	if uint32(len(buf)) != hf.hdr.RecordSize {
		return kschema.Rid{}, fmt.Errorf("%w: insert buffer length %d != record size %d", ErrInternal, len(buf), hf.hdr.RecordSize)
	}
	if err := acquire(ctx, lock.TableID(hf.fileID), lock.IX); err != nil {
		return kschema.Rid{}, err
	}

	pageNo := hf.hdr.FirstFreePageNo
	var pg *pager.Page
	var err error
	if pageNo == NoPage {
		pg, err = hf.p.NewPage()
		if err != nil {
			return kschema.Rid{}, err
		}
		pageNo = pg.PageNo
		ph := pageHeader{NumRecords: 0, NextFreePageNo: hf.hdr.FirstFreePageNo}
		ph.encode(pg.Data)
		hf.hdr.NumPages++
		hf.hdr.FirstFreePageNo = pageNo
	} else {
		pg, err = hf.fetchDataPage(pageNo)
		if err != nil {
			return kschema.Rid{}, err
		}
	}

	ph := decodePageHeader(pg.Data)
	bitmap := hf.bitmapOf(pg)

	slot, ok := firstZeroBit(bitmap, hf.hdr.NumRecordsPerPage)
	if !ok {
		return kschema.Rid{}, fmt.Errorf("%w: page %d: no free slot despite free-list membership", ErrInternal, pageNo)
	}

	off := hf.slotOffset(slot)
	copy(pg.Data[off:off+hf.hdr.RecordSize], buf)
	setBit(bitmap, slot)
	ph.NumRecords++

	if ph.NumRecords == hf.hdr.NumRecordsPerPage {
		hf.hdr.FirstFreePageNo = ph.NextFreePageNo
	}
	ph.encode(pg.Data)

	if err := hf.p.WritePage(pg); err != nil {
		return kschema.Rid{}, err
	}
	if err := hf.writeHeader(); err != nil {
		return kschema.Rid{}, err
	}

	rid := kschema.Rid{PageNo: pageNo, SlotNo: slot}
	hf.captureUndo(ctx, txn.WriteRecord{Kind: txn.InsertTuple, Heap: hf, Table: hf.table, Rid: rid})
	return rid, nil
}

func firstZeroBit(bitmap []byte, n uint32) (uint32, bool) {
	for i := uint32(0); i < n; i++ {
		if !bitSet(bitmap, i) {
			return i, true
		}
	}
	return 0, false
}

// InsertRecordAt is the undo path for a previously-captured DELETE_TUPLE:
// it writes back at exactly the rid the delete freed, without acquiring
// any lock or appending to any write-set (the caller — txn.Manager.Abort —
// guarantees those invariants externally).
func (hf *HeapFile) InsertRecordAt(rid kschema.Rid, buf []byte) error {
	if err := hf.checkPageNo(rid.PageNo); err != nil {
		return err
	}
	if err := hf.checkSlotNo(rid.SlotNo); err != nil {
		return err
	}
	if uint32(len(buf)) != hf.hdr.RecordSize {
		return fmt.Errorf("%w: insert-at buffer length %d != record size %d", ErrInternal, len(buf), hf.hdr.RecordSize)
	}

	pg, err := hf.fetchDataPage(rid.PageNo)
	if err != nil {
		return err
	}
	bitmap := hf.bitmapOf(pg)
	if bitSet(bitmap, rid.SlotNo) {
		return fmt.Errorf("%w: slot occupied", ErrInternal)
	}

	ph := decodePageHeader(pg.Data)
	wasFreeListHead := hf.hdr.FirstFreePageNo == rid.PageNo

	off := hf.slotOffset(rid.SlotNo)
	copy(pg.Data[off:off+hf.hdr.RecordSize], buf)
	setBit(bitmap, rid.SlotNo)
	ph.NumRecords++
	ph.encode(pg.Data)

	if wasFreeListHead && ph.NumRecords == hf.hdr.NumRecordsPerPage {
		hf.hdr.FirstFreePageNo = ph.NextFreePageNo
		if err := hf.writeHeader(); err != nil {
			return err
		}
	}

	return hf.p.WritePage(pg)
}

// DeleteRecord clears the bit, and if the page transitions from full to
// not-full, prepends it to the free list. Acquires IX on the table then X
// on the record.
func (hf *HeapFile) DeleteRecord(ctx *txn.ExecContext, rid kschema.Rid) error {
	if err := acquire(ctx, lock.TableID(hf.fileID), lock.IX); err != nil {
		return err
	}
	if err := acquire(ctx, lock.RecordID(hf.fileID, rid), lock.X); err != nil {
		return err
	}

	pg, err := hf.fetchDataPage(rid.PageNo)
	if err != nil {
		return err
	}
	if err := hf.checkSlotNo(rid.SlotNo); err != nil {
		return err
	}
	bitmap := hf.bitmapOf(pg)
	if !bitSet(bitmap, rid.SlotNo) {
		return ErrRecordNotFound
	}

	before := make([]byte, hf.hdr.RecordSize)
	off := hf.slotOffset(rid.SlotNo)
	copy(before, pg.Data[off:off+hf.hdr.RecordSize])

	ph := decodePageHeader(pg.Data)
	wasFull := ph.NumRecords == hf.hdr.NumRecordsPerPage

	clearBit(bitmap, rid.SlotNo)
	ph.NumRecords--
	if wasFull {
		ph.NextFreePageNo = hf.hdr.FirstFreePageNo
	}
	ph.encode(pg.Data)

	if wasFull {
		hf.hdr.FirstFreePageNo = rid.PageNo
		if err := hf.writeHeader(); err != nil {
			return err
		}
	}

	if err := hf.p.WritePage(pg); err != nil {
		return err
	}

	hf.captureUndo(ctx, txn.WriteRecord{Kind: txn.DeleteTuple, Heap: hf, Table: hf.table, Rid: rid, BeforeImage: before})
	return nil
}

// UpdateRecord overwrites the slot bytes in place; the record's layout
// never changes. Acquires IX on the table then X on the record (the
// primary S->X upgrade path for delete/update).
func (hf *HeapFile) UpdateRecord(ctx *txn.ExecContext, rid kschema.Rid, buf []byte) error {
	if uint32(len(buf)) != hf.hdr.RecordSize {
		return fmt.Errorf("%w: update buffer length %d != record size %d", ErrInternal, len(buf), hf.hdr.RecordSize)
	}
	if err := acquire(ctx, lock.TableID(hf.fileID), lock.IX); err != nil {
		return err
	}
	if err := acquire(ctx, lock.RecordID(hf.fileID, rid), lock.X); err != nil {
		return err
	}

	pg, err := hf.fetchDataPage(rid.PageNo)
	if err != nil {
		return err
	}
	if err := hf.checkSlotNo(rid.SlotNo); err != nil {
		return err
	}
	bitmap := hf.bitmapOf(pg)
	if !bitSet(bitmap, rid.SlotNo) {
		return ErrRecordNotFound
	}

	before := make([]byte, hf.hdr.RecordSize)
	off := hf.slotOffset(rid.SlotNo)
	copy(before, pg.Data[off:off+hf.hdr.RecordSize])
	copy(pg.Data[off:off+hf.hdr.RecordSize], buf)

	if err := hf.p.WritePage(pg); err != nil {
		return err
	}

	hf.captureUndo(ctx, txn.WriteRecord{Kind: txn.UpdateTuple, Heap: hf, Table: hf.table, Rid: rid, BeforeImage: before})
	return nil
}

// Scanner is a lazy, single-pass, non-restartable sequence of occupied
// Rids in ascending (page, slot) order; restart is accomplished by
// constructing a new scanner.
type Scanner struct {
	hf      *HeapFile
	pageNo  uint32
	slotNo  uint32
	pg      *pager.Page
	done    bool
	rid     kschema.Rid
	started bool
}

func (hf *HeapFile) NewScanner() *Scanner {
	return &Scanner{hf: hf, pageNo: 1, slotNo: 0}
}

// Next advances to the next occupied rid, returning false once exhausted.
func (s *Scanner) Next() (bool, error) {
	hf := s.hf
	for s.pageNo < hf.hdr.NumPages {
		if s.pg == nil || s.pg.PageNo != s.pageNo {
			pg, err := hf.fetchDataPage(s.pageNo)
			if err != nil {
				return false, err
			}
			s.pg = pg
		}
		bitmap := hf.bitmapOf(s.pg)
		for s.slotNo < hf.hdr.NumRecordsPerPage {
			slot := s.slotNo
			s.slotNo++
			if bitSet(bitmap, slot) {
				s.rid = kschema.Rid{PageNo: s.pageNo, SlotNo: slot}
				return true, nil
			}
		}
		s.pageNo++
		s.slotNo = 0
		s.pg = nil
	}
	return false, nil
}

func (s *Scanner) Rid() kschema.Rid { return s.rid }
