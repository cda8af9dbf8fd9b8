// Package pager implements the Page & Buffer Interface the record manager
// and index handle are built against: fixed-size pages identified by a
// page number, fetched and unpinned against a single backing file.
//
// Given a minimal concrete shape: direct ReadAt/WriteAt I/O with no
// pin-count tracking or replacement policy. Grounded on the page-stride
// ReadAt/WriteAt pattern of a simple page allocator, simplified because
// this engine has no buffer-pool eviction algorithm to run.
package pager

import (
	"fmt"
	"os"
)

// HeaderPageNo is the sentinel page number reserved for the file header.
const HeaderPageNo = 0

// Page is one fixed-size page read from or destined for the backing file.
type Page struct {
	PageNo uint32
	Data   []byte
}

// Pager fetches and unpins fixed-size pages from a single backing file.
type Pager struct {
	f        *os.File
	pageSize uint32
}

// Open opens (creating if necessary) the backing file for a pager with the
// given fixed page size.
func Open(path string, pageSize uint32) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &Pager{f: f, pageSize: pageSize}, nil
}

func (p *Pager) Close() error {
	return p.f.Close()
}

func (p *Pager) PageSize() uint32 {
	return p.pageSize
}

// NumPages returns how many pageSize-sized pages the backing file currently
// holds, including the header page.
func (p *Pager) NumPages() (uint32, error) {
	fi, err := p.f.Stat()
	if err != nil {
		return 0, err
	}
	return uint32(fi.Size() / int64(p.pageSize)), nil
}

// FetchPage reads page pageNo into a fresh in-memory copy. Modifications
// to that copy reach the file only through WritePage; UnpinPage does not
// write anything.
func (p *Pager) FetchPage(pageNo uint32) (*Page, error) {
	buf := make([]byte, p.pageSize)
	_, err := p.f.ReadAt(buf, int64(pageNo)*int64(p.pageSize))
	if err != nil {
		return nil, fmt.Errorf("pager: fetch page %d: %w", pageNo, err)
	}
	return &Page{PageNo: pageNo, Data: buf}, nil
}

// NewPage appends a new zero-filled page to the file and returns it.
func (p *Pager) NewPage() (*Page, error) {
	n, err := p.NumPages()
	if err != nil {
		return nil, err
	}
	pg := &Page{PageNo: n, Data: make([]byte, p.pageSize)}
	if err := p.UnpinPage(n, true); err != nil {
		return nil, err
	}
	return pg, p.writePage(pg)
}

// UnpinPage is a no-op placeholder for buffer-pool pin-count bookkeeping;
// this pager has no replacement policy to coordinate with, so unpinning a
// page that was fetched (not yet written via writePage) does nothing unless
// dirty is set, in which case the caller is expected to have already called
// writePage with the final contents. Kept as part of the pager's contract
// even though it is a no-op here.
func (p *Pager) UnpinPage(pageNo uint32, dirty bool) error {
	return nil
}

// WritePage flushes a page's contents to the backing file (the "unpin
// dirty" half of the fetch/mutate/unpin cycle callers perform).
func (p *Pager) WritePage(pg *Page) error {
	return p.writePage(pg)
}

func (p *Pager) writePage(pg *Page) error {
	if uint32(len(pg.Data)) != p.pageSize {
		return fmt.Errorf("pager: page %d: wrong size %d, want %d", pg.PageNo, len(pg.Data), p.pageSize)
	}
	_, err := p.f.WriteAt(pg.Data, int64(pg.PageNo)*int64(p.pageSize))
	return err
}

func (p *Pager) Sync() error {
	return p.f.Sync()
}
