// Package kschema holds the data model shared by the record manager, index
// handle, lock manager, transaction manager and execution operators: column,
// table and index metadata, fixed-length tuple encoding, and the record
// identifier (Rid) that threads through all of them.
package kschema

import (
	"bytes"
	"fmt"
	"math"
)

// DataType is the type tag of a fixed-length column.
type DataType int

const (
	INT32 DataType = iota
	FLOAT32
	FIXEDCHAR
)

func (t DataType) String() string {
	switch t {
	case INT32:
		return "INT32"
	case FLOAT32:
		return "FLOAT32"
	case FIXEDCHAR:
		return "FIXED_CHAR"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// ColMeta describes one fixed-length column of a table.
type ColMeta struct {
	Name    string
	Table   string
	Type    DataType
	Len     uint32 // byte length; for FIXEDCHAR this is n
	Offset  uint32 // byte offset within the tuple
	Indexed bool
}

// TabMeta describes a table: its columns, in tuple order, and its indexes.
type TabMeta struct {
	Name    string
	Cols    []ColMeta
	Indexes []IndexMeta
}

// TupleLen returns the fixed tuple length implied by Cols.
func (tm TabMeta) TupleLen() uint32 {
	var n uint32
	for _, c := range tm.Cols {
		n += c.Len
	}
	return n
}

// Column looks up a column by name, or returns ok=false.
func (tm TabMeta) Column(name string) (ColMeta, bool) {
	for _, c := range tm.Cols {
		if c.Name == name {
			return c, true
		}
	}
	return ColMeta{}, false
}

// IndexMeta describes a B+-tree secondary index: an ordered sequence of
// columns from the owning table whose raw bytes, concatenated in
// declaration order, form the index key.
type IndexMeta struct {
	Name  string
	Table string
	Cols  []ColMeta
}

// KeyLen is the total byte length of a composite key for this index.
func (im IndexMeta) KeyLen() uint32 {
	var n uint32
	for _, c := range im.Cols {
		n += c.Len
	}
	return n
}

// Key extracts this index's composite key from a tuple buffer by
// concatenating each indexed column's raw bytes in declaration order.
func (im IndexMeta) Key(tuple []byte) []byte {
	key := make([]byte, 0, im.KeyLen())
	for _, c := range im.Cols {
		key = append(key, tuple[c.Offset:c.Offset+c.Len]...)
	}
	return key
}

// MakeColumns computes Offset for each column from Len, in declaration
// order, per spec: column i's offset is the sum of the lengths of columns
// 0..i-1.
func MakeColumns(cols []ColMeta) []ColMeta {
	out := make([]ColMeta, len(cols))
	var off uint32
	for i, c := range cols {
		c.Offset = off
		out[i] = c
		off += c.Len
	}
	return out
}

// Rid identifies a heap record by (page, slot). Rids are totally ordered
// lexicographically by (PageNo, SlotNo) and are stable across time within a
// table: an aborted delete reinserts at the same Rid.
type Rid struct {
	PageNo uint32
	SlotNo uint32
}

func (r Rid) Less(o Rid) bool {
	if r.PageNo != o.PageNo {
		return r.PageNo < o.PageNo
	}
	return r.SlotNo < o.SlotNo
}

func (r Rid) Compare(o Rid) int {
	if r.PageNo < o.PageNo {
		return -1
	}
	if r.PageNo > o.PageNo {
		return 1
	}
	if r.SlotNo < o.SlotNo {
		return -1
	}
	if r.SlotNo > o.SlotNo {
		return 1
	}
	return 0
}

func (r Rid) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageNo, r.SlotNo)
}

// Encode writes the Rid as an 8-byte big-endian pair, used as the tie-break
// suffix of index keys (duplicate keys are distinguished by Rid).
func (r Rid) Encode() [8]byte {
	var b [8]byte
	putUint32(b[0:4], r.PageNo)
	putUint32(b[4:8], r.SlotNo)
	return b
}

func DecodeRid(b []byte) Rid {
	return Rid{PageNo: getUint32(b[0:4]), SlotNo: getUint32(b[4:8])}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// EncodeInt32 / EncodeFloat32 produce the big-endian, order-preserving
// segment encoding used both for tuple storage and for index keys: this
// repo uses one consistent key-comparator strategy (spec's open key-encoding
// question), namely memcmp-comparable big-endian integers and a
// sign-flipped IEEE-754 float encoding, with FIXED_CHAR left as raw bytes
// (already memcmp-comparable).
func EncodeInt32(v int32) [4]byte {
	var b [4]byte
	putUint32(b[:], uint32(v)^0x80000000)
	return b
}

func DecodeInt32(b []byte) int32 {
	return int32(getUint32(b) ^ 0x80000000)
}

func EncodeFloat32(v float32) [4]byte {
	u := math.Float32bits(v)
	if u&0x80000000 != 0 {
		u = ^u
	} else {
		u |= 0x80000000
	}
	var b [4]byte
	putUint32(b[:], u)
	return b
}

func DecodeFloat32(b []byte) float32 {
	u := getUint32(b)
	if u&0x80000000 != 0 {
		u &^= 0x80000000
	} else {
		u = ^u
	}
	return math.Float32frombits(u)
}

// PutInt32 / PutFloat32 / PutFixedChar write a column value into its slot
// within a tuple buffer using the encoding documented above. PutFixedChar
// zero-pads short strings and truncates long ones to n bytes, per spec's
// UPDATE set-clause rule (§4.5), applied uniformly on INSERT too.
func PutInt32(dst []byte, v int32) {
	b := EncodeInt32(v)
	copy(dst, b[:])
}

func PutFloat32(dst []byte, v float32) {
	b := EncodeFloat32(v)
	copy(dst, b[:])
}

func PutFixedChar(dst []byte, s string, n uint32) {
	for i := range dst[:n] {
		dst[i] = 0
	}
	copy(dst, s)
}

// CompareSegment compares two raw column segments of the given type,
// per spec: INT32 numerically, FLOAT32 numerically, FIXED_CHAR as memcmp.
func CompareSegment(t DataType, a, b []byte) int {
	switch t {
	case INT32:
		av, bv := DecodeInt32(a), DecodeInt32(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case FLOAT32:
		av, bv := DecodeFloat32(a), DecodeFloat32(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case FIXEDCHAR:
		return bytes.Compare(a, b)
	default:
		panic(fmt.Sprintf("kschema: unknown data type %v", t))
	}
}
