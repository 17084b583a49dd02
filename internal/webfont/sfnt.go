// Package webfont reads sfnt fonts (TrueType/OpenType) and writes them as
// WOFF and WOFF2 web font containers.
//
// WOFF2 output uses the null transform for every table, so glyph data is
// carried verbatim and only the brotli stream provides compression.
package webfont

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strings"
)

// Format identifies a font container.
type Format int

const (
	FormatUnknown Format = iota
	FormatSFNT
	FormatWOFF
	FormatWOFF2
	FormatCollection
)

const (
	sfntHeaderSize = 12
	sfntRecordSize = 16
)

// ErrUnsupported is returned for containers this package cannot read.
var ErrUnsupported = errors.New("unsupported font container")

// Table is one sfnt table.
type Table struct {
	Tag      string
	Checksum uint32
	Data     []byte
}

// Font is a decoded sfnt: its flavor (sfnt version) and tables sorted by tag.
type Font struct {
	Flavor uint32
	Tables []Table
}

// Detect sniffs the container format from the leading bytes.
func Detect(b []byte) Format {
	if len(b) < 4 {
		return FormatUnknown
	}
	switch string(b[:4]) {
	case "\x00\x01\x00\x00", "true", "OTTO":
		return FormatSFNT
	case "wOFF":
		return FormatWOFF
	case "wOF2":
		return FormatWOFF2
	case "ttcf":
		return FormatCollection
	}
	return FormatUnknown
}

// Decode parses a font from sfnt or WOFF data.
func Decode(b []byte) (*Font, error) {
	switch Detect(b) {
	case FormatSFNT:
		return ParseSFNT(b)
	case FormatWOFF:
		return DecodeWOFF(b)
	case FormatWOFF2:
		return nil, fmt.Errorf("%w: woff2 input", ErrUnsupported)
	case FormatCollection:
		return nil, fmt.Errorf("%w: font collection", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: unrecognized signature", ErrUnsupported)
	}
}

// ParseSFNT parses the sfnt offset table and copies out every table.
func ParseSFNT(b []byte) (*Font, error) {
	if len(b) < sfntHeaderSize {
		return nil, errors.New("sfnt: truncated header")
	}
	n := int(binary.BigEndian.Uint16(b[4:6]))
	if n == 0 {
		return nil, errors.New("sfnt: no tables")
	}
	if len(b) < sfntHeaderSize+n*sfntRecordSize {
		return nil, errors.New("sfnt: truncated table directory")
	}
	f := &Font{Flavor: binary.BigEndian.Uint32(b[0:4]), Tables: make([]Table, 0, n)}
	for i := 0; i < n; i++ {
		rec := b[sfntHeaderSize+i*sfntRecordSize:]
		tag := string(rec[0:4])
		off := binary.BigEndian.Uint32(rec[8:12])
		length := binary.BigEndian.Uint32(rec[12:16])
		if uint64(off)+uint64(length) > uint64(len(b)) {
			return nil, fmt.Errorf("sfnt: table %q out of bounds", tag)
		}
		f.Tables = append(f.Tables, Table{
			Tag:      tag,
			Checksum: binary.BigEndian.Uint32(rec[4:8]),
			Data:     slices.Clone(b[off : off+length]),
		})
	}
	f.sortTables()
	return f, nil
}

func (f *Font) sortTables() {
	slices.SortFunc(f.Tables, func(a, b Table) int { return strings.Compare(a.Tag, b.Tag) })
}

// Table returns the table with tag, if present.
func (f *Font) Table(tag string) (Table, bool) {
	for _, t := range f.Tables {
		if t.Tag == tag {
			return t, true
		}
	}
	return Table{}, false
}

// SFNT serializes the font as a plain sfnt file.
func (f *Font) SFNT() []byte {
	n := len(f.Tables)
	var buf bytes.Buffer
	buf.Grow(sfntSize(f))

	sel := bits.Len(uint(n)) - 1
	searchRange := (1 << sel) * 16
	writeU32(&buf, f.Flavor)
	writeU16(&buf, uint16(n))
	writeU16(&buf, uint16(searchRange))
	writeU16(&buf, uint16(sel))
	writeU16(&buf, uint16(n*16-searchRange))

	off := sfntHeaderSize + n*sfntRecordSize
	for _, t := range f.Tables {
		buf.WriteString(t.Tag)
		writeU32(&buf, t.Checksum)
		writeU32(&buf, uint32(off))
		writeU32(&buf, uint32(len(t.Data)))
		off += pad4(len(t.Data))
	}
	for _, t := range f.Tables {
		buf.Write(t.Data)
		buf.Write(make([]byte, pad4(len(t.Data))-len(t.Data)))
	}
	return buf.Bytes()
}

// Checksum computes the sfnt table checksum of data.
func Checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var w [4]byte
		copy(w[:], data[i:])
		sum += binary.BigEndian.Uint32(w[:])
	}
	return sum
}

func sfntSize(f *Font) int {
	size := sfntHeaderSize + len(f.Tables)*sfntRecordSize
	for _, t := range f.Tables {
		size += pad4(len(t.Data))
	}
	return size
}

func pad4(n int) int { return (n + 3) &^ 3 }

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
