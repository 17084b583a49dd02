package webfont

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	woffHeaderSize = 44
	woffEntrySize  = 20
)

// EncodeWOFF writes f as a WOFF 1.0 file. Each table is zlib compressed
// unless that would not make it smaller.
func EncodeWOFF(f *Font) ([]byte, error) {
	n := len(f.Tables)
	type entry struct {
		data []byte
		orig int
	}
	entries := make([]entry, n)
	for i, t := range f.Tables {
		var z bytes.Buffer
		w, err := zlib.NewWriterLevel(&z, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(t.Data); err != nil {
			return nil, fmt.Errorf("woff: compress %q: %w", t.Tag, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("woff: compress %q: %w", t.Tag, err)
		}
		entries[i] = entry{data: t.Data, orig: len(t.Data)}
		if z.Len() < len(t.Data) {
			entries[i].data = z.Bytes()
		}
	}

	total := woffHeaderSize + n*woffEntrySize
	for _, e := range entries {
		total += pad4(len(e.data))
	}

	var buf bytes.Buffer
	buf.Grow(total)
	buf.WriteString("wOFF")
	writeU32(&buf, f.Flavor)
	writeU32(&buf, uint32(total))
	writeU16(&buf, uint16(n))
	writeU16(&buf, 0)
	writeU32(&buf, uint32(sfntSize(f)))
	writeU16(&buf, 1) // majorVersion
	writeU16(&buf, 0) // minorVersion
	// metadata and private blocks are absent
	for range 5 {
		writeU32(&buf, 0)
	}

	off := woffHeaderSize + n*woffEntrySize
	for i, t := range f.Tables {
		buf.WriteString(t.Tag)
		writeU32(&buf, uint32(off))
		writeU32(&buf, uint32(len(entries[i].data)))
		writeU32(&buf, uint32(entries[i].orig))
		writeU32(&buf, t.Checksum)
		off += pad4(len(entries[i].data))
	}
	for _, e := range entries {
		buf.Write(e.data)
		buf.Write(make([]byte, pad4(len(e.data))-len(e.data)))
	}
	return buf.Bytes(), nil
}

// DecodeWOFF reads a WOFF 1.0 file back into its sfnt tables.
func DecodeWOFF(b []byte) (*Font, error) {
	if len(b) < woffHeaderSize || string(b[:4]) != "wOFF" {
		return nil, errors.New("woff: bad header")
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) < woffHeaderSize+n*woffEntrySize {
		return nil, errors.New("woff: truncated table directory")
	}
	f := &Font{Flavor: binary.BigEndian.Uint32(b[4:8]), Tables: make([]Table, 0, n)}
	for i := 0; i < n; i++ {
		e := b[woffHeaderSize+i*woffEntrySize:]
		tag := string(e[0:4])
		off := binary.BigEndian.Uint32(e[4:8])
		compLen := binary.BigEndian.Uint32(e[8:12])
		origLen := binary.BigEndian.Uint32(e[12:16])
		if uint64(off)+uint64(compLen) > uint64(len(b)) || compLen > origLen {
			return nil, fmt.Errorf("woff: table %q out of bounds", tag)
		}
		data := b[off : off+compLen]
		if compLen < origLen {
			r, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("woff: table %q: %w", tag, err)
			}
			out := make([]byte, origLen)
			if _, err := io.ReadFull(r, out); err != nil {
				return nil, fmt.Errorf("woff: table %q: %w", tag, err)
			}
			data = out
		} else {
			data = bytes.Clone(data)
		}
		f.Tables = append(f.Tables, Table{Tag: tag, Checksum: binary.BigEndian.Uint32(e[16:20]), Data: data})
	}
	f.sortTables()
	return f, nil
}
