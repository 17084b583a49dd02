package webfont

import (
	"bytes"
	"fmt"

	"github.com/andybalholm/brotli"
)

const woff2HeaderSize = 48

// knownTags are the WOFF2 table tags encodable in the flags byte.
var knownTags = [...]string{
	"cmap", "head", "hhea", "hmtx", "maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca", "prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern", "LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS", "GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL", "SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar", "fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar", "mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat", "Gloc", "Feat", "Sill",
}

const arbitraryTag = 63

// nullTransformGlyf is the transform version meaning "stored as-is" for
// glyf and loca. Every other table uses version 0 for that.
const nullTransformGlyf = 3

func tagIndex(tag string) int {
	for i, t := range knownTags {
		if t == tag {
			return i
		}
	}
	return arbitraryTag
}

// EncodeWOFF2 writes f as a WOFF 2.0 file with every table null-transformed.
func EncodeWOFF2(f *Font) ([]byte, error) {
	var dir bytes.Buffer
	var stream bytes.Buffer
	bw := brotli.NewWriterLevel(&stream, brotli.BestCompression)
	for _, t := range f.Tables {
		flags := byte(tagIndex(t.Tag))
		if t.Tag == "glyf" || t.Tag == "loca" {
			flags |= nullTransformGlyf << 6
		}
		dir.WriteByte(flags)
		if flags&0x3f == arbitraryTag {
			dir.WriteString(t.Tag)
		}
		dir.Write(appendUIntBase128(nil, uint32(len(t.Data))))
		if _, err := bw.Write(t.Data); err != nil {
			return nil, fmt.Errorf("woff2: compress %q: %w", t.Tag, err)
		}
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("woff2: compress: %w", err)
	}

	compressed := stream.Len()
	total := pad4(woff2HeaderSize + dir.Len() + compressed)

	var buf bytes.Buffer
	buf.Grow(total)
	buf.WriteString("wOF2")
	writeU32(&buf, f.Flavor)
	writeU32(&buf, uint32(total))
	writeU16(&buf, uint16(len(f.Tables)))
	writeU16(&buf, 0)
	writeU32(&buf, uint32(sfntSize(f)))
	writeU32(&buf, uint32(compressed))
	writeU16(&buf, 1) // majorVersion
	writeU16(&buf, 0) // minorVersion
	for range 5 {
		writeU32(&buf, 0)
	}
	buf.Write(dir.Bytes())
	buf.Write(stream.Bytes())
	buf.Write(make([]byte, total-buf.Len()))
	return buf.Bytes(), nil
}

// appendUIntBase128 appends v in the WOFF2 variable length encoding.
func appendUIntBase128(dst []byte, v uint32) []byte {
	var tmp [5]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7f)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7f) | 0x80
	}
	return append(dst, tmp[i:]...)
}
