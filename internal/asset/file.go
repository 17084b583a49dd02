// Package asset defines the in-memory file record that flows through transform
// pipelines and the glob selection that produces it.
package asset

import (
	"path"
	"strings"
	"time"
)

// File is one file travelling through a pipeline. Paths are slash separated
// and relative to the project root.
type File struct {
	// Base is the static directory prefix of the glob that selected the file.
	Base string
	// Rel is the path below Base. It is what ends up under the destination.
	Rel      string
	Contents []byte
	// ModTime is the modification time of the source the record came from.
	ModTime time.Time
	// Source is the root-relative path of the originating source file.
	Source string
}

// Path returns the root-relative path of the record.
func (f *File) Path() string {
	return path.Join(f.Base, f.Rel)
}

// Ext returns the lower-cased extension of Rel including the dot.
func (f *File) Ext() string {
	return strings.ToLower(path.Ext(f.Rel))
}

// Clone returns a copy sharing no mutable state with f.
func (f *File) Clone() *File {
	c := *f
	c.Contents = append([]byte(nil), f.Contents...)
	return &c
}

// WithExt returns a copy of f with its extension replaced and contents set.
func (f *File) WithExt(ext string, contents []byte) *File {
	c := *f
	c.Rel = ReplaceExt(f.Rel, ext)
	c.Contents = contents
	return &c
}

// ReplaceExt swaps the extension of p for ext (which includes the dot).
func ReplaceExt(p, ext string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ext
}
