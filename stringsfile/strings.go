// Package stringsfile implements reading and writing of Apple .strings
// string tables.
//
// Format: one entry per statement, optionally preceded by a C-style comment:
//
//	/* Title of the main window */
//	"Hello" = "Bonjour";
//
// Trailing comments on the entry line, multi-line comments and values that
// span several lines are accepted on input. Escape sequences inside keys and
// values (\", \n, \\) are kept verbatim so that a round trip is lossless.
//
// Files produced by genstrings are UTF-16; hand-edited tables are often
// UTF-8. Both are handled transparently (see Decode and Encode).
//
// The File type keeps entries in insertion order so that serialization is
// stable across runs.
package stringsfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// Entry is a single localized string.
type Entry struct {
	Key     string
	Value   string
	Comment string
}

// IsPlaceholder reports whether the entry is still untranslated, i.e. its
// value is the key itself.
func (e Entry) IsPlaceholder() bool {
	return e.Value == e.Key
}

// File represents a parsed .strings table.
type File struct {
	// Encoding is the encoding the file was read with, or the one it will
	// be written with.
	Encoding Encoding

	// entries stores all entries in document order.
	entries []Entry
	// index maps key → index in entries for fast lookup.
	index map[string]int
}

// NewFile returns an empty table that will be written as UTF-16.
func NewFile() *File {
	return &File{Encoding: UTF16, index: make(map[string]int)}
}

// FromEntries builds a table from entries, rejecting duplicate keys.
func FromEntries(entries []Entry) (*File, error) {
	f := NewFile()
	for _, e := range entries {
		if err := f.Add(e); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Add appends an entry. Adding a key that already exists is an error.
func (f *File) Add(e Entry) error {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	if _, exists := f.index[e.Key]; exists {
		return fmt.Errorf("duplicate key %q", e.Key)
	}
	f.index[e.Key] = len(f.entries)
	f.entries = append(f.entries, e)
	return nil
}

// Get returns the entry for key and whether it was found.
func (f *File) Get(key string) (Entry, bool) {
	if idx, ok := f.index[key]; ok {
		return f.entries[idx], true
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (f *File) Len() int {
	return len(f.entries)
}

// Entries returns a copy of all entries in document order.
func (f *File) Entries() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Untranslated returns the entries whose value still equals their key.
func (f *File) Untranslated() []Entry {
	var out []Entry
	for _, e := range f.entries {
		if e.IsPlaceholder() {
			out = append(out, e)
		}
	}
	return out
}

// Stats returns (total, translated, percentTranslated) for this table.
func (f *File) Stats() (int, int, float64) {
	total := len(f.entries)
	translated := total - len(f.Untranslated())
	pct := 0.0
	if total > 0 {
		pct = float64(translated) / float64(total) * 100
	}
	return total, translated, pct
}

// Sort orders the entries alphabetically by key.
func (f *File) Sort() {
	sort.SliceStable(f.entries, func(i, j int) bool {
		return f.entries[i].Key < f.entries[j].Key
	})
	for i, e := range f.entries {
		f.index[e.Key] = i
	}
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the table to .strings text (not yet encoded).
// Entries are separated by a blank line, the way genstrings lays them out.
func (f *File) Marshal() string {
	var buf bytes.Buffer
	for i, e := range f.entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		if e.Comment != "" {
			buf.WriteString("/* ")
			buf.WriteString(e.Comment)
			buf.WriteString(" */\n")
		}
		buf.WriteByte('"')
		buf.WriteString(e.Key)
		buf.WriteString(`" = "`)
		buf.WriteString(e.Value)
		buf.WriteString("\";\n")
	}
	return buf.String()
}

// Bytes serialises and encodes the table using f.Encoding.
func (f *File) Bytes() ([]byte, error) {
	return Encode(f.Marshal(), f.Encoding)
}

// WriteFile serialises and writes to path, creating parent directories
// with 0755 permissions.
func (f *File) WriteFile(path string) error {
	data, err := f.Bytes()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// TableName returns the table name for a .strings path
// ("fr.lproj/Localizable.strings" → "Localizable").
func TableName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
