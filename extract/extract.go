// Package extract finds localizable source files and runs the Apple
// extraction tools over them. String extraction itself is delegated:
// genstrings scans code for NSLocalizedString-style macros and ibtool
// exports the strings of interface files.
package extract

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExtensions are the source extensions scanned when none are configured.
var DefaultExtensions = []string{"c", "m", "mm", "swift"}

// InterfaceExtensions are the interface-builder file extensions handled by ibtool.
var InterfaceExtensions = []string{"xib", "nib", "storyboard"}

// skipDirs contains directory names never worth scanning.
var skipDirs = map[string]bool{
	".git":        true,
	".hg":         true,
	".svn":        true,
	".build":      true,
	"build":       true,
	"DerivedData": true,
	"Pods":        true,
	"Carthage":    true,
	"xcuserdata":  true,
}

// NormalizeExtensions strips leading dots and blanks, drops duplicates
// and falls back to DefaultExtensions for an empty list.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range exts {
		e = strings.TrimPrefix(strings.TrimSpace(e), ".")
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultExtensions...)
	}
	return out
}

// ---------------------------------------------------------------------------
// Ignore patterns
// ---------------------------------------------------------------------------

// Ignore decides whether a path is excluded from scanning.
//
// A pattern without glob metacharacters matches any path that contains it
// ("3rdParty" excludes every path with 3rdParty in it). A pattern with
// metacharacters is a glob over slash-separated paths, where '*' stays
// within one path element and '**' spans elements; it matches when it
// matches the path relative to the source root or any trailing part of it.
type Ignore struct {
	substrings []string
	globs      []glob.Glob
}

// NewIgnore compiles ignore patterns.
func NewIgnore(patterns []string) (*Ignore, error) {
	ig := &Ignore{}
	for _, p := range patterns {
		p = filepath.ToSlash(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.ContainsAny(p, "*?[{") {
			ig.substrings = append(ig.substrings, p)
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		ig.globs = append(ig.globs, g)
	}
	return ig, nil
}

// Match reports whether relPath (relative to the source root) is ignored.
func (ig *Ignore) Match(relPath string) bool {
	if ig == nil {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	for _, s := range ig.substrings {
		if strings.Contains(relPath, s) {
			return true
		}
	}
	if len(ig.globs) == 0 {
		return false
	}
	for suffix := relPath; ; {
		for _, g := range ig.globs {
			if g.Match(suffix) {
				return true
			}
		}
		i := strings.IndexByte(suffix, '/')
		if i < 0 {
			return false
		}
		suffix = suffix[i+1:]
	}
}

// ---------------------------------------------------------------------------
// Source discovery
// ---------------------------------------------------------------------------

// FindSources recursively finds files under root whose extension is in
// exts, skipping ignored paths and tool/VCS directories. The result is
// sorted.
func FindSources(root string, exts []string, ignore *Ignore) ([]string, error) {
	want := make(map[string]bool)
	for _, e := range NormalizeExtensions(exts) {
		want[e] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if skipDirs[d.Name()] || ignore.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !want[strings.TrimPrefix(filepath.Ext(path), ".")] || ignore.Match(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// DescribeFiles returns a human-readable summary of the files found,
// grouped by extension ("3 m, 12 swift").
func DescribeFiles(files []string) string {
	byExt := make(map[string]int)
	for _, f := range files {
		byExt[strings.TrimPrefix(filepath.Ext(f), ".")]++
	}
	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	parts := make([]string, 0, len(exts))
	for _, ext := range exts {
		parts = append(parts, fmt.Sprintf("%d %s", byExt[ext], ext))
	}
	return strings.Join(parts, ", ")
}
