// Package config loads .strmerge.yaml and .strmerge.toml project files.
//
// The project file declares one or more targets, each pairing a source
// tree with the directory holding its *.lproj folders. Global settings
// (languages, extensions, ignore patterns, policies) are inherited by every
// target unless the target overrides them. Without a project file a single
// target is built from command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/strmerge/extract"
	"github.com/minios-linux/strmerge/stringsfile"
)

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// File is the top-level project file structure.
type File struct {
	// Languages is the default language list (lproj names) for all targets.
	Languages []string `yaml:"languages,omitempty" toml:"languages"`
	// Extensions are the default source extensions to scan.
	Extensions []string `yaml:"extensions,omitempty" toml:"extensions"`
	// Ignore are default ignore patterns, added to each target's own.
	Ignore []string `yaml:"ignore,omitempty" toml:"ignore"`
	// Encoding is the default output encoding ("utf-16" or "utf-8").
	Encoding string `yaml:"encoding,omitempty" toml:"encoding"`
	// Prune drops keys no longer found in source.
	Prune bool `yaml:"prune,omitempty" toml:"prune"`
	// Sort writes entries alphabetically instead of in merge order.
	Sort bool `yaml:"sort,omitempty" toml:"sort"`
	// Targets is the list of source trees to process.
	Targets []Target `yaml:"targets" toml:"targets"`
}

// Target describes one source tree and where its tables live.
type Target struct {
	// Name is a human-readable label shown in status/logs.
	Name string `yaml:"name" toml:"name"`
	// Input is the source root relative to the project root (default ".").
	Input string `yaml:"input,omitempty" toml:"input"`
	// Output is the directory containing the *.lproj folders, relative to
	// the project root (default: same as Input).
	Output string `yaml:"output,omitempty" toml:"output"`

	Extensions []string `yaml:"extensions,omitempty" toml:"extensions"`
	Ignore     []string `yaml:"ignore,omitempty" toml:"ignore"`
	Languages  []string `yaml:"languages,omitempty" toml:"languages"`
	// Tables restricts processing to these table names (default: all).
	Tables []string `yaml:"tables,omitempty" toml:"tables"`
	// Routines are extra localization function names for genstrings -s.
	Routines []string `yaml:"routines,omitempty" toml:"routines"`

	// Interface also exports strings from xib/storyboard files via ibtool.
	Interface bool `yaml:"interface,omitempty" toml:"interface"`
	// KeepComments keeps existing comments instead of refreshing them.
	KeepComments bool `yaml:"keep_comments,omitempty" toml:"keep_comments"`
	// RefreshPlaceholders lets changed default values replace untranslated entries.
	RefreshPlaceholders bool `yaml:"refresh_placeholders,omitempty" toml:"refresh_placeholders"`

	// Prune, Sort and Encoding override the global setting when set.
	Prune    *bool  `yaml:"prune,omitempty" toml:"prune"`
	Sort     *bool  `yaml:"sort,omitempty" toml:"sort"`
	Encoding string `yaml:"encoding,omitempty" toml:"encoding"`
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error is a configuration error: an invalid project file, flag value or
// missing path.
type Error struct {
	// Path is the config file or directory concerned, if any.
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(path, format string, args ...any) *Error {
	return &Error{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// FileNames are the project file names looked up, in order.
var FileNames = []string{".strmerge.yaml", ".strmerge.yml", ".strmerge.toml"}

// Find returns the path of the project file in dir, or "" if none exists.
func Find(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load reads and validates the project file at path. The format follows
// the extension: .toml is TOML, anything else YAML. Unknown keys are
// rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Msg: "cannot read config", Err: err}
	}

	var f File
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, &Error{Path: path, Msg: "parsing toml", Err: err}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errorf(path, "unsupported key %q", undecoded[0].String())
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			if strings.Contains(err.Error(), "not found in type") {
				return nil, &Error{Path: path, Msg: "unsupported key", Err: err}
			}
			return nil, &Error{Path: path, Msg: "parsing yaml", Err: err}
		}
	}

	if err := f.validate(path); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadDir loads the project file found in dir. Returns nil, nil when there is none.
func LoadDir(dir string) (*File, error) {
	path := Find(dir)
	if path == "" {
		return nil, nil
	}
	return Load(path)
}

func (f *File) validate(path string) error {
	if len(f.Targets) == 0 {
		return errorf(path, "no targets defined")
	}
	if f.Encoding != "" {
		if _, err := stringsfile.ParseEncoding(f.Encoding); err != nil {
			return &Error{Path: path, Msg: "invalid encoding", Err: err}
		}
	}

	names := make(map[string]bool)
	for i := range f.Targets {
		t := &f.Targets[i]
		if t.Name == "" {
			return errorf(path, "target #%d has no name", i+1)
		}
		if names[t.Name] {
			return errorf(path, "duplicate target name %q", t.Name)
		}
		names[t.Name] = true

		if t.Encoding != "" {
			if _, err := stringsfile.ParseEncoding(t.Encoding); err != nil {
				return &Error{Path: path, Msg: fmt.Sprintf("target %q: invalid encoding", t.Name), Err: err}
			}
		}
		if _, err := extract.NewIgnore(t.Ignore); err != nil {
			return &Error{Path: path, Msg: fmt.Sprintf("target %q", t.Name), Err: err}
		}
	}
	if _, err := extract.NewIgnore(f.Ignore); err != nil {
		return &Error{Path: path, Msg: "global ignore", Err: err}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolving targets
// ---------------------------------------------------------------------------

// ResolvedTarget is a target with defaults applied and absolute paths.
type ResolvedTarget struct {
	Name string
	// Input is the absolute source root.
	Input string
	// Output is the absolute directory holding the *.lproj folders.
	Output string

	Extensions []string
	Ignore     []string
	// Languages are lproj names ("en", "Base", "pt-BR"). Empty means the
	// tables live directly in Output.
	Languages []string
	Tables    []string
	Routines  []string

	Interface           bool
	Prune               bool
	KeepComments        bool
	RefreshPlaceholders bool
	Sort                bool
	// Encoding forces the output encoding; empty keeps each file's own
	// (UTF-16 for new files).
	Encoding stringsfile.Encoding
}

// Resolve applies global defaults to every target and makes paths
// absolute relative to projectRoot. Languages not configured are detected
// from the *.lproj folders present in the output directory.
func (f *File) Resolve(projectRoot string) ([]ResolvedTarget, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	var resolved []ResolvedTarget
	for _, t := range f.Targets {
		rt := ResolvedTarget{
			Name:                t.Name,
			Input:               joinAbs(absRoot, t.Input),
			Extensions:          extract.NormalizeExtensions(firstNonEmpty(t.Extensions, f.Extensions)),
			Ignore:              append(append([]string(nil), f.Ignore...), t.Ignore...),
			Languages:           firstNonEmpty(t.Languages, f.Languages),
			Tables:              t.Tables,
			Routines:            t.Routines,
			Interface:           t.Interface,
			Prune:               f.Prune,
			KeepComments:        t.KeepComments,
			RefreshPlaceholders: t.RefreshPlaceholders,
			Sort:                f.Sort,
		}
		rt.Output = rt.Input
		if t.Output != "" {
			rt.Output = joinAbs(absRoot, t.Output)
		}
		if t.Prune != nil {
			rt.Prune = *t.Prune
		}
		if t.Sort != nil {
			rt.Sort = *t.Sort
		}

		enc := t.Encoding
		if enc == "" {
			enc = f.Encoding
		}
		if enc != "" {
			// Already validated by Load; a hand-built File may still be wrong.
			if rt.Encoding, err = stringsfile.ParseEncoding(enc); err != nil {
				return nil, &Error{Msg: fmt.Sprintf("target %q", t.Name), Err: err}
			}
		}

		if len(rt.Languages) == 0 {
			rt.Languages = DetectLanguages(rt.Output)
		}
		resolved = append(resolved, rt)
	}
	return resolved, nil
}

// AllLanguages returns the deduplicated union of all target languages.
func AllLanguages(targets []ResolvedTarget) []string {
	seen := make(map[string]bool)
	var all []string
	for _, rt := range targets {
		for _, lang := range rt.Languages {
			if !seen[lang] {
				seen[lang] = true
				all = append(all, lang)
			}
		}
	}
	sort.Strings(all)
	return all
}

// TablePath returns the .strings path of a table for a language. With an
// empty language the table lives directly in the output directory.
func (rt *ResolvedTarget) TablePath(lang, table string) string {
	if lang == "" {
		return filepath.Join(rt.Output, table+".strings")
	}
	return filepath.Join(rt.Output, lang+".lproj", table+".strings")
}

// OutputLanguages returns the languages to write, or a single empty
// language when tables live directly in the output directory.
func (rt *ResolvedTarget) OutputLanguages() []string {
	if len(rt.Languages) == 0 {
		return []string{""}
	}
	return rt.Languages
}

// WantsTable reports whether a table is processed for this target.
func (rt *ResolvedTarget) WantsTable(table string) bool {
	if len(rt.Tables) == 0 {
		return true
	}
	for _, t := range rt.Tables {
		if t == table {
			return true
		}
	}
	return false
}

func joinAbs(root, p string) string {
	if p == "" {
		return root
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return append([]string(nil), l...)
		}
	}
	return nil
}
