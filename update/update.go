// Package update runs the localization pipeline for one target: extract
// strings from source with genstrings (and ibtool for interface files),
// then merge every generated table into each language's existing
// .strings file without losing translations.
package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minios-linux/strmerge/config"
	"github.com/minios-linux/strmerge/extract"
	"github.com/minios-linux/strmerge/langmeta"
	"github.com/minios-linux/strmerge/lockfile"
	"github.com/minios-linux/strmerge/merge"
	"github.com/minios-linux/strmerge/stringsfile"
)

// Options controls a pipeline run.
type Options struct {
	// Genstrings and IBTool are the extraction tools; zero values run the
	// binaries found on PATH.
	Genstrings extract.Genstrings
	IBTool     extract.IBTool
	// Lock, when set, skips targets whose sources are unchanged since the
	// recorded run and is updated after a successful one.
	Lock *lockfile.LockFile
	// Force ignores the lock file.
	Force bool
	// DryRun computes every merge without writing files.
	DryRun bool
	Logger *slog.Logger
}

// FileResult describes one table written (or to be written) for one
// language.
type FileResult struct {
	Path     string
	Language string
	Table    string
	// Created is set when the file did not exist before.
	Created bool
	// Changed is set when the new content differs from the file on disk.
	Changed bool
	Report  *merge.Report
}

// Result summarizes a pipeline run for one target.
type Result struct {
	Target string
	// Sources and Interfaces count the scanned files.
	Sources    int
	Interfaces int
	// Skipped is set when the lock file showed nothing changed.
	Skipped bool
	Files   []FileResult
}

// Count returns the number of created and changed files.
func (r *Result) Count() (created, changed int) {
	for _, f := range r.Files {
		if f.Created {
			created++
		} else if f.Changed {
			changed++
		}
	}
	return created, changed
}

// table is one extracted table, ready to be merged into each language.
type table struct {
	name    string
	entries []stringsfile.Entry
	// iface tables come from interface files and are not written to Base.
	iface bool
	// ifaceKeys are interface entries appended to a code table.
	ifaceKeys map[string]bool
}

// addInterface appends interface entries, dropping keys the table
// already has.
func (tb *table) addInterface(entries []stringsfile.Entry, logger *slog.Logger) {
	have := make(map[string]bool, len(tb.entries))
	for _, e := range tb.entries {
		have[e.Key] = true
	}
	var shadowed []string
	for _, e := range entries {
		if have[e.Key] {
			shadowed = append(shadowed, e.Key)
			continue
		}
		have[e.Key] = true
		tb.entries = append(tb.entries, e)
		if !tb.iface {
			if tb.ifaceKeys == nil {
				tb.ifaceKeys = make(map[string]bool)
			}
			tb.ifaceKeys[e.Key] = true
		}
	}
	if len(shadowed) > 0 {
		logger.Debug("interface keys already in table, first kept", "table", tb.name, "keys", shadowed)
	}
}

// Run executes the pipeline for rt.
func Run(ctx context.Context, rt config.ResolvedTarget, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("target", rt.Name)
	if opts.Genstrings.Logger == nil {
		opts.Genstrings.Logger = logger
	}
	if opts.IBTool.Logger == nil {
		opts.IBTool.Logger = logger
	}

	if err := checkDir(rt.Input); err != nil {
		return nil, err
	}

	ignore, err := extract.NewIgnore(rt.Ignore)
	if err != nil {
		return nil, &config.Error{Msg: fmt.Sprintf("target %q: invalid ignore pattern", rt.Name), Err: err}
	}
	sources, err := extract.FindSources(rt.Input, rt.Extensions, ignore)
	if err != nil {
		return nil, err
	}
	var ifaces []string
	if rt.Interface {
		found, err := extract.FindSources(rt.Input, extract.InterfaceExtensions, ignore)
		if err != nil {
			return nil, err
		}
		ifaces = developmentInterfaces(rt.Input, found)
	}

	res := &Result{Target: rt.Name, Sources: len(sources), Interfaces: len(ifaces)}
	logger.Debug("scanned sources", "input", rt.Input, "files", extract.DescribeFiles(append(append([]string(nil), sources...), ifaces...)))
	if len(sources) == 0 && len(ifaces) == 0 {
		logger.Warn("no source files found", "input", rt.Input)
		if opts.Lock != nil && !opts.DryRun {
			opts.Lock.RemoveTarget(rt.Name)
		}
		return res, nil
	}

	var sums map[string]string
	if opts.Lock != nil {
		sums, err = lockfile.Digest(rt.Input, append(append([]string(nil), sources...), ifaces...))
		if err != nil {
			return nil, err
		}
		sums[lockfile.OptionsKey] = lockfile.Hash(fingerprint(rt))
		current := withOutputs(opts.Lock, rt, sums)
		if !opts.Force && opts.Lock.Unchanged(rt.Name, current) {
			logger.Debug("sources unchanged, skipping")
			res.Skipped = true
			return res, nil
		}
		logger.Debug("changed since last run", "keys", opts.Lock.Changed(rt.Name, current))
	}

	scratch, err := os.MkdirTemp("", "strmerge-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	tables, err := extractTables(ctx, rt, opts, sources, ifaces, scratch, logger)
	if err != nil {
		return nil, err
	}

	for _, tb := range tables {
		if !rt.WantsTable(tb.name) {
			logger.Debug("skipping table", "table", tb.name)
			continue
		}
		for _, lang := range rt.OutputLanguages() {
			if tb.iface && lang == langmeta.Base {
				continue
			}
			fr, err := writeTable(rt, tb, lang, opts.DryRun, logger)
			if err != nil {
				return nil, err
			}
			res.Files = append(res.Files, fr)
		}
	}

	if opts.Lock != nil && !opts.DryRun {
		for _, fr := range res.Files {
			sum, err := lockfile.HashFile(fr.Path)
			if err != nil {
				return nil, err
			}
			sums[lockfile.OutputPrefix+outputKey(rt, fr.Path)] = sum
		}
		opts.Lock.Record(rt.Name, sums)
	}
	return res, nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &config.Error{Path: dir, Msg: "source directory not found", Err: err}
	}
	if !info.IsDir() {
		return &config.Error{Path: dir, Msg: "source path is not a directory"}
	}
	return nil
}

// developmentInterfaces drops interface files inside a language folder
// other than Base.lproj; those are localized copies, not sources.
func developmentInterfaces(root string, files []string) []string {
	var out []string
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			rel = f
		}
		localized := false
		for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
			if strings.HasSuffix(part, ".lproj") && part != langmeta.Base+".lproj" {
				localized = true
				break
			}
		}
		if !localized {
			out = append(out, f)
		}
	}
	return out
}

// extractTables runs the tools into scratch and parses what they produce.
// Code tables come first, sorted by name, then interface tables in file
// order. Interface files sharing a table name are combined, with each
// other or with the code table of that name.
func extractTables(ctx context.Context, rt config.ResolvedTarget, opts Options, sources, ifaces []string, scratch string, logger *slog.Logger) ([]*table, error) {
	var tables []*table
	byName := make(map[string]*table)

	if len(sources) > 0 {
		codeDir := filepath.Join(scratch, "code")
		if err := os.MkdirAll(codeDir, 0755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", codeDir, err)
		}
		gen := opts.Genstrings
		gen.Routines = append(append([]string(nil), gen.Routines...), rt.Routines...)
		paths, err := gen.Run(ctx, sources, codeDir)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			f, err := stringsfile.ParseFile(p)
			if err != nil {
				return nil, err
			}
			tb := &table{name: stringsfile.TableName(p), entries: f.Entries()}
			tables = append(tables, tb)
			byName[tb.name] = tb
			logger.Debug("extracted table", "table", tb.name, "entries", len(tb.entries))
		}
	}

	uiDir := filepath.Join(scratch, "interface")
	if len(ifaces) > 0 {
		if err := os.MkdirAll(uiDir, 0755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", uiDir, err)
		}
	}
	for i, file := range ifaces {
		name := extract.InterfaceTableName(file)
		out := filepath.Join(uiDir, fmt.Sprintf("%03d-%s.strings", i, name))
		ok, err := opts.IBTool.Export(ctx, file, out)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debug("interface file has no strings", "file", file)
			continue
		}
		f, err := stringsfile.ParseFile(out)
		if err != nil {
			return nil, err
		}
		tb, ok := byName[name]
		if !ok {
			tb = &table{name: name, iface: true}
			tables = append(tables, tb)
			byName[name] = tb
		}
		tb.addInterface(f.Entries(), logger)
	}
	return tables, nil
}

// writeTable merges tb into the language's existing file, or creates it.
func writeTable(rt config.ResolvedTarget, tb *table, lang string, dryRun bool, logger *slog.Logger) (FileResult, error) {
	path := rt.TablePath(lang, tb.name)
	fr := FileResult{Path: path, Language: lang, Table: tb.name}

	var existing *stringsfile.File
	old, err := os.ReadFile(path)
	switch {
	case err == nil:
		existing, err = stringsfile.Parse(old)
		if err != nil {
			var perr *stringsfile.ParseError
			if errors.As(err, &perr) {
				perr.Path = path
				return fr, perr
			}
			return fr, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		fr.Created = true
	default:
		return fr, fmt.Errorf("reading %s: %w", path, err)
	}

	out, report, err := merge.Apply(existing, tb.entries, merge.Options{
		Prune:               rt.Prune,
		KeepComments:        rt.KeepComments || tb.iface,
		KeepCommentKeys:     tb.ifaceKeys,
		RefreshPlaceholders: rt.RefreshPlaceholders,
	})
	if err != nil {
		return fr, fmt.Errorf("merging %s: %w", path, err)
	}
	fr.Report = report

	switch {
	case rt.Encoding != "":
		out.Encoding = rt.Encoding
	case existing == nil:
		out.Encoding = stringsfile.UTF16
	}
	if rt.Sort {
		out.Sort()
	}

	if len(report.Duplicates) > 0 {
		logger.Warn("duplicate keys in source, first occurrence kept", "table", tb.name, "keys", report.Duplicates)
	}
	if len(report.Pruned) > 0 {
		logger.Debug("pruned obsolete keys", "file", path, "keys", report.Pruned)
	}

	data, err := out.Bytes()
	if err != nil {
		return fr, fmt.Errorf("encoding %s: %w", path, err)
	}
	if !fr.Created && bytes.Equal(data, old) {
		return fr, nil
	}
	fr.Changed = true
	if dryRun {
		return fr, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fr, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fr, fmt.Errorf("writing %s: %w", path, err)
	}
	logger.Debug("wrote table", "file", path, "keys_changed", report.Changed(), "added", len(report.Added), "kept", len(report.Kept))
	return fr, nil
}

// fingerprint captures the settings that affect a target's output.
func fingerprint(rt config.ResolvedTarget) string {
	return fmt.Sprintf("%s|%q|%q|%q|%q|%q|%t|%t|%t|%t|%t|%s",
		rt.Output, rt.Extensions, rt.Ignore, rt.Languages, rt.Tables, rt.Routines,
		rt.Interface, rt.Prune, rt.KeepComments, rt.RefreshPlaceholders, rt.Sort, rt.Encoding)
}

// withOutputs adds the current digest of every recorded output file to
// sums, so that edited or deleted tables defeat the lock.
func withOutputs(lock *lockfile.LockFile, rt config.ResolvedTarget, sums map[string]string) map[string]string {
	all := make(map[string]string, len(sums))
	for k, v := range sums {
		all[k] = v
	}
	for _, rel := range lock.Outputs(rt.Name) {
		sum, err := lockfile.HashFile(filepath.Join(rt.Output, filepath.FromSlash(rel)))
		if err != nil {
			sum = "missing"
		}
		all[lockfile.OutputPrefix+rel] = sum
	}
	return all
}

func outputKey(rt config.ResolvedTarget, path string) string {
	rel, err := filepath.Rel(rt.Output, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// ---------------------------------------------------------------------------
// Status and check
// ---------------------------------------------------------------------------

// TableStatus summarizes one existing .strings file.
type TableStatus struct {
	Path       string
	Language   string
	Table      string
	Total      int
	Translated int
	// Untranslated lists keys whose value still equals the key.
	Untranslated []string
}

// Status parses every existing table of rt, per language, in language
// then table order. Missing language folders are skipped.
func Status(rt config.ResolvedTarget) ([]TableStatus, error) {
	var out []TableStatus
	for _, lang := range rt.OutputLanguages() {
		dir := rt.Output
		if lang != "" {
			dir = filepath.Join(rt.Output, lang+".lproj")
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}

		var names []string
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".strings" {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			tableName := stringsfile.TableName(path)
			if !rt.WantsTable(tableName) {
				continue
			}
			f, err := stringsfile.ParseFile(path)
			if err != nil {
				return nil, err
			}
			total, translated, _ := f.Stats()
			ts := TableStatus{Path: path, Language: lang, Table: tableName, Total: total, Translated: translated}
			for _, e := range f.Untranslated() {
				ts.Untranslated = append(ts.Untranslated, e.Key)
			}
			out = append(out, ts)
		}
	}
	return out, nil
}

// Check returns the tables of translation languages that still contain
// untranslated entries. Base and tables written directly to the output
// directory hold source strings and are not checked.
func Check(rt config.ResolvedTarget) ([]TableStatus, error) {
	all, err := Status(rt)
	if err != nil {
		return nil, err
	}
	var out []TableStatus
	for _, ts := range all {
		if ts.Language == "" || ts.Language == langmeta.Base {
			continue
		}
		if len(ts.Untranslated) > 0 {
			out = append(out, ts)
		}
	}
	return out, nil
}
