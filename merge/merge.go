// Package merge implements the non-destructive .strings merge: freshly
// extracted entries are combined with an existing table so that no
// translation is ever lost.
package merge

import (
	"github.com/minios-linux/strmerge/stringsfile"
)

// Options controls merge policy.
type Options struct {
	// Prune drops existing keys that are no longer extracted from source.
	// When false they are kept after the extracted entries.
	Prune bool
	// KeepComments keeps the existing comment of an entry instead of the
	// freshly extracted one (ibtool comments are generated noise).
	KeepComments bool
	// KeepCommentKeys applies KeepComments to the listed keys only.
	KeepCommentKeys map[string]bool
	// RefreshPlaceholders replaces an untranslated existing value
	// (value == key) with the extracted default value when they differ.
	RefreshPlaceholders bool
}

// Report describes what a merge did, by key.
type Report struct {
	// Added are extracted keys that did not exist before.
	Added []string
	// Kept are keys present in both; their existing value was preserved.
	Kept []string
	// Refreshed are placeholder values replaced by a new default value.
	Refreshed []string
	// Retained are existing keys no longer in source, kept because
	// pruning is off.
	Retained []string
	// Pruned are existing keys no longer in source that were dropped.
	Pruned []string
	// Duplicates are extracted keys seen more than once; the first
	// occurrence won.
	Duplicates []string
}

// Changed reports whether the merge altered the key set.
func (r *Report) Changed() bool {
	return len(r.Added) > 0 || len(r.Pruned) > 0 || len(r.Refreshed) > 0
}

// Merge combines an existing table with extracted entries.
//   - Extracted keys are emitted in encounter order; duplicates keep the first.
//   - A key already present keeps its existing value and takes the new comment.
//   - A new key gets the key itself as its value, marking it untranslated.
//   - Existing keys no longer extracted follow, unless opts.Prune is set.
//
// existing may be nil, meaning an empty table.
func Merge(existing *stringsfile.File, extracted []stringsfile.Entry, opts Options) []stringsfile.Entry {
	entries, _ := MergeWithReport(existing, extracted, opts)
	return entries
}

// MergeWithReport is Merge that also reports what happened to each key.
func MergeWithReport(existing *stringsfile.File, extracted []stringsfile.Entry, opts Options) ([]stringsfile.Entry, *Report) {
	if existing == nil {
		existing = stringsfile.NewFile()
	}

	report := &Report{}
	result := make([]stringsfile.Entry, 0, len(extracted)+existing.Len())
	seen := make(map[string]bool, len(extracted))

	for _, ex := range extracted {
		if seen[ex.Key] {
			report.Duplicates = append(report.Duplicates, ex.Key)
			continue
		}
		seen[ex.Key] = true

		old, ok := existing.Get(ex.Key)
		if !ok {
			result = append(result, stringsfile.Entry{Key: ex.Key, Value: ex.Key, Comment: ex.Comment})
			report.Added = append(report.Added, ex.Key)
			continue
		}

		merged := stringsfile.Entry{Key: ex.Key, Value: old.Value, Comment: ex.Comment}
		if opts.KeepComments || opts.KeepCommentKeys[ex.Key] {
			merged.Comment = old.Comment
		}
		if opts.RefreshPlaceholders && old.IsPlaceholder() && ex.Value != "" && ex.Value != old.Value {
			merged.Value = ex.Value
			report.Refreshed = append(report.Refreshed, ex.Key)
		} else {
			report.Kept = append(report.Kept, ex.Key)
		}
		result = append(result, merged)
	}

	for _, old := range existing.Entries() {
		if seen[old.Key] {
			continue
		}
		if opts.Prune {
			report.Pruned = append(report.Pruned, old.Key)
			continue
		}
		result = append(result, old)
		report.Retained = append(report.Retained, old.Key)
	}

	return result, report
}

// Apply merges extracted entries into existing and returns the result as
// a new table that keeps the existing table's encoding.
func Apply(existing *stringsfile.File, extracted []stringsfile.Entry, opts Options) (*stringsfile.File, *Report, error) {
	entries, report := MergeWithReport(existing, extracted, opts)
	out, err := stringsfile.FromEntries(entries)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil && existing.Encoding != "" {
		out.Encoding = existing.Encoding
	}
	return out, report, nil
}
