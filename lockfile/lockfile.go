// Package lockfile implements strmerge.lock, which records MD5 checksums of
// the source files each target was last extracted from. When nothing has
// changed since the previous run, the extraction tools are not invoked.
//
// The lock file is stored in the project root next to .strmerge.yaml.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "strmerge.lock"

// Version is the lock file format version.
const Version = 1

// OptionsKey is the reserved entry holding the digest of the settings a
// target was processed with, so a settings change forces a new run.
const OptionsKey = "@options"

// OutputPrefix marks entries holding the digest of a written table, keyed
// by its path relative to the target's output directory.
const OutputPrefix = "@out:"

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// LockFile represents the strmerge.lock file structure.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"` // target -> source path -> md5

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a lock file from the given directory.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path
	if lf.Version > Version {
		return nil, fmt.Errorf("%s: unsupported lock file version %d", path, lf.Version)
	}
	if lf.Checksums == nil {
		lf.Checksums = make(map[string]map[string]string)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksums
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// HashFile computes the MD5 hex digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Digest hashes a set of source files. Keys are the paths relative to
// root in slash form.
func Digest(root string, files []string) (map[string]string, error) {
	sums := make(map[string]string, len(files))
	for _, file := range files {
		rel, err := filepath.Rel(root, file)
		if err != nil {
			rel = file
		}
		sum, err := HashFile(file)
		if err != nil {
			return nil, err
		}
		sums[filepath.ToSlash(rel)] = sum
	}
	return sums, nil
}

// Unchanged reports whether the recorded checksums of target match sums
// exactly: same files, same content.
func (lf *LockFile) Unchanged(target string, sums map[string]string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	recorded, ok := lf.Checksums[target]
	if !ok || len(recorded) != len(sums) {
		return false
	}
	for key, sum := range sums {
		if recorded[key] != sum {
			return false
		}
	}
	return true
}

// Changed returns the sorted keys of sums that are new or differ from the
// recorded checksums, followed by recorded keys that are gone.
func (lf *LockFile) Changed(target string, sums map[string]string) []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	recorded := lf.Checksums[target]
	var changed, removed []string
	for key, sum := range sums {
		if recorded == nil || recorded[key] != sum {
			changed = append(changed, key)
		}
	}
	for key := range recorded {
		if _, ok := sums[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)
	return append(changed, removed...)
}

// Record replaces the checksums of target after a successful run.
func (lf *LockFile) Record(target string, sums map[string]string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	m := make(map[string]string, len(sums))
	for k, v := range sums {
		m[k] = v
	}
	lf.Checksums[target] = m
}

// Outputs returns the table paths recorded for target, sorted.
func (lf *LockFile) Outputs(target string) []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	var out []string
	for key := range lf.Checksums[target] {
		if rel, ok := strings.CutPrefix(key, OutputPrefix); ok {
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out
}

// RemoveTarget removes all checksums for a target.
func (lf *LockFile) RemoveTarget(target string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.Checksums, target)
}

// Prune drops targets not listed in names.
func (lf *LockFile) Prune(names []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	for t := range lf.Checksums {
		if !keep[t] {
			delete(lf.Checksums, t)
		}
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of targets and tracked source files.
func (lf *LockFile) Stats() (targets, files int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	targets = len(lf.Checksums)
	for _, m := range lf.Checksums {
		files += countSources(m)
	}
	return
}

// countSources counts entries that are source files, not bookkeeping.
func countSources(m map[string]string) int {
	n := 0
	for key := range m {
		if !strings.HasPrefix(key, "@") {
			n++
		}
	}
	return n
}

// Targets returns sorted list of target names.
func (lf *LockFile) Targets() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	targets := make([]string, 0, len(lf.Checksums))
	for t := range lf.Checksums {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	targets, files := lf.Stats()
	if targets == 0 {
		return "empty"
	}

	var parts []string
	for _, t := range lf.Targets() {
		n := countSources(lf.Checksums[t])
		parts = append(parts, fmt.Sprintf("%s: %d files", t, n))
	}
	return fmt.Sprintf("%d targets, %d files (%s)", targets, files, strings.Join(parts, ", "))
}
