package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// lprojSuffix marks a localization folder ("fr.lproj").
const lprojSuffix = ".lproj"

// skipDirs are never searched for localization folders.
var skipDirs = map[string]bool{
	".git":         true,
	"build":        true,
	"DerivedData":  true,
	"Pods":         true,
	"Carthage":     true,
	"node_modules": true,
}

// DetectLanguages returns the lproj language names found directly in dir
// ("Base", "en", "pt-BR"), sorted.
func DetectLanguages(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var langs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() && strings.HasSuffix(name, lprojSuffix) && len(name) > len(lprojSuffix) {
			langs = append(langs, strings.TrimSuffix(name, lprojSuffix))
		}
	}
	sort.Strings(langs)
	return langs
}

// DetectOutputDir finds the directory holding the *.lproj folders under
// root, searching breadth-first up to maxDepth levels. Returns root when
// nothing is found, so that new tables are created there.
func DetectOutputDir(root string, maxDepth int) string {
	level := []string{root}
	for depth := 0; depth <= maxDepth && len(level) > 0; depth++ {
		var next []string
		for _, dir := range level {
			if len(DetectLanguages(dir)) > 0 {
				return dir
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				name := e.Name()
				if !e.IsDir() || skipDirs[name] || strings.HasPrefix(name, ".") || strings.HasSuffix(name, lprojSuffix) {
					continue
				}
				next = append(next, filepath.Join(dir, name))
			}
		}
		sort.Strings(next)
		level = next
	}
	return root
}

// Default builds the single target used when there is no project file.
// An empty output means the *.lproj folders are located automatically
// below input.
func Default(input, output string) Target {
	return Target{Name: "default", Input: input, Output: output}
}

// DefaultFile wraps Default in a File.
func DefaultFile(projectRoot, input, output string) *File {
	if output == "" {
		abs := joinAbs(projectRoot, input)
		if !filepath.IsAbs(projectRoot) {
			if a, err := filepath.Abs(abs); err == nil {
				abs = a
			}
		}
		output = DetectOutputDir(abs, 3)
	}
	return &File{Targets: []Target{Default(input, output)}}
}
