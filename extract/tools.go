package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultBatchSize bounds the number of source files per genstrings
// invocation to stay clear of argument length limits.
const DefaultBatchSize = 500

// ToolError reports that an external extraction tool is unavailable or
// exited unsuccessfully.
type ToolError struct {
	Tool string
	// Stderr holds the tool's diagnostic output, if it ran.
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if errors.Is(e.Err, exec.ErrNotFound) {
		msg = fmt.Sprintf("%s not found (it ships with Xcode command line tools): %v", e.Tool, e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// run executes a tool, turning lookup and exit failures into *ToolError.
func run(ctx context.Context, logger *slog.Logger, tool string, args []string) error {
	path, err := exec.LookPath(tool)
	if err != nil {
		return &ToolError{Tool: filepath.Base(tool), Err: err}
	}

	logger.DebugContext(ctx, "running extraction tool", "tool", path, "args", len(args))

	cmd := exec.CommandContext(ctx, path, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ToolError{Tool: filepath.Base(tool), Stderr: stderr.String(), Err: err}
	}
	if stderr.Len() > 0 {
		logger.DebugContext(ctx, "extraction tool output", "tool", filepath.Base(tool), "stderr", strings.TrimSpace(stderr.String()))
	}
	return nil
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ---------------------------------------------------------------------------
// genstrings
// ---------------------------------------------------------------------------

// Genstrings runs the genstrings utility.
type Genstrings struct {
	// Path is the binary name or path (default "genstrings").
	Path string
	// Routines are additional localization function names passed with -s.
	Routines []string
	// BatchSize limits files per invocation (default DefaultBatchSize).
	BatchSize int
	Logger    *slog.Logger
}

// Run extracts strings from files into outDir and returns the paths of the
// generated tables (one <Table>.strings per table name used in source),
// sorted. Large file sets are processed in batches, later batches
// appending to the tables of earlier ones.
func (g *Genstrings) Run(ctx context.Context, files []string, outDir string) ([]string, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no source files to extract from")
	}
	tool := g.Path
	if tool == "" {
		tool = "genstrings"
	}
	batch := g.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	logger := orDefault(g.Logger)

	for start := 0; start < len(files); start += batch {
		end := min(start+batch, len(files))

		args := []string{"-u"}
		if start > 0 {
			args = append(args, "-a")
		}
		for _, r := range g.Routines {
			args = append(args, "-s", r)
		}
		args = append(args, "-o", outDir)
		args = append(args, files[start:end]...)

		if err := run(ctx, logger, tool, args); err != nil {
			return nil, err
		}
	}

	return listTables(outDir)
}

// listTables returns the .strings files directly inside dir, sorted.
func listTables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var tables []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".strings" {
			tables = append(tables, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// ---------------------------------------------------------------------------
// ibtool
// ---------------------------------------------------------------------------

// IBTool runs ibtool to export the strings of interface files.
type IBTool struct {
	// Path is the binary name or path (default "ibtool").
	Path   string
	Logger *slog.Logger
}

// Export writes the strings of one interface file to outPath. It reports
// false when the file has no localizable strings and nothing was written.
func (t *IBTool) Export(ctx context.Context, file, outPath string) (bool, error) {
	tool := t.Path
	if tool == "" {
		tool = "ibtool"
	}
	if err := run(ctx, orDefault(t.Logger), tool, []string{"--export-strings-file", outPath, file}); err != nil {
		return false, err
	}
	if _, err := os.Stat(outPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", outPath, err)
	}
	return true, nil
}

// InterfaceTableName returns the table name used for an interface file
// ("Base.lproj/Main.storyboard" → "Main").
func InterfaceTableName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
}
