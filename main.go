// strmerge keeps Xcode .strings tables in sync with source code without
// losing translations.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/minios-linux/strmerge/config"
	"github.com/minios-linux/strmerge/extract"
	"github.com/minios-linux/strmerge/i18n"
	"github.com/minios-linux/strmerge/langmeta"
	"github.com/minios-linux/strmerge/lockfile"
	"github.com/minios-linux/strmerge/stringsfile"
	"github.com/minios-linux/strmerge/update"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors, cleared when NO_COLOR is set.
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func disableColor() {
	colorReset, colorRed, colorGreen, colorYellow, colorBlue = "", "", "", "", ""
}

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

var logLevel = new(slog.LevelVar)

func setupLogging(w io.Writer, debug, noColor bool) {
	logLevel.Set(slog.LevelInfo)
	if debug {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})))
}

func logInfo(format string, args ...any) {
	slog.Info(fmt.Sprintf(format, args...))
}

func logSuccess(format string, args ...any) {
	slog.Info("✓ " + fmt.Sprintf(format, args...))
}

func logWarning(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...))
}

func logError(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir    string
	configPath string
	verbose    bool

	appEnv config.Env
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "strmerge",
		Short: i18n.T("Keep Xcode .strings files in sync with source code"),
		Long: i18n.T(`strmerge extracts localizable strings from Objective-C and Swift sources
with genstrings (and from xib/storyboard files with ibtool), then merges them
into the existing .strings tables of every language. Translations are never
overwritten; new keys are added with their default value.

Commands:
  update   Extract strings and merge them into every language
  status   Show targets, languages and translation progress
  check    Fail when translations are missing
  version  Show version information

Settings are read from .strmerge.yaml (or .strmerge.toml) in the project
root; without one, a single target is built from flags.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			appEnv = env
			noColor := env.NoColor != ""
			if noColor {
				disableColor()
			}
			setupLogging(cmd.ErrOrStderr(), verbose || env.Verbose, noColor)
			return nil
		},
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", i18n.T("Project root directory"))
	root.PersistentFlags().StringVar(&configPath, "config", "", i18n.T("Project file (default: .strmerge.yaml in the root)"))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, i18n.T("Show debug messages"))

	root.AddCommand(
		newUpdateCmd(),
		newStatusCmd(),
		newCheckCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "strmerge version %s\n", version)
			fmt.Fprintf(w, "  commit:    %s\n", commit)
			fmt.Fprintf(w, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Target selection shared by all commands
// ---------------------------------------------------------------------------

// overrides are command-line settings applied on top of the project file.
type overrides struct {
	input, output string
	targets       []string

	extensions []string
	ignore     []string
	langs      []string
	routines   []string
	encoding   string

	interfaceFiles *bool
	prune          *bool
	keepComments   *bool
	sort           *bool
}

func (o *overrides) bindSelection(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.input, "input", "i", "", i18n.T("Source root to scan (default: project root)"))
	cmd.Flags().StringVarP(&o.output, "output", "o", "", i18n.T("Directory holding the *.lproj folders (default: auto-detect)"))
	cmd.Flags().StringArrayVar(&o.targets, "target", nil, i18n.T("Only process the named target (repeatable)"))
	cmd.Flags().StringArrayVar(&o.langs, "lang", nil, i18n.T("Language to process (repeatable, default: existing *.lproj folders)"))
}

// boolOverride returns the flag value when the user set it explicitly.
func boolOverride(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return nil
	}
	return &v
}

func (o *overrides) apply(file *config.File) error {
	if o.encoding != "" {
		if _, err := stringsfile.ParseEncoding(o.encoding); err != nil {
			return &config.Error{Msg: "--encoding", Err: err}
		}
	}
	if _, err := extract.NewIgnore(o.ignore); err != nil {
		return &config.Error{Msg: "--ignore", Err: err}
	}
	var langs []string
	for _, lang := range o.langs {
		for _, l := range strings.Split(lang, ",") {
			if l = strings.TrimSpace(l); l == "" {
				continue
			}
			if !langmeta.Valid(l) {
				return &config.Error{Msg: fmt.Sprintf("--lang: invalid language %q", l)}
			}
			langs = append(langs, langmeta.Canonical(l))
		}
	}

	for i := range file.Targets {
		t := &file.Targets[i]
		if len(o.extensions) > 0 {
			t.Extensions = o.extensions
		}
		if len(langs) > 0 {
			t.Languages = langs
		}
		t.Ignore = append(t.Ignore, o.ignore...)
		t.Routines = append(t.Routines, o.routines...)
		if o.encoding != "" {
			t.Encoding = o.encoding
		}
		if o.interfaceFiles != nil {
			t.Interface = *o.interfaceFiles
		}
		if o.keepComments != nil {
			t.KeepComments = *o.keepComments
		}
		if o.prune != nil {
			t.Prune = o.prune
		}
		if o.sort != nil {
			t.Sort = o.sort
		}
	}
	return nil
}

// loadTargets builds the resolved targets from the project file, or from
// flags when there is none.
func loadTargets(o overrides) ([]config.ResolvedTarget, error) {
	path := configPath
	if path == "" {
		path = appEnv.Config
	}
	if path == "" {
		path = config.Find(rootDir)
	}

	var file *config.File
	if path != "" {
		if o.input != "" || o.output != "" {
			return nil, &config.Error{Path: path, Msg: "--input and --output cannot be combined with a project file"}
		}
		f, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		slog.Debug("loaded project file", "path", path, "targets", len(f.Targets))
		file = f
	} else {
		input := o.input
		if input == "" {
			input = "."
		}
		file = config.DefaultFile(rootDir, input, o.output)
	}

	if err := o.apply(file); err != nil {
		return nil, err
	}
	targets, err := file.Resolve(rootDir)
	if err != nil {
		return nil, err
	}
	if targets, err = selectTargets(targets, o.targets); err != nil {
		return nil, err
	}

	if appEnv.Encoding != "" {
		enc, err := stringsfile.ParseEncoding(appEnv.Encoding)
		if err != nil {
			return nil, &config.Error{Msg: "STRMERGE_ENCODING", Err: err}
		}
		for i := range targets {
			if targets[i].Encoding == "" {
				targets[i].Encoding = enc
			}
		}
	}
	return targets, nil
}

func selectTargets(targets []config.ResolvedTarget, names []string) ([]config.ResolvedTarget, error) {
	if len(names) == 0 {
		return targets, nil
	}
	byName := make(map[string]config.ResolvedTarget, len(targets))
	for _, rt := range targets {
		byName[rt.Name] = rt
	}
	var out []config.ResolvedTarget
	for _, name := range names {
		rt, ok := byName[name]
		if !ok {
			return nil, &config.Error{Msg: fmt.Sprintf("unknown target %q", name)}
		}
		out = append(out, rt)
	}
	return out, nil
}

func targetNames(targets []config.ResolvedTarget) []string {
	names := make([]string, len(targets))
	for i, rt := range targets {
		names[i] = rt.Name
	}
	return names
}

// ---------------------------------------------------------------------------
// update (extract + merge)
// ---------------------------------------------------------------------------

func newUpdateCmd() *cobra.Command {
	var (
		o      overrides
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: i18n.T("Extract strings and merge them into every language"),
		Long: i18n.T(`Run genstrings over the sources (and ibtool over interface files with
--interface), then merge the result into <output>/<lang>.lproj/<Table>.strings
for every language. Existing translations are kept; keys no longer in the
source are kept too unless --prune is given.

Examples:
  # Update all targets of .strmerge.yaml
  strmerge update

  # Without a project file
  strmerge update -i Sources -o Resources --lang en --lang fr

  # Preview, ignoring the lock file
  strmerge update --dry-run --force`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.interfaceFiles = boolOverride(cmd, "interface")
			o.prune = boolOverride(cmd, "prune")
			o.keepComments = boolOverride(cmd, "keep-comments")
			o.sort = boolOverride(cmd, "sort")
			return runUpdate(cmd.Context(), o, dryRun, force)
		},
	}

	o.bindSelection(cmd)
	cmd.Flags().StringArrayVar(&o.extensions, "extension", nil, i18n.T("Source file extension to scan (repeatable, default: c, m, mm, swift)"))
	cmd.Flags().StringArrayVar(&o.ignore, "ignore", nil, i18n.T("Ignore paths matching the pattern (repeatable)"))
	cmd.Flags().StringArrayVar(&o.routines, "routine", nil, i18n.T("Extra localization function for genstrings -s (repeatable)"))
	cmd.Flags().StringVar(&o.encoding, "encoding", "", i18n.T("Output encoding: utf-16 or utf-8 (default: keep, utf-16 for new files)"))
	cmd.Flags().Bool("interface", false, i18n.T("Also localize xib, nib and storyboard files"))
	cmd.Flags().Bool("prune", false, i18n.T("Remove keys no longer found in source"))
	cmd.Flags().Bool("keep-comments", false, i18n.T("Keep existing comments instead of refreshing them"))
	cmd.Flags().Bool("sort", false, i18n.T("Sort entries by key"))
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, i18n.T("Show what would change without writing files"))
	cmd.Flags().BoolVar(&force, "force", false, i18n.T("Ignore the lock file and always run the extraction tools"))

	_ = cmd.RegisterFlagCompletionFunc("encoding", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{string(stringsfile.UTF16), string(stringsfile.UTF8)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runUpdate(ctx context.Context, o overrides, dryRun, force bool) error {
	targets, err := loadTargets(o)
	if err != nil {
		return err
	}

	lock, err := lockfile.Load(rootDir)
	if err != nil {
		return err
	}

	opts := update.Options{
		Genstrings: extract.Genstrings{Path: appEnv.Genstrings},
		IBTool:     extract.IBTool{Path: appEnv.IBTool},
		Lock:       lock,
		Force:      force,
		DryRun:     dryRun,
		Logger:     slog.Default(),
	}

	prefix := ""
	if dryRun {
		prefix = i18n.T("[dry-run] ")
	}

	for _, rt := range targets {
		logInfo(i18n.T("Updating %s: %s"), rt.Name, rt.Input)
		if len(rt.Languages) == 0 {
			logWarning(i18n.T("No *.lproj folders in %s, writing tables there directly"), rt.Output)
		}

		res, err := update.Run(ctx, rt, opts)
		if err != nil {
			return fmt.Errorf("target %s: %w", rt.Name, err)
		}
		if res.Skipped {
			logInfo(i18n.T("%s is up to date"), rt.Name)
			continue
		}
		if res.Sources+res.Interfaces == 0 {
			logWarning(i18n.T("No source files found in %s"), rt.Input)
			continue
		}

		for _, fr := range res.Files {
			switch {
			case fr.Created:
				logSuccess(prefix+i18n.N("Created %s (%d entry)", "Created %s (%d entries)", len(fr.Report.Added)), fr.Path, len(fr.Report.Added))
			case fr.Changed:
				logSuccess(prefix+i18n.T("Updated %s: %d added, %d removed"), fr.Path, len(fr.Report.Added), len(fr.Report.Pruned))
			default:
				slog.Debug("unchanged", "file", fr.Path)
			}
		}

		created, changed := res.Count()
		logInfo(i18n.T("%s: %d created, %d updated, %d unchanged"), rt.Name, created, changed, len(res.Files)-created-changed)
	}

	if dryRun {
		return nil
	}
	if configPath != "" || config.Find(rootDir) != "" {
		all, err := loadTargets(overrides{})
		if err == nil {
			lock.Prune(targetNames(all))
		}
	}
	return lock.Save()
}

// ---------------------------------------------------------------------------
// status (read-only: targets + translation stats)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "status",
		Short: i18n.T("Show targets, languages and translation progress"),
		Long: i18n.T(`Show every target with its source and output directories, the languages
found, and per-table translation progress. Does not modify any files.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), o)
		},
	}
	o.bindSelection(cmd)

	return cmd
}

func runStatus(w io.Writer, o overrides) error {
	targets, err := loadTargets(o)
	if err != nil {
		return err
	}

	for _, rt := range targets {
		fmt.Fprintf(w, "\n%s%s%s\n", colorBlue, rt.Name, colorReset)
		fmt.Fprintln(w, strings.Repeat("─", 60))
		fmt.Fprintf(w, "  %-12s %s\n", i18n.T("Input:"), rt.Input)
		fmt.Fprintf(w, "  %-12s %s\n", i18n.T("Output:"), rt.Output)

		if len(rt.Languages) > 0 {
			labels := make([]string, len(rt.Languages))
			for i, lang := range rt.Languages {
				labels[i] = langmeta.Label(lang)
			}
			fmt.Fprintf(w, "  %-12s %s\n", i18n.T("Languages:"), strings.Join(labels, ", "))
		} else {
			fmt.Fprintf(w, "  %-12s %s\n", i18n.T("Languages:"), i18n.T("none (tables live in the output directory)"))
		}
		fmt.Fprintln(w)

		stats, err := update.Status(rt)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Fprintf(w, "  %s\n", i18n.T("No .strings tables yet. Run 'strmerge update' to create them."))
			continue
		}

		width := langColumnWidth(rt.Languages)
		for _, ts := range stats {
			pct := 0
			if ts.Total > 0 {
				pct = ts.Translated * 100 / ts.Total
			}
			lang := ts.Language
			if lang == "" {
				lang = "-"
			}
			fmt.Fprintf(w, "  %-*s  %-24s %s  %d/%d\n", width, lang, ts.Table, progressBar(pct, 20), ts.Translated, ts.Total)
		}
	}

	lock, err := lockfile.Load(rootDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n  %-12s %s\n", i18n.T("Lock file:"), lock.Summary())
	return nil
}

// progressBar renders a colored bar followed by the percentage.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset + fmt.Sprintf(" %3d%%", percent)
}

func langColumnWidth(langs []string) int {
	width := 1
	for _, lang := range langs {
		width = max(width, len(lang))
	}
	return width
}

// ---------------------------------------------------------------------------
// check (fail on untranslated entries)
// ---------------------------------------------------------------------------

func newCheckCmd() *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "check",
		Short: i18n.T("Fail when translations are missing"),
		Long: i18n.T(`List entries whose value still equals their key in every translation
language (Base is skipped) and exit with status 1 if there are any.
Intended for CI.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), o)
		},
	}
	o.bindSelection(cmd)

	return cmd
}

func runCheck(w io.Writer, o overrides) error {
	targets, err := loadTargets(o)
	if err != nil {
		return err
	}

	total := 0
	for _, rt := range targets {
		missing, err := update.Check(rt)
		if err != nil {
			return err
		}
		for _, ts := range missing {
			total += len(ts.Untranslated)
			fmt.Fprintf(w, "%s%s%s: %s\n", colorYellow, ts.Path, colorReset,
				fmt.Sprintf(i18n.N("%d untranslated entry", "%d untranslated entries", len(ts.Untranslated)), len(ts.Untranslated)))
			for _, key := range ts.Untranslated {
				fmt.Fprintf(w, "  %q\n", key)
			}
		}
	}

	if total > 0 {
		return fmt.Errorf(i18n.N("%d untranslated entry found", "%d untranslated entries found", total), total)
	}
	logSuccess(i18n.T("All translations complete"))
	return nil
}
