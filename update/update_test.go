package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/minios-linux/strmerge/config"
	"github.com/minios-linux/strmerge/extract"
	"github.com/minios-linux/strmerge/lockfile"
	"github.com/minios-linux/strmerge/stringsfile"
)

type UpdateSuite struct {
	suite.Suite
	root     string
	input    string
	output   string
	fixtures string
	calls    string
	opts     Options
}

func TestUpdate(t *testing.T) {
	suite.Run(t, new(UpdateSuite))
}

func (s *UpdateSuite) SetupTest() {
	if runtime.GOOS == "windows" {
		s.T().Skip("fake extraction tools need a POSIX shell")
	}
	s.root = s.T().TempDir()
	s.input = filepath.Join(s.root, "Sources")
	s.output = filepath.Join(s.root, "Resources")
	s.fixtures = filepath.Join(s.root, "fixtures")
	s.calls = filepath.Join(s.root, "calls.txt")

	s.write(filepath.Join(s.input, "App.swift"), `let s = NSLocalizedString("Hello", comment: "Greeting")`)
	s.Require().NoError(os.MkdirAll(s.fixtures, 0755))

	genstrings := s.tool("genstrings", fmt.Sprintf(`out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
  esac
  shift
done
echo genstrings >> %q
cp %q/*.strings "$out/" 2>/dev/null
exit 0
`, s.calls, s.fixtures))
	ibtool := s.tool("ibtool", fmt.Sprintf(`echo "$3" >> %q
printf '/* Class = "UILabel"; text = "Hi"; */\n"abc-12.text" = "Hi";\n' > "$2"
`, s.calls))

	s.opts = Options{
		Genstrings: extract.Genstrings{Path: genstrings},
		IBTool:     extract.IBTool{Path: ibtool},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (s *UpdateSuite) tool(name, body string) string {
	path := filepath.Join(s.root, "bin", name)
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0755))
	s.Require().NoError(os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func (s *UpdateSuite) write(path, content string) {
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0755))
	s.Require().NoError(os.WriteFile(path, []byte(content), 0644))
}

func (s *UpdateSuite) fixture(table, content string) {
	s.write(filepath.Join(s.fixtures, table+".strings"), content)
}

func (s *UpdateSuite) target(langs ...string) config.ResolvedTarget {
	return config.ResolvedTarget{
		Name:       "app",
		Input:      s.input,
		Output:     s.output,
		Extensions: extract.DefaultExtensions,
		Languages:  langs,
	}
}

func (s *UpdateSuite) lproj(lang, table string) string {
	return filepath.Join(s.output, lang+".lproj", table+".strings")
}

func (s *UpdateSuite) entries(path string) []stringsfile.Entry {
	f, err := stringsfile.ParseFile(path)
	s.Require().NoError(err)
	return f.Entries()
}

func (s *UpdateSuite) genstringsCalls() int {
	data, err := os.ReadFile(s.calls)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	s.Require().NoError(err)
	return strings.Count(string(data), "genstrings\n")
}

func (s *UpdateSuite) run(rt config.ResolvedTarget) *Result {
	res, err := Run(context.Background(), rt, s.opts)
	s.Require().NoError(err)
	return res
}

const helloGoodbye = "/* Greeting */\n\"Hello\" = \"Hello\";\n\n\"Goodbye\" = \"Goodbye\";\n"

// ---- Pipeline ----

func (s *UpdateSuite) TestCreatesTablesForEveryLanguage() {
	s.fixture("Localizable", helloGoodbye)

	res := s.run(s.target("en", "fr"))
	s.Equal(1, res.Sources)
	s.Require().Len(res.Files, 2)
	for _, fr := range res.Files {
		s.True(fr.Created)
		s.True(fr.Changed)
		s.Equal("Localizable", fr.Table)
		s.Equal([]string{"Hello", "Goodbye"}, fr.Report.Added)
	}
	created, changed := res.Count()
	s.Equal(2, created)
	s.Equal(0, changed)

	want := []stringsfile.Entry{
		{Key: "Hello", Value: "Hello", Comment: "Greeting"},
		{Key: "Goodbye", Value: "Goodbye"},
	}
	s.Equal(want, s.entries(s.lproj("fr", "Localizable")))

	raw, err := os.ReadFile(s.lproj("en", "Localizable"))
	s.Require().NoError(err)
	s.True(bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), "new tables are UTF-16 LE with BOM")
}

func (s *UpdateSuite) TestMergeKeepsTranslations() {
	s.fixture("Localizable", helloGoodbye)
	s.write(s.lproj("fr", "Localizable"), "\"Hello\" = \"Bonjour\";\n\"Old\" = \"Vieux\";\n")

	res := s.run(s.target("fr"))
	s.Require().Len(res.Files, 1)
	fr := res.Files[0]
	s.False(fr.Created)
	s.True(fr.Changed)
	s.Equal([]string{"Goodbye"}, fr.Report.Added)
	s.Equal([]string{"Hello"}, fr.Report.Kept)
	s.Equal([]string{"Old"}, fr.Report.Retained)

	s.Equal([]stringsfile.Entry{
		{Key: "Hello", Value: "Bonjour", Comment: "Greeting"},
		{Key: "Goodbye", Value: "Goodbye"},
		{Key: "Old", Value: "Vieux"},
	}, s.entries(fr.Path))

	raw, err := os.ReadFile(fr.Path)
	s.Require().NoError(err)
	s.False(bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), "existing UTF-8 table keeps its encoding")
	s.Contains(string(raw), `"Hello" = "Bonjour";`)
}

func (s *UpdateSuite) TestPrune() {
	s.fixture("Localizable", helloGoodbye)
	s.write(s.lproj("fr", "Localizable"), "\"Hello\" = \"Bonjour\";\n\"Old\" = \"Vieux\";\n")

	rt := s.target("fr")
	rt.Prune = true
	res := s.run(rt)

	s.Equal([]string{"Old"}, res.Files[0].Report.Pruned)
	keys := []string{}
	for _, e := range s.entries(res.Files[0].Path) {
		keys = append(keys, e.Key)
	}
	s.Equal([]string{"Hello", "Goodbye"}, keys)
}

func (s *UpdateSuite) TestEncodingOverrideAndSort() {
	s.fixture("Localizable", "\"b\" = \"b\";\n\"a\" = \"a\";\n")

	rt := s.target("de")
	rt.Encoding = stringsfile.UTF8
	rt.Sort = true
	res := s.run(rt)

	raw, err := os.ReadFile(res.Files[0].Path)
	s.Require().NoError(err)
	s.Equal("\"a\" = \"a\";\n\n\"b\" = \"b\";\n", string(raw))
}

func (s *UpdateSuite) TestSecondRunChangesNothing() {
	s.fixture("Localizable", helloGoodbye)
	rt := s.target("fr")
	s.run(rt)

	res := s.run(rt)
	s.Require().Len(res.Files, 1)
	s.False(res.Files[0].Created)
	s.False(res.Files[0].Changed)
}

func (s *UpdateSuite) TestDryRunWritesNothing() {
	s.fixture("Localizable", helloGoodbye)
	s.opts.DryRun = true

	res := s.run(s.target("fr"))
	s.Require().Len(res.Files, 1)
	s.True(res.Files[0].Created)
	s.True(res.Files[0].Changed)
	s.NoFileExists(s.lproj("fr", "Localizable"))
}

func (s *UpdateSuite) TestTableFilter() {
	s.fixture("Localizable", helloGoodbye)
	s.fixture("Errors", "\"E1\" = \"E1\";\n")

	rt := s.target("fr")
	rt.Tables = []string{"Errors"}
	res := s.run(rt)

	s.Require().Len(res.Files, 1)
	s.Equal("Errors", res.Files[0].Table)
	s.NoFileExists(s.lproj("fr", "Localizable"))
}

func (s *UpdateSuite) TestNoLanguagesWritesIntoOutput() {
	s.fixture("Localizable", helloGoodbye)

	res := s.run(s.target())
	s.Require().Len(res.Files, 1)
	s.Equal(filepath.Join(s.output, "Localizable.strings"), res.Files[0].Path)
	s.FileExists(res.Files[0].Path)
}

func (s *UpdateSuite) TestNoSources() {
	s.Require().NoError(os.Remove(filepath.Join(s.input, "App.swift")))

	res := s.run(s.target("fr"))
	s.Equal(0, res.Sources)
	s.Empty(res.Files)
	s.Equal(0, s.genstringsCalls())
}

func (s *UpdateSuite) TestInterfaceFiles() {
	s.write(filepath.Join(s.input, "Base.lproj", "Main.storyboard"), "<document/>")
	s.write(filepath.Join(s.input, "fr.lproj", "Main.storyboard"), "<document/>")
	s.write(s.lproj("fr", "Main"), "/* translator note */\n\"abc-12.text\" = \"Salut\";\n")

	rt := s.target("Base", "fr")
	rt.Interface = true
	res := s.run(rt)
	s.Equal(1, res.Interfaces)

	s.NoFileExists(s.lproj("Base", "Main"))
	s.Equal([]stringsfile.Entry{
		{Key: "abc-12.text", Value: "Salut", Comment: "translator note"},
	}, s.entries(s.lproj("fr", "Main")))

	data, err := os.ReadFile(s.calls)
	s.Require().NoError(err)
	s.Contains(string(data), filepath.Join("Base.lproj", "Main.storyboard"))
	s.NotContains(string(data), filepath.Join("fr.lproj", "Main.storyboard"))
}

func (s *UpdateSuite) TestInterfaceEntriesJoinCodeTable() {
	s.fixture("Main", "/* Window title */\n\"title\" = \"title\";\n")
	s.write(filepath.Join(s.input, "Base.lproj", "Main.storyboard"), "<document/>")
	s.write(filepath.Join(s.input, "Extras", "Main.storyboard"), "<document/>")
	s.write(s.lproj("fr", "Main"), "/* translator note */\n\"abc-12.text\" = \"Salut\";\n\n\"title\" = \"Titre\";\n")

	rt := s.target("fr")
	rt.Interface = true
	res := s.run(rt)
	s.Equal(2, res.Interfaces)

	s.Require().Len(res.Files, 1)
	s.Empty(res.Files[0].Report.Duplicates)
	s.Equal([]stringsfile.Entry{
		{Key: "title", Value: "Titre", Comment: "Window title"},
		{Key: "abc-12.text", Value: "Salut", Comment: "translator note"},
	}, s.entries(s.lproj("fr", "Main")))
}

// ---- Lock file ----

func (s *UpdateSuite) TestLockForgetsTargetWithoutSources() {
	s.fixture("Localizable", helloGoodbye)
	lock, err := lockfile.Load(s.root)
	s.Require().NoError(err)
	s.opts.Lock = lock
	rt := s.target("fr")

	s.run(rt)
	s.Equal([]string{"app"}, lock.Targets())

	s.Require().NoError(os.Remove(filepath.Join(s.input, "App.swift")))
	s.run(rt)
	s.Empty(lock.Targets())
}

func (s *UpdateSuite) TestLockSkipsUnchangedTarget() {
	s.fixture("Localizable", helloGoodbye)
	lock, err := lockfile.Load(s.root)
	s.Require().NoError(err)
	s.opts.Lock = lock
	rt := s.target("fr")

	s.False(s.run(rt).Skipped)
	s.Equal([]string{"fr.lproj/Localizable.strings"}, lock.Outputs("app"))

	s.True(s.run(rt).Skipped)
	s.Equal(1, s.genstringsCalls())

	s.write(filepath.Join(s.input, "App.swift"), `let s = NSLocalizedString("Goodbye", comment: "")`)
	s.False(s.run(rt).Skipped)
	s.True(s.run(rt).Skipped)

	s.Require().NoError(os.Remove(s.lproj("fr", "Localizable")))
	s.False(s.run(rt).Skipped)
	s.FileExists(s.lproj("fr", "Localizable"))

	rt.Prune = true
	s.False(s.run(rt).Skipped, "settings change defeats the lock")

	s.opts.Force = true
	s.False(s.run(rt).Skipped)
	s.Equal(5, s.genstringsCalls())
}

func (s *UpdateSuite) TestDryRunDoesNotRecordLock() {
	s.fixture("Localizable", helloGoodbye)
	lock, err := lockfile.Load(s.root)
	s.Require().NoError(err)
	s.opts.Lock = lock
	s.opts.DryRun = true

	s.run(s.target("fr"))
	s.Empty(lock.Targets())
}

// ---- Errors ----

func (s *UpdateSuite) TestParseErrorInExistingTable() {
	s.fixture("Localizable", helloGoodbye)
	path := s.lproj("fr", "Localizable")
	s.write(path, "\"Hello\" = \"Bonjour\";\n\"Bad\" = Mauvais;\n")

	_, err := Run(context.Background(), s.target("fr"), s.opts)
	var perr *stringsfile.ParseError
	s.Require().ErrorAs(err, &perr)
	s.Equal(path, perr.Path)
	s.Equal(2, perr.Line)
}

func (s *UpdateSuite) TestInvalidUTF8TableLeftUntouched() {
	s.fixture("Localizable", helloGoodbye)
	path := s.lproj("fr", "Localizable")
	raw := "\"Hello\" = \"Bonjour\";\n\"Caf\xe9\" = \"Caf\xe9\";\n"
	s.write(path, raw)

	_, err := Run(context.Background(), s.target("fr"), s.opts)
	var perr *stringsfile.ParseError
	s.Require().ErrorAs(err, &perr)
	s.Equal(path, perr.Path)
	s.Equal(2, perr.Line)

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Equal(raw, string(data))
}

func (s *UpdateSuite) TestUTF8BOMTableIsStable() {
	s.fixture("Localizable", helloGoodbye)
	path := s.lproj("fr", "Localizable")
	s.write(path, "\xef\xbb\xbf/* Greeting */\n\"Hello\" = \"Bonjour\";\n\n\"Goodbye\" = \"Au revoir\";\n")

	res := s.run(s.target("fr"))
	s.Require().Len(res.Files, 1)
	s.False(res.Files[0].Changed)
}

func (s *UpdateSuite) TestMissingInput() {
	rt := s.target("fr")
	rt.Input = filepath.Join(s.root, "missing")

	_, err := Run(context.Background(), rt, s.opts)
	var cerr *config.Error
	s.Require().ErrorAs(err, &cerr)
	s.Equal(rt.Input, cerr.Path)
}

func (s *UpdateSuite) TestMissingTool() {
	s.opts.Genstrings.Path = filepath.Join(s.root, "bin", "no-genstrings")

	_, err := Run(context.Background(), s.target("fr"), s.opts)
	var terr *extract.ToolError
	s.Require().ErrorAs(err, &terr)
	s.Equal("no-genstrings", terr.Tool)
}

func (s *UpdateSuite) TestToolFailure() {
	s.opts.Genstrings.Path = s.tool("broken", "echo 'syntax error' >&2\nexit 1\n")

	_, err := Run(context.Background(), s.target("fr"), s.opts)
	var terr *extract.ToolError
	s.Require().ErrorAs(err, &terr)
	var exitErr *exec.ExitError
	s.ErrorAs(err, &exitErr)
	s.Contains(err.Error(), "syntax error")
}

// ---- Status and check ----

func (s *UpdateSuite) TestStatusAndCheck() {
	s.write(s.lproj("Base", "Localizable"), "\"Hello\" = \"Hello\";\n\"Goodbye\" = \"Goodbye\";\n")
	s.write(s.lproj("de", "Localizable"), "\"Hello\" = \"Hallo\";\n\"Goodbye\" = \"Tschüss\";\n")
	s.write(s.lproj("fr", "Localizable"), "\"Hello\" = \"Bonjour\";\n\"Goodbye\" = \"Goodbye\";\n")
	s.write(s.lproj("fr", "notes.txt"), "not a table")
	rt := s.target("Base", "de", "fr", "ja")

	status, err := Status(rt)
	s.Require().NoError(err)
	s.Require().Len(status, 3)
	s.Equal("Base", status[0].Language)
	s.Equal(0, status[0].Translated)
	s.Equal(2, status[1].Translated)
	s.Equal(TableStatus{
		Path:         s.lproj("fr", "Localizable"),
		Language:     "fr",
		Table:        "Localizable",
		Total:        2,
		Translated:   1,
		Untranslated: []string{"Goodbye"},
	}, status[2])

	check, err := Check(rt)
	s.Require().NoError(err)
	s.Require().Len(check, 1)
	s.Equal("fr", check[0].Language)
	s.Equal([]string{"Goodbye"}, check[0].Untranslated)
}

func (s *UpdateSuite) TestStatusParseError() {
	s.write(s.lproj("fr", "Localizable"), "garbage\n")

	_, err := Status(s.target("fr"))
	var perr *stringsfile.ParseError
	s.ErrorAs(err, &perr)
}
