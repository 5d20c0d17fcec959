package stringsfile

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ParseError reports a malformed line in a .strings file.
type ParseError struct {
	// Path is the file being parsed; empty when parsing in-memory content.
	Path string
	// Line is the 1-based line number of the offending line.
	Line int
	// Text is the offending line as read.
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	loc := fmt.Sprintf("line %d", e.Line)
	if e.Path != "" {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	return fmt.Sprintf("%s: %s: %q", loc, e.Reason, e.Text)
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// ParseFile reads and parses a .strings file from disk. Parse errors carry
// the file path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
			return nil, perr
		}
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and parses raw .strings content. The returned File
// remembers the encoding it was stored in.
func Parse(data []byte) (*File, error) {
	text, enc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	f, err := ParseString(text)
	if err != nil {
		return nil, err
	}
	f.Encoding = enc
	return f, nil
}

// ParseString parses already decoded .strings text.
func ParseString(text string) (*File, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	p := &parser{file: NewFile()}
	for i, raw := range strings.Split(text, "\n") {
		if err := p.line(i+1, raw); err != nil {
			return nil, err
		}
	}

	switch p.state {
	case stateComment:
		return nil, p.errorf(p.start, p.startText, "unterminated comment")
	case stateValue:
		return nil, p.errorf(p.start, p.startText, "unterminated value")
	}
	return p.file, nil
}

// ---------------------------------------------------------------------------
// Line parser
// ---------------------------------------------------------------------------

type parseState int

const (
	stateEntry   parseState = iota // expecting a comment or an entry
	stateComment                   // inside a /* */ comment spanning lines
	stateValue                     // inside a value spanning lines
)

type parser struct {
	file  *File
	state parseState

	// comment is the pending comment for the next entry.
	comment string
	// buf collects the parts of a multi-line comment or value.
	buf []string
	// key is the key whose value is being continued.
	key string
	// start and startText locate the line that opened a multi-line construct.
	start     int
	startText string
}

func (p *parser) errorf(n int, raw, format string, args ...any) error {
	return &ParseError{Line: n, Text: raw, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) line(n int, raw string) error {
	switch p.state {
	case stateComment:
		end := strings.Index(raw, "*/")
		if end < 0 {
			p.buf = append(p.buf, raw)
			return nil
		}
		p.buf = append(p.buf, raw[:end])
		p.comment = strings.TrimSpace(strings.Join(p.buf, "\n"))
		p.buf = nil
		p.state = stateEntry
		return p.rest(n, raw, raw[end+2:])

	case stateValue:
		end := closingQuote(raw, 0)
		if end < 0 {
			p.buf = append(p.buf, raw)
			return nil
		}
		p.buf = append(p.buf, raw[:end])
		value := strings.Join(p.buf, "\n")
		p.buf = nil
		p.state = stateEntry
		return p.finish(n, raw, p.key, value, raw[end+1:])
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		// A blank line detaches a file header comment from the first entry.
		p.comment = ""
		return nil
	}
	return p.statement(n, raw, s)
}

// rest parses whatever follows a closed comment on the same line.
func (p *parser) rest(n int, raw, s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "//") {
		return nil
	}
	return p.statement(n, raw, s)
}

func (p *parser) statement(n int, raw, s string) error {
	switch {
	case strings.HasPrefix(s, "//"):
		return nil

	case strings.HasPrefix(s, "/*"):
		body := s[2:]
		if end := strings.Index(body, "*/"); end >= 0 {
			p.comment = strings.TrimSpace(body[:end])
			return p.rest(n, raw, body[end+2:])
		}
		p.state = stateComment
		p.buf = []string{body}
		p.start, p.startText = n, raw
		return nil

	case strings.HasPrefix(s, `"`):
		return p.entry(n, raw, s)
	}
	return p.errorf(n, raw, `expected comment or "key" = "value";`)
}

func (p *parser) entry(n int, raw, s string) error {
	end := closingQuote(s, 1)
	if end < 0 {
		return p.errorf(n, raw, "unterminated key")
	}
	key := s[1:end]

	rest := strings.TrimSpace(s[end+1:])
	if !strings.HasPrefix(rest, "=") {
		return p.errorf(n, raw, "missing '=' after key")
	}
	rest = strings.TrimSpace(rest[1:])
	if !strings.HasPrefix(rest, `"`) {
		return p.errorf(n, raw, "value must be a quoted string")
	}

	end = closingQuote(rest, 1)
	if end < 0 {
		p.state = stateValue
		p.key = key
		p.buf = []string{rest[1:]}
		p.start, p.startText = n, raw
		return nil
	}
	return p.finish(n, raw, key, rest[1:end], rest[end+1:])
}

// finish completes an entry once its value is closed. tail is the text
// after the closing quote: a semicolon and an optional trailing comment.
func (p *parser) finish(n int, raw, key, value, tail string) error {
	tail = strings.TrimSpace(tail)
	if !strings.HasPrefix(tail, ";") {
		return p.errorf(n, raw, "missing ';' after value")
	}
	tail = strings.TrimSpace(tail[1:])

	comment := p.comment
	switch {
	case tail == "", strings.HasPrefix(tail, "//"):
	case len(tail) >= 4 && strings.HasPrefix(tail, "/*") && strings.HasSuffix(tail, "*/"):
		comment = strings.TrimSpace(tail[2 : len(tail)-2])
	default:
		return p.errorf(n, raw, "unexpected text after ';'")
	}
	p.comment = ""

	if err := p.file.Add(Entry{Key: key, Value: value, Comment: comment}); err != nil {
		return p.errorf(n, raw, "%v", err)
	}
	return nil
}

// closingQuote returns the index of the first unescaped '"' in s at or
// after from, or -1.
func closingQuote(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
