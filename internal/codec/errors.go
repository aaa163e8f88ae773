package codec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/token"
)

// Format identifies the text format an Error relates to.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Op identifies the step that failed.
type Op string

const (
	OpParse     Op = "parse"
	OpSerialize Op = "serialize"
)

// Error is the failure type returned by every codec operation.
// Line and Col are only meaningful when both are non-zero, and are passed
// through exactly as the underlying library reports them.
type Error struct {
	Format Format
	Op     Op
	Line   int
	Col    int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.HasPosition() {
		return fmt.Sprintf("%s %s: line %d, col %d: %s", e.Format, e.Op, e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Format, e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// HasPosition reports whether the error carries both a line and a column.
func (e *Error) HasPosition() bool {
	return e.Line > 0 && e.Col > 0
}

// tokenError is satisfied by goccy/go-yaml syntax and type errors.
type tokenError interface {
	GetToken() *token.Token
}

type messageError interface {
	GetMessage() string
}

// goccy/go-yaml prefixes formatted errors with "[line:col] ".
var positionPrefix = regexp.MustCompile(`^\[(\d+):(\d+)\]\s*`)

// yamlError converts an error from the YAML library into an *Error,
// keeping the position it reports.
func yamlError(op Op, err error) *Error {
	out := &Error{Format: FormatYAML, Op: op, Err: err}

	var me messageError
	if errors.As(err, &me) {
		out.Msg = me.GetMessage()
	}
	var te tokenError
	if errors.As(err, &te) {
		if tk := te.GetToken(); tk != nil && tk.Position != nil {
			out.Line = tk.Position.Line
			out.Col = tk.Position.Column
		}
	}

	// Fall back to the formatted text when the typed accessors are missing.
	first, _, _ := strings.Cut(err.Error(), "\n")
	if m := positionPrefix.FindStringSubmatch(first); m != nil {
		if !out.HasPosition() {
			out.Line, _ = strconv.Atoi(m[1])
			out.Col, _ = strconv.Atoi(m[2])
		}
		first = first[len(m[0]):]
	}
	if out.Msg == "" {
		out.Msg = strings.TrimSpace(first)
	}
	return out
}

// multipleDocumentsError reports a second document at the position of its
// "---" marker, or of its first token when the marker is missing.
func multipleDocumentsError(doc *ast.DocumentNode) *Error {
	out := &Error{Format: FormatYAML, Op: OpParse, Msg: "source contains multiple documents"}

	tk := doc.Start
	if tk == nil && doc.Body != nil {
		tk = doc.Body.GetToken()
	}
	if tk != nil && tk.Position != nil {
		out.Line = tk.Position.Line
		out.Col = tk.Position.Column
	}
	return out
}
