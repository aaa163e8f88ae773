package bridge

import (
	"errors"
	"fmt"

	"github.com/sammcj/yaml-bridge/internal/codec"
)

// Context labels used in error reports
const (
	ContextJSON = "JSON parse/convert"
	ContextYAML = "YAML parse/convert"
)

// ClipboardFailedMessage is sent on the error port when a clipboard write fails.
const ClipboardFailedMessage = "Failed to copy to clipboard."

// ErrorReport is a normalised failure description.
type ErrorReport struct {
	Context string
	Message string
	Line    *int
	Col     *int
	// Empty is set when there was no failure value to describe
	Empty bool
}

// NewErrorReport describes err under the given context label. Position
// fields are filled only when err is, or wraps, a *codec.Error with both a
// line and a column.
func NewErrorReport(context string, err error) ErrorReport {
	if err == nil {
		return ErrorReport{Context: context, Empty: true}
	}

	report := ErrorReport{Context: context, Message: err.Error()}

	var cerr *codec.Error
	if errors.As(err, &cerr) {
		if cerr.Msg != "" {
			report.Message = cerr.Msg
		}
		if cerr.HasPosition() {
			line, col := cerr.Line, cerr.Col
			report.Line, report.Col = &line, &col
		}
	}
	return report
}

// String formats the report for the error port.
func (r ErrorReport) String() string {
	if r.Empty {
		return r.Context + " error."
	}
	loc := ""
	if r.Line != nil && r.Col != nil {
		loc = fmt.Sprintf(" (line %d, col %d)", *r.Line, *r.Col)
	}
	return fmt.Sprintf("%s error%s: %s", r.Context, loc, r.Message)
}

// FormatError is shorthand for NewErrorReport(context, err).String().
func FormatError(context string, err error) string {
	return NewErrorReport(context, err).String()
}

// Error types recorded on the request error metric
const (
	ErrorTypeClipboard   = "clipboard"
	ErrorTypeUnknownPort = "unknown_port"
	ErrorTypeInternal    = "internal"
)

// ErrorType names the failure category of err, e.g. "yaml_parse" for a
// *codec.Error. Anything else is "internal".
func ErrorType(err error) string {
	var cerr *codec.Error
	if errors.As(err, &cerr) {
		return string(cerr.Format) + "_" + string(cerr.Op)
	}
	return ErrorTypeInternal
}
