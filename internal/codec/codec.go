// Package codec converts between JSON and YAML text.
//
// JSON is decoded with encoding/json and re-encoded as YAML through a
// gopkg.in/yaml.v3 node tree, so object key order survives the conversion.
// YAML is decoded with github.com/goccy/go-yaml, whose errors carry the
// line and column of the offending token.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/parser"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultIndent is the number of spaces used for YAML block indentation
	DefaultIndent = 2
	// JSONIndent is the indentation used for JSON output
	JSONIndent = "  "
)

// Codec performs JSON/YAML conversions. The zero value is not usable, use New.
type Codec struct {
	indent        int
	maxInputBytes int
}

// Option configures a Codec.
type Option func(*Codec)

// WithIndent sets the YAML indentation width. Values outside 2..9 are ignored.
func WithIndent(spaces int) Option {
	return func(c *Codec) {
		if spaces >= 2 && spaces <= 9 {
			c.indent = spaces
		}
	}
}

// WithMaxInputBytes rejects inputs larger than n bytes. Zero disables the check.
func WithMaxInputBytes(n int) Option {
	return func(c *Codec) {
		if n >= 0 {
			c.maxInputBytes = n
		}
	}
}

// New creates a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{indent: DefaultIndent}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// JSONToYAML parses input as a single JSON value and serialises it as YAML.
func (c *Codec) JSONToYAML(input string) (string, error) {
	if err := c.checkSize(FormatJSON, input); err != nil {
		return "", err
	}

	node, err := parseJSON(input)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(c.indent)
	if err := enc.Encode(node); err != nil {
		return "", &Error{Format: FormatYAML, Op: OpSerialize, Msg: err.Error(), Err: err}
	}
	if err := enc.Close(); err != nil {
		return "", &Error{Format: FormatYAML, Op: OpSerialize, Msg: err.Error(), Err: err}
	}
	return buf.String(), nil
}

// YAMLToJSON parses input as a single YAML document and serialises it as
// JSON indented with two spaces. An empty document converts to null and
// input holding more than one document is rejected.
func (c *Codec) YAMLToJSON(input string) (string, error) {
	if err := c.checkSize(FormatYAML, input); err != nil {
		return "", err
	}

	file, err := parser.ParseBytes([]byte(input), 0)
	if err != nil {
		return "", yamlError(OpParse, err)
	}
	if len(file.Docs) > 1 {
		return "", multipleDocumentsError(file.Docs[1])
	}

	var value any
	if len(file.Docs) == 1 && file.Docs[0].Body != nil {
		body := resolveCoreFloats(file.Docs[0].Body)
		if err := goyaml.NodeToValue(body, &value, goyaml.UseOrderedMap()); err != nil {
			return "", yamlError(OpParse, err)
		}
	}

	var sb strings.Builder
	if err := writeJSON(&sb, value, 0); err != nil {
		return "", &Error{Format: FormatJSON, Op: OpSerialize, Msg: err.Error(), Err: err}
	}
	return sb.String(), nil
}

func (c *Codec) checkSize(format Format, input string) error {
	if c.maxInputBytes > 0 && len(input) > c.maxInputBytes {
		return &Error{
			Format: format,
			Op:     OpParse,
			Msg:    fmt.Sprintf("input is %d bytes, limit is %d", len(input), c.maxInputBytes),
		}
	}
	return nil
}

// parseJSON decodes exactly one JSON value into a YAML node tree.
func parseJSON(input string) (*yaml.Node, error) {
	dec := json.NewDecoder(strings.NewReader(input))
	dec.UseNumber()

	node, err := decodeJSONValue(dec)
	if err != nil {
		return nil, jsonError(err)
	}

	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, jsonError(err)
	}
	return node, nil
}

func jsonError(err error) *Error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Format: FormatJSON, Op: OpParse, Msg: "unexpected end of JSON input", Err: err}
	}
	return &Error{Format: FormatJSON, Op: OpParse, Msg: err.Error(), Err: err}
}
