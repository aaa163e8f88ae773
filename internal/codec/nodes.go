package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"gopkg.in/yaml.v3"
)

// Plain scalars that YAML 1.1 readers would take for booleans, null or a
// merge key.
var ambiguousScalars = map[string]bool{
	"y": true, "n": true, "yes": true, "no": true, "on": true, "off": true, "~": true, "<<": true,
}

// Line breaks that yaml.v3 folds in plain and single quoted scalars but
// escapes as \N, \L and \P inside double quotes.
const unicodeBreaks = "\u0085\u2028\u2029"

// decodeJSONValue reads one JSON value from dec and returns it as a YAML node.
// Duplicate object keys keep their first position and their last value.
func decodeJSONValue(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return decodeJSONObject(dec)
		case '[':
			return decodeJSONArray(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %q", v)
	case string:
		return stringNode(v), nil
	case json.Number:
		return numberNode(v), nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func decodeJSONObject(dec *json.Decoder) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	seen := make(map[string]int)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not a string", tok)
		}
		value, err := decodeJSONValue(dec)
		if err != nil {
			return nil, err
		}
		if i, dup := seen[key]; dup {
			node.Content[i+1] = value
			continue
		}
		seen[key] = len(node.Content)
		node.Content = append(node.Content, stringNode(key), value)
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return node, nil
}

func decodeJSONArray(dec *json.Decoder) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for dec.More() {
		value, err := decodeJSONValue(dec)
		if err != nil {
			return nil, err
		}
		node.Content = append(node.Content, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return node, nil
}

func stringNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if ambiguousScalars[strings.ToLower(s)] || strings.ContainsAny(s, unicodeBreaks) {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

func numberNode(num json.Number) *yaml.Node {
	s := num.String()
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: s}
	}
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: s}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		// Re-format so the scalar resolves as a float in YAML (e.g. "1E5", huge integers).
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(f)}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}
}

// formatFloat renders f so that it always carries a dot in its mantissa
// (1.0e-07, 100000.0). goccy/go-yaml reads dotless forms back as strings.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.Contains(s, ".") {
		return s
	}
	if mantissa, exp, ok := strings.Cut(s, "e"); ok {
		return mantissa + ".0e" + exp
	}
	return s + ".0"
}

// writeJSON renders v the way JSON.stringify(v, null, 2) does, keeping the
// key order of goccy/go-yaml ordered maps.
func writeJSON(sb *strings.Builder, v any, depth int) error {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case string:
		return writeJSONString(sb, val)
	case int:
		sb.WriteString(strconv.Itoa(val))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(val, 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			sb.WriteString("null")
			return nil
		}
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		sb.Write(b)
	case goyaml.MapSlice:
		return writeJSONObject(sb, orderedMembers(val), depth)
	case map[string]any:
		return writeJSONObject(sb, sortedMembers(val), depth)
	case map[any]any:
		converted := make(map[string]any, len(val))
		for k, item := range val {
			converted[keyString(k)] = item
		}
		return writeJSONObject(sb, sortedMembers(converted), depth)
	case []any:
		return writeJSONArray(sb, val, depth)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		sb.Write(b)
	}
	return nil
}

type member struct {
	key   string
	value any
}

// orderedMembers flattens ms into JSON members. The parser rejects repeated
// keys, but distinct keys can still stringify alike (1 and 1.0, null and ~);
// those keep the first position and take the last value.
func orderedMembers(ms goyaml.MapSlice) []member {
	members := make([]member, 0, len(ms))
	index := make(map[string]int, len(ms))
	for _, item := range ms {
		key := keyString(item.Key)
		if i, dup := index[key]; dup {
			members[i].value = item.Value
			continue
		}
		index[key] = len(members)
		members = append(members, member{key: key, value: item.Value})
	}
	return members
}

func sortedMembers(m map[string]any) []member {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	members := make([]member, len(keys))
	for i, k := range keys {
		members[i] = member{key: k, value: m[k]}
	}
	return members
}

// keyString stringifies a mapping key the way a JavaScript object would.
func keyString(k any) string {
	switch key := k.(type) {
	case string:
		return key
	case nil:
		return "null"
	case float64:
		b, err := json.Marshal(key)
		if err != nil {
			return fmt.Sprint(key)
		}
		return string(b)
	}
	return fmt.Sprint(k)
}

func writeJSONObject(sb *strings.Builder, members []member, depth int) error {
	if len(members) == 0 {
		sb.WriteString("{}")
		return nil
	}
	sb.WriteString("{\n")
	for i, m := range members {
		sb.WriteString(strings.Repeat(JSONIndent, depth+1))
		if err := writeJSONString(sb, m.key); err != nil {
			return err
		}
		sb.WriteString(": ")
		if err := writeJSON(sb, m.value, depth+1); err != nil {
			return err
		}
		if i < len(members)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat(JSONIndent, depth))
	sb.WriteByte('}')
	return nil
}

func writeJSONArray(sb *strings.Builder, items []any, depth int) error {
	if len(items) == 0 {
		sb.WriteString("[]")
		return nil
	}
	sb.WriteString("[\n")
	for i, item := range items {
		sb.WriteString(strings.Repeat(JSONIndent, depth+1))
		if err := writeJSON(sb, item, depth+1); err != nil {
			return err
		}
		if i < len(items)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat(JSONIndent, depth))
	sb.WriteByte(']')
	return nil
}

func writeJSONString(sb *strings.Builder, s string) error {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	sb.WriteString(strings.TrimSuffix(buf.String(), "\n"))
	return nil
}
