package codec

import (
	"regexp"
	"strconv"

	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/token"
)

// goccy/go-yaml only reads a plain scalar as a float when it has a dot, so
// YAML 1.2 core floats such as 1e3 or -2E-5 would otherwise decode as strings.
var exponentFloat = regexp.MustCompile(`^[-+]?[0-9]+[eE][-+]?[0-9]+$`)

// resolveCoreFloats replaces plain exponent-only scalars in the value
// positions of n with float nodes. Mapping keys and explicitly tagged
// scalars are left alone.
func resolveCoreFloats(n ast.Node) ast.Node {
	switch node := n.(type) {
	case *ast.StringNode:
		if node.Token == nil || node.Token.Type != token.StringType || !exponentFloat.MatchString(node.Value) {
			return n
		}
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return n
		}
		return &ast.FloatNode{BaseNode: node.BaseNode, Token: node.Token, Value: f}
	case *ast.MappingNode:
		for _, mv := range node.Values {
			mv.Value = resolveCoreFloats(mv.Value)
		}
	case *ast.MappingValueNode:
		node.Value = resolveCoreFloats(node.Value)
	case *ast.SequenceNode:
		for i, v := range node.Values {
			node.Values[i] = resolveCoreFloats(v)
		}
	case *ast.AnchorNode:
		node.Value = resolveCoreFloats(node.Value)
	case *ast.TagNode:
		if _, scalar := node.Value.(*ast.StringNode); !scalar {
			node.Value = resolveCoreFloats(node.Value)
		}
	}
	return n
}
