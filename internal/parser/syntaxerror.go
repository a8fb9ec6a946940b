package parser

import (
	"fmt"

	gofast "github.com/t14raptor/go-fast/parser"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// firstSyntaxError locates the earliest ERROR or missing node so the parse
// failure carries a byte position. For JavaScript the go-fast parser runs as
// a second opinion; its message is usually sharper than "unexpected token".
func firstSyntaxError(root *tree_sitter.Node, spec *languageSpec, src []byte) (pos int, msg string) {
	pos = int(root.EndByte())
	if errNode := findErrorNode(root); errNode != nil {
		pos = int(errNode.StartByte())
	}
	msg = fmt.Sprintf("syntax error near byte %d", pos)

	if spec.validateJS {
		if _, err := gofast.ParseFile(string(src)); err != nil {
			msg = err.Error()
		}
	}
	return pos, msg
}

func findErrorNode(node *tree_sitter.Node) *tree_sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if !child.HasError() {
			continue
		}
		if found := findErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}
