package parser

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// countLeaves returns the number of terminal nodes in a subtree. This is
// the token_count definition used everywhere in the engine: it is
// deterministic for identical bytes under a fixed grammar version and falls
// out of the same parse that produced the symbol.
func countLeaves(node *tree_sitter.Node) int {
	if node.ChildCount() == 0 {
		return 1
	}
	total := 0
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil {
			total += countLeaves(child)
		}
	}
	return total
}
