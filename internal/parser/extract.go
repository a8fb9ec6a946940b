package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/scooter-lacroix/leindex/internal/types"
)

type extractor struct {
	spec     *languageSpec
	src      []byte
	filePath string

	records []types.SymbolRecord
}

// defFrame tracks the definition whose body is currently being walked;
// calls and branches encountered inside attribute to it.
type defFrame struct {
	record      types.SymbolRecord
	branchDepth int
	maxNesting  int
}

func (ex *extractor) run(root *tree_sitter.Node) []types.SymbolRecord {
	moduleName := ModuleName(ex.filePath)
	module := types.SymbolRecord{
		QualifiedName: moduleName,
		DisplayName:   moduleName,
		Kind:          types.KindModule,
		Language:      ex.spec.tag,
		FilePath:      ex.filePath,
		ByteRange:     types.ByteRange{Start: int(root.StartByte()), End: int(root.EndByte())},
		Complexity: types.ComplexityMetrics{
			Cyclomatic: 1,
			LineCount:  int(root.EndPosition().Row-root.StartPosition().Row) + 1,
			TokenCount: countLeaves(root),
		},
	}
	ex.records = append(ex.records, module)

	moduleFrame := &defFrame{record: module}
	ex.walk(root, []string{moduleName}, []*defFrame{moduleFrame}, false)
	// Module-level calls and imports were accumulated on the frame copy.
	ex.records[0] = moduleFrame.record
	return ex.records
}

func (ex *extractor) text(n *tree_sitter.Node) string {
	return string(ex.src[n.StartByte():n.EndByte()])
}

func (ex *extractor) walk(node *tree_sitter.Node, qualifier []string, stack []*defFrame, inClass bool) {
	kind := node.Kind()
	top := stack[len(stack)-1]

	if ex.spec.importKinds[kind] {
		if imp := ex.importName(node); imp != "" {
			stack[0].record.Imports = append(stack[0].record.Imports, imp)
		}
	}

	if ex.spec.callKinds[kind] {
		if callee := ex.calleeName(node); callee != "" {
			top.record.Calls = append(top.record.Calls, callee)
		}
	}

	branching := ex.spec.branchKinds[kind]
	if branching {
		top.record.Complexity.Cyclomatic++
		top.branchDepth++
		if top.branchDepth > top.maxNesting {
			top.maxNesting = top.branchDepth
		}
	}

	symKind, isDef := ex.spec.defs[kind]
	var name string
	if isDef {
		name = ex.defName(node)
		if name == "" {
			isDef = false
		}
	}

	if isDef {
		if inClass && (symKind == types.KindFunction) {
			symKind = types.KindMethod
		}
		rec := types.SymbolRecord{
			QualifiedName: strings.Join(append(qualifier, name), "."),
			DisplayName:   name,
			Kind:          symKind,
			Language:      ex.spec.tag,
			FilePath:      ex.filePath,
			ByteRange:     types.ByteRange{Start: int(node.StartByte()), End: int(node.EndByte())},
			IsAsync:       ex.spec.asyncKeyword && ex.isAsync(node),
			Complexity: types.ComplexityMetrics{
				Cyclomatic: 1,
				LineCount:  int(node.EndPosition().Row-node.StartPosition().Row) + 1,
				TokenCount: countLeaves(node),
			},
		}
		if symKind == types.KindFunction || symKind == types.KindMethod {
			rec.Parameters = ex.parameters(node)
			rec.ReturnType = ex.returnType(node)
		}
		if symKind == types.KindClass {
			rec.Supertypes = ex.supertypes(node)
		}

		frame := &defFrame{record: rec}
		childQualifier := append(append([]string(nil), qualifier...), name)
		childStack := append(stack, frame)
		childInClass := ex.spec.classContainers[kind]
		for i := uint(0); i < node.ChildCount(); i++ {
			if child := node.Child(i); child != nil {
				ex.walk(child, childQualifier, childStack, childInClass)
			}
		}
		frame.record.Complexity.NestingDepth = frame.maxNesting
		ex.records = append(ex.records, frame.record)
	} else {
		if ex.spec.fieldKinds != nil && ex.spec.fieldKinds[kind] {
			ex.emitField(node, qualifier)
		}
		childInClass := inClass || ex.spec.classContainers[kind]
		for i := uint(0); i < node.ChildCount(); i++ {
			if child := node.Child(i); child != nil {
				ex.walk(child, qualifier, stack, childInClass)
			}
		}
	}

	if branching {
		top.branchDepth--
	}
}

// emitField produces one field symbol per declarator in a field/property
// declaration.
func (ex *extractor) emitField(node *tree_sitter.Node, qualifier []string) {
	name := ex.defName(node)
	if name == "" {
		if id := firstIdentifier(node, ex.src); id != "" {
			name = id
		} else {
			return
		}
	}
	ex.records = append(ex.records, types.SymbolRecord{
		QualifiedName: strings.Join(append(qualifier, name), "."),
		DisplayName:   name,
		Kind:          types.KindField,
		Language:      ex.spec.tag,
		FilePath:      ex.filePath,
		ByteRange:     types.ByteRange{Start: int(node.StartByte()), End: int(node.EndByte())},
		Complexity: types.ComplexityMetrics{
			Cyclomatic: 1,
			LineCount:  int(node.EndPosition().Row-node.StartPosition().Row) + 1,
			TokenCount: countLeaves(node),
		},
	})
}

func (ex *extractor) defName(node *tree_sitter.Node) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return ex.text(n)
	}
	if n := node.ChildByFieldName("declarator"); n != nil {
		// C/C++ function declarators nest; the identifier is the leftmost
		// identifier-like leaf.
		if id := firstIdentifier(n, ex.src); id != "" {
			return id
		}
	}
	return ""
}

func (ex *extractor) isAsync(node *tree_sitter.Node) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Kind() == "async" || (child.ChildCount() == 0 && ex.text(child) == "async") {
			return true
		}
		// Modifier lists (C#) hold the keyword one level down.
		if child.Kind() == "modifiers" || child.Kind() == "modifier" {
			if strings.Contains(ex.text(child), "async") {
				return true
			}
		}
	}
	return false
}

func (ex *extractor) parameters(node *tree_sitter.Node) []types.Parameter {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	var out []types.Parameter
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		if p == nil || p.Kind() == "comment" {
			continue
		}
		var param types.Parameter
		if nameNode := p.ChildByFieldName("name"); nameNode != nil {
			param.Name = ex.text(nameNode)
		} else if p.ChildCount() == 0 {
			param.Name = ex.text(p)
		} else {
			param.Name = firstIdentifier(p, ex.src)
		}
		if typeNode := p.ChildByFieldName("type"); typeNode != nil {
			param.Type = ex.text(typeNode)
		}
		if param.Name == "" {
			continue
		}
		out = append(out, param)
	}
	return out
}

func (ex *extractor) returnType(node *tree_sitter.Node) string {
	for _, field := range []string{"return_type", "result"} {
		if n := node.ChildByFieldName(field); n != nil {
			return ex.text(n)
		}
	}
	// Java/C# put the return type in the "type" field of the method node.
	if ex.spec.tag == "java" || ex.spec.tag == "csharp" {
		if n := node.ChildByFieldName("type"); n != nil {
			return ex.text(n)
		}
	}
	return ""
}

func (ex *extractor) supertypes(node *tree_sitter.Node) []string {
	var out []string
	for _, field := range ex.spec.supertypeFields {
		n := node.ChildByFieldName(field)
		if n == nil {
			continue
		}
		if n.NamedChildCount() == 0 {
			out = append(out, lastNameSegment(ex.text(n)))
			continue
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if child := n.NamedChild(i); child != nil {
				out = append(out, lastNameSegment(ex.text(child)))
			}
		}
	}
	return out
}

// calleeName pulls the called symbol's bare name from a call site.
func (ex *extractor) calleeName(node *tree_sitter.Node) string {
	var target *tree_sitter.Node
	for _, field := range []string{"function", "name", "constructor", "type"} {
		if target = node.ChildByFieldName(field); target != nil {
			break
		}
	}
	if target == nil {
		return ""
	}
	return lastNameSegment(ex.text(target))
}

func (ex *extractor) importName(node *tree_sitter.Node) string {
	for _, field := range []string{"module_name", "source", "path", "name"} {
		if n := node.ChildByFieldName(field); n != nil {
			return strings.Trim(ex.text(n), "\"'`<>")
		}
	}
	// Fall back to the first string or dotted-name child.
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "string", "dotted_name", "string_literal", "interpreted_string_literal",
			"scoped_identifier", "qualified_name", "use_wildcard", "scoped_use_list", "identifier":
			return strings.Trim(ex.text(child), "\"'`<>")
		}
	}
	return ""
}

// lastNameSegment reduces "a.b.c", "obj->method", "ns::f" or "this.x" to
// the final identifier; callers resolve it against the symbol index.
func lastNameSegment(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"::", "->", "."} {
		if i := strings.LastIndex(s, sep); i >= 0 {
			s = s[i+len(sep):]
		}
	}
	if i := strings.IndexAny(s, "(<[ \t\n"); i >= 0 {
		s = s[:i]
	}
	return s
}

// firstIdentifier returns the text of the first identifier-kind leaf in a
// subtree.
func firstIdentifier(node *tree_sitter.Node, src []byte) string {
	if node.ChildCount() == 0 {
		kind := node.Kind()
		if strings.Contains(kind, "identifier") || kind == "field_identifier" {
			return string(src[node.StartByte():node.EndByte()])
		}
		return ""
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil {
			if id := firstIdentifier(child, src); id != "" {
				return id
			}
		}
	}
	return ""
}

// ModuleName derives the dotted module path recorded as the file's module
// symbol: separators become dots and the extension is dropped.
func ModuleName(filePath string) string {
	p := strings.TrimPrefix(filePath, "./")
	if i := strings.LastIndex(p, "."); i > 0 {
		p = p[:i]
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	return strings.ReplaceAll(p, "/", ".")
}
