package parser

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/scooter-lacroix/leindex/internal/types"
)

// languageSpec declares, per language, which AST node kinds produce symbols,
// which ones are call sites, and which ones add a cyclomatic branch. The
// extractor walks every tree with the same algorithm; only these tables
// differ between languages.
type languageSpec struct {
	tag        string
	aliases    []string
	extensions []string
	grammar    *tree_sitter.Language

	// defs maps definition node kinds to the symbol kind they produce.
	// Function kinds inside a class container are reported as methods.
	defs map[string]types.SymbolKind
	// classContainers are the node kinds whose nested functions are methods.
	classContainers map[string]bool
	// callKinds are call-site node kinds; the callee name comes from the
	// node's function/name field.
	callKinds map[string]bool
	// branchKinds add one to cyclomatic complexity each.
	branchKinds map[string]bool
	// fieldKinds produce field symbols (named via their declarator).
	fieldKinds map[string]bool
	// supertypeFields name the AST field holding a class's parents.
	supertypeFields []string
	// importKinds collect module imports attributed to the file's module
	// symbol.
	importKinds map[string]bool
	// asyncKeyword marks definitions whose first tokens include "async".
	asyncKeyword bool
	// validateJS runs the go-fast syntax check for sharper error positions.
	validateJS bool
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

func languageRegistry() []*languageSpec {
	return []*languageSpec{
		{
			tag:        "python",
			aliases:    []string{"py"},
			extensions: []string{".py"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_python.Language()),
			defs: map[string]types.SymbolKind{
				"function_definition": types.KindFunction,
				"class_definition":    types.KindClass,
			},
			classContainers: set("class_definition"),
			callKinds:       set("call"),
			branchKinds: set("if_statement", "elif_clause", "for_statement", "while_statement",
				"except_clause", "with_statement", "conditional_expression", "boolean_operator",
				"case_clause"),
			supertypeFields: []string{"superclasses"},
			importKinds:     set("import_statement", "import_from_statement"),
			asyncKeyword:    true,
		},
		{
			tag:        "javascript",
			aliases:    []string{"js", "jsx"},
			extensions: []string{".js", ".jsx", ".mjs"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_javascript.Language()),
			defs: map[string]types.SymbolKind{
				"function_declaration":           types.KindFunction,
				"generator_function_declaration": types.KindFunction,
				"method_definition":              types.KindMethod,
				"class_declaration":              types.KindClass,
			},
			classContainers: set("class_declaration", "class"),
			callKinds:       set("call_expression", "new_expression"),
			branchKinds: set("if_statement", "for_statement", "for_in_statement", "while_statement",
				"do_statement", "switch_case", "catch_clause", "ternary_expression"),
			supertypeFields: []string{"superclass"},
			importKinds:     set("import_statement"),
			asyncKeyword:    true,
			validateJS:      true,
		},
		{
			tag:        "typescript",
			aliases:    []string{"ts", "tsx"},
			extensions: []string{".ts", ".tsx"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			defs: map[string]types.SymbolKind{
				"function_declaration":           types.KindFunction,
				"generator_function_declaration": types.KindFunction,
				"method_definition":              types.KindMethod,
				"class_declaration":              types.KindClass,
				"interface_declaration":          types.KindClass,
			},
			classContainers: set("class_declaration", "interface_declaration"),
			callKinds:       set("call_expression", "new_expression"),
			branchKinds: set("if_statement", "for_statement", "for_in_statement", "while_statement",
				"do_statement", "switch_case", "catch_clause", "ternary_expression"),
			supertypeFields: []string{"superclass"},
			importKinds:     set("import_statement"),
			asyncKeyword:    true,
		},
		{
			tag:        "go",
			aliases:    []string{"golang"},
			extensions: []string{".go"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_go.Language()),
			defs: map[string]types.SymbolKind{
				"function_declaration": types.KindFunction,
				"method_declaration":   types.KindMethod,
				"type_spec":            types.KindClass,
			},
			callKinds: set("call_expression"),
			branchKinds: set("if_statement", "for_statement", "expression_case", "type_case",
				"communication_case", "default_case"),
			importKinds: set("import_declaration"),
		},
		{
			tag:        "rust",
			aliases:    []string{"rs"},
			extensions: []string{".rs"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_rust.Language()),
			defs: map[string]types.SymbolKind{
				"function_item": types.KindFunction,
				"struct_item":   types.KindClass,
				"enum_item":     types.KindClass,
				"trait_item":    types.KindClass,
			},
			classContainers: set("impl_item", "trait_item"),
			callKinds:       set("call_expression", "macro_invocation"),
			branchKinds: set("if_expression", "while_expression", "loop_expression", "for_expression",
				"match_arm"),
			importKinds:  set("use_declaration"),
			asyncKeyword: true,
		},
		{
			tag:        "java",
			extensions: []string{".java"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_java.Language()),
			defs: map[string]types.SymbolKind{
				"method_declaration":      types.KindMethod,
				"constructor_declaration": types.KindMethod,
				"class_declaration":       types.KindClass,
				"interface_declaration":   types.KindClass,
				"enum_declaration":        types.KindClass,
			},
			classContainers: set("class_declaration", "interface_declaration", "enum_declaration"),
			callKinds:       set("method_invocation", "object_creation_expression"),
			branchKinds: set("if_statement", "for_statement", "enhanced_for_statement",
				"while_statement", "do_statement", "switch_block_statement_group", "catch_clause",
				"ternary_expression"),
			fieldKinds:      set("field_declaration"),
			supertypeFields: []string{"superclass", "interfaces"},
			importKinds:     set("import_declaration"),
		},
		{
			tag:        "cpp",
			aliases:    []string{"c++", "cxx"},
			extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_cpp.Language()),
			defs: map[string]types.SymbolKind{
				"function_definition": types.KindFunction,
				"class_specifier":     types.KindClass,
				"struct_specifier":    types.KindClass,
			},
			classContainers: set("class_specifier", "struct_specifier"),
			callKinds:       set("call_expression"),
			branchKinds: set("if_statement", "for_statement", "while_statement", "do_statement",
				"case_statement", "catch_clause", "conditional_expression"),
			fieldKinds:      set("field_declaration"),
			supertypeFields: []string{"base_class_clause"},
			importKinds:     set("preproc_include"),
		},
		{
			// The C grammar is served by the C++ grammar, a strict superset
			// for the declarations this extractor reads.
			tag:        "c",
			extensions: []string{".c", ".h"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_cpp.Language()),
			defs: map[string]types.SymbolKind{
				"function_definition": types.KindFunction,
				"struct_specifier":    types.KindClass,
			},
			callKinds: set("call_expression"),
			branchKinds: set("if_statement", "for_statement", "while_statement", "do_statement",
				"case_statement", "conditional_expression"),
			importKinds: set("preproc_include"),
		},
		{
			tag:        "csharp",
			aliases:    []string{"cs", "c#"},
			extensions: []string{".cs"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_csharp.Language()),
			defs: map[string]types.SymbolKind{
				"method_declaration":      types.KindMethod,
				"constructor_declaration": types.KindMethod,
				"class_declaration":       types.KindClass,
				"interface_declaration":   types.KindClass,
				"struct_declaration":      types.KindClass,
				"record_declaration":      types.KindClass,
			},
			classContainers: set("class_declaration", "interface_declaration", "struct_declaration",
				"record_declaration"),
			callKinds: set("invocation_expression", "object_creation_expression"),
			branchKinds: set("if_statement", "for_statement", "foreach_statement", "while_statement",
				"do_statement", "switch_section", "catch_clause", "conditional_expression"),
			fieldKinds:      set("field_declaration", "property_declaration"),
			supertypeFields: []string{"bases"},
			importKinds:     set("using_directive"),
			asyncKeyword:    true,
		},
		{
			tag:        "php",
			extensions: []string{".php"},
			grammar:    tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP()),
			defs: map[string]types.SymbolKind{
				"function_definition":   types.KindFunction,
				"method_declaration":    types.KindMethod,
				"class_declaration":     types.KindClass,
				"interface_declaration": types.KindClass,
				"trait_declaration":     types.KindClass,
			},
			classContainers: set("class_declaration", "interface_declaration", "trait_declaration"),
			callKinds:       set("function_call_expression", "member_call_expression", "object_creation_expression"),
			branchKinds: set("if_statement", "for_statement", "foreach_statement", "while_statement",
				"do_statement", "case_statement", "catch_clause", "conditional_expression"),
			fieldKinds:      set("property_declaration"),
			supertypeFields: []string{"base_clause"},
			importKinds:     set("namespace_use_declaration"),
		},
	}
}
