// Package types defines the shared data model used across the indexing engine:
// identifiers, symbol and edge kinds, the immutable SymbolRecord produced by
// parsing, and the small value types (ScoreTuple, ByteRange) threaded through
// the PDG, search, and cache layers.
package types

import "fmt"

// FileID identifies a source file within a single project's index.
type FileID uint32

// SymbolID is a stable, dense integer identifying a node within a single PDG
// instance. It is opaque to callers outside the pdg package.
type SymbolID uint64

// ProjectID identifies a project for cross-project resolution.
type ProjectID string

// SymbolKind enumerates the kinds of symbols the parser can produce.
type SymbolKind uint8

const (
	KindFunction SymbolKind = iota
	KindMethod
	KindClass
	KindModule
	KindField
)

func (k SymbolKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindMethod:
		return "method"
	case KindClass:
		return "class"
	case KindModule:
		return "module"
	case KindField:
		return "field"
	default:
		return "unknown"
	}
}

// ParseSymbolKind parses the string form written by String().
func ParseSymbolKind(s string) (SymbolKind, error) {
	switch s {
	case "function":
		return KindFunction, nil
	case "method":
		return KindMethod, nil
	case "class":
		return KindClass, nil
	case "module":
		return KindModule, nil
	case "field":
		return KindField, nil
	default:
		return 0, fmt.Errorf("types: unknown symbol kind %q", s)
	}
}

// EdgeKind enumerates the kinds of edges the PDG stores.
type EdgeKind uint8

const (
	EdgeCall EdgeKind = iota
	EdgeContains
	EdgeInherits
	EdgeReads
	EdgeWrites
	EdgeImports
	EdgeOverrides
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeCall:
		return "call"
	case EdgeContains:
		return "contains"
	case EdgeInherits:
		return "inherits"
	case EdgeReads:
		return "reads"
	case EdgeWrites:
		return "writes"
	case EdgeImports:
		return "imports"
	case EdgeOverrides:
		return "overrides"
	default:
		return "unknown"
	}
}

// ByteRange is a half-open [Start, End) span into a source buffer.
type ByteRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes the range spans.
func (r ByteRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// ComplexityMetrics is the set of raw measurements the parser records per
// symbol. The derived scalar complexity lives in the pdg package, the
// sole owner of the scalar formula.
type ComplexityMetrics struct {
	Cyclomatic   int
	NestingDepth int
	LineCount    int
	TokenCount   int
}

// Parameter describes one formal parameter of a function/method symbol.
type Parameter struct {
	Name string
	Type string // empty when the source language has no static type annotation
}

// SymbolRecord is produced by a ParserAdapter and is immutable after
// construction.
type SymbolRecord struct {
	QualifiedName string
	DisplayName   string
	Kind          SymbolKind
	Language      string
	FilePath      string
	ByteRange     ByteRange

	Parameters []Parameter
	ReturnType string // empty when not applicable
	IsAsync    bool

	Calls []string // unresolved callee names, in call-site order

	// Supertypes lists unresolved parent class/interface names for class
	// kinds; Imports lists imported module names for module kinds.
	Supertypes []string
	Imports    []string

	Complexity ComplexityMetrics

	Embedding []float32 // optional, pre-computed; nil when absent
}

// ScoreTuple is the breakdown of a search result's score. Every
// component, including Overall, is guaranteed to be in [0,1] by SearchEngine.
type ScoreTuple struct {
	Semantic   float64 `json:"semantic"`
	Structural float64 `json:"structural"`
	Text       float64 `json:"text"`
	Overall    float64 `json:"overall"`
}

// Clamp01 clamps x into [0,1], the invariant every ScoreTuple field must hold.
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
