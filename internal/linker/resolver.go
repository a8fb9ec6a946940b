// Package linker resolves the unresolved call names recorded by the parser
// against a project's symbol index. Resolution is per-language: each
// language defines how a bare callee name maps onto candidate qualified
// names (same class first, then same module, then anywhere in the project).
package linker

import (
	"sort"
	"strings"

	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// Index is the lookup surface the linker needs; *pdg.Graph satisfies it.
type Index interface {
	FindBySymbol(project types.ProjectID, qname string) (pdg.NodeID, bool)
}

// Resolver resolves call names for one project.
type Resolver struct {
	project types.ProjectID
	index   Index

	// byName maps a bare display name to every qualified name carrying it,
	// sorted for deterministic candidate order.
	byName map[string][]string
}

// NewResolver builds the bare-name table from the project's symbols.
func NewResolver(project types.ProjectID, index Index, qualifiedNames []string) *Resolver {
	byName := make(map[string][]string)
	for _, qname := range qualifiedNames {
		bare := qname
		if i := strings.LastIndex(qname, "."); i >= 0 {
			bare = qname[i+1:]
		}
		byName[bare] = append(byName[bare], qname)
	}
	for _, names := range byName {
		sort.Strings(names)
	}
	return &Resolver{project: project, index: index, byName: byName}
}

// normalize strips the language's receiver/namespace syntax down to the
// bare name the byName table is keyed on.
func normalize(language, callee string) string {
	switch language {
	case "python":
		callee = strings.TrimPrefix(callee, "self.")
		callee = strings.TrimPrefix(callee, "cls.")
	case "javascript", "typescript":
		callee = strings.TrimPrefix(callee, "this.")
	case "php":
		callee = strings.TrimPrefix(callee, "$this->")
		callee = strings.TrimPrefix(callee, "self::")
	case "cpp", "c", "rust":
		if i := strings.LastIndex(callee, "::"); i >= 0 {
			callee = callee[i+2:]
		}
	}
	if i := strings.LastIndex(callee, "."); i >= 0 {
		callee = callee[i+1:]
	}
	return callee
}

// Resolve maps one callee name, as seen from caller, to a node id. Scoping
// preference: a sibling in the caller's class, then the caller's module,
// then the lexicographically first project-wide candidate. ok is false for
// names the project does not define (stdlib, third-party).
func (r *Resolver) Resolve(caller types.SymbolRecord, callee string) (pdg.NodeID, bool) {
	bare := normalize(caller.Language, callee)
	if bare == "" {
		return 0, false
	}

	// Same scope chain first: walk the caller's qualifier outward.
	qualifier := caller.QualifiedName
	for {
		i := strings.LastIndex(qualifier, ".")
		if i < 0 {
			break
		}
		qualifier = qualifier[:i]
		if id, ok := r.index.FindBySymbol(r.project, qualifier+"."+bare); ok {
			return id, true
		}
	}

	candidates := r.byName[bare]
	if len(candidates) == 0 {
		return 0, false
	}
	for _, qname := range candidates {
		if id, ok := r.index.FindBySymbol(r.project, qname); ok {
			return id, true
		}
	}
	return 0, false
}
