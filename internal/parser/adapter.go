// Package parser is the language dispatcher: it maps a language tag to a
// tree-sitter grammar, parses source bytes, and extracts an ordered list of
// SymbolRecords for the definitions in the file. The adapter is stateless
// from the caller's point of view and safe for parallel use across files;
// tree-sitter parser instances are pooled per language because they are not
// themselves re-entrant.
package parser

import (
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// Adapter parses source files for every registered language.
type Adapter struct {
	specs map[string]*languageSpec
	pools map[string]*sync.Pool
}

// New builds an adapter with the full language registry.
func New() *Adapter {
	a := &Adapter{
		specs: make(map[string]*languageSpec),
		pools: make(map[string]*sync.Pool),
	}
	for _, spec := range languageRegistry() {
		spec := spec
		a.specs[spec.tag] = spec
		for _, alias := range spec.aliases {
			a.specs[alias] = spec
		}
		a.pools[spec.tag] = &sync.Pool{New: func() any {
			p := tree_sitter.NewParser()
			if err := p.SetLanguage(spec.grammar); err != nil {
				return nil
			}
			return p
		}}
	}
	return a
}

// Languages returns the registered canonical language tags.
func (a *Adapter) Languages() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, spec := range a.specs {
		if !seen[spec.tag] {
			seen[spec.tag] = true
			tags = append(tags, spec.tag)
		}
	}
	return tags
}

// LanguageForPath maps a file name to a canonical tag; ok is false for
// unrecognized extensions.
func (a *Adapter) LanguageForPath(path string) (string, bool) {
	for _, spec := range a.specs {
		for _, ext := range spec.extensions {
			if hasSuffixFold(path, ext) {
				return spec.tag, true
			}
		}
	}
	return "", false
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := 0; i < len(suffix); i++ {
		c, d := tail[i], suffix[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != d {
			return false
		}
	}
	return true
}

// Parse extracts SymbolRecords from src. filePath is recorded on each
// record and seeds the qualified-name prefix; byte ranges address into src.
func (a *Adapter) Parse(language string, filePath string, src []byte) ([]types.SymbolRecord, error) {
	spec, ok := a.specs[language]
	if !ok {
		return nil, lcierr.NewUnsupportedLanguageError(language)
	}

	pool := a.pools[spec.tag]
	pv := pool.Get()
	if pv == nil {
		return nil, lcierr.NewParseFailedError(filePath, lcierr.NewUnsupportedLanguageError(language))
	}
	p := pv.(*tree_sitter.Parser)
	defer pool.Put(p)

	tree := p.Parse(src, nil)
	if tree == nil {
		return nil, lcierr.NewParseFailedError(filePath, nil)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, lcierr.NewParseFailedError(filePath, nil)
	}
	if root.HasError() {
		pos, msg := firstSyntaxError(root, spec, src)
		return nil, lcierr.NewSyntaxError(filePath, pos, msg)
	}

	ex := &extractor{spec: spec, src: src, filePath: filePath}
	return ex.run(root), nil
}
