package index

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ignoreRules is a compact .gitignore matcher: each pattern becomes a
// doublestar glob, later rules win, and `!` re-includes. Only the project
// root's .gitignore is consulted; nested ignore files are rare enough in
// indexed trees that the default excludes cover them.
type ignoreRules struct {
	rules []ignoreRule
}

type ignoreRule struct {
	pattern string
	negate  bool
	dirOnly bool
}

func loadIgnoreRules(root string) *ignoreRules {
	ig := &ignoreRules{}
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return ig
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule := ignoreRule{}
		if strings.HasPrefix(line, "!") {
			rule.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			rule.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		anchored := strings.HasPrefix(line, "/")
		line = strings.TrimPrefix(line, "/")
		if line == "" {
			continue
		}
		if !anchored && !strings.Contains(line, "/") {
			line = "**/" + line
		}
		rule.pattern = line
		ig.rules = append(ig.rules, rule)
	}
	return ig
}

// Ignored reports whether a root-relative slash path is excluded. isDir
// lets directory-only rules prune whole subtrees.
func (ig *ignoreRules) Ignored(relPath string, isDir bool) bool {
	ignored := false
	for _, rule := range ig.rules {
		if rule.dirOnly && !isDir {
			// A file under an ignored directory still matches via the
			// `pattern/**` form.
			if ok, _ := doublestar.Match(rule.pattern+"/**", relPath); !ok {
				continue
			}
		} else if ok, _ := doublestar.Match(rule.pattern, relPath); !ok {
			if !rule.dirOnly {
				continue
			}
			if ok2, _ := doublestar.Match(rule.pattern+"/**", relPath); !ok2 {
				continue
			}
		}
		ignored = !rule.negate
	}
	return ignored
}
