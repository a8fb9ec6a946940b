package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/scooter-lacroix/leindex/internal/config"
	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/parser"
)

// DiscoveredFile is one candidate source file.
type DiscoveredFile struct {
	// RelPath is root-relative with forward slashes; the engine's canonical
	// file key.
	RelPath  string
	AbsPath  string
	Language string
	Size     int64
	MtimeNs  int64
}

// Discover walks the project root and returns parseable files in sorted
// order, honoring include/exclude globs, .gitignore, size and count limits,
// and rejecting paths that escape the root through symlinks.
func Discover(cfg *config.Config, adapter *parser.Adapter) ([]DiscoveredFile, error) {
	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, lcierr.NewInvalidPathError(cfg.Project.Root, err.Error())
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, lcierr.NewInvalidPathError(root, "not a readable directory")
	}

	var ignore *ignoreRules
	if cfg.Index.RespectGitignore {
		ignore = loadIgnoreRules(root)
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		rootResolved = root
	}

	var files []DiscoveredFile
	var totalBytes int64
	visitedDirs := make(map[string]bool)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			// Symlink cycles: skip directories already visited through
			// another name.
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				return filepath.SkipDir
			}
			if visitedDirs[real] {
				return filepath.SkipDir
			}
			visitedDirs[real] = true
			if !strings.HasPrefix(real+string(filepath.Separator), rootResolved+string(filepath.Separator)) {
				return filepath.SkipDir // escapes the project root
			}
			if excluded(cfg, rel+"/") || excluded(cfg, rel) {
				return filepath.SkipDir
			}
			if ignore != nil && ignore.Ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !cfg.Index.FollowSymlinks {
			return nil
		}
		if excluded(cfg, rel) {
			return nil
		}
		if ignore != nil && ignore.Ignored(rel, false) {
			return nil
		}
		if len(cfg.Include) > 0 && !included(cfg, rel) {
			return nil
		}

		language, ok := adapter.LanguageForPath(rel)
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if cfg.Index.MaxFileSize > 0 && info.Size() > cfg.Index.MaxFileSize {
			return nil
		}
		if cfg.Index.MaxFileCount > 0 && len(files) >= cfg.Index.MaxFileCount {
			return filepath.SkipAll
		}
		if limit := cfg.Index.MaxTotalSizeMB * 1024 * 1024; limit > 0 && totalBytes+info.Size() > limit {
			return filepath.SkipAll
		}

		totalBytes += info.Size()
		files = append(files, DiscoveredFile{
			RelPath:  rel,
			AbsPath:  path,
			Language: language,
			Size:     info.Size(),
			MtimeNs:  info.ModTime().UnixNano(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, lcierr.NewIoError("discover files", walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func excluded(cfg *config.Config, rel string) bool {
	for _, pattern := range cfg.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func included(cfg *config.Config, rel string) bool {
	for _, pattern := range cfg.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
