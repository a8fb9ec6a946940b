package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL loads configuration from <projectRoot>/.leindex.kdl. A missing file
// is not an error: callers fall back to Default().
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ".leindex.kdl")

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .leindex.kdl: %w", err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	if cfg.Project.Root != "" {
		var absRoot string
		if filepath.IsAbs(cfg.Project.Root) {
			absRoot = cfg.Project.Root
		} else {
			absRoot = filepath.Join(projectRoot, cfg.Project.Root)
		}
		cfg.Project.Root = filepath.Clean(absRoot)
	} else if absRoot, err := filepath.Abs(projectRoot); err == nil {
		cfg.Project.Root = absRoot
	} else {
		cfg.Project.Root = projectRoot
	}

	return cfg, nil
}

// parseKDL walks the KDL document tree into a Config seeded with Default()
// values, overriding whichever nodes are present.
func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			parseIndexNode(cfg, n)
		case "performance":
			parsePerformanceNode(cfg, n)
		case "memory":
			parseMemoryNode(cfg, n)
		case "search":
			parseSearchNode(cfg, n)
		case "traversal":
			parseTraversalNode(cfg, n)
		case "classifier":
			parseClassifierNode(cfg, n)
		case "store":
			parseStoreNode(cfg, n)
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		}
	}

	cfg.Exclude = DeduplicatePatterns(cfg.Exclude)
	return cfg, nil
}

func parseIndexNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "max_file_size":
			if s, ok := firstStringArg(cn); ok {
				if sz, err := parseSize(s); err == nil {
					cfg.Index.MaxFileSize = sz
				}
			} else if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxFileSize = int64(v)
			}
		case "max_total_size_mb":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxTotalSizeMB = int64(v)
			}
		case "max_file_count":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxFileCount = v
			}
		case "follow_symlinks":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.FollowSymlinks = b
			}
		case "respect_gitignore":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.RespectGitignore = b
			}
		case "watch_mode":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.WatchMode = b
			}
		case "watch_debounce_ms":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.WatchDebounceMs = v
			}
		case "max_parsers":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxParsers = v
			}
		case "batch_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.BatchSize = v
			}
		case "abort_ratio":
			if v, ok := firstFloatArg(cn); ok {
				cfg.Index.AbortRatio = v
			}
		}
	}
}

func parsePerformanceNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "max_goroutines":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.MaxGoroutines = v
			}
		case "parallel_file_workers":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.ParallelFileWorkers = v
			}
		case "indexing_timeout_sec":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.IndexingTimeoutSec = v
			}
		case "startup_delay_ms":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.StartupDelayMs = v
			}
		}
	}
}

func parseMemoryNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "total_budget_mb":
			if v, ok := firstIntArg(cn); ok {
				cfg.Memory.TotalBudgetMB = v
			}
		case "soft_percent":
			if v, ok := firstFloatArg(cn); ok {
				cfg.Memory.SoftPercent = v
			}
		case "hard_percent":
			if v, ok := firstFloatArg(cn); ok {
				cfg.Memory.HardPercent = v
			}
		case "emergency_percent":
			if v, ok := firstFloatArg(cn); ok {
				cfg.Memory.EmergencyPercent = v
			}
		case "sample_interval_s":
			if v, ok := firstIntArg(cn); ok {
				cfg.Memory.SampleIntervalS = v
			}
		}
	}
}

func parseSearchNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "vector_dim":
			if v, ok := firstIntArg(cn); ok {
				cfg.Search.VectorDim = v
			}
		case "k_struct":
			if v, ok := firstIntArg(cn); ok {
				cfg.Search.KStruct = v
			}
		case "default_top_k":
			if v, ok := firstIntArg(cn); ok {
				cfg.Search.DefaultTopK = v
			}
		case "threshold":
			if v, ok := firstFloatArg(cn); ok {
				cfg.Search.Threshold = v
			}
		case "hnsw":
			for _, hn := range cn.Children {
				switch nodeName(hn) {
				case "m":
					if v, ok := firstIntArg(hn); ok {
						cfg.Search.HNSW.M = v
					}
				case "ef_construction":
					if v, ok := firstIntArg(hn); ok {
						cfg.Search.HNSW.EfConstruction = v
					}
				case "ef_search":
					if v, ok := firstIntArg(hn); ok {
						cfg.Search.HNSW.EfSearch = v
					}
				}
			}
		case "ranking":
			for _, rn := range cn.Children {
				switch nodeName(rn) {
				case "enabled":
					if b, ok := firstBoolArg(rn); ok {
						cfg.Search.Ranking.Enabled = b
					}
				case "code_file_boost":
					if v, ok := firstFloatArg(rn); ok {
						cfg.Search.Ranking.CodeFileBoost = v
					}
				case "doc_file_penalty":
					if v, ok := firstFloatArg(rn); ok {
						cfg.Search.Ranking.DocFilePenalty = v
					}
				case "config_file_boost":
					if v, ok := firstFloatArg(rn); ok {
						cfg.Search.Ranking.ConfigFileBoost = v
					}
				case "require_symbol":
					if b, ok := firstBoolArg(rn); ok {
						cfg.Search.Ranking.RequireSymbol = b
					}
				case "non_symbol_penalty":
					if v, ok := firstFloatArg(rn); ok {
						cfg.Search.Ranking.NonSymbolPenalty = v
					}
				}
			}
		}
	}
}

func parseTraversalNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "max_depth":
			if v, ok := firstIntArg(cn); ok {
				cfg.Traversal.MaxDepth = v
			}
		case "edge_weights":
			for _, en := range cn.Children {
				if v, ok := firstFloatArg(en); ok {
					cfg.Traversal.EdgeWeights[nodeName(en)] = v
				}
			}
		}
	}
}

func parseClassifierNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		if nodeName(cn) == "stop_words" {
			if words := collectStringArgs(cn); len(words) > 0 {
				cfg.Classifier.StopWords = words
			}
		}
	}
}

func parseStoreNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "wal_enabled":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Store.WALEnabled = b
			}
		case "cache_pages":
			if v, ok := firstIntArg(cn); ok {
				cfg.Store.CachePages = v
			}
		}
	}
}

// ---- kdl-go document helpers ----

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("config: invalid numeric value for %q, got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
