// Package config loads and validates engine configuration: a Go struct tree
// of defaults, populated from a project's .leindex.kdl
// (primary) and config.toml (secondary override layer).
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// SearchRankingScoreConstants are the defaults for file-type ranking
// preferences used by both code and configuration parsing.
const (
	DefaultCodeFileBoost    = 50.0
	DefaultDocFilePenalty   = -20.0
	DefaultConfigFileBoost  = 10.0
	DefaultNonSymbolPenalty = -30.0
)

// Config is the fully resolved engine configuration.
type Config struct {
	Version     int
	Project     Project
	Index       Index
	Performance Performance
	Memory      Memory
	Search      Search
	Traversal   Traversal
	Classifier  Classifier
	Store       StoreConfig
	Include     []string
	Exclude     []string
}

// Project identifies the root directory being indexed.
type Project struct {
	Root string
	Name string
}

// Index controls file discovery (Orchestrator step 1).
type Index struct {
	MaxFileSize      int64
	MaxTotalSizeMB   int64
	MaxFileCount     int
	FollowSymlinks   bool
	RespectGitignore bool
	WatchMode        bool
	WatchDebounceMs  int
	MaxParsers       int     // index.max_parsers
	BatchSize        int     // index.batch_size
	AbortRatio       float64 // index.abort_ratio
}

// Performance controls the worker pools and timeouts used during indexing.
type Performance struct {
	MaxGoroutines       int
	ParallelFileWorkers int // 0 = auto-detect (NumCPU)
	IndexingTimeoutSec  int
	StartupDelayMs      int
}

// Memory configures MemoryManager.
type Memory struct {
	TotalBudgetMB    int
	SoftPercent      float64
	HardPercent      float64
	EmergencyPercent float64
	SampleIntervalS  int
}

// HNSW configures the VectorIndex's HNSW mode.
type HNSW struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// Search configures SearchEngine ranking and the VectorIndex dimension.
type Search struct {
	VectorDim   int
	KStruct     int // K_struct in the structural_score formula
	HNSW        HNSW
	DefaultTopK int
	Threshold   float64
	Ranking     SearchRanking
}

// SearchRanking controls file-type and symbol preference in text scoring.
type SearchRanking struct {
	Enabled          bool
	CodeFileBoost    float64
	DocFilePenalty   float64
	ConfigFileBoost  float64
	RequireSymbol    bool
	NonSymbolPenalty float64
	ExtensionWeights map[string]float64
}

// Traversal configures GravityTraversal.
type Traversal struct {
	MaxDepth    int
	EdgeWeights map[string]float64
}

// Classifier configures QueryClassifier.
type Classifier struct {
	StopWords []string
}

// StoreConfig configures the durable Store.
type StoreConfig struct {
	WALEnabled bool
	CachePages int
}

// DefaultEdgeWeights is the per-edge-kind base weight table gravity
// traversal starts from.
func DefaultEdgeWeights() map[string]float64 {
	return map[string]float64{
		"contains":  1.0,
		"call":      0.8,
		"inherits":  0.6,
		"overrides": 0.7,
		"reads":     0.4,
		"writes":    0.4,
		"imports":   0.3,
	}
}

// DefaultStopWords is the closed stop-word list the classifier drops from
// query terms; overridable via classifier.stop_words.
func DefaultStopWords() []string {
	return []string{
		"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
		"how", "does", "do", "did", "where", "what", "which", "who", "why",
		"show", "me", "please", "to", "of", "in", "on", "for", "and", "or",
		"this", "that", "it", "its",
	}
}

// Default returns a Config populated with the engine defaults, rooted at
// the current working directory.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg := &Config{
		Version: 1,
		Project: Project{Root: cwd},
		Index: Index{
			MaxFileSize:      10 * 1024 * 1024,
			MaxTotalSizeMB:   500,
			MaxFileCount:     10000,
			FollowSymlinks:   false,
			RespectGitignore: true,
			WatchMode:        true,
			WatchDebounceMs:  300,
			MaxParsers:       runtime.NumCPU(),
			BatchSize:        512,
			AbortRatio:       0.5,
		},
		Performance: Performance{
			MaxGoroutines:       runtime.NumCPU(),
			ParallelFileWorkers: 0,
			IndexingTimeoutSec:  120,
			StartupDelayMs:      1500,
		},
		Memory: Memory{
			TotalBudgetMB:    500,
			SoftPercent:      0.80,
			HardPercent:      0.93,
			EmergencyPercent: 0.98,
			SampleIntervalS:  30,
		},
		Search: Search{
			VectorDim:   256,
			KStruct:     10,
			HNSW:        HNSW{M: 16, EfConstruction: 200, EfSearch: 64},
			DefaultTopK: 10,
			Threshold:   0,
			Ranking: SearchRanking{
				Enabled:          true,
				CodeFileBoost:    DefaultCodeFileBoost,
				DocFilePenalty:   DefaultDocFilePenalty,
				ConfigFileBoost:  DefaultConfigFileBoost,
				RequireSymbol:    false,
				NonSymbolPenalty: DefaultNonSymbolPenalty,
			},
		},
		Traversal: Traversal{
			MaxDepth:    4,
			EdgeWeights: DefaultEdgeWeights(),
		},
		Classifier: Classifier{
			StopWords: DefaultStopWords(),
		},
		Store: StoreConfig{
			WALEnabled: true,
			CachePages: 2000,
		},
		Include: []string{},
		Exclude: defaultExcludes(),
	}
	return cfg
}

// Load resolves the configuration for a project root: .leindex.kdl when
// present, else defaults, then the config.toml override layer, then
// validation.
func Load(projectRoot string) (*Config, error) {
	cfg, err := LoadKDL(projectRoot)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
		if abs, err := filepath.Abs(projectRoot); err == nil {
			cfg.Project.Root = abs
		} else {
			cfg.Project.Root = projectRoot
		}
	}
	if err := LoadTOMLOverrides(cfg); err != nil {
		return nil, err
	}
	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultExcludes() []string {
	return []string{
		"**/.git/**",
		"**/.*/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/bower_components/**",
		"**/dist/**",
		"**/build/**",
		"**/out/**",
		"**/target/**",
		"**/bin/**",
		"**/obj/**",
		"**/*.min.js",
		"**/*.min.css",
		"**/__pycache__/**",
		"**/*.pyc",
		"**/Thumbs.db",
		"**/logs/**",
		"**/*.log",
	}
}

// DeduplicatePatterns removes repeated glob patterns, preserving first
// occurrence order.
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := patterns[:0]
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
