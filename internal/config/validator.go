package config

import (
	"errors"
	"fmt"
	"runtime"

	lcierrors "github.com/scooter-lacroix/leindex/internal/errors"
)

// Validator validates configuration and fills in any zero-valued fields with
// runtime-derived defaults.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults.
// Returns a *lcierrors.ConfigError on the first field that fails validation.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return lcierrors.NewConfigError("project", cfg.Project.Root, err)
	}
	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return lcierrors.NewConfigError("index", "", err)
	}
	if err := v.validatePerformanceConfig(&cfg.Performance); err != nil {
		return lcierrors.NewConfigError("performance", "", err)
	}
	if err := v.validateMemoryConfig(&cfg.Memory); err != nil {
		return lcierrors.NewConfigError("memory", "", err)
	}
	if err := v.validateSearchConfig(&cfg.Search); err != nil {
		return lcierrors.NewConfigError("search", "", err)
	}
	if err := v.validateTraversalConfig(&cfg.Traversal); err != nil {
		return lcierrors.NewConfigError("traversal", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateIndexConfig(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("index.max_file_size must be positive, got %d", index.MaxFileSize)
	}
	if index.MaxTotalSizeMB <= 0 {
		return fmt.Errorf("index.max_total_size_mb must be positive, got %d", index.MaxTotalSizeMB)
	}
	if index.MaxFileCount <= 0 {
		return fmt.Errorf("index.max_file_count must be positive, got %d", index.MaxFileCount)
	}
	if index.AbortRatio <= 0 || index.AbortRatio > 1 {
		return fmt.Errorf("index.abort_ratio must be in (0, 1], got %f", index.AbortRatio)
	}
	if index.MaxParsers < 0 {
		return fmt.Errorf("index.max_parsers cannot be negative, got %d", index.MaxParsers)
	}
	return nil
}

func (v *Validator) validatePerformanceConfig(perf *Performance) error {
	if perf.MaxGoroutines < 0 {
		return fmt.Errorf("performance.max_goroutines cannot be negative, got %d", perf.MaxGoroutines)
	}
	if perf.ParallelFileWorkers < 0 {
		return fmt.Errorf("performance.parallel_file_workers cannot be negative, got %d", perf.ParallelFileWorkers)
	}
	return nil
}

func (v *Validator) validateMemoryConfig(mem *Memory) error {
	if mem.TotalBudgetMB <= 0 {
		return fmt.Errorf("memory.total_budget_mb must be positive, got %d", mem.TotalBudgetMB)
	}
	if !(0 < mem.SoftPercent && mem.SoftPercent < mem.HardPercent && mem.HardPercent < mem.EmergencyPercent && mem.EmergencyPercent <= 1) {
		return fmt.Errorf("memory thresholds must satisfy 0 < soft < hard < emergency <= 1, got soft=%f hard=%f emergency=%f",
			mem.SoftPercent, mem.HardPercent, mem.EmergencyPercent)
	}
	return nil
}

func (v *Validator) validateSearchConfig(search *Search) error {
	if search.VectorDim <= 0 {
		return fmt.Errorf("search.vector_dim must be positive, got %d", search.VectorDim)
	}
	if search.DefaultTopK <= 0 {
		return fmt.Errorf("search.default_top_k must be positive, got %d", search.DefaultTopK)
	}
	if search.HNSW.M <= 0 || search.HNSW.EfConstruction <= 0 || search.HNSW.EfSearch <= 0 {
		return fmt.Errorf("search.hnsw parameters must be positive, got m=%d ef_construction=%d ef_search=%d",
			search.HNSW.M, search.HNSW.EfConstruction, search.HNSW.EfSearch)
	}
	return nil
}

func (v *Validator) validateTraversalConfig(trav *Traversal) error {
	if trav.MaxDepth <= 0 {
		return fmt.Errorf("traversal.max_depth must be positive, got %d", trav.MaxDepth)
	}
	for kind, w := range trav.EdgeWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("traversal.edge_weights.%s must be in [0, 1], got %f", kind, w)
		}
	}
	return nil
}

// setSmartDefaults fills in zero-valued fields that mean "auto-detect".
func (v *Validator) setSmartDefaults(cfg *Config) {
	numCPU := runtime.NumCPU()

	if cfg.Performance.MaxGoroutines == 0 {
		cfg.Performance.MaxGoroutines = max(1, numCPU-1)
	}
	if cfg.Performance.ParallelFileWorkers == 0 {
		cfg.Performance.ParallelFileWorkers = max(1, numCPU-1)
	}
	if cfg.Index.MaxParsers == 0 {
		cfg.Index.MaxParsers = numCPU
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = 512
	}
	if len(cfg.Traversal.EdgeWeights) == 0 {
		cfg.Traversal.EdgeWeights = DefaultEdgeWeights()
	}
	if len(cfg.Classifier.StopWords) == 0 {
		cfg.Classifier.StopWords = DefaultStopWords()
	}
}

// ValidateConfig is a convenience wrapper for quick validation.
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
