package config

import "testing"

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := Default()
	cfg.Performance.MaxGoroutines = 0
	cfg.Performance.ParallelFileWorkers = 0

	validator := NewValidator()
	if err := validator.ValidateAndSetDefaults(cfg); err != nil {
		t.Fatalf("ValidateAndSetDefaults failed: %v", err)
	}

	if cfg.Performance.MaxGoroutines == 0 {
		t.Errorf("MaxGoroutines should have been set from the CPU count")
	}
	if cfg.Performance.ParallelFileWorkers == 0 {
		t.Errorf("ParallelFileWorkers should have been set from the CPU count")
	}
}

func TestValidateProjectConfig(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateProjectConfig(&Project{Root: "/test/root", Name: "test-project"}); err != nil {
		t.Errorf("expected no error for valid config, got %v", err)
	}
	if err := validator.validateProjectConfig(&Project{Root: "", Name: "test-project"}); err == nil {
		t.Errorf("expected error for empty root")
	}
}

func TestValidateIndexConfig(t *testing.T) {
	validator := NewValidator()

	valid := Index{MaxFileSize: 1024 * 1024, MaxTotalSizeMB: 1000, MaxFileCount: 10000, AbortRatio: 0.5}
	if err := validator.validateIndexConfig(&valid); err != nil {
		t.Errorf("expected no error for valid config, got %v", err)
	}

	zeroSize := valid
	zeroSize.MaxFileSize = 0
	if err := validator.validateIndexConfig(&zeroSize); err == nil {
		t.Errorf("expected error for zero MaxFileSize")
	}

	zeroTotal := valid
	zeroTotal.MaxTotalSizeMB = 0
	if err := validator.validateIndexConfig(&zeroTotal); err == nil {
		t.Errorf("expected error for zero MaxTotalSizeMB")
	}

	zeroCount := valid
	zeroCount.MaxFileCount = 0
	if err := validator.validateIndexConfig(&zeroCount); err == nil {
		t.Errorf("expected error for zero MaxFileCount")
	}

	badRatio := valid
	badRatio.AbortRatio = 0
	if err := validator.validateIndexConfig(&badRatio); err == nil {
		t.Errorf("expected error for zero abort_ratio")
	}

	badRatio2 := valid
	badRatio2.AbortRatio = 1.5
	if err := validator.validateIndexConfig(&badRatio2); err == nil {
		t.Errorf("expected error for abort_ratio > 1")
	}
}

func TestValidatePerformanceConfig(t *testing.T) {
	validator := NewValidator()

	if err := validator.validatePerformanceConfig(&Performance{MaxGoroutines: 4, ParallelFileWorkers: 8}); err != nil {
		t.Errorf("expected no error for valid config, got %v", err)
	}
	if err := validator.validatePerformanceConfig(&Performance{MaxGoroutines: 0, ParallelFileWorkers: 8}); err != nil {
		t.Errorf("MaxGoroutines = 0 (auto-detect) should not error, got %v", err)
	}
	if err := validator.validatePerformanceConfig(&Performance{MaxGoroutines: -1, ParallelFileWorkers: 8}); err == nil {
		t.Errorf("expected error for negative MaxGoroutines")
	}
	if err := validator.validatePerformanceConfig(&Performance{MaxGoroutines: 4, ParallelFileWorkers: -1}); err == nil {
		t.Errorf("expected error for negative ParallelFileWorkers")
	}
}

func TestValidateMemoryConfig(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateMemoryConfig(&Memory{TotalBudgetMB: 500, SoftPercent: 0.8, HardPercent: 0.93, EmergencyPercent: 0.98}); err != nil {
		t.Errorf("expected no error for valid config, got %v", err)
	}
	if err := validator.validateMemoryConfig(&Memory{TotalBudgetMB: 0, SoftPercent: 0.8, HardPercent: 0.93, EmergencyPercent: 0.98}); err == nil {
		t.Errorf("expected error for zero TotalBudgetMB")
	}
	if err := validator.validateMemoryConfig(&Memory{TotalBudgetMB: 500, SoftPercent: 0.9, HardPercent: 0.8, EmergencyPercent: 0.98}); err == nil {
		t.Errorf("expected error for soft > hard")
	}
}

func TestValidateSearchConfig(t *testing.T) {
	validator := NewValidator()

	valid := Search{VectorDim: 256, DefaultTopK: 10, HNSW: HNSW{M: 16, EfConstruction: 200, EfSearch: 64}}
	if err := validator.validateSearchConfig(&valid); err != nil {
		t.Errorf("expected no error for valid config, got %v", err)
	}

	badDim := valid
	badDim.VectorDim = 0
	if err := validator.validateSearchConfig(&badDim); err == nil {
		t.Errorf("expected error for zero VectorDim")
	}

	badTopK := valid
	badTopK.DefaultTopK = -1
	if err := validator.validateSearchConfig(&badTopK); err == nil {
		t.Errorf("expected error for negative DefaultTopK")
	}
}

func TestValidateTraversalConfig(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateTraversalConfig(&Traversal{MaxDepth: 4, EdgeWeights: DefaultEdgeWeights()}); err != nil {
		t.Errorf("expected no error for valid config, got %v", err)
	}
	if err := validator.validateTraversalConfig(&Traversal{MaxDepth: 0, EdgeWeights: DefaultEdgeWeights()}); err == nil {
		t.Errorf("expected error for zero MaxDepth")
	}
	if err := validator.validateTraversalConfig(&Traversal{MaxDepth: 4, EdgeWeights: map[string]float64{"call": 1.5}}); err == nil {
		t.Errorf("expected error for out-of-range edge weight")
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := Default()
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig failed: %v", err)
	}

	invalidCfg := Default()
	invalidCfg.Project.Root = ""
	if err := ValidateConfig(invalidCfg); err == nil {
		t.Errorf("expected error for invalid config")
	}
}

func TestSetSmartDefaults(t *testing.T) {
	cfg := Default()
	cfg.Performance.MaxGoroutines = 0
	cfg.Index.MaxParsers = 0
	cfg.Traversal.EdgeWeights = nil
	cfg.Classifier.StopWords = nil

	validator := NewValidator()
	validator.setSmartDefaults(cfg)

	if cfg.Performance.MaxGoroutines == 0 {
		t.Errorf("MaxGoroutines should have been set")
	}
	if cfg.Index.MaxParsers == 0 {
		t.Errorf("MaxParsers should have been set")
	}
	if len(cfg.Traversal.EdgeWeights) == 0 {
		t.Errorf("EdgeWeights should have been restored to defaults")
	}
	if len(cfg.Classifier.StopWords) == 0 {
		t.Errorf("StopWords should have been restored to defaults")
	}
}

func BenchmarkValidateAndSetDefaults(b *testing.B) {
	validator := NewValidator()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		testCfg := *Default()
		_ = validator.ValidateAndSetDefaults(&testCfg)
	}
}
