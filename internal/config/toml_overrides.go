package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// tomlOverrides mirrors the recognized per-project override keys. Every
// field is a pointer so an absent key leaves the KDL/default value
// untouched.
type tomlOverrides struct {
	Memory *struct {
		TotalBudgetMB    *int     `toml:"total_budget_mb"`
		SoftPercent      *float64 `toml:"soft_percent"`
		HardPercent      *float64 `toml:"hard_percent"`
		EmergencyPercent *float64 `toml:"emergency_percent"`
		SampleIntervalS  *int     `toml:"sample_interval_s"`
	} `toml:"memory"`
	Search *struct {
		VectorDim   *int     `toml:"vector_dim"`
		DefaultTopK *int     `toml:"default_top_k"`
		Threshold   *float64 `toml:"threshold"`
		HNSW        *struct {
			M              *int `toml:"M"`
			EfConstruction *int `toml:"ef_construction"`
			EfSearch       *int `toml:"ef_search"`
		} `toml:"hnsw"`
	} `toml:"search"`
	Traversal *struct {
		MaxDepth    *int               `toml:"max_depth"`
		EdgeWeights map[string]float64 `toml:"edge_weights"`
	} `toml:"traversal"`
	Index *struct {
		MaxParsers *int     `toml:"max_parsers"`
		BatchSize  *int     `toml:"batch_size"`
		AbortRatio *float64 `toml:"abort_ratio"`
	} `toml:"index"`
	Store *struct {
		WALEnabled *bool `toml:"wal_enabled"`
		CachePages *int  `toml:"cache_pages"`
	} `toml:"store"`
	Classifier *struct {
		StopWords []string `toml:"stop_words"`
	} `toml:"classifier"`
}

// LoadTOMLOverrides layers the project's config.toml on top of cfg,
// overwriting only the keys present in the file. The file lives under
// <root>/.leindex/config.toml, with <root>/config.toml as a fallback for
// hand-rolled setups. A missing file is not an error.
func LoadTOMLOverrides(cfg *Config) error {
	path := filepath.Join(cfg.Project.Root, ".leindex", "config.toml")
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		path = filepath.Join(cfg.Project.Root, "config.toml")
		content, err = os.ReadFile(path)
	}
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var o tomlOverrides
	if err := toml.Unmarshal(content, &o); err != nil {
		return err
	}
	applyOverrides(cfg, &o)
	return nil
}

func applyOverrides(cfg *Config, o *tomlOverrides) {
	if m := o.Memory; m != nil {
		setInt(&cfg.Memory.TotalBudgetMB, m.TotalBudgetMB)
		setFloat(&cfg.Memory.SoftPercent, m.SoftPercent)
		setFloat(&cfg.Memory.HardPercent, m.HardPercent)
		setFloat(&cfg.Memory.EmergencyPercent, m.EmergencyPercent)
		setInt(&cfg.Memory.SampleIntervalS, m.SampleIntervalS)
	}
	if s := o.Search; s != nil {
		setInt(&cfg.Search.VectorDim, s.VectorDim)
		setInt(&cfg.Search.DefaultTopK, s.DefaultTopK)
		setFloat(&cfg.Search.Threshold, s.Threshold)
		if h := s.HNSW; h != nil {
			setInt(&cfg.Search.HNSW.M, h.M)
			setInt(&cfg.Search.HNSW.EfConstruction, h.EfConstruction)
			setInt(&cfg.Search.HNSW.EfSearch, h.EfSearch)
		}
	}
	if tr := o.Traversal; tr != nil {
		setInt(&cfg.Traversal.MaxDepth, tr.MaxDepth)
		for kind, weight := range tr.EdgeWeights {
			cfg.Traversal.EdgeWeights[kind] = weight
		}
	}
	if i := o.Index; i != nil {
		setInt(&cfg.Index.MaxParsers, i.MaxParsers)
		setInt(&cfg.Index.BatchSize, i.BatchSize)
		setFloat(&cfg.Index.AbortRatio, i.AbortRatio)
	}
	if st := o.Store; st != nil {
		if st.WALEnabled != nil {
			cfg.Store.WALEnabled = *st.WALEnabled
		}
		setInt(&cfg.Store.CachePages, st.CachePages)
	}
	if c := o.Classifier; c != nil && len(c.StopWords) > 0 {
		cfg.Classifier.StopWords = c.StopWords
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
