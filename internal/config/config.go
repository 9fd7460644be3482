// Package config loads M3W run settings from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/TrevorS/m3w"
)

// Config holds all settings of an m3w run.
type Config struct {
	Clustering ClusteringConfig `yaml:"clustering"`
	Search     SearchConfig     `yaml:"search"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ClusteringConfig mirrors the tunables of m3w.Config.
type ClusteringConfig struct {
	K                           int     `yaml:"k"`
	Percentile                  float64 `yaml:"percentile"`
	Threshold                   float64 `yaml:"threshold"` // predicate mode when percentile is 0
	MaxIterations               int     `yaml:"max_iterations"`
	MinIterations               int     `yaml:"min_iterations"`
	MeanBorderEps               float64 `yaml:"mean_border_eps"`
	DistThreshold               float64 `yaml:"dist_threshold"` // 0 = estimate
	LinkExpansionFactor         float64 `yaml:"link_expansion_factor"`
	MinClusterSize              int     `yaml:"min_cluster_size"`
	CorePointsThreshold         float64 `yaml:"core_points_threshold"`
	AmbiguityThreshold          float64 `yaml:"ambiguity_threshold"`
	ConvergenceConstant         int     `yaml:"convergence_constant"`
	StoppingPercentile          float64 `yaml:"stopping_percentile"`
	SkipCoreMerge               bool    `yaml:"skip_core_merge"`
	KeepUnlinkedAsCore          bool    `yaml:"keep_unlinked_as_core"`
	CumulativeThresholdTraining bool    `yaml:"cumulative_threshold_training"`
	ThresholdEstimator          string  `yaml:"threshold_estimator"` // regression, interpolation
}

// SearchConfig selects the neighbor search backend.
type SearchConfig struct {
	Metric     string  `yaml:"metric"`      // euclidean, manhattan, chebyshev, minkowski
	MinkowskiP float64 `yaml:"minkowski_p"` // only for minkowski
	Algorithm  string  `yaml:"algorithm"`   // auto, brute, kdtree, balltree
	LeafSize   int     `yaml:"leaf_size"`
	Workers    int     `yaml:"workers"` // 0 = all CPUs
}

// EmbeddingConfig configures optional dimensionality reduction before
// clustering. PCA runs first when both are set.
type EmbeddingConfig struct {
	PCA      int `yaml:"pca"`
	Spectral int `yaml:"spectral"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ValidMetrics lists the metric names accepted in the search section.
var ValidMetrics = []string{"euclidean", "manhattan", "chebyshev", "minkowski"}

// DefaultConfig returns the settings of m3w.DefaultConfig plus CLI defaults.
func DefaultConfig() *Config {
	d := m3w.DefaultConfig()
	return &Config{
		Clustering: ClusteringConfig{
			K:                   d.K,
			Percentile:          d.Percentile,
			MaxIterations:       d.MaxIterations,
			MinIterations:       d.MinIterations,
			LinkExpansionFactor: d.LinkExpansionFactor,
			MinClusterSize:      d.MinClusterSize,
			CorePointsThreshold: d.CorePointsThreshold,
			StoppingPercentile:  d.StoppingPercentile,
			ThresholdEstimator:  string(d.ThresholdEstimator),
		},
		Search: SearchConfig{
			Metric:     "euclidean",
			MinkowskiP: 2,
			Algorithm:  string(d.Algorithm),
			LeafSize:   d.LeafSize,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("M3W_WORKERS"); v != "" {
		if w, err := strconv.Atoi(v); err == nil {
			c.Search.Workers = w
		}
	}
	if v := os.Getenv("M3W_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the settings that cannot be expressed in m3w.Config.
// Numeric ranges are checked by m3w.Cluster.
func (c *Config) Validate() error {
	if !slices.Contains(ValidMetrics, c.Search.Metric) {
		return fmt.Errorf("%w: invalid metric: %s (valid: %v)", m3w.ErrConfiguration, c.Search.Metric, ValidMetrics)
	}
	if c.Search.Metric == "minkowski" && c.Search.MinkowskiP < 1 {
		return fmt.Errorf("%w: minkowski_p must be >= 1, got %f", m3w.ErrConfiguration, c.Search.MinkowskiP)
	}
	if c.Embedding.PCA < 0 || c.Embedding.Spectral < 0 {
		return fmt.Errorf("%w: embedding dimensions must be >= 0", m3w.ErrConfiguration)
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: invalid log level: %s", m3w.ErrConfiguration, c.Logging.Level)
	}
	return nil
}

// ClusterConfig converts the file settings into an m3w.Config that logs to
// logger.
func (c *Config) ClusterConfig(logger *zap.Logger) m3w.Config {
	cl := c.Clustering
	return m3w.Config{
		K:                           cl.K,
		Percentile:                  cl.Percentile,
		Threshold:                   cl.Threshold,
		MaxIterations:               cl.MaxIterations,
		MinIterations:               cl.MinIterations,
		MeanBorderEps:               cl.MeanBorderEps,
		DistThreshold:               cl.DistThreshold,
		LinkExpansionFactor:         cl.LinkExpansionFactor,
		MinClusterSize:              cl.MinClusterSize,
		CorePointsThreshold:         cl.CorePointsThreshold,
		AmbiguityThreshold:          cl.AmbiguityThreshold,
		ConvergenceConstant:         cl.ConvergenceConstant,
		StoppingPercentile:          cl.StoppingPercentile,
		SkipCoreMerge:               cl.SkipCoreMerge,
		KeepUnlinkedAsCore:          cl.KeepUnlinkedAsCore,
		CumulativeThresholdTraining: cl.CumulativeThresholdTraining,
		ThresholdEstimator:          m3w.ThresholdEstimator(cl.ThresholdEstimator),
		Metric:                      c.metric(),
		Algorithm:                   m3w.Algorithm(c.Search.Algorithm),
		LeafSize:                    c.Search.LeafSize,
		Workers:                     c.Search.Workers,
		Logger:                      logger,
	}
}

func (c *Config) metric() m3w.DistanceMetric {
	switch c.Search.Metric {
	case "manhattan":
		return m3w.ManhattanMetric{}
	case "chebyshev":
		return m3w.ChebyshevMetric{}
	case "minkowski":
		return m3w.MinkowskiMetric{P: c.Search.MinkowskiP}
	default:
		return m3w.EuclideanMetric{}
	}
}
