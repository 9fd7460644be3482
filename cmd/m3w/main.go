// Command m3w clusters a point file with M3W and writes one label per line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TrevorS/m3w"
	"github.com/TrevorS/m3w/internal/config"
	"github.com/TrevorS/m3w/internal/dataset"
	"github.com/TrevorS/m3w/internal/embed"
	"github.com/TrevorS/m3w/internal/evaluate"
)

// options holds the command-line flags.
type options struct {
	input      string
	output     string
	configPath string
	saveConfig string
	noLabels   bool
	verbose    bool
	pca        int
	spectral   int

	k                  int
	percentile         float64
	threshold          float64
	maxIterations      int
	minIterations      int
	meanBorderEps      float64
	distThreshold      float64
	expansion          float64
	minClusterSize     int
	alpha              float64
	beta               float64
	convergence        int
	stoppingPercentile float64
	skipMerge          bool
	keepUnlinked       bool
	cumulative         bool
	estimator          string
	metric             string
	algorithm          string
	workers            int
}

func newRootCmd() *cobra.Command {
	var (
		opts   options
		logger *zap.Logger
		level  = zap.NewAtomicLevelAt(zap.InfoLevel)
	)
	def := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "m3w",
		Short: "Multistep three-way border-peeling clustering",
		Long: `m3w reads a delimited point file, clusters it with M3W and writes one
cluster label per input row (-1 = noise).

By default the last column of every row is taken as a ground-truth label
and the run reports the adjusted Rand index and adjusted mutual information
against it. Pass --no-labels for unlabeled data.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zc := zap.NewProductionConfig()
			if opts.verbose {
				level.SetLevel(zap.DebugLevel)
			}
			zc.Level = level
			var err error
			logger, err = zc.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &opts, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
				level.SetLevel(lvl.Level())
			}
			if opts.saveConfig != "" {
				if err := cfg.Save(opts.saveConfig); err != nil {
					return err
				}
				logger.Info("wrote effective config", zap.String("path", opts.saveConfig))
			}
			return run(cmd, &opts, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "input point file (required)")
	f.StringVarP(&opts.output, "output", "o", "", "output label file (required)")
	f.StringVarP(&opts.configPath, "config", "c", "m3w.yaml", "YAML config file; missing file means defaults")
	f.StringVar(&opts.saveConfig, "write-config", "", "also write the effective configuration to this YAML file")
	f.BoolVar(&opts.noLabels, "no-labels", false, "input has no trailing label column")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	f.IntVar(&opts.pca, "pca", 0, "reduce to this many dimensions with PCA first (0 = off)")
	f.IntVar(&opts.spectral, "spectral", 0, "reduce to this many dimensions with a spectral embedding (0 = off)")

	cl := def.Clustering
	f.IntVarP(&opts.k, "k", "k", cl.K, "neighbors for scoring, threshold regression and voting")
	f.Float64Var(&opts.percentile, "percentile", cl.Percentile, "fraction peeled per iteration (0 = predicate mode)")
	f.Float64Var(&opts.threshold, "threshold", cl.Threshold, "predicate mode: keep points scoring above this")
	f.IntVarP(&opts.maxIterations, "max-iterations", "T", cl.MaxIterations, "maximum peeling iterations")
	f.IntVar(&opts.minIterations, "min-iterations", cl.MinIterations, "iterations before the mean-border stop may fire")
	f.Float64Var(&opts.meanBorderEps, "mean-border-eps", cl.MeanBorderEps, "mean-border-ratio stop tolerance (0 = off)")
	f.Float64Var(&opts.distThreshold, "dist-threshold", cl.DistThreshold, "global link distance (0 = estimate)")
	f.Float64VarP(&opts.expansion, "expansion", "C", cl.LinkExpansionFactor, "link threshold expansion factor")
	f.IntVar(&opts.minClusterSize, "min-cluster-size", cl.MinClusterSize, "smallest core group kept as a cluster")
	f.Float64Var(&opts.alpha, "alpha", cl.CorePointsThreshold, "core promotion threshold")
	f.Float64Var(&opts.beta, "beta", cl.AmbiguityThreshold, "ambiguity threshold")
	f.IntVar(&opts.convergence, "convergence", cl.ConvergenceConstant, "stop when fewer points are peeled")
	f.Float64Var(&opts.stoppingPercentile, "stopping-percentile", cl.StoppingPercentile, "stop when fewer than this fraction remain")
	f.BoolVar(&opts.skipMerge, "skip-merge", cl.SkipCoreMerge, "do not merge core points")
	f.BoolVar(&opts.keepUnlinked, "keep-unlinked", cl.KeepUnlinkedAsCore, "keep peeled points without a link as core points")
	f.BoolVar(&opts.cumulative, "cumulative-training", cl.CumulativeThresholdTraining, "train link thresholds on every peeled point")
	f.StringVar(&opts.estimator, "estimator", cl.ThresholdEstimator, "link threshold estimator: regression, interpolation")
	f.StringVar(&opts.metric, "metric", def.Search.Metric, "distance metric: euclidean, manhattan, chebyshev, minkowski")
	f.StringVar(&opts.algorithm, "algorithm", def.Search.Algorithm, "neighbor search: auto, brute, kdtree, balltree")
	f.IntVar(&opts.workers, "workers", def.Search.Workers, "worker goroutines (0 = all CPUs)")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// applyFlags copies explicitly set flags over the file configuration.
func applyFlags(cmd *cobra.Command, o *options, cfg *config.Config) {
	set := cmd.Flags().Changed
	cl := &cfg.Clustering
	if set("k") {
		cl.K = o.k
	}
	if set("percentile") {
		cl.Percentile = o.percentile
	}
	if set("threshold") {
		cl.Threshold = o.threshold
	}
	if set("max-iterations") {
		cl.MaxIterations = o.maxIterations
	}
	if set("min-iterations") {
		cl.MinIterations = o.minIterations
	}
	if set("mean-border-eps") {
		cl.MeanBorderEps = o.meanBorderEps
	}
	if set("dist-threshold") {
		cl.DistThreshold = o.distThreshold
	}
	if set("expansion") {
		cl.LinkExpansionFactor = o.expansion
	}
	if set("min-cluster-size") {
		cl.MinClusterSize = o.minClusterSize
	}
	if set("alpha") {
		cl.CorePointsThreshold = o.alpha
	}
	if set("beta") {
		cl.AmbiguityThreshold = o.beta
	}
	if set("convergence") {
		cl.ConvergenceConstant = o.convergence
	}
	if set("stopping-percentile") {
		cl.StoppingPercentile = o.stoppingPercentile
	}
	if set("skip-merge") {
		cl.SkipCoreMerge = o.skipMerge
	}
	if set("keep-unlinked") {
		cl.KeepUnlinkedAsCore = o.keepUnlinked
	}
	if set("cumulative-training") {
		cl.CumulativeThresholdTraining = o.cumulative
	}
	if set("estimator") {
		cl.ThresholdEstimator = o.estimator
	}
	if set("metric") {
		cfg.Search.Metric = o.metric
	}
	if set("algorithm") {
		cfg.Search.Algorithm = o.algorithm
	}
	if set("workers") {
		cfg.Search.Workers = o.workers
	}
	if set("pca") {
		cfg.Embedding.PCA = o.pca
	}
	if set("spectral") {
		cfg.Embedding.Spectral = o.spectral
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
}

func run(cmd *cobra.Command, o *options, cfg *config.Config, logger *zap.Logger) error {
	ds, err := dataset.ReadFile(o.input, dataset.Options{HasLabels: !o.noLabels})
	if err != nil {
		return err
	}
	logger.Info("loaded dataset",
		zap.String("path", o.input),
		zap.Int("points", len(ds.Points)),
		zap.Int("dims", len(ds.Points[0])))

	points := ds.Points
	if d := cfg.Embedding.PCA; d > 0 {
		if points, err = embed.PCA(points, d); err != nil {
			return err
		}
		logger.Debug("pca embedding", zap.Int("dims", d))
	}
	if d := cfg.Embedding.Spectral; d > 0 {
		searcher := m3w.BruteForceSearcher{Metric: m3w.EuclideanMetric{}, Workers: cfg.Search.Workers}
		if points, err = embed.Spectral(points, d, searcher); err != nil {
			return err
		}
		logger.Debug("spectral embedding", zap.Int("dims", d))
	}

	result, err := m3w.Cluster(points, cfg.ClusterConfig(logger))
	if err != nil {
		return err
	}
	if err := dataset.WriteLabelsFile(o.output, result.Labels); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "clusters: %d\n", result.Membership.Clusters())
	fmt.Fprintf(out, "iterations: %d (%s)\n", result.Iterations, result.Stop)
	if ds.Labels != nil {
		ari, err := evaluate.AdjustedRandIndex(ds.Labels, result.Labels)
		if err != nil {
			return err
		}
		ami, err := evaluate.AdjustedMutualInformation(ds.Labels, result.Labels)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ARI: %.4f\nAMI: %.4f\n", ari, ami)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
