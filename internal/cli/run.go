package cli

import (
	"context"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/gradkit/gradkit/internal/distributed"
	"github.com/gradkit/gradkit/internal/handlers"
	"github.com/gradkit/gradkit/internal/observability/logging"
	"github.com/gradkit/gradkit/internal/observability/metrics"
	"github.com/gradkit/gradkit/internal/seed"
	"github.com/gradkit/gradkit/internal/testkit"
	"github.com/gradkit/gradkit/pkg/config"
)

func newRunCmd() *cobra.Command {
	var numBatches, batchSize int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a demo training loop on synthetic data",
		Long: `Runs the configured training and evaluation loops against the built-in
synthetic model and data source. Useful to exercise a configuration end
to end before wiring a real model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), numBatches, batchSize)
		},
	}
	cmd.Flags().IntVar(&numBatches, "batches", 8, "number of synthetic batches per epoch")
	cmd.Flags().IntVar(&batchSize, "batch-size", 16, "examples per synthetic batch")
	return cmd
}

func runDemo(ctx context.Context, numBatches, batchSize int) error {
	collector := metrics.NewNoopCollector()
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.CollectorConfig{})
		go func() {
			if err := metrics.Serve(collector, cfg.Metrics.Addr); err != nil {
				logger.Error("metrics server stopped", logging.Error(err))
			}
		}()
	}

	rng := rand.New(rand.NewSource(cfg.Run.Seed))
	seeds := seed.NewRegistry()
	if err := seeds.Add("rand", seed.RandSetter(rng)); err != nil {
		return err
	}

	deps := config.BuildDeps{
		Logger:  logger,
		Metrics: collector,
		Comm:    distributed.NewNoop(),
		Seeds:   seeds,
	}
	trainLoop, err := config.BuildTrainingLoop(cfg.Training, deps)
	if err != nil {
		return err
	}
	evalLoop := config.BuildEvaluationLoop(cfg.Evaluation, deps)

	losses := make([]float64, numBatches)
	for i := range losses {
		losses[i] = 1 / float64(i+1)
	}
	model := testkit.NewDummyModel(batchSize, losses...)
	eng := testkit.NewFakeEngine(cfg.Run.MaxEpochs).
		WithModel(model).
		WithOptimizer(testkit.NewDummyOptimizer(model)).
		WithDataSource(testkit.NewDummyDataSource(numBatches, batchSize)).
		WithSeed(cfg.Run.Seed)

	if cfg.Checkpoint.Enabled {
		store, err := config.BuildStore(ctx, cfg.Checkpoint)
		if err != nil {
			return err
		}
		saver, err := handlers.NewCheckpointSaver(store, handlers.CheckpointSaverOptions{
			Freq:      cfg.Checkpoint.Freq,
			StoreName: cfg.Checkpoint.Store,
			Logger:    logger,
			Metrics:   collector,
		})
		if err != nil {
			return err
		}
		if err := saver.Register("training_loop", trainLoop); err != nil {
			return err
		}
		if err := saver.Attach(eng); err != nil {
			return err
		}
	}

	logger.Info("starting run",
		logging.String("name", cfg.Run.Name),
		logging.Int("max_epochs", cfg.Run.MaxEpochs),
		logging.Int64("seed", cfg.Run.Seed))

	for epoch := 0; epoch < cfg.Run.MaxEpochs; epoch++ {
		if err := trainLoop.Train(ctx, eng); err != nil {
			return err
		}
		if err := evalLoop.Eval(ctx, eng); err != nil {
			return err
		}
	}

	logger.Info("run completed", logging.Int("epochs", cfg.Run.MaxEpochs))
	return nil
}
