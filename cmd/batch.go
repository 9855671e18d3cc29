package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch <textfile>...",
	Short: "Process multiple documents concurrently",
	Long:  "Runs the extraction pipeline over several documents with a bounded worker pool. One document failing does not stop the rest.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := batchConcurrency
		if limit <= 0 {
			limit = cfg.Batch.MaxConcurrentDocuments
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)

		failed := 0
		done := make(chan string, len(args))
		for _, path := range args {
			path := path
			g.Go(func() error {
				in, err := loadInput(path, "")
				if err != nil {
					zap.L().Error("batch: skipping unreadable document",
						zap.String("path", path),
						zap.Error(err),
					)
					done <- ""
					return nil
				}
				if _, err := env.Pipeline.Process(gctx, in); err != nil {
					zap.L().Error("batch: document failed",
						zap.String("path", path),
						zap.Error(err),
					)
					done <- ""
					return nil
				}
				done <- path
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
		close(done)
		for path := range done {
			if path == "" {
				failed++
			}
		}

		zap.L().Info("batch complete",
			zap.Int("documents", len(args)),
			zap.Int("failed", failed),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent documents (default from config)")
	rootCmd.AddCommand(batchCmd)
}
