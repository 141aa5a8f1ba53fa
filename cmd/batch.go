package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/batch"
)

var (
	batchLimit         int
	batchMinCreatedAt  string
	batchNoMaintenance bool
	batchSinceLast     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve all unresolved deals",
	Long:  "Runs the resolution pass over every candidate deal. Failures land in the review queue; the run is safe to repeat.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runner := newRunner(pool)

		opts := batch.Options{
			Limit:       batchLimit,
			Maintenance: cfg.Batch.Maintenance && !batchNoMaintenance,
		}
		if opts.Limit == 0 {
			opts.Limit = cfg.Batch.DefaultLimit
		}

		switch {
		case batchMinCreatedAt != "":
			t, err := time.Parse(time.RFC3339, batchMinCreatedAt)
			if err != nil {
				return eris.Wrapf(err, "parse --min-created-at %q", batchMinCreatedAt)
			}
			opts.MinCreatedAt = t
		case batchSinceLast:
			t, err := runner.LastSuccess(ctx)
			if err != nil {
				return err
			}
			if !t.IsZero() {
				zap.L().Info("resuming from last successful run", zap.Time("since", t))
			}
			opts.MinCreatedAt = t
		}

		rep, err := runner.Run(ctx, opts)
		if err != nil {
			return err
		}

		fmt.Printf("Processed: %d\n", rep.Processed)
		fmt.Printf("Succeeded: %d\n", rep.Succeeded)
		fmt.Printf("Flagged:   %d\n", rep.Flagged)
		fmt.Printf("Errors:    %d\n", rep.Errors)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max deals to process (default from config, 0 = all)")
	batchCmd.Flags().StringVar(&batchMinCreatedAt, "min-created-at", "", "only deals created at or after this RFC3339 time")
	batchCmd.Flags().BoolVar(&batchNoMaintenance, "no-maintenance", false, "skip trigger suspension and the batch lock")
	batchCmd.Flags().BoolVar(&batchSinceLast, "since-last", false, "only deals created since the last successful run")
	rootCmd.AddCommand(batchCmd)
}
