package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var getCmd = &cobra.Command{
	Use:   "get <artifact-path>=<destination>...",
	Short: "Fetch files from the registry",
	Long: `Fetch each artifact to its destination and restore its modification time.

With --if-newer-than, artifacts created at or before the given time are
skipped without downloading their content.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().String("if-newer-than", "", "only fetch artifacts created after this RFC 3339 time")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	var threshold time.Time
	if s, _ := cmd.Flags().GetString("if-newer-than"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse --if-newer-than: %w", err)
		}
		threshold = t
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	repo, err := openRepository(logger)
	if err != nil {
		return err
	}

	type item struct{ path, dest string }
	items := make([]item, 0, len(args))
	for _, arg := range args {
		path, dest, err := splitPair(arg, "destination")
		if err != nil {
			return err
		}
		items = append(items, item{path, dest})
	}

	p := pool.New().WithMaxGoroutines(max(1, viper.GetInt("concurrency"))).WithContext(cmd.Context()).WithCancelOnError()
	for _, it := range items {
		p.Go(func(ctx context.Context) error {
			if threshold.IsZero() {
				if err := repo.Get(ctx, it.path, it.dest); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "[get] %s -> %s\n", it.path, it.dest)
				return nil
			}

			updated, err := repo.GetIfNewer(ctx, it.path, it.dest, threshold)
			if err != nil {
				return err
			}
			if updated {
				fmt.Fprintf(os.Stderr, "[get] %s -> %s\n", it.path, it.dest)
			} else {
				fmt.Fprintf(os.Stderr, "[get] %s unchanged\n", it.path)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("get failed: %w", err)
	}
	return nil
}
