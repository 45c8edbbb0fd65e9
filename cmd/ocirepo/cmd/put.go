package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var putCmd = &cobra.Command{
	Use:   "put <artifact-path>=<file>...",
	Short: "Publish files to the registry",
	Long:  "Publish each file as a single-layer image. Files already published with identical content are skipped.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	repo, err := openRepository(logger)
	if err != nil {
		return err
	}

	type item struct{ path, file string }
	items := make([]item, 0, len(args))
	for _, arg := range args {
		path, file, err := splitPair(arg, "file")
		if err != nil {
			return err
		}
		items = append(items, item{path, file})
	}

	p := pool.New().WithMaxGoroutines(max(1, viper.GetInt("concurrency"))).WithContext(cmd.Context()).WithCancelOnError()
	for _, it := range items {
		p.Go(func(ctx context.Context) error {
			if err := repo.Put(ctx, it.path, it.file); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "[put] %s\n", it.path)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("put failed: %w", err)
	}
	return nil
}
