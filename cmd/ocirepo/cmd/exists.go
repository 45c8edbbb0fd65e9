package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var existsCmd = &cobra.Command{
	Use:   "exists <artifact-path>...",
	Short: "Check whether artifacts are published",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExists,
}

func init() {
	rootCmd.AddCommand(existsCmd)
}

func runExists(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	repo, err := openRepository(logger)
	if err != nil {
		return err
	}

	missing := 0
	for _, path := range args {
		ok, err := repo.Exists(cmd.Context(), path)
		if err != nil {
			return err
		}
		if !ok {
			missing++
		}
		fmt.Printf("%s\t%t\n", path, ok)
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d artifacts not found", missing, len(args))
	}
	return nil
}
