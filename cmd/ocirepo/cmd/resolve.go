package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <artifact-path>...",
	Short: "Print the image reference for artifact paths",
	Long:  "Print the image reference each artifact path maps to. The registry is not contacted.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	repo, err := openRepository(logger)
	if err != nil {
		return err
	}

	for _, path := range args {
		ref, err := repo.Resolve(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", path, ref)
	}
	return nil
}
