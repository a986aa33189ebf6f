package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List configured platforms",
	Args:  cobra.NoArgs,
	RunE:  runPlatforms,
}

func init() {
	rootCmd.AddCommand(platformsCmd)
}

func runPlatforms(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	for _, id := range cfg.IDs() {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
