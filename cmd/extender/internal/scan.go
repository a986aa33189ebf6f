package internal

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goplus/extender/pkgs/manifest"
)

var scanCmd = &cobra.Command{
	Use:   "scan [source dir]",
	Short: "List the extensions found in a source tree",
	Long:  `Scan walks the source tree and prints every extension manifest it finds, in build order.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	root := args[0]
	descs, err := manifest.ScanAll(root)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, d := range descs {
		rel, err := filepath.Rel(root, d.RootDir)
		if err != nil {
			rel = d.RootDir
		}
		fmt.Fprintf(w, "%s\t%s\n", d.Name, rel)
	}
	return w.Flush()
}
