package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/AMS/cmd/ams/commands"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

var rootCmd = &cobra.Command{
	Use:   "ams",
	Short: "AMS - archival asset management",
	Long: `AMS ingests PBCore XML into assets, resets their instantiations and
destroys them along with every record that refers to them.

Available commands:
  am        - Manage AMS configuration
  ingest    - Create assets from PBCore documents
  reset     - Replace the instantiations of existing assets
  destroy   - Destroy assets and their associated records
  eradicate - Remove tombstones of deleted assets
  batch     - Inspect batches and watch directories
  pulse     - Run the async job workers
  user      - Manage users and roles

Examples:
  ams user add ingester@example.org --role aapb-admin
  ams ingest --submitter ingester@example.org asset.xml
  ams reset --submitter ingester@example.org --wait asset.xml
  ams destroy --user admin@example.org cpb-aacip-123`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.ResetCmd)
	rootCmd.AddCommand(commands.DestroyCmd)
	rootCmd.AddCommand(commands.EradicateCmd)
	rootCmd.AddCommand(commands.BatchCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.UserCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hints)
		}
		os.Exit(1)
	}
}
