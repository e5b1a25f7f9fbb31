package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/AMS/ams/destroy"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/pulse"
)

// DestroyCmd permanently removes assets
var DestroyCmd = &cobra.Command{
	Use:   "destroy [asset-id...]",
	Short: "Permanently destroy assets and everything they own",
	Long: `Destroy assets in the primary store, the search index and the relational
mirror, then erase their tombstones and workflow entities.

Each asset is processed independently. Failures are logged and the run
continues with the next asset.

Examples:
  ams destroy cpb-aacip-123 cpb-aacip-456
  ams destroy --ids-file ids.txt --user admin@example.org`,
	RunE: runDestroy,
}

// EradicateCmd purges leftover tombstones
var EradicateCmd = &cobra.Command{
	Use:   "eradicate [asset-id...]",
	Short: "Erase tombstones of deleted assets",
	Long: `Erase the tombstones of assets that were deleted but never cleaned up,
together with their workflow entities. Ids that are not tombstoned are skipped.`,
	RunE: runEradicate,
}

var (
	destroyIDsFile string
	destroyUser    string
	destroyNoBar   bool
)

func init() {
	DestroyCmd.Flags().StringVar(&destroyIDsFile, "ids-file", "", "File with one asset id per line")
	DestroyCmd.Flags().StringVar(&destroyUser, "user", "", "Email of the acting user (default: destroy.user_email)")
	DestroyCmd.Flags().BoolVar(&destroyNoBar, "no-progress", false, "Disable the progress bar")
	EradicateCmd.Flags().StringVar(&destroyIDsFile, "ids-file", "", "File with one asset id per line")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ids, err := collectIDs(args, destroyIDsFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var progress pulse.ProgressEmitter
	if !destroyNoBar {
		bar, err := newBarEmitter("Destroying Assets", len(ids))
		if err != nil {
			return err
		}
		progress = bar
	}

	report, err := a.destroyer(destroyUser, progress).Destroy(ctx, ids)
	if err != nil {
		return err
	}
	return summarize(report)
}

func runEradicate(cmd *cobra.Command, args []string) error {
	ids, err := collectIDs(args, destroyIDsFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.destroyer("", nil).Eradicate(ctx, ids)
	if len(report.Skipped) > 0 {
		pterm.Warning.Printf("Skipped %d ids without a tombstone\n", len(report.Skipped))
	}
	return summarize(report)
}

func summarize(report *destroy.Report) error {
	failed := report.FailedIDs()
	if len(failed) == 0 {
		return nil
	}
	for _, o := range report.Failures() {
		fmt.Fprintf(os.Stderr, "  %s %s (%s): %s\n", o.ObjectType, o.ID, o.Step, o.Describe())
	}
	return errors.Newf("%d of the requested ids were not fully destroyed: %s", len(failed), strings.Join(failed, ", "))
}

// collectIDs merges ids from arguments and an optional file, skipping blanks
// and # comments
func collectIDs(args []string, path string) ([]string, error) {
	ids := append([]string{}, args...)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", path)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ids = append(ids, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
	}
	if len(ids) == 0 {
		return nil, errors.NewInvalidRequestError("no asset ids given")
	}
	return ids, nil
}
