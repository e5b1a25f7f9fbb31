package commands

import (
	"context"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/AMS/ams/ingest"
	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// IngestCmd creates assets from PBCore description documents
var IngestCmd = &cobra.Command{
	Use:   "ingest <file.xml>...",
	Short: "Ingest PBCore XML files as new assets",
	Long: `Create one batch for the submitter and ingest every file as a batch item.

A description document creates a new asset with its instantiations,
essence tracks, contributions and admin data. Re-ingesting an existing
asset is rejected; use "ams reset" to replace its instantiations.

Examples:
  ams ingest --submitter ingester@example.org asset1.xml asset2.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), args, func(deps *ingest.Deps) *ingest.Ingester {
			return ingest.NewItemIngester(deps)
		}, false)
	},
}

// ResetCmd replaces the instantiations of existing assets
var ResetCmd = &cobra.Command{
	Use:   "reset <file.xml>...",
	Short: "Replace the instantiations of existing assets",
	Long: `Delete every instantiation of the asset each document identifies and
enqueue one job per instantiation in the document to re-create it. Asset
fields, contributions and admin data are left as they are.

Jobs run on "ams pulse start" workers, or right away with --wait.

Examples:
  ams reset --submitter ingester@example.org --wait asset1.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), args, func(deps *ingest.Deps) *ingest.Ingester {
			in, _ := ingest.NewInstantiationReset(deps)
			return in
		}, resetWait)
	},
}

var (
	submitterEmail string
	resetWait      bool
)

func init() {
	for _, c := range []*cobra.Command{IngestCmd, ResetCmd} {
		c.Flags().StringVar(&submitterEmail, "submitter", "", "Email of the submitting user")
		_ = c.MarkFlagRequired("submitter")
	}
	ResetCmd.Flags().BoolVar(&resetWait, "wait", false, "Run the instantiation jobs before returning")
}

type ingesterFactory func(deps *ingest.Deps) *ingest.Ingester

func runBatch(ctx context.Context, paths []string, newIngester ingesterFactory, drain bool) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	batch := &types.Batch{SubmitterEmail: submitterEmail}
	if err := a.deps.Batches.CreateBatch(ctx, batch); err != nil {
		return err
	}
	pterm.Info.Printf("Batch %s\n", batch.ID)

	failed := 0
	for _, path := range paths {
		if err := ingestFile(ctx, a, batch, path, newIngester(a.deps)); err != nil {
			failed++
		}
	}

	if drain {
		n, err := a.pool.RunOnce(ctx)
		if err != nil {
			return err
		}
		pterm.Info.Printf("Ran %d instantiation jobs\n", n)
	}

	if failed > 0 {
		return errors.Newf("%d of %d items failed, see \"ams batch show %s\"", failed, len(paths), batch.ID)
	}
	return nil
}

func ingestFile(ctx context.Context, a *app, batch *types.Batch, path string, in *ingest.Ingester) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	item := &types.BatchItem{
		BatchID:        batch.ID,
		IDWithinBatch:  filepath.Base(abs),
		SourceLocation: abs,
	}
	if err := a.deps.Batches.CreateItem(ctx, item); err != nil {
		return err
	}

	asset, err := in.Ingest(ctx, item)
	if err != nil {
		pterm.Error.Printf("%s: %s\n", item.IDWithinBatch, err)
		return err
	}
	pterm.Success.Printf("%s -> %s\n", item.IDWithinBatch, asset.ID)
	a.log.Debugw("Ingested file", logger.FieldFile, abs, logger.FieldID, asset.ID)
	return nil
}
