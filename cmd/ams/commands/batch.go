package commands

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/AMS/ams/ingest"
	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// BatchCmd inspects and feeds batches
var BatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Inspect batches and watch directories for new documents",
}

var batchShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "List the items of a batch with their status",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchShow,
}

var batchWatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest XML files as they appear in a directory",
	Long: `Watch a directory and ingest every .xml file written to it into one batch.
Files are picked up once they have been quiet for --settle.

Examples:
  ams batch watch --submitter ingester@example.org ./incoming
  ams batch watch --submitter ingester@example.org --reset ./resets`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchWatch,
}

var (
	watchReset  bool
	watchSettle time.Duration
)

func init() {
	batchWatchCmd.Flags().StringVar(&submitterEmail, "submitter", "", "Email of the submitting user")
	_ = batchWatchCmd.MarkFlagRequired("submitter")
	batchWatchCmd.Flags().BoolVar(&watchReset, "reset", false, "Reset instantiations instead of creating assets")
	batchWatchCmd.Flags().DurationVar(&watchSettle, "settle", 500*time.Millisecond, "Quiet period before a file is ingested")

	BatchCmd.AddCommand(batchShowCmd)
	BatchCmd.AddCommand(batchWatchCmd)
}

func runBatchShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	batch, err := a.deps.Batches.GetBatch(ctx, args[0])
	if err != nil {
		return err
	}
	items, err := a.deps.Batches.ListItems(ctx, batch.ID)
	if err != nil {
		return err
	}

	pterm.Info.Printf("Batch %s by %s, %d items\n", batch.ID, batch.SubmitterEmail, len(items))
	rows := pterm.TableData{{"Item", "Source", "Status", "Object", "Error"}}
	for _, item := range items {
		rows = append(rows, []string{item.ID, item.IDWithinBatch, string(item.Status), item.ObjectID, item.Error})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runBatchWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", dir)
	}

	batch := &types.Batch{SubmitterEmail: submitterEmail}
	if err := a.deps.Batches.CreateBatch(ctx, batch); err != nil {
		return err
	}
	pterm.Info.Printf("Watching %s into batch %s (Ctrl+C to stop)\n", dir, batch.ID)

	newIngester := func() *ingest.Ingester { return ingest.NewItemIngester(a.deps) }
	if watchReset {
		newIngester = func() *ingest.Ingester {
			in, _ := ingest.NewInstantiationReset(a.deps)
			return in
		}
		// Resets fan out, so run the jobs alongside
		a.pool.Start()
	}

	log := a.log.Named("watch")
	settled := make(chan string)
	pending := make(map[string]*time.Timer)
	done := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".xml") || done[event.Name] {
				continue
			}
			path := event.Name
			if t, ok := pending[path]; ok {
				t.Reset(watchSettle)
				continue
			}
			pending[path] = time.AfterFunc(watchSettle, func() {
				select {
				case settled <- path:
				case <-ctx.Done():
				}
			})

		case path := <-settled:
			delete(pending, path)
			done[path] = true
			if err := ingestFile(ctx, a, batch, path, newIngester()); err != nil {
				log.Warnw("Watched file failed", logger.FieldFile, path, logger.FieldError, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorw("File watcher error", logger.FieldError, err)
		}
	}
}
