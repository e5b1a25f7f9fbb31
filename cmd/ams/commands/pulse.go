package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/AMS/am"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/pulse/async"
)

// PulseCmd manages the worker pool that runs instantiation jobs
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Run and inspect the async job workers",
	Long: `Pulse runs the jobs that "ams reset" enqueues, one per instantiation.

Examples:
  ams pulse start              # Start workers in foreground
  ams pulse start --workers 3  # Start with 3 concurrent workers
  ams pulse drain              # Run queued jobs once and exit
  ams pulse stats              # Show job counts by status
  ams pulse jobs --status failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var pulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the workers in the foreground",
	Long: `Start the worker pool and run until interrupted (Ctrl+C).
Jobs in flight are given the configured stop timeout to finish.`,
	RunE: runPulseStart,
}

var pulseDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run every queued job once and exit",
	RunE:  runPulseDrain,
}

var pulseStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts by status",
	RunE:  runPulseStats,
}

var pulseJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs, newest first",
	Long: `List jobs, newest first.

Examples:
  ams pulse jobs --status failed
  ams pulse jobs --source cpb-aacip-123`,
	RunE: runPulseJobs,
}

var pulseCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job that has not finished",
	Args:  cobra.ExactArgs(1),
	RunE:  runPulseCancel,
}

var pulseCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished jobs older than --older-than",
	RunE:  runPulseCleanup,
}

var (
	jobsStatus    string
	jobsSource    string
	jobsLimit     int
	cancelReason  string
	cleanupCutoff time.Duration
)

func init() {
	pulseStartCmd.Flags().Int("workers", 0, "Number of concurrent workers (default pulse.workers)")

	pulseJobsCmd.Flags().StringVar(&jobsStatus, "status", "", "Only jobs in this status (queued, running, completed, failed, cancelled)")
	pulseJobsCmd.Flags().StringVar(&jobsSource, "source", "", "Only jobs for this asset id")
	pulseJobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "Maximum number of jobs to list")
	pulseCancelCmd.Flags().StringVar(&cancelReason, "reason", "cancelled by operator", "Reason recorded on the job")
	pulseCleanupCmd.Flags().DurationVar(&cleanupCutoff, "older-than", 7*24*time.Hour, "Age of finished jobs to delete")

	PulseCmd.AddCommand(pulseStartCmd)
	PulseCmd.AddCommand(pulseJobsCmd)
	PulseCmd.AddCommand(pulseCancelCmd)
	PulseCmd.AddCommand(pulseCleanupCmd)
	PulseCmd.AddCommand(pulseDrainCmd)
	PulseCmd.AddCommand(pulseStatsCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	workers, _ := cmd.Flags().GetInt("workers")
	if workers < 0 {
		return errors.NewInvalidRequestError("--workers must not be negative, got %d", workers)
	}
	if workers > 0 {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		cfg.Pulse.Workers = workers
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	a.pool.Start()
	pterm.Success.Printf("Pulse started with %d worker(s)\n", a.pool.Workers())
	pterm.Info.Printf("Handlers: %v\n", a.pool.Registry().Names())
	pterm.Info.Println("Press Ctrl+C for graceful shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-cmd.Context().Done():
	}

	pterm.Info.Println("Stopping workers...")
	a.pool.Stop()
	pterm.Success.Printf("Pulse stopped after %d job(s)\n", a.pool.JobsProcessed())
	return nil
}

func runPulseDrain(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.pool.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	pterm.Success.Printf("Ran %d job(s)\n", n)
	return nil
}

func runPulseStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.pool.GetQueue().GetStats(ctx)
	if err != nil {
		return err
	}
	m := a.pool.GetSystemMetrics(ctx)
	pterm.Info.Printf("Memory %.1f of %.1fGB (%.0f%%), %d worker(s) configured\n",
		m.MemoryUsedGB, m.MemoryTotalGB, m.MemoryPercent, m.WorkersTotal)
	return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Queued", "Running", "Completed", "Failed", "Cancelled", "Total"},
		{itoa(stats.Queued), itoa(stats.Running), itoa(stats.Completed), itoa(stats.Failed), itoa(stats.Cancelled), itoa(stats.Total)},
	}).Render()
}

func runPulseJobs(cmd *cobra.Command, args []string) error {
	filter := async.JobFilter{Source: jobsSource, Limit: jobsLimit}
	if jobsStatus != "" {
		status, err := async.ParseJobStatus(jobsStatus)
		if err != nil {
			return err
		}
		filter.Status = status
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.pool.GetQueue().ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}
	rows := pterm.TableData{{"Job", "Handler", "Source", "Status", "Created", "Error"}}
	for _, j := range jobs {
		rows = append(rows, []string{j.ID, j.HandlerName, j.Source, string(j.Status), j.CreatedAt.Format(time.RFC3339), j.Error})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runPulseCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.pool.GetQueue().CancelJob(ctx, args[0], cancelReason); err != nil {
		return err
	}
	pterm.Success.Printf("Cancelled %s\n", args[0])
	return nil
}

func runPulseCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.pool.GetQueue().Cleanup(ctx, cleanupCutoff)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Deleted %d finished job(s)\n", n)
	return nil
}
