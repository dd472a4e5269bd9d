package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/dl-progress/api/handlers"
	"github.com/yourusername/dl-progress/internal/domain"
	"github.com/yourusername/dl-progress/internal/infrastructure"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:           "dl-progress",
		Short:         "dl-progress CLI - queue downloads and follow their progress",
		Long:          `A command-line interface for the dl-progress server: queue URLs, inspect jobs and watch live download progress.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(logsCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func client() *apiClient {
	ensureServer()
	return newAPIClient(serverURL)
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a download to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		dest, _ := cmd.Flags().GetString("dest")

		job, err := client().addFetch(args[0], title, dest)
		if err != nil {
			return err
		}
		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID:     %s\n", job.ID)
		fmt.Printf("Title:  %s\n", job.Title)
		fmt.Printf("Status: %s\n", job.Status)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file.xlsx]",
	Short: "Queue every URL listed in a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		column, _ := cmd.Flags().GetString("column")
		titleColumn, _ := cmd.Flags().GetString("title-column")
		dest, _ := cmd.Flags().GetString("dest")

		entries, err := infrastructure.ReadURLsFromExcel(args[0], column, titleColumn)
		if err != nil {
			return err
		}

		c := client()
		added, failed := 0, 0
		for _, entry := range entries {
			job, err := c.addFetch(entry.URL, entry.Title, dest)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "Row %d: %v\n", entry.Row, err)
				continue
			}
			added++
			fmt.Printf("Queued %s  %s\n", truncate(job.ID, 8), job.Title)
		}

		fmt.Printf("Imported %d of %d URLs\n", added, len(entries))
		if failed > 0 {
			return fmt.Errorf("%d URLs could not be queued", failed)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		jobs, err := client().listFetches(status)
		if err != nil {
			return err
		}
		printJobs(os.Stdout, jobs)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := client().stats()
		if err != nil {
			return err
		}

		fmt.Println("Download Statistics:")
		fmt.Printf("  Total:      %d\n", stats.Total)
		fmt.Printf("  Queued:     %d\n", stats.Queued)
		fmt.Printf("  Processing: %d\n", stats.Processing)
		fmt.Printf("  Completed:  %d\n", stats.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Failed)
		fmt.Printf("  Cancelled:  %d\n", stats.Cancelled)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get download details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		job, err := c.getFetch(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Download Details:\n")
		fmt.Printf("  ID:       %s\n", job.ID)
		fmt.Printf("  URL:      %s\n", job.URL)
		fmt.Printf("  Title:    %s\n", job.Title)
		fmt.Printf("  Status:   %s\n", job.Status)
		fmt.Printf("  Retries:  %d\n", job.RetryCount)
		fmt.Printf("  Created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
		if job.FilePath != "" {
			fmt.Printf("  File:     %s\n", job.FilePath)
		}
		if job.ErrorMessage != "" {
			fmt.Printf("  Error:    %s\n", job.ErrorMessage)
		}
		if row, err := c.getProgress(job.ID); err == nil {
			fmt.Printf("  Progress: %s\n", row.Label)
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().cancelFetch(args[0]); err != nil {
			return err
		}
		fmt.Println("Download cancelled successfully")
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().retryFetch(args[0]); err != nil {
			return err
		}
		fmt.Println("Download queued for retry")
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the progress of every known download",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := client().listProgress()
		if err != nil {
			return err
		}
		printProgress(os.Stdout, rows)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "Follow live progress; with an id, exit when that download finishes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) == 1 {
			id = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return client().watch(ctx, id, func(msg handlers.StreamMessage) bool {
			printStreamMessage(os.Stdout, msg)
			return id == "" || msg.Type != handlers.MessageCompletion
		})
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View server logs (queue, registry, error)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		query, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")

		result, err := client().logs(args[0], date, query, limit)
		if err != nil {
			return err
		}
		for _, e := range result.Entries {
			fmt.Printf("%s  %-5s  %s", e.Timestamp, e.Level, e.Message)
			for k, v := range e.Fields {
				fmt.Printf("  %s=%v", k, v)
			}
			fmt.Println()
		}
		fmt.Printf("%d entries (%s, %s)\n", result.Count, result.Category, result.Date)
		return nil
	},
}

func init() {
	addCmd.Flags().StringP("title", "t", "", "Display title (defaults to the URL file name)")
	addCmd.Flags().StringP("dest", "d", "", "Destination directory (defaults to the server download dir)")
	importCmd.Flags().StringP("column", "c", "", "URL column header or letter (auto-detected when empty)")
	importCmd.Flags().String("title-column", "", "Title column header or letter")
	importCmd.Flags().StringP("dest", "d", "", "Destination directory for every imported URL")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	logsCmd.Flags().String("date", "", "Log date (YYYY-MM-DD, default today)")
	logsCmd.Flags().StringP("search", "q", "", "Only entries containing this text")
	logsCmd.Flags().IntP("limit", "n", 100, "Maximum number of entries")
}

func printJobs(w io.Writer, jobs []domain.FetchJob) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tRETRIES\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			truncate(j.ID, 8),
			truncate(j.Title, 40),
			j.Status,
			j.RetryCount,
			j.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func printProgress(w io.Writer, rows []progressRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPROGRESS\tRESULT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			truncate(r.ID, 8),
			truncate(r.Title, 40),
			r.Label,
			outcomeText(r.Outcome))
	}
	tw.Flush()
}

func outcomeText(outcome *domain.FetcherResponse) string {
	switch {
	case outcome == nil:
		return ""
	case outcome.Succeeded():
		return "The download has been completed!"
	default:
		return "An error occurred: " + outcome.ErrorMessage()
	}
}

func printStreamMessage(w io.Writer, msg handlers.StreamMessage) {
	switch msg.Type {
	case handlers.MessageSnapshot, handlers.MessageProgress:
		if msg.Progress == nil {
			return
		}
		fmt.Fprintf(w, "%s  %-8s  %s\n", truncate(msg.ID, 8), msg.Progress.Label(), msg.Progress.Title)
	case handlers.MessageCompletion:
		fmt.Fprintf(w, "%s  %s\n", truncate(msg.ID, 8), outcomeText(msg.Outcome))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", apiErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
