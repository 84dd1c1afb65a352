package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imunoz/finsight/internal/api"
	"github.com/imunoz/finsight/internal/reports"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Generate and download analysis reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports with their current status",
	RunE: func(cmd *cobra.Command, args []string) error {
		skip, _ := cmd.Flags().GetInt("skip")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(cmd.Context()); err != nil {
			return err
		}
		list, err := a.reports.List(cmd.Context(), skip, limit)
		if err != nil {
			return fmt.Errorf("%s", a.reports.Err())
		}
		if len(list) == 0 {
			fmt.Println("No reports yet.")
			return nil
		}
		for _, r := range list {
			fmt.Printf("%s  %-30s  %-16s  %s\n",
				styleCyan.apply(fmt.Sprintf("#%d", r.ID)),
				r.Title, r.ReportType, statusLabel(r.Status))
		}
		return nil
	},
}

var reportsGenerateCmd = &cobra.Command{
	Use:   "generate <title>",
	Short: "Queue generation of a new report",
	Long: `Queue generation of a new report.

The server processes reports asynchronously: the new report starts out
pending and its status only changes on the server. Run "finsight reports
list" again to see it move to completed or failed.

Report types: ` + strings.Join(api.ReportTypes, ", ") + `.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reportType, _ := cmd.Flags().GetString("type")
		title := strings.Join(args, " ")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(cmd.Context()); err != nil {
			return err
		}
		rep, err := a.reports.Generate(cmd.Context(), title, reportType)
		if err != nil {
			if msg := a.reports.Err(); msg != "" {
				return fmt.Errorf("%s", msg)
			}
			return err
		}
		printSuccess("Report #%d queued (%s); check `finsight reports list` for status", rep.ID, rep.Status)
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a report's detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid report id %q", args[0])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(cmd.Context()); err != nil {
			return err
		}
		rep, err := a.reports.Get(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("%s", a.reports.Err())
		}
		printStatus("Title", "%s", rep.Title)
		printStatus("Type", "%s", rep.ReportType)
		printStatus("Status", "%s", rep.Status)
		printStatus("Created", "%s", rep.CreatedAt)
		if rep.AnalysisSummary != "" {
			fmt.Println(rep.AnalysisSummary)
		}
		return nil
	},
}

var reportsDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a completed report",
	RunE: func(cmd *cobra.Command, args []string) error {
		verify, _ := cmd.Flags().GetBool("verify")
		if len(args) != 1 {
			return fmt.Errorf("usage: finsight reports download <id>")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid report id %q", args[0])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(cmd.Context()); err != nil {
			return err
		}

		// Download is only meaningful for completed reports; the status gate
		// lives here, not in the coordinator.
		rep, err := a.reports.Get(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("%s", a.reports.Err())
		}
		if rep.Status != api.StatusCompleted {
			return fmt.Errorf("report #%d is %s; only completed reports can be downloaded", id, rep.Status)
		}

		path, err := a.reports.Download(cmd.Context(), id, rep.Title)
		if err != nil {
			if msg := a.reports.Err(); msg != "" {
				return fmt.Errorf("%s", msg)
			}
			return err
		}
		printSuccess("Saved %s", path)

		if verify {
			pv, err := reports.PreviewPDF(path)
			if err != nil {
				printWarning("downloaded file failed verification: %v", err)
				return nil
			}
			printStatus("Pages", "%d", pv.Pages)
		}
		return nil
	},
}

var reportsPreviewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Preview a downloaded report file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		if full {
			text, err := reports.ExtractText(args[0])
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		}

		pv, err := reports.PreviewPDF(args[0])
		if err != nil {
			return err
		}
		printStatus("Pages", "%d", pv.Pages)
		if pv.FirstPage != "" {
			fmt.Println(pv.FirstPage)
		}
		return nil
	},
}

func init() {
	reportsListCmd.Flags().Int("skip", 0, "number of reports to skip")
	reportsListCmd.Flags().Int("limit", 20, "maximum number of reports to list")
	reportsGenerateCmd.Flags().StringP("type", "t", api.ReportDataSummary, "report type")
	reportsDownloadCmd.Flags().Bool("verify", false, "verify the downloaded PDF")
	reportsPreviewCmd.Flags().Bool("full", false, "print the whole report text")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsGenerateCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsDownloadCmd)
	reportsCmd.AddCommand(reportsPreviewCmd)
}

func statusLabel(status string) string {
	switch status {
	case api.StatusCompleted:
		return styleGreen.apply(status)
	case api.StatusFailed:
		return styleRed.apply(status)
	default:
		return styleYellow.apply(status)
	}
}
