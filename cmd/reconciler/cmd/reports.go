package cmd

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/internal/storage"
)

func newReportsCommand(a *app) *cobra.Command {
	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse saved reports",
		Long: `Reports lists and shows reconciliation reports saved with
'reconciler reconcile --save' or through the HTTP API.`,
	}

	reportsCmd.AddCommand(newReportsListCommand(a), newReportsShowCommand(a))
	return reportsCmd
}

func newReportsListCommand(a *app) *cobra.Command {
	var page int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := storage.NewStorage(ctx, a.config.Storage.Path, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.List(ctx, page)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Total == 0 {
				fmt.Fprintln(out, "No saved reports.")
				return nil
			}

			header := color.New(color.Bold)
			if !a.config.Report.UseColors {
				header.DisableColor()
			}

			// colour is applied after alignment so escape codes do not skew the columns
			var table bytes.Buffer
			tw := tabwriter.NewWriter(&table, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREATED\tMATCHED\tANOMALIES")
			for _, item := range result.Reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
					item.ID, item.Name, item.CreatedAt.Local().Format("2006-01-02 15:04"),
					item.MatchedCount, item.AnomalyCount)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			first, rest, _ := strings.Cut(table.String(), "\n")
			header.Fprintln(out, first)
			fmt.Fprint(out, rest)

			fmt.Fprintf(out, "\nPage %d of %d (%d reports)\n", result.Page, result.TotalPages, result.Total)
			return nil
		},
	}

	listCmd.Flags().IntVar(&page, "page", 1, "page to show")
	return listCmd
}

func newReportsShowCommand(a *app) *cobra.Command {
	var outputFile string

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Render a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := storage.NewStorage(ctx, a.config.Storage.Path, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			saved, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			reportConfig := a.config.ReportConfig()
			if outputFile != "" {
				reportConfig.UseColors = false
			}
			generator, err := reporter.NewSafeReportGenerator(reportConfig, a.logger)
			if err != nil {
				return err
			}

			if outputFile != "" {
				written, err := generator.GenerateToFile(saved.Report, outputFile)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", written)
				return nil
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%s (saved %s)\n\n", saved.Name, saved.CreatedAt.Local().Format("2006-01-02 15:04"))
			return generator.GenerateReportSafely(saved.Report, cmd.OutOrStdout())
		},
	}

	showCmd.Flags().StringP("format", "f", config.Default().Report.Format, "output format: console, json, csv")
	showCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file path (default: stdout)")
	bindFlag(showCmd.Flags(), "format", "report.format")

	return showCmd
}
