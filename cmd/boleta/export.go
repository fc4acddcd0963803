package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/config"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/sheets"
)

func exportCmd() *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a month to Google Sheets",
		Long: `Write a month of expenses to its tab in the configured Google Sheets
spreadsheet. The tab is rebuilt from scratch on every export, so running
it again after new scans is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			start, end, err := monthRange(month)
			if err != nil {
				return err
			}

			sheetsCfg, err := config.LoadSheetsConfig()
			if err != nil {
				return fmt.Errorf("sheets configuration: %w", err)
			}

			store, cfg, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			expenses, err := store.ListExpenses(ctx, session.ExpenseFilter{
				UserID:    cfg.User.ID,
				StartDate: &start,
				EndDate:   &end,
			})
			if err != nil {
				return err
			}
			if len(expenses) == 0 {
				fmt.Println(cli.FormatInfo("No expenses recorded in " + month + "; nothing to export."))
				return nil
			}

			exporter, err := sheets.NewExporter(ctx, *sheetsCfg, slog.Default())
			if err != nil {
				return err
			}

			if err := exporter.Export(ctx, expenses, start); err != nil {
				return fmt.Errorf("exporting to sheets: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Exported %d expense(s) to tab %s",
				len(expenses), sheets.MonthTab(start))))
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", currentMonth(), "Month to export (format: 2026-08)")

	return cmd
}
