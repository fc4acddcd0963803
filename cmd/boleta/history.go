package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/storage"
)

func historyCmd() *cobra.Command {
	var (
		month      string
		category   string
		merchant   string
		limit      int
		byCategory bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show saved expenses",
		Long: `List the expenses saved in a month, newest first. --by-category trades
the list for a per-category spending summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			start, end, err := monthRange(month)
			if err != nil {
				return err
			}

			store, cfg, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if byCategory {
				return printCategoryTotals(ctx, store, cfg.User.ID, cfg.User.Currency, month, start, end)
			}
			return printExpenses(ctx, store, session.ExpenseFilter{
				UserID:    cfg.User.ID,
				StartDate: &start,
				EndDate:   &end,
				Category:  category,
				Merchant:  merchant,
				Limit:     limit,
			}, cfg.User.Currency, month)
		},
	}

	cmd.Flags().StringVar(&month, "month", currentMonth(), "Month to list (format: 2026-08)")
	cmd.Flags().StringVar(&category, "category", "", "Only expenses in this category")
	cmd.Flags().StringVar(&merchant, "merchant", "", "Only expenses from this merchant")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many expenses (0 = all)")
	cmd.Flags().BoolVar(&byCategory, "by-category", false, "Summarize spending per category instead of listing")

	return cmd
}

func printExpenses(ctx context.Context, store *storage.SQLiteStorage, filter session.ExpenseFilter, currency, month string) error {
	expenses, err := store.ListExpenses(ctx, filter)
	if err != nil {
		return err
	}
	if len(expenses) == 0 {
		fmt.Println(cli.FormatInfo("No expenses recorded in " + month + "."))
		return nil
	}

	fmt.Println(cli.FormatTitle("🧾 Expenses · " + month))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tMERCHANT\tCATEGORY\tAMOUNT")
	fmt.Fprintln(w, "────\t────────\t────────\t──────")

	var total float64
	for _, e := range expenses {
		d := e.Draft
		cat := d.Category
		if cat == "" {
			cat = "(uncategorized)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			d.Date.Format("02/01/2006"),
			d.Merchant,
			cat,
			cli.FormatAmount(d.Total, d.Currency))
		total += d.Total
	}

	fmt.Fprintln(w, "\t\t\t")
	fmt.Fprintf(w, "Total (%d)\t\t\t%s\n", len(expenses), cli.FormatAmount(total, currency))
	return w.Flush()
}

func printCategoryTotals(ctx context.Context, store *storage.SQLiteStorage, userID, currency, month string, start, end time.Time) error {
	totals, err := store.CategoryTotals(ctx, userID, start, end)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		fmt.Println(cli.FormatInfo("No expenses recorded in " + month + "."))
		return nil
	}

	fmt.Println(cli.FormatTitle("🧾 Spending by category · " + month))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tCOUNT\tTOTAL")
	fmt.Fprintln(w, "────────\t─────\t─────")

	var sum float64
	var count int
	for _, t := range totals {
		name := t.Category
		if name == "" {
			name = "(uncategorized)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, t.Count, cli.FormatAmount(t.Total, currency))
		sum += t.Total
		count += t.Count
	}

	fmt.Fprintln(w, "\t\t")
	fmt.Fprintf(w, "Total\t%d\t%s\n", count, cli.FormatAmount(sum, currency))
	return w.Flush()
}
