package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/config"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/review"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/statement"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/tui"
)

func scanCmd() *cobra.Command {
	var (
		batchMode     bool
		statementMode bool
		plaidMode     bool
		storeType     string
		since         string
	)

	cmd := &cobra.Command{
		Use:   "scan [images...]",
		Short: "Scan receipts and save them as expenses",
		Long: `Analyze captured receipt images with Gemini vision and save the extracted
purchases after review.

One image is a single scan: review it field by field, or accept the
quick-save offer when extraction confidence is high. Several images (or
--batch) run in parallel and open the batch review screen.

--statement treats the input as a bank statement: a cartola photo is
analyzed as one statement image, while .ofx/.qfx files are parsed
directly. --plaid skips files entirely and pulls recent transactions
from the connected account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if plaidMode {
				return runPlaidImport(ctx, since)
			}
			if statementMode && len(args) == 1 && isStatementFile(args[0]) {
				return runStatementImport(ctx, args[0])
			}
			if len(args) == 0 {
				return fmt.Errorf("nothing to scan: pass at least one image")
			}

			hints := session.Hints{StoreType: storeType}
			switch {
			case statementMode:
				if len(args) > 1 {
					return fmt.Errorf("a statement scan takes one image; got %d", len(args))
				}
				return runImageScan(ctx, scan.ModeStatement, hints, args)
			case batchMode || len(args) > 1:
				return runImageScan(ctx, scan.ModeBatch, hints, args)
			default:
				return runSingleScan(ctx, hints, args[0])
			}
		},
	}

	cmd.Flags().BoolVar(&batchMode, "batch", false, "Scan several receipts in one batch")
	cmd.Flags().BoolVar(&statementMode, "statement", false, "Treat the input as a bank statement")
	cmd.Flags().BoolVar(&plaidMode, "plaid", false, "Pull recent transactions from Plaid instead of scanning")
	cmd.Flags().StringVar(&storeType, "store-type", "", "Store type hint for extraction (supermarket, pharmacy, ...)")
	cmd.Flags().StringVar(&since, "since", "", "Start date for --plaid pulls (format: 2026-07-01, default 30 days back)")

	return cmd
}

func runSingleScan(ctx context.Context, hints session.Hints, image string) error {
	prompter := stdPrompter()
	svc, cleanup, err := initSession(ctx, prompter)
	if err != nil {
		return err
	}
	defer cleanup()

	interrupt := cli.NewInterruptHandler(nil)
	ctx = interrupt.Handle(ctx)

	if err := svc.Start(scan.ModeSingle, hints); err != nil {
		return err
	}
	if err := svc.AddImages(ctx, image); err != nil {
		return err
	}

	expense, err := svc.Process(ctx)
	if err != nil {
		if interrupt.Interrupted() || errors.Is(err, context.Canceled) {
			fmt.Println(cli.FormatWarning("Scan canceled; reserved credits were refunded."))
			return nil
		}
		return err
	}
	if expense != nil {
		// Quick save accepted inside the dialog chain.
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("Saved %s %s",
			expense.Draft.Merchant, cli.FormatAmount(expense.Draft.Total, expense.Draft.Currency))))
		return nil
	}

	_, err = prompter.ReviewSingle(ctx, svc)
	if interrupt.Interrupted() {
		return nil
	}
	return err
}

func runImageScan(ctx context.Context, mode scan.Mode, hints session.Hints, images []string) error {
	svc, cleanup, err := initSession(ctx, stdPrompter())
	if err != nil {
		return err
	}
	defer cleanup()

	interrupt := cli.NewInterruptHandler(nil)
	ctx = interrupt.Handle(ctx)

	if err := svc.Start(mode, hints); err != nil {
		return err
	}
	if err := svc.AddImages(ctx, images...); err != nil {
		return err
	}

	progress := cli.StartBatchProgress(svc.Progress, nil)
	_, err = svc.Process(ctx)
	progress.Stop()
	if err != nil {
		if interrupt.Interrupted() || errors.Is(err, context.Canceled) {
			fmt.Println(cli.FormatWarning("Scan canceled; reserved credits were refunded."))
			return nil
		}
		return err
	}

	return openReview(ctx, svc)
}

func runStatementImport(ctx context.Context, path string) error {
	svc, cleanup, err := initSession(ctx, stdPrompter())
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := svc.ImportStatement(ctx, path)
	if err != nil {
		return err
	}
	fmt.Println(cli.FormatInfo(fmt.Sprintf("Parsed %d transaction(s) from %s.", n, filepath.Base(path))))

	return openReview(ctx, svc)
}

func runPlaidImport(ctx context.Context, since string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	start := time.Now().AddDate(0, 0, -30)
	if since != "" {
		start, err = time.Parse("2006-01-02", since)
		if err != nil {
			return fmt.Errorf("--since must look like 2026-07-01")
		}
	}

	client, err := statement.NewPlaidClient(statement.PlaidConfig{
		ClientID:    cfg.Plaid.ClientID,
		Secret:      cfg.Plaid.Secret,
		Environment: cfg.Plaid.Environment,
		AccessToken: cfg.Plaid.AccessToken,
	})
	if err != nil {
		return err
	}

	drafts, err := client.FetchDrafts(ctx, start, time.Now())
	if err != nil {
		return fmt.Errorf("fetching from plaid: %w", err)
	}
	if len(drafts) == 0 {
		fmt.Println(cli.FormatInfo("No new purchases in the requested window."))
		return nil
	}

	svc, cleanup, err := initSession(ctx, stdPrompter())
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := svc.LoadDraftsForReview(ctx, drafts)
	if err != nil {
		return err
	}
	fmt.Println(cli.FormatInfo(fmt.Sprintf("Fetched %d purchase(s) from Plaid.", n)))

	return openReview(ctx, svc)
}

// openReview hands a finished scan or import to the batch review screen.
// A declined batch summary leaves the receipts parked on the request; tell
// the user how to come back instead of forcing the screen open.
func openReview(ctx context.Context, svc *session.Service) error {
	if svc.ReviewPhase() != review.PhaseReviewing {
		if svc.Phase() == scan.PhaseReviewing {
			fmt.Println(cli.FormatInfo("Batch kept for later. Run 'boleta review' when ready."))
		}
		return nil
	}

	if err := tui.Run(ctx, svc); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	reportReviewOutcome(svc)
	return nil
}

func reportReviewOutcome(svc *session.Service) {
	saved, failed, _ := svc.ReviewCounts()
	switch {
	case saved > 0 && failed > 0:
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Saved %d receipt(s); %d failed.", saved, failed)))
	case saved > 0:
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("Saved %d receipt(s).", saved)))
	case failed > 0:
		fmt.Println(cli.FormatError(fmt.Sprintf("No receipts saved; %d failed. The batch is still open for another try.", failed)))
	default:
		fmt.Println(cli.FormatInfo("Nothing saved yet. Run 'boleta review' to pick the batch back up."))
	}
}

func isStatementFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return true
	}
	return false
}
