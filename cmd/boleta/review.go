package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/tui"
)

func reviewCmd() *cobra.Command {
	var discard bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Resume a pending review",
		Long: `Pick up receipts that were scanned but not saved yet. A single scan
reopens the field-by-field prompts; a batch or statement opens the
batch review screen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prompter := stdPrompter()
			svc, cleanup, err := initSession(ctx, prompter)
			if err != nil {
				return err
			}
			defer cleanup()

			if discard {
				if !svc.HasActiveRequest() {
					fmt.Println(cli.FormatInfo("Nothing to discard."))
					return nil
				}
				if err := svc.Cancel(ctx); err != nil {
					return err
				}
				fmt.Println(cli.FormatSuccess("Pending scan discarded."))
				return nil
			}

			switch svc.Phase() {
			case scan.PhaseReviewing:
			case scan.PhaseError:
				fmt.Println(cli.FormatError("Last scan failed: " + svc.Err()))
				if err := svc.Cancel(ctx); err != nil {
					return err
				}
				fmt.Println(cli.FormatInfo("The request was cleared. Run 'boleta scan' to try again."))
				return nil
			default:
				fmt.Println(cli.FormatInfo("Nothing to review. Scan a receipt first."))
				return nil
			}

			if svc.Mode() == scan.ModeSingle {
				_, err := prompter.ReviewSingle(ctx, svc)
				return err
			}

			if err := svc.BeginReview(); err != nil {
				return err
			}
			if err := tui.Run(ctx, svc); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			reportReviewOutcome(svc)
			return nil
		},
	}

	cmd.Flags().BoolVar(&discard, "discard", false, "Abandon the pending scan instead of reviewing it")

	return cmd
}
