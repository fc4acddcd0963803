package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

func creditsCmd() *cobra.Command {
	var (
		grant      int
		superGrant bool
		note       string
	)

	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Show or grant scan credits",
		Long: `Show the remaining scan credits. Single scans spend regular credits;
batches and statements spend super credits, one per image. --grant tops
the balance up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cfg, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if grant != 0 {
				if grant < 0 {
					return fmt.Errorf("--grant must be positive")
				}
				creditType := scan.CreditRegular
				if superGrant {
					creditType = scan.CreditSuper
				}
				if err := store.GrantCredits(ctx, cfg.User.ID, creditType, grant, note); err != nil {
					return fmt.Errorf("granting credits: %w", err)
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Granted %d %s credit(s)", grant, creditType)))
			}

			balance, err := store.GetCreditBalance(ctx, cfg.User.ID)
			if err != nil {
				return fmt.Errorf("loading credit balance: %w", err)
			}

			fmt.Println(cli.FormatTitle("Scan credits"))
			fmt.Println()
			fmt.Printf("  Regular: %d\n", balance.Regular)
			fmt.Printf("  Super:   %d\n", balance.Super)
			if cfg.Credits.AllowOverdraft {
				fmt.Println()
				fmt.Println(cli.SubtleStyle.Render("  Overdraft is enabled; scans keep working at zero."))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&grant, "grant", 0, "Grant this many credits before showing the balance")
	cmd.Flags().BoolVar(&superGrant, "super", false, "Grant super credits instead of regular")
	cmd.Flags().StringVar(&note, "note", "", "Note to record with the grant")

	return cmd
}
