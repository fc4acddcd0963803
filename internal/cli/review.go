package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
)

// ReviewSingle drives the review of a single scanned receipt: show the
// extracted draft, let the user edit fields, and save or cancel. Returns
// the saved expense, or nil when the user canceled.
func (p *Prompter) ReviewSingle(ctx context.Context, svc *session.Service) (*model.Expense, error) {
	for {
		if svc.Phase() != scan.PhaseReviewing {
			return nil, fmt.Errorf("nothing is under review")
		}

		results := svc.Results()
		index := svc.Request().ActiveResultIndex
		if index < 0 || index >= len(results) {
			return nil, fmt.Errorf("no extracted result to review")
		}
		draft := results[index]

		p.println(RenderBox("Receipt", formatDraft(draft)))
		p.println("  [S] Save the expense")
		p.println("  [E] Edit fields")
		p.println("  [C] Cancel the scan")

		choice, err := p.promptChoice(ctx, "Choice", []string{"s", "e", "c"})
		if err != nil {
			return nil, err
		}

		switch choice {
		case "s":
			expense, err := svc.Save(ctx)
			if err != nil {
				// A failed save returns the request to review; report and
				// let the user edit or cancel.
				p.println(FormatError(svc.Err()))
				continue
			}
			p.println(FormatSuccess(fmt.Sprintf("Saved %s %s",
				expense.Draft.Merchant, FormatAmount(expense.Draft.Total, expense.Draft.Currency))))
			return expense, nil

		case "e":
			patch, err := p.editDraft(ctx, draft)
			if err != nil {
				return nil, err
			}
			if !patch.IsZero() {
				if err := svc.UpdateDraft(ctx, patch); err != nil {
					p.println(FormatError(err.Error()))
				}
			}

		case "c":
			if err := svc.Cancel(ctx); err != nil {
				return nil, err
			}
			p.println(FormatInfo("Scan canceled; your credit was refunded."))
			return nil, nil
		}
	}
}

// editDraft prompts for each field; blank input keeps the current value.
func (p *Prompter) editDraft(ctx context.Context, draft model.TransactionDraft) (model.DraftPatch, error) {
	var patch model.DraftPatch
	p.println(SubtleStyle.Render("Press enter to keep the current value."))

	if v, err := p.promptLine(ctx, fmt.Sprintf("Merchant [%s]", draft.Merchant)); err != nil {
		return patch, err
	} else if v != "" {
		patch.Merchant = &v
	}

	for {
		v, err := p.promptLine(ctx, fmt.Sprintf("Total [%s]", FormatAmount(draft.Total, draft.Currency)))
		if err != nil {
			return patch, err
		}
		if v == "" {
			break
		}
		total, perr := ParseAmount(v)
		if perr != nil {
			p.println(FormatError("Enter a non-negative number."))
			continue
		}
		patch.Total = &total
		break
	}

	for {
		v, err := p.promptLine(ctx, fmt.Sprintf("Date [%s] (DD/MM/YYYY)", draft.Date.Format("02/01/2006")))
		if err != nil {
			return patch, err
		}
		if v == "" {
			break
		}
		date, perr := time.Parse("02/01/2006", v)
		if perr != nil {
			p.println(FormatError("Enter the date as DD/MM/YYYY."))
			continue
		}
		patch.Date = &date
		break
	}

	if v, err := p.promptLine(ctx, fmt.Sprintf("Currency [%s]", draft.Currency)); err != nil {
		return patch, err
	} else if v != "" {
		code := strings.ToUpper(v)
		patch.Currency = &code
	}

	p.println(SubtleStyle.Render("Categories: " + strings.Join(categoryNames(), ", ")))
	if v, err := p.promptLine(ctx, fmt.Sprintf("Category [%s]", draft.Category)); err != nil {
		return patch, err
	} else if v != "" {
		patch.Category = &v
	}

	if v, err := p.promptLine(ctx, fmt.Sprintf("Notes [%s]", draft.Notes)); err != nil {
		return patch, err
	} else if v != "" {
		patch.Notes = &v
	}

	return patch, nil
}

func formatDraft(d model.TransactionDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.Merchant)
	fmt.Fprintf(&b, "%s  %s\n", FormatAmount(d.Total, d.Currency), d.Date.Format("02/01/2006"))
	fmt.Fprintf(&b, "Category: %s", orDash(d.Category))
	if d.StoreType != "" {
		fmt.Fprintf(&b, "  (%s)", d.StoreType)
	}
	if len(d.Items) > 0 {
		fmt.Fprintf(&b, "\nItems: %d", len(d.Items))
	}
	if d.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", d.Notes)
	}
	fmt.Fprintf(&b, "\n%s", SubtleStyle.Render(fmt.Sprintf("confidence %.0f%%", d.Confidence*100)))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func categoryNames() []string {
	cats := model.DefaultCategories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

