package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

// Prompter renders scan dialogs on the terminal and collects the user's
// decision. It implements the session's Prompter interface; every dialog
// read honors context cancellation and degrades to a dismissal.
type Prompter struct {
	reader *NonBlockingReader
	writer io.Writer
}

// NewPrompter creates a terminal prompter. Nil reader/writer default to
// stdin/stdout.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{
		reader: NewNonBlockingReader(reader),
		writer: writer,
	}
}

// Resolve renders the dialog and blocks until the user decides. Read
// failures and cancellation come back as a dismissal, never an error: the
// pipeline treats dismissal as "keep what you had".
func (p *Prompter) Resolve(ctx context.Context, d scan.Dialog) scan.DialogResult {
	switch d.Type {
	case scan.DialogCurrencyMismatch:
		if payload, ok := d.Payload.(scan.CurrencyMismatchPayload); ok {
			return p.currencyMismatch(ctx, payload)
		}
	case scan.DialogTotalMismatch:
		if payload, ok := d.Payload.(scan.TotalMismatchPayload); ok {
			return p.totalMismatch(ctx, payload)
		}
	case scan.DialogQuickSave:
		if payload, ok := d.Payload.(scan.QuickSavePayload); ok {
			return p.quickSave(ctx, payload)
		}
	case scan.DialogBatchDiscard:
		if payload, ok := d.Payload.(scan.BatchDiscardPayload); ok {
			return p.batchDiscard(ctx, payload)
		}
	case scan.DialogCreditWarning:
		if payload, ok := d.Payload.(scan.CreditWarningPayload); ok {
			return p.creditWarning(ctx, payload)
		}
	case scan.DialogBatchComplete:
		if payload, ok := d.Payload.(scan.BatchCompletePayload); ok {
			return p.batchComplete(ctx, payload)
		}
	}
	return scan.DialogResult{Dismissed: true}
}

func (p *Prompter) currencyMismatch(ctx context.Context, payload scan.CurrencyMismatchPayload) scan.DialogResult {
	content := fmt.Sprintf("The receipt reads %s, but your expenses are tracked in %s.",
		WarningStyle.Render(payload.Detected), InfoStyle.Render(payload.Expected))
	p.println(RenderBox("Currency mismatch", content))
	p.println(fmt.Sprintf("  [K] Keep %s from the receipt", payload.Detected))
	p.println(fmt.Sprintf("  [U] Use %s", payload.Expected))
	p.println("  [O] Enter another currency")

	choice, err := p.promptChoice(ctx, "Choice", []string{"k", "u", "o"})
	if err != nil {
		return scan.DialogResult{Dismissed: true}
	}

	switch choice {
	case "k":
		return scan.DialogResult{Accepted: true, Choice: payload.Detected}
	case "o":
		code, err := p.promptLine(ctx, "Currency code")
		if err != nil || code == "" {
			return scan.DialogResult{Dismissed: true}
		}
		code = strings.ToUpper(code)
		return scan.DialogResult{Accepted: true, Choice: code, Patch: &model.DraftPatch{Currency: &code}}
	default:
		return scan.DialogResult{Choice: payload.Expected}
	}
}

func (p *Prompter) totalMismatch(ctx context.Context, payload scan.TotalMismatchPayload) scan.DialogResult {
	content := fmt.Sprintf("Stated total %s does not match the item sum %s.",
		WarningStyle.Render(FormatAmount(payload.Stated, "")),
		InfoStyle.Render(FormatAmount(payload.Computed, "")))
	p.println(RenderBox("Total mismatch", content))
	p.println(fmt.Sprintf("  [K] Keep the stated total (%s)", FormatAmount(payload.Stated, "")))
	p.println(fmt.Sprintf("  [U] Use the item sum (%s)", FormatAmount(payload.Computed, "")))
	p.println("  [O] Enter the total yourself")

	choice, err := p.promptChoice(ctx, "Choice", []string{"k", "u", "o"})
	if err != nil {
		return scan.DialogResult{Dismissed: true}
	}

	switch choice {
	case "k":
		return scan.DialogResult{Accepted: true}
	case "o":
		total, err := p.promptAmount(ctx, "Total")
		if err != nil {
			return scan.DialogResult{Dismissed: true}
		}
		return scan.DialogResult{Accepted: true, Patch: &model.DraftPatch{Total: &total}}
	default:
		return scan.DialogResult{}
	}
}

func (p *Prompter) quickSave(ctx context.Context, payload scan.QuickSavePayload) scan.DialogResult {
	content := fmt.Sprintf("%s\n%s  %s",
		payload.Merchant,
		FormatAmount(payload.Total, payload.Currency),
		SubtleStyle.Render(fmt.Sprintf("confidence %.0f%%", payload.Confidence*100)))
	p.println(RenderBox("Confident result", content))
	p.println("  [S] Save it now")
	p.println("  [R] Review it first")

	choice, err := p.promptChoice(ctx, "Choice", []string{"s", "r"})
	if err != nil {
		return scan.DialogResult{Dismissed: true}
	}
	return scan.DialogResult{Accepted: choice == "s"}
}

func (p *Prompter) batchDiscard(ctx context.Context, payload scan.BatchDiscardPayload) scan.DialogResult {
	p.println(FormatWarning(fmt.Sprintf("You edited the receipt from %s. Discard it anyway?", payload.Merchant)))

	choice, err := p.promptChoice(ctx, "Discard [y/n]", []string{"y", "n"})
	if err != nil {
		return scan.DialogResult{Dismissed: true}
	}
	return scan.DialogResult{Accepted: choice == "y"}
}

func (p *Prompter) creditWarning(ctx context.Context, payload scan.CreditWarningPayload) scan.DialogResult {
	content := fmt.Sprintf("This scan needs %d %s credit(s); you have %d.",
		payload.Required, creditName(payload.Type), payload.Balance)
	p.println(RenderBox("Not enough credits", content))
	p.println("  [C] Continue anyway")
	p.println("  [A] Abort the scan")

	choice, err := p.promptChoice(ctx, "Choice", []string{"c", "a"})
	if err != nil {
		return scan.DialogResult{Dismissed: true}
	}
	return scan.DialogResult{Accepted: choice == "c"}
}

func (p *Prompter) batchComplete(ctx context.Context, payload scan.BatchCompletePayload) scan.DialogResult {
	var lines []string
	lines = append(lines, FormatSuccess(fmt.Sprintf("%d receipt(s) analyzed", payload.Succeeded)))
	if payload.Failed > 0 {
		lines = append(lines, FormatError(fmt.Sprintf("%d failed", payload.Failed)))
	}
	p.println(RenderBox("Batch finished", strings.Join(lines, "\n")))
	p.println("  [R] Review the results now")
	p.println("  [L] Leave them for later")

	choice, err := p.promptChoice(ctx, "Choice", []string{"r", "l"})
	if err != nil {
		return scan.DialogResult{Dismissed: true}
	}
	return scan.DialogResult{Accepted: choice == "r"}
}

func creditName(t scan.CreditType) string {
	if t == scan.CreditSuper {
		return "super"
	}
	return "regular"
}

// promptChoice loops until the user enters one of the valid choices.
func (p *Prompter) promptChoice(ctx context.Context, prompt string, valid []string) (string, error) {
	for {
		p.print(FormatPrompt(prompt))

		input, err := p.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}

		choice := strings.ToLower(strings.TrimSpace(input))
		for _, v := range valid {
			if choice == v {
				return choice, nil
			}
		}

		p.println(FormatError(fmt.Sprintf("Please enter one of: %s", strings.Join(valid, ", "))))
	}
}

func (p *Prompter) promptLine(ctx context.Context, prompt string) (string, error) {
	p.print(FormatPrompt(prompt))
	return p.reader.ReadLine(ctx)
}

func (p *Prompter) promptAmount(ctx context.Context, prompt string) (float64, error) {
	for {
		input, err := p.promptLine(ctx, prompt)
		if err != nil {
			return 0, err
		}

		amount, perr := ParseAmount(input)
		if perr != nil {
			p.println(FormatError("Enter a non-negative number."))
			continue
		}
		return amount, nil
	}
}

func (p *Prompter) println(s string) {
	_, _ = fmt.Fprintln(p.writer, s)
}

func (p *Prompter) print(s string) {
	_, _ = fmt.Fprint(p.writer, s)
}
