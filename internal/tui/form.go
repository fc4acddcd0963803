package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/review"
)

const dateLayout = "02/01/2006"

// Form field indices.
const (
	fieldMerchant = iota
	fieldTotal
	fieldDate
	fieldCurrency
	fieldCategory
	fieldNotes
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Merchant",
	"Total",
	"Date",
	"Currency",
	"Category",
	"Notes",
}

// editForm is the inline edit form for one receipt under review. It is
// prefilled from the item's draft; patch() reports only the fields the
// user actually changed.
type editForm struct {
	item   review.Item
	inputs [fieldCount]textinput.Model
	focus  int
	errMsg string
}

func newEditForm(item review.Item) editForm {
	f := editForm{item: item}

	for i := range f.inputs {
		in := textinput.New()
		in.CharLimit = 100
		in.Prompt = ""
		f.inputs[i] = in
	}

	d := item.Draft
	f.inputs[fieldMerchant].SetValue(d.Merchant)
	f.inputs[fieldTotal].SetValue(strconv.FormatFloat(d.Total, 'f', -1, 64))
	f.inputs[fieldDate].SetValue(d.Date.Format(dateLayout))
	f.inputs[fieldDate].Placeholder = "DD/MM/YYYY"
	f.inputs[fieldCurrency].SetValue(d.Currency)
	f.inputs[fieldCurrency].CharLimit = 3
	f.inputs[fieldCategory].SetValue(d.Category)
	f.inputs[fieldNotes].SetValue(d.Notes)

	f.inputs[fieldMerchant].Focus()
	return f
}

func (f editForm) Update(msg tea.Msg) (editForm, tea.Cmd) {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f editForm) moveFocus(delta int) (editForm, tea.Cmd) {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + fieldCount) % fieldCount
	f.errMsg = ""
	return f, f.inputs[f.focus].Focus()
}

// patch builds a DraftPatch from the fields that differ from the draft.
// A validation failure leaves the form open with the message set.
func (f editForm) patch() (model.DraftPatch, error) {
	var p model.DraftPatch
	d := f.item.Draft

	if v := strings.TrimSpace(f.inputs[fieldMerchant].Value()); v != "" && v != d.Merchant {
		p.Merchant = &v
	}

	if v := strings.TrimSpace(f.inputs[fieldTotal].Value()); v != "" {
		total, err := cli.ParseAmount(v)
		if err != nil {
			return p, fmt.Errorf("total must be a non-negative amount")
		}
		if total != d.Total {
			p.Total = &total
		}
	}

	if v := strings.TrimSpace(f.inputs[fieldDate].Value()); v != "" && v != d.Date.Format(dateLayout) {
		date, err := time.Parse(dateLayout, v)
		if err != nil {
			return p, fmt.Errorf("date must be DD/MM/YYYY")
		}
		p.Date = &date
	}

	if v := strings.ToUpper(strings.TrimSpace(f.inputs[fieldCurrency].Value())); v != "" && v != d.Currency {
		p.Currency = &v
	}

	if v := strings.TrimSpace(f.inputs[fieldCategory].Value()); v != "" && v != d.Category {
		p.Category = &v
	}

	if v := strings.TrimSpace(f.inputs[fieldNotes].Value()); v != d.Notes {
		p.Notes = &v
	}

	return p, nil
}

func (f editForm) view(theme Theme) string {
	rows := make([]string, 0, fieldCount+2)
	rows = append(rows, theme.Bold.Render("Edit " + f.item.Draft.Merchant))

	for i, in := range f.inputs {
		label := fieldLabels[i]
		style := theme.Muted
		if i == f.focus {
			style = theme.Normal
		}
		rows = append(rows, fmt.Sprintf("%s %s", style.Render(fmt.Sprintf("%-9s", label+":")), in.View()))
	}

	if f.errMsg != "" {
		rows = append(rows, theme.StatusError.Render(f.errMsg))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
