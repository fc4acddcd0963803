package scan

import (
	"errors"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// DialogType identifies a blocking decision the pipeline can raise.
type DialogType string

// Dialog types.
const (
	// DialogCurrencyMismatch asks whether to keep the detected currency or
	// the one configured for the user.
	DialogCurrencyMismatch DialogType = "currencyMismatch"
	// DialogTotalMismatch asks whether to keep the stated total or the item sum.
	DialogTotalMismatch DialogType = "totalMismatch"
	// DialogQuickSave offers saving a high-confidence single result without review.
	DialogQuickSave DialogType = "quickSave"
	// DialogBatchDiscard confirms discarding a batch receipt.
	DialogBatchDiscard DialogType = "batchDiscard"
	// DialogCreditWarning warns that the credit balance cannot cover the scan.
	DialogCreditWarning DialogType = "creditWarning"
	// DialogBatchComplete reports the per-item outcome of a finished batch.
	DialogBatchComplete DialogType = "batchComplete"
)

// Dialog is a pending blocking decision. It is orthogonal to the phase: the
// pipeline resumes exactly where it left off once the dialog resolves.
//
// Payload carries one of the *Payload structs below. It survives JSON
// marshaling of in-flight state only as loose data; restored requests drop
// the dialog because its continuation cannot be rehydrated.
type Dialog struct {
	Payload any        `json:"payload,omitempty"`
	Type    DialogType `json:"type"`
}

// CurrencyMismatchPayload describes a detected/expected currency conflict.
type CurrencyMismatchPayload struct {
	Expected string `json:"expected"`
	Detected string `json:"detected"`
}

// TotalMismatchPayload describes a stated total that disagrees with the item sum.
type TotalMismatchPayload struct {
	Stated   float64 `json:"stated"`
	Computed float64 `json:"computed"`
}

// QuickSavePayload offers immediate save of a confident single result.
type QuickSavePayload struct {
	Merchant   string  `json:"merchant"`
	Total      float64 `json:"total"`
	Currency   string  `json:"currency"`
	Confidence float64 `json:"confidence"`
}

// BatchDiscardPayload asks for confirmation before removing a receipt.
type BatchDiscardPayload struct {
	ReceiptID string `json:"receipt_id"`
	Merchant  string `json:"merchant"`
}

// CreditWarningPayload reports a balance that cannot cover the reservation.
type CreditWarningPayload struct {
	Type     CreditType `json:"type"`
	Balance  int        `json:"balance"`
	Required int        `json:"required"`
}

// BatchCompletePayload summarizes a finished batch run.
type BatchCompletePayload struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// DialogResult is the user's decision, delivered to whichever pipeline
// goroutine is awaiting the dialog.
type DialogResult struct {
	Patch     *model.DraftPatch `json:"patch,omitempty"`
	Choice    string            `json:"choice,omitempty"`
	Accepted  bool              `json:"accepted"`
	Dismissed bool              `json:"dismissed"`
}

// ErrDialogActive is returned by ShowDialog while another dialog is pending.
// The active dialog's payload is never overwritten.
var ErrDialogActive = errors.New("another dialog is already active")

// ErrNoActiveRequest is returned by ShowDialog when no request is in flight.
var ErrNoActiveRequest = errors.New("no active scan request")

// ShowDialog registers a blocking decision point and returns the channel the
// resolution will arrive on. The phase does not change. The channel is
// buffered: resolution never blocks the resolver.
func (m *Machine) ShowDialog(d Dialog) (<-chan DialogResult, error) {
	if m.req.Phase == PhaseIdle {
		m.reject("showDialog", m.req.Phase, "no active request")
		return nil, ErrNoActiveRequest
	}
	if m.req.ActiveDialog != nil {
		m.reject("showDialog", m.req.Phase, "dialog "+string(m.req.ActiveDialog.Type)+" already active")
		return nil, ErrDialogActive
	}

	ch := make(chan DialogResult, 1)
	m.pending[d.Type] = ch
	dialog := d
	m.req.ActiveDialog = &dialog
	return ch, nil
}

// ResolveDialog delivers the user's decision for the active dialog of the
// given type and clears it. Reports whether a pending dialog was resolved.
func (m *Machine) ResolveDialog(t DialogType, result DialogResult) bool {
	if m.req.ActiveDialog == nil {
		m.reject("resolveDialog", m.req.Phase, "no active dialog")
		return false
	}
	if m.req.ActiveDialog.Type != t {
		m.reject("resolveDialog", m.req.Phase,
			"active dialog is "+string(m.req.ActiveDialog.Type)+", not "+string(t))
		return false
	}

	ch, ok := m.pending[t]
	if !ok {
		// Dialog restored from a snapshot has no continuation; just clear it.
		m.req.ActiveDialog = nil
		m.reject("resolveDialog", m.req.Phase, "dialog has no pending continuation")
		return false
	}

	delete(m.pending, t)
	m.req.ActiveDialog = nil
	ch <- result
	return true
}

// DismissDialog clears the active dialog without a decision. The awaiting
// pipeline treats dismissal as cancel-equivalent.
func (m *Machine) DismissDialog() bool {
	if m.req.ActiveDialog == nil {
		m.reject("dismissDialog", m.req.Phase, "no active dialog")
		return false
	}
	return m.ResolveDialog(m.req.ActiveDialog.Type, DialogResult{Dismissed: true})
}

// drainDialogs dismisses every pending continuation. Called on cancel/reset
// so awaiting goroutines unblock instead of leaking.
func (m *Machine) drainDialogs() {
	for t, ch := range m.pending {
		ch <- DialogResult{Dismissed: true}
		delete(m.pending, t)
	}
	m.req.ActiveDialog = nil
}
