package scan

import (
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// ImageRef references a captured image. Bytes are loaded and normalized at
// processing time, so in-flight state stays cheap to snapshot.
type ImageRef struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
}

// ReceiptStatus is the review status of a single batch receipt.
type ReceiptStatus string

// Batch receipt statuses.
const (
	// ReceiptReady means analysis succeeded and the draft looks consistent.
	ReceiptReady ReceiptStatus = "ready"
	// ReceiptReview means analysis succeeded but the draft wants attention
	// (low confidence, mismatched totals).
	ReceiptReview ReceiptStatus = "review"
	// ReceiptEdited means the user changed the draft after analysis.
	ReceiptEdited ReceiptStatus = "edited"
	// ReceiptError means analysis failed for this item.
	ReceiptError ReceiptStatus = "error"
)

// BatchReceipt is one analysis result within a batch request, independently
// reviewable and discardable. ID is stable and survives reordering;
// ImageIndex records which captured image produced it.
type BatchReceipt struct {
	ID         string                 `json:"id"`
	Status     ReceiptStatus          `json:"status"`
	Err        string                 `json:"error,omitempty"`
	Draft      model.TransactionDraft `json:"draft"`
	ImageIndex int                    `json:"image_index"`
}

// Progress tracks completion of parallel batch processing.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Done reports whether every item has reported success or error.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Completed >= p.Total
}

// Request is the root aggregate of the scan pipeline. Exactly one live
// instance exists per machine; starting a new request is only legal from
// idle. The struct is JSON-serializable so in-flight state can be snapshotted
// across restarts.
type Request struct {
	StartedAt         time.Time                `json:"started_at"`
	RequestID         string                   `json:"request_id,omitempty"`
	UserID            string                   `json:"user_id,omitempty"`
	Phase             Phase                    `json:"phase"`
	Mode              Mode                     `json:"mode,omitempty"`
	Err               string                   `json:"error,omitempty"`
	StoreHint         string                   `json:"store_hint,omitempty"`
	CurrencyHint      string                   `json:"currency_hint,omitempty"`
	Images            []ImageRef               `json:"images,omitempty"`
	Results           []model.TransactionDraft `json:"results,omitempty"`
	BatchReceipts     []BatchReceipt           `json:"batch_receipts,omitempty"`
	ActiveDialog      *Dialog                  `json:"active_dialog,omitempty"`
	Credit            CreditLifecycle          `json:"credit"`
	BatchProgress     Progress                 `json:"batch_progress"`
	ActiveResultIndex int                      `json:"active_result_index"`
	BatchEditingIndex int                      `json:"batch_editing_index"`
}

// idleRequest returns the canonical retired state.
func idleRequest() Request {
	return Request{
		Phase:             PhaseIdle,
		Credit:            CreditLifecycle{Status: CreditNone},
		BatchEditingIndex: -1,
	}
}

// clone returns a copy with all slices and the dialog detached, so observers
// can hold the result without aliasing machine state.
func (r Request) clone() Request {
	out := r
	if r.Images != nil {
		out.Images = append([]ImageRef(nil), r.Images...)
	}
	if r.Results != nil {
		out.Results = make([]model.TransactionDraft, len(r.Results))
		for i, d := range r.Results {
			out.Results[i] = cloneDraft(d)
		}
	}
	if r.BatchReceipts != nil {
		out.BatchReceipts = make([]BatchReceipt, len(r.BatchReceipts))
		for i, br := range r.BatchReceipts {
			out.BatchReceipts[i] = br
			out.BatchReceipts[i].Draft = cloneDraft(br.Draft)
		}
	}
	if r.ActiveDialog != nil {
		d := *r.ActiveDialog
		out.ActiveDialog = &d
	}
	return out
}

func cloneDraft(d model.TransactionDraft) model.TransactionDraft {
	out := d
	if d.Items != nil {
		out.Items = append([]model.ReceiptItem(nil), d.Items...)
	}
	return out
}

// receiptIndexByID finds a batch receipt by its stable ID, or -1.
func (r *Request) receiptIndexByID(id string) int {
	for i := range r.BatchReceipts {
		if r.BatchReceipts[i].ID == id {
			return i
		}
	}
	return -1
}

// receiptIndexByImage finds the batch receipt produced by an image index, or -1.
func (r *Request) receiptIndexByImage(imageIndex int) int {
	for i := range r.BatchReceipts {
		if r.BatchReceipts[i].ImageIndex == imageIndex {
			return i
		}
	}
	return -1
}
