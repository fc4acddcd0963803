package review

import (
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

// SaveState is the per-item save outcome accumulated during saving.
type SaveState string

// Save states.
const (
	// SavePending means the item has not reported a save outcome yet.
	SavePending SaveState = "pending"
	// SaveSucceeded means the item was persisted.
	SaveSucceeded SaveState = "saved"
	// SaveFailed means the item's save failed; the rest of the batch
	// continues regardless.
	SaveFailed SaveState = "failed"
)

// Item is one receipt under review. It is a detached view of a batch
// receipt: mutating it never reaches back into the scan machine.
type Item struct {
	ID        string                 `json:"id"`
	SaveState SaveState              `json:"save_state"`
	Err       string                 `json:"error,omitempty"`
	Edited    bool                   `json:"edited,omitempty"`
	Draft     model.TransactionDraft `json:"draft"`
}

// ItemsFromReceipts converts batch receipts into review items. Receipts
// whose analysis failed carry no draft and are skipped; they have nothing
// to review or save.
func ItemsFromReceipts(receipts []scan.BatchReceipt) []Item {
	items := make([]Item, 0, len(receipts))
	for _, r := range receipts {
		if r.Status == scan.ReceiptError {
			continue
		}
		items = append(items, Item{
			ID:        r.ID,
			SaveState: SavePending,
			Edited:    r.Status == scan.ReceiptEdited,
			Draft:     r.Draft,
		})
	}
	return items
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if it.Draft.Items != nil {
			out[i].Draft.Items = append([]model.ReceiptItem(nil), it.Draft.Items...)
		}
	}
	return out
}
