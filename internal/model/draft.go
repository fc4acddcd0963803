// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"math"
	"time"
)

// DraftSource indicates where a transaction draft came from.
type DraftSource string

const (
	// SourceScan indicates the draft was extracted from a captured image.
	SourceScan DraftSource = "scan"
	// SourceStatement indicates the draft was imported from a bank statement.
	SourceStatement DraftSource = "statement"
)

// ReceiptItem is a single line item extracted from a receipt.
type ReceiptItem struct {
	Name     string  `json:"name" validate:"required"`
	Category string  `json:"category,omitempty"`
	Quantity int     `json:"quantity" validate:"gte=1"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// TransactionDraft is an extracted transaction awaiting review and save.
type TransactionDraft struct {
	Date               time.Time     `json:"date" validate:"required"`
	Merchant           string        `json:"merchant" validate:"required"`
	NormalizedMerchant string        `json:"normalized_merchant,omitempty"`
	Category           string        `json:"category,omitempty"`
	StoreType          string        `json:"store_type,omitempty"`
	Currency           string        `json:"currency" validate:"required,iso4217"`
	Notes              string        `json:"notes,omitempty"`
	Source             DraftSource   `json:"source"`
	Items              []ReceiptItem `json:"items,omitempty"`
	Total              float64       `json:"total" validate:"gte=0"`
	Confidence         float64       `json:"confidence"`
}

// ItemsTotal sums the line items, accounting for quantity.
func (d *TransactionDraft) ItemsTotal() float64 {
	var total float64
	for _, item := range d.Items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		total += item.Price * float64(qty)
	}
	return total
}

// TotalsDisagree reports whether the stated total and the item sum differ by
// more than the tolerance. Drafts without items never disagree.
func (d *TransactionDraft) TotalsDisagree(tolerance float64) bool {
	if len(d.Items) == 0 {
		return false
	}
	return math.Abs(d.Total-d.ItemsTotal()) > tolerance
}

// GenerateHash creates a unique hash for duplicate detection.
func (d *TransactionDraft) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		d.Date.Format("2006-01-02"),
		d.Total,
		d.Merchant,
		d.Currency)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// DraftPatch is a partial update to a TransactionDraft. Nil fields are left
// untouched.
type DraftPatch struct {
	Merchant *string        `json:"merchant,omitempty"`
	Total    *float64       `json:"total,omitempty"`
	Date     *time.Time     `json:"date,omitempty"`
	Currency *string        `json:"currency,omitempty"`
	Category *string        `json:"category,omitempty"`
	Notes    *string        `json:"notes,omitempty"`
	Items    *[]ReceiptItem `json:"items,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p DraftPatch) IsZero() bool {
	return p.Merchant == nil && p.Total == nil && p.Date == nil &&
		p.Currency == nil && p.Category == nil && p.Notes == nil && p.Items == nil
}

// Apply copies the patch's non-nil fields onto the draft.
func (p DraftPatch) Apply(d *TransactionDraft) {
	if p.Merchant != nil {
		d.Merchant = *p.Merchant
	}
	if p.Total != nil {
		d.Total = *p.Total
	}
	if p.Date != nil {
		d.Date = *p.Date
	}
	if p.Currency != nil {
		d.Currency = *p.Currency
	}
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.Items != nil {
		d.Items = append([]ReceiptItem(nil), (*p.Items)...)
	}
}
