package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() TransactionDraft {
	return TransactionDraft{
		Date:       time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC),
		Merchant:   "LIDER",
		Category:   "Groceries",
		Currency:   "CLP",
		Source:     SourceScan,
		Total:      15990,
		Confidence: 0.95,
		Items: []ReceiptItem{
			{Name: "Pan", Quantity: 2, Price: 2495},
			{Name: "Leche", Quantity: 1, Price: 11000},
		},
	}
}

func TestItemsTotal(t *testing.T) {
	d := TransactionDraft{Items: []ReceiptItem{
		{Name: "a", Quantity: 2, Price: 500},
		{Name: "b", Quantity: 0, Price: 100},
		{Name: "c", Quantity: 1, Price: 250},
	}}
	// Zero quantity counts as one: extraction often omits it.
	assert.InDelta(t, 1350.0, d.ItemsTotal(), 0.001)

	empty := TransactionDraft{}
	assert.Zero(t, empty.ItemsTotal())
}

func TestTotalsDisagree(t *testing.T) {
	tests := []struct {
		name      string
		total     float64
		items     []ReceiptItem
		tolerance float64
		want      bool
	}{
		{
			name:  "no items never disagree",
			total: 99999,
			want:  false,
		},
		{
			name:      "within tolerance",
			total:     1000.005,
			items:     []ReceiptItem{{Name: "a", Quantity: 1, Price: 1000}},
			tolerance: 0.01,
			want:      false,
		},
		{
			name:      "beyond tolerance",
			total:     990,
			items:     []ReceiptItem{{Name: "a", Quantity: 1, Price: 1000}},
			tolerance: 0.01,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := TransactionDraft{Total: tt.total, Items: tt.items}
			assert.Equal(t, tt.want, d.TotalsDisagree(tt.tolerance))
		})
	}
}

func TestGenerateHash(t *testing.T) {
	a := validDraft()
	b := validDraft()
	assert.Equal(t, a.GenerateHash(), b.GenerateHash())
	assert.Len(t, a.GenerateHash(), 64)

	b.Merchant = "JUMBO"
	assert.NotEqual(t, a.GenerateHash(), b.GenerateHash())

	c := validDraft()
	c.Date = c.Date.AddDate(0, 0, 1)
	assert.NotEqual(t, a.GenerateHash(), c.GenerateHash())

	// Same purchase at a different time of day is still the same purchase.
	d := validDraft()
	d.Date = d.Date.Add(14 * time.Hour)
	assert.Equal(t, a.GenerateHash(), d.GenerateHash())
}

func TestDraftPatchIsZero(t *testing.T) {
	assert.True(t, DraftPatch{}.IsZero())

	merchant := "COPEC"
	assert.False(t, DraftPatch{Merchant: &merchant}.IsZero())
}

func TestDraftPatchApply(t *testing.T) {
	d := validDraft()

	merchant := "Jumbo Maipu"
	total := 12490.0
	notes := ""
	items := []ReceiptItem{{Name: "Bencina", Quantity: 1, Price: 12490}}
	patch := DraftPatch{
		Merchant: &merchant,
		Total:    &total,
		Notes:    &notes,
		Items:    &items,
	}
	patch.Apply(&d)

	assert.Equal(t, "Jumbo Maipu", d.Merchant)
	assert.InDelta(t, 12490.0, d.Total, 0.001)
	assert.Empty(t, d.Notes)
	assert.Equal(t, "CLP", d.Currency, "unpatched fields keep their values")
	assert.Equal(t, "Groceries", d.Category)

	// The draft owns its items after a patch.
	items[0].Name = "mutated"
	assert.Equal(t, "Bencina", d.Items[0].Name)
}

func TestValidateDraft(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TransactionDraft)
		wantErr string
	}{
		{
			name:   "valid draft",
			mutate: func(_ *TransactionDraft) {},
		},
		{
			name:    "negative total",
			mutate:  func(d *TransactionDraft) { d.Total = -100 },
			wantErr: "total must be at least 0",
		},
		{
			name:    "bad currency code",
			mutate:  func(d *TransactionDraft) { d.Currency = "PESOS" },
			wantErr: "currency must be a valid ISO 4217 currency code",
		},
		{
			name:    "missing merchant",
			mutate:  func(d *TransactionDraft) { d.Merchant = "" },
			wantErr: "merchant is required",
		},
		{
			name:    "missing date",
			mutate:  func(d *TransactionDraft) { d.Date = time.Time{} },
			wantErr: "date is required",
		},
		{
			name:    "zero quantity item",
			mutate:  func(d *TransactionDraft) { d.Items[0].Quantity = 0 },
			wantErr: "quantity must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)

			err := ValidateDraft(&d)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
