package vision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
)

func TestParseDraft(t *testing.T) {
	input := `{
		"merchant": "Jumbo Los Trapenses",
		"date": "2025-06-14",
		"total": 45990,
		"currency": "clp",
		"category": "Groceries",
		"store_type": "supermarket",
		"items": [
			{"name": "Leche entera 1L", "quantity": 2, "price": 1290},
			{"name": "Pan marraqueta", "quantity": 1, "price": 2100}
		],
		"confidence": 0.93
	}`

	draft, err := parseDraft(input, session.Hints{})
	require.NoError(t, err)

	assert.Equal(t, "Jumbo Los Trapenses", draft.Merchant)
	assert.Equal(t, "jumbo los trapenses", draft.NormalizedMerchant)
	assert.Equal(t, time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC), draft.Date)
	assert.InDelta(t, 45990, draft.Total, 0.001)
	assert.Equal(t, "CLP", draft.Currency, "currency should be uppercased")
	assert.Equal(t, "Groceries", draft.Category)
	assert.Equal(t, model.SourceScan, draft.Source)
	assert.InDelta(t, 0.93, draft.Confidence, 0.001)
	require.Len(t, draft.Items, 2)
	assert.Equal(t, 2, draft.Items[0].Quantity)
}

func TestParseDraftWithMarkdownFences(t *testing.T) {
	input := "```json\n{\"merchant\": \"Copec\", \"date\": \"2025-06-14\", \"total\": 25000, \"currency\": \"CLP\", \"confidence\": 0.8}\n```"

	draft, err := parseDraft(input, session.Hints{})
	require.NoError(t, err)
	assert.Equal(t, "Copec", draft.Merchant)
	assert.InDelta(t, 25000, draft.Total, 0.001)
}

func TestParseDraftWithSurroundingProse(t *testing.T) {
	input := `Here is the extracted data:
{"merchant": "Lider", "date": "2025-06-14", "total": 9990, "currency": "CLP", "confidence": 0.7}
Let me know if you need anything else.`

	draft, err := parseDraft(input, session.Hints{})
	require.NoError(t, err)
	assert.Equal(t, "Lider", draft.Merchant)
}

func TestParseDraftDateFormats(t *testing.T) {
	tests := []struct {
		name string
		date string
		want time.Time
	}{
		{
			name: "ISO 8601",
			date: "2025-06-14",
			want: time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "chilean DD/MM/YYYY",
			date: "14/06/2025",
			want: time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "dashed DD-MM-YYYY",
			date: "14-06-2025",
			want: time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := `{"merchant": "X", "date": "` + tt.date + `", "total": 1, "currency": "CLP"}`
			draft, err := parseDraft(input, session.Hints{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, draft.Date)
		})
	}
}

func TestParseDraftUnreadableDateFallsBackToToday(t *testing.T) {
	input := `{"merchant": "X", "date": "junio catorce", "total": 1, "currency": "CLP"}`

	draft, err := parseDraft(input, session.Hints{})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), draft.Date, 24*time.Hour)
}

func TestParseDraftDefaults(t *testing.T) {
	input := `{"total": 4500, "confidence": 1.7, "items": [{"name": "thing", "price": 4500}]}`

	draft, err := parseDraft(input, session.Hints{StoreType: "pharmacy", Currency: "clp"})
	require.NoError(t, err)

	assert.Equal(t, "Unknown Merchant", draft.Merchant)
	assert.Equal(t, "CLP", draft.Currency, "currency hint fills the gap")
	assert.Equal(t, "pharmacy", draft.StoreType, "store type hint fills the gap")
	assert.Equal(t, 1.0, draft.Confidence, "confidence is clamped to 1")
	require.Len(t, draft.Items, 1)
	assert.Equal(t, 1, draft.Items[0].Quantity, "missing quantity defaults to 1")
}

func TestParseDraftRejectsGarbage(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no JSON at all", input: "I could not read this receipt."},
		{name: "empty string", input: ""},
		{name: "broken JSON", input: `{"merchant": "X", "total": }`},
		{name: "brace order", input: `} not json {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDraft(tt.input, session.Hints{})
			assert.Error(t, err)
		})
	}
}

func TestParseStatementDrafts(t *testing.T) {
	input := `{
		"transactions": [
			{"merchant": "Jumbo", "date": "02/06/2025", "total": 15000, "currency": "CLP", "category": "Groceries"},
			{"merchant": "Copec", "date": "05/06/2025", "total": 30000, "currency": "CLP", "category": "Transport"}
		]
	}`

	drafts, err := parseStatementDrafts(input, session.Hints{})
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, "Jumbo", drafts[0].Merchant)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), drafts[0].Date)
	assert.Equal(t, model.SourceStatement, drafts[0].Source)
	assert.Equal(t, "Transport", drafts[1].Category)
}

func TestParseStatementDraftsEmptyList(t *testing.T) {
	drafts, err := parseStatementDrafts(`{"transactions": []}`, session.Hints{})
	require.NoError(t, err)
	assert.Empty(t, drafts)
}
