package vision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
)

// dateFormats are tried in order after ISO 8601 fails. DD/MM variants come
// first: that is what Chilean receipts print.
var dateFormats = []string{
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	"01/02/2006",
}

type itemPayload struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type draftPayload struct {
	Merchant   string        `json:"merchant"`
	Date       string        `json:"date"`
	Currency   string        `json:"currency"`
	Category   string        `json:"category"`
	StoreType  string        `json:"store_type"`
	Notes      string        `json:"notes"`
	Items      []itemPayload `json:"items"`
	Total      float64       `json:"total"`
	Confidence float64       `json:"confidence"`
}

type statementPayload struct {
	Transactions []draftPayload `json:"transactions"`
}

// parseDraft turns a model response into a transaction draft. The response
// may be wrapped in markdown fences or prose; only the outermost JSON
// object is read.
func parseDraft(text string, hints session.Hints) (model.TransactionDraft, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return model.TransactionDraft{}, err
	}

	var payload draftPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.TransactionDraft{}, fmt.Errorf("unmarshaling draft: %w", err)
	}

	draft := toDraft(payload, hints)
	draft.Source = model.SourceScan
	return draft, nil
}

// parseStatementDrafts reads the transactions array of a statement response.
// An empty array is valid: it means no purchases were readable.
func parseStatementDrafts(text string, hints session.Hints) ([]model.TransactionDraft, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var payload statementPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling statement: %w", err)
	}

	drafts := make([]model.TransactionDraft, 0, len(payload.Transactions))
	for _, tx := range payload.Transactions {
		draft := toDraft(tx, hints)
		draft.Source = model.SourceStatement
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}

	return text[startIdx : endIdx+1], nil
}

func toDraft(payload draftPayload, hints session.Hints) model.TransactionDraft {
	draft := model.TransactionDraft{
		Date:       parseDate(payload.Date),
		Merchant:   strings.TrimSpace(payload.Merchant),
		Category:   strings.TrimSpace(payload.Category),
		StoreType:  strings.TrimSpace(payload.StoreType),
		Currency:   strings.ToUpper(strings.TrimSpace(payload.Currency)),
		Notes:      strings.TrimSpace(payload.Notes),
		Total:      payload.Total,
		Confidence: clamp01(payload.Confidence),
	}

	if draft.Merchant == "" {
		draft.Merchant = "Unknown Merchant"
	}
	draft.NormalizedMerchant = model.NormalizeMerchant(draft.Merchant)

	if draft.Currency == "" {
		draft.Currency = strings.ToUpper(strings.TrimSpace(hints.Currency))
	}
	if draft.Currency == "" {
		draft.Currency = "CLP"
	}
	if draft.StoreType == "" {
		draft.StoreType = hints.StoreType
	}

	for _, item := range payload.Items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		draft.Items = append(draft.Items, model.ReceiptItem{
			Name:     strings.TrimSpace(item.Name),
			Category: strings.TrimSpace(item.Category),
			Quantity: qty,
			Price:    item.Price,
		})
	}

	return draft
}

// parseDate accepts ISO 8601 and the formats receipts actually print,
// falling back to today when nothing parses. Review catches bad dates.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return today()
	}

	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d
		}
	}
	return today()
}

func today() time.Time {
	return time.Now().Truncate(24 * time.Hour)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
