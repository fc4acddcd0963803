// Package enrich applies learned merchant mappings to freshly extracted
// drafts. Enrichment is best effort: lookups that fail leave the draft as
// the analyzer produced it.
package enrich

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// MappingReader is the slice of the persistence layer enrichment needs.
type MappingReader interface {
	GetMerchantMapping(ctx context.Context, merchant string) (*model.MerchantMapping, error)
}

// Enricher implements session.Enricher over the persistence layer.
type Enricher struct {
	storage MappingReader
}

// New creates an enricher backed by the given storage.
func New(storage MappingReader) *Enricher {
	return &Enricher{storage: storage}
}

// ApplyCategoryMappings fills the draft's canonical merchant name and
// category from a learned mapping, when one exists. The analyzer's category
// is only overridden by mappings the user created or confirmed.
func (e *Enricher) ApplyCategoryMappings(ctx context.Context, draft model.TransactionDraft) model.TransactionDraft {
	if draft.Merchant == "" {
		return draft
	}

	key := draft.NormalizedMerchant
	if key == "" {
		key = model.NormalizeMerchant(draft.Merchant)
		draft.NormalizedMerchant = key
	}

	mapping, err := e.storage.GetMerchantMapping(ctx, key)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			slog.Warn("merchant mapping lookup failed", "merchant", key, "error", err)
		}
		return draft
	}

	if mapping.CanonicalName != "" {
		draft.Merchant = mapping.CanonicalName
	}
	if mapping.Category != "" && (draft.Category == "" || mapping.Source == model.MappingManual) {
		draft.Category = mapping.Category
	}

	return draft
}

// FindMerchantMatch returns the canonical name for a raw merchant string.
func (e *Enricher) FindMerchantMatch(ctx context.Context, merchant string) (string, bool) {
	if merchant == "" {
		return "", false
	}

	mapping, err := e.storage.GetMerchantMapping(ctx, model.NormalizeMerchant(merchant))
	if err != nil || mapping.CanonicalName == "" {
		return "", false
	}
	return mapping.CanonicalName, true
}
