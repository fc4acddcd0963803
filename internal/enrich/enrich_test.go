package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

type fakeMappings struct {
	mappings map[string]*model.MerchantMapping
	err      error
}

func (f *fakeMappings) GetMerchantMapping(_ context.Context, merchant string) (*model.MerchantMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	if m, ok := f.mappings[merchant]; ok {
		return m, nil
	}
	return nil, common.ErrNotFound
}

func testDraft(merchant string) model.TransactionDraft {
	return model.TransactionDraft{
		Date:     time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
		Merchant: merchant,
		Currency: "CLP",
		Source:   model.SourceScan,
		Total:    9990,
	}
}

func TestApplyCategoryMappings(t *testing.T) {
	enricher := New(&fakeMappings{mappings: map[string]*model.MerchantMapping{
		"jumbo los trapenses": {
			Merchant:      "jumbo los trapenses",
			CanonicalName: "Jumbo",
			Category:      "Groceries",
			Source:        model.MappingAuto,
		},
	}})

	draft := enricher.ApplyCategoryMappings(context.Background(), testDraft("Jumbo Los Trapenses"))

	assert.Equal(t, "Jumbo", draft.Merchant)
	assert.Equal(t, "Groceries", draft.Category)
	assert.Equal(t, "jumbo los trapenses", draft.NormalizedMerchant)
}

func TestApplyCategoryMappingsKeepsAnalyzerCategoryOverAuto(t *testing.T) {
	enricher := New(&fakeMappings{mappings: map[string]*model.MerchantMapping{
		"copec": {
			Merchant:      "copec",
			CanonicalName: "Copec",
			Category:      "Services",
			Source:        model.MappingAuto,
		},
	}})

	draft := testDraft("Copec")
	draft.Category = "Transport"
	draft = enricher.ApplyCategoryMappings(context.Background(), draft)

	assert.Equal(t, "Transport", draft.Category, "auto mapping must not override the analyzer")
	assert.Equal(t, "Copec", draft.Merchant)
}

func TestApplyCategoryMappingsManualWins(t *testing.T) {
	enricher := New(&fakeMappings{mappings: map[string]*model.MerchantMapping{
		"copec": {
			Merchant:      "copec",
			CanonicalName: "Copec",
			Category:      "Transport",
			Source:        model.MappingManual,
		},
	}})

	draft := testDraft("Copec")
	draft.Category = "Services"
	draft = enricher.ApplyCategoryMappings(context.Background(), draft)

	assert.Equal(t, "Transport", draft.Category, "manual mapping overrides the analyzer")
}

func TestApplyCategoryMappingsUnknownMerchant(t *testing.T) {
	enricher := New(&fakeMappings{})

	in := testDraft("Local Nuevo")
	out := enricher.ApplyCategoryMappings(context.Background(), in)

	assert.Equal(t, in.Merchant, out.Merchant)
	assert.Empty(t, out.Category)
}

func TestApplyCategoryMappingsStorageFailureIsNonFatal(t *testing.T) {
	enricher := New(&fakeMappings{err: errors.New("disk on fire")})

	in := testDraft("Jumbo")
	out := enricher.ApplyCategoryMappings(context.Background(), in)

	require.Equal(t, in.Merchant, out.Merchant)
	assert.Empty(t, out.Category)
}

func TestFindMerchantMatch(t *testing.T) {
	enricher := New(&fakeMappings{mappings: map[string]*model.MerchantMapping{
		"lider express": {
			Merchant:      "lider express",
			CanonicalName: "Lider",
			Category:      "Groceries",
		},
	}})

	name, ok := enricher.FindMerchantMatch(context.Background(), "LIDER EXPRESS 442")
	require.True(t, ok)
	assert.Equal(t, "Lider", name)

	_, ok = enricher.FindMerchantMatch(context.Background(), "Desconocido")
	assert.False(t, ok)

	_, ok = enricher.FindMerchantMatch(context.Background(), "")
	assert.False(t, ok)
}
