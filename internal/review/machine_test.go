package review

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

type rejectLog struct {
	entries []string
}

func (r *rejectLog) record(op string, phase Phase, reason string) {
	r.entries = append(r.entries, fmt.Sprintf("%s/%s: %s", op, phase, reason))
}

func (r *rejectLog) count() int { return len(r.entries) }

func newTestMachine() (*Machine, *rejectLog) {
	log := &rejectLog{}
	return NewMachine(WithReject(log.record)), log
}

func testItems(ids ...string) []Item {
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{
			ID:        id,
			SaveState: SavePending,
			Draft: model.TransactionDraft{
				Date:     time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
				Merchant: "Merchant " + id,
				Currency: "CLP",
				Source:   model.SourceScan,
				Total:    1000,
			},
		}
	}
	return items
}

func TestLoadBatch(t *testing.T) {
	m, log := newTestMachine()

	require.True(t, m.LoadBatch(testItems("r1", "r2")))
	assert.Equal(t, PhaseReviewing, m.Phase())
	assert.Len(t, m.Items(), 2)
	assert.Equal(t, 0, m.CurrentIndex())
	assert.Zero(t, m.SavedCount())
	assert.Zero(t, m.FailedCount())

	assert.False(t, m.LoadBatch(testItems("r3")), "loading over a live session is rejected")
	assert.Len(t, m.Items(), 2)
	assert.Equal(t, 1, log.count())
}

func TestLoadBatchRejectsEmpty(t *testing.T) {
	m, log := newTestMachine()
	assert.False(t, m.LoadBatch(nil))
	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Equal(t, 1, log.count())
}

func TestAsyncLoadLifecycle(t *testing.T) {
	t.Run("load succeeds", func(t *testing.T) {
		m, _ := newTestMachine()
		require.True(t, m.LoadStart())
		assert.Equal(t, PhaseLoading, m.Phase())
		require.True(t, m.LoadBatch(testItems("r1")))
		assert.Equal(t, PhaseReviewing, m.Phase())
	})

	t.Run("load fails", func(t *testing.T) {
		m, _ := newTestMachine()
		require.True(t, m.LoadStart())
		require.True(t, m.LoadError("receipts unavailable"))
		assert.Equal(t, PhaseError, m.Phase())
		assert.Equal(t, "receipts unavailable", m.Err())
	})
}

func TestEditingLifecycle(t *testing.T) {
	m, log := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1", "r2")))

	require.True(t, m.StartEditing("r2"))
	assert.Equal(t, PhaseEditing, m.Phase())
	assert.Equal(t, "r2", m.EditingReceiptID())
	assert.Equal(t, 1, m.CurrentIndex())

	merchant := "Tottus"
	require.True(t, m.UpdateItem("r2", model.DraftPatch{Merchant: &merchant}))
	assert.False(t, m.UpdateItem("r1", model.DraftPatch{Merchant: &merchant}),
		"only the item being edited is mutable")

	require.True(t, m.FinishEditing())
	assert.Equal(t, PhaseReviewing, m.Phase())
	assert.Empty(t, m.EditingReceiptID())

	item, ok := m.Item("r2")
	require.True(t, ok)
	assert.Equal(t, "Tottus", item.Draft.Merchant)
	assert.True(t, item.Edited)
	assert.Equal(t, 1, log.count())
}

func TestStartEditingUnknownItem(t *testing.T) {
	m, log := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1")))

	assert.False(t, m.StartEditing("r9"))
	assert.Equal(t, PhaseReviewing, m.Phase())
	assert.Equal(t, 1, log.count())
}

func TestAllItemsFailedLandsInError(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1", "r2")))
	require.True(t, m.SaveStart())

	require.True(t, m.SaveItemFailure("r1", "constraint violation"))
	require.True(t, m.SaveItemFailure("r2", "disk full"))
	assert.Equal(t, PhaseSaving, m.Phase(), "per-item reports never change phase")

	require.True(t, m.SaveComplete())
	assert.Equal(t, PhaseError, m.Phase())
	assert.Equal(t, 2, m.FailedCount())
	assert.Zero(t, m.SavedCount())
}

func TestPartialFailureLandsInComplete(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1", "r2")))
	require.True(t, m.SaveStart())

	require.True(t, m.SaveItemSuccess("r1"))
	require.True(t, m.SaveItemFailure("r2", "disk full"))
	require.True(t, m.SaveComplete())

	assert.Equal(t, PhaseComplete, m.Phase(), "partial success is complete, not error")
	assert.Equal(t, 1, m.SavedCount())
	assert.Equal(t, 1, m.FailedCount())
	assert.Zero(t, m.Outstanding())

	item, ok := m.Item("r2")
	require.True(t, ok)
	assert.Equal(t, SaveFailed, item.SaveState)
	assert.Equal(t, "disk full", item.Err)
}

func TestDiscardBlockedWhileSaving(t *testing.T) {
	m, log := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1", "r2")))
	require.True(t, m.SaveStart())

	assert.False(t, m.DiscardItem("r1"))
	assert.Len(t, m.Items(), 2, "item count must be unchanged")
	assert.Equal(t, 1, log.count())
}

func TestDiscardItem(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1", "r2", "r3")))
	require.True(t, m.FocusItem(2))

	require.True(t, m.DiscardItem("r3"))
	assert.Len(t, m.Items(), 2)
	assert.Equal(t, 1, m.CurrentIndex(), "cursor clamps to the shrunk collection")

	assert.False(t, m.DiscardItem("r3"), "already discarded")
}

func TestSaveReportGuards(t *testing.T) {
	m, log := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1", "r2")))

	assert.False(t, m.SaveItemSuccess("r1"), "no save pass in progress")

	require.True(t, m.SaveStart())
	require.True(t, m.SaveItemSuccess("r1"))
	assert.False(t, m.SaveItemSuccess("r1"), "duplicate report")
	assert.False(t, m.SaveItemFailure("r1", "late failure"), "outcome already recorded")
	assert.False(t, m.SaveItemSuccess("r9"), "unknown item")

	assert.Equal(t, 1, m.SavedCount())
	assert.Zero(t, m.FailedCount())
	assert.Equal(t, 4, log.count())
}

func TestSaveCountsNeverExceedItemCount(t *testing.T) {
	m, _ := newTestMachine()
	items := testItems("r1", "r2", "r3")
	require.True(t, m.LoadBatch(items))
	require.True(t, m.SaveStart())

	m.SaveItemSuccess("r1")
	m.SaveItemSuccess("r1")
	m.SaveItemFailure("r2", "x")
	m.SaveItemFailure("r2", "x")
	m.SaveItemSuccess("r3")

	assert.LessOrEqual(t, m.SavedCount()+m.FailedCount(), len(items))
	assert.Equal(t, 2, m.SavedCount())
	assert.Equal(t, 1, m.FailedCount())
}

func TestSaveCompleteOnlyFromSaving(t *testing.T) {
	m, log := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1")))

	assert.False(t, m.SaveComplete())
	assert.Equal(t, PhaseReviewing, m.Phase())
	assert.Equal(t, 1, log.count())
}

func TestResetGuardedToTerminalPhases(t *testing.T) {
	m, log := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1")))

	assert.False(t, m.Reset(), "reset from reviewing is rejected")

	require.True(t, m.SaveStart())
	assert.False(t, m.Reset(), "reset mid-save is rejected")

	require.True(t, m.SaveItemSuccess("r1"))
	require.True(t, m.SaveComplete())
	require.True(t, m.Reset())

	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Empty(t, m.Items())
	assert.Zero(t, m.SavedCount())
	assert.Equal(t, 2, log.count())

	// The reject hook survives the reset.
	assert.False(t, m.SaveStart())
	assert.Equal(t, 3, log.count())
}

func TestItemsFromReceipts(t *testing.T) {
	receipts := []scan.BatchReceipt{
		{ID: "r1", Status: scan.ReceiptReady, Draft: model.TransactionDraft{Merchant: "Jumbo"}},
		{ID: "r2", Status: scan.ReceiptError, Err: "blurry"},
		{ID: "r3", Status: scan.ReceiptEdited, Draft: model.TransactionDraft{Merchant: "Lider"}},
	}

	items := ItemsFromReceipts(receipts)

	require.Len(t, items, 2, "failed analyses have nothing to review")
	assert.Equal(t, "r1", items[0].ID)
	assert.False(t, items[0].Edited)
	assert.Equal(t, "r3", items[1].ID)
	assert.True(t, items[1].Edited)
	assert.Equal(t, SavePending, items[0].SaveState)
}

func TestItemsSelectorReturnsDetachedCopy(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.LoadBatch(testItems("r1")))

	items := m.Items()
	items[0].Draft.Merchant = "mutated"

	fresh, ok := m.Item("r1")
	require.True(t, ok)
	assert.Equal(t, "Merchant r1", fresh.Draft.Merchant)
}
