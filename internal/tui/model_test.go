package tui

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/review"
)

// fakeSession drives a real review machine so the TUI is exercised
// against the guarded semantics it will meet in production.
type fakeSession struct {
	machine  *review.Machine
	saveErrs map[string]string
}

func newFakeSession(items ...review.Item) *fakeSession {
	m := review.NewMachine()
	m.LoadBatch(items)
	return &fakeSession{machine: m, saveErrs: make(map[string]string)}
}

func (f *fakeSession) ReviewPhase() review.Phase { return f.machine.Phase() }
func (f *fakeSession) ReviewItems() []review.Item { return f.machine.Items() }
func (f *fakeSession) FocusReviewItem(i int) bool { return f.machine.FocusItem(i) }
func (f *fakeSession) StartReviewEdit(id string) bool {
	return f.machine.StartEditing(id)
}

func (f *fakeSession) UpdateReviewItem(id string, patch model.DraftPatch) bool {
	return f.machine.UpdateItem(id, patch)
}

func (f *fakeSession) FinishReviewEdit() bool { return f.machine.FinishEditing() }
func (f *fakeSession) DiscardReviewItem(id string) bool {
	return f.machine.DiscardItem(id)
}

func (f *fakeSession) SaveBatch(_ context.Context) (int, int, error) {
	if !f.machine.SaveStart() {
		return 0, 0, fmt.Errorf("cannot save the batch in phase %s", f.machine.Phase())
	}
	for _, item := range f.machine.Items() {
		if msg, ok := f.saveErrs[item.Draft.Merchant]; ok {
			f.machine.SaveItemFailure(item.ID, msg)
		} else {
			f.machine.SaveItemSuccess(item.ID)
		}
	}
	f.machine.SaveComplete()
	saved, failed := f.machine.SavedCount(), f.machine.FailedCount()
	if saved == 0 {
		return saved, failed, fmt.Errorf("every item in the batch failed to save")
	}
	return saved, failed, nil
}

func (f *fakeSession) ReviewCounts() (int, int, int) {
	return f.machine.SavedCount(), f.machine.FailedCount(), f.machine.Outstanding()
}

func (f *fakeSession) ReviewErr() string { return f.machine.Err() }

func testItem(merchant string, total float64) review.Item {
	return review.Item{
		ID:        uuid.NewString(),
		SaveState: review.SavePending,
		Draft: model.TransactionDraft{
			Date:     time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC),
			Merchant: merchant,
			Category: "Groceries",
			Currency: "CLP",
			Total:    total,
			Source:   model.SourceScan,
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func update(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		updated, _ := m.Update(keyMsg(k))
		var ok bool
		m, ok = updated.(Model)
		require.True(t, ok)
	}
	return m
}

func TestNewLoadsItems(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990), testItem("COPEC", 25000))

	m := New(context.Background(), session)

	assert.Equal(t, stateList, m.state)
	assert.Len(t, m.items, 2)
	assert.Equal(t, 0, m.cursor)
}

func TestNavigation(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		wantCursor int
	}{
		{name: "down moves cursor", keys: []string{"j"}, wantCursor: 1},
		{name: "down clamps at end", keys: []string{"j", "j", "j", "down"}, wantCursor: 2},
		{name: "up clamps at start", keys: []string{"k", "up"}, wantCursor: 0},
		{name: "down then up returns", keys: []string{"j", "j", "k"}, wantCursor: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newFakeSession(testItem("A", 1000), testItem("B", 2000), testItem("C", 3000))
			m := New(context.Background(), session)

			m = update(t, m, tt.keys...)

			assert.Equal(t, tt.wantCursor, m.cursor)
		})
	}
}

func TestEditFlowAppliesPatch(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "e")
	require.Equal(t, stateEditing, m.state)
	assert.Equal(t, review.PhaseEditing, session.ReviewPhase())

	m.form.inputs[fieldMerchant].SetValue("JUMBO LOS TRAPENSES")
	m = update(t, m, "enter")

	require.Equal(t, stateList, m.state)
	assert.Equal(t, review.PhaseReviewing, session.ReviewPhase())
	items := session.ReviewItems()
	require.Len(t, items, 1)
	assert.Equal(t, "JUMBO LOS TRAPENSES", items[0].Draft.Merchant)
	assert.True(t, items[0].Edited)
}

func TestEditCancelKeepsDraft(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "e")
	m.form.inputs[fieldMerchant].SetValue("SOMETHING ELSE")
	m = update(t, m, "esc")

	require.Equal(t, stateList, m.state)
	assert.Equal(t, review.PhaseReviewing, session.ReviewPhase())
	items := session.ReviewItems()
	assert.Equal(t, "JUMBO", items[0].Draft.Merchant)
	assert.False(t, items[0].Edited)
}

func TestEditRejectsBadAmount(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "e")
	m.form.inputs[fieldTotal].SetValue("quince mil")
	m = update(t, m, "enter")

	assert.Equal(t, stateEditing, m.state)
	assert.Contains(t, m.form.errMsg, "non-negative amount")
	assert.Equal(t, review.PhaseEditing, session.ReviewPhase())
}

func TestEditParsesChileanAmount(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "e")
	m.form.inputs[fieldTotal].SetValue("$12.490")
	m = update(t, m, "enter")

	require.Equal(t, stateList, m.state)
	items := session.ReviewItems()
	assert.InDelta(t, 12490.0, items[0].Draft.Total, 0.001)
}

func TestEditFieldFocusCycles(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "e")
	assert.Equal(t, fieldMerchant, m.form.focus)

	m = update(t, m, "tab", "tab")
	assert.Equal(t, fieldDate, m.form.focus)

	m = update(t, m, "shift+tab")
	assert.Equal(t, fieldTotal, m.form.focus)

	// Wraps around from the first field.
	m = update(t, m, "shift+tab", "shift+tab")
	assert.Equal(t, fieldNotes, m.form.focus)
}

func TestEditTypingReachesFocusedInput(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "e")
	m.form.inputs[fieldMerchant].SetValue("")
	m = update(t, m, "l", "i", "d", "e", "r")

	assert.Equal(t, "lider", m.form.inputs[fieldMerchant].Value())
}

func TestDiscardConfirm(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990), testItem("COPEC", 25000))
	m := New(context.Background(), session)

	m = update(t, m, "j", "d")
	require.Equal(t, stateConfirmDiscard, m.state)
	assert.Contains(t, m.View(), "Discard COPEC?")

	m = update(t, m, "y")
	require.Equal(t, stateList, m.state)
	assert.Len(t, session.ReviewItems(), 1)
	assert.Equal(t, "JUMBO", session.ReviewItems()[0].Draft.Merchant)
	assert.Equal(t, 0, m.cursor)
}

func TestDiscardDeclined(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "d", "n")

	assert.Equal(t, stateList, m.state)
	assert.Len(t, session.ReviewItems(), 1)
}

func TestSaveBatchShowsSummary(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990), testItem("COPEC", 25000))
	m := New(context.Background(), session)

	m = update(t, m, "s")
	require.Equal(t, stateSaving, m.state)

	// Run the save command directly, the way the program runtime would.
	msg := m.saveCmd()()
	done, ok := msg.(saveDoneMsg)
	require.True(t, ok)
	assert.Equal(t, 2, done.saved)
	assert.Equal(t, 0, done.failed)

	updated, _ := m.Update(msg)
	m = updated.(Model)
	assert.Equal(t, stateSummary, m.state)
	assert.Contains(t, m.View(), "2 receipt(s) saved")
	assert.Equal(t, review.PhaseComplete, session.ReviewPhase())
}

func TestSaveBatchPartialFailureListsErrors(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990), testItem("COPEC", 25000))
	session.saveErrs["COPEC"] = "disk full"
	m := New(context.Background(), session)

	m = update(t, m, "s")
	updated, _ := m.Update(m.saveCmd()())
	m = updated.(Model)

	assert.Equal(t, stateSummary, m.state)
	view := m.View()
	assert.Contains(t, view, "1 receipt(s) saved")
	assert.Contains(t, view, "1 receipt(s) failed")
	assert.Contains(t, view, "COPEC: disk full")
	assert.Equal(t, review.PhaseComplete, session.ReviewPhase())
}

func TestSaveBatchAllFailed(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	session.saveErrs["JUMBO"] = "disk full"
	m := New(context.Background(), session)

	m = update(t, m, "s")
	updated, _ := m.Update(m.saveCmd()())
	m = updated.(Model)

	assert.Equal(t, stateSummary, m.state)
	assert.Contains(t, m.View(), "every item in the batch failed to save")
	assert.Equal(t, review.PhaseError, session.ReviewPhase())
}

func TestSaveIgnoredWhileEmpty(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "d", "y")
	require.Empty(t, session.ReviewItems())

	m = update(t, m, "s")
	assert.Equal(t, stateList, m.state)
	assert.Contains(t, m.View(), "No receipts left to review")
}

func TestSaveTickRefreshesItems(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)
	m = update(t, m, "s")

	// Simulate the save pass landing the item mid-flight.
	require.True(t, session.machine.SaveStart())
	require.True(t, session.machine.SaveItemSuccess(session.ReviewItems()[0].ID))

	updated, cmd := m.Update(saveTickMsg(time.Now()))
	m = updated.(Model)
	assert.NotNil(t, cmd)
	assert.Equal(t, review.SaveSucceeded, m.items[0].SaveState)
}

func TestHelpToggles(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "?")
	assert.Equal(t, stateHelp, m.state)
	assert.Contains(t, m.View(), "Keys")

	m = update(t, m, "x")
	assert.Equal(t, stateList, m.state)
}

func TestQuitFromList(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	_, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestForceQuitWinsEverywhere(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)
	m = update(t, m, "e")
	require.Equal(t, stateEditing, m.state)

	_, cmd := m.Update(keyMsg("ctrl+c"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestWindowSize(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	assert.Equal(t, 120, m.width)
	assert.Equal(t, 40, m.height)
}

func TestListViewShowsReceipts(t *testing.T) {
	session := newFakeSession(testItem("JUMBO LOS TRAPENSES", 15990), testItem("COPEC", 25000))
	m := New(context.Background(), session)

	view := m.View()
	assert.Contains(t, view, "2 receipt(s)")
	assert.Contains(t, view, "JUMBO LOS TRAPENSES")
	assert.Contains(t, view, "$15.990")
	assert.Contains(t, view, "$25.000")
	assert.Contains(t, view, "12/06/2026")
}

func TestListViewMarksEditedItems(t *testing.T) {
	session := newFakeSession(testItem("JUMBO", 15990))
	m := New(context.Background(), session)

	m = update(t, m, "e")
	m.form.inputs[fieldNotes].SetValue("cash")
	m = update(t, m, "enter")

	assert.Contains(t, m.View(), "(edited)")
}
