package review

import (
	"log/slog"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// Machine owns one batch review session. Not goroutine-safe; all mutating
// operations must come from one logical owner.
type Machine struct {
	reject           RejectFunc
	items            []Item
	editingReceiptID string
	err              string
	phase            Phase
	currentIndex     int
	savedCount       int
	failedCount      int
}

// Option configures a Machine.
type Option func(*Machine)

// WithReject replaces the diagnostic hook for rejected operations.
func WithReject(fn RejectFunc) Option {
	return func(m *Machine) { m.reject = fn }
}

// NewMachine creates a review machine in the idle phase.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{phase: PhaseIdle}
	m.reject = func(op string, phase Phase, reason string) {
		slog.Warn("review operation rejected",
			"op", op,
			"phase", phase,
			"reason", reason)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) guard(op string, allowed ...Phase) bool {
	for _, p := range allowed {
		if m.phase == p {
			return true
		}
	}
	m.reject(op, m.phase, "phase not allowed")
	return false
}

// itemIndex finds an item by ID, or -1.
func (m *Machine) itemIndex(id string) int {
	for i := range m.items {
		if m.items[i].ID == id {
			return i
		}
	}
	return -1
}

// LoadStart enters loading while the receipts are fetched asynchronously.
func (m *Machine) LoadStart() bool {
	if !m.guard("loadStart", PhaseIdle) {
		return false
	}
	m.phase = PhaseLoading
	m.err = ""
	return true
}

// LoadBatch seeds the session with receipts and enters review. Callers that
// already hold the receipts may load directly from idle; the loading phase
// is for asynchronous fetches.
func (m *Machine) LoadBatch(items []Item) bool {
	if !m.guard("loadBatch", PhaseIdle, PhaseLoading) {
		return false
	}
	if len(items) == 0 {
		m.reject("loadBatch", m.phase, "no items to review")
		return false
	}

	m.items = cloneItems(items)
	for i := range m.items {
		m.items[i].SaveState = SavePending
		m.items[i].Err = ""
	}
	m.phase = PhaseReviewing
	m.currentIndex = 0
	m.editingReceiptID = ""
	m.savedCount = 0
	m.failedCount = 0
	m.err = ""
	return true
}

// LoadError records a failed asynchronous load.
func (m *Machine) LoadError(message string) bool {
	if !m.guard("loadError", PhaseLoading) {
		return false
	}
	m.phase = PhaseError
	m.err = message
	return true
}

// FocusItem moves the review cursor.
func (m *Machine) FocusItem(i int) bool {
	if !m.guard("focusItem", PhaseReviewing) {
		return false
	}
	if i < 0 || i >= len(m.items) {
		m.reject("focusItem", m.phase, "index out of range")
		return false
	}
	m.currentIndex = i
	return true
}

// StartEditing opens the item with the given ID for editing.
func (m *Machine) StartEditing(id string) bool {
	if !m.guard("startEditing", PhaseReviewing) {
		return false
	}
	i := m.itemIndex(id)
	if i < 0 {
		m.reject("startEditing", m.phase, "unknown item "+id)
		return false
	}
	m.phase = PhaseEditing
	m.editingReceiptID = id
	m.currentIndex = i
	return true
}

// UpdateItem patches the draft of the item currently being edited.
func (m *Machine) UpdateItem(id string, patch model.DraftPatch) bool {
	if !m.guard("updateItem", PhaseEditing) {
		return false
	}
	if id != m.editingReceiptID {
		m.reject("updateItem", m.phase, "item "+id+" is not being edited")
		return false
	}

	i := m.itemIndex(id)
	patch.Apply(&m.items[i].Draft)
	m.items[i].Edited = true
	return true
}

// FinishEditing returns to review.
func (m *Machine) FinishEditing() bool {
	if !m.guard("finishEditing", PhaseEditing) {
		return false
	}
	m.phase = PhaseReviewing
	m.editingReceiptID = ""
	return true
}

// DiscardItem removes an item from the session. Blocked while saving; a
// persisted write must never race a removal.
func (m *Machine) DiscardItem(id string) bool {
	if !m.guard("discardItem", PhaseReviewing) {
		return false
	}
	i := m.itemIndex(id)
	if i < 0 {
		m.reject("discardItem", m.phase, "unknown item "+id)
		return false
	}

	m.items = append(m.items[:i], m.items[i+1:]...)
	if m.currentIndex >= len(m.items) && m.currentIndex > 0 {
		m.currentIndex--
	}
	return true
}

// SaveStart begins persisting the batch. Requires at least one item so that
// the all-failed outcome stays meaningful.
func (m *Machine) SaveStart() bool {
	if !m.guard("saveStart", PhaseReviewing) {
		return false
	}
	if len(m.items) == 0 {
		m.reject("saveStart", m.phase, "no items to save")
		return false
	}
	m.phase = PhaseSaving
	m.savedCount = 0
	m.failedCount = 0
	m.err = ""
	return true
}

// saveReport validates a per-item save outcome without changing phase.
func (m *Machine) saveReport(op, id string) int {
	if !m.guard(op, PhaseSaving) {
		return -1
	}
	i := m.itemIndex(id)
	if i < 0 {
		m.reject(op, m.phase, "unknown item "+id)
		return -1
	}
	if m.items[i].SaveState != SavePending {
		m.reject(op, m.phase, "item "+id+" already reported")
		return -1
	}
	return i
}

// SaveItemSuccess records one persisted item.
func (m *Machine) SaveItemSuccess(id string) bool {
	i := m.saveReport("saveItemSuccess", id)
	if i < 0 {
		return false
	}
	m.items[i].SaveState = SaveSucceeded
	m.savedCount++
	return true
}

// SaveItemFailure records one failed item. The rest of the batch keeps
// saving; partial success is a first-class outcome.
func (m *Machine) SaveItemFailure(id, message string) bool {
	i := m.saveReport("saveItemFailure", id)
	if i < 0 {
		return false
	}
	m.items[i].SaveState = SaveFailed
	m.items[i].Err = message
	m.failedCount++
	return true
}

// SaveComplete closes the save pass. Only a batch where every item failed
// lands in error; any partial success is complete.
func (m *Machine) SaveComplete() bool {
	if !m.guard("saveComplete", PhaseSaving) {
		return false
	}
	if m.failedCount == len(m.items) {
		m.phase = PhaseError
		m.err = "every item in the batch failed to save"
		return true
	}
	m.phase = PhaseComplete
	m.err = ""
	return true
}

// Reset returns to idle from a terminal phase. Unlike the scan machine's
// reset this one is guarded: abandoning a review mid-save would lose track
// of writes already persisted.
func (m *Machine) Reset() bool {
	if !m.guard("reset", PhaseComplete, PhaseError) {
		return false
	}
	*m = Machine{phase: PhaseIdle, reject: m.reject}
	return true
}

// Selectors.

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Items returns a detached copy of the items under review.
func (m *Machine) Items() []Item { return cloneItems(m.items) }

// Item returns a copy of the item with the given ID.
func (m *Machine) Item(id string) (Item, bool) {
	i := m.itemIndex(id)
	if i < 0 {
		return Item{}, false
	}
	out := cloneItems(m.items[i : i+1])
	return out[0], true
}

// CurrentIndex returns the review cursor.
func (m *Machine) CurrentIndex() int { return m.currentIndex }

// EditingReceiptID returns the ID of the item being edited, or "".
func (m *Machine) EditingReceiptID() string { return m.editingReceiptID }

// SavedCount returns how many items have persisted in this save pass.
func (m *Machine) SavedCount() int { return m.savedCount }

// FailedCount returns how many items have failed in this save pass.
func (m *Machine) FailedCount() int { return m.failedCount }

// Outstanding returns how many items have not reported a save outcome.
func (m *Machine) Outstanding() int { return len(m.items) - m.savedCount - m.failedCount }

// Err returns the last fatal error message.
func (m *Machine) Err() string { return m.err }
