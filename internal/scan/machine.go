package scan

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// Machine owns the single live scan request and exposes guarded transition
// operations. Invalid calls are silent no-ops that emit a diagnostic through
// the reject hook; they never panic and never corrupt state.
type Machine struct {
	now     func() time.Time
	newID   func() string
	reject  RejectFunc
	pending map[DialogType]chan DialogResult
	req     Request
}

// Option configures a Machine.
type Option func(*Machine)

// WithReject replaces the diagnostic hook for rejected operations.
func WithReject(fn RejectFunc) Option {
	return func(m *Machine) { m.reject = fn }
}

// WithIDGenerator replaces the request/receipt ID source.
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) { m.newID = fn }
}

// WithClock replaces the time source.
func WithClock(fn func() time.Time) Option {
	return func(m *Machine) { m.now = fn }
}

// NewMachine creates a machine in the idle phase.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		now:     time.Now,
		newID:   uuid.NewString,
		pending: make(map[DialogType]chan DialogResult),
		req:     idleRequest(),
	}
	m.reject = func(op string, phase Phase, reason string) {
		slog.Warn("scan operation rejected",
			"op", op,
			"phase", phase,
			"reason", reason)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// guard checks the current phase against an allow-list, emitting a diagnostic
// on mismatch.
func (m *Machine) guard(op string, allowed ...Phase) bool {
	for _, p := range allowed {
		if m.req.Phase == p {
			return true
		}
	}
	m.reject(op, m.req.Phase, "phase not allowed")
	return false
}

// guardRequestID drops reports tagged with a request ID other than the live
// one. Late results from a canceled or superseded request land here.
func (m *Machine) guardRequestID(op, requestID string) bool {
	if requestID == m.req.RequestID {
		return true
	}
	m.reject(op, m.req.Phase, "stale request "+requestID)
	return false
}

// start begins a fresh request in the given mode. Legal only from idle: the
// single-active-request invariant depends on it.
func (m *Machine) start(op string, mode Mode, userID string) bool {
	if !m.guard(op, PhaseIdle) {
		return false
	}
	m.req = idleRequest()
	m.req.Phase = PhaseCapturing
	m.req.Mode = mode
	m.req.RequestID = m.newID()
	m.req.UserID = userID
	m.req.StartedAt = m.now()
	return true
}

// StartSingle begins a single-receipt request.
func (m *Machine) StartSingle(userID string) bool {
	return m.start("startSingle", ModeSingle, userID)
}

// StartBatch begins a multi-receipt request.
func (m *Machine) StartBatch(userID string) bool {
	return m.start("startBatch", ModeBatch, userID)
}

// StartStatement begins a bank statement request.
func (m *Machine) StartStatement(userID string) bool {
	return m.start("startStatement", ModeStatement, userID)
}

// AddImage appends a captured image. Duplicates are permitted; insertion
// order is capture order.
func (m *Machine) AddImage(ref ImageRef) bool {
	if !m.guard("addImage", PhaseCapturing) {
		return false
	}
	m.req.Images = append(m.req.Images, ref)
	return true
}

// RemoveImage drops the image at index i.
func (m *Machine) RemoveImage(i int) bool {
	if !m.guard("removeImage", PhaseCapturing) {
		return false
	}
	if i < 0 || i >= len(m.req.Images) {
		m.reject("removeImage", m.req.Phase, "index out of range")
		return false
	}
	m.req.Images = append(m.req.Images[:i], m.req.Images[i+1:]...)
	return true
}

// SetImages replaces the captured image list.
func (m *Machine) SetImages(refs []ImageRef) bool {
	if !m.guard("setImages", PhaseCapturing) {
		return false
	}
	m.req.Images = append([]ImageRef(nil), refs...)
	return true
}

// SetHints records contextual hints carried from capture into processing.
func (m *Machine) SetHints(storeType, currency string) bool {
	if !m.guard("setHints", PhaseCapturing) {
		return false
	}
	m.req.StoreHint = storeType
	m.req.CurrencyHint = currency
	return true
}

// ProcessStart hands the captured images to analysis. Spend is reserved here,
// before the analysis call is made, so a crash mid-call cannot grant a free
// scan. Requires at least one image.
func (m *Machine) ProcessStart() bool {
	if !m.guard("processStart", PhaseCapturing) {
		return false
	}
	if len(m.req.Images) == 0 {
		m.reject("processStart", m.req.Phase, "no images captured")
		return false
	}

	creditType, count := CreditForMode(m.req.Mode)
	if err := m.req.Credit.Reserve(creditType, count); err != nil {
		m.reject("processStart", m.req.Phase, err.Error())
		return false
	}

	m.req.Phase = PhaseScanning
	m.req.Err = ""
	if m.req.Mode == ModeBatch {
		m.req.BatchProgress = Progress{Total: len(m.req.Images)}
	}
	return true
}

// ProcessSuccess records the analysis result of a single-mode request and
// moves to review.
func (m *Machine) ProcessSuccess(requestID string, draft model.TransactionDraft) bool {
	if !m.guard("processSuccess", PhaseScanning) {
		return false
	}
	if !m.guardRequestID("processSuccess", requestID) {
		return false
	}
	if m.req.Mode != ModeSingle {
		m.reject("processSuccess", m.req.Phase, "request mode is "+string(m.req.Mode))
		return false
	}

	m.req.Results = []model.TransactionDraft{draft}
	m.req.ActiveResultIndex = 0
	m.req.Phase = PhaseReviewing
	m.req.Err = ""
	return true
}

// ProcessStatementSuccess records the drafts extracted from a statement, one
// batch receipt per transaction, and moves to review.
func (m *Machine) ProcessStatementSuccess(requestID string, drafts []model.TransactionDraft) bool {
	if !m.guard("processStatementSuccess", PhaseScanning) {
		return false
	}
	if !m.guardRequestID("processStatementSuccess", requestID) {
		return false
	}
	if m.req.Mode != ModeStatement {
		m.reject("processStatementSuccess", m.req.Phase, "request mode is "+string(m.req.Mode))
		return false
	}

	receipts := make([]BatchReceipt, len(drafts))
	for i, d := range drafts {
		receipts[i] = BatchReceipt{
			ID:         m.newID(),
			Status:     ReceiptReady,
			Draft:      d,
			ImageIndex: i,
		}
	}
	m.req.BatchReceipts = receipts
	m.req.BatchProgress = Progress{Completed: len(drafts), Total: len(drafts)}
	m.req.Phase = PhaseReviewing
	m.req.Err = ""
	return true
}

// ProcessError records a fatal analysis failure. The reservation is refunded:
// the request is terminated without a save.
func (m *Machine) ProcessError(requestID, message string) bool {
	if !m.guard("processError", PhaseScanning) {
		return false
	}
	if !m.guardRequestID("processError", requestID) {
		return false
	}

	if m.req.Credit.Status == CreditReserved {
		if err := m.req.Credit.Refund(); err != nil {
			m.reject("processError", m.req.Phase, err.Error())
		}
	}
	m.req.Phase = PhaseError
	m.req.Err = message
	return true
}

// UpdateResult patches the result at index i in place.
func (m *Machine) UpdateResult(i int, patch model.DraftPatch) bool {
	if !m.guard("updateResult", PhaseReviewing) {
		return false
	}
	if i < 0 || i >= len(m.req.Results) {
		m.reject("updateResult", m.req.Phase, "index out of range")
		return false
	}
	patch.Apply(&m.req.Results[i])
	return true
}

// FocusResult moves the review focus to the result at index i.
func (m *Machine) FocusResult(i int) bool {
	if !m.guard("focusResult", PhaseReviewing) {
		return false
	}
	if i < 0 || i >= len(m.req.Results) {
		m.reject("focusResult", m.req.Phase, "index out of range")
		return false
	}
	m.req.ActiveResultIndex = i
	return true
}

// SaveStart begins persisting the reviewed result.
func (m *Machine) SaveStart() bool {
	if !m.guard("saveStart", PhaseReviewing) {
		return false
	}
	m.req.Phase = PhaseSaving
	m.req.Err = ""
	return true
}

// SaveSuccess confirms the spend and retires the request.
func (m *Machine) SaveSuccess() bool {
	if !m.guard("saveSuccess", PhaseSaving) {
		return false
	}
	if m.req.Credit.Status == CreditReserved {
		if err := m.req.Credit.Confirm(); err != nil {
			m.reject("saveSuccess", m.req.Phase, err.Error())
		}
	}
	m.drainDialogs()
	m.req = idleRequest()
	return true
}

// SaveError returns to review so the user can retry. The reservation stays
// reserved: the request has not terminated.
func (m *Machine) SaveError(message string) bool {
	if !m.guard("saveError", PhaseSaving) {
		return false
	}
	m.req.Phase = PhaseReviewing
	m.req.Err = message
	return true
}

// RefundCredit refunds an outstanding reservation without retiring the
// request. Blocked during saving, where the in-flight save will confirm.
func (m *Machine) RefundCredit() bool {
	if m.req.Phase == PhaseSaving {
		m.reject("refundCredit", m.req.Phase, "save in progress")
		return false
	}
	if m.req.Credit.Status != CreditReserved {
		m.reject("refundCredit", m.req.Phase, "credit not reserved")
		return false
	}
	if err := m.req.Credit.Refund(); err != nil {
		m.reject("refundCredit", m.req.Phase, err.Error())
		return false
	}
	return true
}

// Cancel abandons the request and discards in-flight data. Blocked during
// saving: a request whose spend confirmation is in flight cannot be
// abandoned. Any in-flight analysis is not aborted; its late report is
// dropped by the request ID guard.
func (m *Machine) Cancel() bool {
	if m.req.Phase == PhaseSaving {
		m.reject("cancel", m.req.Phase, "save in progress")
		return false
	}
	if m.req.Phase == PhaseIdle {
		m.reject("cancel", m.req.Phase, "no active request")
		return false
	}

	if m.req.Credit.Status == CreditReserved {
		if err := m.req.Credit.Refund(); err != nil {
			m.reject("cancel", m.req.Phase, err.Error())
		}
	}
	m.drainDialogs()
	m.req = idleRequest()
	return true
}

// Reset unconditionally returns the machine to idle. Calling it twice yields
// the same state as calling it once.
func (m *Machine) Reset() bool {
	if m.req.Credit.Status == CreditReserved {
		if err := m.req.Credit.Refund(); err != nil {
			m.reject("reset", m.req.Phase, err.Error())
		}
	}
	m.drainDialogs()
	m.req = idleRequest()
	return true
}

// Selectors. All return copies; the machine's state can only change through
// the guarded operations above.

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase { return m.req.Phase }

// Mode returns the capture mode of the live request.
func (m *Machine) Mode() Mode { return m.req.Mode }

// RequestID returns the identity of the live request, or "" when idle.
func (m *Machine) RequestID() string { return m.req.RequestID }

// Request returns a detached copy of the live request.
func (m *Machine) Request() Request { return m.req.clone() }

// HasActiveRequest reports whether a request is in flight.
func (m *Machine) HasActiveRequest() bool { return m.req.Phase != PhaseIdle }

// IsBusy reports whether the pipeline is blocked on a dialog decision.
// Saving is never busy: dialogs cannot block a save confirmation.
func (m *Machine) IsBusy() bool {
	return m.req.Phase != PhaseSaving &&
		m.req.ActiveDialog != nil &&
		m.HasActiveRequest()
}

// ActiveDialog returns a copy of the pending dialog, or nil.
func (m *Machine) ActiveDialog() *Dialog {
	if m.req.ActiveDialog == nil {
		return nil
	}
	d := *m.req.ActiveDialog
	return &d
}

// Credit returns the current credit lifecycle state.
func (m *Machine) Credit() CreditLifecycle { return m.req.Credit }

// Progress returns batch completion progress.
func (m *Machine) Progress() Progress { return m.req.BatchProgress }

// Err returns the last fatal error message.
func (m *Machine) Err() string { return m.req.Err }
