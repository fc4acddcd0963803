// Package scan implements the scan request lifecycle state machine: a
// single-owner, synchronous state container that coordinates capture,
// analysis, review and save of receipt scans, together with the credit
// lifecycle and the dialog interruption subsystem layered on top of it.
//
// The machine is not goroutine-safe. All mutating operations must be invoked
// from one logical owner (see internal/session); asynchronous collaborators
// report their outcomes back through the guarded operations, tagged with the
// request ID they belong to.
package scan

// Phase is the coarse-grained lifecycle stage of a scan request.
type Phase string

// Scan request phases.
const (
	PhaseIdle      Phase = "idle"
	PhaseCapturing Phase = "capturing"
	PhaseScanning  Phase = "scanning"
	PhaseReviewing Phase = "reviewing"
	PhaseSaving    Phase = "saving"
	PhaseError     Phase = "error"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseCapturing, PhaseScanning, PhaseReviewing, PhaseSaving, PhaseError:
		return true
	}
	return false
}

// Mode is the capture strategy of a request, fixed for its lifetime.
type Mode string

// Capture modes.
const (
	// ModeSingle captures one receipt producing one draft.
	ModeSingle Mode = "single"
	// ModeBatch captures several receipts processed concurrently, one draft each.
	ModeBatch Mode = "batch"
	// ModeStatement captures a bank statement producing many drafts at once.
	ModeStatement Mode = "statement"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeBatch, ModeStatement:
		return true
	}
	return false
}

// RejectFunc receives a diagnostic every time a guarded operation is invoked
// from a phase that does not allow it. Rejected operations are silent no-ops;
// the diagnostic is the only trace of the caller bug.
type RejectFunc func(op string, phase Phase, reason string)
