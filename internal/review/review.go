// Package review implements the batch review state machine: a small,
// downstream state container governing the review/edit/save flow once a
// batch of extracted receipts exists. It is fed from the scan machine's
// batch receipts but otherwise decoupled from it.
//
// Like the scan machine it is single-owner and synchronous: guarded
// operations reject illegal calls as silent no-ops with a diagnostic.
package review

// Phase is the lifecycle stage of a batch review session.
type Phase string

// Review phases.
const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseReviewing Phase = "reviewing"
	PhaseEditing   Phase = "editing"
	PhaseSaving    Phase = "saving"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
)

// RejectFunc receives a diagnostic for every guarded operation invoked from
// a phase that does not allow it.
type RejectFunc func(op string, phase Phase, reason string)
