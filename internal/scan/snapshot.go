package scan

import (
	"errors"
	"fmt"
	"time"
)

// SnapshotSchemaVersion is bumped whenever the persisted request shape
// changes incompatibly. Snapshots written by other versions are rejected
// rather than guessed at.
const SnapshotSchemaVersion = 1

// Restore errors.
var (
	ErrRequestActive   = errors.New("scan: request already active")
	ErrSnapshotVersion = errors.New("scan: unsupported snapshot schema version")
	ErrSnapshotInvalid = errors.New("scan: invalid snapshot")
)

// Snapshot is the persistable form of the machine's state, written on every
// transition so an interrupted session can resume.
type Snapshot struct {
	SavedAt       time.Time `json:"saved_at"`
	Request       Request   `json:"request"`
	SchemaVersion int       `json:"schema_version"`
}

// Snapshot captures the current state for persistence.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		SavedAt:       m.now(),
		Request:       m.req.clone(),
		SchemaVersion: SnapshotSchemaVersion,
	}
}

// RestoreState replaces the machine's state with a persisted snapshot. Legal
// only from idle.
//
// Phases that were waiting on in-process work when the snapshot was taken
// cannot resume, because the work died with the process:
//
//   - scanning downgrades to error and refunds the reservation, as if the
//     analysis had reported failure;
//   - saving downgrades to reviewing with the reservation intact, as if the
//     save had reported failure. If the save actually landed, the duplicate
//     is caught at the next save by the content hash.
//
// A dialog captured mid-prompt is dropped for the same reason: nothing is
// waiting on its answer anymore.
func (m *Machine) RestoreState(snap Snapshot) error {
	if !m.guard("restoreState", PhaseIdle) {
		return ErrRequestActive
	}
	if snap.SchemaVersion != SnapshotSchemaVersion {
		return ErrSnapshotVersion
	}
	if err := validateSnapshotRequest(snap.Request); err != nil {
		return err
	}

	req := snap.Request.clone()
	req.ActiveDialog = nil

	switch req.Phase {
	case PhaseScanning:
		if req.Credit.Status == CreditReserved {
			if err := req.Credit.Refund(); err != nil {
				return fmt.Errorf("%w: %w", ErrSnapshotInvalid, err)
			}
		}
		req.Phase = PhaseError
		req.Err = "scan interrupted before analysis finished"
	case PhaseSaving:
		req.Phase = PhaseReviewing
		req.Err = "save interrupted; review and save again"
	}

	m.req = req
	return nil
}

// validateSnapshotRequest rejects snapshots that could put the machine into a
// state its own operations can never produce.
func validateSnapshotRequest(req Request) error {
	if !req.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrSnapshotInvalid, req.Phase)
	}
	if req.Phase != PhaseIdle && !req.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrSnapshotInvalid, req.Mode)
	}
	if !validCreditStatus(req.Credit.Status) {
		return fmt.Errorf("%w: unknown credit status %q", ErrSnapshotInvalid, req.Credit.Status)
	}
	if req.Phase == PhaseIdle && req.Credit.Status == CreditReserved {
		return fmt.Errorf("%w: idle request holds a reservation", ErrSnapshotInvalid)
	}
	if req.BatchEditingIndex < -1 || req.BatchEditingIndex >= len(req.BatchReceipts) {
		return fmt.Errorf("%w: batch editing index out of range", ErrSnapshotInvalid)
	}
	if req.ActiveResultIndex < 0 || (len(req.Results) > 0 && req.ActiveResultIndex >= len(req.Results)) {
		return fmt.Errorf("%w: active result index out of range", ErrSnapshotInvalid)
	}
	return nil
}

func validCreditStatus(s CreditStatus) bool {
	switch s {
	case CreditNone, CreditReserved, CreditConfirmed, CreditRefunded:
		return true
	}
	return false
}
