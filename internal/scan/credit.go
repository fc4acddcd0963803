package scan

import "fmt"

// CreditStatus is the spend lifecycle state of a request.
type CreditStatus string

// Credit lifecycle states.
const (
	CreditNone      CreditStatus = "none"
	CreditReserved  CreditStatus = "reserved"
	CreditConfirmed CreditStatus = "confirmed"
	CreditRefunded  CreditStatus = "refunded"
)

// CreditType is the spend bucket a reservation draws from.
type CreditType string

// Credit types.
const (
	// CreditRegular is consumed by single-receipt scans.
	CreditRegular CreditType = "regular"
	// CreditSuper is consumed by batch and statement scans: one unit per
	// request regardless of image count.
	CreditSuper CreditType = "super"
)

// CreditLifecycle tracks reservation, confirmation and refund of spend
// against a request. It is coupled to the phase machine but independently
// inspectable. Spend is reserved before analysis begins, confirmed only when
// the user persists a result, and refunded on every other terminal path, so
// a request can never retire to idle holding a reservation.
type CreditLifecycle struct {
	Status CreditStatus `json:"status"`
	Type   CreditType   `json:"type,omitempty"`
	Count  int          `json:"count,omitempty"`
}

// CreditForMode returns the bucket and unit count a mode reserves.
func CreditForMode(mode Mode) (CreditType, int) {
	switch mode {
	case ModeBatch, ModeStatement:
		return CreditSuper, 1
	default:
		return CreditRegular, 1
	}
}

// Reserve moves none → reserved.
func (c *CreditLifecycle) Reserve(t CreditType, count int) error {
	if c.Status != CreditNone {
		return fmt.Errorf("cannot reserve credit from status %q", c.Status)
	}
	c.Status = CreditReserved
	c.Type = t
	c.Count = count
	return nil
}

// Confirm moves reserved → confirmed. Confirmation is terminal: a confirmed
// spend is never refunded.
func (c *CreditLifecycle) Confirm() error {
	if c.Status != CreditReserved {
		return fmt.Errorf("cannot confirm credit from status %q", c.Status)
	}
	c.Status = CreditConfirmed
	return nil
}

// Refund moves reserved → refunded.
func (c *CreditLifecycle) Refund() error {
	if c.Status != CreditReserved {
		return fmt.Errorf("cannot refund credit from status %q", c.Status)
	}
	c.Status = CreditRefunded
	return nil
}

// Settled reports whether the lifecycle allows the request to retire to idle.
func (c CreditLifecycle) Settled() bool {
	return c.Status != CreditReserved
}
