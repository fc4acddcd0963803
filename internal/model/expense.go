package model

import "time"

// SaveStatus indicates how an expense entered the ledger.
type SaveStatus string

const (
	// StatusSavedFromScan indicates the expense came through the scan pipeline.
	StatusSavedFromScan SaveStatus = "SAVED_FROM_SCAN"
	// StatusSavedFromStatement indicates the expense was imported from a statement.
	StatusSavedFromStatement SaveStatus = "SAVED_FROM_STATEMENT"
	// StatusUserEdited indicates the user modified the draft before saving.
	StatusUserEdited SaveStatus = "USER_EDITED"
)

// Expense is a transaction draft that has been persisted to the ledger.
type Expense struct {
	SavedAt time.Time
	ID      string
	UserID  string
	Hash    string
	Status  SaveStatus
	Draft   TransactionDraft
}
