package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/review"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

// Save persists the single-mode draft under review. Success confirms the
// reservation and retires the request; failure returns to review with the
// reservation intact so the user can fix and retry. A draft whose content
// hash is already in the ledger is rejected as a duplicate.
func (s *Service) Save(ctx context.Context) (*model.Expense, error) {
	s.mu.Lock()
	req := s.scanner.Request()
	if req.Phase != scan.PhaseReviewing || len(req.Results) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("nothing to save in phase %s", req.Phase)
	}
	draft := req.Results[req.ActiveResultIndex]
	edited := s.edited
	if !s.scanner.SaveStart() {
		s.mu.Unlock()
		return nil, fmt.Errorf("could not start saving in phase %s", req.Phase)
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	expense := s.buildExpense(draft, edited)
	if err := s.deps.Storage.SaveExpense(ctx, expense); err != nil {
		msg := "could not save the expense"
		if errors.Is(err, common.ErrDuplicateEntry) {
			msg = "this receipt was already saved"
		}
		s.mu.Lock()
		s.scanner.SaveError(msg)
		s.persistLocked(ctx)
		s.mu.Unlock()
		return nil, fmt.Errorf("saving expense: %w", err)
	}

	s.learnMapping(ctx, expense.Draft)

	s.mu.Lock()
	s.scanner.SaveSuccess()
	s.edited = false
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.logger.Info("expense saved",
		"expense_id", expense.ID,
		"merchant", expense.Draft.Merchant,
		"total", expense.Draft.Total,
		"currency", expense.Draft.Currency)
	return expense, nil
}

// buildExpense stamps a reviewed draft into its persisted form.
func (s *Service) buildExpense(draft model.TransactionDraft, edited bool) *model.Expense {
	status := model.StatusSavedFromScan
	switch {
	case edited:
		status = model.StatusUserEdited
	case draft.Source == model.SourceStatement:
		status = model.StatusSavedFromStatement
	}
	return &model.Expense{
		ID:      uuid.NewString(),
		UserID:  s.cfg.UserID,
		Hash:    draft.GenerateHash(),
		Status:  status,
		SavedAt: time.Now(),
		Draft:   draft,
	}
}

// learnMapping records the merchant→category pairing of a saved expense so
// the next scan of the same merchant starts out enriched. Learning is best
// effort and never blocks a save; manual mappings are the user's and are
// never overwritten from here.
func (s *Service) learnMapping(ctx context.Context, draft model.TransactionDraft) {
	if draft.Merchant == "" || draft.Category == "" {
		return
	}
	key := model.NormalizeMerchant(draft.Merchant)
	if key == "" {
		return
	}

	existing, err := s.deps.Storage.GetMerchantMapping(ctx, key)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.logger.Warn("could not look up merchant mapping", "merchant", key, "error", err)
		return
	}

	if existing != nil {
		if existing.Category == draft.Category {
			if err := s.deps.Storage.IncrementMappingUse(ctx, key); err != nil {
				s.logger.Warn("could not bump mapping use", "merchant", key, "error", err)
			}
			return
		}
		if existing.Source == model.MappingManual {
			return
		}
	}

	mapping := &model.MerchantMapping{
		Merchant:      key,
		CanonicalName: draft.Merchant,
		Category:      draft.Category,
		UseCount:      1,
		Source:        model.MappingAuto,
	}
	if existing != nil {
		mapping.CanonicalName = existing.CanonicalName
		mapping.UseCount = existing.UseCount + 1
	}
	if err := s.deps.Storage.SaveMerchantMapping(ctx, mapping); err != nil {
		s.logger.Warn("could not learn merchant mapping", "merchant", key, "error", err)
	}
}

// BeginReview seeds the review machine from the scan request's batch
// receipts. Failed receipts have nothing to review and are left behind; they
// were already reported in the batch summary.
func (s *Service) BeginReview() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanner.Phase() != scan.PhaseReviewing {
		return fmt.Errorf("cannot review in phase %s", s.scanner.Phase())
	}
	switch s.reviewer.Phase() {
	case review.PhaseReviewing, review.PhaseEditing, review.PhaseSaving:
		return nil
	case review.PhaseComplete, review.PhaseError:
		s.reviewer.Reset()
	}

	items := review.ItemsFromReceipts(s.scanner.BatchReceipts())
	if len(items) == 0 {
		return fmt.Errorf("no reviewable receipts in this batch")
	}
	if !s.reviewer.LoadBatch(items) {
		return fmt.Errorf("could not load the batch for review")
	}
	return nil
}

// ImportStatement parses a bank statement file and queues its transactions
// for review. The file is fingerprinted so the same statement cannot be
// imported twice; the import is recorded once its review session saves.
func (s *Service) ImportStatement(ctx context.Context, path string) (int, error) {
	if s.deps.Statements == nil {
		return 0, fmt.Errorf("%w: statement parser", common.ErrMissingConfig)
	}

	hash, err := s.deps.Statements.Hash(path)
	if err != nil {
		return 0, err
	}
	imported, err := s.deps.Storage.WasStatementImported(ctx, s.cfg.UserID, hash)
	if err != nil {
		return 0, fmt.Errorf("checking statement imports: %w", err)
	}
	if imported {
		return 0, fmt.Errorf("%w: %s was already imported", common.ErrDuplicateEntry, filepath.Base(path))
	}

	drafts, err := s.deps.Statements.Parse(ctx, path)
	if err != nil {
		return 0, err
	}
	if len(drafts) == 0 {
		return 0, fmt.Errorf("no transactions found in %s", filepath.Base(path))
	}

	source := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if source == "" {
		source = "statement"
	}

	n, err := s.LoadDraftsForReview(ctx, drafts)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.pendingImport = &importRecord{fileHash: hash, source: source, txCount: n}
	s.mu.Unlock()
	return n, nil
}

// LoadDraftsForReview queues externally fetched drafts, a Plaid pull for
// example, for batch review.
func (s *Service) LoadDraftsForReview(ctx context.Context, drafts []model.TransactionDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, fmt.Errorf("no drafts to review")
	}

	items := make([]review.Item, 0, len(drafts))
	for _, d := range drafts {
		items = append(items, review.Item{
			ID:        uuid.NewString(),
			SaveState: review.SavePending,
			Draft:     s.enrich(ctx, d),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanner.HasActiveRequest() {
		return 0, fmt.Errorf("%w: finish or cancel it before importing", scan.ErrRequestActive)
	}
	switch s.reviewer.Phase() {
	case review.PhaseComplete, review.PhaseError:
		s.reviewer.Reset()
	case review.PhaseReviewing, review.PhaseEditing, review.PhaseSaving:
		return 0, fmt.Errorf("a review session is already in progress")
	}
	if !s.reviewer.LoadBatch(items) {
		return 0, fmt.Errorf("could not load drafts for review")
	}
	s.pendingImport = nil
	return len(items), nil
}

// SaveBatch persists every item in the review session, one expense at a
// time. Per-item failures accumulate; the batch completes as long as at
// least one item lands. When the items came from a batch scan, the scan
// request's reservation is confirmed on any success and the request retires.
func (s *Service) SaveBatch(ctx context.Context) (saved, failed int, err error) {
	s.mu.Lock()
	if !s.reviewer.SaveStart() {
		s.mu.Unlock()
		return 0, 0, fmt.Errorf("cannot save the batch in phase %s", s.reviewer.Phase())
	}
	items := s.reviewer.Items()
	scanActive := s.scanner.Phase() == scan.PhaseReviewing
	if scanActive {
		s.scanner.SaveStart()
		s.persistLocked(ctx)
	}
	pending := s.pendingImport
	s.mu.Unlock()

	for _, item := range items {
		expense := s.buildExpense(item.Draft, item.Edited)
		saveErr := s.deps.Storage.SaveExpense(ctx, expense)

		s.mu.Lock()
		if saveErr != nil {
			msg := saveErr.Error()
			if errors.Is(saveErr, common.ErrDuplicateEntry) {
				msg = "already saved"
			}
			s.reviewer.SaveItemFailure(item.ID, msg)
		} else {
			s.reviewer.SaveItemSuccess(item.ID)
		}
		s.mu.Unlock()

		if saveErr == nil {
			s.learnMapping(ctx, expense.Draft)
		}
	}

	s.mu.Lock()
	s.reviewer.SaveComplete()
	saved = s.reviewer.SavedCount()
	failed = s.reviewer.FailedCount()
	if scanActive {
		if saved > 0 {
			s.scanner.SaveSuccess()
		} else {
			s.scanner.SaveError("every item in the batch failed to save")
		}
		s.persistLocked(ctx)
	}
	if saved == 0 {
		pending = nil
	} else {
		s.pendingImport = nil
	}
	s.mu.Unlock()

	if pending != nil {
		err := s.deps.Storage.RecordStatementImport(ctx, s.cfg.UserID, pending.fileHash, pending.source, pending.txCount)
		if err != nil && !errors.Is(err, common.ErrDuplicateEntry) {
			s.logger.Warn("could not record statement import",
				"file_hash", pending.fileHash,
				"error", err)
		}
	}

	s.logger.Info("batch save finished", "saved", saved, "failed", failed)
	if saved == 0 {
		return saved, failed, fmt.Errorf("every item in the batch failed to save")
	}
	return saved, failed, nil
}

// Review wrappers. The review machine is owned by the service like the scan
// machine; presenters drive it through these. Each reports whether the
// operation applied, mirroring the machine's guarded style.

// ReviewPhase returns the review machine's phase.
func (s *Service) ReviewPhase() review.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.Phase()
}

// ReviewItems returns a detached copy of the items under review.
func (s *Service) ReviewItems() []review.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.Items()
}

// ReviewItem returns a copy of one item by ID.
func (s *Service) ReviewItem(id string) (review.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.Item(id)
}

// FocusReviewItem moves the review cursor.
func (s *Service) FocusReviewItem(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.FocusItem(i)
}

// StartReviewEdit opens an item for editing.
func (s *Service) StartReviewEdit(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.StartEditing(id)
}

// UpdateReviewItem patches the item being edited.
func (s *Service) UpdateReviewItem(id string, patch model.DraftPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.UpdateItem(id, patch)
}

// FinishReviewEdit closes the edit form.
func (s *Service) FinishReviewEdit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.FinishEditing()
}

// DiscardReviewItem removes an item from the review session.
func (s *Service) DiscardReviewItem(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.DiscardItem(id)
}

// ReviewCursor returns the index of the focused item.
func (s *Service) ReviewCursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.CurrentIndex()
}

// ReviewEditingID returns the ID of the item being edited, or "".
func (s *Service) ReviewEditingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.EditingReceiptID()
}

// ReviewCounts returns the save tallies of the current pass.
func (s *Service) ReviewCounts() (saved, failed, outstanding int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.SavedCount(), s.reviewer.FailedCount(), s.reviewer.Outstanding()
}

// ReviewErr returns the review machine's fatal error message.
func (s *Service) ReviewErr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.Err()
}

// ResetReview returns the review machine to idle from a terminal phase.
func (s *Service) ResetReview() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewer.Reset()
}
