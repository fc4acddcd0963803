package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

// Process runs analysis on the captured images and carries the request into
// review, resolving interruption dialogs along the way. Credits are debited
// before the first vision call and refunded on every failure path. In single
// mode an accepted quick-save offer persists immediately; the saved expense
// is returned in that case and nil otherwise.
func (s *Service) Process(ctx context.Context) (*model.Expense, error) {
	s.mu.Lock()
	req := s.scanner.Request()
	s.mu.Unlock()

	if req.Phase != scan.PhaseCapturing {
		return nil, fmt.Errorf("cannot process in phase %s", req.Phase)
	}
	if len(req.Images) == 0 {
		return nil, common.ErrNoImages
	}

	creditType, count := scan.CreditForMode(req.Mode)
	if err := s.gateCredits(ctx, creditType, count); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.scanner.ProcessStart() {
		s.mu.Unlock()
		return nil, fmt.Errorf("could not start processing in phase %s", s.scanner.Phase())
	}
	req = s.scanner.Request()
	s.persistLocked(ctx)
	s.mu.Unlock()

	if err := s.deps.Storage.ConsumeCredits(ctx, s.cfg.UserID, creditType, count, req.RequestID); err != nil {
		s.mu.Lock()
		s.scanner.ProcessError(req.RequestID, "could not reserve credits")
		s.persistLocked(ctx)
		s.mu.Unlock()
		return nil, fmt.Errorf("reserving credits: %w", err)
	}

	switch req.Mode {
	case scan.ModeBatch:
		return nil, s.processBatch(ctx, req)
	case scan.ModeStatement:
		return nil, s.processStatement(ctx, req)
	default:
		return s.processSingle(ctx, req)
	}
}

// gateCredits checks the balance against the upcoming reservation and raises
// the credit warning when it cannot cover it. An accepted warning proceeds
// only under AllowOverdraft, by granting the shortfall as an advance so the
// debit and its ledger trail stay intact.
func (s *Service) gateCredits(ctx context.Context, creditType scan.CreditType, count int) error {
	balance, err := s.deps.Storage.GetCreditBalance(ctx, s.cfg.UserID)
	if err != nil {
		return fmt.Errorf("checking credit balance: %w", err)
	}
	if balance.Covers(creditType, count) {
		return nil
	}

	res := s.askDialog(ctx, scan.Dialog{
		Type: scan.DialogCreditWarning,
		Payload: scan.CreditWarningPayload{
			Type:     creditType,
			Balance:  balance.For(creditType),
			Required: count,
		},
	})
	if !res.Accepted || !s.cfg.AllowOverdraft {
		return fmt.Errorf("%w: need %d %s credit(s)", common.ErrInsufficientCredits, count, creditType)
	}

	shortfall := count - balance.For(creditType)
	if err := s.deps.Storage.GrantCredits(ctx, s.cfg.UserID, creditType, shortfall, "overdraft advance"); err != nil {
		return fmt.Errorf("advancing credits: %w", err)
	}
	s.logger.Info("advanced credits for overdraft",
		"credit_type", creditType,
		"count", shortfall)
	return nil
}

// failScan refunds the debit and reports a fatal analysis failure.
func (s *Service) failScan(ctx context.Context, req scan.Request, creditType scan.CreditType, count int, cause error) {
	if err := s.deps.Storage.RefundCredits(ctx, s.cfg.UserID, creditType, count, req.RequestID); err != nil {
		s.logger.Warn("could not refund failed scan",
			"request_id", req.RequestID,
			"error", err)
	}
	s.mu.Lock()
	s.scanner.ProcessError(req.RequestID, cause.Error())
	s.persistLocked(ctx)
	s.mu.Unlock()
}

// abortScan refunds the debit and retires a request whose context was
// canceled. Unlike failScan it leaves no error phase behind: the user asked
// to stop.
func (s *Service) abortScan(ctx context.Context, req scan.Request, creditType scan.CreditType, count int) {
	if err := s.deps.Storage.RefundCredits(ctx, s.cfg.UserID, creditType, count, req.RequestID); err != nil {
		s.logger.Warn("could not refund aborted scan",
			"request_id", req.RequestID,
			"error", err)
	}
	s.mu.Lock()
	s.scanner.Cancel()
	s.persistLocked(ctx)
	s.mu.Unlock()
}

// analyzeImage loads and analyzes one captured image.
func (s *Service) analyzeImage(ctx context.Context, req scan.Request, index int) (model.TransactionDraft, error) {
	img, err := s.deps.Loader.Load(req.Images[index].Path)
	if err != nil {
		return model.TransactionDraft{}, fmt.Errorf("loading %s: %w", req.Images[index].Path, err)
	}
	return s.deps.Analyzer.Analyze(ctx, img, s.hintsFor(req))
}

func (s *Service) processSingle(ctx context.Context, req scan.Request) (*model.Expense, error) {
	creditType, count := scan.CreditForMode(req.Mode)

	draft, err := s.analyzeImage(ctx, req, 0)
	if err != nil {
		if ctx.Err() != nil {
			s.abortScan(ctx, req, creditType, count)
			return nil, ctx.Err()
		}
		s.failScan(ctx, req, creditType, count, err)
		return nil, fmt.Errorf("analyzing receipt: %w", err)
	}
	draft = s.enrich(ctx, draft)

	s.mu.Lock()
	if !s.scanner.ProcessSuccess(req.RequestID, draft) {
		s.mu.Unlock()
		return nil, fmt.Errorf("request %s is no longer live", req.RequestID)
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	return s.resolveReviewDialogs(ctx, req)
}

// resolveReviewDialogs walks the single-mode decision chain: currency
// mismatch, total mismatch, then the quick-save offer. The offer is made only
// when neither mismatch fired; a receipt that needed corrections deserves a
// look at the full review screen.
func (s *Service) resolveReviewDialogs(ctx context.Context, req scan.Request) (*model.Expense, error) {
	draft, ok := s.activeDraft()
	if !ok {
		return nil, nil
	}

	raised := false
	expected := strings.ToUpper(s.hintsFor(req).Currency)
	if expected != "" && !strings.EqualFold(draft.Currency, expected) {
		raised = true
		res := s.askDialog(ctx, scan.Dialog{
			Type: scan.DialogCurrencyMismatch,
			Payload: scan.CurrencyMismatchPayload{
				Expected: expected,
				Detected: draft.Currency,
			},
		})
		switch {
		case res.Patch != nil:
			s.patchActiveDraft(ctx, *res.Patch)
		case res.Dismissed:
			// Keep the detected currency; review can still change it.
		case !res.Accepted:
			s.patchActiveDraft(ctx, model.DraftPatch{Currency: &expected})
		}
	}

	if draft, ok = s.activeDraft(); !ok {
		return nil, nil
	}
	if draft.TotalsDisagree(s.cfg.TotalTolerance) {
		raised = true
		computed := draft.ItemsTotal()
		res := s.askDialog(ctx, scan.Dialog{
			Type: scan.DialogTotalMismatch,
			Payload: scan.TotalMismatchPayload{
				Stated:   draft.Total,
				Computed: computed,
			},
		})
		switch {
		case res.Patch != nil:
			s.patchActiveDraft(ctx, *res.Patch)
		case res.Dismissed:
			// Keep the stated total.
		case !res.Accepted:
			s.patchActiveDraft(ctx, model.DraftPatch{Total: &computed})
		}
	}

	if draft, ok = s.activeDraft(); !ok {
		return nil, nil
	}
	if !raised && draft.Confidence >= s.cfg.QuickSaveMin {
		res := s.askDialog(ctx, scan.Dialog{
			Type: scan.DialogQuickSave,
			Payload: scan.QuickSavePayload{
				Merchant:   draft.Merchant,
				Total:      draft.Total,
				Currency:   draft.Currency,
				Confidence: draft.Confidence,
			},
		})
		if res.Accepted {
			return s.Save(ctx)
		}
	}
	return nil, nil
}

// activeDraft returns a copy of the draft under review, if any.
func (s *Service) activeDraft() (model.TransactionDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.scanner.Request()
	if req.Phase != scan.PhaseReviewing || len(req.Results) == 0 {
		return model.TransactionDraft{}, false
	}
	return req.Results[req.ActiveResultIndex], true
}

// patchActiveDraft applies a dialog-driven correction. Unlike UpdateDraft it
// does not mark the draft user-edited: accepting a suggested fix is not an
// edit.
func (s *Service) patchActiveDraft(ctx context.Context, patch model.DraftPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.scanner.Request()
	if req.Phase != scan.PhaseReviewing {
		return
	}
	s.scanner.UpdateResult(req.ActiveResultIndex, patch)
	s.persistLocked(ctx)
}

func (s *Service) processStatement(ctx context.Context, req scan.Request) error {
	creditType, count := scan.CreditForMode(req.Mode)

	img, err := s.deps.Loader.Load(req.Images[0].Path)
	if err != nil {
		s.failScan(ctx, req, creditType, count, err)
		return fmt.Errorf("loading %s: %w", req.Images[0].Path, err)
	}

	drafts, err := s.deps.Analyzer.AnalyzeStatement(ctx, img, s.hintsFor(req))
	if err != nil {
		if ctx.Err() != nil {
			s.abortScan(ctx, req, creditType, count)
			return ctx.Err()
		}
		s.failScan(ctx, req, creditType, count, err)
		return fmt.Errorf("analyzing statement: %w", err)
	}
	if len(drafts) == 0 {
		s.failScan(ctx, req, creditType, count, errors.New("no transactions found in the statement"))
		return fmt.Errorf("%w: no transactions found", common.ErrAnalysisFailed)
	}

	for i := range drafts {
		drafts[i] = s.enrich(ctx, drafts[i])
	}

	s.mu.Lock()
	if !s.scanner.ProcessStatementSuccess(req.RequestID, drafts) {
		s.mu.Unlock()
		return fmt.Errorf("request %s is no longer live", req.RequestID)
	}
	s.persistLocked(ctx)
	s.mu.Unlock()
	return nil
}

func (s *Service) processBatch(ctx context.Context, req scan.Request) error {
	creditType, count := scan.CreditForMode(req.Mode)

	s.runBatchWorkers(ctx, req)
	if ctx.Err() != nil {
		s.abortScan(ctx, req, creditType, count)
		return ctx.Err()
	}

	s.mu.Lock()
	if !s.scanner.BatchComplete(req.RequestID) {
		s.mu.Unlock()
		return fmt.Errorf("request %s is no longer live", req.RequestID)
	}
	receipts := s.scanner.BatchReceipts()
	s.persistLocked(ctx)
	s.mu.Unlock()

	succeeded, failed := 0, 0
	for _, r := range receipts {
		if r.Status == scan.ReceiptError {
			failed++
		} else {
			succeeded++
		}
	}
	s.logger.Info("batch analysis finished",
		"request_id", req.RequestID,
		"succeeded", succeeded,
		"failed", failed)

	res := s.askDialog(ctx, scan.Dialog{
		Type:    scan.DialogBatchComplete,
		Payload: scan.BatchCompletePayload{Succeeded: succeeded, Failed: failed},
	})
	if res.Accepted {
		if err := s.BeginReview(); err != nil {
			return err
		}
	}
	return nil
}

// runBatchWorkers fans the captured images out over a bounded worker pool.
// Each worker reports through the machine under the service lock; cross-index
// completion order is whatever the pool produces.
func (s *Service) runBatchWorkers(ctx context.Context, req scan.Request) {
	workChan := make(chan int, len(req.Images))
	for i := range req.Images {
		workChan <- i
	}
	close(workChan)

	var wg sync.WaitGroup
	wg.Add(s.cfg.Workers)
	for w := 0; w < s.cfg.Workers; w++ {
		go func(workerID int) {
			defer wg.Done()
			for index := range workChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				s.logger.Debug("worker analyzing image",
					"worker_id", workerID,
					"image_index", index)
				s.analyzeBatchItem(ctx, req, index)
			}
		}(w)
	}
	wg.Wait()
}

// analyzeBatchItem runs one image through analysis under the per-item budget
// and reports the outcome. A timeout becomes a per-item failure; the rest of
// the batch keeps going.
func (s *Service) analyzeBatchItem(ctx context.Context, req scan.Request, index int) {
	s.mu.Lock()
	s.scanner.BatchItemStart(req.RequestID, index)
	s.mu.Unlock()

	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	draft, err := s.analyzeImage(itemCtx, req, index)
	if err == nil {
		draft = s.enrich(ctx, draft)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("analysis timed out after %s", s.cfg.ItemTimeout)
		}
		s.scanner.BatchItemError(req.RequestID, index, msg)
	} else {
		s.scanner.BatchItemSuccess(req.RequestID, index, draft)
	}
	s.persistLocked(ctx)
}
