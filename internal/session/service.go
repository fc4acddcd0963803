package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/capture"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/review"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

// Config tunes the orchestrator. Zero values fall back to defaults.
type Config struct {
	// UserID scopes every expense, credit and snapshot this service touches.
	UserID string
	// Currency is the currency receipts are expected to use. A detected
	// currency that differs raises the mismatch dialog. Empty disables the
	// check.
	Currency string
	// Workers bounds parallel batch analyses. Default 3.
	Workers int
	// ItemTimeout is the per-image analysis budget in batch mode. Default 60s.
	ItemTimeout time.Duration
	// QuickSaveMin is the confidence floor for the quick-save offer. Default 0.9.
	QuickSaveMin float64
	// TotalTolerance is how far a stated total may drift from the item sum
	// before the mismatch dialog fires. Default 0.01.
	TotalTolerance float64
	// AllowOverdraft lets an accepted credit warning proceed on an empty
	// balance by advancing the missing credits.
	AllowOverdraft bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 60 * time.Second
	}
	if c.QuickSaveMin <= 0 {
		c.QuickSaveMin = 0.9
	}
	if c.TotalTolerance <= 0 {
		c.TotalTolerance = 0.01
	}
	return c
}

// Deps are the collaborators the orchestrator drives. Storage, Snapshots,
// Analyzer and Loader are required. Enricher and Statements may be nil, which
// disables enrichment and statement imports respectively. A nil Prompter
// dismisses every dialog, which makes headless runs take the conservative
// branch of each decision.
type Deps struct {
	Storage    Storage
	Snapshots  SnapshotStore
	Analyzer   Analyzer
	Statements StatementParser
	Enricher   Enricher
	Loader     ImageLoader
	Prompter   Prompter
}

func (d Deps) validate() error {
	switch {
	case d.Storage == nil:
		return fmt.Errorf("%w: storage", common.ErrMissingConfig)
	case d.Snapshots == nil:
		return fmt.Errorf("%w: snapshot store", common.ErrMissingConfig)
	case d.Analyzer == nil:
		return fmt.Errorf("%w: analyzer", common.ErrMissingConfig)
	case d.Loader == nil:
		return fmt.Errorf("%w: image loader", common.ErrMissingConfig)
	}
	return nil
}

// Service owns the scan and review state machines. The machines are
// synchronous and not goroutine-safe; every machine operation here runs under
// one mutex, making the service their single logical owner. Collaborator
// calls (vision, storage, prompts) happen outside the lock so a slow network
// call never blocks a progress read.
type Service struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	scanner  *scan.Machine
	reviewer *review.Machine
	edited   bool

	// pendingImport remembers a parsed statement file until its review
	// session saves, at which point the import is recorded for dedupe.
	pendingImport *importRecord
}

type importRecord struct {
	fileHash string
	source   string
	txCount  int
}

// New builds a Service and restores any request that was interrupted by a
// previous process exit.
func New(ctx context.Context, deps Deps, cfg Config) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("%w: user id", common.ErrMissingConfig)
	}

	s := &Service{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		logger:   slog.With("component", "session"),
		scanner:  scan.NewMachine(),
		reviewer: review.NewMachine(),
	}
	s.restore(ctx)
	return s, nil
}

// restore rehydrates an interrupted request from the snapshot store. A
// snapshot taken mid-analysis comes back in the error phase with its
// reservation refunded inside the machine; the balance refund is mirrored
// here.
func (s *Service) restore(ctx context.Context) {
	snap, err := s.deps.Snapshots.Get(ctx, s.cfg.UserID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Warn("could not read in-flight snapshot", "error", err)
		}
		return
	}

	interrupted := snap.Request.Phase == scan.PhaseScanning &&
		snap.Request.Credit.Status == scan.CreditReserved

	if err := s.scanner.RestoreState(*snap); err != nil {
		s.logger.Warn("dropping unusable snapshot", "error", err)
		if derr := s.deps.Snapshots.Delete(ctx, s.cfg.UserID); derr != nil {
			s.logger.Warn("could not clear snapshot", "error", derr)
		}
		return
	}

	if interrupted {
		credit := snap.Request.Credit
		err := s.deps.Storage.RefundCredits(ctx, s.cfg.UserID, credit.Type, credit.Count, snap.Request.RequestID)
		if err != nil {
			s.logger.Warn("could not refund interrupted scan",
				"request_id", snap.Request.RequestID,
				"error", err)
		}
	}

	s.mu.Lock()
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.logger.Info("restored interrupted session",
		"phase", s.scanner.Phase(),
		"mode", s.scanner.Mode(),
		"request_id", s.scanner.RequestID())
}

// persistLocked writes the live request to the snapshot store, or clears the
// stored snapshot once the request has retired. Callers hold s.mu. Snapshot
// failures degrade crash recovery but never block the pipeline.
func (s *Service) persistLocked(ctx context.Context) {
	if !s.scanner.HasActiveRequest() {
		if err := s.deps.Snapshots.Delete(ctx, s.cfg.UserID); err != nil {
			s.logger.Warn("could not clear snapshot", "error", err)
		}
		return
	}
	if err := s.deps.Snapshots.Put(ctx, s.cfg.UserID, s.scanner.Snapshot()); err != nil {
		s.logger.Warn("could not persist snapshot", "error", err)
	}
}

// Start begins a new request in the given mode. Hints carried here follow the
// images into analysis.
func (s *Service) Start(mode scan.Mode, hints Hints) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ok bool
	switch mode {
	case scan.ModeSingle:
		ok = s.scanner.StartSingle(s.cfg.UserID)
	case scan.ModeBatch:
		ok = s.scanner.StartBatch(s.cfg.UserID)
	case scan.ModeStatement:
		ok = s.scanner.StartStatement(s.cfg.UserID)
	default:
		return fmt.Errorf("unknown scan mode %q", mode)
	}
	if !ok {
		return fmt.Errorf("%w: %s request in phase %s",
			scan.ErrRequestActive, s.scanner.Mode(), s.scanner.Phase())
	}

	s.edited = false
	if hints.StoreType != "" || hints.Currency != "" {
		s.scanner.SetHints(hints.StoreType, hints.Currency)
	}
	return nil
}

// AddImages appends captured files to the live request.
func (s *Service) AddImages(ctx context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanner.Phase() != scan.PhaseCapturing {
		return fmt.Errorf("cannot add images in phase %s", s.scanner.Phase())
	}
	for _, path := range paths {
		if !capture.IsSupported(path) {
			return fmt.Errorf("unsupported capture file: %s", path)
		}
	}
	for _, path := range paths {
		s.scanner.AddImage(scan.ImageRef{Path: path})
	}
	s.persistLocked(ctx)
	return nil
}

// RemoveImage drops a captured image before processing starts.
func (s *Service) RemoveImage(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanner.RemoveImage(index) {
		return fmt.Errorf("no image at index %d", index)
	}
	s.persistLocked(ctx)
	return nil
}

// Cancel abandons the live request, returning any reservation to the
// balance. Canceling with nothing active is a no-op; canceling mid-save is
// refused because the save's confirmation is already in flight.
func (s *Service) Cancel(ctx context.Context) error {
	s.mu.Lock()
	req := s.scanner.Request()
	if req.Phase == scan.PhaseIdle {
		s.pendingImport = nil
		s.mu.Unlock()
		return nil
	}
	if !s.scanner.Cancel() {
		s.mu.Unlock()
		return fmt.Errorf("cannot cancel in phase %s", req.Phase)
	}
	s.edited = false
	s.pendingImport = nil
	s.persistLocked(ctx)
	s.mu.Unlock()

	if req.Credit.Status == scan.CreditReserved {
		err := s.deps.Storage.RefundCredits(ctx, s.cfg.UserID, req.Credit.Type, req.Credit.Count, req.RequestID)
		if err != nil {
			s.logger.Warn("could not refund canceled request",
				"request_id", req.RequestID,
				"error", err)
		}
	}
	return nil
}

// UpdateDraft patches the single-mode draft under review.
func (s *Service) UpdateDraft(ctx context.Context, patch model.DraftPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.scanner.Request()
	if req.Phase != scan.PhaseReviewing {
		return fmt.Errorf("cannot edit in phase %s", req.Phase)
	}
	if !s.scanner.UpdateResult(req.ActiveResultIndex, patch) {
		return fmt.Errorf("could not apply edit")
	}
	if !patch.IsZero() {
		s.edited = true
	}
	s.persistLocked(ctx)
	return nil
}

// UpdateBatchReceipt patches a batch receipt's draft during scan review.
func (s *Service) UpdateBatchReceipt(ctx context.Context, id string, patch model.DraftPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanner.UpdateBatchReceipt(id, patch) {
		return fmt.Errorf("could not update receipt %s", id)
	}
	s.persistLocked(ctx)
	return nil
}

// DiscardBatchReceipt removes a receipt from the batch. Discarding a receipt
// the user already edited asks for confirmation first.
func (s *Service) DiscardBatchReceipt(ctx context.Context, id string) error {
	s.mu.Lock()
	var target *scan.BatchReceipt
	for _, r := range s.scanner.BatchReceipts() {
		if r.ID == id {
			receipt := r
			target = &receipt
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: receipt %s", common.ErrNotFound, id)
	}
	s.mu.Unlock()

	if target.Status == scan.ReceiptEdited {
		res := s.askDialog(ctx, scan.Dialog{
			Type: scan.DialogBatchDiscard,
			Payload: scan.BatchDiscardPayload{
				ReceiptID: id,
				Merchant:  target.Draft.Merchant,
			},
		})
		if !res.Accepted {
			return nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scanner.DiscardBatchReceipt(id) {
		return fmt.Errorf("could not discard receipt %s", id)
	}
	s.persistLocked(ctx)
	return nil
}

// askDialog raises a dialog, hands it to the prompter, and blocks until the
// continuation resolves. The mutex is released while the user decides, so
// progress reads and worker reports keep flowing.
func (s *Service) askDialog(ctx context.Context, d scan.Dialog) scan.DialogResult {
	s.mu.Lock()
	ch, err := s.scanner.ShowDialog(d)
	if err != nil {
		s.mu.Unlock()
		return scan.DialogResult{Dismissed: true}
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	if s.deps.Prompter == nil {
		s.mu.Lock()
		s.scanner.DismissDialog()
		s.mu.Unlock()
	} else {
		go func() {
			res := s.deps.Prompter.Resolve(ctx, d)
			s.mu.Lock()
			s.scanner.ResolveDialog(d.Type, res)
			s.mu.Unlock()
		}()
	}

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		s.mu.Lock()
		s.scanner.DismissDialog()
		s.mu.Unlock()
		return scan.DialogResult{Dismissed: true}
	}
}

// enrich applies learned mappings when an enricher is configured.
func (s *Service) enrich(ctx context.Context, draft model.TransactionDraft) model.TransactionDraft {
	if s.deps.Enricher == nil {
		return draft
	}
	return s.deps.Enricher.ApplyCategoryMappings(ctx, draft)
}

// hintsFor resolves per-request hints, falling back to the configured
// currency.
func (s *Service) hintsFor(req scan.Request) Hints {
	h := Hints{StoreType: req.StoreHint, Currency: req.CurrencyHint}
	if h.Currency == "" {
		h.Currency = s.cfg.Currency
	}
	return h
}

// CreditBalance returns the user's remaining scan credits.
func (s *Service) CreditBalance(ctx context.Context) (CreditBalance, error) {
	return s.deps.Storage.GetCreditBalance(ctx, s.cfg.UserID)
}

// GrantCredits tops up the user's balance.
func (s *Service) GrantCredits(ctx context.Context, creditType scan.CreditType, count int, note string) error {
	return s.deps.Storage.GrantCredits(ctx, s.cfg.UserID, creditType, count, note)
}

// Selectors. All return detached copies under the lock.

// Phase returns the scan machine's lifecycle phase.
func (s *Service) Phase() scan.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.Phase()
}

// Mode returns the live request's capture mode.
func (s *Service) Mode() scan.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.Mode()
}

// Request returns a copy of the live scan request.
func (s *Service) Request() scan.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.Request()
}

// Results returns the extracted drafts of a single-mode request.
func (s *Service) Results() []model.TransactionDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.Results()
}

// BatchReceipts returns the receipt collection of a batch request.
func (s *Service) BatchReceipts() []scan.BatchReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.BatchReceipts()
}

// Progress returns batch completion progress.
func (s *Service) Progress() scan.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.Progress()
}

// HasActiveRequest reports whether a scan request is in flight.
func (s *Service) HasActiveRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.HasActiveRequest()
}

// Err returns the live request's fatal error message, if any.
func (s *Service) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.Err()
}
