package session

import (
	"context"
	"sync"
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/capture"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

// UnimplementedStorage panics on every call. Fakes embed it so a test that
// strays outside the methods it stubbed fails loudly instead of silently.
type UnimplementedStorage struct{}

func (UnimplementedStorage) SaveExpense(context.Context, *model.Expense) error {
	panic("unexpected call to SaveExpense")
}

func (UnimplementedStorage) GetExpenseByID(context.Context, string) (*model.Expense, error) {
	panic("unexpected call to GetExpenseByID")
}

func (UnimplementedStorage) GetExpenseByHash(context.Context, string, string) (*model.Expense, error) {
	panic("unexpected call to GetExpenseByHash")
}

func (UnimplementedStorage) ListExpenses(context.Context, ExpenseFilter) ([]model.Expense, error) {
	panic("unexpected call to ListExpenses")
}

func (UnimplementedStorage) DeleteExpense(context.Context, string) error {
	panic("unexpected call to DeleteExpense")
}

func (UnimplementedStorage) CategoryTotals(context.Context, string, time.Time, time.Time) ([]CategoryTotal, error) {
	panic("unexpected call to CategoryTotals")
}

func (UnimplementedStorage) GetCategories(context.Context) ([]model.Category, error) {
	panic("unexpected call to GetCategories")
}

func (UnimplementedStorage) GetCategoryByName(context.Context, string) (*model.Category, error) {
	panic("unexpected call to GetCategoryByName")
}

func (UnimplementedStorage) CreateCategory(context.Context, string, string) (*model.Category, error) {
	panic("unexpected call to CreateCategory")
}

func (UnimplementedStorage) UpdateCategory(context.Context, int, string, string) error {
	panic("unexpected call to UpdateCategory")
}

func (UnimplementedStorage) DeactivateCategory(context.Context, int) error {
	panic("unexpected call to DeactivateCategory")
}

func (UnimplementedStorage) SeedDefaultCategories(context.Context) error {
	panic("unexpected call to SeedDefaultCategories")
}

func (UnimplementedStorage) GetMerchantMapping(context.Context, string) (*model.MerchantMapping, error) {
	panic("unexpected call to GetMerchantMapping")
}

func (UnimplementedStorage) SaveMerchantMapping(context.Context, *model.MerchantMapping) error {
	panic("unexpected call to SaveMerchantMapping")
}

func (UnimplementedStorage) GetAllMerchantMappings(context.Context) ([]model.MerchantMapping, error) {
	panic("unexpected call to GetAllMerchantMappings")
}

func (UnimplementedStorage) IncrementMappingUse(context.Context, string) error {
	panic("unexpected call to IncrementMappingUse")
}

func (UnimplementedStorage) GetCreditBalance(context.Context, string) (CreditBalance, error) {
	panic("unexpected call to GetCreditBalance")
}

func (UnimplementedStorage) GrantCredits(context.Context, string, scan.CreditType, int, string) error {
	panic("unexpected call to GrantCredits")
}

func (UnimplementedStorage) ConsumeCredits(context.Context, string, scan.CreditType, int, string) error {
	panic("unexpected call to ConsumeCredits")
}

func (UnimplementedStorage) RefundCredits(context.Context, string, scan.CreditType, int, string) error {
	panic("unexpected call to RefundCredits")
}

func (UnimplementedStorage) WasStatementImported(context.Context, string, string) (bool, error) {
	panic("unexpected call to WasStatementImported")
}

func (UnimplementedStorage) RecordStatementImport(context.Context, string, string, string, int) error {
	panic("unexpected call to RecordStatementImport")
}

func (UnimplementedStorage) Migrate(context.Context) error {
	panic("unexpected call to Migrate")
}

func (UnimplementedStorage) Close() error {
	panic("unexpected call to Close")
}

// creditCall records one balance mutation for assertions.
type creditCall struct {
	creditType scan.CreditType
	requestID  string
	note       string
	count      int
}

// fakeStorage covers the slice of Storage the orchestrator exercises.
type fakeStorage struct {
	UnimplementedStorage

	mu       sync.Mutex
	balance  CreditBalance
	consumed []creditCall
	refunded []creditCall
	granted  []creditCall

	saved    []*model.Expense
	saveErrs map[string]error // keyed by merchant

	mappings    map[string]*model.MerchantMapping
	savedMaps   []*model.MerchantMapping
	incremented []string

	imports  map[string]bool
	recorded []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		balance:  CreditBalance{Regular: 5, Super: 5},
		saveErrs: make(map[string]error),
		mappings: make(map[string]*model.MerchantMapping),
		imports:  make(map[string]bool),
	}
}

func (f *fakeStorage) GetCreditBalance(_ context.Context, _ string) (CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeStorage) ConsumeCredits(_ context.Context, _ string, t scan.CreditType, count int, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance.For(t) < count {
		return common.ErrInsufficientCredits
	}
	if t == scan.CreditSuper {
		f.balance.Super -= count
	} else {
		f.balance.Regular -= count
	}
	f.consumed = append(f.consumed, creditCall{creditType: t, count: count, requestID: requestID})
	return nil
}

func (f *fakeStorage) RefundCredits(_ context.Context, _ string, t scan.CreditType, count int, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t == scan.CreditSuper {
		f.balance.Super += count
	} else {
		f.balance.Regular += count
	}
	f.refunded = append(f.refunded, creditCall{creditType: t, count: count, requestID: requestID})
	return nil
}

func (f *fakeStorage) GrantCredits(_ context.Context, _ string, t scan.CreditType, count int, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t == scan.CreditSuper {
		f.balance.Super += count
	} else {
		f.balance.Regular += count
	}
	f.granted = append(f.granted, creditCall{creditType: t, count: count, note: note})
	return nil
}

func (f *fakeStorage) SaveExpense(_ context.Context, expense *model.Expense) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.saveErrs[expense.Draft.Merchant]; ok {
		return err
	}
	for _, e := range f.saved {
		if e.Hash == expense.Hash {
			return common.ErrDuplicateEntry
		}
	}
	f.saved = append(f.saved, expense)
	return nil
}

func (f *fakeStorage) GetMerchantMapping(_ context.Context, merchant string) (*model.MerchantMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.mappings[merchant]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeStorage) SaveMerchantMapping(_ context.Context, mapping *model.MerchantMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *mapping
	f.mappings[mapping.Merchant] = &copied
	f.savedMaps = append(f.savedMaps, &copied)
	return nil
}

func (f *fakeStorage) IncrementMappingUse(_ context.Context, merchant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incremented = append(f.incremented, merchant)
	return nil
}

func (f *fakeStorage) WasStatementImported(_ context.Context, _ string, fileHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imports[fileHash], nil
}

func (f *fakeStorage) RecordStatementImport(_ context.Context, _ string, fileHash, _ string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imports[fileHash] = true
	f.recorded = append(f.recorded, fileHash)
	return nil
}

func (f *fakeStorage) savedExpenses() []*model.Expense {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Expense(nil), f.saved...)
}

// fakeSnapshots is an in-memory SnapshotStore.
type fakeSnapshots struct {
	mu      sync.Mutex
	byUser  map[string]scan.Snapshot
	puts    int
	deletes int
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{byUser: make(map[string]scan.Snapshot)}
}

func (f *fakeSnapshots) Put(_ context.Context, userID string, snap scan.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUser[userID] = snap
	f.puts++
	return nil
}

func (f *fakeSnapshots) Get(_ context.Context, userID string) (*scan.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.byUser[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &snap, nil
}

func (f *fakeSnapshots) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byUser, userID)
	f.deletes++
	return nil
}

func (f *fakeSnapshots) Close() error { return nil }

func (f *fakeSnapshots) stored(userID string) (scan.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.byUser[userID]
	return snap, ok
}

// fakeAnalyzer scripts analysis outcomes, optionally per image path.
type fakeAnalyzer struct {
	mu sync.Mutex

	draft     model.TransactionDraft
	drafts    []model.TransactionDraft
	errByPath map[string]error
	delay     time.Duration

	hints []Hints
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, img capture.Image, hints Hints) (model.TransactionDraft, error) {
	f.mu.Lock()
	f.calls++
	f.hints = append(f.hints, hints)
	err := f.errByPath[img.SourcePath]
	draft := f.draft
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.TransactionDraft{}, ctx.Err()
		}
	}
	if err != nil {
		return model.TransactionDraft{}, err
	}
	draft.Notes = img.SourcePath
	return draft, nil
}

func (f *fakeAnalyzer) AnalyzeStatement(_ context.Context, _ capture.Image, _ Hints) ([]model.TransactionDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.drafts, nil
}

// fakeLoader skips real file IO and hands back the path as image bytes.
type fakeLoader struct {
	errByPath map[string]error
}

func (f *fakeLoader) Load(path string) (capture.Image, error) {
	if err := f.errByPath[path]; err != nil {
		return capture.Image{}, err
	}
	return capture.Image{Data: []byte(path), ContentType: "image/png", SourcePath: path}, nil
}

// fakeEnricher tags drafts so tests can see enrichment ran.
type fakeEnricher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEnricher) ApplyCategoryMappings(_ context.Context, draft model.TransactionDraft) model.TransactionDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if draft.StoreType == "" {
		draft.StoreType = "enriched"
	}
	return draft
}

func (f *fakeEnricher) FindMerchantMatch(_ context.Context, _ string) (string, bool) {
	return "", false
}

// scriptPrompter answers dialogs from a script and records what was raised.
type scriptPrompter struct {
	mu      sync.Mutex
	answers map[scan.DialogType]scan.DialogResult
	raised  []scan.DialogType
}

func newScriptPrompter() *scriptPrompter {
	return &scriptPrompter{answers: make(map[scan.DialogType]scan.DialogResult)}
}

func (p *scriptPrompter) answer(t scan.DialogType, res scan.DialogResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers[t] = res
}

func (p *scriptPrompter) Resolve(_ context.Context, d scan.Dialog) scan.DialogResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raised = append(p.raised, d.Type)
	if res, ok := p.answers[d.Type]; ok {
		return res
	}
	return scan.DialogResult{Dismissed: true}
}

func (p *scriptPrompter) sawDialog(t scan.DialogType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, raised := range p.raised {
		if raised == t {
			return true
		}
	}
	return false
}

// fakeParser scripts statement file parsing.
type fakeParser struct {
	drafts   []model.TransactionDraft
	parseErr error
	hash     string
}

func (f *fakeParser) Parse(_ context.Context, _ string) ([]model.TransactionDraft, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.drafts, nil
}

func (f *fakeParser) Hash(_ string) (string, error) {
	if f.hash == "" {
		return "deadbeef", nil
	}
	return f.hash, nil
}
