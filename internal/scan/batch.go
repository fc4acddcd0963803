package scan

import (
	"sort"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// Batch processing: each captured image is analyzed independently and
// concurrently by the caller. Per-index reports arrive in any order across
// indices; within one index the caller guarantees start → success|error.
// BatchComplete moves the whole request to review atomically once every item
// has reported, however many of them failed.

// guardBatch validates the common preconditions of batch item reports.
func (m *Machine) guardBatch(op, requestID string, imageIndex int) bool {
	if !m.guard(op, PhaseScanning) {
		return false
	}
	if !m.guardRequestID(op, requestID) {
		return false
	}
	if m.req.Mode != ModeBatch {
		m.reject(op, m.req.Phase, "request mode is "+string(m.req.Mode))
		return false
	}
	if imageIndex < 0 || imageIndex >= len(m.req.Images) {
		m.reject(op, m.req.Phase, "image index out of range")
		return false
	}
	return true
}

// BatchItemStart marks the item at imageIndex as in flight. It exists for
// observers; progress counts only completions.
func (m *Machine) BatchItemStart(requestID string, imageIndex int) bool {
	return m.guardBatch("batchItemStart", requestID, imageIndex)
}

// BatchItemSuccess records the draft extracted from one image.
func (m *Machine) BatchItemSuccess(requestID string, imageIndex int, draft model.TransactionDraft) bool {
	if !m.guardBatch("batchItemSuccess", requestID, imageIndex) {
		return false
	}

	status := ReceiptReady
	if draft.Confidence > 0 && draft.Confidence < 0.7 {
		status = ReceiptReview
	}
	m.upsertReceipt(BatchReceipt{
		ID:         m.newID(),
		Status:     status,
		Draft:      draft,
		ImageIndex: imageIndex,
	})
	return true
}

// BatchItemError records an analysis failure for one image. The batch keeps
// going: partial failure is a first-class outcome.
func (m *Machine) BatchItemError(requestID string, imageIndex int, message string) bool {
	if !m.guardBatch("batchItemError", requestID, imageIndex) {
		return false
	}

	m.upsertReceipt(BatchReceipt{
		ID:         m.newID(),
		Status:     ReceiptError,
		Err:        message,
		ImageIndex: imageIndex,
	})
	return true
}

// upsertReceipt inserts a completion, keeping receipts ordered by image index.
// A duplicate report for an index replaces the receipt without advancing
// progress.
func (m *Machine) upsertReceipt(receipt BatchReceipt) {
	if i := m.req.receiptIndexByImage(receipt.ImageIndex); i >= 0 {
		receipt.ID = m.req.BatchReceipts[i].ID
		m.req.BatchReceipts[i] = receipt
		m.reject("batchItemReport", m.req.Phase, "duplicate report for image index")
		return
	}

	m.req.BatchReceipts = append(m.req.BatchReceipts, receipt)
	sort.SliceStable(m.req.BatchReceipts, func(a, b int) bool {
		return m.req.BatchReceipts[a].ImageIndex < m.req.BatchReceipts[b].ImageIndex
	})
	m.req.BatchProgress.Completed++
}

// BatchComplete moves the request to review once every item has reported.
func (m *Machine) BatchComplete(requestID string) bool {
	if !m.guard("batchComplete", PhaseScanning) {
		return false
	}
	if !m.guardRequestID("batchComplete", requestID) {
		return false
	}
	if m.req.Mode != ModeBatch {
		m.reject("batchComplete", m.req.Phase, "request mode is "+string(m.req.Mode))
		return false
	}
	if !m.req.BatchProgress.Done() {
		m.reject("batchComplete", m.req.Phase, "items still outstanding")
		return false
	}

	m.req.Phase = PhaseReviewing
	m.req.Err = ""
	return true
}

// UpdateBatchReceipt patches a receipt's draft by stable ID and marks it
// edited. Blocked outside review, so an in-flight save can never race a
// mutation.
func (m *Machine) UpdateBatchReceipt(id string, patch model.DraftPatch) bool {
	if !m.guard("updateBatchReceipt", PhaseReviewing) {
		return false
	}
	i := m.req.receiptIndexByID(id)
	if i < 0 {
		m.reject("updateBatchReceipt", m.req.Phase, "unknown receipt "+id)
		return false
	}
	if m.req.BatchReceipts[i].Status == ReceiptError {
		m.reject("updateBatchReceipt", m.req.Phase, "receipt failed analysis")
		return false
	}

	patch.Apply(&m.req.BatchReceipts[i].Draft)
	m.req.BatchReceipts[i].Status = ReceiptEdited
	return true
}

// DiscardBatchReceipt removes a receipt by stable ID.
func (m *Machine) DiscardBatchReceipt(id string) bool {
	if !m.guard("discardBatchReceipt", PhaseReviewing) {
		return false
	}
	i := m.req.receiptIndexByID(id)
	if i < 0 {
		m.reject("discardBatchReceipt", m.req.Phase, "unknown receipt "+id)
		return false
	}

	m.req.BatchReceipts = append(m.req.BatchReceipts[:i], m.req.BatchReceipts[i+1:]...)
	if m.req.BatchEditingIndex == i {
		m.req.BatchEditingIndex = -1
	} else if m.req.BatchEditingIndex > i {
		m.req.BatchEditingIndex--
	}
	return true
}

// StartBatchEdit opens the receipt at index i for single-item editing.
func (m *Machine) StartBatchEdit(i int) bool {
	if !m.guard("startBatchEdit", PhaseReviewing) {
		return false
	}
	if i < 0 || i >= len(m.req.BatchReceipts) {
		m.reject("startBatchEdit", m.req.Phase, "index out of range")
		return false
	}
	m.req.BatchEditingIndex = i
	return true
}

// EndBatchEdit closes single-item editing.
func (m *Machine) EndBatchEdit() bool {
	if !m.guard("endBatchEdit", PhaseReviewing) {
		return false
	}
	m.req.BatchEditingIndex = -1
	return true
}

// BatchReceipts returns a detached copy of the receipt collection.
func (m *Machine) BatchReceipts() []BatchReceipt {
	out := make([]BatchReceipt, len(m.req.BatchReceipts))
	for i, br := range m.req.BatchReceipts {
		out[i] = br
		out[i].Draft = cloneDraft(br.Draft)
	}
	return out
}

// Results returns a detached copy of the extracted drafts.
func (m *Machine) Results() []model.TransactionDraft {
	out := make([]model.TransactionDraft, len(m.req.Results))
	for i, d := range m.req.Results {
		out[i] = cloneDraft(d)
	}
	return out
}
