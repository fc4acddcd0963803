package scan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCarriesLiveRequest(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.StartSingle("user-1"))
	require.True(t, m.AddImage(ImageRef{Path: "a.png"}))
	require.True(t, m.SetHints("supermarket", "CLP"))

	snap := m.Snapshot()
	assert.Equal(t, SnapshotSchemaVersion, snap.SchemaVersion)
	assert.False(t, snap.SavedAt.IsZero())
	assert.Equal(t, PhaseCapturing, snap.Request.Phase)
	assert.Equal(t, "user-1", snap.Request.UserID)
	require.Len(t, snap.Request.Images, 1)

	// The snapshot must be detached from machine state.
	snap.Request.Images[0].Path = "mutated.png"
	assert.Equal(t, "a.png", m.Request().Images[0].Path)
}

func TestRestoreReviewingRequest(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.StartSingle("user-1"))
	require.True(t, m.AddImage(ImageRef{Path: "a.png"}))
	require.True(t, m.ProcessStart())
	require.True(t, m.ProcessSuccess(m.RequestID(), testDraft("Jumbo", 15990)))

	data, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, _ := newTestMachine()
	require.NoError(t, restored.RestoreState(snap))

	assert.Equal(t, PhaseReviewing, restored.Phase())
	assert.Equal(t, m.RequestID(), restored.RequestID())
	assert.Equal(t, CreditReserved, restored.Credit().Status)
	require.Len(t, restored.Results(), 1)
	assert.Equal(t, "Jumbo", restored.Results()[0].Merchant)

	// The restored request continues through the normal lifecycle.
	require.True(t, restored.SaveStart())
	require.True(t, restored.SaveSuccess())
	assert.Equal(t, PhaseIdle, restored.Phase())
}

func TestRestoreDowngradesScanning(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.StartSingle("user-1"))
	require.True(t, m.AddImage(ImageRef{Path: "a.png"}))
	require.True(t, m.ProcessStart())
	snap := m.Snapshot()

	restored, _ := newTestMachine()
	require.NoError(t, restored.RestoreState(snap))

	assert.Equal(t, PhaseError, restored.Phase())
	assert.NotEmpty(t, restored.Err())
	assert.Equal(t, CreditRefunded, restored.Credit().Status,
		"the interrupted analysis never produced anything to pay for")
}

func TestRestoreDowngradesSaving(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.StartSingle("user-1"))
	require.True(t, m.AddImage(ImageRef{Path: "a.png"}))
	require.True(t, m.ProcessStart())
	require.True(t, m.ProcessSuccess(m.RequestID(), testDraft("Jumbo", 15990)))
	require.True(t, m.SaveStart())
	snap := m.Snapshot()

	restored, _ := newTestMachine()
	require.NoError(t, restored.RestoreState(snap))

	assert.Equal(t, PhaseReviewing, restored.Phase())
	assert.NotEmpty(t, restored.Err())
	assert.Equal(t, CreditReserved, restored.Credit().Status,
		"the retried save must still be able to confirm")
}

func TestRestoreDropsDialog(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.StartSingle("user-1"))
	require.True(t, m.AddImage(ImageRef{Path: "a.png"}))
	require.True(t, m.ProcessStart())
	require.True(t, m.ProcessSuccess(m.RequestID(), testDraft("Jumbo", 15990)))
	_, err := m.ShowDialog(Dialog{Type: DialogQuickSave})
	require.NoError(t, err)
	snap := m.Snapshot()
	require.NotNil(t, snap.Request.ActiveDialog)

	restored, _ := newTestMachine()
	require.NoError(t, restored.RestoreState(snap))

	assert.Nil(t, restored.ActiveDialog(), "a restored dialog has no continuation to resolve")
	assert.False(t, restored.IsBusy())
}

func TestRestoreRejectedWhileActive(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.StartSingle("user-1"))
	snap := m.Snapshot()
	require.True(t, m.Cancel())

	other, log := newTestMachine()
	require.True(t, other.StartBatch("user-2"))

	err := other.RestoreState(snap)
	require.ErrorIs(t, err, ErrRequestActive)
	assert.Equal(t, ModeBatch, other.Mode(), "live request must survive the rejected restore")
	assert.Equal(t, 1, log.count())
}

func TestRestoreRejectsUnsupportedVersion(t *testing.T) {
	m, _ := newTestMachine()
	require.True(t, m.StartSingle("user-1"))
	snap := m.Snapshot()
	snap.SchemaVersion = 99

	restored, _ := newTestMachine()
	err := restored.RestoreState(snap)
	require.ErrorIs(t, err, ErrSnapshotVersion)
	assert.Equal(t, PhaseIdle, restored.Phase())
}

func TestRestoreRejectsCorruptSnapshots(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(req *Request)
		wantErr error
	}{
		{
			name:    "unknown phase",
			mutate:  func(req *Request) { req.Phase = "exploded" },
			wantErr: ErrSnapshotInvalid,
		},
		{
			name:    "unknown mode",
			mutate:  func(req *Request) { req.Mode = "turbo" },
			wantErr: ErrSnapshotInvalid,
		},
		{
			name:    "unknown credit status",
			mutate:  func(req *Request) { req.Credit.Status = "pending" },
			wantErr: ErrSnapshotInvalid,
		},
		{
			name: "idle request holding a reservation",
			mutate: func(req *Request) {
				req.Phase = PhaseIdle
				req.Credit.Status = CreditReserved
			},
			wantErr: ErrSnapshotInvalid,
		},
		{
			name:    "batch editing index out of range",
			mutate:  func(req *Request) { req.BatchEditingIndex = 7 },
			wantErr: ErrSnapshotInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine()
			require.True(t, m.StartSingle("user-1"))
			snap := m.Snapshot()
			tt.mutate(&snap.Request)

			restored, _ := newTestMachine()
			err := restored.RestoreState(snap)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, PhaseIdle, restored.Phase(), "a rejected restore must leave the machine idle")
			assert.Equal(t, CreditNone, restored.Credit().Status)
		})
	}
}

func TestRestoreIdleSnapshotIsANoop(t *testing.T) {
	m, _ := newTestMachine()
	snap := m.Snapshot()

	restored, _ := newTestMachine()
	require.NoError(t, restored.RestoreState(snap))
	assert.Equal(t, PhaseIdle, restored.Phase())
	assert.False(t, restored.HasActiveRequest())
}
