package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	"github.com/ridewell/alertcast-backend/pkg/types"
)

func setupAlertsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS alerts (
  id TEXT PRIMARY KEY,
  created_by TEXT NOT NULL,
  audience TEXT NOT NULL,
  recipients TEXT NOT NULL DEFAULT '{}',
  blocks TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL DEFAULT 'pending',
  total_targets INTEGER NOT NULL DEFAULT 0,
  sent INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  invalid_tokens INTEGER NOT NULL DEFAULT 0,
  in_app_created INTEGER NOT NULL DEFAULT 0,
  in_app_failed INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedAlert(t *testing.T, db *gorm.DB, status enums.AlertStatus) *models.Alert {
	t.Helper()
	alert := &models.Alert{
		ID:        uuid.New(),
		CreatedBy: uuid.New(),
		Audience:  enums.AudienceAll,
		Blocks:    types.BlockList{{Title: "Service update", Body: "Routes resumed"}},
		Status:    status,
	}
	require.NoError(t, db.Create(alert).Error)
	return alert
}

func TestMarkInProgress_OnlyFromPending(t *testing.T) {
	db := setupAlertsTestDB(t)
	repo := NewRepository(db)

	pending := seedAlert(t, db, enums.AlertStatusPending)
	done := seedAlert(t, db, enums.AlertStatusSent)

	claimed, err := repo.MarkInProgress(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claim is a no-op; the row is no longer pending.
	claimed, err = repo.MarkInProgress(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = repo.MarkInProgress(context.Background(), done.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestFinalizeTx_WritesStatsAndStatusOnce(t *testing.T) {
	db := setupAlertsTestDB(t)
	repo := NewRepository(db)

	alert := seedAlert(t, db, enums.AlertStatusInProgress)
	stats := models.AlertStats{
		TotalTargets:  10,
		Sent:          8,
		Failed:        2,
		InvalidTokens: 1,
		InAppCreated:  10,
	}

	finalized, err := repo.FinalizeTx(db, alert.ID, enums.AlertStatusPartiallySent, stats, nil)
	require.NoError(t, err)
	assert.True(t, finalized)

	var row models.Alert
	require.NoError(t, db.First(&row, "id = ?", alert.ID).Error)
	assert.Equal(t, enums.AlertStatusPartiallySent, row.Status)
	assert.Equal(t, 10, row.Stats.TotalTargets)
	assert.Equal(t, 8, row.Stats.Sent)
	assert.Equal(t, 1, row.Stats.InvalidTokens)

	// Terminal rows never finalize twice.
	finalized, err = repo.FinalizeTx(db, alert.ID, enums.AlertStatusSent, stats, nil)
	require.NoError(t, err)
	assert.False(t, finalized)
}

func TestFinalizeTx_RejectsNonTerminalStatus(t *testing.T) {
	db := setupAlertsTestDB(t)
	repo := NewRepository(db)
	alert := seedAlert(t, db, enums.AlertStatusInProgress)

	_, err := repo.FinalizeTx(db, alert.ID, enums.AlertStatusInProgress, models.AlertStats{}, nil)
	require.Error(t, err)
}

func TestForceFailed_SkipsTerminalRows(t *testing.T) {
	db := setupAlertsTestDB(t)
	repo := NewRepository(db)

	pending := seedAlert(t, db, enums.AlertStatusPending)
	sent := seedAlert(t, db, enums.AlertStatusSent)

	changed, err := repo.ForceFailed(context.Background(), pending.ID, "delivery job dead-lettered")
	require.NoError(t, err)
	assert.True(t, changed)

	var row models.Alert
	require.NoError(t, db.First(&row, "id = ?", pending.ID).Error)
	assert.Equal(t, enums.AlertStatusFailed, row.Status)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "delivery job dead-lettered", *row.LastError)

	changed, err = repo.ForceFailed(context.Background(), sent.ID, "ignored")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestList_FiltersByStatusAndPaginates(t *testing.T) {
	db := setupAlertsTestDB(t)
	repo := NewRepository(db)

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 4; i++ {
		alert := seedAlert(t, db, enums.AlertStatusSent)
		require.NoError(t, db.Model(alert).UpdateColumn("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}
	seedAlert(t, db, enums.AlertStatusPending)

	status := enums.AlertStatusSent
	rows, next, err := repo.List(context.Background(), listAlertsParams{Status: &status, Limit: 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.NotNil(t, next)

	rest, next, err := repo.List(context.Background(), listAlertsParams{Status: &status, Limit: 3, Cursor: next})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.Nil(t, next)
}

func TestFindByID_ReturnsNilWhenMissing(t *testing.T) {
	db := setupAlertsTestDB(t)
	repo := NewRepository(db)

	alert, err := repo.FindByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, alert)
}
