package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/auditpipe/internal/shedding/domain"
)

func testPolicy() *domain.Policy {
	now := time.Now().UTC()
	return &domain.Policy{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   "tenant-1",
		EventType:  "workflow.viewed",
		Mode:       domain.ModeSampled,
		SampleRate: 0.25,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func policyColumns() []string {
	return []string{"id", "tenant_id", "event_type", "mode", "sample_rate", "created_at", "updated_at"}
}

func TestPostgreSQLSheddingRepository_GetPoliciesByTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgreSQLSheddingRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(policyColumns()).
		AddRow(uuid.Must(uuid.NewV7()).String(), "tenant-1", "workflow.viewed", "sampled", 0.25, now, now).
		AddRow(uuid.Must(uuid.NewV7()).String(), "tenant-1", "debug.trace", "disabled", 0.0, now, now)

	mock.ExpectQuery("SELECT (.+) FROM shedding_policies").
		WithArgs("tenant-1").
		WillReturnRows(rows)

	policies, err := repo.GetPoliciesByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, domain.ModeSampled, policies[0].Mode)
	assert.Equal(t, 0.25, policies[0].SampleRate)
	assert.Equal(t, domain.ModeDisabled, policies[1].Mode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLSheddingRepository_GetPoliciesByTenant_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgreSQLSheddingRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM shedding_policies").
		WithArgs("tenant-2").
		WillReturnRows(sqlmock.NewRows(policyColumns()))

	policies, err := repo.GetPoliciesByTenant(context.Background(), "tenant-2")
	require.NoError(t, err)
	assert.Empty(t, policies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLSheddingRepository_UpsertPolicy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgreSQLSheddingRepository(db)
	policy := testPolicy()

	mock.ExpectExec("INSERT INTO shedding_policies").
		WithArgs(
			policy.ID,
			policy.TenantID,
			policy.EventType,
			string(policy.Mode),
			policy.SampleRate,
			policy.CreatedAt,
			policy.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpsertPolicy(context.Background(), policy)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLSheddingRepository_EmergencyMode(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgreSQLSheddingRepository(db)

	mock.ExpectQuery("SELECT emergency_mode FROM shedding_settings").
		WillReturnRows(sqlmock.NewRows([]string{"emergency_mode"}).AddRow(true))

	enabled, err := repo.GetEmergencyMode(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)

	mock.ExpectExec("INSERT INTO shedding_settings").
		WithArgs(false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.SetEmergencyMode(context.Background(), false)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLSheddingRepository_EmergencyMode_MissingRowReadsDisabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgreSQLSheddingRepository(db)

	mock.ExpectQuery("SELECT emergency_mode FROM shedding_settings").
		WillReturnRows(sqlmock.NewRows([]string{"emergency_mode"}))

	enabled, err := repo.GetEmergencyMode(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSheddingRepository_GetPoliciesByTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLSheddingRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(policyColumns()).
		AddRow(uuid.Must(uuid.NewV7()).String(), "tenant-1", "workflow.viewed", "required", 0.0, now, now)

	mock.ExpectQuery("SELECT (.+) FROM shedding_policies").
		WithArgs("tenant-1").
		WillReturnRows(rows)

	policies, err := repo.GetPoliciesByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, domain.ModeRequired, policies[0].Mode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSheddingRepository_UpsertPolicy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLSheddingRepository(db)
	policy := testPolicy()

	mock.ExpectExec("INSERT INTO shedding_policies").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.UpsertPolicy(context.Background(), policy)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
