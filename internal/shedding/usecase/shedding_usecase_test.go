package usecase

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/shedding/domain"
)

// MockSheddingRepository is a mock implementation of SheddingRepository.
type MockSheddingRepository struct {
	mock.Mock
}

func (m *MockSheddingRepository) GetPoliciesByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Policy), args.Error(1)
}

func (m *MockSheddingRepository) UpsertPolicy(ctx context.Context, policy *domain.Policy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockSheddingRepository) GetEmergencyMode(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockSheddingRepository) SetEmergencyMode(ctx context.Context, enabled bool) error {
	args := m.Called(ctx, enabled)
	return args.Error(0)
}

func newTestUseCase(repo *MockSheddingRepository) *SheddingUseCase {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	config := Config{
		CacheTTL:              time.Minute,
		EmergencySyncInterval: 10 * time.Millisecond,
	}
	return NewSheddingUseCase(config, repo, logger)
}

func policyFor(eventType string, mode domain.Mode, rate float64) *domain.Policy {
	now := time.Now().UTC()
	return &domain.Policy{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   "tenant-1",
		EventType:  eventType,
		Mode:       mode,
		SampleRate: rate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSheddingUseCase_Evaluate_NeverDrop(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	tests := []struct {
		name      string
		eventType string
		severity  auditDomain.Severity
	}{
		{"admin override", "admin.force_approve", auditDomain.SeverityInfo},
		{"recovery action", "recovery.restore", auditDomain.SeverityInfo},
		{"approval outcome", "approval.granted", auditDomain.SeverityInfo},
		{"critical severity", "workflow.created", auditDomain.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := uc.Evaluate(context.Background(), "tenant-1", tt.eventType, tt.severity)
			assert.True(t, decision.Accepted)
			assert.Equal(t, domain.ReasonNeverDrop, decision.Reason)
		})
	}

	// No policy lookup happens on the never-drop path.
	repo.AssertNotCalled(t, "GetPoliciesByTenant")
}

func TestSheddingUseCase_Evaluate_NeverDropBeatsEmergencyMode(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	repo.On("SetEmergencyMode", mock.Anything, true).Return(nil)
	require.NoError(t, uc.SetEmergencyMode(context.Background(), true))

	decision := uc.Evaluate(context.Background(), "tenant-1", "admin.force_approve", auditDomain.SeverityCritical)
	assert.True(t, decision.Accepted)
	assert.Equal(t, domain.ReasonNeverDrop, decision.Reason)
}

func TestSheddingUseCase_Evaluate_EmergencyDropsEverythingElse(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	repo.On("SetEmergencyMode", mock.Anything, true).Return(nil)
	require.NoError(t, uc.SetEmergencyMode(context.Background(), true))

	decision := uc.Evaluate(context.Background(), "tenant-1", "workflow.created", auditDomain.SeverityInfo)
	assert.False(t, decision.Accepted)
	assert.Equal(t, domain.ReasonEmergencyDrop, decision.Reason)
	repo.AssertNotCalled(t, "GetPoliciesByTenant")
}

func TestSheddingUseCase_Evaluate_NoPolicyDefaultsToRequired(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return([]*domain.Policy{}, nil)

	decision := uc.Evaluate(context.Background(), "tenant-1", "workflow.created", auditDomain.SeverityInfo)
	assert.True(t, decision.Accepted)
	assert.Equal(t, domain.ReasonRequired, decision.Reason)
}

func TestSheddingUseCase_Evaluate_StoreFailureFailsOpen(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return(nil, apperrors.New("store unreachable"))

	decision := uc.Evaluate(context.Background(), "tenant-1", "workflow.created", auditDomain.SeverityInfo)
	assert.True(t, decision.Accepted)
	assert.Equal(t, domain.ReasonRequired, decision.Reason)
}

func TestSheddingUseCase_Evaluate_DisabledPolicy(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	policies := []*domain.Policy{policyFor("debug.trace", domain.ModeDisabled, 0)}
	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return(policies, nil)

	decision := uc.Evaluate(context.Background(), "tenant-1", "debug.trace", auditDomain.SeverityInfo)
	assert.False(t, decision.Accepted)
	assert.Equal(t, domain.ReasonDisabled, decision.Reason)
}

func TestSheddingUseCase_Evaluate_SampledPolicy(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	policies := []*domain.Policy{policyFor("workflow.viewed", domain.ModeSampled, 0.5)}
	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return(policies, nil)

	uc.sample = func() float64 { return 0.3 }
	decision := uc.Evaluate(context.Background(), "tenant-1", "workflow.viewed", auditDomain.SeverityInfo)
	assert.True(t, decision.Accepted)
	assert.Equal(t, domain.ReasonSampled, decision.Reason)

	uc.sample = func() float64 { return 0.7 }
	decision = uc.Evaluate(context.Background(), "tenant-1", "workflow.viewed", auditDomain.SeverityInfo)
	assert.False(t, decision.Accepted)
	assert.Equal(t, domain.ReasonSampled, decision.Reason)
}

func TestSheddingUseCase_Evaluate_UsesCacheOnSecondCall(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	policies := []*domain.Policy{policyFor("debug.trace", domain.ModeDisabled, 0)}
	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return(policies, nil).Once()

	for i := 0; i < 3; i++ {
		decision := uc.Evaluate(context.Background(), "tenant-1", "debug.trace", auditDomain.SeverityInfo)
		assert.False(t, decision.Accepted)
	}
	repo.AssertExpectations(t)
}

func TestSheddingUseCase_InvalidateCache(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	policies := []*domain.Policy{policyFor("debug.trace", domain.ModeDisabled, 0)}
	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return(policies, nil).Twice()

	uc.Evaluate(context.Background(), "tenant-1", "debug.trace", auditDomain.SeverityInfo)
	uc.InvalidateCache("tenant-1")
	uc.Evaluate(context.Background(), "tenant-1", "debug.trace", auditDomain.SeverityInfo)

	repo.AssertExpectations(t)
}

func TestSheddingUseCase_InvalidateCache_All(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return([]*domain.Policy{}, nil).Twice()
	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-2").Return([]*domain.Policy{}, nil).Twice()

	uc.Evaluate(context.Background(), "tenant-1", "workflow.created", auditDomain.SeverityInfo)
	uc.Evaluate(context.Background(), "tenant-2", "workflow.created", auditDomain.SeverityInfo)
	uc.InvalidateCache("")
	uc.Evaluate(context.Background(), "tenant-1", "workflow.created", auditDomain.SeverityInfo)
	uc.Evaluate(context.Background(), "tenant-2", "workflow.created", auditDomain.SeverityInfo)

	repo.AssertExpectations(t)
}

func TestSheddingUseCase_SetEmergencyMode_PersistFailureKeepsFlag(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	repo.On("SetEmergencyMode", mock.Anything, true).Return(apperrors.New("store unreachable"))

	err := uc.SetEmergencyMode(context.Background(), true)
	assert.Error(t, err)
	assert.False(t, uc.IsEmergencyMode())
}

func TestSheddingUseCase_SyncEmergencyMode(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	repo.On("GetEmergencyMode", mock.Anything).Return(true, nil).Once()
	require.NoError(t, uc.SyncEmergencyMode(context.Background()))
	assert.True(t, uc.IsEmergencyMode())

	repo.On("GetEmergencyMode", mock.Anything).Return(false, nil).Once()
	require.NoError(t, uc.SyncEmergencyMode(context.Background()))
	assert.False(t, uc.IsEmergencyMode())
}

func TestSheddingUseCase_Start_SyncsPeriodically(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	repo.On("GetEmergencyMode", mock.Anything).Return(true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- uc.Start(ctx)
	}()

	assert.Eventually(t, uc.IsEmergencyMode, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("start loop did not stop after cancellation")
	}
}

func TestSheddingUseCase_UpsertPolicy(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	// Prime the cache with a disabled policy.
	initial := []*domain.Policy{policyFor("debug.trace", domain.ModeDisabled, 0)}
	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return(initial, nil).Once()
	decision := uc.Evaluate(context.Background(), "tenant-1", "debug.trace", auditDomain.SeverityInfo)
	require.False(t, decision.Accepted)

	// Upserting flushes the tenant's cache entry so the next evaluation
	// sees the new mode.
	updated := policyFor("debug.trace", domain.ModeRequired, 0)
	repo.On("UpsertPolicy", mock.Anything, updated).Return(nil)
	repo.On("GetPoliciesByTenant", mock.Anything, "tenant-1").Return([]*domain.Policy{updated}, nil).Once()

	require.NoError(t, uc.UpsertPolicy(context.Background(), updated))

	decision = uc.Evaluate(context.Background(), "tenant-1", "debug.trace", auditDomain.SeverityInfo)
	assert.True(t, decision.Accepted)
	assert.Equal(t, domain.ReasonRequired, decision.Reason)
	repo.AssertExpectations(t)
}

func TestSheddingUseCase_UpsertPolicy_Invalid(t *testing.T) {
	repo := &MockSheddingRepository{}
	uc := newTestUseCase(repo)

	policy := policyFor("debug.trace", domain.Mode("bogus"), 0)
	err := uc.UpsertPolicy(context.Background(), policy)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	repo.AssertNotCalled(t, "UpsertPolicy")
}
