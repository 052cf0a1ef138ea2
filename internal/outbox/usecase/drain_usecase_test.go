package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	dlqDomain "github.com/allisson/auditpipe/internal/dlq/domain"
	"github.com/allisson/auditpipe/internal/metrics"
	"github.com/allisson/auditpipe/internal/outbox/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// MockOutboxRepository is a mock implementation of OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Enqueue(ctx context.Context, item *domain.OutboxItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockOutboxRepository) Pick(ctx context.Context, limit int, lockOwner string) ([]*domain.OutboxItem, error) {
	args := m.Called(ctx, limit, lockOwner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxItem), args.Error(1)
}

func (m *MockOutboxRepository) MarkPersisted(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, item *domain.OutboxItem, errMsg string) error {
	args := m.Called(ctx, item, errMsg)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkDead(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxRepository) CountDead(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxRepository) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// MockAuditLogRepository is a mock implementation of AuditLogRepository
type MockAuditLogRepository struct {
	mock.Mock

	mu   sync.Mutex
	logs []*auditDomain.AuditLog
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *auditDomain.AuditLog) error {
	args := m.Called(ctx, log)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.logs = append(m.logs, log)
		m.mu.Unlock()
	}
	return args.Error(0)
}

// MockDlqEntryCreator is a mock implementation of DlqEntryCreator
type MockDlqEntryCreator struct {
	mock.Mock
}

func (m *MockDlqEntryCreator) Create(ctx context.Context, entry *dlqDomain.DlqEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func drainConfig() Config {
	return Config{
		Interval:    50 * time.Millisecond,
		BatchSize:   10,
		ItemTimeout: time.Second,
		WorkerID:    "worker-test",
	}
}

func newDrainWorker(outboxRepo *MockOutboxRepository, auditRepo *MockAuditLogRepository, dlqRepo *MockDlqEntryCreator, txManager *MockTxManager) *DrainWorkerUseCase {
	return NewDrainWorkerUseCase(
		drainConfig(),
		txManager,
		outboxRepo,
		auditRepo,
		dlqRepo,
		metrics.NewNoOpPipelineMetrics(),
		nil,
	)
}

func queuedItem(t *testing.T, attempts int) *domain.OutboxItem {
	t.Helper()

	payload, err := json.Marshal(auditDomain.RedactedEvent{
		TenantID:         "tenant-1",
		EventType:        "workflow.created",
		Severity:         auditDomain.SeverityInfo,
		Entity:           auditDomain.EntityRef{Type: "workflow", ID: "wf-42"},
		Actor:            auditDomain.ActorRef{Type: "user", ID: "user-7"},
		Details:          map[string]any{"name": "expense approval"},
		RedactionVersion: 3,
		OccurredAt:       time.Now().UTC(),
	})
	require.NoError(t, err)

	item := domain.NewOutboxItem("tenant-1", "workflow.created", payload, 5)
	item.Status = domain.StatusProcessing
	item.Attempts = attempts
	return item
}

func TestNewDrainWorkerUseCase_GeneratesWorkerID(t *testing.T) {
	config := drainConfig()
	config.WorkerID = ""

	uc := NewDrainWorkerUseCase(config, &MockTxManager{}, &MockOutboxRepository{}, &MockAuditLogRepository{}, &MockDlqEntryCreator{}, metrics.NewNoOpPipelineMetrics(), nil)
	assert.NotEmpty(t, uc.config.WorkerID)
}

func TestDrainWorkerUseCase_DrainOnce_EmptyBatch(t *testing.T) {
	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").Return(nil, nil)

	uc := newDrainWorker(outboxRepo, &MockAuditLogRepository{}, &MockDlqEntryCreator{}, &MockTxManager{})

	err := uc.DrainOnce(context.Background())
	assert.NoError(t, err)
	outboxRepo.AssertExpectations(t)
}

func TestDrainWorkerUseCase_DrainOnce_AllSucceed(t *testing.T) {
	item1 := queuedItem(t, 0)
	item2 := queuedItem(t, 1)

	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").
		Return([]*domain.OutboxItem{item1, item2}, nil)
	outboxRepo.On("MarkPersisted", mock.Anything, []uuid.UUID{item1.ID, item2.ID}).Return(nil)

	auditRepo := &MockAuditLogRepository{}
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	uc := newDrainWorker(outboxRepo, auditRepo, &MockDlqEntryCreator{}, &MockTxManager{})

	err := uc.DrainOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, auditRepo.logs, 2)
	log := auditRepo.logs[0]
	assert.Equal(t, "tenant-1", log.TenantID)
	assert.Equal(t, "workflow.created", log.EventType)
	assert.Equal(t, auditDomain.SeverityInfo, log.Severity)
	assert.Equal(t, 3, log.RedactionVersion)
	details, ok := log.Payload["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "expense approval", details["name"])

	outboxRepo.AssertExpectations(t)
	auditRepo.AssertExpectations(t)
}

func TestDrainWorkerUseCase_DrainOnce_PayloadKeepsEntityAndActor(t *testing.T) {
	item := queuedItem(t, 0)

	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").
		Return([]*domain.OutboxItem{item}, nil)
	outboxRepo.On("MarkPersisted", mock.Anything, []uuid.UUID{item.ID}).Return(nil)

	auditRepo := &MockAuditLogRepository{}
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	uc := newDrainWorker(outboxRepo, auditRepo, &MockDlqEntryCreator{}, &MockTxManager{})

	err := uc.DrainOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, auditRepo.logs, 1)
	log := auditRepo.logs[0]

	entity, ok := log.Payload["entity"].(map[string]any)
	require.True(t, ok, "persisted payload must carry the entity reference")
	assert.Equal(t, "workflow", entity["type"])
	assert.Equal(t, "wf-42", entity["id"])

	actor, ok := log.Payload["actor"].(map[string]any)
	require.True(t, ok, "persisted payload must carry the actor reference")
	assert.Equal(t, "user", actor["type"])
	assert.Equal(t, "user-7", actor["id"])

	outboxRepo.AssertExpectations(t)
	auditRepo.AssertExpectations(t)
}

func TestDrainWorkerUseCase_DrainOnce_PartialFailureIsSilent(t *testing.T) {
	item1 := queuedItem(t, 0)
	item2 := queuedItem(t, 0)

	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").
		Return([]*domain.OutboxItem{item1, item2}, nil)
	outboxRepo.On("MarkPersisted", mock.Anything, []uuid.UUID{item1.ID}).Return(nil)
	outboxRepo.On("MarkFailed", mock.Anything, item2, "store unreachable").Return(nil)

	auditRepo := &MockAuditLogRepository{}
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("store unreachable")).Once()

	uc := newDrainWorker(outboxRepo, auditRepo, &MockDlqEntryCreator{}, &MockTxManager{})

	err := uc.DrainOnce(context.Background())
	assert.NoError(t, err)

	outboxRepo.AssertExpectations(t)
	outboxRepo.AssertNotCalled(t, "MarkDead", mock.Anything, mock.Anything)
}

func TestDrainWorkerUseCase_DrainOnce_PromotesExhaustedToDLQ(t *testing.T) {
	item := queuedItem(t, 4) // next failure reaches max attempts (5)

	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").
		Return([]*domain.OutboxItem{item}, nil)
	outboxRepo.On("MarkDead", mock.Anything, item.ID).Return(nil)

	auditRepo := &MockAuditLogRepository{}
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("store unreachable"))

	dlqRepo := &MockDlqEntryCreator{}
	dlqRepo.On("Create", mock.Anything, mock.MatchedBy(func(entry *dlqDomain.DlqEntry) bool {
		return entry.SourceID == item.ID &&
			entry.TenantID == "tenant-1" &&
			entry.Attempts == 5 &&
			entry.ErrorCategory == dlqDomain.CategoryPersistence &&
			entry.LastError == "store unreachable"
	})).Return(nil)

	txManager := &MockTxManager{}
	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)

	uc := newDrainWorker(outboxRepo, auditRepo, dlqRepo, txManager)

	// The whole batch failed, so the run reports it.
	err := uc.DrainOnce(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 outbox items failed")

	outboxRepo.AssertExpectations(t)
	dlqRepo.AssertExpectations(t)
	outboxRepo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestDrainWorkerUseCase_DrainOnce_AllFailed(t *testing.T) {
	item1 := queuedItem(t, 0)
	item2 := queuedItem(t, 0)

	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").
		Return([]*domain.OutboxItem{item1, item2}, nil)
	outboxRepo.On("MarkFailed", mock.Anything, mock.Anything, "store unreachable").Return(nil)

	auditRepo := &MockAuditLogRepository{}
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("store unreachable"))

	uc := newDrainWorker(outboxRepo, auditRepo, &MockDlqEntryCreator{}, &MockTxManager{})

	err := uc.DrainOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 outbox items failed")

	outboxRepo.AssertNotCalled(t, "MarkPersisted", mock.Anything, mock.Anything)
}

func TestDrainWorkerUseCase_DrainOnce_PickError(t *testing.T) {
	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").
		Return(nil, errors.New("store unreachable"))

	uc := newDrainWorker(outboxRepo, &MockAuditLogRepository{}, &MockDlqEntryCreator{}, &MockTxManager{})

	err := uc.DrainOnce(context.Background())
	assert.Error(t, err)
}

func TestDrainWorkerUseCase_DrainOnce_BadPayload(t *testing.T) {
	item := domain.NewOutboxItem("tenant-1", "workflow.created", json.RawMessage(`{broken`), 5)
	item.Attempts = 4

	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").
		Return([]*domain.OutboxItem{item}, nil)
	outboxRepo.On("MarkDead", mock.Anything, item.ID).Return(nil)

	dlqRepo := &MockDlqEntryCreator{}
	dlqRepo.On("Create", mock.Anything, mock.MatchedBy(func(entry *dlqDomain.DlqEntry) bool {
		return entry.ErrorCategory == dlqDomain.CategoryUnknown
	})).Return(nil)

	txManager := &MockTxManager{}
	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)

	uc := newDrainWorker(outboxRepo, &MockAuditLogRepository{}, dlqRepo, txManager)

	err := uc.DrainOnce(context.Background())
	assert.Error(t, err)
	dlqRepo.AssertExpectations(t)
}

func TestDrainWorkerUseCase_Cleanup(t *testing.T) {
	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Cleanup", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return cutoff.Before(time.Now().UTC())
	})).Return(int64(3), nil)

	uc := newDrainWorker(outboxRepo, &MockAuditLogRepository{}, &MockDlqEntryCreator{}, &MockTxManager{})

	deleted, err := uc.Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestDrainWorkerUseCase_Start_ContextCancellation(t *testing.T) {
	uc := newDrainWorker(&MockOutboxRepository{}, &MockAuditLogRepository{}, &MockDlqEntryCreator{}, &MockTxManager{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := uc.Start(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestDrainWorkerUseCase_Start_LoopStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	outboxRepo := &MockOutboxRepository{}
	outboxRepo.On("Pick", mock.Anything, 10, "worker-test").Return(nil, nil)

	uc := newDrainWorker(outboxRepo, &MockAuditLogRepository{}, &MockDlqEntryCreator{}, &MockTxManager{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- uc.Start(ctx)
	}()

	// Let at least one tick fire before stopping.
	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("drain loop did not stop")
	}

	outboxRepo.AssertCalled(t, "Pick", mock.Anything, 10, "worker-test")
}
