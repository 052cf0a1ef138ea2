package usecase

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/shedding/domain"
	"github.com/allisson/auditpipe/internal/shedding/service"
)

// neverDropPrefixes lists event type namespaces that are always accepted:
// administrative overrides, recovery actions, and approval outcomes. Critical
// severity is handled separately. These accept even while emergency mode is
// active.
var neverDropPrefixes = []string{
	"admin.",
	"recovery.",
	"approval.",
}

// Config holds load shedding use case configuration.
type Config struct {
	// CacheTTL bounds how long per-tenant policies are served without a
	// store lookup.
	CacheTTL time.Duration
	// EmergencySyncInterval is the cadence at which the in-process
	// emergency flag is refreshed from the durable settings row.
	EmergencySyncInterval time.Duration
}

// SheddingUseCase decides whether to accept or shed audit events and owns the
// process-wide emergency mode flag.
type SheddingUseCase struct {
	config    Config
	repo      SheddingRepository
	cache     *service.PolicyCache
	emergency atomic.Bool
	group     singleflight.Group
	logger    *slog.Logger

	// sample is swappable for deterministic sampling tests.
	sample func() float64
}

// NewSheddingUseCase creates a new shedding use case instance.
func NewSheddingUseCase(config Config, repo SheddingRepository, logger *slog.Logger) *SheddingUseCase {
	return &SheddingUseCase{
		config: config,
		repo:   repo,
		cache:  service.NewPolicyCache(config.CacheTTL),
		logger: logger,
		sample: rand.Float64,
	}
}

// Evaluate decides whether an event should be accepted. Never-drop events
// bypass everything, emergency mode rejects the rest, and otherwise the
// tenant's policy for the event type applies. A missing policy or an
// unavailable store defaults to accepting: the pipeline fails open rather
// than silently dropping unknown event types.
func (uc *SheddingUseCase) Evaluate(
	ctx context.Context,
	tenantID, eventType string,
	severity auditDomain.Severity,
) domain.Decision {
	if isNeverDrop(eventType, severity) {
		return domain.Decision{Accepted: true, Reason: domain.ReasonNeverDrop}
	}

	if uc.emergency.Load() {
		return domain.Decision{Accepted: false, Reason: domain.ReasonEmergencyDrop}
	}

	policy := uc.lookupPolicy(ctx, tenantID, eventType)
	if policy == nil {
		return domain.Decision{Accepted: true, Reason: domain.ReasonRequired}
	}

	switch policy.Mode {
	case domain.ModeDisabled:
		return domain.Decision{Accepted: false, Reason: domain.ReasonDisabled}
	case domain.ModeSampled:
		return domain.Decision{Accepted: uc.sample() < policy.SampleRate, Reason: domain.ReasonSampled}
	default:
		return domain.Decision{Accepted: true, Reason: domain.ReasonRequired}
	}
}

// lookupPolicy returns the tenant's policy for an event type, populating the
// cache on miss. Concurrent misses for the same tenant share a single store
// load. Store failures are logged and read as "no policy".
func (uc *SheddingUseCase) lookupPolicy(ctx context.Context, tenantID, eventType string) *domain.Policy {
	if policies, ok := uc.cache.Get(tenantID); ok {
		return policies[eventType]
	}

	result, err, _ := uc.group.Do(tenantID, func() (any, error) {
		policies, err := uc.repo.GetPoliciesByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		uc.cache.Set(tenantID, policies)
		return policies, nil
	})
	if err != nil {
		if uc.logger != nil {
			uc.logger.Warn("shedding policy lookup failed, accepting event",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
		}
		return nil
	}

	for _, policy := range result.([]*domain.Policy) {
		if policy.EventType == eventType {
			return policy
		}
	}
	return nil
}

// isNeverDrop reports whether the event is on the fixed allowlist.
func isNeverDrop(eventType string, severity auditDomain.Severity) bool {
	if severity == auditDomain.SeverityCritical {
		return true
	}
	for _, prefix := range neverDropPrefixes {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}

// SetEmergencyMode persists the emergency flag and applies it to this process
// immediately. Other processes pick it up on their next sync.
func (uc *SheddingUseCase) SetEmergencyMode(ctx context.Context, enabled bool) error {
	if err := uc.repo.SetEmergencyMode(ctx, enabled); err != nil {
		return apperrors.Wrap(err, "failed to persist emergency mode")
	}
	uc.emergency.Store(enabled)

	if uc.logger != nil {
		uc.logger.Warn("emergency mode changed", slog.Bool("enabled", enabled))
	}
	return nil
}

// IsEmergencyMode reports the current in-process emergency flag.
func (uc *SheddingUseCase) IsEmergencyMode() bool {
	return uc.emergency.Load()
}

// SyncEmergencyMode refreshes the in-process flag from the durable settings
// row.
func (uc *SheddingUseCase) SyncEmergencyMode(ctx context.Context) error {
	enabled, err := uc.repo.GetEmergencyMode(ctx)
	if err != nil {
		return apperrors.Wrap(err, "failed to sync emergency mode")
	}
	uc.emergency.Store(enabled)
	return nil
}

// Start runs the periodic emergency mode sync until the context is cancelled.
func (uc *SheddingUseCase) Start(ctx context.Context) error {
	if err := uc.SyncEmergencyMode(ctx); err != nil && uc.logger != nil {
		uc.logger.Error("emergency mode sync failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(uc.config.EmergencySyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := uc.SyncEmergencyMode(ctx); err != nil && uc.logger != nil {
				uc.logger.Error("emergency mode sync failed", slog.Any("error", err))
			}
		}
	}
}

// InvalidateCache drops cached policies for one tenant, or for all tenants
// when tenantID is empty.
func (uc *SheddingUseCase) InvalidateCache(tenantID string) {
	if tenantID == "" {
		uc.cache.InvalidateAll()
		return
	}
	uc.cache.Invalidate(tenantID)
}

// UpsertPolicy validates and stores a policy, then drops the tenant's cache
// entry so the change applies on the next evaluation.
func (uc *SheddingUseCase) UpsertPolicy(ctx context.Context, policy *domain.Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if err := uc.repo.UpsertPolicy(ctx, policy); err != nil {
		return err
	}
	uc.cache.Invalidate(policy.TenantID)
	return nil
}
