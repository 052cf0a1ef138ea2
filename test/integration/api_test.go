// Package integration provides end-to-end tests for the audit pipeline API.
// Tests all API endpoints against both PostgreSQL and MySQL databases.
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/auditpipe/internal/app"
	"github.com/allisson/auditpipe/internal/config"
	dlqDomain "github.com/allisson/auditpipe/internal/dlq/domain"
	dlqDTO "github.com/allisson/auditpipe/internal/dlq/http/dto"
	"github.com/allisson/auditpipe/internal/testutil"
)

// integrationTestContext holds all dependencies and state for integration testing.
type integrationTestContext struct {
	container *app.Container
	db        *sql.DB
	server    *httptest.Server
	dbDriver  string
}

// makeRequest performs an HTTP request and returns the response and body.
func (ctx *integrationTestContext) makeRequest(
	t *testing.T,
	method, path string,
	body interface{},
) (*http.Response, []byte) {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ctx.server.URL+path, bodyReader)
	require.NoError(t, err, "failed to create request")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err, "failed to perform request")

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	require.NoError(t, resp.Body.Close(), "failed to close response body")

	return resp, respBody
}

// drainOnce runs a single drain pass, moving enqueued items into audit_logs.
func (ctx *integrationTestContext) drainOnce(t *testing.T) {
	t.Helper()

	drainUseCase, err := ctx.container.DrainUseCase()
	require.NoError(t, err, "failed to get drain use case")
	require.NoError(t, drainUseCase.DrainOnce(context.Background()), "drain pass failed")
}

// countAuditLogs counts persisted audit log rows for an event type.
func (ctx *integrationTestContext) countAuditLogs(t *testing.T, eventType string) int {
	t.Helper()

	query := `SELECT COUNT(*) FROM audit_logs WHERE event_type = $1`
	if ctx.dbDriver == "mysql" {
		query = `SELECT COUNT(*) FROM audit_logs WHERE event_type = ?`
	}

	var count int
	require.NoError(t, ctx.db.QueryRow(query, eventType).Scan(&count))
	return count
}

// setupIntegrationTest initializes all components for integration testing.
func setupIntegrationTest(t *testing.T, dbDriver string) *integrationTestContext {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var db *sql.DB
	var dsn string
	if dbDriver == "postgres" {
		db = testutil.SetupPostgresDB(t)
		dsn = testutil.GetPostgresTestDSN()
	} else {
		db = testutil.SetupMySQLDB(t)
		dsn = testutil.GetMySQLTestDSN()
	}

	cfg := &config.Config{
		ServerHost:              "localhost",
		ServerPort:              8080,
		DBDriver:                dbDriver,
		DBConnectionString:      dsn,
		DBMaxOpenConnections:    10,
		DBMaxIdleConnections:    5,
		DBConnMaxLifetime:       time.Hour,
		LogLevel:                "error",
		BreakerFailureThreshold: 5,
		BreakerFailureWindow:    time.Minute,
		BreakerSuccessThreshold: 2,
		BreakerRecoveryTimeout:  time.Second,
		WriterMaxBufferSize:     100,
		OutboxMaxAttempts:       3,
		OutboxBaseDelay:         time.Second,
		OutboxMaxDelay:          time.Minute,
		OutboxLeaseTimeout:      time.Minute,
		OutboxRetentionDays:     7,
		DrainInterval:           time.Second,
		DrainBatchSize:          50,
		DrainItemTimeout:        5 * time.Second,
		SheddingCacheTTL:        time.Minute,
		SheddingSyncInterval:    time.Minute,
		RateLimitEnabled:        false,
		MetricsEnabled:          false,
		MetricsNamespace:        "auditpipe",
	}

	container := app.NewContainer(cfg)

	httpSrv, err := container.HTTPServer()
	require.NoError(t, err, "failed to get HTTP server")

	server := httptest.NewServer(httpSrv.GetHandler())

	t.Cleanup(func() {
		server.Close()
		require.NoError(t, container.Shutdown(context.Background()))
		testutil.TeardownDB(t, db)
	})

	return &integrationTestContext{
		container: container,
		db:        db,
		server:    server,
		dbDriver:  dbDriver,
	}
}

func driverTestCases() []struct{ name, dbDriver string } {
	return []struct{ name, dbDriver string }{
		{name: "PostgreSQL", dbDriver: "postgres"},
		{name: "MySQL", dbDriver: "mysql"},
	}
}

func TestIntegration_Health_BasicChecks(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, tc := range driverTestCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)

			resp, _ := ctx.makeRequest(t, http.MethodGet, "/health", nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			resp, _ = ctx.makeRequest(t, http.MethodGet, "/ready", nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestIntegration_Events_IngestAndDrain(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, tc := range driverTestCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)

			event := map[string]interface{}{
				"tenant_id":  "tenant-1",
				"event_type": "user.login",
				"severity":   "info",
				"entity":     map[string]string{"type": "user", "id": "user-1"},
				"actor":      map[string]string{"type": "user", "id": "user-1"},
				"details": map[string]interface{}{
					"password": "hunter2",
					"channel":  "web",
				},
			}

			resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/events", event)
			require.Equal(t, http.StatusAccepted, resp.StatusCode, "body: %s", body)

			ctx.drainOnce(t)

			require.Equal(t, 1, ctx.countAuditLogs(t, "user.login"))

			// Denylisted keys must be redacted before persistence.
			query := `SELECT payload FROM audit_logs WHERE event_type = $1`
			if tc.dbDriver == "mysql" {
				query = `SELECT payload FROM audit_logs WHERE event_type = ?`
			}
			var payload []byte
			require.NoError(t, ctx.db.QueryRow(query, "user.login").Scan(&payload))
			assert.Contains(t, string(payload), "[REDACTED]")
			assert.NotContains(t, string(payload), "hunter2")
			assert.Contains(t, string(payload), "web")

			// Malformed event is rejected up front.
			resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/events", map[string]interface{}{
				"event_type": "user.login",
			})
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})
	}
}

func TestIntegration_Pipeline_Status(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, tc := range driverTestCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)

			resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/pipeline/status", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var status map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &status))
			assert.Equal(t, false, status["emergency_mode"])
			assert.Equal(t, float64(0), status["outbox_pending"])
			assert.Equal(t, float64(0), status["outbox_dead"])

			breakerStatus, ok := status["breaker"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "closed", breakerStatus["state"])
		})
	}
}

func TestIntegration_Dlq_ReplayFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, tc := range driverTestCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)

			dlqRepo, err := ctx.container.DlqRepository()
			require.NoError(t, err)

			entry := dlqDomain.NewDlqEntry(
				uuid.Must(uuid.NewV7()),
				"tenant-1",
				"billing.invoice_created",
				json.RawMessage(`{"tenant_id":"tenant-1","event_type":"billing.invoice_created"}`),
				"audit log write failed",
				dlqDomain.CategoryPersistence,
				3,
			)
			require.NoError(t, dlqRepo.Create(context.Background(), entry))

			resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/dlq?unreplayed_only=true", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var list dlqDTO.ListResponse
			require.NoError(t, json.Unmarshal(body, &list))
			require.Len(t, list.Entries, 1)
			assert.Equal(t, entry.ID.String(), list.Entries[0].ID)

			replayPath := fmt.Sprintf("/v1/dlq/%s/replay", entry.ID)

			// A replay scoped to the wrong tenant must not touch the entry.
			resp, _ = ctx.makeRequest(t, http.MethodPost, replayPath, map[string]string{
				"tenant_id":   "tenant-other",
				"operator_id": "ops-1",
			})
			require.Equal(t, http.StatusNotFound, resp.StatusCode)

			resp, body = ctx.makeRequest(t, http.MethodPost, replayPath, map[string]string{
				"tenant_id":   "tenant-1",
				"operator_id": "ops-1",
			})
			require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

			var replay dlqDTO.ReplayResponse
			require.NoError(t, json.Unmarshal(body, &replay))
			assert.Equal(t, "pending", replay.Status)
			assert.NotEmpty(t, replay.OutboxItemID)

			// The entry is kept with replay metadata stamped.
			resp, body = ctx.makeRequest(t, http.MethodGet, "/v1/dlq/"+entry.ID.String(), nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var got dlqDTO.DlqEntryResponse
			require.NoError(t, json.Unmarshal(body, &got))
			require.NotNil(t, got.ReplayedAt)
			require.NotNil(t, got.ReplayedBy)
			assert.Equal(t, "ops-1", *got.ReplayedBy)
			assert.Equal(t, 1, got.ReplayCount)

			// The replayed payload flows through the outbox into the audit log.
			ctx.drainOnce(t)
			assert.Equal(t, 1, ctx.countAuditLogs(t, "billing.invoice_created"))

			resp, _ = ctx.makeRequest(t, http.MethodGet, "/v1/dlq/stats", nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestIntegration_Shedding_PolicyFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, tc := range driverTestCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)

			resp, body := ctx.makeRequest(t, http.MethodPut, "/v1/shedding/policies", map[string]interface{}{
				"tenant_id":   "tenant-1",
				"event_type":  "debug.trace",
				"mode":        "disabled",
				"sample_rate": 0,
			})
			require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

			// A disabled event type is still acknowledged but never persisted.
			event := map[string]interface{}{
				"tenant_id":  "tenant-1",
				"event_type": "debug.trace",
				"severity":   "info",
			}
			resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/events", event)
			require.Equal(t, http.StatusAccepted, resp.StatusCode)

			ctx.drainOnce(t)
			assert.Equal(t, 0, ctx.countAuditLogs(t, "debug.trace"))

			// Never-drop namespaces ignore policies entirely.
			adminEvent := map[string]interface{}{
				"tenant_id":  "tenant-1",
				"event_type": "admin.force_approve",
				"severity":   "info",
			}
			resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/events", adminEvent)
			require.Equal(t, http.StatusAccepted, resp.StatusCode)

			ctx.drainOnce(t)
			assert.Equal(t, 1, ctx.countAuditLogs(t, "admin.force_approve"))
		})
	}
}

func TestIntegration_Shedding_EmergencyMode(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, tc := range driverTestCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)

			resp, body := ctx.makeRequest(t, http.MethodPut, "/v1/shedding/emergency-mode", map[string]interface{}{
				"enabled": true,
			})
			require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

			resp, body = ctx.makeRequest(t, http.MethodGet, "/v1/shedding/emergency-mode", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"enabled":true}`, string(body))

			// Ordinary events are shed, critical events still pass.
			resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/events", map[string]interface{}{
				"tenant_id":  "tenant-1",
				"event_type": "user.logout",
				"severity":   "info",
			})
			require.Equal(t, http.StatusAccepted, resp.StatusCode)

			resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/events", map[string]interface{}{
				"tenant_id":  "tenant-1",
				"event_type": "security.breach_detected",
				"severity":   "critical",
			})
			require.Equal(t, http.StatusAccepted, resp.StatusCode)

			ctx.drainOnce(t)
			assert.Equal(t, 0, ctx.countAuditLogs(t, "user.logout"))
			assert.Equal(t, 1, ctx.countAuditLogs(t, "security.breach_detected"))

			resp, _ = ctx.makeRequest(t, http.MethodPut, "/v1/shedding/emergency-mode", map[string]interface{}{
				"enabled": false,
			})
			require.Equal(t, http.StatusOK, resp.StatusCode)

			resp, body = ctx.makeRequest(t, http.MethodGet, "/v1/shedding/emergency-mode", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"enabled":false}`, string(body))
		})
	}
}
