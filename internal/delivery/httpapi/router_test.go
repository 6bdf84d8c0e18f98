package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/NasaVasa/hubalerts/internal/infra/memory"
	"github.com/NasaVasa/hubalerts/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "internal-secret"

type recordingSender struct {
	mu    sync.Mutex
	deals []domain.Deal
}

func (s *recordingSender) Channel() domain.Channel { return domain.ChannelWebhook }

func (s *recordingSender) Send(_ context.Context, dest domain.Destination, deal domain.Deal) (*domain.DeliveryResult, error) {
	if dest.WebhookURL == "" {
		return nil, domain.ErrDestinationMissing
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals = append(s.deals, deal)
	return &domain.DeliveryResult{StatusCode: http.StatusOK}, nil
}

func (s *recordingSender) sent() []domain.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Deal(nil), s.deals...)
}

type apiHarness struct {
	router   http.Handler
	alerting *usecase.AlertingManager
	sender   *recordingSender
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	logger := zap.NewNop()
	prefStore := memory.NewPreferenceStore()
	watchStore := memory.NewWatchlistStore()
	sender := &recordingSender{}

	alerting := usecase.NewAlertingManager(
		prefStore, watchStore, memory.NewQueueStore(), memory.NewDeliveryLogStore(),
		[]domain.ChannelSender{sender}, logger,
		usecase.AlertingOptions{FrontendURL: "https://thehub.test"},
	)
	tables := map[string]string{"watches": "watch_listings", "sneakers": "sneaker_listings"}
	scheduler, err := usecase.NewAlertScheduler(alerting, memory.NewListingStore(), nil, logger, usecase.SchedulerOptions{Tables: tables})
	require.NoError(t, err)
	processor := usecase.NewQueueProcessor(alerting, logger, usecase.QueueProcessorOptions{})
	prefs := usecase.NewPreferenceUsecase(prefStore, watchStore, []string{"watches", "sneakers"})

	handler := NewHandler(prefs, alerting, scheduler, processor, logger)
	router := NewRouter(handler, logger, RouterOptions{InternalAPIKey: testAPIKey})
	return &apiHarness{router: router, alerting: alerting, sender: sender}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec.Code, decoded
}

func asUser(id string) map[string]string {
	return map[string]string{HeaderUserID: id}
}

func internalKey() map[string]string {
	return map[string]string{HeaderAPIKey: testAPIKey}
}

func (h *apiHarness) enableWebhook(t *testing.T, userID string) {
	t.Helper()
	code, _ := h.do(t, http.MethodPut, BasePath+"/preferences", map[string]any{
		"custom_webhook_enabled": true,
		"custom_webhook_url":     "https://hooks.example.com/deals",
	}, asUser(userID))
	require.Equal(t, http.StatusOK, code)
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)
	code, body := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["queueProcessorActive"])
}

func TestUserRoutesRequireUserHeader(t *testing.T) {
	h := newAPIHarness(t)
	code, body := h.do(t, http.MethodGet, BasePath+"/preferences", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["success"])
}

func TestGetPreferencesReturnsDefaults(t *testing.T) {
	h := newAPIHarness(t)
	code, body := h.do(t, http.MethodGet, BasePath+"/preferences", nil, asUser("u1"))
	require.Equal(t, http.StatusOK, code)

	prefs := body["preferences"].(map[string]any)
	assert.Equal(t, "u1", prefs["user_id"])
	assert.Equal(t, "free", prefs["tier"])
	assert.EqualValues(t, 15, prefs["alert_delay_minutes"])
	assert.Nil(t, prefs["id"])
	assert.Equal(t, []any{"sneakers", "watches"}, body["categories"])
}

func TestUpdatePreferencesValidation(t *testing.T) {
	h := newAPIHarness(t)

	code, body := h.do(t, http.MethodPut, BasePath+"/preferences", map[string]any{
		"email_address": "not-an-email",
	}, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "email_address")

	code, body = h.do(t, http.MethodPut, BasePath+"/preferences", map[string]any{
		"discord_webhook_url": "https://example.com/hook",
	}, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "discord_webhook_url")

	code, body = h.do(t, http.MethodPut, BasePath+"/preferences", map[string]any{
		"email_enabled": true,
		"email_address": "collector@example.com",
		"categories":    []string{"watches"},
		"min_price":     "100",
	}, asUser("u1"))
	require.Equal(t, http.StatusOK, code)
	prefs := body["preferences"].(map[string]any)
	assert.Equal(t, "collector@example.com", prefs["email_address"])
	assert.Equal(t, []any{"watches"}, prefs["categories"])
	assert.Equal(t, "100", prefs["min_price"])
	assert.NotNil(t, prefs["id"])
}

func TestUpdatePreferencesRejectsMalformedBody(t *testing.T) {
	h := newAPIHarness(t)
	req := httptest.NewRequest(http.MethodPut, BasePath+"/preferences", bytes.NewBufferString("{"))
	req.Header.Set(HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncTier(t *testing.T) {
	h := newAPIHarness(t)

	code, _ := h.do(t, http.MethodPost, BasePath+"/preferences/sync-tier", nil, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, code)

	headers := asUser("u1")
	headers[HeaderUserTier] = "premium"
	code, body := h.do(t, http.MethodPost, BasePath+"/preferences/sync-tier", nil, headers)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "premium", body["tier"])
	assert.EqualValues(t, 0, body["alert_delay_minutes"])
}

func TestWatchlistRoutes(t *testing.T) {
	h := newAPIHarness(t)

	code, body := h.do(t, http.MethodPost, BasePath+"/watchlist", map[string]any{
		"brand":    "Rolex",
		"category": "watches",
	}, asUser("u1"))
	require.Equal(t, http.StatusCreated, code)
	entry := body["entry"].(map[string]any)
	assert.Equal(t, "rolex", entry["brand"])
	assert.EqualValues(t, 70, entry["min_deal_score"])

	code, _ = h.do(t, http.MethodPost, BasePath+"/watchlist", map[string]any{
		"brand":    "Rolex",
		"category": "boats",
	}, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(t, http.MethodGet, BasePath+"/watchlist", nil, asUser("u1"))
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["watchlist"], 1)

	code, _ = h.do(t, http.MethodDelete, BasePath+"/watchlist/Rolex/watches", nil, asUser("u1"))
	assert.Equal(t, http.StatusOK, code)

	code, body = h.do(t, http.MethodDelete, BasePath+"/watchlist/Rolex/watches", nil, asUser("u1"))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
}

func TestTestChannel(t *testing.T) {
	h := newAPIHarness(t)

	code, body := h.do(t, http.MethodPost, BasePath+"/test/webhook", nil, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "preferences")

	code, _ = h.do(t, http.MethodPost, BasePath+"/test/sms", nil, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, code)

	h.enableWebhook(t, "u1")

	code, body = h.do(t, http.MethodPost, BasePath+"/test/webhook", map[string]any{
		"testData": map[string]any{"title": "Custom Test"},
	}, asUser("u1"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Test alert sent via webhook", body["message"])

	sent := h.sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Custom Test", sent[0].Title)
	assert.Equal(t, "TestBrand", sent[0].Brand)
	assert.Equal(t, "https://thehub.test", sent[0].URL)
}

func TestTestChannelMissingDestination(t *testing.T) {
	h := newAPIHarness(t)
	code, _ := h.do(t, http.MethodPut, BasePath+"/preferences", map[string]any{"email_enabled": false}, asUser("u1"))
	require.Equal(t, http.StatusOK, code)

	code, body := h.do(t, http.MethodPost, BasePath+"/test/webhook", nil, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "webhook is not configured")
}

func TestInternalRoutesRequireAPIKey(t *testing.T) {
	h := newAPIHarness(t)
	code, _ := h.do(t, http.MethodGet, BasePath+"/scheduler/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := h.do(t, http.MethodGet, BasePath+"/scheduler/status", nil, internalKey())
	require.Equal(t, http.StatusOK, code)
	status := body["status"].(map[string]any)
	assert.Equal(t, false, status["isRunning"])
	assert.EqualValues(t, 0, status["processedDealsCount"])
}

func TestProcessDealDeliversAndShowsInHistory(t *testing.T) {
	h := newAPIHarness(t)
	h.enableWebhook(t, "u1")
	headers := asUser("u1")
	headers[HeaderUserTier] = "pro"
	code, _ := h.do(t, http.MethodPost, BasePath+"/preferences/sync-tier", nil, headers)
	require.Equal(t, http.StatusOK, code)

	code, body := h.do(t, http.MethodPost, BasePath+"/process-deal", map[string]any{
		"id":         "w-42",
		"category":   "watches",
		"brand":      "Omega",
		"model":      "Speedmaster",
		"price":      "5200",
		"deal_score": 82,
	}, internalKey())
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["result"].(map[string]any)["queued"])

	h.alerting.Wait()
	require.Len(t, h.sender.sent(), 1)

	code, body = h.do(t, http.MethodGet, BasePath+"/history?limit=10", nil, asUser("u1"))
	require.Equal(t, http.StatusOK, code)
	history := body["history"].([]any)
	require.Len(t, history, 1)
	first := history[0].(map[string]any)
	assert.Equal(t, "w-42", first["deal_id"])
	assert.Equal(t, true, first["success"])

	code, body = h.do(t, http.MethodGet, BasePath+"/stats", nil, asUser("u1"))
	require.Equal(t, http.StatusOK, code)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["today"])
	assert.EqualValues(t, 0, stats["pending"])

	code, body = h.do(t, http.MethodGet, BasePath+"/scheduler/status", nil, internalKey())
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["status"].(map[string]any)["processedDealsCount"])
}

func TestProcessDealRejectsMissingID(t *testing.T) {
	h := newAPIHarness(t)
	code, body := h.do(t, http.MethodPost, BasePath+"/process-deal", map[string]any{"category": "watches"}, internalKey())
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
}

func TestFreeTierDealStaysPending(t *testing.T) {
	h := newAPIHarness(t)
	h.enableWebhook(t, "u1")

	code, _ := h.do(t, http.MethodPost, BasePath+"/process-deal", map[string]any{
		"id": "w-7", "category": "watches", "brand": "Tudor", "price": 3100, "deal_score": 75,
	}, internalKey())
	require.Equal(t, http.StatusOK, code)

	code, body := h.do(t, http.MethodGet, BasePath+"/pending", nil, asUser("u1"))
	require.Equal(t, http.StatusOK, code)
	pending := body["pending"].([]any)
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].(map[string]any)["delivery_status"])

	code, body = h.do(t, http.MethodPost, BasePath+"/process-queue", nil, internalKey())
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["result"].(map[string]any)["processed"])
	assert.Empty(t, h.sender.sent())

	code, body = h.do(t, http.MethodGet, BasePath+"/admin/stats", nil, internalKey())
	require.Equal(t, http.StatusOK, code)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["totalUsers"])
	assert.EqualValues(t, 1, stats["pendingQueue"])
}
