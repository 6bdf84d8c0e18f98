package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/NasaVasa/hubalerts/internal/usecase"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	prefs     *usecase.PreferenceUsecase
	alerting  *usecase.AlertingManager
	scheduler *usecase.AlertScheduler
	processor *usecase.QueueProcessor
	logger    *zap.Logger
}

func NewHandler(
	prefs *usecase.PreferenceUsecase,
	alerting *usecase.AlertingManager,
	scheduler *usecase.AlertScheduler,
	processor *usecase.QueueProcessor,
	logger *zap.Logger,
) *Handler {
	return &Handler{prefs: prefs, alerting: alerting, scheduler: scheduler, processor: processor, logger: logger}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("user_id", userIDFrom(r.Context())),
			zap.Error(err),
		)
	}
	writeFail(w, status, message)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, envelope{
		"status":               "ok",
		"schedulerRunning":     h.scheduler.Status().Running,
		"queueProcessorActive": h.processor.Active(),
	})
}

func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	pref, err := h.prefs.GetPreferences(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"preferences": newPreferenceView(pref), "categories": h.prefs.Categories()})
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var update usecase.PreferenceUpdate
	if !decode(w, r, &update) {
		return
	}
	pref, err := h.prefs.UpsertPreferences(r.Context(), userIDFrom(r.Context()), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"preferences": newPreferenceView(pref)})
}

// SyncTier copies the tier the gateway resolved from billing into the preferences row.
func (h *Handler) SyncTier(w http.ResponseWriter, r *http.Request) {
	tier := r.Header.Get(HeaderUserTier)
	if tier == "" {
		writeFail(w, http.StatusBadRequest, "missing "+HeaderUserTier+" header")
		return
	}
	pref, err := h.prefs.UpdateTier(r.Context(), userIDFrom(r.Context()), domain.Tier(tier))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"tier": pref.Tier, "alert_delay_minutes": pref.AlertDelayMinutes})
}

func (h *Handler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.prefs.ListWatchlist(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"watchlist": mapViews(entries, newWatchlistView)})
}

func (h *Handler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	var input usecase.WatchlistInput
	if !decode(w, r, &input) {
		return
	}
	entry, err := h.prefs.AddToWatchlist(r.Context(), userIDFrom(r.Context()), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, envelope{"entry": newWatchlistView(*entry)})
}

func (h *Handler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")
	category := chi.URLParam(r, "category")
	if err := h.prefs.RemoveFromWatchlist(r.Context(), userIDFrom(r.Context()), brand, category); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

type testChannelRequest struct {
	TestData json.RawMessage `json:"testData"`
}

// TestChannel sends the sample deal through one channel. testData fields, when present,
// are decoded over the sample.
func (h *Handler) TestChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := domain.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		writeFail(w, http.StatusBadRequest, "unknown channel, use one of email, telegram, discord, webhook")
		return
	}

	var req testChannelRequest
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}

	var override func(*domain.Deal)
	if len(req.TestData) > 0 && string(req.TestData) != "null" {
		var probe domain.Deal
		if err := json.Unmarshal(req.TestData, &probe); err != nil {
			writeFail(w, http.StatusBadRequest, "invalid testData")
			return
		}
		override = func(deal *domain.Deal) {
			_ = json.Unmarshal(req.TestData, deal)
		}
	}

	userID := userIDFrom(r.Context())
	result, err := h.alerting.TestChannel(r.Context(), userID, channel, override)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPreferencesNotFound):
		writeFail(w, http.StatusBadRequest, "no alert preferences configured, save your preferences first")
		return
	case errors.Is(err, domain.ErrDestinationMissing), errors.Is(err, domain.ErrChannelNotConfigured):
		writeFail(w, http.StatusBadRequest, fmt.Sprintf("%s is not configured: %v", channel, err))
		return
	case errors.Is(err, domain.ErrUnknownChannel):
		h.fail(w, r, err)
		return
	default:
		h.logger.Warn("test alert failed", zap.String("user_id", userID), zap.String("channel", string(channel)), zap.Error(err))
		writeFail(w, http.StatusInternalServerError, "test alert failed: "+err.Error())
		return
	}

	writeOK(w, http.StatusOK, envelope{
		"message": fmt.Sprintf("Test alert sent via %s", channel),
		"result":  result,
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alerting.GetUserStats(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"stats": stats})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}
	entries, err := h.alerting.History(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"history": mapViews(entries, newHistoryView)})
}

func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	items, err := h.alerting.Pending(r.Context(), userIDFrom(r.Context()), 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"pending": mapViews(items, newPendingView)})
}

// ProcessDeal accepts a deal pushed by a scraper and fans it out immediately.
func (h *Handler) ProcessDeal(w http.ResponseWriter, r *http.Request) {
	var deal domain.Deal
	if !decode(w, r, &deal) {
		return
	}
	result, err := h.scheduler.ProcessDeal(r.Context(), deal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"result": result})
}

func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	result, err := h.processor.RunNow(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"result": result})
}

func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.ForceRun(r.Context())
	if errors.Is(err, usecase.ErrRunInProgress) {
		writeFail(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"result": result})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, envelope{"status": h.scheduler.Status()})
}

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alerting.GetGlobalStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{
		"stats":                stats,
		"scheduler":            h.scheduler.Status(),
		"queueProcessorActive": h.processor.Active(),
	})
}
