package handlers

import (
	"context"
	"net/http"
	"time"

	"taskAssistant/internal/logger"

	"go.uber.org/zap"
)

type SyncHandler struct {
	Sync        SyncService
	Calendar    CalendarStatus
	Store       HealthChecker
	OwnerUserID int64
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

func NewSyncHandler(sync SyncService, cal CalendarStatus, store HealthChecker, ownerUserID int64) SyncHandler {
	return SyncHandler{
		Sync:        sync,
		Calendar:    cal,
		Store:       store,
		OwnerUserID: ownerUserID,
	}
}

func (h *SyncHandler) userID(r *http.Request) int64 {
	th := TaskHandler{OwnerUserID: h.OwnerUserID}
	return th.userID(r)
}

// PostPull — ручной запуск pull-синхронизации вне расписания
func (h *SyncHandler) PostPull(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	res, err := h.Sync.PullAndSchedule(r.Context(), h.userID(r))
	if err != nil {
		logger.Error("HTTP: Ошибка pull-синхронизации", err)
		responseWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Pull выполнен",
		zap.Int("imported", len(res.Imported)),
		zap.Int("updated", len(res.Updated)),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK,
		toPayload("imported", res.Imported),
		toPayload("updated", res.Updated),
		toPayload("archived", res.Archived))
}

// PostBackfill — ручной досыл задач без календарной связки
func (h *SyncHandler) PostBackfill(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	pushed, err := h.Sync.Backfill(r.Context(), h.userID(r))
	if err != nil {
		logger.Error("HTTP: Ошибка backfill", err)
		responseWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Backfill выполнен",
		zap.Int("pushed", pushed),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK, toPayload("pushed", pushed))
}

func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")
	responseWithJSON(w, http.StatusOK,
		toPayload("connected", h.Calendar.IsConnected(r.Context(), h.userID(r))))
}

func (h *SyncHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: Health check")

	if err := h.Store.HealthCheck(r.Context()); err != nil {
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "degraded"),
			toPayload("error", err.Error()))
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("status", "ok"))
}
