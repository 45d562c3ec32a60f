package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"copytrade/internal/service"
	"copytrade/pkg/utils"

	"github.com/sourcegraph/conc"
)

// SyncRunner запускает синхронизацию аккаунтов (service.Scheduler)
type SyncRunner interface {
	SyncOne(ctx context.Context, userID int64) service.SyncReport
	SyncAll(ctx context.Context) ([]service.SyncReport, error)
}

// SyncHandler - синхронизация по требованию
//
// Endpoints:
// - POST /api/v1/users/{id}/sync - синхронно, возвращает отчёт пользователя
// - POST /api/v1/sync - весь парк пользователей в фоне
type SyncHandler struct {
	runner SyncRunner

	// fleetTimeout ограничивает фоновый SyncAll
	fleetTimeout time.Duration
	fleetRunning atomic.Bool
	background   conc.WaitGroup
	logger       *utils.Logger
}

// NewSyncHandler создаёт handler
func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{
		runner:       runner,
		fleetTimeout: 30 * time.Minute,
		logger:       utils.L().WithComponent("api"),
	}
}

// SyncUser синхронизирует одного пользователя
// POST /api/v1/users/{id}/sync
//
// Ошибки отдельных бирж находятся внутри отчёта, статус ответа всё равно 200.
func (h *SyncHandler) SyncUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid user id", "")
		return
	}

	report := h.runner.SyncOne(r.Context(), userID)
	respondWithJSON(w, http.StatusOK, report)
}

// SyncAll запускает синхронизацию всех пользователей в фоне
// POST /api/v1/sync
//
// Ответы:
// - 202 Accepted: запуск принят
// - 409 Conflict: предыдущий запуск ещё не завершён
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	if !h.fleetRunning.CompareAndSwap(false, true) {
		respondWithError(w, http.StatusConflict, "", "Fleet sync is already running", "")
		return
	}

	h.background.Go(func() {
		defer h.fleetRunning.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), h.fleetTimeout)
		defer cancel()

		start := time.Now()
		reports, err := h.runner.SyncAll(ctx)
		if err != nil {
			h.logger.Error("fleet sync failed", utils.Err(err))
			return
		}
		h.logger.Info("fleet sync finished",
			utils.Int("users", len(reports)),
			utils.Elapsed(time.Since(start)),
		)
	})

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "Fleet sync started"})
}

// Wait дожидается фонового SyncAll (graceful shutdown, тесты)
func (h *SyncHandler) Wait() {
	h.background.Wait()
}
