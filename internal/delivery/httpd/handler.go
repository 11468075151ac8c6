package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/models"
	"github.com/karimadel/giu-portal-monitor/internal/service"
	"github.com/karimadel/giu-portal-monitor/pkg/utils"
)

type Handler struct {
	monitor service.MonitorService
	logger  zerolog.Logger
}

func NewHandler(monitor service.MonitorService, logger zerolog.Logger) *Handler {
	return &Handler{
		monitor: monitor,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", h.GetStatus)
		api.Get("/changes", h.GetChanges)
		api.Post("/run", h.TriggerRun)
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	utils.SuccessResponse(w, h.monitor.Status())
}

type changeResponse struct {
	models.ChangeEvent
	Text string `json:"text"`
}

func (h *Handler) GetChanges(w http.ResponseWriter, r *http.Request) {
	changes := h.monitor.LastChanges()

	resp := make([]changeResponse, 0, len(changes))
	for _, c := range changes {
		resp = append(resp, changeResponse{ChangeEvent: c, Text: c.Render()})
	}

	utils.SuccessResponse(w, resp)
}

// TriggerRun starts a monitoring run in the background. A run already in
// flight yields 409; the result is observable via /status and /changes.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.monitor.Running() {
		utils.ErrorResponse(w, http.StatusConflict, "monitoring run already in progress")
		return
	}

	go func() {
		if err := h.monitor.RunOnce(context.Background()); err != nil {
			h.logger.Error().Err(err).Msg("Triggered run failed")
		}
	}()

	utils.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
	})
}
