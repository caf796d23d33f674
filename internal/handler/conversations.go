// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/middleware"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/internal/service"
	"github.com/askcart-ai/assistant/pkg/logger"
)

// ConversationHandler handles the admin conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Recent handles GET /api/v1/admin/conversations/recent
func (h *ConversationHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	summaries, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list recent conversations", zap.Error(err))
		writeError(w, statusFor(err), "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, summaries)
}

// Messages handles GET /api/v1/admin/conversations/{id}/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.service.History(r.Context(), conversationID)
	if err != nil {
		writeError(w, statusFor(err), "failed to get messages")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

// UpdateStatus handles PUT /api/v1/admin/conversations/{id}/status
func (h *ConversationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.service.SetStatus(r.Context(), conversationID, req.Status)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
