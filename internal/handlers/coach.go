package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/services"
)

type CoachHandler struct {
	log          *logger.Logger
	coachService services.CoachService
}

func NewCoachHandler(baseLog *logger.Logger, coachService services.CoachService) *CoachHandler {
	handlerLog := baseLog.With("handler", "CoachHandler")
	return &CoachHandler{log: handlerLog, coachService: coachService}
}

type GenerateRequest struct {
	Prompt   string     `json:"prompt" binding:"required"`
	ThreadID *uuid.UUID `json:"thread_id"`
}

type SettingsResponse struct {
	MaxAnonymousMessages int `json:"max_anonymous_messages"`
	MinMessagesForDraft  int `json:"min_messages_for_draft"`
	MaxAnonymousDrafts   int `json:"max_anonymous_drafts"`
}

// Generate is one chat turn with the coach.
func (ch *CoachHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := ch.coachService.Respond(c.Request.Context(), req.ThreadID, req.Prompt)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, result)
}

func (ch *CoachHandler) Settings(c *gin.Context) {
	cfg := ch.coachService.Settings()
	RespondOK(c, SettingsResponse{
		MaxAnonymousMessages: cfg.MaxAnonymousMessages,
		MinMessagesForDraft:  cfg.MinMessagesForDraft,
		MaxAnonymousDrafts:   cfg.MaxAnonymousDrafts,
	})
}

func (ch *CoachHandler) GetThread(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
		return
	}
	view, err := ch.coachService.GetThread(c.Request.Context(), threadID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, view)
}

func (ch *CoachHandler) ListThreads(c *gin.Context) {
	summaries, err := ch.coachService.ListThreads(c.Request.Context())
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, summaries)
}

func (ch *CoachHandler) ClaimThread(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
		return
	}
	thread, err := ch.coachService.ClaimThread(c.Request.Context(), threadID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, thread)
}
