package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/services"
)

type DraftHandler struct {
	log          *logger.Logger
	draftService services.DraftService
}

func NewDraftHandler(baseLog *logger.Logger, draftService services.DraftService) *DraftHandler {
	handlerLog := baseLog.With("handler", "DraftHandler")
	return &DraftHandler{log: handlerLog, draftService: draftService}
}

func threadIDParam(c *gin.Context) (uuid.UUID, bool) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
		return uuid.Nil, false
	}
	return threadID, true
}

func (dh *DraftHandler) Generate(c *gin.Context) {
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}
	draft, err := dh.draftService.Generate(c.Request.Context(), threadID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, draft)
}

func (dh *DraftHandler) Get(c *gin.Context) {
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}
	draft, err := dh.draftService.Get(c.Request.Context(), threadID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, draft)
}

func (dh *DraftHandler) Update(c *gin.Context) {
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}
	var patch services.DraftPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	draft, err := dh.draftService.Update(c.Request.Context(), threadID, patch)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, draft)
}

func (dh *DraftHandler) Convert(c *gin.Context) {
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}
	project, err := dh.draftService.Convert(c.Request.Context(), threadID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}
