package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/services"
)

type ProjectHandler struct {
	log            *logger.Logger
	projectService services.ProjectService
}

func NewProjectHandler(baseLog *logger.Logger, projectService services.ProjectService) *ProjectHandler {
	handlerLog := baseLog.With("handler", "ProjectHandler")
	return &ProjectHandler{log: handlerLog, projectService: projectService}
}

func (ph *ProjectHandler) ListMine(c *gin.Context) {
	projects, err := ph.projectService.ListMine(c.Request.Context())
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, projects)
}

func (ph *ProjectHandler) GetBySlug(c *gin.Context) {
	project, err := ph.projectService.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, project)
}
