package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/grodonkey/crowdcoach-backend/internal/apierr"
	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/repos"
	"github.com/grodonkey/crowdcoach-backend/internal/requestdata"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

// ProjectService is the minimal read surface over the conversion target.
// Projects are created only by DraftService.Convert.
type ProjectService interface {
	ListMine(ctx context.Context) ([]*types.Project, error)
	GetBySlug(ctx context.Context, slug string) (*types.Project, error)
}

type projectService struct {
	db       *gorm.DB
	log      *logger.Logger
	projects repos.ProjectRepo
}

func NewProjectService(db *gorm.DB, baseLog *logger.Logger, projectRepo repos.ProjectRepo) ProjectService {
	serviceLog := baseLog.With("service", "ProjectService")
	return &projectService{db: db, log: serviceLog, projects: projectRepo}
}

func (ps *projectService) ListMine(ctx context.Context) ([]*types.Project, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.Authenticated() {
		return nil, apierr.Forbidden("not_authenticated", "login required")
	}
	projects, err := ps.projects.ListByOwner(ctx, nil, rd.UserID)
	if err != nil {
		return nil, apierr.From(err)
	}
	return projects, nil
}

func (ps *projectService) GetBySlug(ctx context.Context, slug string) (*types.Project, error) {
	project, err := ps.projects.GetBySlug(ctx, nil, slug)
	if err != nil {
		return nil, apierr.NotFound("project_not_found", "project not found")
	}
	return project, nil
}
