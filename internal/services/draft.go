package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/grodonkey/crowdcoach-backend/internal/apierr"
	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/repos"
	"github.com/grodonkey/crowdcoach-backend/internal/requestdata"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

// DraftPatch is a partial manual edit; nil fields stay untouched.
type DraftPatch struct {
	Title            *string          `json:"title"`
	Slug             *string          `json:"slug"`
	ShortDescription *string          `json:"short_description"`
	Description      *string          `json:"description"`
	FundingGoal      *decimal.Decimal `json:"funding_goal"`
	ProjectType      *string          `json:"project_type"`
	Plan             *string          `json:"plan"`
	StartDate        *time.Time       `json:"start_date"`
	DurationDays     *int             `json:"duration_days"`
}

type DraftService interface {
	// Generate runs the extraction pipeline over the thread's transcript and
	// creates or fully overwrites the thread's draft. One extraction call per
	// field; a single failing field is absorbed, the others proceed.
	Generate(ctx context.Context, threadID uuid.UUID) (*types.AIDraft, error)

	Get(ctx context.Context, threadID uuid.UUID) (*types.AIDraft, error)
	Update(ctx context.Context, threadID uuid.UUID, patch DraftPatch) (*types.AIDraft, error)

	// Convert turns the draft into a project, exactly once.
	Convert(ctx context.Context, threadID uuid.UUID) (*types.Project, error)
}

type draftService struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      CoachConfig
	threads  repos.AIThreadRepo
	messages repos.AIMessageRepo
	drafts   repos.AIDraftRepo
	projects repos.ProjectRepo
	users    repos.UserRepo
	ai       CompletionClient
}

func NewDraftService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg CoachConfig,
	threadRepo repos.AIThreadRepo,
	messageRepo repos.AIMessageRepo,
	draftRepo repos.AIDraftRepo,
	projectRepo repos.ProjectRepo,
	userRepo repos.UserRepo,
	ai CompletionClient,
) DraftService {
	return &draftService{
		db:       db,
		log:      baseLog.With("service", "DraftService"),
		cfg:      cfg,
		threads:  threadRepo,
		messages: messageRepo,
		drafts:   draftRepo,
		projects: projectRepo,
		users:    userRepo,
		ai:       ai,
	}
}

// authorizeDraftAccess allows the owning account, an admin, or the matching
// anonymous session key recorded on the draft.
func authorizeDraftAccess(rd *requestdata.RequestData, draft *types.AIDraft) error {
	if rd.Authenticated() {
		if rd.IsAdmin {
			return nil
		}
		if draft.UserID != nil && *draft.UserID == rd.UserID {
			return nil
		}
		return apierr.Forbidden("not_authorized", "not authorized to access this draft")
	}
	if draft.SessionID != nil && rd.SessionID != "" && *draft.SessionID == rd.SessionID {
		return nil
	}
	return apierr.Forbidden("not_authorized", "not authorized to access this draft")
}

func (ds *draftService) authorizeGenerate(ctx context.Context, rd *requestdata.RequestData, thread *types.AIThread, threadID uuid.UUID) error {
	if rd.Authenticated() {
		if thread.Claimed() && *thread.UserID != rd.UserID && !rd.IsAdmin {
			return apierr.Forbidden("not_authorized", "not authorized")
		}
		return nil
	}

	if rd.SessionID == "" || thread.SessionID == nil || *thread.SessionID != rd.SessionID {
		return apierr.Forbidden("not_authorized", "not authorized")
	}

	// Anonymous draft cap. A thread that already owns a draft may always
	// regenerate it; only net-new drafts count against the session.
	if _, err := ds.drafts.GetByThreadID(ctx, nil, threadID); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	count, err := ds.drafts.CountAnonymousBySession(ctx, nil, rd.SessionID)
	if err != nil {
		return err
	}
	if count >= ds.cfg.MaxAnonymousDrafts {
		return apierr.QuotaExceeded("draft_limit_reached",
			"anonymous users can only generate %d drafts, please log in to continue", ds.cfg.MaxAnonymousDrafts)
	}
	return nil
}

// extractFields issues one completion call per descriptor, concurrently.
// Results are keyed by field name so assembly is order-independent. A failed
// field is logged and omitted.
func (ds *draftService) extractFields(ctx context.Context, transcript string, now time.Time) map[string]string {
	var mu sync.Mutex
	extracted := make(map[string]string, len(draftFields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for _, field := range draftFields {
		g.Go(func() error {
			prompt := strings.ReplaceAll(field.prompt, "{current_date}", now.Format("2006-01-02"))
			messages := []ChatMessage{
				{Role: "system", Content: extractionSystemPrompt},
				{Role: "user", Content: fmt.Sprintf("Here is the conversation:\n\n%s\nTask: %s", transcript, prompt)},
			}
			raw, _, err := ds.ai.Complete(gctx, messages, 0.3, field.maxTokens)
			if err != nil {
				ds.log.Warn("Field extraction failed", "field", field.name, "error", err)
				return nil
			}
			mu.Lock()
			extracted[field.name] = strings.TrimSpace(raw)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return extracted
}

func (ds *draftService) Generate(ctx context.Context, threadID uuid.UUID) (*types.AIDraft, error) {
	rd := requestdata.GetRequestData(ctx)

	thread, err := ds.threads.GetByID(ctx, nil, threadID)
	if err != nil {
		return nil, apierr.NotFound("thread_not_found", "thread not found")
	}
	if err := ds.authorizeGenerate(ctx, rd, thread, threadID); err != nil {
		return nil, apierr.From(err)
	}

	userTurns, err := ds.messages.CountVisibleUserTurns(ctx, nil, threadID)
	if err != nil {
		return nil, apierr.From(err)
	}
	if userTurns < ds.cfg.MinMessagesForDraft {
		return nil, apierr.BadRequest("not_enough_messages",
			"need at least %d messages to create a project draft", ds.cfg.MinMessagesForDraft)
	}

	existing, err := ds.drafts.GetByThreadID(ctx, nil, threadID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.From(err)
	}
	if existing != nil && existing.Converted() {
		return nil, apierr.InvalidState("already_converted", "this thread has already been converted to a project")
	}

	visible, err := ds.messages.ListByThread(ctx, nil, threadID, false)
	if err != nil {
		return nil, apierr.From(err)
	}
	transcript := transcriptText(buildHistory(visible))

	now := time.Now().UTC()
	extracted := ds.extractFields(ctx, transcript, now)

	draft := existing
	if draft == nil {
		draft = &types.AIDraft{
			ID:       uuid.New(),
			ThreadID: threadID,
			Status:   types.DraftStatusDraft,
		}
	}

	// Full regeneration: every derived field is overwritten, whether or not
	// the transcript changed since the last run. A field whose extraction
	// failed is applied with an empty reply, so it resets to its default
	// instead of keeping a stale value from a previous run.
	for _, field := range draftFields {
		field.apply(draft, extracted[field.name], now)
	}

	// Ownership is fixed from the acting identity now, never re-derived.
	if rd.Authenticated() {
		userID := rd.UserID
		draft.UserID = &userID
		draft.SessionID = nil
	} else if draft.UserID == nil {
		sessionID := rd.SessionID
		draft.SessionID = &sessionID
	}

	if existing != nil {
		if err := ds.drafts.Update(ctx, nil, draft); err != nil {
			return nil, apierr.From(err)
		}
		return draft, nil
	}
	created, err := ds.drafts.Create(ctx, nil, draft)
	if err != nil {
		return nil, apierr.From(err)
	}
	return created, nil
}

func (ds *draftService) Get(ctx context.Context, threadID uuid.UUID) (*types.AIDraft, error) {
	rd := requestdata.GetRequestData(ctx)

	draft, err := ds.drafts.GetByThreadID(ctx, nil, threadID)
	if err != nil {
		return nil, apierr.NotFound("draft_not_found", "draft not found")
	}
	if err := authorizeDraftAccess(rd, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func (ds *draftService) Update(ctx context.Context, threadID uuid.UUID, patch DraftPatch) (*types.AIDraft, error) {
	rd := requestdata.GetRequestData(ctx)

	draft, err := ds.drafts.GetByThreadID(ctx, nil, threadID)
	if err != nil {
		return nil, apierr.NotFound("draft_not_found", "draft not found")
	}
	if err := authorizeDraftAccess(rd, draft); err != nil {
		return nil, err
	}
	if draft.Converted() {
		return nil, apierr.InvalidState("draft_converted", "cannot update a converted draft")
	}

	if patch.Title != nil {
		draft.Title = truncate(*patch.Title, 255)
	}
	if patch.Slug != nil {
		draft.Slug = sanitizeSlug(*patch.Slug)
	}
	if patch.ShortDescription != nil {
		draft.ShortDescription = truncate(*patch.ShortDescription, 500)
	}
	if patch.Description != nil {
		draft.Description = *patch.Description
	}
	if patch.FundingGoal != nil {
		goal := *patch.FundingGoal
		draft.FundingGoal = &goal
	}
	if patch.ProjectType != nil {
		draft.ProjectType = sanitizeProjectType(*patch.ProjectType)
	}
	if patch.Plan != nil {
		draft.Plan = sanitizePlan(*patch.Plan)
	}
	if patch.StartDate != nil {
		startDate := *patch.StartDate
		draft.StartDate = &startDate
	}
	if patch.DurationDays != nil {
		days := *patch.DurationDays
		draft.DurationDays = &days
	}

	if err := ds.drafts.Update(ctx, nil, draft); err != nil {
		return nil, apierr.From(err)
	}
	return draft, nil
}

func (ds *draftService) Convert(ctx context.Context, threadID uuid.UUID) (*types.Project, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.Authenticated() {
		return nil, apierr.Forbidden("not_authenticated", "login required")
	}

	var project *types.Project
	err := ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		draft, err := ds.drafts.GetByThreadID(ctx, tx, threadID)
		if err != nil {
			return apierr.NotFound("draft_not_found", "draft not found")
		}
		if draft.UserID == nil || *draft.UserID != rd.UserID {
			if !rd.IsAdmin {
				return apierr.Forbidden("not_authorized", "not authorized")
			}
		}
		if draft.Converted() {
			return apierr.Conflict("already_converted", "draft already converted")
		}
		if strings.TrimSpace(draft.Title) == "" {
			return apierr.BadRequest("missing_title", "draft must have a title")
		}

		// First free slug wins: base, base-1, base-2, ...
		baseSlug := draft.Slug
		if baseSlug == "" {
			baseSlug = slugifyTitle(draft.Title)
		}
		slug := baseSlug
		for counter := 1; ; counter++ {
			exists, err := ds.projects.SlugExists(ctx, tx, slug)
			if err != nil {
				return err
			}
			if !exists {
				break
			}
			slug = fmt.Sprintf("%s-%d", baseSlug, counter)
		}

		var financingEnd *time.Time
		if draft.StartDate != nil && draft.DurationDays != nil {
			end := draft.StartDate.AddDate(0, 0, *draft.DurationDays)
			financingEnd = &end
		}

		plan := draft.Plan
		if plan == "" {
			plan = types.PlanBasic
		}
		projectType := draft.ProjectType
		if projectType == "" {
			projectType = types.ProjectTypeCrowdfunding
		}

		threadID := draft.ThreadID
		project = &types.Project{
			ID:               uuid.New(),
			OwnerID:          rd.UserID,
			Title:            draft.Title,
			Slug:             slug,
			Description:      draft.Description,
			ShortDescription: draft.ShortDescription,
			FundingGoal:      draft.FundingGoal,
			FundingCurrent:   decimal.Zero,
			Status:           types.ProjectStatusDraft,
			ProjectType:      projectType,
			Plan:             plan,
			Provision:        provisionForPlan(plan),
			StartDate:        draft.StartDate,
			FinancingEnd:     financingEnd,
			AIGenerated:      true,
			AIThreadID:       &threadID,
		}
		if _, err := ds.projects.Create(ctx, tx, project); err != nil {
			return err
		}

		owner, err := ds.users.GetByID(ctx, tx, rd.UserID)
		if err != nil {
			return err
		}
		if !owner.IsStarter {
			owner.IsStarter = true
			if err := ds.users.Update(ctx, tx, owner); err != nil {
				return err
			}
		}

		draft.Status = types.DraftStatusConverted
		draft.ConvertedProjectID = &project.ID
		return ds.drafts.Update(ctx, tx, draft)
	})
	if err != nil {
		return nil, apierr.From(err)
	}
	return project, nil
}
