package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/grodonkey/crowdcoach-backend/internal/apierr"
	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/repos"
	"github.com/grodonkey/crowdcoach-backend/internal/requestdata"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

// coachSystemPrompt is the fixed persona prepended to every conversation
// replay. It is never persisted as a message row.
const coachSystemPrompt = `You are a friendly and experienced crowdfunding coach.
Your job is to help users develop and refine their project ideas.

Act like an experienced advisor:
- Ask targeted questions to understand the project idea better
- Help the user set a realistic funding goal
- Ask about the project type (crowdfunding with rewards, fundraising/donations, or a private project)
- Ask about the preferred plan (Basic 9%, Pro 7%, Premium 5%, Enterprise individual)
- Ask about the planned launch date and the campaign duration (30-90 days)
- Share practical tips for a successful campaign
- Be encouraging but realistic

Important rules:
- Keep your replies concise (max. 150 words)
- Ask at most 2 questions per message
- Be friendly and motivating
- Do not use emojis`

// CoachConfig holds the quota thresholds and model knobs. The thresholds are
// re-read from the thread state on every request; nothing here is a cache.
type CoachConfig struct {
	MaxAnonymousMessages int
	MinMessagesForDraft  int
	MaxAnonymousDrafts   int
	ReplyMaxTokens       int
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	Reply          string    `json:"reply"`
	RawReply       string    `json:"raw_reply"`
	ThreadID       uuid.UUID `json:"thread_id"`
	MessageCount   int       `json:"message_count"`
	CanCreateDraft bool      `json:"can_create_draft"`
	RequiresLogin  bool      `json:"requires_login"`
	TokenCount     int       `json:"token_count"`
}

type ThreadView struct {
	ID               uuid.UUID          `json:"id"`
	MessageCount     int                `json:"message_count"`
	UserMessageCount int                `json:"user_message_count"`
	CreatedAt        time.Time          `json:"created_at"`
	Messages         []*types.AIMessage `json:"messages"`
}

type ThreadSummary struct {
	ID           uuid.UUID `json:"id"`
	FirstMessage string    `json:"first_message,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type CoachService interface {
	Settings() CoachConfig

	// Respond handles one chat turn: resolve the thread, enforce the message
	// quota, persist the user message, call the completion service, persist
	// the assistant reply. The user message is durable before the completion
	// call is attempted; a failing call leaves it in place.
	Respond(ctx context.Context, threadID *uuid.UUID, prompt string) (*TurnResult, error)

	GetThread(ctx context.Context, threadID uuid.UUID) (*ThreadView, error)
	ListThreads(ctx context.Context) ([]*ThreadSummary, error)

	// ClaimThread transfers an anonymous thread (and its unconverted,
	// unclaimed draft, if any) to the authenticated account. Thread and
	// draft transfer together or not at all.
	ClaimThread(ctx context.Context, threadID uuid.UUID) (*types.AIThread, error)
}

type coachService struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      CoachConfig
	threads  repos.AIThreadRepo
	messages repos.AIMessageRepo
	drafts   repos.AIDraftRepo
	ai       CompletionClient
}

func NewCoachService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg CoachConfig,
	threadRepo repos.AIThreadRepo,
	messageRepo repos.AIMessageRepo,
	draftRepo repos.AIDraftRepo,
	ai CompletionClient,
) CoachService {
	return &coachService{
		db:       db,
		log:      baseLog.With("service", "CoachService"),
		cfg:      cfg,
		threads:  threadRepo,
		messages: messageRepo,
		drafts:   draftRepo,
		ai:       ai,
	}
}

func (cs *coachService) Settings() CoachConfig {
	return cs.cfg
}

// canSendMessage is the message-quota gate. Authenticated actors are always
// allowed; anonymous actors are cut off at MaxAnonymousMessages visible user
// turns with requiresLogin set so the client can redirect to auth without
// losing the conversation.
func (cs *coachService) canSendMessage(authenticated bool, userTurns int) (allowed bool, requiresLogin bool) {
	if authenticated {
		return true, false
	}
	if userTurns >= cs.cfg.MaxAnonymousMessages {
		return false, true
	}
	return true, false
}

func (cs *coachService) canGenerateDraft(userTurns int) bool {
	return userTurns >= cs.cfg.MinMessagesForDraft
}

// buildHistory converts ledger rows into the completion-service transcript,
// with the coaching persona prepended as a synthetic system entry.
func buildHistory(messages []*types.AIMessage) []ChatMessage {
	history := make([]ChatMessage, 0, len(messages)+1)
	history = append(history, ChatMessage{Role: "system", Content: coachSystemPrompt})
	for _, m := range messages {
		history = append(history, ChatMessage{Role: m.Role(), Content: m.Content})
	}
	return history
}

// transcriptText flattens a history (minus the system entry) into plain text
// for the extraction prompts.
func transcriptText(history []ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func renderMarkdown(raw string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(raw), &buf); err != nil {
		return raw
	}
	return buf.String()
}

// resolveThread maps the inbound request onto a thread: by explicit id, by
// anonymous session, or by creating a new thread owned by exactly one of
// {account, session}.
func (cs *coachService) resolveThread(ctx context.Context, threadID *uuid.UUID) (*types.AIThread, error) {
	rd := requestdata.GetRequestData(ctx)

	if threadID != nil && *threadID != uuid.Nil {
		thread, err := cs.threads.GetByID(ctx, nil, *threadID)
		if err != nil {
			return nil, apierr.NotFound("thread_not_found", "thread not found")
		}
		return thread, nil
	}

	if !rd.Authenticated() && rd.SessionID != "" {
		thread, err := cs.threads.GetUnclaimedBySession(ctx, nil, rd.SessionID)
		if err == nil {
			return thread, nil
		}
		// fall through to creation
	}

	thread := &types.AIThread{
		ID:       uuid.New(),
		Metadata: datatypes.JSON([]byte(`{}`)),
	}
	if rd.Authenticated() {
		userID := rd.UserID
		thread.UserID = &userID
	} else {
		sessionID := rd.SessionID
		thread.SessionID = &sessionID
	}
	created, err := cs.threads.Create(ctx, nil, thread)
	if err != nil {
		return nil, apierr.From(err)
	}
	return created, nil
}

func (cs *coachService) Respond(ctx context.Context, threadID *uuid.UUID, prompt string) (*TurnResult, error) {
	rd := requestdata.GetRequestData(ctx)
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apierr.BadRequest("empty_prompt", "prompt must not be empty")
	}

	thread, err := cs.resolveThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	userTurns, err := cs.messages.CountVisibleUserTurns(ctx, nil, thread.ID)
	if err != nil {
		return nil, apierr.From(err)
	}
	allowed, _ := cs.canSendMessage(rd.Authenticated(), userTurns)
	if !allowed {
		return nil, apierr.QuotaExceeded("message_limit_reached", "message limit reached, please log in to continue")
	}

	// Durable before the completion call: a failed reply must not lose the
	// user's input.
	userMessage := &types.AIMessage{
		ID:       uuid.New(),
		ThreadID: thread.ID,
		Content:  prompt,
	}
	if _, err := cs.messages.Create(ctx, nil, userMessage); err != nil {
		return nil, apierr.From(err)
	}

	visible, err := cs.messages.ListByThread(ctx, nil, thread.ID, false)
	if err != nil {
		return nil, apierr.From(err)
	}
	history := buildHistory(visible)

	rawReply, tokenCount, err := cs.ai.Complete(ctx, history, 0.7, cs.cfg.ReplyMaxTokens)
	if err != nil {
		cs.log.Warn("Completion call failed, user message kept", "thread_id", thread.ID, "error", err)
		return nil, apierr.From(err)
	}

	assistantMessage := &types.AIMessage{
		ID:          uuid.New(),
		ThreadID:    thread.ID,
		Content:     rawReply,
		IsAssistant: true,
		TokenCount:  &tokenCount,
	}
	if _, err := cs.messages.Create(ctx, nil, assistantMessage); err != nil {
		return nil, apierr.From(err)
	}

	userTurns, err = cs.messages.CountVisibleUserTurns(ctx, nil, thread.ID)
	if err != nil {
		return nil, apierr.From(err)
	}
	_, requiresLogin := cs.canSendMessage(rd.Authenticated(), userTurns)

	return &TurnResult{
		Reply:          renderMarkdown(rawReply),
		RawReply:       rawReply,
		ThreadID:       thread.ID,
		MessageCount:   userTurns,
		CanCreateDraft: cs.canGenerateDraft(userTurns),
		RequiresLogin:  requiresLogin,
		TokenCount:     tokenCount,
	}, nil
}

// authorizeThreadRead allows the owning account, an admin, or the matching
// anonymous session.
func authorizeThreadRead(rd *requestdata.RequestData, thread *types.AIThread) error {
	if rd.Authenticated() {
		if rd.IsAdmin {
			return nil
		}
		if thread.Claimed() && *thread.UserID == rd.UserID {
			return nil
		}
		if !thread.Claimed() {
			return nil
		}
		return apierr.Forbidden("not_authorized", "not authorized to view this thread")
	}
	if thread.SessionID != nil && rd.SessionID != "" && *thread.SessionID == rd.SessionID {
		return nil
	}
	return apierr.Forbidden("not_authorized", "not authorized to view this thread")
}

func (cs *coachService) GetThread(ctx context.Context, threadID uuid.UUID) (*ThreadView, error) {
	rd := requestdata.GetRequestData(ctx)

	thread, err := cs.threads.GetByID(ctx, nil, threadID)
	if err != nil {
		return nil, apierr.NotFound("thread_not_found", "thread not found")
	}
	if err := authorizeThreadRead(rd, thread); err != nil {
		return nil, err
	}

	visible, err := cs.messages.ListByThread(ctx, nil, threadID, false)
	if err != nil {
		return nil, apierr.From(err)
	}
	userTurns, err := cs.messages.CountVisibleUserTurns(ctx, nil, threadID)
	if err != nil {
		return nil, apierr.From(err)
	}

	return &ThreadView{
		ID:               thread.ID,
		MessageCount:     len(visible),
		UserMessageCount: userTurns,
		CreatedAt:        thread.CreatedAt,
		Messages:         visible,
	}, nil
}

func (cs *coachService) ListThreads(ctx context.Context) ([]*ThreadSummary, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.Authenticated() {
		return nil, apierr.Forbidden("not_authenticated", "login required")
	}

	threads, err := cs.threads.ListByUser(ctx, nil, rd.UserID)
	if err != nil {
		return nil, apierr.From(err)
	}

	summaries := make([]*ThreadSummary, 0, len(threads))
	for _, thread := range threads {
		summary := &ThreadSummary{
			ID:        thread.ID,
			CreatedAt: thread.CreatedAt,
		}
		if first, err := cs.messages.FirstUserMessage(ctx, nil, thread.ID); err == nil {
			preview := first.Content
			if len(preview) > 100 {
				preview = preview[:100]
			}
			summary.FirstMessage = preview
		}
		visible, err := cs.messages.ListByThread(ctx, nil, thread.ID, false)
		if err != nil {
			return nil, apierr.From(err)
		}
		summary.MessageCount = len(visible)
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (cs *coachService) ClaimThread(ctx context.Context, threadID uuid.UUID) (*types.AIThread, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.Authenticated() {
		return nil, apierr.Forbidden("not_authenticated", "login required")
	}

	var claimed *types.AIThread
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		thread, err := cs.threads.GetUnclaimedByID(ctx, tx, threadID)
		if err != nil {
			return apierr.NotFound("thread_not_found_or_claimed", "thread not found or already claimed")
		}

		userID := rd.UserID
		thread.UserID = &userID
		thread.SessionID = nil
		if err := cs.threads.Update(ctx, tx, thread); err != nil {
			return err
		}

		// Cascade the transfer to the draft, inside the same transaction.
		draft, err := cs.drafts.GetUnclaimedUnconvertedByThreadID(ctx, tx, threadID)
		switch {
		case err == nil:
			draft.UserID = &userID
			draft.SessionID = nil
			if err := cs.drafts.Update(ctx, tx, draft); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// no draft to transfer
		default:
			return err
		}

		claimed = thread
		return nil
	})
	if err != nil {
		return nil, apierr.From(err)
	}
	return claimed, nil
}
