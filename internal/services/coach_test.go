package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/grodonkey/crowdcoach-backend/internal/apierr"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

func TestCanSendMessage(t *testing.T) {
	cs := &coachService{cfg: CoachConfig{MaxAnonymousMessages: 5}}

	tests := []struct {
		name          string
		authenticated bool
		userTurns     int
		wantAllowed   bool
		wantLogin     bool
	}{
		{"anonymous under limit", false, 0, true, false},
		{"anonymous one before limit", false, 4, true, false},
		{"anonymous at limit", false, 5, false, true},
		{"anonymous over limit", false, 9, false, true},
		{"authenticated at limit", true, 5, true, false},
		{"authenticated far over limit", true, 100, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, requiresLogin := cs.canSendMessage(tt.authenticated, tt.userTurns)
			if allowed != tt.wantAllowed || requiresLogin != tt.wantLogin {
				t.Fatalf("canSendMessage(%v, %d) = (%v, %v), want (%v, %v)",
					tt.authenticated, tt.userTurns, allowed, requiresLogin, tt.wantAllowed, tt.wantLogin)
			}
		})
	}
}

func TestRespondCreatesAnonymousThread(t *testing.T) {
	f := newFixture(t)
	f.ai.reply = func(_ []ChatMessage, _ float64, _ int) (string, int, error) {
		return "Great **idea**, tell me more.", 42, nil
	}
	ctx := anonCtx("sess-1")

	res, err := f.coach.Respond(ctx, nil, "I want to build a community garden")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if res.ThreadID == uuid.Nil {
		t.Fatal("expected a thread id")
	}
	if res.MessageCount != 1 {
		t.Fatalf("expected 1 user turn, got %d", res.MessageCount)
	}
	if res.CanCreateDraft {
		t.Fatal("draft must not be available after one turn")
	}
	if res.RequiresLogin {
		t.Fatal("requires_login must be false under the limit")
	}
	if res.TokenCount != 42 {
		t.Fatalf("expected token count 42, got %d", res.TokenCount)
	}
	if res.RawReply != "Great **idea**, tell me more." {
		t.Fatalf("unexpected raw reply %q", res.RawReply)
	}
	if !strings.Contains(res.Reply, "<strong>") {
		t.Fatalf("expected rendered markdown, got %q", res.Reply)
	}

	thread, err := f.threads.GetByID(ctx, nil, res.ThreadID)
	if err != nil {
		t.Fatalf("thread not persisted: %v", err)
	}
	if thread.UserID != nil {
		t.Fatal("anonymous thread must not have a user")
	}
	if thread.SessionID == nil || *thread.SessionID != "sess-1" {
		t.Fatalf("expected session owner sess-1, got %v", thread.SessionID)
	}

	// The system prompt goes to the model but never into the ledger.
	first := f.ai.calls[0]
	if first[0].Role != "system" {
		t.Fatal("expected system prompt as first history entry")
	}
	messages, err := f.messages.ListByThread(ctx, nil, res.ThreadID, true)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user + assistant rows, got %d", len(messages))
	}
	if messages[0].IsAssistant || !messages[1].IsAssistant {
		t.Fatal("messages stored in wrong order")
	}
	if messages[1].TokenCount == nil || *messages[1].TokenCount != 42 {
		t.Fatal("assistant message missing token count")
	}
}

func TestRespondReusesSessionThread(t *testing.T) {
	f := newFixture(t)
	ctx := anonCtx("sess-2")

	first, err := f.coach.Respond(ctx, nil, "hello")
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	second, err := f.coach.Respond(ctx, nil, "more details")
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if first.ThreadID != second.ThreadID {
		t.Fatalf("expected the session to keep one thread, got %s and %s", first.ThreadID, second.ThreadID)
	}
	if second.MessageCount != 2 {
		t.Fatalf("expected 2 user turns, got %d", second.MessageCount)
	}
}

func TestRespondAnonymousQuota(t *testing.T) {
	f := newFixture(t)
	ctx := anonCtx("sess-3")

	var last *TurnResult
	for i := 0; i < f.cfg.MaxAnonymousMessages; i++ {
		res, err := f.coach.Respond(ctx, nil, fmt.Sprintf("turn %d", i+1))
		if err != nil {
			t.Fatalf("turn %d failed: %v", i+1, err)
		}
		last = res
	}
	if !last.RequiresLogin {
		t.Fatal("final allowed turn must flag requires_login")
	}

	_, err := f.coach.Respond(ctx, nil, "one too many")
	if !apierr.IsCode(err, "message_limit_reached") {
		t.Fatalf("expected message_limit_reached, got %v", err)
	}
}

func TestRespondAuthenticatedHasNoQuota(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx(uuid.New(), false)

	var threadID *uuid.UUID
	for i := 0; i < f.cfg.MaxAnonymousMessages+2; i++ {
		res, err := f.coach.Respond(ctx, threadID, fmt.Sprintf("turn %d", i+1))
		if err != nil {
			t.Fatalf("turn %d failed: %v", i+1, err)
		}
		if res.RequiresLogin {
			t.Fatal("authenticated callers never require login")
		}
		id := res.ThreadID
		threadID = &id
	}
}

func TestRespondCompletionFailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t)
	f.ai.reply = func(_ []ChatMessage, _ float64, _ int) (string, int, error) {
		return "", 0, apierr.ServiceUnavailable("ai_unavailable", "backend down")
	}
	ctx := anonCtx("sess-4")

	_, err := f.coach.Respond(ctx, nil, "please keep this")
	if !apierr.IsCode(err, "ai_unavailable") {
		t.Fatalf("expected ai_unavailable, got %v", err)
	}

	thread, err := f.threads.GetUnclaimedBySession(ctx, nil, "sess-4")
	if err != nil {
		t.Fatalf("thread should exist despite the failure: %v", err)
	}
	messages, err := f.messages.ListByThread(ctx, nil, thread.ID, true)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected only the user message, got %d rows", len(messages))
	}
	if messages[0].IsAssistant {
		t.Fatal("the surviving message must be the user's")
	}
	if messages[0].Content != "please keep this" {
		t.Fatalf("unexpected content %q", messages[0].Content)
	}
}

func TestRespondRejectsEmptyPrompt(t *testing.T) {
	f := newFixture(t)
	_, err := f.coach.Respond(anonCtx("sess-5"), nil, "   ")
	if !apierr.IsCode(err, "empty_prompt") {
		t.Fatalf("expected empty_prompt, got %v", err)
	}
}

func TestGetThreadAuthorization(t *testing.T) {
	f := newFixture(t)
	owner := anonCtx("sess-owner")

	res, err := f.coach.Respond(owner, nil, "my secret plan")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	view, err := f.coach.GetThread(owner, res.ThreadID)
	if err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if view.UserMessageCount != 1 || len(view.Messages) != 2 {
		t.Fatalf("unexpected view: %d user turns, %d messages", view.UserMessageCount, len(view.Messages))
	}

	_, err = f.coach.GetThread(anonCtx("sess-stranger"), res.ThreadID)
	if !apierr.IsCode(err, "not_authorized") {
		t.Fatalf("expected not_authorized for a foreign session, got %v", err)
	}

	_, err = f.coach.GetThread(owner, uuid.New())
	if !apierr.IsCode(err, "thread_not_found") {
		t.Fatalf("expected thread_not_found, got %v", err)
	}
}

func TestClaimThreadTransfersDraft(t *testing.T) {
	f := newFixture(t)
	session := "sess-claim"
	ctx := anonCtx(session)

	res, err := f.coach.Respond(ctx, nil, "claim me")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	sessionID := session
	if _, err := f.drafts.Create(ctx, nil, &types.AIDraft{
		ID:        uuid.New(),
		ThreadID:  res.ThreadID,
		SessionID: &sessionID,
		Title:     "Claimable",
		Status:    types.DraftStatusDraft,
	}); err != nil {
		t.Fatalf("seed draft: %v", err)
	}

	userID := uuid.New()
	claimed, err := f.coach.ClaimThread(userCtx(userID, false), res.ThreadID)
	if err != nil {
		t.Fatalf("ClaimThread failed: %v", err)
	}
	if claimed.UserID == nil || *claimed.UserID != userID {
		t.Fatal("thread ownership did not transfer")
	}
	if claimed.SessionID != nil {
		t.Fatal("session key must be cleared on claim")
	}

	draft, err := f.drafts.GetByThreadID(ctx, nil, res.ThreadID)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if draft.UserID == nil || *draft.UserID != userID {
		t.Fatal("draft ownership did not transfer with the thread")
	}
	if draft.SessionID != nil {
		t.Fatal("draft session key must be cleared on claim")
	}

	// A claimed thread cannot be claimed again, not even by the same user.
	_, err = f.coach.ClaimThread(userCtx(uuid.New(), false), res.ThreadID)
	if !apierr.IsCode(err, "thread_not_found_or_claimed") {
		t.Fatalf("expected thread_not_found_or_claimed, got %v", err)
	}
}

func TestClaimThreadRequiresAuth(t *testing.T) {
	f := newFixture(t)
	_, err := f.coach.ClaimThread(anonCtx("sess-x"), uuid.New())
	if !apierr.IsCode(err, "not_authenticated") {
		t.Fatalf("expected not_authenticated, got %v", err)
	}
}

func TestListThreads(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	ctx := userCtx(userID, false)

	res, err := f.coach.Respond(ctx, nil, "this is a fairly long opening message that should be previewed")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	summaries, err := f.coach.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(summaries))
	}
	if summaries[0].ID != res.ThreadID {
		t.Fatal("summary points at the wrong thread")
	}
	if !strings.HasPrefix(summaries[0].FirstMessage, "this is a fairly long opening") {
		t.Fatalf("unexpected preview %q", summaries[0].FirstMessage)
	}
	if summaries[0].MessageCount != 2 {
		t.Fatalf("expected 2 visible messages, got %d", summaries[0].MessageCount)
	}

	_, err = f.coach.ListThreads(anonCtx("sess-anon"))
	if !apierr.IsCode(err, "not_authenticated") {
		t.Fatalf("expected not_authenticated, got %v", err)
	}
}
