package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/repos"
	"github.com/grodonkey/crowdcoach-backend/internal/requestdata"
)

// testSchema mirrors the production tables without the Postgres-only
// defaults; all IDs and timestamps are set by the application in tests.
var testSchema = []string{
	`CREATE TABLE "user" (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		full_name TEXT NOT NULL,
		profile_slug TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		is_admin BOOLEAN NOT NULL DEFAULT 0,
		is_starter BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE ai_thread (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		session_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME
	)`,
	`CREATE TABLE ai_message (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		content TEXT NOT NULL,
		is_assistant BOOLEAN NOT NULL DEFAULT 0,
		is_system BOOLEAN NOT NULL DEFAULT 0,
		token_count INTEGER,
		created_at DATETIME
	)`,
	`CREATE TABLE ai_draft (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL UNIQUE,
		user_id TEXT,
		session_id TEXT,
		title TEXT,
		slug TEXT,
		short_description TEXT,
		description TEXT,
		funding_goal NUMERIC,
		project_type TEXT,
		plan TEXT,
		start_date DATETIME,
		duration_days INTEGER,
		status TEXT NOT NULL DEFAULT 'draft',
		converted_project_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE project (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		description TEXT,
		short_description TEXT,
		funding_goal NUMERIC,
		funding_current NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		project_type TEXT NOT NULL DEFAULT 'crowdfunding',
		plan TEXT NOT NULL DEFAULT 'basic',
		provision NUMERIC,
		start_date DATETIME,
		financing_end DATETIME,
		ai_generated BOOLEAN NOT NULL DEFAULT 0,
		ai_thread_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// One connection keeps the in-memory database alive for the whole test.
	sqlDB.SetMaxOpenConns(1)
	for _, stmt := range testSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func anonCtx(sessionID string) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{SessionID: sessionID})
}

func userCtx(userID uuid.UUID, admin bool) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{UserID: userID, IsAdmin: admin})
}

// fakeCompletionClient records every call and answers via reply, or with a
// fixed placeholder when reply is nil.
type fakeCompletionClient struct {
	mu    sync.Mutex
	calls [][]ChatMessage
	reply func(messages []ChatMessage, temperature float64, maxTokens int) (string, int, error)
}

func (f *fakeCompletionClient) Complete(_ context.Context, messages []ChatMessage, temperature float64, maxTokens int) (string, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	f.mu.Unlock()
	if f.reply == nil {
		return "ok", 10, nil
	}
	return f.reply(messages, temperature, maxTokens)
}

func (f *fakeCompletionClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	db       *gorm.DB
	cfg      CoachConfig
	ai       *fakeCompletionClient
	users    repos.UserRepo
	threads  repos.AIThreadRepo
	messages repos.AIMessageRepo
	drafts   repos.AIDraftRepo
	projects repos.ProjectRepo
	coach    CoachService
	draft    DraftService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	log := testLogger(t)
	ai := &fakeCompletionClient{}
	cfg := CoachConfig{
		MaxAnonymousMessages: 5,
		MinMessagesForDraft:  3,
		MaxAnonymousDrafts:   2,
		ReplyMaxTokens:       500,
	}
	users := repos.NewUserRepo(db, log)
	threads := repos.NewAIThreadRepo(db, log)
	messages := repos.NewAIMessageRepo(db, log)
	drafts := repos.NewAIDraftRepo(db, log)
	projects := repos.NewProjectRepo(db, log)
	return &fixture{
		db:       db,
		cfg:      cfg,
		ai:       ai,
		users:    users,
		threads:  threads,
		messages: messages,
		drafts:   drafts,
		projects: projects,
		coach:    NewCoachService(db, log, cfg, threads, messages, drafts, ai),
		draft:    NewDraftService(db, log, cfg, threads, messages, drafts, projects, users, ai),
	}
}
