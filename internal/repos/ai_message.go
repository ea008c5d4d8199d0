package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

type AIMessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, message *types.AIMessage) (*types.AIMessage, error)
	// ListByThread returns the thread's messages in replay order: created_at
	// ascending with id as tie-break, so concurrent appends with equal
	// timestamps still replay deterministically.
	ListByThread(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, includeSystem bool) ([]*types.AIMessage, error)
	// CountVisibleUserTurns counts messages that are neither assistant nor
	// system. This drives every quota decision.
	CountVisibleUserTurns(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (int, error)
	FirstUserMessage(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIMessage, error)
}

type aiMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAIMessageRepo(db *gorm.DB, baseLog *logger.Logger) AIMessageRepo {
	repoLog := baseLog.With("repo", "AIMessageRepo")
	return &aiMessageRepo{db: db, log: repoLog}
}

func (mr *aiMessageRepo) Create(ctx context.Context, tx *gorm.DB, message *types.AIMessage) (*types.AIMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	if err := transaction.WithContext(ctx).Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

func (mr *aiMessageRepo) ListByThread(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, includeSystem bool) ([]*types.AIMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	query := transaction.WithContext(ctx).
		Where("thread_id = ?", threadID)
	if !includeSystem {
		query = query.Where("is_system = ?", false)
	}
	var messages []*types.AIMessage
	if err := query.
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (mr *aiMessageRepo) CountVisibleUserTurns(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.AIMessage{}).
		Where("thread_id = ? AND is_assistant = ? AND is_system = ?", threadID, false, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (mr *aiMessageRepo) FirstUserMessage(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var message types.AIMessage
	if err := transaction.WithContext(ctx).
		Where("thread_id = ? AND is_assistant = ? AND is_system = ?", threadID, false, false).
		Order("created_at ASC").
		Order("id ASC").
		First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}
