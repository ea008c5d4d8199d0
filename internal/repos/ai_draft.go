package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

type AIDraftRepo interface {
	Create(ctx context.Context, tx *gorm.DB, draft *types.AIDraft) (*types.AIDraft, error)
	GetByThreadID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIDraft, error)
	// GetUnclaimedUnconvertedByThreadID is used by the claim cascade: only a
	// draft that is both anonymous and still editable transfers ownership.
	GetUnclaimedUnconvertedByThreadID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIDraft, error)
	// CountAnonymousBySession counts drafts a session generated without an
	// account, for the anonymous draft cap.
	CountAnonymousBySession(ctx context.Context, tx *gorm.DB, sessionID string) (int, error)
	Update(ctx context.Context, tx *gorm.DB, draft *types.AIDraft) error
}

type aiDraftRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAIDraftRepo(db *gorm.DB, baseLog *logger.Logger) AIDraftRepo {
	repoLog := baseLog.With("repo", "AIDraftRepo")
	return &aiDraftRepo{db: db, log: repoLog}
}

func (dr *aiDraftRepo) Create(ctx context.Context, tx *gorm.DB, draft *types.AIDraft) (*types.AIDraft, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	if err := transaction.WithContext(ctx).Create(draft).Error; err != nil {
		return nil, err
	}
	return draft, nil
}

func (dr *aiDraftRepo) GetByThreadID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIDraft, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	var draft types.AIDraft
	if err := transaction.WithContext(ctx).
		Where("thread_id = ?", threadID).
		First(&draft).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

func (dr *aiDraftRepo) GetUnclaimedUnconvertedByThreadID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIDraft, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	var draft types.AIDraft
	if err := transaction.WithContext(ctx).
		Where("thread_id = ? AND user_id IS NULL AND status <> ?", threadID, types.DraftStatusConverted).
		First(&draft).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

func (dr *aiDraftRepo) CountAnonymousBySession(ctx context.Context, tx *gorm.DB, sessionID string) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.AIDraft{}).
		Where("session_id = ? AND user_id IS NULL", sessionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (dr *aiDraftRepo) Update(ctx context.Context, tx *gorm.DB, draft *types.AIDraft) error {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	return transaction.WithContext(ctx).Save(draft).Error
}
