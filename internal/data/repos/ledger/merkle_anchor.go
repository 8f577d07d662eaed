package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veridata/trialbridge-backend/internal/domain"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type MerkleAnchorRepo interface {
	Create(ctx context.Context, tx *gorm.DB, anchor *types.MerkleAnchor) (*types.MerkleAnchor, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MerkleAnchor, error)
	MarkAnchored(ctx context.Context, tx *gorm.DB, id uuid.UUID, txRef string, anchoredAt time.Time) error
	ListByTrial(ctx context.Context, tx *gorm.DB, trialID uuid.UUID) ([]*types.MerkleAnchor, error)
}

type merkleAnchorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMerkleAnchorRepo(db *gorm.DB, baseLog *logger.Logger) MerkleAnchorRepo {
	return &merkleAnchorRepo{db: db, log: baseLog.With("repo", "MerkleAnchorRepo")}
}

func (r *merkleAnchorRepo) Create(ctx context.Context, tx *gorm.DB, anchor *types.MerkleAnchor) (*types.MerkleAnchor, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if anchor.Status == "" {
		anchor.Status = types.AnchorStatusCreated
	}
	if err := transaction.WithContext(ctx).Create(anchor).Error; err != nil {
		return nil, err
	}
	return anchor, nil
}

func (r *merkleAnchorRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MerkleAnchor, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var anchor types.MerkleAnchor
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&anchor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &anchor, nil
}

// MarkAnchored moves CREATED -> ANCHORED, recording the external tx
// reference. Conditional on the current status so the transition can never
// run backward or twice.
func (r *merkleAnchorRepo) MarkAnchored(ctx context.Context, tx *gorm.DB, id uuid.UUID, txRef string, anchoredAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.MerkleAnchor{}).
		Where("id = ? AND status = ?", id, types.AnchorStatusCreated).
		Updates(map[string]interface{}{
			"status":      types.AnchorStatusAnchored,
			"tx_ref":      txRef,
			"anchored_at": anchoredAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: anchor %s is not in CREATED state", apperrors.ErrConcurrency, id)
	}
	return nil
}

func (r *merkleAnchorRepo) ListByTrial(ctx context.Context, tx *gorm.DB, trialID uuid.UUID) ([]*types.MerkleAnchor, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.MerkleAnchor
	if err := transaction.WithContext(ctx).
		Where("trial_id = ?", trialID).
		Order("period_start DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
