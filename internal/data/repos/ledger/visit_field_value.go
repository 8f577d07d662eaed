package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veridata/trialbridge-backend/internal/domain"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type VisitFieldValueRepo interface {
	Create(ctx context.Context, tx *gorm.DB, values []*types.VisitFieldValue) ([]*types.VisitFieldValue, error)
	ListByVisitID(ctx context.Context, tx *gorm.DB, visitID uuid.UUID) ([]*types.VisitFieldValue, error)
}

type visitFieldValueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVisitFieldValueRepo(db *gorm.DB, baseLog *logger.Logger) VisitFieldValueRepo {
	return &visitFieldValueRepo{db: db, log: baseLog.With("repo", "VisitFieldValueRepo")}
}

func (r *visitFieldValueRepo) Create(ctx context.Context, tx *gorm.DB, values []*types.VisitFieldValue) ([]*types.VisitFieldValue, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(values) == 0 {
		return []*types.VisitFieldValue{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&values).Error; err != nil {
		return nil, err
	}
	return values, nil
}

func (r *visitFieldValueRepo) ListByVisitID(ctx context.Context, tx *gorm.DB, visitID uuid.UUID) ([]*types.VisitFieldValue, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.VisitFieldValue
	if err := transaction.WithContext(ctx).
		Where("visit_id = ?", visitID).
		Order("field_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
