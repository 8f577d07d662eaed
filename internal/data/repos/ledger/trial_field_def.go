package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/veridata/trialbridge-backend/internal/domain"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type TrialFieldDefRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, defs []*types.TrialFieldDef) error
	ListByTrial(ctx context.Context, tx *gorm.DB, trialID uuid.UUID) ([]*types.TrialFieldDef, error)
}

type trialFieldDefRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrialFieldDefRepo(db *gorm.DB, baseLog *logger.Logger) TrialFieldDefRepo {
	return &trialFieldDefRepo{db: db, log: baseLog.With("repo", "TrialFieldDefRepo")}
}

func (r *trialFieldDefRepo) Upsert(ctx context.Context, tx *gorm.DB, defs []*types.TrialFieldDef) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(defs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trial_id"}, {Name: "field_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value_type", "required"}),
		}).
		Create(&defs).Error
}

func (r *trialFieldDefRepo) ListByTrial(ctx context.Context, tx *gorm.DB, trialID uuid.UUID) ([]*types.TrialFieldDef, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TrialFieldDef
	if err := transaction.WithContext(ctx).
		Where("trial_id = ?", trialID).
		Order("field_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
