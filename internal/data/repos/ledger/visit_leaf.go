package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/veridata/trialbridge-backend/internal/domain"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type VisitLeafRepo interface {
	Create(ctx context.Context, tx *gorm.DB, leaf *types.VisitLeaf) (*types.VisitLeaf, error)
	GetByVisitID(ctx context.Context, tx *gorm.DB, visitID uuid.UUID) (*types.VisitLeaf, error)
	LatestForPatient(ctx context.Context, tx *gorm.DB, patientID uuid.UUID) (*types.VisitLeaf, error)
	ListForPatient(ctx context.Context, tx *gorm.DB, patientID uuid.UUID) ([]*types.VisitLeaf, error)
	ListUnanchored(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]*types.VisitLeaf, error)
	ListByAnchorID(ctx context.Context, tx *gorm.DB, anchorID uuid.UUID) ([]*types.VisitLeaf, error)
	LinkToAnchor(ctx context.Context, tx *gorm.DB, leafIDs []uuid.UUID, anchorID uuid.UUID) error
}

type visitLeafRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVisitLeafRepo(db *gorm.DB, baseLog *logger.Logger) VisitLeafRepo {
	return &visitLeafRepo{db: db, log: baseLog.With("repo", "VisitLeafRepo")}
}

// Create inserts one leaf. The unique visit_id index and the unique
// (patient_id, seq) index both surface as ErrConcurrency: either the visit
// was already appended or another append won the race for the same chain
// position.
func (r *visitLeafRepo) Create(ctx context.Context, tx *gorm.DB, leaf *types.VisitLeaf) (*types.VisitLeaf, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(leaf).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: leaf for visit %s or its chain position already exists", apperrors.ErrConcurrency, leaf.VisitID)
		}
		return nil, err
	}
	return leaf, nil
}

func (r *visitLeafRepo) GetByVisitID(ctx context.Context, tx *gorm.DB, visitID uuid.UUID) (*types.VisitLeaf, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var leaf types.VisitLeaf
	err := transaction.WithContext(ctx).
		Where("visit_id = ?", visitID).
		First(&leaf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &leaf, nil
}

func (r *visitLeafRepo) LatestForPatient(ctx context.Context, tx *gorm.DB, patientID uuid.UUID) (*types.VisitLeaf, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var leaf types.VisitLeaf
	err := transaction.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("seq DESC").
		First(&leaf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &leaf, nil
}

func (r *visitLeafRepo) ListForPatient(ctx context.Context, tx *gorm.DB, patientID uuid.UUID) ([]*types.VisitLeaf, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.VisitLeaf
	if err := transaction.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("seq ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListUnanchored returns leaves not yet linked to any anchor whose
// created_at falls within [from, to], in ascending visit id order (the
// aggregation ordering contract).
func (r *visitLeafRepo) ListUnanchored(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]*types.VisitLeaf, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.VisitLeaf
	if err := transaction.WithContext(ctx).
		Where("anchor_id IS NULL AND created_at >= ? AND created_at <= ?", from, to).
		Order("visit_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *visitLeafRepo) ListByAnchorID(ctx context.Context, tx *gorm.DB, anchorID uuid.UUID) ([]*types.VisitLeaf, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.VisitLeaf
	if err := transaction.WithContext(ctx).
		Where("anchor_id = ?", anchorID).
		Order("visit_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// LinkToAnchor sets anchor_id on the given leaves, conditional on each leaf
// still being unanchored. A shortfall in affected rows means some leaf was
// claimed by another anchor in between, which violates anchor exclusivity.
func (r *visitLeafRepo) LinkToAnchor(ctx context.Context, tx *gorm.DB, leafIDs []uuid.UUID, anchorID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(leafIDs) == 0 {
		return nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.VisitLeaf{}).
		Where("id IN ? AND anchor_id IS NULL", leafIDs).
		Update("anchor_id", anchorID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(leafIDs)) {
		return fmt.Errorf("%w: linked %d of %d leaves to anchor %s, remainder already anchored",
			apperrors.ErrConcurrency, res.RowsAffected, len(leafIDs), anchorID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}
