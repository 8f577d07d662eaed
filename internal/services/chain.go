package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veridata/trialbridge-backend/internal/data/repos"
	types "github.com/veridata/trialbridge-backend/internal/domain"
	"github.com/veridata/trialbridge-backend/internal/integrity"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

// ChainService is the append side of the per-patient hash chain. The
// "latest hash" is never cached in process memory: every append re-derives
// it from storage and relies on the insert-time uniqueness guard to fail a
// concurrent append instead of forking the chain.
type ChainService interface {
	AppendVisit(ctx context.Context, patientID, visitID, trialID uuid.UUID, values []types.FieldValueInput) (*types.VisitLeaf, error)
	LatestHash(ctx context.Context, patientID uuid.UUID) (*string, error)
}

type chainService struct {
	db           *gorm.DB
	log          *logger.Logger
	leafRepo     repos.VisitLeafRepo
	valueRepo    repos.VisitFieldValueRepo
	fieldDefRepo repos.TrialFieldDefRepo
}

func NewChainService(db *gorm.DB, log *logger.Logger, leafRepo repos.VisitLeafRepo, valueRepo repos.VisitFieldValueRepo, fieldDefRepo repos.TrialFieldDefRepo) ChainService {
	return &chainService{
		db:           db,
		log:          log.With("service", "ChainService"),
		leafRepo:     leafRepo,
		valueRepo:    valueRepo,
		fieldDefRepo: fieldDefRepo,
	}
}

func (s *chainService) AppendVisit(ctx context.Context, patientID, visitID, trialID uuid.UUID, values []types.FieldValueInput) (*types.VisitLeaf, error) {
	// Idempotent on visit id: a locked visit is hashed exactly once.
	existing, err := s.leafRepo.GetByVisitID(ctx, nil, visitID)
	if err != nil {
		return nil, fmt.Errorf("lookup existing leaf: %w", err)
	}
	if existing != nil {
		s.log.Info("Leaf already exists for visit, returning it", "visit_id", visitID)
		return existing, nil
	}

	defPtrs, err := s.fieldDefRepo.ListByTrial(ctx, nil, trialID)
	if err != nil {
		return nil, fmt.Errorf("load trial CRF: %w", err)
	}
	defs := make([]types.TrialFieldDef, 0, len(defPtrs))
	for _, d := range defPtrs {
		defs = append(defs, *d)
	}

	latest, err := s.leafRepo.LatestForPatient(ctx, nil, patientID)
	if err != nil {
		return nil, fmt.Errorf("load latest leaf: %w", err)
	}
	var previousHash *string
	seq := 1
	if latest != nil {
		h := latest.Hash
		previousHash = &h
		seq = latest.Seq + 1
	}

	hash, err := integrity.HashLeaf(visitID, previousHash, values, defs)
	if err != nil {
		return nil, err
	}

	leaf := &types.VisitLeaf{
		ID:           uuid.New(),
		VisitID:      visitID,
		TrialID:      trialID,
		PatientID:    patientID,
		Seq:          seq,
		Hash:         hash,
		PreviousHash: previousHash,
	}

	fieldValues := make([]*types.VisitFieldValue, 0, len(values))
	for _, v := range values {
		fieldValues = append(fieldValues, &types.VisitFieldValue{
			ID:           uuid.New(),
			VisitID:      visitID,
			FieldID:      v.FieldID,
			ValueText:    v.Text,
			ValueNumber:  v.Number,
			ValueBoolean: v.Boolean,
		})
	}

	err = s.inTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.leafRepo.Create(ctx, tx, leaf); err != nil {
			return err
		}
		if _, err := s.valueRepo.Create(ctx, tx, fieldValues); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Visit leaf appended",
		"visit_id", visitID, "trial_id", trialID, "patient_id", patientID.String(), "seq", seq)
	return leaf, nil
}

func (s *chainService) inTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *chainService) LatestHash(ctx context.Context, patientID uuid.UUID) (*string, error) {
	latest, err := s.leafRepo.LatestForPatient(ctx, nil, patientID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	h := latest.Hash
	return &h, nil
}
