package services

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gopkg.in/yaml.v3"

	"github.com/veridata/trialbridge-backend/internal/data/repos"
	types "github.com/veridata/trialbridge-backend/internal/domain"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

// CRFService manages the per-trial case-report-form field schema that leaf
// hashing validates against. Definitions live in the database; a YAML seed
// file can upsert them at startup.
type CRFService interface {
	SeedFromFile(ctx context.Context, path string) (int, error)
	FieldsForTrial(ctx context.Context, trialID uuid.UUID) ([]*types.TrialFieldDef, error)
}

type crfService struct {
	db           *gorm.DB
	log          *logger.Logger
	fieldDefRepo repos.TrialFieldDefRepo
}

func NewCRFService(db *gorm.DB, log *logger.Logger, fieldDefRepo repos.TrialFieldDefRepo) CRFService {
	return &crfService{
		db:           db,
		log:          log.With("service", "CRFService"),
		fieldDefRepo: fieldDefRepo,
	}
}

type crfSeedFile struct {
	Trials []struct {
		TrialID string `yaml:"trial_id"`
		Fields  []struct {
			FieldID  string `yaml:"field_id"`
			Type     string `yaml:"type"`
			Required bool   `yaml:"required"`
		} `yaml:"fields"`
	} `yaml:"trials"`
}

func (s *crfService) SeedFromFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read CRF seed file: %w", err)
	}
	var seed crfSeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("parse CRF seed file: %w", err)
	}

	defs := make([]*types.TrialFieldDef, 0)
	for _, trial := range seed.Trials {
		trialID, err := uuid.Parse(trial.TrialID)
		if err != nil {
			return 0, fmt.Errorf("%w: CRF seed trial_id %q is not a uuid", apperrors.ErrValidation, trial.TrialID)
		}
		for _, f := range trial.Fields {
			vt := types.FieldValueType(f.Type)
			switch vt {
			case types.FieldTypeText, types.FieldTypeNumber, types.FieldTypeBoolean:
			default:
				return 0, fmt.Errorf("%w: CRF seed field %q has unknown type %q", apperrors.ErrValidation, f.FieldID, f.Type)
			}
			defs = append(defs, &types.TrialFieldDef{
				ID:        uuid.New(),
				TrialID:   trialID,
				FieldID:   f.FieldID,
				ValueType: vt,
				Required:  f.Required,
			})
		}
	}

	if err := s.fieldDefRepo.Upsert(ctx, nil, defs); err != nil {
		return 0, fmt.Errorf("upsert CRF definitions: %w", err)
	}
	s.log.Info("CRF schema seeded", "path", path, "field_defs", len(defs))
	return len(defs), nil
}

func (s *crfService) FieldsForTrial(ctx context.Context, trialID uuid.UUID) ([]*types.TrialFieldDef, error) {
	return s.fieldDefRepo.ListByTrial(ctx, nil, trialID)
}
