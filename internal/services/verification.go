package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/veridata/trialbridge-backend/internal/data/repos"
	types "github.com/veridata/trialbridge-backend/internal/domain"
	"github.com/veridata/trialbridge-backend/internal/integrity"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

// LeafVerification is the audit payload for one visit: both hash values are
// always returned so a regulator can display the divergence.
type LeafVerification struct {
	VisitID        uuid.UUID                `json:"visit_id"`
	StoredHash     string                   `json:"stored_hash,omitempty"`
	RecomputedHash string                   `json:"recomputed_hash,omitempty"`
	Status         types.VerificationStatus `json:"status"`
}

// AnchorVerification carries all three root values and, on tampering, which
// pair diverged.
type AnchorVerification struct {
	AnchorID       uuid.UUID                `json:"anchor_id"`
	DBRoot         string                   `json:"db_root,omitempty"`
	RecomputedRoot string                   `json:"recomputed_root,omitempty"`
	OnChainRoot    string                   `json:"on_chain_root,omitempty"`
	DayIndex       uint64                   `json:"day_index"`
	Status         types.VerificationStatus `json:"status"`
	Mismatch       string                   `json:"mismatch,omitempty"`
}

// ChainVerification is the audit payload for one patient's full chain:
// every leaf re-verified plus the linkage between consecutive leaves.
type ChainVerification struct {
	PatientID     uuid.UUID                `json:"patient_id"`
	Length        int                      `json:"length"`
	Status        types.VerificationStatus `json:"status"`
	BrokenVisitID *uuid.UUID               `json:"broken_visit_id,omitempty"`
	Leaves        []LeafVerification       `json:"leaves,omitempty"`
}

// VerificationService recomputes hashes and roots from stored data and
// cross-checks them against the local records and the external ledger. It
// never touches the write path and always returns a definite status.
type VerificationService interface {
	VerifyLeaf(ctx context.Context, visitID uuid.UUID) (*LeafVerification, error)
	VerifyChain(ctx context.Context, patientID uuid.UUID) (*ChainVerification, error)
	VerifyAnchor(ctx context.Context, anchorID uuid.UUID) (*AnchorVerification, error)
}

type verificationService struct {
	log        *logger.Logger
	leafRepo   repos.VisitLeafRepo
	valueRepo  repos.VisitFieldValueRepo
	anchorRepo repos.MerkleAnchorRepo
	publisher  PublisherService
}

func NewVerificationService(log *logger.Logger, leafRepo repos.VisitLeafRepo, valueRepo repos.VisitFieldValueRepo, anchorRepo repos.MerkleAnchorRepo, publisher PublisherService) VerificationService {
	return &verificationService{
		log:        log.With("service", "VerificationService"),
		leafRepo:   leafRepo,
		valueRepo:  valueRepo,
		anchorRepo: anchorRepo,
		publisher:  publisher,
	}
}

func (s *verificationService) VerifyLeaf(ctx context.Context, visitID uuid.UUID) (*LeafVerification, error) {
	leaf, err := s.leafRepo.GetByVisitID(ctx, nil, visitID)
	if err != nil {
		return nil, err
	}
	if leaf == nil {
		return &LeafVerification{VisitID: visitID, Status: types.VerificationNotFound}, nil
	}
	return s.verifyStoredLeaf(ctx, leaf)
}

func (s *verificationService) verifyStoredLeaf(ctx context.Context, leaf *types.VisitLeaf) (*LeafVerification, error) {
	stored, err := s.valueRepo.ListByVisitID(ctx, nil, leaf.VisitID)
	if err != nil {
		return nil, err
	}

	// Recompute from the stored canonical values only. The CRF schema is
	// deliberately not re-applied here: the stored variant is the
	// declared type as of lock time, and a later schema edit must not
	// turn an honest leaf into a false tamper report.
	values := make([]types.FieldValueInput, 0, len(stored))
	for _, v := range stored {
		values = append(values, types.FieldValueInput{
			FieldID: v.FieldID,
			Text:    v.ValueText,
			Number:  v.ValueNumber,
			Boolean: v.ValueBoolean,
		})
	}

	recomputed, err := integrity.HashLeaf(leaf.VisitID, leaf.PreviousHash, values, nil)
	if err != nil {
		return nil, err
	}

	result := &LeafVerification{
		VisitID:        leaf.VisitID,
		StoredHash:     leaf.Hash,
		RecomputedHash: recomputed,
		Status:         types.VerificationVerified,
	}
	if recomputed != leaf.Hash {
		result.Status = types.VerificationTampered
		s.log.Warn("Leaf verification detected tampering",
			"visit_id", leaf.VisitID, "stored_hash", leaf.Hash, "recomputed_hash", recomputed)
	}
	return result, nil
}

// VerifyChain re-verifies every leaf in a patient's chain and checks the
// links between them: contiguous seq values and each previous_hash equal to
// the predecessor's stored hash. Content tampering yields a tampered status;
// a structurally broken chain (seq gap or duplicate) is storage corruption
// and surfaces as ErrChainIntegrity instead of a verdict.
func (s *verificationService) VerifyChain(ctx context.Context, patientID uuid.UUID) (*ChainVerification, error) {
	leaves, err := s.leafRepo.ListForPatient(ctx, nil, patientID)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return &ChainVerification{PatientID: patientID, Status: types.VerificationNotFound}, nil
	}

	result := &ChainVerification{
		PatientID: patientID,
		Length:    len(leaves),
		Status:    types.VerificationVerified,
		Leaves:    make([]LeafVerification, 0, len(leaves)),
	}
	for i, leaf := range leaves {
		if leaf.Seq != i+1 {
			return nil, fmt.Errorf("%w: patient %s chain has seq %d at position %d",
				apperrors.ErrChainIntegrity, patientID, leaf.Seq, i+1)
		}

		linked := true
		if i == 0 {
			linked = leaf.PreviousHash == nil
		} else {
			linked = leaf.PreviousHash != nil && *leaf.PreviousHash == leaves[i-1].Hash
		}

		lv, err := s.verifyStoredLeaf(ctx, leaf)
		if err != nil {
			return nil, err
		}
		if !linked {
			lv.Status = types.VerificationTampered
		}
		result.Leaves = append(result.Leaves, *lv)
		if lv.Status != types.VerificationVerified && result.BrokenVisitID == nil {
			id := leaf.VisitID
			result.BrokenVisitID = &id
			result.Status = types.VerificationTampered
		}
	}
	if result.Status == types.VerificationTampered {
		s.log.Warn("Chain verification detected tampering",
			"patient_id", patientID.String(), "broken_visit_id", result.BrokenVisitID)
	}
	return result, nil
}

func (s *verificationService) VerifyAnchor(ctx context.Context, anchorID uuid.UUID) (*AnchorVerification, error) {
	anchor, err := s.anchorRepo.GetByID(ctx, nil, anchorID)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return &AnchorVerification{AnchorID: anchorID, Status: types.VerificationNotFound}, nil
	}

	leaves, err := s.leafRepo.ListByAnchorID(ctx, nil, anchorID)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return &AnchorVerification{AnchorID: anchorID, Status: types.VerificationNotFound}, nil
	}

	leafHashes := make([]string, len(leaves))
	for i, leaf := range leaves {
		leafHashes[i] = leaf.Hash
	}
	recomputedRoot, err := integrity.BuildMerkleRoot(leafHashes)
	if err != nil {
		return nil, err
	}

	onChainRoot, dayIndex, present, err := s.publisher.ReadRoot(ctx, anchor.TrialID, anchor.PeriodStart)
	if err != nil {
		return nil, err
	}

	result := &AnchorVerification{
		AnchorID:       anchorID,
		DBRoot:         anchor.MerkleRoot,
		RecomputedRoot: recomputedRoot,
		OnChainRoot:    onChainRoot,
		DayIndex:       dayIndex,
	}
	if !present {
		result.Status = types.VerificationNotAnchored
		return result, nil
	}

	// All three values must be equal; a chained two-operator comparison
	// is not equivalent and is avoided on purpose. The first diverging
	// pair is reported for the audit display.
	dbRoot := integrity.NormalizeHash(anchor.MerkleRoot)
	chainRoot := integrity.NormalizeHash(onChainRoot)
	switch {
	case dbRoot != recomputedRoot:
		result.Status = types.VerificationTampered
		result.Mismatch = types.MismatchDBVsRecomputed
	case recomputedRoot != chainRoot:
		result.Status = types.VerificationTampered
		result.Mismatch = types.MismatchRecomputedVsChain
	case dbRoot != chainRoot:
		result.Status = types.VerificationTampered
		result.Mismatch = types.MismatchDBVsChain
	default:
		result.Status = types.VerificationVerified
	}
	if result.Status == types.VerificationTampered {
		s.log.Warn("Anchor verification detected tampering",
			"anchor_id", anchorID, "mismatch", result.Mismatch,
			"db_root", dbRoot, "recomputed_root", recomputedRoot, "on_chain_root", chainRoot)
	}
	return result, nil
}
