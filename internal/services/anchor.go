package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/veridata/trialbridge-backend/internal/clients/redis"
	"github.com/veridata/trialbridge-backend/internal/data/repos"
	types "github.com/veridata/trialbridge-backend/internal/domain"
	"github.com/veridata/trialbridge-backend/internal/integrity"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

const anchorRunLockKey = "trialbridge:anchor-run:lock"

// RunReport summarizes one anchoring run for the trigger (worker tick or
// manual API call).
type RunReport struct {
	Skipped        bool           `json:"skipped"`
	AnchoredTrials int            `json:"anchored_trials"`
	AnchoredVisits int            `json:"anchored_visits"`
	Failures       []TrialFailure `json:"failures,omitempty"`
}

// TrialFailure records one trial group whose anchor could not be published.
// The anchor row (if created) stays CREATED and is left for operator
// action; nothing is retried automatically.
type TrialFailure struct {
	TrialID  uuid.UUID  `json:"trial_id"`
	AnchorID *uuid.UUID `json:"anchor_id,omitempty"`
	Error    string     `json:"error"`
}

// AnchorService drives one batch anchoring pass: select unanchored leaves
// within the lookback window, group them by trial, aggregate each group to
// a Merkle root, commit the root externally, then link the leaves.
type AnchorService interface {
	Run(ctx context.Context) (*RunReport, error)
	ListByTrial(ctx context.Context, trialID uuid.UUID) ([]*types.MerkleAnchor, error)
}

type anchorService struct {
	db         *gorm.DB
	log        *logger.Logger
	leafRepo   repos.VisitLeafRepo
	anchorRepo repos.MerkleAnchorRepo
	publisher  PublisherService
	lock       redis.RunLock
	window     time.Duration
	lockTTL    time.Duration
	now        func() time.Time
}

func NewAnchorService(db *gorm.DB, log *logger.Logger, leafRepo repos.VisitLeafRepo, anchorRepo repos.MerkleAnchorRepo, publisher PublisherService, lock redis.RunLock, window, lockTTL time.Duration) AnchorService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &anchorService{
		db:         db,
		log:        log.With("service", "AnchorService"),
		leafRepo:   leafRepo,
		anchorRepo: anchorRepo,
		publisher:  publisher,
		lock:       lock,
		window:     window,
		lockTTL:    lockTTL,
		now:        time.Now,
	}
}

func (s *anchorService) Run(ctx context.Context) (*RunReport, error) {
	acquired, err := s.lock.Acquire(ctx, anchorRunLockKey, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.log.Info("Another anchor run holds the lock, skipping")
		return &RunReport{Skipped: true}, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), anchorRunLockKey); err != nil {
			s.log.Warn("Failed to release anchor run lock", "error", err)
		}
	}()

	periodEnd := s.now().UTC()
	periodStart := periodEnd.Add(-s.window)

	leaves, err := s.leafRepo.ListUnanchored(ctx, nil, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		s.log.Info("No unanchored leaves in window, nothing to do",
			"period_start", periodStart, "period_end", periodEnd)
		return &RunReport{}, nil
	}

	// Leaves arrive ordered by visit id; grouping preserves that order
	// inside each trial group.
	byTrial := make(map[uuid.UUID][]*types.VisitLeaf)
	for _, leaf := range leaves {
		byTrial[leaf.TrialID] = append(byTrial[leaf.TrialID], leaf)
	}

	report := &RunReport{}
	var mu sync.Mutex

	// Trial groups are independent: one group's ledger failure must not
	// stall or roll back the others, so failures are collected instead
	// of propagated through the group.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for trialID, group := range byTrial {
		trialID, group := trialID, group
		g.Go(func() error {
			anchorID, visits, err := s.anchorTrialGroup(gctx, trialID, group, periodStart, periodEnd)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Error("Anchoring failed for trial group", "trial_id", trialID, "error", err)
				report.Failures = append(report.Failures, TrialFailure{
					TrialID:  trialID,
					AnchorID: anchorID,
					Error:    err.Error(),
				})
				return nil
			}
			report.AnchoredTrials++
			report.AnchoredVisits += visits
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("Anchor run finished",
		"anchored_trials", report.AnchoredTrials,
		"anchored_visits", report.AnchoredVisits,
		"failed_trials", len(report.Failures))
	return report, nil
}

// anchorTrialGroup runs steps 3-6 for one trial: build the root, persist
// the CREATED anchor row before any external call, publish, then mark
// ANCHORED and link the leaves. A crash or publish failure after the
// CREATED insert leaves an inspectable pending row rather than losing the
// computation.
func (s *anchorService) anchorTrialGroup(ctx context.Context, trialID uuid.UUID, group []*types.VisitLeaf, periodStart, periodEnd time.Time) (*uuid.UUID, int, error) {
	leafHashes := make([]string, len(group))
	leafIDs := make([]uuid.UUID, len(group))
	for i, leaf := range group {
		leafHashes[i] = leaf.Hash
		leafIDs[i] = leaf.ID
	}

	root, err := integrity.BuildMerkleRoot(leafHashes)
	if err != nil {
		return nil, 0, err
	}

	anchor, err := s.anchorRepo.Create(ctx, nil, &types.MerkleAnchor{
		ID:          uuid.New(),
		TrialID:     trialID,
		MerkleRoot:  root,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      types.AnchorStatusCreated,
	})
	if err != nil {
		return nil, 0, err
	}

	txRef, alreadyAnchored, err := s.publisher.Publish(ctx, trialID, periodStart, root)
	if err != nil {
		return &anchor.ID, 0, err
	}
	if alreadyAnchored {
		txRef = "recovered-existing-entry"
	}

	// The ledger write is confirmed; the two local updates below are
	// small and independent of it.
	if err := s.anchorRepo.MarkAnchored(ctx, nil, anchor.ID, txRef, s.now().UTC()); err != nil {
		return &anchor.ID, 0, err
	}
	if err := s.leafRepo.LinkToAnchor(ctx, nil, leafIDs, anchor.ID); err != nil {
		return &anchor.ID, 0, err
	}

	s.log.Info("Trial group anchored",
		"trial_id", trialID, "anchor_id", anchor.ID, "root", root, "leaves", len(group), "tx_ref", txRef)
	return &anchor.ID, len(group), nil
}

func (s *anchorService) ListByTrial(ctx context.Context, trialID uuid.UUID) ([]*types.MerkleAnchor, error) {
	return s.anchorRepo.ListByTrial(ctx, nil, trialID)
}
