package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridata/trialbridge-backend/internal/clients/evm"
	"github.com/veridata/trialbridge-backend/internal/integrity"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

const msPerDay = 86_400_000

// PublisherService is the boundary to the external immutable ledger. Writes
// are addressed by (trial key, day index) and are write-once: publishing a
// different root under an occupied key is refused before any transaction is
// sent.
type PublisherService interface {
	// Publish anchors root under the key derived from trialID and
	// periodStart. Returns the opaque tx reference, or alreadyAnchored
	// when the ledger already holds this exact root (recovery after a
	// crash between confirmation and the local status update).
	Publish(ctx context.Context, trialID uuid.UUID, periodStart time.Time, root string) (txRef string, alreadyAnchored bool, err error)
	// ReadRoot fetches the anchored root, reporting present=false when
	// the slot still holds the zero sentinel.
	ReadRoot(ctx context.Context, trialID uuid.UUID, periodStart time.Time) (root string, dayIndex uint64, present bool, err error)
}

type publisherService struct {
	log    *logger.Logger
	ledger evm.Client
}

func NewPublisherService(log *logger.Logger, ledger evm.Client) PublisherService {
	return &publisherService{
		log:    log.With("service", "PublisherService"),
		ledger: ledger,
	}
}

// TrialKey derives the 32-byte ledger key for a trial: keccak-256 over the
// canonical string form of its id. Must stay stable forever; changing it
// orphans every previously anchored root.
func TrialKey(trialID uuid.UUID) [32]byte {
	var key [32]byte
	copy(key[:], integrity.Keccak256([]byte(trialID.String())))
	return key
}

// DayIndex buckets a period start into the integer day used to address
// ledger entries.
func DayIndex(periodStart time.Time) uint64 {
	return uint64(periodStart.UnixMilli() / msPerDay)
}

func (s *publisherService) Publish(ctx context.Context, trialID uuid.UUID, periodStart time.Time, root string) (string, bool, error) {
	rootWord, err := rootToWord(root)
	if err != nil {
		return "", false, err
	}
	key := TrialKey(trialID)
	day := DayIndex(periodStart)

	existing, err := s.ledger.GetRoot(ctx, key, day)
	if err != nil {
		return "", false, err
	}
	if existing != ([32]byte{}) {
		if existing == rootWord {
			s.log.Info("Root already anchored for this key, skipping publish",
				"trial_id", trialID, "day_index", day)
			return "", true, nil
		}
		return "", false, fmt.Errorf("%w: ledger key (trial %s, day %d) already holds a different root",
			apperrors.ErrExternalLedger, trialID, day)
	}

	txRef, err := s.ledger.AnchorRoot(ctx, key, day, rootWord)
	if err != nil {
		return "", false, err
	}
	return txRef, false, nil
}

func (s *publisherService) ReadRoot(ctx context.Context, trialID uuid.UUID, periodStart time.Time) (string, uint64, bool, error) {
	day := DayIndex(periodStart)
	word, err := s.ledger.GetRoot(ctx, TrialKey(trialID), day)
	if err != nil {
		return "", day, false, err
	}
	if word == ([32]byte{}) {
		return "", day, false, nil
	}
	return "0x" + hex.EncodeToString(word[:]), day, true, nil
}

func rootToWord(root string) ([32]byte, error) {
	var w [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(integrity.NormalizeHash(root), "0x"))
	if err != nil || len(raw) != 32 {
		return w, fmt.Errorf("%w: merkle root %q is not a 32-byte hex value", apperrors.ErrValidation, root)
	}
	copy(w[:], raw)
	return w, nil
}
