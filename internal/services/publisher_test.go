package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
)

func TestTrialKeyStable(t *testing.T) {
	trialID := uuid.New()
	if TrialKey(trialID) != TrialKey(trialID) {
		t.Fatalf("trial key must be deterministic")
	}
	if TrialKey(trialID) == TrialKey(uuid.New()) {
		t.Fatalf("distinct trials must map to distinct keys")
	}
	if TrialKey(trialID) == ([32]byte{}) {
		t.Fatalf("trial key must never be the zero sentinel")
	}
}

func TestDayIndex(t *testing.T) {
	epoch := time.UnixMilli(0).UTC()
	if got := DayIndex(epoch); got != 0 {
		t.Fatalf("epoch day index: want=0 got=%d", got)
	}
	if got := DayIndex(time.UnixMilli(86_400_000).UTC()); got != 1 {
		t.Fatalf("day one: want=1 got=%d", got)
	}
	// 2024-01-01T00:00:00Z is exactly 19723 days after the epoch.
	jan2024 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := DayIndex(jan2024); got != 19723 {
		t.Fatalf("2024-01-01: want=19723 got=%d", got)
	}
	// Any instant within the same day maps to the same index.
	if DayIndex(jan2024.Add(23*time.Hour+59*time.Minute)) != DayIndex(jan2024) {
		t.Fatalf("instants within one day must share an index")
	}
}

func TestPublishAndReadRoot(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	pub := NewPublisherService(testLogger(t), ledger)

	trialID := uuid.New()
	periodStart := time.Now().UTC().Add(-24 * time.Hour)
	root := "0x" + strings.Repeat("ab", 32)

	txRef, alreadyAnchored, err := pub.Publish(ctx, trialID, periodStart, root)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if alreadyAnchored || txRef == "" {
		t.Fatalf("fresh publish: alreadyAnchored=%v txRef=%q", alreadyAnchored, txRef)
	}

	got, day, present, err := pub.ReadRoot(ctx, trialID, periodStart)
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	if !present {
		t.Fatalf("published root must be present")
	}
	if got != root {
		t.Fatalf("round trip: want=%s got=%s", root, got)
	}
	if day != DayIndex(periodStart) {
		t.Fatalf("day index: want=%d got=%d", DayIndex(periodStart), day)
	}
}

func TestPublishRecoversEqualRoot(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	pub := NewPublisherService(testLogger(t), ledger)

	trialID := uuid.New()
	periodStart := time.Now().UTC()
	root := "0x" + strings.Repeat("cd", 32)

	if _, _, err := pub.Publish(ctx, trialID, periodStart, root); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_, alreadyAnchored, err := pub.Publish(ctx, trialID, periodStart, root)
	if err != nil {
		t.Fatalf("repeat Publish: %v", err)
	}
	if !alreadyAnchored {
		t.Fatalf("publishing the identical root again must report alreadyAnchored")
	}
	if ledger.writes != 1 {
		t.Fatalf("identical root must not be rewritten, got %d writes", ledger.writes)
	}
}

func TestPublishRefusesDifferentRootForOccupiedKey(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	pub := NewPublisherService(testLogger(t), ledger)

	trialID := uuid.New()
	periodStart := time.Now().UTC()

	if _, _, err := pub.Publish(ctx, trialID, periodStart, "0x"+strings.Repeat("11", 32)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_, _, err := pub.Publish(ctx, trialID, periodStart, "0x"+strings.Repeat("22", 32))
	if !errors.Is(err, apperrors.ErrExternalLedger) {
		t.Fatalf("occupied key with different root: expected ErrExternalLedger, got %v", err)
	}
	if ledger.writes != 1 {
		t.Fatalf("refused publish must not write, got %d writes", ledger.writes)
	}
}

func TestPublishRejectsMalformedRoot(t *testing.T) {
	pub := NewPublisherService(testLogger(t), newFakeLedger())
	_, _, err := pub.Publish(context.Background(), uuid.New(), time.Now().UTC(), "0x1234")
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation for short root, got %v", err)
	}
}

func TestReadRootAbsent(t *testing.T) {
	pub := NewPublisherService(testLogger(t), newFakeLedger())
	root, _, present, err := pub.ReadRoot(context.Background(), uuid.New(), time.Now().UTC())
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	if present || root != "" {
		t.Fatalf("empty slot must report absent, got present=%v root=%q", present, root)
	}
}
