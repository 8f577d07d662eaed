package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veridata/trialbridge-backend/internal/data/repos/testutil"
	types "github.com/veridata/trialbridge-backend/internal/domain"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
)

func testAnchor(trialID uuid.UUID) *types.MerkleAnchor {
	end := time.Now().UTC()
	return &types.MerkleAnchor{
		ID:          uuid.New(),
		TrialID:     trialID,
		MerkleRoot:  "0x" + strings.Repeat("ab", 32),
		PeriodStart: end.Add(-24 * time.Hour),
		PeriodEnd:   end,
	}
}

func TestMerkleAnchorCreateDefaultsStatus(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewMerkleAnchorRepo(nil, testutil.Logger(t))

	anchor, err := repo.Create(ctx, tx, testAnchor(uuid.New()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if anchor.Status != types.AnchorStatusCreated {
		t.Fatalf("new anchor status: want=%s got=%s", types.AnchorStatusCreated, anchor.Status)
	}

	got, err := repo.GetByID(ctx, tx, anchor.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.TrialID != anchor.TrialID {
		t.Fatalf("round trip: %v", got)
	}
	if got.TxRef != nil || got.AnchoredAt != nil {
		t.Fatalf("pending anchor must have no tx reference yet")
	}

	missing, err := repo.GetByID(ctx, tx, uuid.New())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if missing != nil {
		t.Fatalf("unknown anchor must yield nil")
	}
}

func TestMerkleAnchorMarkAnchoredOnce(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewMerkleAnchorRepo(nil, testutil.Logger(t))

	anchor, err := repo.Create(ctx, tx, testAnchor(uuid.New()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	at := time.Now().UTC()
	if err := repo.MarkAnchored(ctx, tx, anchor.ID, "0xfeed", at); err != nil {
		t.Fatalf("MarkAnchored: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, anchor.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.AnchorStatusAnchored {
		t.Fatalf("status: want=%s got=%s", types.AnchorStatusAnchored, got.Status)
	}
	if got.TxRef == nil || *got.TxRef != "0xfeed" {
		t.Fatalf("tx reference not recorded: %v", got.TxRef)
	}
	if got.AnchoredAt == nil {
		t.Fatalf("anchoring timestamp not recorded")
	}

	// The transition is one-way and single-shot.
	if err := repo.MarkAnchored(ctx, tx, anchor.ID, "0xbeef", at); !errors.Is(err, apperrors.ErrConcurrency) {
		t.Fatalf("second transition: expected ErrConcurrency, got %v", err)
	}
	if err := repo.MarkAnchored(ctx, tx, uuid.New(), "0xbeef", at); !errors.Is(err, apperrors.ErrConcurrency) {
		t.Fatalf("unknown anchor transition: expected ErrConcurrency, got %v", err)
	}
}

func TestMerkleAnchorListByTrial(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewMerkleAnchorRepo(nil, testutil.Logger(t))

	trialID := uuid.New()
	older := testAnchor(trialID)
	older.PeriodStart = older.PeriodStart.Add(-48 * time.Hour)
	older.PeriodEnd = older.PeriodEnd.Add(-48 * time.Hour)
	newer := testAnchor(trialID)
	for _, a := range []*types.MerkleAnchor{older, newer} {
		if _, err := repo.Create(ctx, tx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := repo.Create(ctx, tx, testAnchor(uuid.New())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	anchors, err := repo.ListByTrial(ctx, tx, trialID)
	if err != nil {
		t.Fatalf("ListByTrial: %v", err)
	}
	if len(anchors) != 2 {
		t.Fatalf("anchors for trial: want=2 got=%d", len(anchors))
	}
	if anchors[0].ID != newer.ID {
		t.Fatalf("anchors must list newest period first")
	}
}
