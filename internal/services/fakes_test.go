package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veridata/trialbridge-backend/internal/domain"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// In-memory stand-ins for the repos, the run lock and the external ledger,
// mirroring the storage semantics the services rely on: uniqueness guards,
// conditional updates and the write-once ledger slot.

type fakeLeafRepo struct {
	mu     sync.Mutex
	leaves []*types.VisitLeaf
}

func (r *fakeLeafRepo) Create(ctx context.Context, tx *gorm.DB, leaf *types.VisitLeaf) (*types.VisitLeaf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.leaves {
		if existing.VisitID == leaf.VisitID {
			return nil, fmt.Errorf("%w: duplicate visit", apperrors.ErrConcurrency)
		}
		if existing.PatientID == leaf.PatientID && existing.Seq == leaf.Seq {
			return nil, fmt.Errorf("%w: duplicate chain position", apperrors.ErrConcurrency)
		}
	}
	if leaf.CreatedAt.IsZero() {
		leaf.CreatedAt = time.Now().UTC()
	}
	r.leaves = append(r.leaves, leaf)
	return leaf, nil
}

func (r *fakeLeafRepo) GetByVisitID(ctx context.Context, tx *gorm.DB, visitID uuid.UUID) (*types.VisitLeaf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, leaf := range r.leaves {
		if leaf.VisitID == visitID {
			return leaf, nil
		}
	}
	return nil, nil
}

func (r *fakeLeafRepo) LatestForPatient(ctx context.Context, tx *gorm.DB, patientID uuid.UUID) (*types.VisitLeaf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.VisitLeaf
	for _, leaf := range r.leaves {
		if leaf.PatientID == patientID && (latest == nil || leaf.Seq > latest.Seq) {
			latest = leaf
		}
	}
	return latest, nil
}

func (r *fakeLeafRepo) ListForPatient(ctx context.Context, tx *gorm.DB, patientID uuid.UUID) ([]*types.VisitLeaf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.VisitLeaf
	for _, leaf := range r.leaves {
		if leaf.PatientID == patientID {
			out = append(out, leaf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *fakeLeafRepo) ListUnanchored(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]*types.VisitLeaf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.VisitLeaf
	for _, leaf := range r.leaves {
		if leaf.AnchorID == nil && !leaf.CreatedAt.Before(from) && !leaf.CreatedAt.After(to) {
			out = append(out, leaf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitID.String() < out[j].VisitID.String() })
	return out, nil
}

func (r *fakeLeafRepo) ListByAnchorID(ctx context.Context, tx *gorm.DB, anchorID uuid.UUID) ([]*types.VisitLeaf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.VisitLeaf
	for _, leaf := range r.leaves {
		if leaf.AnchorID != nil && *leaf.AnchorID == anchorID {
			out = append(out, leaf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitID.String() < out[j].VisitID.String() })
	return out, nil
}

func (r *fakeLeafRepo) LinkToAnchor(ctx context.Context, tx *gorm.DB, leafIDs []uuid.UUID, anchorID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	linked := 0
	for _, id := range leafIDs {
		for _, leaf := range r.leaves {
			if leaf.ID == id && leaf.AnchorID == nil {
				a := anchorID
				leaf.AnchorID = &a
				linked++
			}
		}
	}
	if linked != len(leafIDs) {
		return fmt.Errorf("%w: linked %d of %d", apperrors.ErrConcurrency, linked, len(leafIDs))
	}
	return nil
}

type fakeValueRepo struct {
	mu     sync.Mutex
	values []*types.VisitFieldValue
}

func (r *fakeValueRepo) Create(ctx context.Context, tx *gorm.DB, values []*types.VisitFieldValue) ([]*types.VisitFieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, values...)
	return values, nil
}

func (r *fakeValueRepo) ListByVisitID(ctx context.Context, tx *gorm.DB, visitID uuid.UUID) ([]*types.VisitFieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.VisitFieldValue
	for _, v := range r.values {
		if v.VisitID == visitID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })
	return out, nil
}

type fakeAnchorRepo struct {
	mu      sync.Mutex
	anchors []*types.MerkleAnchor
}

func (r *fakeAnchorRepo) Create(ctx context.Context, tx *gorm.DB, anchor *types.MerkleAnchor) (*types.MerkleAnchor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if anchor.Status == "" {
		anchor.Status = types.AnchorStatusCreated
	}
	if anchor.CreatedAt.IsZero() {
		anchor.CreatedAt = time.Now().UTC()
	}
	r.anchors = append(r.anchors, anchor)
	return anchor, nil
}

func (r *fakeAnchorRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MerkleAnchor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.anchors {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAnchorRepo) MarkAnchored(ctx context.Context, tx *gorm.DB, id uuid.UUID, txRef string, anchoredAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.anchors {
		if a.ID == id {
			if a.Status != types.AnchorStatusCreated {
				return fmt.Errorf("%w: not in CREATED state", apperrors.ErrConcurrency)
			}
			a.Status = types.AnchorStatusAnchored
			a.TxRef = &txRef
			at := anchoredAt
			a.AnchoredAt = &at
			return nil
		}
	}
	return fmt.Errorf("%w: anchor %s", apperrors.ErrNotFound, id)
}

func (r *fakeAnchorRepo) ListByTrial(ctx context.Context, tx *gorm.DB, trialID uuid.UUID) ([]*types.MerkleAnchor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.MerkleAnchor
	for _, a := range r.anchors {
		if a.TrialID == trialID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeFieldDefRepo struct {
	mu   sync.Mutex
	defs []*types.TrialFieldDef
}

func (r *fakeFieldDefRepo) Upsert(ctx context.Context, tx *gorm.DB, defs []*types.TrialFieldDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		replaced := false
		for i, existing := range r.defs {
			if existing.TrialID == def.TrialID && existing.FieldID == def.FieldID {
				r.defs[i] = def
				replaced = true
				break
			}
		}
		if !replaced {
			r.defs = append(r.defs, def)
		}
	}
	return nil
}

func (r *fakeFieldDefRepo) ListByTrial(ctx context.Context, tx *gorm.DB, trialID uuid.UUID) ([]*types.TrialFieldDef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.TrialFieldDef
	for _, d := range r.defs {
		if d.TrialID == trialID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })
	return out, nil
}

type fakeRunLock struct {
	mu       sync.Mutex
	held     bool
	acquires int
}

func (l *fakeRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeRunLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

func (l *fakeRunLock) Close() error { return nil }

// fakeLedger is a write-once (trial key, day) keyed map with optional
// per-key write failures.
type fakeLedger struct {
	mu       sync.Mutex
	roots    map[string][32]byte
	failKeys map[[32]byte]bool
	writes   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		roots:    make(map[string][32]byte),
		failKeys: make(map[[32]byte]bool),
	}
}

func ledgerKey(trialKey [32]byte, dayIndex uint64) string {
	return fmt.Sprintf("%s:%d", hex.EncodeToString(trialKey[:]), dayIndex)
}

func (l *fakeLedger) AnchorRoot(ctx context.Context, trialKey [32]byte, dayIndex uint64, root [32]byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failKeys[trialKey] {
		return "", fmt.Errorf("%w: simulated publish failure", apperrors.ErrExternalLedger)
	}
	key := ledgerKey(trialKey, dayIndex)
	if existing, ok := l.roots[key]; ok && existing != root {
		return "", fmt.Errorf("%w: key already anchored", apperrors.ErrExternalLedger)
	}
	l.roots[key] = root
	l.writes++
	return fmt.Sprintf("0xtx%d", l.writes), nil
}

func (l *fakeLedger) GetRoot(ctx context.Context, trialKey [32]byte, dayIndex uint64) ([32]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roots[ledgerKey(trialKey, dayIndex)], nil
}

func strPtr(s string) *string   { return &s }
func numPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool      { return &b }
