// Package domain holds the persisted records and value types of the
// integrity core: per-visit hash-chain leaves, their canonical field
// values, periodic Merkle anchors and the CRF field schema used to
// validate values before hashing.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type FieldValueType string

const (
	FieldTypeText    FieldValueType = "text"
	FieldTypeNumber  FieldValueType = "number"
	FieldTypeBoolean FieldValueType = "boolean"
)

const (
	AnchorStatusCreated  = "CREATED"
	AnchorStatusAnchored = "ANCHORED"
)

type VerificationStatus string

const (
	VerificationVerified    VerificationStatus = "verified"
	VerificationTampered    VerificationStatus = "tampered"
	VerificationNotFound    VerificationStatus = "not_found"
	VerificationNotAnchored VerificationStatus = "not_anchored"
)

// Root-comparison mismatch labels reported by anchor verification.
const (
	MismatchDBVsRecomputed    = "db_vs_recomputed"
	MismatchRecomputedVsChain = "recomputed_vs_chain"
	MismatchDBVsChain         = "db_vs_chain"
)

// VisitLeaf is one node of a per-patient hash chain. Created exactly once
// when the data-entry collaborator locks a visit; never mutated afterwards
// except to set AnchorID when the leaf is included in an anchor.
//
// Seq is the 1-based position in the patient's chain. The unique
// (patient_id, seq) index is the optimistic-insert guard: two concurrent
// appends that both read the same latest leaf compute the same Seq and the
// second insert fails instead of silently forking the chain.
type VisitLeaf struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VisitID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"visit_id"`
	TrialID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"trial_id"`
	PatientID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_visit_leaf_patient_seq" json:"patient_id"`
	Seq          int        `gorm:"not null;uniqueIndex:idx_visit_leaf_patient_seq" json:"seq"`
	Hash         string     `gorm:"column:hash;not null" json:"hash"`
	PreviousHash *string    `gorm:"column:previous_hash" json:"previous_hash,omitempty"`
	AnchorID     *uuid.UUID `gorm:"type:uuid;index" json:"anchor_id,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:now();index" json:"created_at"`
}

func (VisitLeaf) TableName() string { return "visit_leaf" }

// VisitFieldValue is the canonical copy of one typed field value as it was
// hashed, kept so verification can recompute the leaf hash later. Exactly
// one of the three value columns is non-null.
type VisitFieldValue struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VisitID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_visit_field_value_visit_field" json:"visit_id"`
	FieldID      string    `gorm:"column:field_id;not null;uniqueIndex:idx_visit_field_value_visit_field" json:"field_id"`
	ValueText    *string   `gorm:"column:value_text" json:"value_text,omitempty"`
	ValueNumber  *float64  `gorm:"column:value_number" json:"value_number,omitempty"`
	ValueBoolean *bool     `gorm:"column:value_boolean" json:"value_boolean,omitempty"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (VisitFieldValue) TableName() string { return "visit_field_value" }

// MerkleAnchor is one periodic aggregation of a trial's leaf hashes and its
// external commitment. Lifecycle: CREATED (root computed, no external tx)
// then ANCHORED (external tx confirmed); never backward. A CREATED row
// stuck without a tx is a pending failure awaiting operator action.
type MerkleAnchor struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TrialID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"trial_id"`
	MerkleRoot  string     `gorm:"column:merkle_root;not null" json:"merkle_root"`
	PeriodStart time.Time  `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time  `gorm:"not null" json:"period_end"`
	Status      string     `gorm:"column:status;not null;default:'CREATED';index" json:"status"`
	TxRef       *string    `gorm:"column:tx_ref" json:"tx_ref,omitempty"`
	AnchoredAt  *time.Time `gorm:"column:anchored_at" json:"anchored_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (MerkleAnchor) TableName() string { return "merkle_anchor" }

// TrialFieldDef is one CRF (case report form) field declaration for a
// trial: its identifier, declared value type and whether a locked visit
// must carry it.
type TrialFieldDef struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TrialID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_trial_field_def_trial_field" json:"trial_id"`
	FieldID   string         `gorm:"column:field_id;not null;uniqueIndex:idx_trial_field_def_trial_field" json:"field_id"`
	ValueType FieldValueType `gorm:"column:value_type;not null" json:"value_type"`
	Required  bool           `gorm:"column:required;not null;default:false" json:"required"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (TrialFieldDef) TableName() string { return "trial_field_def" }

// FieldValueInput is one tagged value supplied by the data-entry
// collaborator for a newly locked visit. Exactly one of Text, Number or
// Boolean must be set, matching the field's declared type.
type FieldValueInput struct {
	FieldID string   `json:"field_id"`
	Text    *string  `json:"value_text,omitempty"`
	Number  *float64 `json:"value_number,omitempty"`
	Boolean *bool    `json:"value_boolean,omitempty"`
}
