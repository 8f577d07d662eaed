// Package integrity implements the cryptographic primitives of the
// tamper-evidence core: canonical leaf hashing of locked visit values and
// Merkle aggregation of leaf hashes.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"

	types "github.com/veridata/trialbridge-backend/internal/domain"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
)

// canonicalValue is the fixed wire shape of one field value inside the
// hashed record. Absent variants are serialized as explicit JSON nulls and
// numbers are canonicalized to their shortest decimal string so the same
// inputs always produce byte-identical JSON.
type canonicalValue struct {
	FieldID string  `json:"field_id"`
	Type    string  `json:"type"`
	Text    *string `json:"text"`
	Number  *string `json:"number"`
	Boolean *bool   `json:"boolean"`
}

type canonicalLeaf struct {
	PreviousHash *string          `json:"previous_hash"`
	VisitID      string           `json:"visit_id"`
	Values       []canonicalValue `json:"values"`
}

// HashLeaf computes the content hash of one locked visit: the canonical
// record over (previous_hash, visit_id, values sorted by field id),
// serialized with a fixed key order and hashed with SHA-256. Pure function;
// the output is a 64-char lowercase hex digest.
//
// When defs is non-empty it is treated as the trial's CRF schema: every
// value must name a declared field, its variant must match the declared
// type, and every required field must be present.
func HashLeaf(visitID uuid.UUID, previousHash *string, values []types.FieldValueInput, defs []types.TrialFieldDef) (string, error) {
	canonical, err := canonicalize(visitID, previousHash, values, defs)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("serialize canonical leaf: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalize(visitID uuid.UUID, previousHash *string, values []types.FieldValueInput, defs []types.TrialFieldDef) (*canonicalLeaf, error) {
	defByField := make(map[string]types.TrialFieldDef, len(defs))
	for _, d := range defs {
		defByField[d.FieldID] = d
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]canonicalValue, 0, len(values))
	for _, v := range values {
		if v.FieldID == "" {
			return nil, fmt.Errorf("%w: field value without field id", apperrors.ErrValidation)
		}
		if _, dup := seen[v.FieldID]; dup {
			return nil, fmt.Errorf("%w: duplicate value for field %q", apperrors.ErrValidation, v.FieldID)
		}
		seen[v.FieldID] = struct{}{}

		variant, err := variantOf(v)
		if err != nil {
			return nil, err
		}
		if len(defs) > 0 {
			def, ok := defByField[v.FieldID]
			if !ok {
				return nil, fmt.Errorf("%w: field %q is not declared in the trial CRF", apperrors.ErrValidation, v.FieldID)
			}
			if variant != def.ValueType {
				return nil, fmt.Errorf("%w: field %q declared as %s, got %s", apperrors.ErrValidation, v.FieldID, def.ValueType, variant)
			}
		}

		cv := canonicalValue{FieldID: v.FieldID, Type: string(variant)}
		switch variant {
		case types.FieldTypeText:
			cv.Text = v.Text
		case types.FieldTypeNumber:
			n, err := canonicalNumber(*v.Number)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", apperrors.ErrValidation, v.FieldID, err)
			}
			cv.Number = &n
		case types.FieldTypeBoolean:
			cv.Boolean = v.Boolean
		}
		out = append(out, cv)
	}

	for _, d := range defs {
		if !d.Required {
			continue
		}
		if _, ok := seen[d.FieldID]; !ok {
			return nil, fmt.Errorf("%w: required field %q is missing", apperrors.ErrValidation, d.FieldID)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })

	return &canonicalLeaf{
		PreviousHash: previousHash,
		VisitID:      visitID.String(),
		Values:       out,
	}, nil
}

func variantOf(v types.FieldValueInput) (types.FieldValueType, error) {
	set := 0
	var variant types.FieldValueType
	if v.Text != nil {
		set++
		variant = types.FieldTypeText
	}
	if v.Number != nil {
		set++
		variant = types.FieldTypeNumber
	}
	if v.Boolean != nil {
		set++
		variant = types.FieldTypeBoolean
	}
	if set != 1 {
		return "", fmt.Errorf("%w: field %q must carry exactly one value variant, got %d", apperrors.ErrValidation, v.FieldID, set)
	}
	return variant, nil
}

func canonicalNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number is not finite")
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
