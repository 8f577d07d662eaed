package integrity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
)

// BuildMerkleRoot folds an ordered list of leaf hashes into a single
// keccak-256 root. Adjacent pairs are hashed over their 64-byte
// concatenation; an odd level duplicates its last element; the loop runs
// until one value remains.
//
// Ordering of leaves is a protocol contract: callers must supply a fixed,
// reproducible order (this repo uses ascending visit id everywhere), since
// reordering silently changes the root. Returns a 0x-prefixed hex root.
func BuildMerkleRoot(leaves []string) (string, error) {
	if len(leaves) == 0 {
		return "", fmt.Errorf("%w: cannot build a Merkle tree with no leaves", apperrors.ErrValidation)
	}

	level := make([]string, len(leaves))
	for i, leaf := range leaves {
		level[i] = NormalizeHash(leaf)
	}

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			parent, err := hashPair(left, right)
			if err != nil {
				return "", err
			}
			next = append(next, parent)
		}
		level = next
	}
	return level[0], nil
}

// NormalizeHash lowercases a hex hash and guarantees the 0x prefix, so
// SHA-256 leaf digests and keccak node digests compare consistently.
func NormalizeHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if strings.HasPrefix(h, "0x") {
		return h
	}
	return "0x" + h
}

func hashPair(left, right string) (string, error) {
	leftBytes, err := hexBytes(left)
	if err != nil {
		return "", err
	}
	rightBytes, err := hexBytes(right)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(Keccak256(append(leftBytes, rightBytes...))), nil
}

func hexBytes(h string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed leaf hash %q", apperrors.ErrValidation, h)
	}
	return raw, nil
}

// Keccak256 is the pairwise and key-derivation hash of the anchoring
// protocol (the same digest the anchor contract uses).
func Keccak256(data []byte) []byte {
	d := sha3.NewLegacyKeccak256()
	_, _ = d.Write(data)
	return d.Sum(nil)
}
