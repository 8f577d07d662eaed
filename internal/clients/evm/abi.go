package evm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/veridata/trialbridge-backend/internal/integrity"
	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
)

// Minimal ABI surface of the anchor contract:
//
//	function anchorRoot(bytes32 trialKey, uint256 day, bytes32 merkleRoot)
//	function getRoot(bytes32 trialKey, uint256 day) view returns (bytes32)
//
// Both take only 32-byte static words, so calldata is packed by hand: the
// 4-byte selector followed by one word per argument.

func selector(signature string) []byte {
	return integrity.Keccak256([]byte(signature))[:4]
}

func uint64Word(v uint64) [32]byte {
	var w [32]byte
	for i := 0; i < 8; i++ {
		w[31-i] = byte(v >> (8 * i))
	}
	return w
}

func encodeCall(signature string, words ...[32]byte) string {
	data := make([]byte, 0, 4+32*len(words))
	data = append(data, selector(signature)...)
	for _, w := range words {
		data = append(data, w[:]...)
	}
	return "0x" + hex.EncodeToString(data)
}

func decodeWord(result string) ([32]byte, error) {
	var w [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(result), "0x"))
	if err != nil {
		return w, fmt.Errorf("%w: malformed ledger response %q", apperrors.ErrExternalLedger, result)
	}
	if len(raw) != 32 {
		return w, fmt.Errorf("%w: ledger response is %d bytes, want 32", apperrors.ErrExternalLedger, len(raw))
	}
	copy(w[:], raw)
	return w, nil
}
