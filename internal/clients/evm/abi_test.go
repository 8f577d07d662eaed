package evm

import (
	"strings"
	"testing"
)

func TestUint64Word(t *testing.T) {
	w := uint64Word(1)
	if w[31] != 1 {
		t.Fatalf("low byte: want=1 got=%d", w[31])
	}
	for i := 0; i < 24; i++ {
		if w[i] != 0 {
			t.Fatalf("high bytes must be zero, byte %d is %d", i, w[i])
		}
	}

	day := uint64Word(20_000)
	if day[31] != 0x20 || day[30] != 0x4e {
		t.Fatalf("uint64Word(20000): got %x", day[28:])
	}
}

func TestEncodeCallLayout(t *testing.T) {
	var key [32]byte
	key[0] = 0xab
	data := encodeCall("getRoot(bytes32,uint256)", key, uint64Word(7))

	// 0x + 4-byte selector + two 32-byte words.
	if len(data) != 2+8+64+64 {
		t.Fatalf("calldata length: want=%d got=%d", 2+8+64+64, len(data))
	}
	if !strings.HasPrefix(data, "0x") {
		t.Fatalf("calldata must be 0x-prefixed: %q", data)
	}
	if data[10:12] != "ab" {
		t.Fatalf("first argument word misplaced: %q", data[10:12])
	}
	if data[len(data)-1] != '7' {
		t.Fatalf("day index word misplaced: %q", data[len(data)-2:])
	}
}

func TestSelectorDiffersPerSignature(t *testing.T) {
	a := selector("anchorRoot(bytes32,uint256,bytes32)")
	b := selector("getRoot(bytes32,uint256)")
	if len(a) != 4 || len(b) != 4 {
		t.Fatalf("selectors must be 4 bytes")
	}
	if string(a) == string(b) {
		t.Fatalf("distinct signatures produced the same selector")
	}
}

func TestDecodeWord(t *testing.T) {
	w, err := decodeWord("0x" + strings.Repeat("00", 31) + "2a")
	if err != nil {
		t.Fatalf("decodeWord: %v", err)
	}
	if w[31] != 0x2a {
		t.Fatalf("decoded word low byte: want=0x2a got=%x", w[31])
	}

	if _, err := decodeWord("0x1234"); err == nil {
		t.Fatalf("expected error for short word")
	}
	if _, err := decodeWord("0xzz"); err == nil {
		t.Fatalf("expected error for non-hex word")
	}
}
