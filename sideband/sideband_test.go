package sideband

import (
	"testing"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

func TestRoundTripAllTypes(t *testing.T) {
	s := Sideband{
		Account:   blocks.Account{1},
		Successor: blocks.Hash{2},
		Balance:   blocks.AmountFromUint64(555),
		Height:    7,
		Timestamp: 1690000000,
	}
	for _, typ := range []blocks.Type{blocks.TypeOpen, blocks.TypeSend, blocks.TypeReceive, blocks.TypeChange} {
		raw := Encode(typ, s)
		got, err := Decode(typ, raw)
		if err != nil {
			t.Fatalf("%s: decode: %v", typ, err)
		}
		if got.Account != s.Account || got.Successor != s.Successor || got.Balance != s.Balance ||
			got.Height != s.Height || got.Timestamp != s.Timestamp {
			t.Fatalf("%s: round trip mismatch: got %+v want %+v", typ, got, s)
		}
	}
}

func TestRoundTripStateWithDetails(t *testing.T) {
	s := Sideband{
		Account:   blocks.Account{9},
		Successor: blocks.Hash{8},
		Balance:   blocks.AmountFromUint64(1),
		Height:    3,
		Timestamp: 42,
		Details:   blocks.Details{Epoch: 2, IsEpoch: true},
	}
	raw := Encode(blocks.TypeState, s)
	got, err := Decode(blocks.TypeState, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != s {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, s)
	}
}

func TestAppendSplitRoundTrip(t *testing.T) {
	blockBytes := []byte{0xde, 0xad, 0xbe, 0xef}
	s := Sideband{Height: 5, Timestamp: 100}
	stored := Append(blockBytes, blocks.TypeSend, s)

	gotBlock, gotSb, err := Split(blocks.TypeSend, stored)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if string(gotBlock) != string(blockBytes) {
		t.Fatalf("block bytes mismatch after split")
	}
	if gotSb.Height != 5 || gotSb.Timestamp != 100 {
		t.Fatalf("sideband mismatch after split: %+v", gotSb)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	if _, err := Decode(blocks.TypeOpen, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated sideband")
	}
}
