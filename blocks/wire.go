package blocks

import (
	"encoding/binary"
	"fmt"
)

// Wire layout: preamble (1 version byte + 1 type byte) + hashables +
// signature (64) + work (8, little-endian). Sidebands are never
// included here; the ledger recomputes them on application and the
// store appends them to these bytes.
const wireVersion = 1

func preamble(t Type) []byte {
	return []byte{wireVersion, byte(t)}
}

// Marshal serializes b into its canonical wire representation.
func Marshal(b Block) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("blocks: marshal: nil block")
	}
	out := make([]byte, 0, 2+160+64+8)
	out = append(out, preamble(b.Type())...)
	out = append(out, b.Hashables()...)
	sig := b.Signature()
	out = append(out, sig[:]...)
	var work [8]byte
	binary.LittleEndian.PutUint64(work[:], uint64(b.Work()))
	out = append(out, work[:]...)
	return out, nil
}

// Unmarshal parses a wire-encoded block. The returned Block's
// concrete type depends on the preamble's type byte.
func Unmarshal(raw []byte) (Block, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("blocks: unmarshal: truncated preamble")
	}
	if raw[0] != wireVersion {
		return nil, fmt.Errorf("blocks: unmarshal: unsupported version %d", raw[0])
	}
	t := Type(raw[1])
	body := raw[2:]

	hashableLen, ok := hashablesLen(t)
	if !ok {
		return nil, fmt.Errorf("blocks: unmarshal: unknown type %d", t)
	}
	want := hashableLen + 64 + 8
	if len(body) != want {
		return nil, fmt.Errorf("blocks: unmarshal: bad length for %s: got %d want %d", t, len(body), want)
	}

	hashables := body[:hashableLen]
	var sig Signature
	copy(sig[:], body[hashableLen:hashableLen+64])
	work := Work(binary.LittleEndian.Uint64(body[hashableLen+64:]))

	switch t {
	case TypeOpen:
		b := &OpenBlock{Sig: sig, Nonce: work}
		copy(b.Source[:], hashables[0:32])
		copy(b.Representative[:], hashables[32:64])
		copy(b.AccountField[:], hashables[64:96])
		return b, nil
	case TypeSend:
		b := &SendBlock{Sig: sig, Nonce: work}
		copy(b.PreviousField[:], hashables[0:32])
		copy(b.Destination[:], hashables[32:64])
		copy(b.Balance[:], hashables[64:80])
		return b, nil
	case TypeReceive:
		b := &ReceiveBlock{Sig: sig, Nonce: work}
		copy(b.PreviousField[:], hashables[0:32])
		copy(b.Source[:], hashables[32:64])
		return b, nil
	case TypeChange:
		b := &ChangeBlock{Sig: sig, Nonce: work}
		copy(b.PreviousField[:], hashables[0:32])
		copy(b.Representative[:], hashables[32:64])
		return b, nil
	case TypeState:
		b := &StateBlock{Sig: sig, Nonce: work}
		copy(b.AccountField[:], hashables[0:32])
		copy(b.PreviousField[:], hashables[32:64])
		copy(b.Representative[:], hashables[64:96])
		copy(b.Balance[:], hashables[96:112])
		copy(b.Link[:], hashables[112:144])
		return b, nil
	default:
		return nil, fmt.Errorf("blocks: unmarshal: unknown type %d", t)
	}
}

func hashablesLen(t Type) (int, bool) {
	switch t {
	case TypeOpen:
		return 96, true
	case TypeSend:
		return 80, true
	case TypeReceive:
		return 64, true
	case TypeChange:
		return 64, true
	case TypeState:
		return 144, true
	default:
		return 0, false
	}
}
