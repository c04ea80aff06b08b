package store

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// Composite key layouts:
//   pending_key   = destination_account(32) || source_hash(32)        -- 64 bytes
//   endpoint_key  = ipv6_bytes(16, network order) || port(2, host order) -- 18 bytes
//   unchecked_key = dependency_hash(32) || block_hash(32)              -- 64 bytes

func pendingKey(destination blocks.Account, source blocks.Hash) []byte {
	key := make([]byte, 64)
	copy(key[0:32], destination[:])
	copy(key[32:64], source[:])
	return key
}

func splitPendingKey(key []byte) (destination blocks.Account, source blocks.Hash, err error) {
	if len(key) != 64 {
		return destination, source, fmt.Errorf("store: bad pending key length %d", len(key))
	}
	copy(destination[:], key[0:32])
	copy(source[:], key[32:64])
	return destination, source, nil
}

// endpointKey encodes addr/port. The address is stored
// in network byte order (the natural order of a 16-byte IPv6 form);
// the port is stored in host byte order.
func endpointKey(addr netip.Addr, port uint16) []byte {
	key := make([]byte, 18)
	a16 := addr.As16()
	copy(key[0:16], a16[:])
	// Host byte order: native endianness. We fix little-endian as the
	// host order for this codebase, matching blocks.Work's wire
	// encoding (also little-endian) and making the layout
	// reproducible across runs regardless of runtime.GOARCH, since Go
	// binaries here only ever target little-endian platforms.
	binary.LittleEndian.PutUint16(key[16:18], port)
	return key
}

func splitEndpointKey(key []byte) (addr netip.Addr, port uint16, err error) {
	if len(key) != 18 {
		return netip.Addr{}, 0, fmt.Errorf("store: bad endpoint key length %d", len(key))
	}
	var a16 [16]byte
	copy(a16[:], key[0:16])
	port = binary.LittleEndian.Uint16(key[16:18])
	return netip.AddrFrom16(a16).Unmap(), port, nil
}

func uncheckedKey(dependency, blockHash blocks.Hash) []byte {
	key := make([]byte, 64)
	copy(key[0:32], dependency[:])
	copy(key[32:64], blockHash[:])
	return key
}

func splitUncheckedKey(key []byte) (dependency, blockHash blocks.Hash, err error) {
	if len(key) != 64 {
		return dependency, blockHash, fmt.Errorf("store: bad unchecked key length %d", len(key))
	}
	copy(dependency[:], key[0:32])
	copy(blockHash[:], key[32:64])
	return dependency, blockHash, nil
}

// uncheckedPrefix returns the half-open key-range prefix for all
// unchecked entries waiting on dependency.
func uncheckedPrefix(dependency blocks.Hash) []byte {
	return dependency[:]
}

// pendingPrefix returns the half-open key-range prefix for all pending
// entries destined for account.
func pendingPrefix(account blocks.Account) []byte {
	return account[:]
}

func timestampKey(ts uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, ts)
	return key
}
