package store

import "net/netip"

// PutPeer records a peer's presence, keyed by endpointKey.
func (w *WriteTx) PutPeer(addr netip.Addr, port uint16) error {
	b, err := w.bucket(TablePeers)
	if err != nil {
		return err
	}
	return b.Put(endpointKey(addr, port), []byte{1})
}

// DelPeer removes a peer entry.
func (w *WriteTx) DelPeer(addr netip.Addr, port uint16) error {
	b, err := w.bucket(TablePeers)
	if err != nil {
		return err
	}
	return b.Delete(endpointKey(addr, port))
}

// ExistsPeer reports whether a peer entry is present.
func (r *ReadTx) ExistsPeer(addr netip.Addr, port uint16) bool {
	return r.bucket(bucketPeers).Get(endpointKey(addr, port)) != nil
}

// ForEachPeer iterates every stored peer.
func (r *ReadTx) ForEachPeer(fn func(addr netip.Addr, port uint16) error) error {
	return r.bucket(bucketPeers).ForEach(func(k, _ []byte) error {
		addr, port, err := splitEndpointKey(k)
		if err != nil {
			return err
		}
		return fn(addr, port)
	})
}

// ClearPeers drops every peer entry; run at startup so stale endpoints
// from a previous run never feed the (external) connection layer.
func (w *WriteTx) ClearPeers() error {
	b, err := w.bucket(TablePeers)
	if err != nil {
		return err
	}
	c := b.Cursor()
	var keys [][]byte
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
