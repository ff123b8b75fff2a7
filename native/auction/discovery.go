package auction

import (
	"encoding/hex"
	"sort"
)

// Ref identifies an auction in the discovery index and records which engine
// owns it.
type Ref struct {
	ID        [32]byte
	Community bool
}

// PairKey derives an order-independent lookup key for an asset pair.
func PairKey(assetA, assetB [20]byte) string {
	a := hex.EncodeToString(assetA[:])
	b := hex.EncodeToString(assetB[:])
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// DiscoveryIndex maintains secondary lookups over live auctions so takers can
// enumerate venues by pool, token, or pair without scanning global state. The
// index is maintained atomically with auction writes.
type DiscoveryIndex struct {
	byPool  map[string]map[[32]byte]Ref
	byToken map[[20]byte]map[[32]byte]Ref
	byPair  map[string]map[[32]byte]Ref
	global  map[[32]byte]Ref
}

// NewDiscoveryIndex returns an empty index.
func NewDiscoveryIndex() *DiscoveryIndex {
	return &DiscoveryIndex{
		byPool:  make(map[string]map[[32]byte]Ref),
		byToken: make(map[[20]byte]map[[32]byte]Ref),
		byPair:  make(map[string]map[[32]byte]Ref),
		global:  make(map[[32]byte]Ref),
	}
}

// Add registers an auction under every dimension it is discoverable by.
// Re-adding an existing reference is a no-op.
func (d *DiscoveryIndex) Add(ref Ref, poolA, poolB string, assetA, assetB [20]byte) {
	d.global[ref.ID] = ref
	addTo := func(m map[[32]byte]Ref) map[[32]byte]Ref {
		if m == nil {
			m = make(map[[32]byte]Ref)
		}
		m[ref.ID] = ref
		return m
	}
	d.byPool[poolA] = addTo(d.byPool[poolA])
	d.byPool[poolB] = addTo(d.byPool[poolB])
	d.byToken[assetA] = addTo(d.byToken[assetA])
	d.byToken[assetB] = addTo(d.byToken[assetB])
	key := PairKey(assetA, assetB)
	d.byPair[key] = addTo(d.byPair[key])
}

// Remove drops an auction from every dimension. Removing an unknown reference
// is a no-op.
func (d *DiscoveryIndex) Remove(id [32]byte, poolA, poolB string, assetA, assetB [20]byte) {
	delete(d.global, id)
	dropFrom := func(m map[[32]byte]Ref) {
		if m != nil {
			delete(m, id)
		}
	}
	dropFrom(d.byPool[poolA])
	dropFrom(d.byPool[poolB])
	dropFrom(d.byToken[assetA])
	dropFrom(d.byToken[assetB])
	dropFrom(d.byPair[PairKey(assetA, assetB)])
}

// ByPool lists auctions drawing liquidity from the pool, skipping the first
// offset matches. A non-positive limit returns everything past the offset.
func (d *DiscoveryIndex) ByPool(poolID string, offset, limit int) []Ref {
	return collect(d.byPool[poolID], offset, limit)
}

// ByToken lists auctions trading the asset on either side.
func (d *DiscoveryIndex) ByToken(asset [20]byte, offset, limit int) []Ref {
	return collect(d.byToken[asset], offset, limit)
}

// ByPair lists auctions trading the asset pair in either orientation.
func (d *DiscoveryIndex) ByPair(assetA, assetB [20]byte, offset, limit int) []Ref {
	return collect(d.byPair[PairKey(assetA, assetB)], offset, limit)
}

// Global lists every indexed auction.
func (d *DiscoveryIndex) Global(offset, limit int) []Ref {
	return collect(d.global, offset, limit)
}

func collect(m map[[32]byte]Ref, offset, limit int) []Ref {
	if len(m) == 0 {
		return nil
	}
	refs := make([]Ref, 0, len(m))
	for _, ref := range m {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return hex.EncodeToString(refs[i].ID[:]) < hex.EncodeToString(refs[j].ID[:])
	})
	if offset > 0 {
		if offset >= len(refs) {
			return nil
		}
		refs = refs[offset:]
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}
