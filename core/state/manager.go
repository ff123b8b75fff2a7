// Package state provides the in-memory ledger container shared by every
// product engine. All reads hand out deep copies and all writes replace the
// stored record, so an aborted operation never leaks partial mutations.
package state

import (
	"sync"

	"fluxpool/native/auction"
	"fluxpool/native/pool"
)

// Manager is the single arena holding pools, positions, encumbrances and
// auctions. It satisfies the persistence contracts of both the pool and
// auction engines.
type Manager struct {
	mu sync.RWMutex

	pools        map[string]*pool.Pool
	positions    map[string]map[pool.PositionKey]*pool.PositionAccount
	encumbrances map[string]map[pool.PositionKey]*pool.Encumbrance

	auctions    map[[32]byte]*auction.Auction
	communities map[[32]byte]*auction.CommunityAuction
	makers      map[[32]byte]map[pool.PositionKey]*auction.MakerPosition
}

// NewManager returns an empty ledger container.
func NewManager() *Manager {
	return &Manager{
		pools:        make(map[string]*pool.Pool),
		positions:    make(map[string]map[pool.PositionKey]*pool.PositionAccount),
		encumbrances: make(map[string]map[pool.PositionKey]*pool.Encumbrance),
		auctions:     make(map[[32]byte]*auction.Auction),
		communities:  make(map[[32]byte]*auction.CommunityAuction),
		makers:       make(map[[32]byte]map[pool.PositionKey]*auction.MakerPosition),
	}
}

// GetPool returns a copy of the pool record, or nil if unknown.
func (m *Manager) GetPool(poolID string) (*pool.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[poolID]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// PutPool stores a copy of the pool record.
func (m *Manager) PutPool(poolID string, p *pool.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[poolID] = p.Clone()
	return nil
}

// GetPosition returns a copy of the position account, or nil if unknown.
func (m *Manager) GetPosition(poolID string, key pool.PositionKey) (*pool.PositionAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.positions[poolID][key]
	if !ok {
		return nil, nil
	}
	return acct.Clone(), nil
}

// PutPosition stores a copy of the position account under its key.
func (m *Manager) PutPosition(poolID string, acct *pool.PositionAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.positions[poolID] == nil {
		m.positions[poolID] = make(map[pool.PositionKey]*pool.PositionAccount)
	}
	m.positions[poolID][acct.Key] = acct.Clone()
	return nil
}

// GetEncumbrance returns a copy of the encumbrance record, or nil if unknown.
func (m *Manager) GetEncumbrance(poolID string, key pool.PositionKey) (*pool.Encumbrance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	enc, ok := m.encumbrances[poolID][key]
	if !ok {
		return nil, nil
	}
	return enc.Clone(), nil
}

// PutEncumbrance stores a copy of the encumbrance record under its position.
func (m *Manager) PutEncumbrance(poolID string, enc *pool.Encumbrance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.encumbrances[poolID] == nil {
		m.encumbrances[poolID] = make(map[pool.PositionKey]*pool.Encumbrance)
	}
	m.encumbrances[poolID][enc.Position] = enc.Clone()
	return nil
}

// AuctionGet returns a copy of the single-maker auction, if present.
func (m *Manager) AuctionGet(id [32]byte) (*auction.Auction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// AuctionPut stores a copy of the single-maker auction.
func (m *Manager) AuctionPut(a *auction.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[a.ID] = a.Clone()
}

// CommunityGet returns a copy of the community auction, if present.
func (m *Manager) CommunityGet(id [32]byte) (*auction.CommunityAuction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.communities[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// CommunityPut stores a copy of the community auction.
func (m *Manager) CommunityPut(c *auction.CommunityAuction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.communities[c.ID] = c.Clone()
}

// MakerGet returns a copy of the maker position, if present.
func (m *Manager) MakerGet(id [32]byte, key pool.PositionKey) (*auction.MakerPosition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.makers[id][key]
	if !ok {
		return nil, false
	}
	return mp.Clone(), true
}

// MakerPut stores a copy of the maker position.
func (m *Manager) MakerPut(mp *auction.MakerPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.makers[mp.AuctionID] == nil {
		m.makers[mp.AuctionID] = make(map[pool.PositionKey]*auction.MakerPosition)
	}
	m.makers[mp.AuctionID][mp.Position] = mp.Clone()
}

// MakerRemove drops a maker position. Removing an unknown maker is a no-op.
func (m *Manager) MakerRemove(id [32]byte, key pool.PositionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if makers, ok := m.makers[id]; ok {
		delete(makers, key)
		if len(makers) == 0 {
			delete(m.makers, id)
		}
	}
}

// MakersOf lists copies of every maker position in an auction.
func (m *Manager) MakersOf(id [32]byte) []*auction.MakerPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	makers := m.makers[id]
	if len(makers) == 0 {
		return nil
	}
	out := make([]*auction.MakerPosition, 0, len(makers))
	for _, mp := range makers {
		out = append(out, mp.Clone())
	}
	return out
}
