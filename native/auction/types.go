package auction

import (
	"math/big"

	"fluxpool/native/pool"
)

// Status models the auction lifecycle. Terminal states release the
// flash-accounted reserves back into principal exactly once.
type Status uint8

const (
	StatusCreated Status = iota
	StatusActive
	StatusFinalized
	StatusCancelled
)

// String renders the status for events and diagnostics.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusActive:
		return "active"
	case StatusFinalized:
		return "finalized"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further trading or unwinding
// transitions.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusCancelled
}

// Book carries the trading terms shared by single-maker and community
// auctions. Reserves are flash-accounted: while the auction is live they move
// independently of the backing pools' books.
type Book struct {
	ID      [32]byte
	Creator pool.PositionKey

	PoolA, PoolB   string
	AssetA, AssetB [20]byte

	ReserveA, ReserveB               *big.Int
	InitialReserveA, InitialReserveB *big.Int

	StartTime int64
	EndTime   int64
	FeeBps    uint64
	Status    Status
}

func (b *Book) normalize() {
	if b.ReserveA == nil {
		b.ReserveA = big.NewInt(0)
	}
	if b.ReserveB == nil {
		b.ReserveB = big.NewInt(0)
	}
	if b.InitialReserveA == nil {
		b.InitialReserveA = big.NewInt(0)
	}
	if b.InitialReserveB == nil {
		b.InitialReserveB = big.NewInt(0)
	}
}

func (b *Book) cloneInto(dst *Book) {
	b.normalize()
	dst.ID = b.ID
	dst.Creator = b.Creator
	dst.PoolA, dst.PoolB = b.PoolA, b.PoolB
	dst.AssetA, dst.AssetB = b.AssetA, b.AssetB
	dst.ReserveA = new(big.Int).Set(b.ReserveA)
	dst.ReserveB = new(big.Int).Set(b.ReserveB)
	dst.InitialReserveA = new(big.Int).Set(b.InitialReserveA)
	dst.InitialReserveB = new(big.Int).Set(b.InitialReserveB)
	dst.StartTime, dst.EndTime = b.StartTime, b.EndTime
	dst.FeeBps = b.FeeBps
	dst.Status = b.Status
}

// Invariant returns the constant-product value reserveA*reserveB, which is
// non-decreasing across swaps.
func (b *Book) Invariant() *big.Int {
	b.normalize()
	return new(big.Int).Mul(b.ReserveA, b.ReserveB)
}

// withinWindow reports whether the trading window is open at now.
func (b *Book) withinWindow(now int64) bool {
	return now >= b.StartTime && now < b.EndTime
}

// Auction is a single-maker two-pool constant-product auction. Fee shares
// other than the treasury cut stay inside the reserves until finalization,
// tracked in the per-side accrual counters.
type Auction struct {
	Book

	// LockedA/B are the lent encumbrances backing the reserves, including
	// liquidity added after creation.
	LockedA, LockedB *big.Int

	MakerFeeAccruedA, MakerFeeAccruedB         *big.Int
	FeeIndexAccruedA, FeeIndexAccruedB         *big.Int
	ActiveCreditAccruedA, ActiveCreditAccruedB *big.Int
}

func (a *Auction) normalize() {
	a.Book.normalize()
	for _, v := range []**big.Int{
		&a.LockedA, &a.LockedB,
		&a.MakerFeeAccruedA, &a.MakerFeeAccruedB,
		&a.FeeIndexAccruedA, &a.FeeIndexAccruedB,
		&a.ActiveCreditAccruedA, &a.ActiveCreditAccruedB,
	} {
		if *v == nil {
			*v = big.NewInt(0)
		}
	}
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	a.normalize()
	clone := &Auction{}
	a.Book.cloneInto(&clone.Book)
	clone.LockedA = new(big.Int).Set(a.LockedA)
	clone.LockedB = new(big.Int).Set(a.LockedB)
	clone.MakerFeeAccruedA = new(big.Int).Set(a.MakerFeeAccruedA)
	clone.MakerFeeAccruedB = new(big.Int).Set(a.MakerFeeAccruedB)
	clone.FeeIndexAccruedA = new(big.Int).Set(a.FeeIndexAccruedA)
	clone.FeeIndexAccruedB = new(big.Int).Set(a.FeeIndexAccruedB)
	clone.ActiveCreditAccruedA = new(big.Int).Set(a.ActiveCreditAccruedA)
	clone.ActiveCreditAccruedB = new(big.Int).Set(a.ActiveCreditAccruedB)
	return clone
}

// CommunityAuction is the share-based multi-maker variant. Maker fees are
// distributed pro-rata by share through two cumulative indices with
// independent dust remainders.
type CommunityAuction struct {
	Book

	TotalShares *big.Int
	MakerCount  uint64

	FeeIndexA, FeeIndexB *pool.CumulativeIndex

	// Accrued vs settled maker fee totals per side; the difference is fee
	// value still earmarked inside the reserve.
	MakerFeeAccruedA, MakerFeeAccruedB *big.Int
	MakerFeeSettledA, MakerFeeSettledB *big.Int

	// Protocol fee shares recorded at swap time and reconciled into the
	// backing pools pro-rata as makers leave.
	FeeIndexAccruedA, FeeIndexAccruedB         *big.Int
	ActiveCreditAccruedA, ActiveCreditAccruedB *big.Int
}

func (c *CommunityAuction) normalize() {
	c.Book.normalize()
	if c.TotalShares == nil {
		c.TotalShares = big.NewInt(0)
	}
	if c.FeeIndexA == nil {
		c.FeeIndexA = pool.NewCumulativeIndex()
	}
	if c.FeeIndexB == nil {
		c.FeeIndexB = pool.NewCumulativeIndex()
	}
	for _, v := range []**big.Int{
		&c.MakerFeeAccruedA, &c.MakerFeeAccruedB,
		&c.MakerFeeSettledA, &c.MakerFeeSettledB,
		&c.FeeIndexAccruedA, &c.FeeIndexAccruedB,
		&c.ActiveCreditAccruedA, &c.ActiveCreditAccruedB,
	} {
		if *v == nil {
			*v = big.NewInt(0)
		}
	}
}

// Clone returns a deep copy of the community auction.
func (c *CommunityAuction) Clone() *CommunityAuction {
	if c == nil {
		return nil
	}
	c.normalize()
	clone := &CommunityAuction{}
	c.Book.cloneInto(&clone.Book)
	clone.TotalShares = new(big.Int).Set(c.TotalShares)
	clone.MakerCount = c.MakerCount
	clone.FeeIndexA = c.FeeIndexA.Clone()
	clone.FeeIndexB = c.FeeIndexB.Clone()
	clone.MakerFeeAccruedA = new(big.Int).Set(c.MakerFeeAccruedA)
	clone.MakerFeeAccruedB = new(big.Int).Set(c.MakerFeeAccruedB)
	clone.MakerFeeSettledA = new(big.Int).Set(c.MakerFeeSettledA)
	clone.MakerFeeSettledB = new(big.Int).Set(c.MakerFeeSettledB)
	clone.FeeIndexAccruedA = new(big.Int).Set(c.FeeIndexAccruedA)
	clone.FeeIndexAccruedB = new(big.Int).Set(c.FeeIndexAccruedB)
	clone.ActiveCreditAccruedA = new(big.Int).Set(c.ActiveCreditAccruedA)
	clone.ActiveCreditAccruedB = new(big.Int).Set(c.ActiveCreditAccruedB)
	return clone
}

// MakerPosition is one maker's stake in a community auction.
type MakerPosition struct {
	AuctionID [32]byte
	Position  pool.PositionKey

	Share *big.Int

	FeeSnapshotA, FeeSnapshotB *big.Int

	// ContributionA/B track the lent principal to release when the maker
	// leaves.
	ContributionA, ContributionB *big.Int
}

func (m *MakerPosition) normalize() {
	for _, v := range []**big.Int{
		&m.Share,
		&m.FeeSnapshotA, &m.FeeSnapshotB,
		&m.ContributionA, &m.ContributionB,
	} {
		if *v == nil {
			*v = big.NewInt(0)
		}
	}
}

// Clone returns a deep copy of the maker position.
func (m *MakerPosition) Clone() *MakerPosition {
	if m == nil {
		return nil
	}
	m.normalize()
	return &MakerPosition{
		AuctionID:     m.AuctionID,
		Position:      m.Position,
		Share:         new(big.Int).Set(m.Share),
		FeeSnapshotA:  new(big.Int).Set(m.FeeSnapshotA),
		FeeSnapshotB:  new(big.Int).Set(m.FeeSnapshotB),
		ContributionA: new(big.Int).Set(m.ContributionA),
		ContributionB: new(big.Int).Set(m.ContributionB),
	}
}
