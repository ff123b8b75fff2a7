package pool

import "math/big"

// PositionKey identifies a position across every pool. Ownership of the key
// lives in the external position registry; the ledger never stores owner
// identity.
type PositionKey [32]byte

// Pool carries the per-asset accounting state shared by every product built
// on the ledger.
type Pool struct {
	ID    string
	Asset [20]byte

	// TotalDeposits is the sum of all position principal in the pool.
	TotalDeposits *big.Int
	// TrackedBalance is the asset amount the ledger believes it physically
	// holds for this pool. It must always cover outstanding claims.
	TrackedBalance *big.Int
	// YieldReserve is fee-index-owed value not yet claimed by any position.
	YieldReserve *big.Int
	// ActiveCreditPrincipal is active-credit value accrued into the
	// active-credit index but not yet settled into the yield reserve.
	ActiveCreditPrincipal *big.Int

	FeeIndex          *CumulativeIndex
	MaintenanceIndex  *CumulativeIndex
	ActiveCreditIndex *CumulativeIndex
}

// NewPool constructs an empty pool for the given asset.
func NewPool(id string, asset [20]byte) *Pool {
	return &Pool{
		ID:                    id,
		Asset:                 asset,
		TotalDeposits:         big.NewInt(0),
		TrackedBalance:        big.NewInt(0),
		YieldReserve:          big.NewInt(0),
		ActiveCreditPrincipal: big.NewInt(0),
		FeeIndex:              NewCumulativeIndex(),
		MaintenanceIndex:      NewCumulativeIndex(),
		ActiveCreditIndex:     NewCumulativeIndex(),
	}
}

func (p *Pool) normalize() {
	if p.TotalDeposits == nil {
		p.TotalDeposits = big.NewInt(0)
	}
	if p.TrackedBalance == nil {
		p.TrackedBalance = big.NewInt(0)
	}
	if p.YieldReserve == nil {
		p.YieldReserve = big.NewInt(0)
	}
	if p.ActiveCreditPrincipal == nil {
		p.ActiveCreditPrincipal = big.NewInt(0)
	}
	if p.FeeIndex == nil {
		p.FeeIndex = NewCumulativeIndex()
	}
	if p.MaintenanceIndex == nil {
		p.MaintenanceIndex = NewCumulativeIndex()
	}
	if p.ActiveCreditIndex == nil {
		p.ActiveCreditIndex = NewCumulativeIndex()
	}
}

// Clone returns a deep copy so callers cannot alias ledger-internal values.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	p.normalize()
	return &Pool{
		ID:                    p.ID,
		Asset:                 p.Asset,
		TotalDeposits:         new(big.Int).Set(p.TotalDeposits),
		TrackedBalance:        new(big.Int).Set(p.TrackedBalance),
		YieldReserve:          new(big.Int).Set(p.YieldReserve),
		ActiveCreditPrincipal: new(big.Int).Set(p.ActiveCreditPrincipal),
		FeeIndex:              p.FeeIndex.Clone(),
		MaintenanceIndex:      p.MaintenanceIndex.Clone(),
		ActiveCreditIndex:     p.ActiveCreditIndex.Clone(),
	}
}

// PositionAccount tracks one position's claims within a single pool.
type PositionAccount struct {
	Key       PositionKey
	Principal *big.Int

	FeeSnapshot          *big.Int
	MaintenanceSnapshot  *big.Int
	ActiveCreditSnapshot *big.Int

	AccruedYield *big.Int
}

func (a *PositionAccount) normalize() {
	if a.Principal == nil {
		a.Principal = big.NewInt(0)
	}
	if a.FeeSnapshot == nil {
		a.FeeSnapshot = big.NewInt(0)
	}
	if a.MaintenanceSnapshot == nil {
		a.MaintenanceSnapshot = big.NewInt(0)
	}
	if a.ActiveCreditSnapshot == nil {
		a.ActiveCreditSnapshot = big.NewInt(0)
	}
	if a.AccruedYield == nil {
		a.AccruedYield = big.NewInt(0)
	}
}

// Clone returns a deep copy of the account.
func (a *PositionAccount) Clone() *PositionAccount {
	if a == nil {
		return nil
	}
	a.normalize()
	return &PositionAccount{
		Key:                  a.Key,
		Principal:            new(big.Int).Set(a.Principal),
		FeeSnapshot:          new(big.Int).Set(a.FeeSnapshot),
		MaintenanceSnapshot:  new(big.Int).Set(a.MaintenanceSnapshot),
		ActiveCreditSnapshot: new(big.Int).Set(a.ActiveCreditSnapshot),
		AccruedYield:         new(big.Int).Set(a.AccruedYield),
	}
}

// Encumbrance records the temporary claims held against a position's
// principal in one pool, split by claim category. The sum of the four
// categories may never exceed the position's principal.
type Encumbrance struct {
	Position PositionKey

	// Locked is collateral pledged for a single-maker derivative.
	Locked *big.Int
	// Lent is principal diverted into an active auction as flash-accounted
	// reserves.
	Lent *big.Int
	// OfferEscrow is principal reserved behind a standing offer.
	OfferEscrow *big.Int
	// IndexBacked is principal backing an index or bundle token.
	IndexBacked *big.Int
}

func (enc *Encumbrance) normalize() {
	if enc.Locked == nil {
		enc.Locked = big.NewInt(0)
	}
	if enc.Lent == nil {
		enc.Lent = big.NewInt(0)
	}
	if enc.OfferEscrow == nil {
		enc.OfferEscrow = big.NewInt(0)
	}
	if enc.IndexBacked == nil {
		enc.IndexBacked = big.NewInt(0)
	}
}

// Total returns the sum of all encumbrance categories.
func (enc *Encumbrance) Total() *big.Int {
	if enc == nil {
		return big.NewInt(0)
	}
	enc.normalize()
	total := new(big.Int).Add(enc.Locked, enc.Lent)
	total.Add(total, enc.OfferEscrow)
	return total.Add(total, enc.IndexBacked)
}

// Clone returns a deep copy of the encumbrance record.
func (enc *Encumbrance) Clone() *Encumbrance {
	if enc == nil {
		return nil
	}
	enc.normalize()
	return &Encumbrance{
		Position:    enc.Position,
		Locked:      new(big.Int).Set(enc.Locked),
		Lent:        new(big.Int).Set(enc.Lent),
		OfferEscrow: new(big.Int).Set(enc.OfferEscrow),
		IndexBacked: new(big.Int).Set(enc.IndexBacked),
	}
}

// AuctionSettlement describes the single reconciliation applied to a maker's
// position when flash-accounted reserves return to the pool at auction
// finalize, cancel, or community leave.
type AuctionSettlement struct {
	Position PositionKey
	// ReleaseLent is the lent encumbrance returned to free principal.
	ReleaseLent *big.Int
	// PrincipalDelta is the signed net trading result (including any maker
	// fee credited as new principal) applied to the maker's principal.
	PrincipalDelta *big.Int
	// MakerYield is maker fee value settled straight into the maker's
	// accrued yield, backed by the yield reserve.
	MakerYield *big.Int
	// FeeIndexAccrual is the protocol fee share distributed to all pool
	// depositors through the fee index.
	FeeIndexAccrual *big.Int
	// ActiveCreditAccrual is the protocol fee share distributed through the
	// active-credit index.
	ActiveCreditAccrual *big.Int
}
