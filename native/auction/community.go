package auction

import (
	"math/big"

	nativecommon "fluxpool/native/common"
	"fluxpool/native/pool"
)

// shareOf mints liquidity shares for a two-sided contribution.
func shareOf(amountA, amountB *big.Int) *big.Int {
	product := new(big.Int).Mul(amountA, amountB)
	return new(big.Int).Sqrt(product)
}

// CreateCommunityAuction opens a share-based auction seeded by the caller,
// who becomes its first maker. Like CreateAuction, re-creating a live auction
// with the same terms returns the existing book.
func (e *Engine) CreateCommunityAuction(caller [20]byte, tokenID uint64, poolA, poolB string, amountA, amountB *big.Int, startTime, endTime int64, feeBps uint64) (*CommunityAuction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amountA == nil || amountA.Sign() <= 0 || amountB == nil || amountB.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	key, err := e.ledger.Authorize(caller, tokenID)
	if err != nil {
		return nil, err
	}
	book, err := e.newBook(key, poolA, poolB, startTime, endTime, feeBps, true)
	if err != nil {
		return nil, err
	}
	if existing, ok := e.state.CommunityGet(book.ID); ok {
		if existing.Status.Terminal() {
			return nil, ErrAlreadyFinalized
		}
		if existing.InitialReserveA.Cmp(amountA) != 0 || existing.InitialReserveB.Cmp(amountB) != 0 {
			return nil, errReserveMismatch
		}
		return existing.Clone(), nil
	}
	share := shareOf(amountA, amountB)
	if share.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	if err := e.ledger.LockAmmReserves(poolA, key, amountA); err != nil {
		return nil, err
	}
	if err := e.ledger.LockAmmReserves(poolB, key, amountB); err != nil {
		if unlockErr := e.ledger.UnlockAmmReserves(poolA, key, amountA); unlockErr != nil {
			e.logger.Error("auction: failed to unwind reserve lock",
				"pool", poolA, "amount", amountA.String(), "err", unlockErr)
		}
		return nil, err
	}

	c := &CommunityAuction{
		Book:        *book,
		TotalShares: share,
		MakerCount:  1,
		FeeIndexA:   pool.NewCumulativeIndex(),
		FeeIndexB:   pool.NewCumulativeIndex(),
	}
	c.ReserveA = new(big.Int).Set(amountA)
	c.ReserveB = new(big.Int).Set(amountB)
	c.InitialReserveA = new(big.Int).Set(amountA)
	c.InitialReserveB = new(big.Int).Set(amountB)
	c.normalize()

	maker := &MakerPosition{
		AuctionID:     c.ID,
		Position:      key,
		Share:         new(big.Int).Set(share),
		FeeSnapshotA:  c.FeeIndexA.Snapshot(),
		FeeSnapshotB:  c.FeeIndexB.Snapshot(),
		ContributionA: new(big.Int).Set(amountA),
		ContributionB: new(big.Int).Set(amountB),
	}

	e.state.CommunityPut(c)
	e.state.MakerPut(maker)
	e.index.Add(Ref{ID: c.ID, Community: true}, poolA, poolB, c.AssetA, c.AssetB)
	e.telemetry.AuctionOpened()
	e.telemetry.ObserveMakerJoined("community")
	e.emit(auctionCreatedEvent(&c.Book, true))
	e.emit(makerJoinedEvent(c.ID, key, share))
	return c.Clone(), nil
}

// JoinCommunityAuction adds a maker's two-sided contribution at the current
// reserve ratio and mints shares for it. Joins are accepted until the trading
// window closes.
func (e *Engine) JoinCommunityAuction(caller [20]byte, tokenID uint64, id [32]byte, amountA, amountB *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amountA == nil || amountA.Sign() <= 0 || amountB == nil || amountB.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	key, err := e.ledger.Authorize(caller, tokenID)
	if err != nil {
		return nil, err
	}
	c, ok := e.state.CommunityGet(id)
	if !ok {
		return nil, errNotFound
	}
	if c.Status.Terminal() {
		return nil, ErrAlreadyFinalized
	}
	if e.nowFn() >= c.EndTime {
		if err := e.closeCommunity(c, StatusFinalized); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}
	// A book drained by every maker leaving has no ratio to join at.
	if c.TotalShares.Sign() == 0 {
		return nil, ErrNotActive
	}

	// Contributions must preserve the prevailing reserve ratio within 0.1%.
	expectedB := new(big.Int).Mul(amountA, c.ReserveB)
	expectedB.Quo(expectedB, c.ReserveA)
	diff := new(big.Int).Sub(amountB, expectedB)
	diff.Abs(diff)
	tolerance := new(big.Int).Quo(expectedB, big.NewInt(1000))
	if diff.Cmp(tolerance) > 0 {
		return nil, &InvalidRatioError{Expected: expectedB, Got: new(big.Int).Set(amountB)}
	}
	addedShare := shareOf(amountA, amountB)
	if addedShare.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	if err := e.ledger.LockAmmReserves(c.PoolA, key, amountA); err != nil {
		return nil, err
	}
	if err := e.ledger.LockAmmReserves(c.PoolB, key, amountB); err != nil {
		if unlockErr := e.ledger.UnlockAmmReserves(c.PoolA, key, amountA); unlockErr != nil {
			e.logger.Error("auction: failed to unwind reserve lock",
				"pool", c.PoolA, "amount", amountA.String(), "err", unlockErr)
		}
		return nil, err
	}

	maker, exists := e.state.MakerGet(id, key)
	if exists {
		// Pending fees settle against the maker's current share before the
		// share changes. A settlement failure unwinds both fresh locks.
		if err := e.settleMakerFees(c, maker); err != nil {
			for _, leg := range []struct {
				pool   string
				amount *big.Int
			}{{c.PoolA, amountA}, {c.PoolB, amountB}} {
				if unlockErr := e.ledger.UnlockAmmReserves(leg.pool, key, leg.amount); unlockErr != nil {
					e.logger.Error("auction: failed to unwind reserve lock",
						"pool", leg.pool, "amount", leg.amount.String(), "err", unlockErr)
				}
			}
			return nil, err
		}
		maker.Share.Add(maker.Share, addedShare)
		maker.ContributionA.Add(maker.ContributionA, amountA)
		maker.ContributionB.Add(maker.ContributionB, amountB)
	} else {
		maker = &MakerPosition{
			AuctionID:     id,
			Position:      key,
			Share:         new(big.Int).Set(addedShare),
			FeeSnapshotA:  c.FeeIndexA.Snapshot(),
			FeeSnapshotB:  c.FeeIndexB.Snapshot(),
			ContributionA: new(big.Int).Set(amountA),
			ContributionB: new(big.Int).Set(amountB),
		}
		c.MakerCount++
	}

	c.ReserveA.Add(c.ReserveA, amountA)
	c.ReserveB.Add(c.ReserveB, amountB)
	c.InitialReserveA.Add(c.InitialReserveA, amountA)
	c.InitialReserveB.Add(c.InitialReserveB, amountB)
	c.TotalShares.Add(c.TotalShares, addedShare)

	e.state.CommunityPut(c)
	e.state.MakerPut(maker)
	e.telemetry.ObserveMakerJoined("community")
	e.emit(makerJoinedEvent(id, key, addedShare))
	return addedShare, nil
}

// settleMakerFees pays the maker's pending pro-rata fees out of the reserves
// into claimable yield on the backing pools and advances the fee snapshots.
func (e *Engine) settleMakerFees(c *CommunityAuction, m *MakerPosition) error {
	pendingA := c.FeeIndexA.Pending(m.Share, m.FeeSnapshotA)
	pendingB := c.FeeIndexB.Pending(m.Share, m.FeeSnapshotB)
	if pendingA.Sign() > 0 {
		if err := e.ledger.ApplyAuctionSettlement(c.PoolA, pool.AuctionSettlement{
			Position:   m.Position,
			MakerYield: pendingA,
		}); err != nil {
			return err
		}
		c.ReserveA.Sub(c.ReserveA, pendingA)
		c.MakerFeeSettledA.Add(c.MakerFeeSettledA, pendingA)
	}
	if pendingB.Sign() > 0 {
		if err := e.ledger.ApplyAuctionSettlement(c.PoolB, pool.AuctionSettlement{
			Position:   m.Position,
			MakerYield: pendingB,
		}); err != nil {
			return err
		}
		c.ReserveB.Sub(c.ReserveB, pendingB)
		c.MakerFeeSettledB.Add(c.MakerFeeSettledB, pendingB)
	}
	m.FeeSnapshotA = c.FeeIndexA.Snapshot()
	m.FeeSnapshotB = c.FeeIndexB.Snapshot()
	return nil
}

// SwapCommunityExactIn trades against a community auction. It behaves like
// SwapExactIn except the maker fee distributes pro-rata by share through the
// per-side cumulative fee indices.
func (e *Engine) SwapCommunityExactIn(caller [20]byte, id [32]byte, assetIn [20]byte, amountIn, minOut *big.Int, recipient [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	c, ok := e.state.CommunityGet(id)
	if !ok {
		return nil, errNotFound
	}
	if err := e.touchCommunity(c); err != nil {
		return nil, err
	}
	if c.TotalShares.Sign() == 0 {
		return nil, ErrNotActive
	}

	makerBeforeA := new(big.Int).Set(c.MakerFeeAccruedA)
	makerBeforeB := new(big.Int).Set(c.MakerFeeAccruedB)
	out, err := e.executeSwap(&c.Book, caller, recipient, assetIn, amountIn, minOut,
		c.MakerFeeAccruedA, c.MakerFeeAccruedB,
		c.FeeIndexAccruedA, c.FeeIndexAccruedB,
		c.ActiveCreditAccruedA, c.ActiveCreditAccruedB)
	if err != nil {
		return nil, err
	}
	if delta := new(big.Int).Sub(c.MakerFeeAccruedA, makerBeforeA); delta.Sign() > 0 {
		c.FeeIndexA.Accrue(delta, c.TotalShares)
	}
	if delta := new(big.Int).Sub(c.MakerFeeAccruedB, makerBeforeB); delta.Sign() > 0 {
		c.FeeIndexB.Accrue(delta, c.TotalShares)
	}
	e.state.CommunityPut(c)
	return out, nil
}

// touchCommunity advances the community auction lifecycle against the clock.
// Expiry only closes the book; reserves unwind maker by maker through
// LeaveCommunityAuction.
func (e *Engine) touchCommunity(c *CommunityAuction) error {
	if c.Status.Terminal() {
		return ErrAlreadyFinalized
	}
	now := e.nowFn()
	if now >= c.EndTime {
		if err := e.closeCommunity(c, StatusFinalized); err != nil {
			return err
		}
		return ErrExpired
	}
	if now < c.StartTime {
		return ErrNotActive
	}
	c.Status = StatusActive
	return nil
}

// LeaveCommunityAuction settles the maker's pending fees, returns their
// pro-rata slice of both reserves to the backing pools, and burns their
// shares. The last maker to leave drains the reserves completely, absorbing
// any rounding dust.
func (e *Engine) LeaveCommunityAuction(caller [20]byte, tokenID uint64, id [32]byte) (*big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	key, err := e.ledger.Authorize(caller, tokenID)
	if err != nil {
		return nil, nil, err
	}
	c, ok := e.state.CommunityGet(id)
	if !ok {
		return nil, nil, errNotFound
	}
	maker, ok := e.state.MakerGet(id, key)
	if !ok {
		return nil, nil, errNotMaker
	}
	last := c.MakerCount <= 1

	withdrawnA, err := e.leaveSide(c, maker, sideA, last)
	if err != nil {
		return nil, nil, err
	}
	withdrawnB, err := e.leaveSide(c, maker, sideB, last)
	if err != nil {
		return nil, nil, err
	}

	c.TotalShares.Sub(c.TotalShares, maker.Share)
	if c.TotalShares.Sign() < 0 {
		c.TotalShares = big.NewInt(0)
	}
	if c.MakerCount > 0 {
		c.MakerCount--
	}
	e.state.MakerRemove(id, key)
	e.state.CommunityPut(c)
	e.emit(makerLeftEvent(id, key, withdrawnA, withdrawnB))
	return withdrawnA, withdrawnB, nil
}

type bookSide uint8

const (
	sideA bookSide = iota
	sideB
)

// leaveSide unwinds one side of a maker's community stake. The reserve
// decomposes into the maker's pending fees, their pro-rata slice of the
// protocol fee accruals, amounts earmarked for remaining makers, and the
// withdrawable principal-plus-P&L portion.
func (e *Engine) leaveSide(c *CommunityAuction, m *MakerPosition, side bookSide, last bool) (*big.Int, error) {
	var (
		poolID       string
		reserve      *big.Int
		feeIndex     *pool.CumulativeIndex
		snapshot     *big.Int
		accrued      *big.Int
		settled      *big.Int
		protoIdxAcc  *big.Int
		protoCredAcc *big.Int
		contribution *big.Int
	)
	if side == sideA {
		poolID, reserve = c.PoolA, c.ReserveA
		feeIndex, snapshot = c.FeeIndexA, m.FeeSnapshotA
		accrued, settled = c.MakerFeeAccruedA, c.MakerFeeSettledA
		protoIdxAcc, protoCredAcc = c.FeeIndexAccruedA, c.ActiveCreditAccruedA
		contribution = m.ContributionA
	} else {
		poolID, reserve = c.PoolB, c.ReserveB
		feeIndex, snapshot = c.FeeIndexB, m.FeeSnapshotB
		accrued, settled = c.MakerFeeAccruedB, c.MakerFeeSettledB
		protoIdxAcc, protoCredAcc = c.FeeIndexAccruedB, c.ActiveCreditAccruedB
		contribution = m.ContributionB
	}

	feesOwed := feeIndex.Pending(m.Share, snapshot)
	if last {
		// Residual maker-fee dust left behind by integer division belongs to
		// whoever drains the book.
		residual := new(big.Int).Sub(accrued, settled)
		residual.Sub(residual, feesOwed)
		if residual.Sign() > 0 {
			feesOwed.Add(feesOwed, residual)
		}
	}
	settled.Add(settled, feesOwed)

	protoIdx := new(big.Int).Set(protoIdxAcc)
	protoCred := new(big.Int).Set(protoCredAcc)
	if !last {
		protoIdx.Mul(protoIdx, m.Share)
		protoIdx.Quo(protoIdx, c.TotalShares)
		protoCred.Mul(protoCred, m.Share)
		protoCred.Quo(protoCred, c.TotalShares)
	}
	protoIdxAcc.Sub(protoIdxAcc, protoIdx)
	protoCredAcc.Sub(protoCredAcc, protoCred)

	// Earmarked for remaining makers after this maker's cut is carved out.
	reserved := new(big.Int).Sub(accrued, settled)
	reserved.Add(reserved, protoIdxAcc)
	reserved.Add(reserved, protoCredAcc)

	withdrawable := new(big.Int).Sub(reserve, feesOwed)
	withdrawable.Sub(withdrawable, protoIdx)
	withdrawable.Sub(withdrawable, protoCred)
	withdrawable.Sub(withdrawable, reserved)
	withdraw := withdrawable
	if !last {
		withdraw = new(big.Int).Mul(withdrawable, m.Share)
		withdraw.Quo(withdraw, c.TotalShares)
	}
	if withdraw.Sign() < 0 {
		withdraw = big.NewInt(0)
	}

	principalDelta := new(big.Int).Sub(withdraw, contribution)
	if err := e.ledger.ApplyAuctionSettlement(poolID, pool.AuctionSettlement{
		Position:            m.Position,
		ReleaseLent:         new(big.Int).Set(contribution),
		PrincipalDelta:      principalDelta,
		MakerYield:          feesOwed,
		FeeIndexAccrual:     protoIdx,
		ActiveCreditAccrual: protoCred,
	}); err != nil {
		return nil, err
	}

	reserve.Sub(reserve, withdraw)
	reserve.Sub(reserve, feesOwed)
	reserve.Sub(reserve, protoIdx)
	reserve.Sub(reserve, protoCred)
	if reserve.Sign() < 0 {
		reserve.SetInt64(0)
	}
	return withdraw, nil
}

// FinalizeCommunityAuction closes a community auction after its window ends.
// It only flips the book to terminal and clears discovery; makers unwind
// their stakes individually through LeaveCommunityAuction.
func (e *Engine) FinalizeCommunityAuction(caller [20]byte, tokenID uint64, id [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, err := e.ledger.Authorize(caller, tokenID); err != nil {
		return err
	}
	c, ok := e.state.CommunityGet(id)
	if !ok {
		return errNotFound
	}
	if c.Status.Terminal() {
		return ErrAlreadyFinalized
	}
	if e.nowFn() < c.EndTime {
		return ErrNotActive
	}
	return e.closeCommunity(c, StatusFinalized)
}

// CancelCommunityAuction closes a community auction before trading opens.
// Creator-only; makers still unwind through LeaveCommunityAuction.
func (e *Engine) CancelCommunityAuction(caller [20]byte, tokenID uint64, id [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	key, err := e.ledger.Authorize(caller, tokenID)
	if err != nil {
		return err
	}
	c, ok := e.state.CommunityGet(id)
	if !ok {
		return errNotFound
	}
	if c.Status.Terminal() {
		return ErrAlreadyFinalized
	}
	if c.Creator != key {
		return errNotCreator
	}
	if e.nowFn() >= c.StartTime {
		return errWindowOpen
	}
	return e.closeCommunity(c, StatusCancelled)
}

func (e *Engine) closeCommunity(c *CommunityAuction, status Status) error {
	c.Status = status
	e.state.CommunityPut(c)
	e.index.Remove(c.ID, c.PoolA, c.PoolB, c.AssetA, c.AssetB)
	e.telemetry.AuctionClosed()
	e.emit(auctionFinalizedEvent(c.ID, status))
	return nil
}

// PendingCommunityFees reports the maker's unsettled pro-rata fee share per
// side without mutating state.
func (e *Engine) PendingCommunityFees(id [32]byte, key pool.PositionKey) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	c, ok := e.state.CommunityGet(id)
	if !ok {
		return nil, nil, errNotFound
	}
	maker, ok := e.state.MakerGet(id, key)
	if !ok {
		return nil, nil, errNotMaker
	}
	pendingA := c.FeeIndexA.Pending(maker.Share, maker.FeeSnapshotA)
	pendingB := c.FeeIndexB.Pending(maker.Share, maker.FeeSnapshotB)
	return pendingA, pendingB, nil
}

// CommunitySnapshot returns a defensive copy of a community auction.
func (e *Engine) CommunitySnapshot(id [32]byte) (*CommunityAuction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	c, ok := e.state.CommunityGet(id)
	if !ok {
		return nil, errNotFound
	}
	return c.Clone(), nil
}

// MakerSnapshot returns a defensive copy of a maker's stake.
func (e *Engine) MakerSnapshot(id [32]byte, key pool.PositionKey) (*MakerPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	m, ok := e.state.MakerGet(id, key)
	if !ok {
		return nil, errNotMaker
	}
	return m.Clone(), nil
}
