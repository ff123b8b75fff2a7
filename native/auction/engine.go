package auction

import (
	"log/slog"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fluxpool/core/events"
	nativecommon "fluxpool/native/common"
	"fluxpool/native/fees"
	"fluxpool/native/pool"
	"fluxpool/observability/metrics"
)

const moduleName = "auction"

const basisPoints = 10_000

// engineState abstracts persistence for auctions and maker positions.
// Implementations return deep copies on reads; writes replace the stored
// record atomically.
type engineState interface {
	AuctionGet(id [32]byte) (*Auction, bool)
	AuctionPut(a *Auction)
	CommunityGet(id [32]byte) (*CommunityAuction, bool)
	CommunityPut(c *CommunityAuction)
	MakerGet(id [32]byte, key pool.PositionKey) (*MakerPosition, bool)
	MakerPut(m *MakerPosition)
	MakerRemove(id [32]byte, key pool.PositionKey)
}

// ledger is the slice of the pool engine the auction engine depends on.
type ledger interface {
	Authorize(caller [20]byte, tokenID uint64) (pool.PositionKey, error)
	PoolAsset(poolID string) ([20]byte, error)
	LockAmmReserves(poolID string, key pool.PositionKey, amount *big.Int) error
	UnlockAmmReserves(poolID string, key pool.PositionKey, amount *big.Int) error
	ApplyAuctionSettlement(poolID string, s pool.AuctionSettlement) error
}

// Engine runs constant-product auctions over pooled principal. Reserves are
// flash-accounted: the backing pools' books do not move while an auction is
// live, and the whole outcome is reconciled through a single settlement per
// side when the auction unwinds.
type Engine struct {
	state  engineState
	ledger ledger
	assets pool.AssetBridge
	router *fees.Router
	index  *DiscoveryIndex

	makerShareBps uint64
	maxFeeBps     uint64

	pauses    nativecommon.PauseView
	emitter   events.Emitter
	logger    *slog.Logger
	telemetry *metrics.MarketMetrics
	nowFn     func() int64
}

// NewEngine constructs an auction engine around the supplied fee router.
// makerShareBps is the maker's cut of every swap fee; maxFeeBps caps the fee
// creators may set.
func NewEngine(router *fees.Router, makerShareBps, maxFeeBps uint64) *Engine {
	if makerShareBps > basisPoints {
		makerShareBps = basisPoints
	}
	return &Engine{
		router:        router,
		index:         NewDiscoveryIndex(),
		makerShareBps: makerShareBps,
		maxFeeBps:     maxFeeBps,
		emitter:       events.NoopEmitter{},
		logger:        slog.Default(),
		telemetry:     metrics.Markets(),
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the persistence backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the pool ledger the engine draws principal from.
func (e *Engine) SetLedger(l ledger) { e.ledger = l }

// SetAssets wires the token bridge used for taker-side transfers.
func (e *Engine) SetAssets(a pool.AssetBridge) { e.assets = a }

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter wires the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetNowFunc overrides the clock, primarily for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now != nil {
		e.nowFn = now
	}
}

// Discovery exposes the live-auction index for read-only enumeration.
func (e *Engine) Discovery() *DiscoveryIndex { return e.index }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.ledger == nil:
		return errNilLedger
	case e.assets == nil:
		return errNilAssets
	case e.router == nil:
		return errNilRouter
	}
	return nil
}

// auctionID derives the deterministic identifier for an auction book. The
// same creator opening the same pair over the same window resolves to the
// same auction.
func auctionID(creator pool.PositionKey, poolA, poolB string, startTime, endTime int64, community bool) [32]byte {
	payload := make([]byte, 0, 32+len(poolA)+len(poolB)+17)
	payload = append(payload, creator[:]...)
	payload = append(payload, poolA...)
	payload = append(payload, 0)
	payload = append(payload, poolB...)
	payload = append(payload, byte(startTime>>56), byte(startTime>>48), byte(startTime>>40), byte(startTime>>32),
		byte(startTime>>24), byte(startTime>>16), byte(startTime>>8), byte(startTime))
	payload = append(payload, byte(endTime>>56), byte(endTime>>48), byte(endTime>>40), byte(endTime>>32),
		byte(endTime>>24), byte(endTime>>16), byte(endTime>>8), byte(endTime))
	if community {
		payload = append(payload, 1)
	} else {
		payload = append(payload, 0)
	}
	return ethcrypto.Keccak256Hash(payload)
}

func (e *Engine) newBook(creator pool.PositionKey, poolA, poolB string, startTime, endTime int64, feeBps uint64, community bool) (*Book, error) {
	if poolA == poolB {
		return nil, errSamePool
	}
	if startTime >= endTime {
		return nil, errInvalidWindow
	}
	if e.maxFeeBps > 0 && feeBps > e.maxFeeBps {
		return nil, errFeeTooHigh
	}
	assetA, err := e.ledger.PoolAsset(poolA)
	if err != nil {
		return nil, err
	}
	assetB, err := e.ledger.PoolAsset(poolB)
	if err != nil {
		return nil, err
	}
	b := &Book{
		ID:        auctionID(creator, poolA, poolB, startTime, endTime, community),
		Creator:   creator,
		PoolA:     poolA,
		PoolB:     poolB,
		AssetA:    assetA,
		AssetB:    assetB,
		StartTime: startTime,
		EndTime:   endTime,
		FeeBps:    feeBps,
		Status:    StatusCreated,
	}
	if b.withinWindow(e.nowFn()) {
		b.Status = StatusActive
	}
	b.normalize()
	return b, nil
}

// CreateAuction opens a single-maker auction backed by the caller's principal
// in both pools. Creation is idempotent: re-creating a live auction with the
// same terms returns the existing book.
func (e *Engine) CreateAuction(caller [20]byte, tokenID uint64, poolA, poolB string, amountA, amountB *big.Int, startTime, endTime int64, feeBps uint64) (*Auction, error) {
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
	book, err := e.newBook(key, poolA, poolB, startTime, endTime, feeBps, false)
	if err != nil {
		return nil, err
	}
	if existing, ok := e.state.AuctionGet(book.ID); ok {
		if existing.Status.Terminal() {
			return nil, ErrAlreadyFinalized
		}
		// Idempotent only on identical terms: silently returning the old
		// book would discard the caller's amounts.
		if existing.InitialReserveA.Cmp(amountA) != 0 || existing.InitialReserveB.Cmp(amountB) != 0 {
			return nil, errReserveMismatch
		}
		return existing.Clone(), nil
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

	a := &Auction{Book: *book}
	a.ReserveA = new(big.Int).Set(amountA)
	a.ReserveB = new(big.Int).Set(amountB)
	a.InitialReserveA = new(big.Int).Set(amountA)
	a.InitialReserveB = new(big.Int).Set(amountB)
	a.LockedA = new(big.Int).Set(amountA)
	a.LockedB = new(big.Int).Set(amountB)
	a.normalize()

	e.state.AuctionPut(a)
	e.index.Add(Ref{ID: a.ID}, poolA, poolB, a.AssetA, a.AssetB)
	e.telemetry.AuctionOpened()
	e.emit(auctionCreatedEvent(&a.Book, false))
	return a.Clone(), nil
}

// AddLiquidity deepens both reserves of a live single-maker auction with more
// of the creator's pooled principal.
func (e *Engine) AddLiquidity(caller [20]byte, tokenID uint64, id [32]byte, amountA, amountB *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amountA == nil || amountA.Sign() <= 0 || amountB == nil || amountB.Sign() <= 0 {
		return errInvalidAmount
	}
	key, err := e.ledger.Authorize(caller, tokenID)
	if err != nil {
		return err
	}
	a, ok := e.state.AuctionGet(id)
	if !ok {
		return errNotFound
	}
	if a.Creator != key {
		return errNotCreator
	}
	if err := e.touch(a); err != nil {
		return err
	}

	if err := e.ledger.LockAmmReserves(a.PoolA, key, amountA); err != nil {
		return err
	}
	if err := e.ledger.LockAmmReserves(a.PoolB, key, amountB); err != nil {
		if unlockErr := e.ledger.UnlockAmmReserves(a.PoolA, key, amountA); unlockErr != nil {
			e.logger.Error("auction: failed to unwind reserve lock",
				"pool", a.PoolA, "amount", amountA.String(), "err", unlockErr)
		}
		return err
	}

	a.ReserveA.Add(a.ReserveA, amountA)
	a.ReserveB.Add(a.ReserveB, amountB)
	a.InitialReserveA.Add(a.InitialReserveA, amountA)
	a.InitialReserveB.Add(a.InitialReserveB, amountB)
	a.LockedA.Add(a.LockedA, amountA)
	a.LockedB.Add(a.LockedB, amountB)

	e.state.AuctionPut(a)
	e.emit(liquidityAddedEvent(id, amountA, amountB))
	return nil
}

// touch advances the auction lifecycle against the clock. Past the end of the
// window it settles the auction in place and reports ErrExpired; before the
// window opens it reports ErrNotActive.
func (e *Engine) touch(a *Auction) error {
	if a.Status.Terminal() {
		return ErrAlreadyFinalized
	}
	now := e.nowFn()
	if now >= a.EndTime {
		if err := e.settleAuction(a, StatusFinalized); err != nil {
			return err
		}
		return ErrExpired
	}
	if now < a.StartTime {
		return ErrNotActive
	}
	a.Status = StatusActive
	return nil
}

// swapQuote computes the fee split and constant-product output for a swap
// against the book. It does not mutate anything.
func (e *Engine) swapQuote(b *Book, assetIn [20]byte, actualIn *big.Int) (out *big.Int, split fees.Split, inIsA bool, err error) {
	switch assetIn {
	case b.AssetA:
		inIsA = true
	case b.AssetB:
		inIsA = false
	default:
		return nil, fees.Split{}, false, errUnknownAsset
	}
	reserveIn, reserveOut := b.ReserveA, b.ReserveB
	if !inIsA {
		reserveIn, reserveOut = b.ReserveB, b.ReserveA
	}
	grossFee := new(big.Int).Mul(actualIn, new(big.Int).SetUint64(b.FeeBps))
	grossFee.Quo(grossFee, big.NewInt(basisPoints))
	split, err = e.router.Route(grossFee, e.makerShareBps)
	if err != nil {
		return nil, fees.Split{}, false, err
	}
	netIn := new(big.Int).Sub(actualIn, grossFee)
	denom := new(big.Int).Add(reserveIn, netIn)
	if denom.Sign() <= 0 {
		return nil, fees.Split{}, false, errInvalidAmount
	}
	out = new(big.Int).Mul(reserveOut, netIn)
	out.Quo(out, denom)
	return out, split, inIsA, nil
}

// applySwap books the executed swap into the shared reserves and accrual
// counters. The treasury share never enters the reserve.
func applySwap(b *Book, inIsA bool, actualIn, out *big.Int, split fees.Split,
	makerFeeA, makerFeeB, feeIdxA, feeIdxB, creditA, creditB *big.Int) {
	retained := new(big.Int).Sub(actualIn, split.Treasury)
	if inIsA {
		b.ReserveA.Add(b.ReserveA, retained)
		b.ReserveB.Sub(b.ReserveB, out)
		makerFeeA.Add(makerFeeA, split.Maker)
		feeIdxA.Add(feeIdxA, split.FeeIndex)
		creditA.Add(creditA, split.ActiveCredit)
	} else {
		b.ReserveB.Add(b.ReserveB, retained)
		b.ReserveA.Sub(b.ReserveA, out)
		makerFeeB.Add(makerFeeB, split.Maker)
		feeIdxB.Add(feeIdxB, split.FeeIndex)
		creditB.Add(creditB, split.ActiveCredit)
	}
}

// refund returns a failed swap's input to the caller. A refund failure is
// logged rather than surfaced: the triggering error is the one the caller
// must see.
func (e *Engine) refund(asset, to [20]byte, amount *big.Int) {
	if err := e.assets.TransferOut(asset, to, amount); err != nil {
		e.logger.Error("auction: swap refund failed",
			"amount", amount.String(), "err", err)
	}
}

// executeSwap performs the taker-side transfers and reserve update common to
// both auction kinds. It returns the output amount on success. Every failure
// past the input transfer refunds the input so a failed swap moves no value.
func (e *Engine) executeSwap(b *Book, caller, recipient, assetIn [20]byte, amountIn, minOut *big.Int,
	makerFeeA, makerFeeB, feeIdxA, feeIdxB, creditA, creditB *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	actualIn, err := e.assets.TransferIn(assetIn, caller, amountIn)
	if err != nil {
		return nil, err
	}
	out, split, inIsA, err := e.swapQuote(b, assetIn, actualIn)
	if err != nil {
		e.refund(assetIn, caller, actualIn)
		return nil, err
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		e.refund(assetIn, caller, actualIn)
		return nil, &SlippageError{MinOut: new(big.Int).Set(minOut), Out: out}
	}

	before := b.Invariant()
	applySwap(b, inIsA, actualIn, out, split, makerFeeA, makerFeeB, feeIdxA, feeIdxB, creditA, creditB)
	if b.Invariant().Cmp(before) < 0 {
		e.refund(assetIn, caller, actualIn)
		return nil, errInvalidAmount
	}

	assetOut := b.AssetB
	if !inIsA {
		assetOut = b.AssetA
	}
	if out.Sign() > 0 {
		if err := e.assets.TransferOut(assetOut, recipient, out); err != nil {
			e.refund(assetIn, caller, actualIn)
			return nil, err
		}
	}
	if treasury, ok := e.router.Treasury(); ok && split.Treasury.Sign() > 0 {
		if err := e.assets.TransferOut(assetIn, treasury, split.Treasury); err != nil {
			// The output already left custody; pull it back before the refund
			// so the aborted swap nets to zero.
			if out.Sign() > 0 {
				if _, backErr := e.assets.TransferIn(assetOut, recipient, out); backErr != nil {
					e.logger.Error("auction: swap output rollback failed",
						"amount", out.String(), "err", backErr)
				}
			}
			e.refund(assetIn, caller, actualIn)
			return nil, err
		}
	}

	poolIn := b.PoolA
	if !inIsA {
		poolIn = b.PoolB
	}
	volume, _ := new(big.Float).SetInt(actualIn).Float64()
	e.telemetry.ObserveSwap(poolIn, volume)
	for share, amount := range map[string]*big.Int{
		"maker":         split.Maker,
		"treasury":      split.Treasury,
		"active_credit": split.ActiveCredit,
		"fee_index":     split.FeeIndex,
	} {
		if amount.Sign() > 0 {
			f, _ := new(big.Float).SetInt(amount).Float64()
			e.telemetry.ObserveFeeRouted(share, f)
		}
	}
	grossFee := new(big.Int).Add(split.Maker, split.Treasury)
	grossFee.Add(grossFee, split.ActiveCredit)
	grossFee.Add(grossFee, split.FeeIndex)
	e.emit(swapExecutedEvent(b.ID, assetIn, actualIn, out, grossFee))
	return out, nil
}

// SwapExactIn trades amountIn of assetIn against a single-maker auction and
// sends the output to recipient. The swap fails with a SlippageError and a
// full refund when the output falls below minOut.
func (e *Engine) SwapExactIn(caller [20]byte, id [32]byte, assetIn [20]byte, amountIn, minOut *big.Int, recipient [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	a, ok := e.state.AuctionGet(id)
	if !ok {
		return nil, errNotFound
	}
	if err := e.touch(a); err != nil {
		return nil, err
	}
	out, err := e.executeSwap(&a.Book, caller, recipient, assetIn, amountIn, minOut,
		a.MakerFeeAccruedA, a.MakerFeeAccruedB,
		a.FeeIndexAccruedA, a.FeeIndexAccruedB,
		a.ActiveCreditAccruedA, a.ActiveCreditAccruedB)
	if err != nil {
		return nil, err
	}
	e.state.AuctionPut(a)
	return out, nil
}

// PreviewSwap quotes a swap against current reserves without executing it.
func (e *Engine) PreviewSwap(id [32]byte, assetIn [20]byte, amountIn *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	book, err := e.liveBook(id)
	if err != nil {
		return nil, err
	}
	out, _, _, err := e.swapQuote(book, assetIn, amountIn)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// liveBook loads either auction kind and checks, without mutating state, that
// its window is open.
func (e *Engine) liveBook(id [32]byte) (*Book, error) {
	var book *Book
	if a, ok := e.state.AuctionGet(id); ok {
		book = &a.Book
	} else if c, ok := e.state.CommunityGet(id); ok {
		book = &c.Book
	} else {
		return nil, errNotFound
	}
	if book.Status.Terminal() {
		return nil, ErrAlreadyFinalized
	}
	now := e.nowFn()
	if now >= book.EndTime {
		return nil, ErrExpired
	}
	if now < book.StartTime {
		return nil, ErrNotActive
	}
	return book, nil
}

// FindBestAuctionExactIn scans the discovery index for the live auction that
// pays out the most assetOut for amountIn of assetIn.
func (e *Engine) FindBestAuctionExactIn(assetIn, assetOut [20]byte, amountIn *big.Int) (Ref, *big.Int, error) {
	if err := e.ready(); err != nil {
		return Ref{}, nil, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return Ref{}, nil, errInvalidAmount
	}
	var (
		best    Ref
		bestOut *big.Int
	)
	for _, ref := range e.index.ByPair(assetIn, assetOut, 0, 0) {
		book, err := e.liveBook(ref.ID)
		if err != nil {
			continue
		}
		out, _, _, err := e.swapQuote(book, assetIn, amountIn)
		if err != nil {
			continue
		}
		if bestOut == nil || out.Cmp(bestOut) > 0 {
			best, bestOut = ref, out
		}
	}
	if bestOut == nil {
		return Ref{}, nil, errNotFound
	}
	return best, bestOut, nil
}

// settlementFor derives the per-side settlement of an unwinding auction. The
// side's physical net inflow (reserve minus the lent principal backing it)
// splits into trading principal, maker yield, and the two protocol accruals.
func settlementFor(position pool.PositionKey, reserve, locked, makerFee, feeIdx, credit *big.Int) pool.AuctionSettlement {
	principalDelta := new(big.Int).Sub(reserve, locked)
	principalDelta.Sub(principalDelta, makerFee)
	principalDelta.Sub(principalDelta, feeIdx)
	principalDelta.Sub(principalDelta, credit)
	return pool.AuctionSettlement{
		Position:            position,
		ReleaseLent:         new(big.Int).Set(locked),
		PrincipalDelta:      principalDelta,
		MakerYield:          new(big.Int).Set(makerFee),
		FeeIndexAccrual:     new(big.Int).Set(feeIdx),
		ActiveCreditAccrual: new(big.Int).Set(credit),
	}
}

// settleAuction reconciles both sides of a single-maker auction back into
// their backing pools and marks it terminal.
func (e *Engine) settleAuction(a *Auction, status Status) error {
	a.normalize()
	settleA := settlementFor(a.Creator, a.ReserveA, a.LockedA, a.MakerFeeAccruedA, a.FeeIndexAccruedA, a.ActiveCreditAccruedA)
	settleB := settlementFor(a.Creator, a.ReserveB, a.LockedB, a.MakerFeeAccruedB, a.FeeIndexAccruedB, a.ActiveCreditAccruedB)
	if err := e.ledger.ApplyAuctionSettlement(a.PoolA, settleA); err != nil {
		return err
	}
	if err := e.ledger.ApplyAuctionSettlement(a.PoolB, settleB); err != nil {
		return err
	}
	a.Status = status
	a.ReserveA = big.NewInt(0)
	a.ReserveB = big.NewInt(0)
	a.LockedA = big.NewInt(0)
	a.LockedB = big.NewInt(0)
	e.state.AuctionPut(a)
	e.index.Remove(a.ID, a.PoolA, a.PoolB, a.AssetA, a.AssetB)
	e.telemetry.AuctionClosed()
	e.emit(auctionFinalizedEvent(a.ID, status))
	return nil
}

// Finalize settles a single-maker auction: reserves return to the backing
// pools, maker fees become claimable yield, and protocol fee shares accrue to
// all pool depositors. Only the creator may finalize before expiry.
func (e *Engine) Finalize(caller [20]byte, tokenID uint64, id [32]byte) error {
	return e.unwind(caller, tokenID, id, StatusFinalized)
}

// Cancel unwinds a single-maker auction before trading opens. Settlement is
// identical to finalization; the terminal status records the intent.
func (e *Engine) Cancel(caller [20]byte, tokenID uint64, id [32]byte) error {
	return e.unwind(caller, tokenID, id, StatusCancelled)
}

func (e *Engine) unwind(caller [20]byte, tokenID uint64, id [32]byte, status Status) error {
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
	a, ok := e.state.AuctionGet(id)
	if !ok {
		return errNotFound
	}
	if a.Status.Terminal() {
		return ErrAlreadyFinalized
	}
	now := e.nowFn()
	if status == StatusCancelled {
		if a.Creator != key {
			return errNotCreator
		}
		if now >= a.StartTime {
			return errWindowOpen
		}
	} else if a.Creator != key && now < a.EndTime {
		return errNotCreator
	}
	return e.settleAuction(a, status)
}

// AuctionSnapshot returns a defensive copy of a single-maker auction.
func (e *Engine) AuctionSnapshot(id [32]byte) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	a, ok := e.state.AuctionGet(id)
	if !ok {
		return nil, errNotFound
	}
	return a.Clone(), nil
}
