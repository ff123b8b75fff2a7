package pool

import (
	"log/slog"
	"math/big"

	"fluxpool/core/events"
	nativecommon "fluxpool/native/common"
)

const moduleName = "pool"

type engineState interface {
	GetPool(poolID string) (*Pool, error)
	PutPool(poolID string, p *Pool) error
	GetPosition(poolID string, key PositionKey) (*PositionAccount, error)
	PutPosition(poolID string, acct *PositionAccount) error
	GetEncumbrance(poolID string, key PositionKey) (*Encumbrance, error)
	PutEncumbrance(poolID string, enc *Encumbrance) error
}

// Engine owns the pooled principal accounting for every pool. Each public
// operation is atomic: state is loaded as copies, mutated, validated against
// the backing invariant and only then written back.
type Engine struct {
	state    engineState
	registry PositionRegistry
	assets   AssetBridge
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	logger   *slog.Logger
}

// NewEngine constructs a pool engine with no collaborators wired.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the ledger state container.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry wires the external position registry used for authorization.
func (e *Engine) SetRegistry(r PositionRegistry) { e.registry = r }

// SetAssets wires the asset transfer primitive.
func (e *Engine) SetAssets(a AssetBridge) { e.assets = a }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger configures the structured logger used for invariant diagnostics.
func (e *Engine) SetLogger(l *slog.Logger) {
	if e == nil {
		return
	}
	e.logger = l
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// CreatePool registers an empty pool for the given asset. Creating a pool
// that already exists is rejected.
func (e *Engine) CreatePool(poolID string, asset [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, err := e.state.GetPool(poolID)
	if err != nil {
		return err
	}
	if existing != nil {
		return errPoolExists
	}
	return e.state.PutPool(poolID, NewPool(poolID, asset))
}

// Authorize resolves the position key for tokenID and verifies the caller is
// the owner or an approved operator.
func (e *Engine) Authorize(caller [20]byte, tokenID uint64) (PositionKey, error) {
	if e == nil || e.registry == nil {
		return PositionKey{}, errNilRegistry
	}
	key, err := e.registry.ResolvePositionKey(tokenID)
	if err != nil {
		return PositionKey{}, err
	}
	owner, err := e.registry.OwnerOf(tokenID)
	if err != nil {
		return PositionKey{}, err
	}
	if owner != caller && !e.registry.IsApprovedOperator(owner, caller) {
		return PositionKey{}, errUnauthorized
	}
	return key, nil
}

// PoolAsset returns the underlying asset address of the pool.
func (e *Engine) PoolAsset(poolID string) ([20]byte, error) {
	p, err := e.ensurePool(poolID)
	if err != nil {
		return [20]byte{}, err
	}
	return p.Asset, nil
}

// PoolSnapshot returns a deep copy of the pool's accounting state.
func (e *Engine) PoolSnapshot(poolID string) (*Pool, error) {
	p, err := e.ensurePool(poolID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// PositionSnapshot returns a deep copy of the position's account in the pool.
func (e *Engine) PositionSnapshot(poolID string, key PositionKey) (*PositionAccount, error) {
	p, err := e.ensurePool(poolID)
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureAccount(p, key)
	if err != nil {
		return nil, err
	}
	return acct.Clone(), nil
}

// EncumbranceSnapshot returns a deep copy of the encumbrance record.
func (e *Engine) EncumbranceSnapshot(poolID string, key PositionKey) (*Encumbrance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	enc, err := e.ensureEncumbrance(poolID, key)
	if err != nil {
		return nil, err
	}
	return enc.Clone(), nil
}

// Deposit moves amount of the pool asset from the caller into ledger custody
// and credits the position's principal with the amount actually received.
func (e *Engine) Deposit(caller [20]byte, tokenID uint64, poolID string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.assets == nil {
		return nil, errNilAssets
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	key, err := e.Authorize(caller, tokenID)
	if err != nil {
		return nil, err
	}

	p, err := e.ensurePool(poolID)
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureAccount(p, key)
	if err != nil {
		return nil, err
	}

	// New principal must never claim yield accrued before it arrived.
	e.settleAccount(p, acct)

	actual, err := e.assets.TransferIn(p.Asset, caller, amount)
	if err != nil {
		return nil, err
	}
	if actual == nil || actual.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	acct.Principal = new(big.Int).Add(acct.Principal, actual)
	p.TotalDeposits = new(big.Int).Add(p.TotalDeposits, actual)
	p.TrackedBalance = new(big.Int).Add(p.TrackedBalance, actual)

	if err := e.commit(p, acct); err != nil {
		return nil, err
	}
	e.emit(newDepositEvent(poolID, key, actual))
	return new(big.Int).Set(actual), nil
}

// Withdraw releases unencumbered principal back to the caller.
func (e *Engine) Withdraw(caller [20]byte, tokenID uint64, poolID string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.assets == nil {
		return errNilAssets
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	key, err := e.Authorize(caller, tokenID)
	if err != nil {
		return err
	}

	p, err := e.ensurePool(poolID)
	if err != nil {
		return err
	}
	acct, err := e.ensureAccount(p, key)
	if err != nil {
		return err
	}
	enc, err := e.ensureEncumbrance(poolID, key)
	if err != nil {
		return err
	}

	e.settleAccount(p, acct)

	free := new(big.Int).Sub(acct.Principal, enc.Total())
	if free.Cmp(amount) < 0 {
		return &InsufficientPrincipalError{Available: free, Requested: new(big.Int).Set(amount)}
	}

	acct.Principal = new(big.Int).Sub(acct.Principal, amount)
	p.TotalDeposits = new(big.Int).Sub(p.TotalDeposits, amount)
	p.TrackedBalance = new(big.Int).Sub(p.TrackedBalance, amount)

	if err := e.checkBacking(p); err != nil {
		return err
	}
	if err := e.assets.TransferOut(p.Asset, caller, amount); err != nil {
		return err
	}
	if err := e.commit(p, acct); err != nil {
		return err
	}
	e.emit(newWithdrawEvent(poolID, key, amount))
	return nil
}

// CreditPrincipal adjusts a position's principal upward by the nominal amount
// while moving the tracked balance by the externally observed asset movement.
// It is used by trade and loan settlement where the caller has already moved
// assets through the bridge and knows the actual received amount.
func (e *Engine) CreditPrincipal(poolID string, key PositionKey, nominal, actualReceived *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if nominal == nil || nominal.Sign() <= 0 {
		return errInvalidAmount
	}
	if actualReceived == nil {
		actualReceived = big.NewInt(0)
	}
	p, err := e.ensurePool(poolID)
	if err != nil {
		return err
	}
	acct, err := e.ensureAccount(p, key)
	if err != nil {
		return err
	}

	e.settleAccount(p, acct)

	acct.Principal = new(big.Int).Add(acct.Principal, nominal)
	p.TotalDeposits = new(big.Int).Add(p.TotalDeposits, nominal)
	p.TrackedBalance = new(big.Int).Add(p.TrackedBalance, actualReceived)

	if err := e.checkBacking(p); err != nil {
		return err
	}
	return e.commit(p, acct)
}

// DebitPrincipal is the inverse of CreditPrincipal; it fails when the nominal
// amount exceeds the position's unencumbered principal.
func (e *Engine) DebitPrincipal(poolID string, key PositionKey, nominal, actualMoved *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if nominal == nil || nominal.Sign() <= 0 {
		return errInvalidAmount
	}
	if actualMoved == nil {
		actualMoved = big.NewInt(0)
	}
	p, err := e.ensurePool(poolID)
	if err != nil {
		return err
	}
	acct, err := e.ensureAccount(p, key)
	if err != nil {
		return err
	}
	enc, err := e.ensureEncumbrance(poolID, key)
	if err != nil {
		return err
	}

	e.settleAccount(p, acct)

	free := new(big.Int).Sub(acct.Principal, enc.Total())
	if free.Cmp(nominal) < 0 {
		return &InsufficientPrincipalError{Available: free, Requested: new(big.Int).Set(nominal)}
	}

	acct.Principal = new(big.Int).Sub(acct.Principal, nominal)
	p.TotalDeposits = new(big.Int).Sub(p.TotalDeposits, nominal)
	p.TrackedBalance = new(big.Int).Sub(p.TrackedBalance, actualMoved)

	if err := e.checkBacking(p); err != nil {
		return err
	}
	return e.commit(p, acct)
}

// PendingYield reports the yield the position could settle right now without
// mutating any state.
func (e *Engine) PendingYield(poolID string, key PositionKey) (*big.Int, error) {
	p, err := e.ensurePool(poolID)
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureAccount(p, key)
	if err != nil {
		return nil, err
	}
	pending := new(big.Int).Set(acct.AccruedYield)
	pending.Add(pending, p.FeeIndex.Pending(acct.Principal, acct.FeeSnapshot))
	pending.Add(pending, p.MaintenanceIndex.Pending(acct.Principal, acct.MaintenanceSnapshot))
	pending.Add(pending, p.ActiveCreditIndex.Pending(acct.Principal, acct.ActiveCreditSnapshot))
	return pending, nil
}

// Settle rolls all index-owed value for the position into its accrued yield
// balance and advances the snapshots. Settling twice with no intervening
// accrual yields zero the second time.
func (e *Engine) Settle(poolID string, key PositionKey) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	p, err := e.ensurePool(poolID)
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureAccount(p, key)
	if err != nil {
		return nil, err
	}
	settled := e.settleAccount(p, acct)
	if err := e.commit(p, acct); err != nil {
		return nil, err
	}
	return settled, nil
}

// ClaimYield settles the position and rolls its accrued yield into principal,
// draining the matching slice of the yield reserve.
func (e *Engine) ClaimYield(caller [20]byte, tokenID uint64, poolID string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	key, err := e.Authorize(caller, tokenID)
	if err != nil {
		return nil, err
	}
	p, err := e.ensurePool(poolID)
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureAccount(p, key)
	if err != nil {
		return nil, err
	}

	e.settleAccount(p, acct)
	claimed := new(big.Int).Set(acct.AccruedYield)
	if claimed.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if p.YieldReserve.Cmp(claimed) < 0 {
		return nil, errYieldReserveShort
	}

	acct.AccruedYield = big.NewInt(0)
	acct.Principal = new(big.Int).Add(acct.Principal, claimed)
	p.TotalDeposits = new(big.Int).Add(p.TotalDeposits, claimed)
	p.YieldReserve = new(big.Int).Sub(p.YieldReserve, claimed)

	if err := e.checkBacking(p); err != nil {
		return nil, err
	}
	if err := e.commit(p, acct); err != nil {
		return nil, err
	}
	e.emit(newYieldClaimedEvent(poolID, key, claimed))
	return claimed, nil
}

// AccrueMaintenanceFee records maintenance fee value that has already arrived
// in ledger custody and distributes it across depositors through the
// maintenance index.
func (e *Engine) AccrueMaintenanceFee(poolID string, actualReceived *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if actualReceived == nil || actualReceived.Sign() <= 0 {
		return errInvalidAmount
	}
	p, err := e.ensurePool(poolID)
	if err != nil {
		return err
	}
	p.TrackedBalance = new(big.Int).Add(p.TrackedBalance, actualReceived)
	p.YieldReserve = new(big.Int).Add(p.YieldReserve, actualReceived)
	p.MaintenanceIndex.Accrue(actualReceived, p.TotalDeposits)
	if err := e.checkBacking(p); err != nil {
		return err
	}
	return e.state.PutPool(poolID, p)
}

// AccrueFeeIndex records protocol fee value that has already arrived in
// ledger custody and distributes it across depositors through the fee index,
// backed by the yield reserve.
func (e *Engine) AccrueFeeIndex(poolID string, actualReceived *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if actualReceived == nil || actualReceived.Sign() <= 0 {
		return errInvalidAmount
	}
	p, err := e.ensurePool(poolID)
	if err != nil {
		return err
	}
	p.TrackedBalance = new(big.Int).Add(p.TrackedBalance, actualReceived)
	p.YieldReserve = new(big.Int).Add(p.YieldReserve, actualReceived)
	p.FeeIndex.Accrue(actualReceived, p.TotalDeposits)
	if err := e.checkBacking(p); err != nil {
		return err
	}
	return e.state.PutPool(poolID, p)
}

// AccrueActiveCredit records active-credit fee value that has already arrived
// in ledger custody. The value sits in the active-credit float until position
// settlement moves it into the yield reserve.
func (e *Engine) AccrueActiveCredit(poolID string, actualReceived *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if actualReceived == nil || actualReceived.Sign() <= 0 {
		return errInvalidAmount
	}
	p, err := e.ensurePool(poolID)
	if err != nil {
		return err
	}
	p.TrackedBalance = new(big.Int).Add(p.TrackedBalance, actualReceived)
	p.ActiveCreditPrincipal = new(big.Int).Add(p.ActiveCreditPrincipal, actualReceived)
	p.ActiveCreditIndex.Accrue(actualReceived, p.TotalDeposits)
	if err := e.checkBacking(p); err != nil {
		return err
	}
	return e.state.PutPool(poolID, p)
}

// ApplyAuctionSettlement reconciles flash-accounted reserves back into pool
// accounting exactly once per auction side. The maker is settled first, the
// lent encumbrance released, and the principal, yield reserve and fee indices
// adjusted in one atomic step.
func (e *Engine) ApplyAuctionSettlement(poolID string, s AuctionSettlement) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	p, err := e.ensurePool(poolID)
	if err != nil {
		return err
	}
	acct, err := e.ensureAccount(p, s.Position)
	if err != nil {
		return err
	}
	enc, err := e.ensureEncumbrance(poolID, s.Position)
	if err != nil {
		return err
	}

	e.settleAccount(p, acct)

	if s.ReleaseLent != nil && s.ReleaseLent.Sign() > 0 {
		enc.Lent = new(big.Int).Sub(enc.Lent, s.ReleaseLent)
		if enc.Lent.Sign() < 0 {
			enc.Lent = big.NewInt(0)
		}
	}

	principalDelta := s.PrincipalDelta
	if principalDelta == nil {
		principalDelta = big.NewInt(0)
	}
	makerYield := s.MakerYield
	if makerYield == nil {
		makerYield = big.NewInt(0)
	}
	feeIndexAccrual := s.FeeIndexAccrual
	if feeIndexAccrual == nil {
		feeIndexAccrual = big.NewInt(0)
	}
	activeCreditAccrual := s.ActiveCreditAccrual
	if activeCreditAccrual == nil {
		activeCreditAccrual = big.NewInt(0)
	}

	acct.Principal = new(big.Int).Add(acct.Principal, principalDelta)
	if acct.Principal.Sign() < 0 {
		return &InsufficientPrincipalError{
			Available: new(big.Int).Sub(acct.Principal, principalDelta),
			Requested: new(big.Int).Neg(principalDelta),
		}
	}
	p.TotalDeposits = new(big.Int).Add(p.TotalDeposits, principalDelta)

	acct.AccruedYield = new(big.Int).Add(acct.AccruedYield, makerYield)
	p.YieldReserve = new(big.Int).Add(p.YieldReserve, makerYield)
	p.YieldReserve.Add(p.YieldReserve, feeIndexAccrual)

	// The full physical custody handed back by the auction for this side.
	trackedDelta := new(big.Int).Add(principalDelta, makerYield)
	trackedDelta.Add(trackedDelta, feeIndexAccrual)
	trackedDelta.Add(trackedDelta, activeCreditAccrual)
	p.TrackedBalance = new(big.Int).Add(p.TrackedBalance, trackedDelta)

	p.ActiveCreditPrincipal = new(big.Int).Add(p.ActiveCreditPrincipal, activeCreditAccrual)

	p.FeeIndex.Accrue(feeIndexAccrual, p.TotalDeposits)
	p.ActiveCreditIndex.Accrue(activeCreditAccrual, p.TotalDeposits)

	if err := e.checkEncumbrance(acct, enc); err != nil {
		return err
	}
	if err := e.checkBacking(p); err != nil {
		return err
	}
	if err := e.state.PutEncumbrance(poolID, enc); err != nil {
		return err
	}
	return e.commit(p, acct)
}

func (e *Engine) ensurePool(poolID string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, err := e.state.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errUnknownPool
	}
	p.normalize()
	return p, nil
}

// ensureAccount loads or initialises a position account. Fresh accounts take
// their index snapshots at the current values so they cannot claim history.
func (e *Engine) ensureAccount(p *Pool, key PositionKey) (*PositionAccount, error) {
	acct, err := e.state.GetPosition(p.ID, key)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &PositionAccount{
			Key:                  key,
			Principal:            big.NewInt(0),
			FeeSnapshot:          p.FeeIndex.Snapshot(),
			MaintenanceSnapshot:  p.MaintenanceIndex.Snapshot(),
			ActiveCreditSnapshot: p.ActiveCreditIndex.Snapshot(),
			AccruedYield:         big.NewInt(0),
		}
	}
	acct.normalize()
	return acct, nil
}

func (e *Engine) ensureEncumbrance(poolID string, key PositionKey) (*Encumbrance, error) {
	enc, err := e.state.GetEncumbrance(poolID, key)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		enc = &Encumbrance{Position: key}
	}
	enc.normalize()
	return enc, nil
}

// settleAccount is the single settle-before-mutate helper: every operation
// that changes a position's share of the pool must run it first.
func (e *Engine) settleAccount(p *Pool, acct *PositionAccount) *big.Int {
	pendingFee := p.FeeIndex.Pending(acct.Principal, acct.FeeSnapshot)
	pendingMaint := p.MaintenanceIndex.Pending(acct.Principal, acct.MaintenanceSnapshot)
	pendingCredit := p.ActiveCreditIndex.Pending(acct.Principal, acct.ActiveCreditSnapshot)

	total := new(big.Int).Add(pendingFee, pendingMaint)
	total.Add(total, pendingCredit)

	if total.Sign() > 0 {
		acct.AccruedYield = new(big.Int).Add(acct.AccruedYield, total)
	}
	if pendingCredit.Sign() > 0 {
		// Active-credit value moves from the float into the yield reserve
		// as positions notice it.
		move := pendingCredit
		if p.ActiveCreditPrincipal.Cmp(move) < 0 {
			move = new(big.Int).Set(p.ActiveCreditPrincipal)
		}
		p.ActiveCreditPrincipal = new(big.Int).Sub(p.ActiveCreditPrincipal, move)
		p.YieldReserve = new(big.Int).Add(p.YieldReserve, move)
	}

	acct.FeeSnapshot = p.FeeIndex.Snapshot()
	acct.MaintenanceSnapshot = p.MaintenanceIndex.Snapshot()
	acct.ActiveCreditSnapshot = p.ActiveCreditIndex.Snapshot()
	return total
}

func (e *Engine) checkEncumbrance(acct *PositionAccount, enc *Encumbrance) error {
	if enc.Total().Cmp(acct.Principal) > 0 {
		return errEncumbranceExceeds
	}
	return nil
}

// checkBacking enforces the core invariant after every mutation:
// tracked + active credit float must cover deposits + unclaimed yield.
func (e *Engine) checkBacking(p *Pool) error {
	lhs := new(big.Int).Add(p.TrackedBalance, p.ActiveCreditPrincipal)
	rhs := new(big.Int).Add(p.TotalDeposits, p.YieldReserve)
	if lhs.Cmp(rhs) >= 0 {
		return nil
	}
	err := &BackingInvariantError{
		PoolID:         p.ID,
		TrackedBalance: new(big.Int).Set(p.TrackedBalance),
		ActiveCredit:   new(big.Int).Set(p.ActiveCreditPrincipal),
		TotalDeposits:  new(big.Int).Set(p.TotalDeposits),
		YieldReserve:   new(big.Int).Set(p.YieldReserve),
	}
	if e.logger != nil {
		e.logger.Error("backing invariant violated, aborting operation",
			"pool", p.ID,
			"tracked", p.TrackedBalance.String(),
			"active_credit", p.ActiveCreditPrincipal.String(),
			"deposits", p.TotalDeposits.String(),
			"yield_reserve", p.YieldReserve.String(),
		)
	}
	return err
}

func (e *Engine) commit(p *Pool, acct *PositionAccount) error {
	if err := e.state.PutPosition(p.ID, acct); err != nil {
		return err
	}
	return e.state.PutPool(p.ID, p)
}
