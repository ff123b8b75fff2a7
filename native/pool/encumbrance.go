package pool

import (
	"math/big"

	nativecommon "fluxpool/native/common"
)

// The encumbrance ledger tracks temporary claims against principal in four
// categories. Increments validate against unencumbered principal; decrements
// never fail on arithmetic and only saturate at zero defensively. Asset
// movement and principal changes remain the caller's responsibility.

type encumbranceField int

const (
	fieldLocked encumbranceField = iota
	fieldLent
	fieldOfferEscrow
	fieldIndexBacked
)

func (enc *Encumbrance) counter(f encumbranceField) *big.Int {
	switch f {
	case fieldLocked:
		return enc.Locked
	case fieldLent:
		return enc.Lent
	case fieldOfferEscrow:
		return enc.OfferEscrow
	default:
		return enc.IndexBacked
	}
}

func (enc *Encumbrance) setCounter(f encumbranceField, v *big.Int) {
	switch f {
	case fieldLocked:
		enc.Locked = v
	case fieldLent:
		enc.Lent = v
	case fieldOfferEscrow:
		enc.OfferEscrow = v
	default:
		enc.IndexBacked = v
	}
}

func (e *Engine) encumber(poolID string, key PositionKey, amount *big.Int, f encumbranceField) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
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
	available := new(big.Int).Sub(acct.Principal, enc.Total())
	if available.Cmp(amount) < 0 {
		return &InsufficientPrincipalError{Available: available, Requested: new(big.Int).Set(amount)}
	}
	enc.setCounter(f, new(big.Int).Add(enc.counter(f), amount))
	return e.state.PutEncumbrance(poolID, enc)
}

func (e *Engine) release(poolID string, key PositionKey, amount *big.Int, f encumbranceField) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	enc, err := e.ensureEncumbrance(poolID, key)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(enc.counter(f), amount)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	enc.setCounter(f, next)
	return e.state.PutEncumbrance(poolID, enc)
}

// LockCollateral pledges principal as collateral for a single-maker
// derivative.
func (e *Engine) LockCollateral(poolID string, key PositionKey, amount *big.Int) error {
	if err := e.encumber(poolID, key, amount, fieldLocked); err != nil {
		return err
	}
	e.emit(newCollateralLockedEvent(poolID, key, amount))
	return nil
}

// UnlockCollateral releases previously locked collateral.
func (e *Engine) UnlockCollateral(poolID string, key PositionKey, amount *big.Int) error {
	if err := e.release(poolID, key, amount, fieldLocked); err != nil {
		return err
	}
	e.emit(newCollateralUnlockedEvent(poolID, key, amount))
	return nil
}

// LockAmmReserves diverts principal into an active auction as flash-accounted
// reserves.
func (e *Engine) LockAmmReserves(poolID string, key PositionKey, amount *big.Int) error {
	return e.encumber(poolID, key, amount, fieldLent)
}

// UnlockAmmReserves returns lent reserves to free principal.
func (e *Engine) UnlockAmmReserves(poolID string, key PositionKey, amount *big.Int) error {
	return e.release(poolID, key, amount, fieldLent)
}

// EscrowOffer reserves principal behind a standing offer.
func (e *Engine) EscrowOffer(poolID string, key PositionKey, amount *big.Int) error {
	return e.encumber(poolID, key, amount, fieldOfferEscrow)
}

// ReleaseOffer frees principal reserved behind a standing offer.
func (e *Engine) ReleaseOffer(poolID string, key PositionKey, amount *big.Int) error {
	return e.release(poolID, key, amount, fieldOfferEscrow)
}

// EncumberIndex marks principal as backing an index or bundle token.
func (e *Engine) EncumberIndex(poolID string, key PositionKey, amount *big.Int) error {
	return e.encumber(poolID, key, amount, fieldIndexBacked)
}

// ReleaseIndex frees principal that was backing an index or bundle token.
func (e *Engine) ReleaseIndex(poolID string, key PositionKey, amount *big.Int) error {
	return e.release(poolID, key, amount, fieldIndexBacked)
}
