package pool

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState           = errors.New("pool engine: state not configured")
	errNilRegistry        = errors.New("pool engine: position registry not configured")
	errNilAssets          = errors.New("pool engine: asset bridge not configured")
	errUnknownPool        = errors.New("pool engine: unknown pool")
	errPoolExists         = errors.New("pool engine: pool already exists")
	errInvalidAmount      = errors.New("pool engine: amount must be positive")
	errUnauthorized       = errors.New("pool engine: caller is not owner or approved operator")
	errYieldReserveShort  = errors.New("pool engine: yield reserve cannot cover claim")
	errEncumbranceExceeds = errors.New("pool engine: encumbrance exceeds principal")
)

// InsufficientPrincipalError reports an encumbrance or withdrawal request that
// exceeds the position's unencumbered principal in the pool.
type InsufficientPrincipalError struct {
	Available *big.Int
	Requested *big.Int
}

func (e *InsufficientPrincipalError) Error() string {
	return fmt.Sprintf("pool engine: insufficient principal: available %s, requested %s", e.Available, e.Requested)
}

// BackingInvariantError signals that an operation would leave the pool's
// tracked holdings unable to cover outstanding claims. It is a logic defect,
// never a normal runtime outcome; the triggering operation is discarded whole.
type BackingInvariantError struct {
	PoolID         string
	TrackedBalance *big.Int
	ActiveCredit   *big.Int
	TotalDeposits  *big.Int
	YieldReserve   *big.Int
}

func (e *BackingInvariantError) Error() string {
	return fmt.Sprintf("pool engine: backing invariant violated for pool %s: tracked %s + active credit %s < deposits %s + yield reserve %s",
		e.PoolID, e.TrackedBalance, e.ActiveCredit, e.TotalDeposits, e.YieldReserve)
}
