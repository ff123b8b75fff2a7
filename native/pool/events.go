package pool

import (
	"encoding/hex"
	"math/big"

	"fluxpool/core/events"
)

const (
	EventTypeDeposit            = "pool.deposit"
	EventTypeWithdraw           = "pool.withdraw"
	EventTypeYieldClaimed       = "pool.yield_claimed"
	EventTypeCollateralLocked   = "pool.collateral_locked"
	EventTypeCollateralUnlocked = "pool.collateral_unlocked"
)

func newPoolEvent(eventType, poolID string, key PositionKey, amount *big.Int) events.Event {
	amt := "0"
	if amount != nil {
		amt = amount.String()
	}
	return events.Event{
		Type: eventType,
		Attributes: map[string]string{
			"pool":     poolID,
			"position": hex.EncodeToString(key[:]),
			"amount":   amt,
		},
	}
}

func newDepositEvent(poolID string, key PositionKey, amount *big.Int) events.Event {
	return newPoolEvent(EventTypeDeposit, poolID, key, amount)
}

func newWithdrawEvent(poolID string, key PositionKey, amount *big.Int) events.Event {
	return newPoolEvent(EventTypeWithdraw, poolID, key, amount)
}

func newYieldClaimedEvent(poolID string, key PositionKey, amount *big.Int) events.Event {
	return newPoolEvent(EventTypeYieldClaimed, poolID, key, amount)
}

func newCollateralLockedEvent(poolID string, key PositionKey, amount *big.Int) events.Event {
	return newPoolEvent(EventTypeCollateralLocked, poolID, key, amount)
}

func newCollateralUnlockedEvent(poolID string, key PositionKey, amount *big.Int) events.Event {
	return newPoolEvent(EventTypeCollateralUnlocked, poolID, key, amount)
}
