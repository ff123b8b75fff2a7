package pool

import "math/big"

// PositionRegistry is the external ownership registry. The ledger authorizes
// callers solely through position-key equality plus this registry's approval
// check; it never records owner identity itself.
type PositionRegistry interface {
	ResolvePositionKey(tokenID uint64) (PositionKey, error)
	OwnerOf(tokenID uint64) ([20]byte, error)
	IsApprovedOperator(owner, caller [20]byte) bool
}

// AssetBridge moves underlying value in and out of ledger custody. TransferIn
// reports the amount actually received, which can be below the requested
// amount for fee-on-transfer assets; all ledger bookkeeping uses the actual
// amount, never the requested one.
type AssetBridge interface {
	TransferIn(asset [20]byte, from [20]byte, amount *big.Int) (*big.Int, error)
	TransferOut(asset [20]byte, to [20]byte, amount *big.Int) error
}
