package auction

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState  = errors.New("auction: state not configured")
	errNilLedger = errors.New("auction: pool ledger not configured")
	errNilAssets = errors.New("auction: asset bridge not configured")
	errNilRouter = errors.New("auction: fee router not configured")

	errNotFound        = errors.New("auction: auction not found")
	errNotCreator      = errors.New("auction: caller is not the auction creator")
	errNotMaker        = errors.New("auction: position holds no maker stake")
	errInvalidAmount   = errors.New("auction: amount must be positive")
	errInvalidWindow   = errors.New("auction: trading window is invalid")
	errFeeTooHigh      = errors.New("auction: fee exceeds configured maximum")
	errSamePool        = errors.New("auction: sides must reference distinct pools")
	errUnknownAsset    = errors.New("auction: asset is not traded by this auction")
	errWindowOpen      = errors.New("auction: cancellation requires trading to not have started")
	errReserveMismatch = errors.New("auction: live auction exists with different reserves")

	// ErrNotActive is returned when trading is attempted outside the
	// active window of the auction lifecycle.
	ErrNotActive = errors.New("auction: auction is not active")
	// ErrExpired is returned when the trading window has closed.
	ErrExpired = errors.New("auction: trading window has expired")
	// ErrAlreadyFinalized is returned when a terminal auction is
	// finalized or cancelled again.
	ErrAlreadyFinalized = errors.New("auction: auction already settled")
)

// SlippageError reports a swap whose computed output fell below the caller's
// minimum. The input transfer is refunded before this error is returned.
type SlippageError struct {
	MinOut *big.Int
	Out    *big.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("auction: output %s below minimum %s", e.Out, e.MinOut)
}

// InvalidRatioError reports a community join whose token amounts deviate from
// the current reserve ratio beyond tolerance.
type InvalidRatioError struct {
	Expected *big.Int
	Got      *big.Int
}

func (e *InvalidRatioError) Error() string {
	return fmt.Sprintf("auction: deposit ratio mismatch: expected %s, got %s", e.Expected, e.Got)
}
