package fees

import (
	"errors"
	"fmt"
	"math/big"
)

var basisPoints = big.NewInt(10_000)

var (
	errNegativeFee = errors.New("fee router: gross fee must not be negative")
)

// Config carries the protocol-side routing parameters. The treasury address
// is optional; without one the treasury share stays in the fee index share.
type Config struct {
	TreasuryAddress [20]byte
	HasTreasury     bool
	TreasuryBps     uint64
	ActiveCreditBps uint64
}

// Validate ensures the routing percentages cannot over-allocate the protocol
// share.
func (c Config) Validate() error {
	if c.TreasuryBps > 10_000 {
		return fmt.Errorf("fee router: treasury bps %d exceeds 100%%", c.TreasuryBps)
	}
	if c.ActiveCreditBps > 10_000 {
		return fmt.Errorf("fee router: active credit bps %d exceeds 100%%", c.ActiveCreditBps)
	}
	if c.TreasuryBps+c.ActiveCreditBps > 10_000 {
		return fmt.Errorf("fee router: treasury and active credit bps sum %d exceeds 100%%", c.TreasuryBps+c.ActiveCreditBps)
	}
	return nil
}

// Split is the four-way division of a collected gross fee. The shares always
// sum exactly to the gross fee.
type Split struct {
	Maker        *big.Int
	Treasury     *big.Int
	ActiveCredit *big.Int
	FeeIndex     *big.Int
}

// Router computes deterministic fee splits. It is pure: applying the split to
// ledger state (treasury transfer, index accrual, maker credit) is the
// caller's responsibility.
type Router struct {
	cfg Config
}

// NewRouter builds a router from a validated configuration.
func NewRouter(cfg Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Router{cfg: cfg}, nil
}

// Treasury reports the configured treasury address, if any.
func (r *Router) Treasury() ([20]byte, bool) {
	if r == nil {
		return [20]byte{}, false
	}
	return r.cfg.TreasuryAddress, r.cfg.HasTreasury
}

// Route splits grossFee into maker, treasury, active-credit and fee-index
// shares. Divisions are floored in this exact order so the rounding is
// deterministic; the fee-index share takes the remainder.
func (r *Router) Route(grossFee *big.Int, makerShareBps uint64) (Split, error) {
	if grossFee == nil {
		grossFee = big.NewInt(0)
	}
	if grossFee.Sign() < 0 {
		return Split{}, errNegativeFee
	}
	if makerShareBps > 10_000 {
		return Split{}, fmt.Errorf("fee router: maker share bps %d exceeds 100%%", makerShareBps)
	}

	maker := new(big.Int).Mul(grossFee, new(big.Int).SetUint64(makerShareBps))
	maker.Quo(maker, basisPoints)

	protocol := new(big.Int).Sub(grossFee, maker)

	treasury := big.NewInt(0)
	if r != nil && r.cfg.HasTreasury && r.cfg.TreasuryBps > 0 {
		treasury = new(big.Int).Mul(protocol, new(big.Int).SetUint64(r.cfg.TreasuryBps))
		treasury.Quo(treasury, basisPoints)
	}

	activeCredit := big.NewInt(0)
	if r != nil && r.cfg.ActiveCreditBps > 0 {
		activeCredit = new(big.Int).Mul(protocol, new(big.Int).SetUint64(r.cfg.ActiveCreditBps))
		activeCredit.Quo(activeCredit, basisPoints)
	}

	feeIndex := new(big.Int).Sub(protocol, treasury)
	feeIndex.Sub(feeIndex, activeCredit)

	return Split{
		Maker:        maker,
		Treasury:     treasury,
		ActiveCredit: activeCredit,
		FeeIndex:     feeIndex,
	}, nil
}
