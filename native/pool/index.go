package pool

import "math/big"

// indexScale is the fixed-point scale for cumulative indices, mirroring the
// 1e18 precision of the underlying assets.
var indexScale = big.NewInt(1_000_000_000_000_000_000)

// IndexScale returns a copy of the cumulative-index fixed-point scale.
func IndexScale() *big.Int { return new(big.Int).Set(indexScale) }

// CumulativeIndex is a monotonically non-decreasing accumulator recording the
// total value ever distributed per unit of share, scaled by indexScale. The
// truncated remainder of each accrual is carried into the next one, so the
// long-run distributed total converges to the true accrued total and at most
// one unit of the underlying asset is ever withheld.
type CumulativeIndex struct {
	Value     *big.Int
	Remainder *big.Int
}

// NewCumulativeIndex returns an index at its initial value of indexScale.
func NewCumulativeIndex() *CumulativeIndex {
	return &CumulativeIndex{
		Value:     new(big.Int).Set(indexScale),
		Remainder: big.NewInt(0),
	}
}

func (ix *CumulativeIndex) normalize() {
	if ix.Value == nil || ix.Value.Sign() == 0 {
		ix.Value = new(big.Int).Set(indexScale)
	}
	if ix.Remainder == nil {
		ix.Remainder = big.NewInt(0)
	}
}

// Accrue distributes amount across totalShares by advancing the index by
// floor((amount*scale + carried) / totalShares). Accruing against zero shares
// is a no-op: the funds are held by the caller but remain undistributed.
func (ix *CumulativeIndex) Accrue(amount, totalShares *big.Int) {
	if ix == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	ix.normalize()
	if totalShares == nil || totalShares.Sign() <= 0 {
		return
	}
	numerator := new(big.Int).Mul(amount, indexScale)
	numerator.Add(numerator, ix.Remainder)
	delta, rem := new(big.Int).QuoRem(numerator, totalShares, new(big.Int))
	ix.Value = new(big.Int).Add(ix.Value, delta)
	ix.Remainder = rem
}

// Pending computes the value owed to a holder of share units whose last
// settlement snapshot is snapshot: floor(share * (index - snapshot) / scale).
func (ix *CumulativeIndex) Pending(share, snapshot *big.Int) *big.Int {
	if ix == nil || share == nil || share.Sign() <= 0 {
		return big.NewInt(0)
	}
	ix.normalize()
	snap := snapshot
	if snap == nil || snap.Sign() == 0 {
		snap = indexScale
	}
	diff := new(big.Int).Sub(ix.Value, snap)
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	pending := new(big.Int).Mul(share, diff)
	return pending.Quo(pending, indexScale)
}

// Snapshot returns the current index value for snapshot bookkeeping.
func (ix *CumulativeIndex) Snapshot() *big.Int {
	if ix == nil {
		return new(big.Int).Set(indexScale)
	}
	ix.normalize()
	return new(big.Int).Set(ix.Value)
}

// Clone returns a deep copy of the index.
func (ix *CumulativeIndex) Clone() *CumulativeIndex {
	if ix == nil {
		return NewCumulativeIndex()
	}
	ix.normalize()
	return &CumulativeIndex{
		Value:     new(big.Int).Set(ix.Value),
		Remainder: new(big.Int).Set(ix.Remainder),
	}
}
