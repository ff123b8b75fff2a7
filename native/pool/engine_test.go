package pool

import (
	"errors"
	"math/big"
	"testing"
)

type mockState struct {
	pools        map[string]*Pool
	positions    map[string]map[PositionKey]*PositionAccount
	encumbrances map[string]map[PositionKey]*Encumbrance
}

func newMockState() *mockState {
	return &mockState{
		pools:        make(map[string]*Pool),
		positions:    make(map[string]map[PositionKey]*PositionAccount),
		encumbrances: make(map[string]map[PositionKey]*Encumbrance),
	}
}

func (m *mockState) GetPool(poolID string) (*Pool, error) {
	return m.pools[poolID].Clone(), nil
}

func (m *mockState) PutPool(poolID string, p *Pool) error {
	m.pools[poolID] = p.Clone()
	return nil
}

func (m *mockState) GetPosition(poolID string, key PositionKey) (*PositionAccount, error) {
	return m.positions[poolID][key].Clone(), nil
}

func (m *mockState) PutPosition(poolID string, acct *PositionAccount) error {
	if m.positions[poolID] == nil {
		m.positions[poolID] = make(map[PositionKey]*PositionAccount)
	}
	m.positions[poolID][acct.Key] = acct.Clone()
	return nil
}

func (m *mockState) GetEncumbrance(poolID string, key PositionKey) (*Encumbrance, error) {
	return m.encumbrances[poolID][key].Clone(), nil
}

func (m *mockState) PutEncumbrance(poolID string, enc *Encumbrance) error {
	if m.encumbrances[poolID] == nil {
		m.encumbrances[poolID] = make(map[PositionKey]*Encumbrance)
	}
	m.encumbrances[poolID][enc.Position] = enc.Clone()
	return nil
}

type mockRegistry struct {
	owners    map[uint64][20]byte
	operators map[[20]byte][20]byte
}

func (m *mockRegistry) ResolvePositionKey(tokenID uint64) (PositionKey, error) {
	var key PositionKey
	key[0] = byte(tokenID)
	key[1] = byte(tokenID >> 8)
	return key, nil
}

func (m *mockRegistry) OwnerOf(tokenID uint64) ([20]byte, error) {
	owner, ok := m.owners[tokenID]
	if !ok {
		return [20]byte{}, errors.New("registry: unknown token")
	}
	return owner, nil
}

func (m *mockRegistry) IsApprovedOperator(owner, caller [20]byte) bool {
	return m.operators[owner] == caller
}

// mockBridge transfers exactly what is asked minus an optional flat fee, to
// model fee-on-transfer assets.
type mockBridge struct {
	transferFee *big.Int
	outbound    []*big.Int
	outboundTo  [][20]byte
}

func (m *mockBridge) TransferIn(asset, from [20]byte, amount *big.Int) (*big.Int, error) {
	actual := new(big.Int).Set(amount)
	if m.transferFee != nil {
		actual.Sub(actual, m.transferFee)
	}
	return actual, nil
}

func (m *mockBridge) TransferOut(asset, to [20]byte, amount *big.Int) error {
	m.outbound = append(m.outbound, new(big.Int).Set(amount))
	m.outboundTo = append(m.outboundTo, to)
	return nil
}

const testPool = "alpha"

var (
	testAsset  = [20]byte{0xaa}
	owner      = [20]byte{0x01}
	otherOwner = [20]byte{0x02}
)

func newTestEngine(t *testing.T) (*Engine, *mockState, *mockBridge) {
	t.Helper()
	st := newMockState()
	bridge := &mockBridge{}
	eng := NewEngine()
	eng.SetState(st)
	eng.SetRegistry(&mockRegistry{owners: map[uint64][20]byte{
		1: owner,
		2: otherOwner,
	}})
	eng.SetAssets(bridge)
	if err := eng.CreatePool(testPool, testAsset); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return eng, st, bridge
}

func positionKey(tokenID uint64) PositionKey {
	var key PositionKey
	key[0] = byte(tokenID)
	key[1] = byte(tokenID >> 8)
	return key
}

func mustBacking(t *testing.T, eng *Engine, poolID string) {
	t.Helper()
	p, err := eng.PoolSnapshot(poolID)
	if err != nil {
		t.Fatalf("pool snapshot: %v", err)
	}
	lhs := new(big.Int).Add(p.TrackedBalance, p.ActiveCreditPrincipal)
	rhs := new(big.Int).Add(p.TotalDeposits, p.YieldReserve)
	if lhs.Cmp(rhs) < 0 {
		t.Fatalf("backing violated: tracked+credit=%s < deposits+reserve=%s", lhs, rhs)
	}
}

func TestDepositCreditsActualReceived(t *testing.T) {
	eng, _, bridge := newTestEngine(t)
	bridge.transferFee = big.NewInt(7)

	actual, err := eng.Deposit(owner, 1, testPool, big.NewInt(1000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if actual.Cmp(big.NewInt(993)) != 0 {
		t.Fatalf("actual = %s, want 993", actual)
	}
	acct, err := eng.PositionSnapshot(testPool, positionKey(1))
	if err != nil {
		t.Fatalf("position snapshot: %v", err)
	}
	if acct.Principal.Cmp(big.NewInt(993)) != 0 {
		t.Fatalf("principal = %s, want the received amount", acct.Principal)
	}
	mustBacking(t, eng, testPool)
}

func TestWithdrawRespectsEncumbrance(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	key := positionKey(1)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := eng.LockCollateral(testPool, key, big.NewInt(600)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	err := eng.Withdraw(owner, 1, testPool, big.NewInt(500))
	var short *InsufficientPrincipalError
	if !errors.As(err, &short) {
		t.Fatalf("withdraw over encumbrance: got %v, want InsufficientPrincipalError", err)
	}
	if short.Available.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("available = %s, want 400", short.Available)
	}

	if err := eng.Withdraw(owner, 1, testPool, big.NewInt(400)); err != nil {
		t.Fatalf("withdraw free principal: %v", err)
	}
	mustBacking(t, eng, testPool)
}

func TestEncumbranceCannotExceedPrincipal(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	key := positionKey(1)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := eng.LockCollateral(testPool, key, big.NewInt(60)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := eng.LockAmmReserves(testPool, key, big.NewInt(30)); err != nil {
		t.Fatalf("lend: %v", err)
	}

	err := eng.EscrowOffer(testPool, key, big.NewInt(20))
	var short *InsufficientPrincipalError
	if !errors.As(err, &short) {
		t.Fatalf("escrow beyond principal: got %v, want InsufficientPrincipalError", err)
	}

	enc, err := eng.EncumbranceSnapshot(testPool, key)
	if err != nil {
		t.Fatalf("encumbrance snapshot: %v", err)
	}
	if enc.Total().Cmp(big.NewInt(90)) != 0 {
		t.Fatalf("encumbered total = %s, want 90", enc.Total())
	}
}

func TestReleaseSaturatesAtZero(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	key := positionKey(1)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := eng.LockCollateral(testPool, key, big.NewInt(40)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := eng.UnlockCollateral(testPool, key, big.NewInt(90)); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	enc, err := eng.EncumbranceSnapshot(testPool, key)
	if err != nil {
		t.Fatalf("encumbrance snapshot: %v", err)
	}
	if enc.Locked.Sign() != 0 {
		t.Fatalf("locked = %s after over-release, want 0", enc.Locked)
	}
}

func TestMaintenanceFeeDistributesByPrincipal(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(300)); err != nil {
		t.Fatalf("deposit owner: %v", err)
	}
	if _, err := eng.Deposit(otherOwner, 2, testPool, big.NewInt(100)); err != nil {
		t.Fatalf("deposit other: %v", err)
	}

	if err := eng.AccrueMaintenanceFee(testPool, big.NewInt(400)); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	pending, err := eng.PendingYield(testPool, positionKey(1))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("owner pending = %s, want 300", pending)
	}
	pending, err = eng.PendingYield(testPool, positionKey(2))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("other pending = %s, want 100", pending)
	}
	mustBacking(t, eng, testPool)
}

func TestAccrueFeeIndexBacksYieldReserve(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(300)); err != nil {
		t.Fatalf("deposit owner: %v", err)
	}
	if _, err := eng.Deposit(otherOwner, 2, testPool, big.NewInt(100)); err != nil {
		t.Fatalf("deposit other: %v", err)
	}

	if err := eng.AccrueFeeIndex(testPool, big.NewInt(200)); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	pending, err := eng.PendingYield(testPool, positionKey(1))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("owner pending = %s, want 150", pending)
	}
	pending, err = eng.PendingYield(testPool, positionKey(2))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("other pending = %s, want 50", pending)
	}

	p, err := eng.PoolSnapshot(testPool)
	if err != nil {
		t.Fatalf("pool snapshot: %v", err)
	}
	if p.YieldReserve.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("yield reserve = %s, want the full accrual", p.YieldReserve)
	}
	mustBacking(t, eng, testPool)
}

func TestLateDepositorDoesNotClaimEarlierYield(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(500)); err != nil {
		t.Fatalf("deposit owner: %v", err)
	}
	if err := eng.AccrueMaintenanceFee(testPool, big.NewInt(100)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if _, err := eng.Deposit(otherOwner, 2, testPool, big.NewInt(500)); err != nil {
		t.Fatalf("deposit other: %v", err)
	}

	pending, err := eng.PendingYield(testPool, positionKey(2))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Sign() != 0 {
		t.Fatalf("late depositor pending = %s, want 0", pending)
	}
}

func TestClaimYieldRollsIntoPrincipal(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := eng.AccrueMaintenanceFee(testPool, big.NewInt(100)); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	claimed, err := eng.ClaimYield(owner, 1, testPool)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("claimed = %s, want 100", claimed)
	}
	acct, err := eng.PositionSnapshot(testPool, positionKey(1))
	if err != nil {
		t.Fatalf("position snapshot: %v", err)
	}
	if acct.Principal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("principal after claim = %s, want 600", acct.Principal)
	}
	p, err := eng.PoolSnapshot(testPool)
	if err != nil {
		t.Fatalf("pool snapshot: %v", err)
	}
	if p.YieldReserve.Sign() != 0 {
		t.Fatalf("yield reserve = %s after full claim, want 0", p.YieldReserve)
	}
	mustBacking(t, eng, testPool)

	again, err := eng.ClaimYield(owner, 1, testPool)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again.Sign() != 0 {
		t.Fatalf("second claim = %s, want 0", again)
	}
}

func TestActiveCreditFloatDrainsOnSettle(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := eng.AccrueActiveCredit(testPool, big.NewInt(50)); err != nil {
		t.Fatalf("accrue credit: %v", err)
	}

	p, err := eng.PoolSnapshot(testPool)
	if err != nil {
		t.Fatalf("pool snapshot: %v", err)
	}
	if p.ActiveCreditPrincipal.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("credit float = %s, want 50", p.ActiveCreditPrincipal)
	}

	settled, err := eng.Settle(testPool, positionKey(1))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("settled = %s, want 50", settled)
	}
	p, err = eng.PoolSnapshot(testPool)
	if err != nil {
		t.Fatalf("pool snapshot: %v", err)
	}
	if p.ActiveCreditPrincipal.Sign() != 0 {
		t.Fatalf("credit float = %s after settle, want 0", p.ActiveCreditPrincipal)
	}
	if p.YieldReserve.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("yield reserve = %s after settle, want 50", p.YieldReserve)
	}
	mustBacking(t, eng, testPool)
}

func TestApplyAuctionSettlementReconcilesBooks(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	key := positionKey(1)
	if _, err := eng.Deposit(owner, 1, testPool, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := eng.LockAmmReserves(testPool, key, big.NewInt(400)); err != nil {
		t.Fatalf("lend: %v", err)
	}

	// Auction returned the 400 lent plus 60 of external inflow, decomposed
	// into trading P&L, maker fee and protocol shares.
	err := eng.ApplyAuctionSettlement(testPool, AuctionSettlement{
		Position:            key,
		ReleaseLent:         big.NewInt(400),
		PrincipalDelta:      big.NewInt(25),
		MakerYield:          big.NewInt(20),
		FeeIndexAccrual:     big.NewInt(10),
		ActiveCreditAccrual: big.NewInt(5),
	})
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}

	enc, err := eng.EncumbranceSnapshot(testPool, key)
	if err != nil {
		t.Fatalf("encumbrance snapshot: %v", err)
	}
	if enc.Lent.Sign() != 0 {
		t.Fatalf("lent = %s after release, want 0", enc.Lent)
	}
	p, err := eng.PoolSnapshot(testPool)
	if err != nil {
		t.Fatalf("pool snapshot: %v", err)
	}
	if p.TrackedBalance.Cmp(big.NewInt(1060)) != 0 {
		t.Fatalf("tracked = %s, want 1060", p.TrackedBalance)
	}
	if p.TotalDeposits.Cmp(big.NewInt(1025)) != 0 {
		t.Fatalf("deposits = %s, want 1025", p.TotalDeposits)
	}
	mustBacking(t, eng, testPool)

	// Maker fee plus the protocol fee-index share (sole depositor) plus the
	// active-credit share all become claimable yield. Index scaling floors
	// each share: 20 + 9 + 4.
	claimed, err := eng.ClaimYield(owner, 1, testPool)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("claimed = %s, want 33", claimed)
	}
	mustBacking(t, eng, testPool)
}

func TestUnauthorizedCallerRejected(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.Deposit(otherOwner, 1, testPool, big.NewInt(100)); !errors.Is(err, errUnauthorized) {
		t.Fatalf("deposit by non-owner: got %v, want errUnauthorized", err)
	}
}

func TestOperatorMayActForOwner(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	reg := &mockRegistry{
		owners:    map[uint64][20]byte{1: owner},
		operators: map[[20]byte][20]byte{owner: otherOwner},
	}
	eng.SetRegistry(reg)
	if _, err := eng.Deposit(otherOwner, 1, testPool, big.NewInt(100)); err != nil {
		t.Fatalf("operator deposit: %v", err)
	}
}
