package state

import (
	"math/big"
	"testing"

	"fluxpool/native/auction"
	"fluxpool/native/pool"
)

func TestManagerReturnsCopies(t *testing.T) {
	m := NewManager()
	p := pool.NewPool("alpha", [20]byte{0xaa})
	p.TotalDeposits = big.NewInt(100)
	if err := m.PutPool("alpha", p); err != nil {
		t.Fatalf("put pool: %v", err)
	}

	// Mutating the stored-from value must not leak into the arena.
	p.TotalDeposits.SetInt64(999)
	got, err := m.GetPool("alpha")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if got.TotalDeposits.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("stored deposits = %s, caller mutation leaked in", got.TotalDeposits)
	}

	// Mutating a read copy must not change the arena either.
	got.TotalDeposits.SetInt64(777)
	again, _ := m.GetPool("alpha")
	if again.TotalDeposits.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("stored deposits = %s, read mutation leaked in", again.TotalDeposits)
	}
}

func TestManagerMissingRecords(t *testing.T) {
	m := NewManager()
	if p, err := m.GetPool("missing"); err != nil || p != nil {
		t.Fatalf("missing pool: %v %v", p, err)
	}
	if acct, err := m.GetPosition("missing", pool.PositionKey{1}); err != nil || acct != nil {
		t.Fatalf("missing position: %v %v", acct, err)
	}
	if _, ok := m.AuctionGet([32]byte{1}); ok {
		t.Fatalf("missing auction reported present")
	}
	// Removing what is not there is a no-op.
	m.MakerRemove([32]byte{1}, pool.PositionKey{1})
}

func TestManagerMakerRoundTrip(t *testing.T) {
	m := NewManager()
	mp := &auction.MakerPosition{
		AuctionID: [32]byte{0x02},
		Position:  pool.PositionKey{0x03},
		Share:     big.NewInt(42),
	}
	m.MakerPut(mp)

	got, ok := m.MakerGet(mp.AuctionID, mp.Position)
	if !ok {
		t.Fatalf("maker not found")
	}
	if got.Share.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("share = %s, want 42", got.Share)
	}
	if makers := m.MakersOf(mp.AuctionID); len(makers) != 1 {
		t.Fatalf("MakersOf returned %d entries", len(makers))
	}

	m.MakerRemove(mp.AuctionID, mp.Position)
	if _, ok := m.MakerGet(mp.AuctionID, mp.Position); ok {
		t.Fatalf("maker survived removal")
	}
	if makers := m.MakersOf(mp.AuctionID); makers != nil {
		t.Fatalf("MakersOf after removal = %v", makers)
	}
}

func TestManagerEncumbranceKeyedByPosition(t *testing.T) {
	m := NewManager()
	enc := &pool.Encumbrance{Position: pool.PositionKey{0x07}, Locked: big.NewInt(5)}
	if err := m.PutEncumbrance("alpha", enc); err != nil {
		t.Fatalf("put encumbrance: %v", err)
	}
	got, err := m.GetEncumbrance("alpha", enc.Position)
	if err != nil {
		t.Fatalf("get encumbrance: %v", err)
	}
	if got.Locked.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("locked = %s, want 5", got.Locked)
	}
	if other, _ := m.GetEncumbrance("beta", enc.Position); other != nil {
		t.Fatalf("encumbrance visible in the wrong pool")
	}
}
