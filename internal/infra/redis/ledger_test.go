package redis

import (
	"context"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestLedgerGrantIsIdempotent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ledger := NewLedger(newClient(mr))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Grant(ctx, "alice", 100, "room-1:1"); err != nil {
				t.Errorf("grant: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := ledger.Grant(ctx, "bob", 50, "room-1:2"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	alice, err := ledger.Balance(ctx, "alice")
	if err != nil || alice != 100 {
		t.Fatalf("expected alice 100 coins, got %d %v", alice, err)
	}
	bob, _ := ledger.Balance(ctx, "bob")
	if bob != 50 {
		t.Fatalf("expected bob 50 coins, got %d", bob)
	}
	nobody, err := ledger.Balance(ctx, "carol")
	if err != nil || nobody != 0 {
		t.Fatalf("expected empty balance, got %d %v", nobody, err)
	}
}

func TestLedgerGrantCard(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ledger := NewLedger(newClient(mr))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ledger.GrantCard(ctx, "alice", "golden-owl", "room-1:1"); err != nil {
			t.Fatalf("grant card: %v", err)
		}
	}
	if err := ledger.GrantCard(ctx, "alice", "golden-owl", "room-2:1"); err != nil {
		t.Fatalf("grant card: %v", err)
	}
	n, err := ledger.CardCount(ctx, "alice", "golden-owl")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 cards from two rooms, got %d %v", n, err)
	}

	// coin and card claims live in separate namespaces
	if err := ledger.Grant(ctx, "alice", 10, "room-1:1"); err != nil {
		t.Fatalf("grant coins: %v", err)
	}
	if coins, _ := ledger.Balance(ctx, "alice"); coins != 10 {
		t.Fatalf("expected coin grant to apply, got %d", coins)
	}
}
