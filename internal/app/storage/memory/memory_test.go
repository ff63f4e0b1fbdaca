package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/minted-network/escrow_layer/internal/app/domain/token"
)

func TestStore_StateRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetState(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for empty store, got %v", err)
	}

	saved, err := store.SaveState(ctx, token.State{
		Phase:   token.PhasePending,
		Creator: "wallet-creator",
		Royalty: token.Rate{Num: 1, Den: 100},
		Name:    "moon",
	})
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set on save")
	}

	got, err := store.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.Phase != token.PhasePending || got.Creator != "wallet-creator" {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestStore_DeleteState(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.DeleteState(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows deleting missing state, got %v", err)
	}

	if _, err := store.SaveState(ctx, token.State{Phase: token.PhasePending}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if err := store.DeleteState(ctx); err != nil {
		t.Fatalf("DeleteState failed: %v", err)
	}
	if _, err := store.GetState(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after delete, got %v", err)
	}
}

func TestStore_SaveStatePreservesCreatedAt(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.SaveState(ctx, token.State{Phase: token.PhasePending})
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	second, err := store.SaveState(ctx, token.State{Phase: token.PhaseReady, AssetID: "factory/escrow1controller/moon"})
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected CreatedAt to survive overwrite: first=%v second=%v", first.CreatedAt, second.CreatedAt)
	}
	if second.Phase != token.PhaseReady {
		t.Fatalf("expected overwritten phase, got %s", second.Phase)
	}
}

func TestStore_ListingLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetListing(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing listing, got %v", err)
	}
	if err := store.DeleteListing(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows deleting missing listing, got %v", err)
	}

	saved, err := store.PutListing(ctx, token.Listing{
		Seller: "wallet-creator",
		Price:  token.Coin{Denom: "uosmo", Amount: 100},
	})
	if err != nil {
		t.Fatalf("PutListing failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected a generated listing id")
	}

	got, err := store.GetListing(ctx)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if got.ID != saved.ID || got.Price.Amount != 100 {
		t.Fatalf("unexpected listing: %+v", got)
	}

	if err := store.DeleteListing(ctx); err != nil {
		t.Fatalf("DeleteListing failed: %v", err)
	}
	if _, err := store.GetListing(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after delete, got %v", err)
	}
}

func TestStore_PutListingReplacesPrior(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.PutListing(ctx, token.Listing{
		Seller: "wallet-creator",
		Price:  token.Coin{Denom: "uosmo", Amount: 100},
	})
	if err != nil {
		t.Fatalf("PutListing failed: %v", err)
	}

	second, err := store.PutListing(ctx, token.Listing{
		Seller: "wallet-creator",
		Price:  token.Coin{Denom: "uosmo", Amount: 250},
	})
	if err != nil {
		t.Fatalf("PutListing failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh id for the replacement listing")
	}

	got, err := store.GetListing(ctx)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if got.Price.Amount != 250 {
		t.Fatalf("expected the replacement listing, got %+v", got)
	}
}

func TestStore_PayoutQueue(t *testing.T) {
	store := New()
	ctx := context.Background()

	if pending, err := store.ListPayouts(ctx); err != nil || len(pending) != 0 {
		t.Fatalf("expected empty queue, got %v / %v", pending, err)
	}
	if err := store.DeletePayout(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows deleting missing payout, got %v", err)
	}

	first, err := store.AppendPayout(ctx, token.Payout{To: "wallet-a", Amount: token.Coin{Denom: "uosmo", Amount: 5}})
	if err != nil {
		t.Fatalf("AppendPayout failed: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp: %+v", first)
	}
	second, err := store.AppendPayout(ctx, token.Payout{To: "wallet-b", Amount: token.Coin{Denom: "uosmo", Amount: 7}})
	if err != nil {
		t.Fatalf("AppendPayout failed: %v", err)
	}

	pending, err := store.ListPayouts(ctx)
	if err != nil {
		t.Fatalf("ListPayouts failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("queue order broken: %+v", pending)
	}

	if err := store.DeletePayout(ctx, first.ID); err != nil {
		t.Fatalf("DeletePayout failed: %v", err)
	}
	pending, _ = store.ListPayouts(ctx)
	if len(pending) != 1 || pending[0].To != "wallet-b" {
		t.Fatalf("unexpected queue after delete: %+v", pending)
	}
}

func TestStore_PutListingKeepsExplicitID(t *testing.T) {
	store := New()
	ctx := context.Background()

	// Restoring a listing after an aborted settlement reuses its original id.
	saved, err := store.PutListing(ctx, token.Listing{
		ID:     "listing-1",
		Seller: "wallet-creator",
		Price:  token.Coin{Denom: "uosmo", Amount: 100},
	})
	if err != nil {
		t.Fatalf("PutListing failed: %v", err)
	}
	if saved.ID != "listing-1" {
		t.Fatalf("expected explicit id to be kept, got %q", saved.ID)
	}
}
