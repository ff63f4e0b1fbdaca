package storage

import (
	"context"

	"github.com/minted-network/escrow_layer/internal/app/domain/token"
)

// EscrowStore persists the controller's singleton state and the active
// listing. Implementations return sql.ErrNoRows when the requested record
// does not exist.
type EscrowStore interface {
	// GetState returns the singleton controller state.
	GetState(ctx context.Context) (token.State, error)
	// SaveState creates or replaces the singleton controller state.
	SaveState(ctx context.Context, st token.State) (token.State, error)

	// DeleteState removes the singleton controller state.
	DeleteState(ctx context.Context) error

	// PutListing creates or overwrites the active listing.
	PutListing(ctx context.Context, lst token.Listing) (token.Listing, error)
	// GetListing returns the active listing.
	GetListing(ctx context.Context) (token.Listing, error)
	// DeleteListing removes the active listing.
	DeleteListing(ctx context.Context) error

	// AppendPayout queues a settlement leg for later delivery.
	AppendPayout(ctx context.Context, p token.Payout) (token.Payout, error)
	// ListPayouts returns queued payouts in insertion order.
	ListPayouts(ctx context.Context) ([]token.Payout, error)
	// DeletePayout removes a delivered payout by id.
	DeletePayout(ctx context.Context, id string) error
}
