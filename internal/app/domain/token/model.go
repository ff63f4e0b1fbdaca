// Package token defines the domain model for the single-unit escrow token.
package token

import (
	"fmt"
	"time"
)

// Coin is an exact amount of a single denomination.
type Coin struct {
	Denom  string `json:"denom"`
	Amount uint64 `json:"amount"`
}

// String renders the coin in "<amount><denom>" form.
func (c Coin) String() string {
	return fmt.Sprintf("%d%s", c.Amount, c.Denom)
}

// Rate is a rational royalty rate in [0, 1].
type Rate struct {
	Num uint64 `json:"num"`
	Den uint64 `json:"den"`
}

// Valid reports whether the rate denotes a fraction in [0, 1].
func (r Rate) Valid() bool {
	return r.Den > 0 && r.Num <= r.Den
}

// String renders the rate as "num/den".
func (r Rate) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Phase tracks the bootstrap state machine for the asset class.
type Phase string

const (
	// PhaseUninitialized is the zero state before Initialize is called.
	PhaseUninitialized Phase = "uninitialized"
	// PhasePending means asset-class creation was requested and the
	// confirmation callback is still outstanding.
	PhasePending Phase = "pending"
	// PhaseReady means the asset class exists, the unit is minted, and the
	// transfer hook is registered.
	PhaseReady Phase = "ready"
)

// State is the controller's durable singleton state.
type State struct {
	Phase         Phase     `json:"phase"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	AssetID       string    `json:"asset_id,omitempty"`
	Creator       string    `json:"creator"`
	Royalty       Rate      `json:"royalty"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Listing is the active offer to sell the single unit. At most one listing
// exists at any time; its presence means the unit is held in escrow.
type Listing struct {
	ID        string    `json:"id"`
	Seller    string    `json:"seller"`
	Price     Coin      `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// Payout is a settlement leg owed but not yet delivered to the ledger. Legs
// are queued durably when a settlement commits before all of its sends
// succeed, and retried until the ledger accepts them.
type Payout struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Amount    Coin      `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
