// Package escrow implements the single-unit mint/escrow/royalty controller.
//
// The controller mints exactly one unit of a uniquely named asset class to
// its creator, then mediates every further movement of that unit through the
// Sell/Buy protocol. A pre-transfer hook registered with the external ledger
// vetoes any movement the controller is not a party to, and every settled
// resale routes a fixed fraction of the price back to the creator.
package escrow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/minted-network/escrow_layer/internal/app/domain/token"
	"github.com/minted-network/escrow_layer/internal/app/storage"
	"github.com/minted-network/escrow_layer/pkg/logger"
)

// Controller identity recorded in durable state at initialization.
const (
	ControllerName    = "escrow-layer"
	ControllerVersion = "1.0.0"
)

// Ledger is the external asset-issuance and bank collaborator. Asset-class
// creation is asynchronous: the ledger later confirms it by invoking
// OnAssetClassCreated with the same correlation id.
type Ledger interface {
	CreateAssetClass(ctx context.Context, owner, name, correlationID string) error
	Mint(ctx context.Context, assetID string, amount uint64, to string) error
	RegisterTransferHook(ctx context.Context, assetID, hookAddress string) error
	Send(ctx context.Context, to string, amount token.Coin) error
}

// Transfer is one payout leg issued during settlement.
type Transfer struct {
	To     string     `json:"to"`
	Amount token.Coin `json:"amount"`
}

// Result carries the outcome attributes of a state-changing operation,
// mirroring the event attributes the controller publishes.
type Result struct {
	Method     string            `json:"method"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Transfers  []Transfer        `json:"transfers,omitempty"`
}

// Service is the escrow controller. State-changing operations are serialized
// with a mutex; the host ledger already applies calls one at a time, so the
// lock only protects direct Go callers.
type Service struct {
	store        storage.EscrowStore
	ledger       Ledger
	protocolAddr string
	log          *logger.Logger

	mu sync.Mutex
}

// New constructs the escrow service. protocolAddr is the controller's own
// ledger address: the only legal counterparty for the asset unit.
func New(store storage.EscrowStore, ledger Ledger, protocolAddr string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("escrow")
	}
	return &Service{
		store:        store,
		ledger:       ledger,
		protocolAddr: strings.TrimSpace(protocolAddr),
		log:          log,
	}
}

// ProtocolAddress returns the controller's own ledger address.
func (s *Service) ProtocolAddress() string { return s.protocolAddr }

// Name identifies the service to the lifecycle manager.
func (s *Service) Name() string { return "escrow" }

// Start drains payout legs left queued by a previous run. A ledger that is
// still unreachable does not block startup; the legs stay queued.
func (s *Service) Start(ctx context.Context) error {
	delivered, err := s.RetryPayouts(ctx)
	if err != nil {
		s.log.WithError(err).Warn("deferred payouts still queued after startup retry")
		return nil
	}
	if delivered > 0 {
		s.log.WithField("delivered", delivered).Info("drained deferred payouts on startup")
	}
	return nil
}

// Stop is a no-op; the service holds no connections of its own.
func (s *Service) Stop(context.Context) error { return nil }

// Initialize persists the creator and royalty rate, then requests creation of
// the asset class from the ledger. The asset id arrives asynchronously via
// OnAssetClassCreated.
func (s *Service) Initialize(ctx context.Context, creator, name string, rate token.Rate) (Result, error) {
	creator = strings.TrimSpace(creator)
	name = strings.TrimSpace(name)

	if creator == "" {
		return Result{}, fmt.Errorf("%w: creator address is required", ErrValidation)
	}
	if name == "" {
		return Result{}, fmt.Errorf("%w: asset name is required", ErrValidation)
	}
	if !rate.Valid() {
		return Result{}, ErrInvalidRoyaltyRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetState(ctx); err == nil {
		return Result{}, ErrAlreadyInitialized
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Result{}, err
	}

	// The pending state is persisted before the ledger request so a failed
	// save cannot leave an orphan asset-class request whose callback has no
	// matching correlation. A failed request rolls the state back instead.
	correlationID := uuid.NewString()
	st := token.State{
		Phase:         token.PhasePending,
		CorrelationID: correlationID,
		Creator:       creator,
		Royalty:       rate,
		Name:          name,
		Version:       ControllerName + "/" + ControllerVersion,
	}
	if _, err := s.store.SaveState(ctx, st); err != nil {
		return Result{}, err
	}

	if err := s.ledger.CreateAssetClass(ctx, s.protocolAddr, name, correlationID); err != nil {
		if delErr := s.store.DeleteState(ctx); delErr != nil {
			s.log.WithError(delErr).Error("failed to roll back state after rejected asset class request")
		}
		return Result{}, fmt.Errorf("request asset class: %w", err)
	}

	s.log.WithField("creator", creator).
		WithField("name", name).
		WithField("royalty", rate.String()).
		WithField("correlation_id", correlationID).
		Info("asset class creation requested")

	return Result{
		Method: "initialize",
		Attributes: map[string]string{
			"owner":          creator,
			"correlation_id": correlationID,
		},
	}, nil
}

// OnAssetClassCreated handles the ledger's confirmation callback. It records
// the asset id, mints the single unit to the creator, and registers this
// controller as the transfer hook for the asset. The mint happens exactly
// once: there is no other entry point that increases supply.
func (s *Service) OnAssetClassCreated(ctx context.Context, correlationID, assetID string) (Result, error) {
	correlationID = strings.TrimSpace(correlationID)
	assetID = strings.TrimSpace(assetID)

	if assetID == "" {
		return Result{}, fmt.Errorf("%w: asset id is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.GetState(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrUnknownCorrelation
		}
		return Result{}, err
	}
	if st.Phase != token.PhasePending || st.CorrelationID != correlationID {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownCorrelation, correlationID)
	}

	prior := st
	st.Phase = token.PhaseReady
	st.AssetID = assetID
	st.CorrelationID = ""
	if _, err := s.store.SaveState(ctx, st); err != nil {
		return Result{}, err
	}

	// If either follow-on effect fails, restore the pending state so the
	// issuance service can redeliver the callback.
	if err := s.ledger.Mint(ctx, assetID, 1, st.Creator); err != nil {
		s.restoreState(ctx, prior)
		return Result{}, fmt.Errorf("mint unit: %w", err)
	}
	if err := s.ledger.RegisterTransferHook(ctx, assetID, s.protocolAddr); err != nil {
		s.restoreState(ctx, prior)
		return Result{}, fmt.Errorf("register transfer hook: %w", err)
	}

	s.log.WithField("asset_id", assetID).
		WithField("creator", st.Creator).
		Info("asset class created; unit minted and transfer hook registered")

	return Result{
		Method: "asset_class_created",
		Attributes: map[string]string{
			"asset_id": assetID,
		},
	}, nil
}

// Sell publishes a price for the unit. The caller must attach exactly one
// coin: 1 unit of the asset itself, which moves the unit into the
// controller's custody. Attaching the unit is sufficient proof of ownership
// since total supply is 1. A prior listing is overwritten, never appended.
func (s *Service) Sell(ctx context.Context, seller string, price token.Coin, funds []token.Coin) (Result, error) {
	seller = strings.TrimSpace(seller)
	if seller == "" {
		return Result{}, fmt.Errorf("%w: seller address is required", ErrValidation)
	}
	if price.Denom == "" {
		return Result{}, fmt.Errorf("%w: price denomination is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readyState(ctx)
	if err != nil {
		return Result{}, err
	}

	if len(funds) != 1 {
		return Result{}, ErrPaymentRequired
	}
	if funds[0].Denom != st.AssetID {
		return Result{}, fmt.Errorf("%w: expected %s, got %s", ErrWrongDenom, st.AssetID, funds[0].Denom)
	}
	if funds[0].Amount != 1 {
		return Result{}, fmt.Errorf("%w: expected 1%s, got %s", ErrWrongAmount, st.AssetID, funds[0].String())
	}

	lst, err := s.store.PutListing(ctx, token.Listing{Seller: seller, Price: price})
	if err != nil {
		return Result{}, err
	}

	s.log.WithField("seller", seller).
		WithField("price", price.String()).
		WithField("listing_id", lst.ID).
		Info("unit listed for sale")

	return Result{
		Method: "sell",
		Attributes: map[string]string{
			"sender": seller,
			"price":  price.String(),
		},
	}, nil
}

// Buy settles the active listing. The caller must attach exactly one coin
// matching the listed price. The listing is deleted before the payout legs
// are issued so a second Buy cannot settle against the same listing; if a
// payout fails the listing is restored and the call has no observable effect.
func (s *Service) Buy(ctx context.Context, buyer string, funds []token.Coin) (Result, error) {
	buyer = strings.TrimSpace(buyer)
	if buyer == "" {
		return Result{}, fmt.Errorf("%w: buyer address is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readyState(ctx)
	if err != nil {
		return Result{}, err
	}

	lst, err := s.store.GetListing(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNoActiveListing
		}
		return Result{}, err
	}

	if len(funds) != 1 {
		return Result{}, ErrPaymentRequired
	}
	if funds[0].Denom != lst.Price.Denom {
		return Result{}, fmt.Errorf("%w: expected %s, got %s", ErrWrongDenom, lst.Price.Denom, funds[0].Denom)
	}
	if funds[0].Amount != lst.Price.Amount {
		return Result{}, fmt.Errorf("%w: expected %s, got %s", ErrWrongAmount, lst.Price.String(), funds[0].String())
	}

	royalty, proceeds, err := Split(lst.Price, st.Royalty)
	if err != nil {
		return Result{}, err
	}

	if err := s.store.DeleteListing(ctx); err != nil {
		return Result{}, err
	}

	transfers := []Transfer{
		{To: lst.Seller, Amount: token.Coin{Denom: lst.Price.Denom, Amount: proceeds}},
		{To: st.Creator, Amount: token.Coin{Denom: lst.Price.Denom, Amount: royalty}},
	}

	// Before any leg reaches the ledger the settlement can still be undone:
	// restore the listing and fail. Once a leg has been delivered, money has
	// moved, so the settlement is committed; any leg the ledger then rejects
	// is queued durably and retried rather than resurrecting the listing
	// (which would let a retried Buy pay the seller twice).
	issued := 0
	var deferred []token.Payout
	for _, leg := range transfers {
		if leg.Amount.Amount == 0 {
			continue
		}
		if len(deferred) > 0 {
			deferred = append(deferred, token.Payout{To: leg.To, Amount: leg.Amount})
			continue
		}
		if err := s.ledger.Send(ctx, leg.To, leg.Amount); err != nil {
			if issued == 0 {
				s.restoreListing(ctx, lst)
				return Result{}, fmt.Errorf("payout to %s: %w", leg.To, err)
			}
			s.log.WithError(err).
				WithField("to", leg.To).
				WithField("amount", leg.Amount.String()).
				Warn("payout leg rejected after settlement committed; queueing for retry")
			deferred = append(deferred, token.Payout{To: leg.To, Amount: leg.Amount})
			continue
		}
		issued++
	}
	for _, p := range deferred {
		if _, err := s.store.AppendPayout(ctx, p); err != nil {
			s.log.WithError(err).
				WithField("to", p.To).
				WithField("amount", p.Amount.String()).
				Error("failed to queue deferred payout")
		}
	}

	s.log.WithField("buyer", buyer).
		WithField("seller", lst.Seller).
		WithField("price", lst.Price.String()).
		WithField("royalty", royalty).
		WithField("proceeds", proceeds).
		Info("listing settled")

	res := Result{
		Method: "buy",
		Attributes: map[string]string{
			"sender": buyer,
			"price":  lst.Price.String(),
		},
		Transfers: transfers,
	}
	if len(deferred) > 0 {
		res.Attributes["deferred_payouts"] = fmt.Sprintf("%d", len(deferred))
	}
	return res, nil
}

// RetryPayouts redelivers queued settlement legs in order. Legs the ledger
// accepts are removed from the queue; the first rejection stops the pass and
// leaves the remainder queued.
func (s *Service) RetryPayouts(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.store.ListPayouts(ctx)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, p := range pending {
		if err := s.ledger.Send(ctx, p.To, p.Amount); err != nil {
			return delivered, fmt.Errorf("payout to %s: %w", p.To, err)
		}
		if err := s.store.DeletePayout(ctx, p.ID); err != nil {
			return delivered, err
		}
		delivered++
		s.log.WithField("to", p.To).
			WithField("amount", p.Amount.String()).
			Info("deferred payout delivered")
	}
	return delivered, nil
}

// PendingPayouts returns the queued settlement legs.
func (s *Service) PendingPayouts(ctx context.Context) ([]token.Payout, error) {
	return s.store.ListPayouts(ctx)
}

// AuthorizeTransfer is the pre-transfer hook the ledger invokes before moving
// the asset unit. The transfer is legal iff the controller itself is the
// source or the destination; anything else is a peer-to-peer move that
// bypasses Sell/Buy and is rejected. The amount carries no weight in the
// decision; supply is 1. The decision is side-effect free.
func (s *Service) AuthorizeTransfer(ctx context.Context, denom, from, to string, amount uint64) error {
	st, err := s.readyState(ctx)
	if err != nil {
		return err
	}
	if denom != st.AssetID {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, denom)
	}

	if from == s.protocolAddr || to == s.protocolAddr {
		return nil
	}

	s.log.WithField("from", from).
		WithField("to", to).
		WithField("amount", amount).
		Warn("blocked unmediated transfer of the asset unit")

	return ErrTransferBlocked
}

// State returns the controller's durable state.
func (s *Service) State(ctx context.Context) (token.State, error) {
	st, err := s.store.GetState(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return token.State{}, fmt.Errorf("%w: controller not initialized", ErrNotFound)
		}
		return token.State{}, err
	}
	return st, nil
}

// ActiveListing returns the active listing, if any.
func (s *Service) ActiveListing(ctx context.Context) (token.Listing, error) {
	lst, err := s.store.GetListing(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return token.Listing{}, ErrNoActiveListing
		}
		return token.Listing{}, err
	}
	return lst, nil
}

func (s *Service) readyState(ctx context.Context) (token.State, error) {
	st, err := s.store.GetState(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return token.State{}, ErrNotReady
		}
		return token.State{}, err
	}
	if st.Phase != token.PhaseReady {
		return token.State{}, ErrNotReady
	}
	return st, nil
}

func (s *Service) restoreState(ctx context.Context, st token.State) {
	if _, err := s.store.SaveState(ctx, st); err != nil {
		s.log.WithError(err).Error("failed to restore controller state after aborted callback")
	}
}

func (s *Service) restoreListing(ctx context.Context, lst token.Listing) {
	if _, err := s.store.PutListing(ctx, lst); err != nil {
		s.log.WithError(err).
			WithField("listing_id", lst.ID).
			Error("failed to restore listing after aborted settlement")
	}
}
