package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minted-network/escrow_layer/internal/app/domain/token"
	"github.com/minted-network/escrow_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu      sync.RWMutex
	state   *token.State
	listing *token.Listing
	payouts []token.Payout
}

var _ storage.EscrowStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) GetState(_ context.Context) (token.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return token.State{}, sql.ErrNoRows
	}
	return *s.state, nil
}

func (s *Store) SaveState(_ context.Context, st token.State) (token.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.state != nil {
		st.CreatedAt = s.state.CreatedAt
	} else {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	copied := st
	s.state = &copied
	return st, nil
}

func (s *Store) DeleteState(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return sql.ErrNoRows
	}
	s.state = nil
	return nil
}

func (s *Store) PutListing(_ context.Context, lst token.Listing) (token.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lst.ID == "" {
		lst.ID = uuid.NewString()
	}
	lst.CreatedAt = time.Now().UTC()

	copied := lst
	s.listing = &copied
	return lst, nil
}

func (s *Store) GetListing(_ context.Context) (token.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listing == nil {
		return token.Listing{}, sql.ErrNoRows
	}
	return *s.listing, nil
}

func (s *Store) DeleteListing(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listing == nil {
		return sql.ErrNoRows
	}
	s.listing = nil
	return nil
}

func (s *Store) AppendPayout(_ context.Context, p token.Payout) (token.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	s.payouts = append(s.payouts, p)
	return p, nil
}

func (s *Store) ListPayouts(_ context.Context) ([]token.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]token.Payout, len(s.payouts))
	copy(out, s.payouts)
	return out, nil
}

func (s *Store) DeletePayout(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.payouts {
		if p.ID == id {
			s.payouts = append(s.payouts[:i], s.payouts[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}
