package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/minted-network/escrow_layer/internal/app/domain/token"
	"github.com/minted-network/escrow_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.EscrowStore = (*Store)(nil)

// The controller state and listing are process-wide singletons; both tables
// hold at most one row, keyed by a fixed identifier.
const singletonKey = "singleton"

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the escrow tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS escrow_state (
			id             TEXT PRIMARY KEY,
			phase          TEXT NOT NULL,
			correlation_id TEXT NOT NULL DEFAULT '',
			asset_id       TEXT NOT NULL DEFAULT '',
			creator        TEXT NOT NULL,
			royalty_num    BIGINT NOT NULL,
			royalty_den    BIGINT NOT NULL,
			name           TEXT NOT NULL,
			version        TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS escrow_listing (
			id           TEXT PRIMARY KEY,
			listing_id   TEXT NOT NULL,
			seller       TEXT NOT NULL,
			price_denom  TEXT NOT NULL,
			price_amount BIGINT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS escrow_payout (
			id         TEXT PRIMARY KEY,
			recipient  TEXT NOT NULL,
			denom      TEXT NOT NULL,
			amount     BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

// --- EscrowStore -------------------------------------------------------------

func (s *Store) GetState(ctx context.Context) (token.State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT phase, correlation_id, asset_id, creator, royalty_num, royalty_den,
		       name, version, created_at, updated_at
		FROM escrow_state
		WHERE id = $1
	`, singletonKey)

	var st token.State
	var phase string
	if err := row.Scan(&phase, &st.CorrelationID, &st.AssetID, &st.Creator,
		&st.Royalty.Num, &st.Royalty.Den, &st.Name, &st.Version,
		&st.CreatedAt, &st.UpdatedAt); err != nil {
		return token.State{}, err
	}
	st.Phase = token.Phase(phase)
	return st, nil
}

func (s *Store) SaveState(ctx context.Context, st token.State) (token.State, error) {
	now := time.Now().UTC()
	st.UpdatedAt = now
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_state (id, phase, correlation_id, asset_id, creator,
			royalty_num, royalty_den, name, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET phase = EXCLUDED.phase,
		    correlation_id = EXCLUDED.correlation_id,
		    asset_id = EXCLUDED.asset_id,
		    creator = EXCLUDED.creator,
		    royalty_num = EXCLUDED.royalty_num,
		    royalty_den = EXCLUDED.royalty_den,
		    name = EXCLUDED.name,
		    version = EXCLUDED.version,
		    updated_at = EXCLUDED.updated_at
	`, singletonKey, string(st.Phase), st.CorrelationID, st.AssetID, st.Creator,
		int64(st.Royalty.Num), int64(st.Royalty.Den), st.Name, st.Version,
		st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return token.State{}, err
	}
	return st, nil
}

func (s *Store) DeleteState(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM escrow_state WHERE id = $1
	`, singletonKey)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) PutListing(ctx context.Context, lst token.Listing) (token.Listing, error) {
	if lst.ID == "" {
		lst.ID = uuid.NewString()
	}
	lst.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_listing (id, listing_id, seller, price_denom, price_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET listing_id = EXCLUDED.listing_id,
		    seller = EXCLUDED.seller,
		    price_denom = EXCLUDED.price_denom,
		    price_amount = EXCLUDED.price_amount,
		    created_at = EXCLUDED.created_at
	`, singletonKey, lst.ID, lst.Seller, lst.Price.Denom, int64(lst.Price.Amount), lst.CreatedAt)
	if err != nil {
		return token.Listing{}, err
	}
	return lst, nil
}

func (s *Store) GetListing(ctx context.Context) (token.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT listing_id, seller, price_denom, price_amount, created_at
		FROM escrow_listing
		WHERE id = $1
	`, singletonKey)

	var lst token.Listing
	var amount int64
	if err := row.Scan(&lst.ID, &lst.Seller, &lst.Price.Denom, &amount, &lst.CreatedAt); err != nil {
		return token.Listing{}, err
	}
	lst.Price.Amount = uint64(amount)
	return lst, nil
}

func (s *Store) DeleteListing(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM escrow_listing WHERE id = $1
	`, singletonKey)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) AppendPayout(ctx context.Context, p token.Payout) (token.Payout, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_payout (id, recipient, denom, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.To, p.Amount.Denom, int64(p.Amount.Amount), p.CreatedAt)
	if err != nil {
		return token.Payout{}, err
	}
	return p, nil
}

func (s *Store) ListPayouts(ctx context.Context) ([]token.Payout, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient, denom, amount, created_at
		FROM escrow_payout
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []token.Payout
	for rows.Next() {
		var p token.Payout
		var amount int64
		if err := rows.Scan(&p.ID, &p.To, &p.Amount.Denom, &amount, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount.Amount = uint64(amount)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePayout(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM escrow_payout WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
