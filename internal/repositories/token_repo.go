package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koinlend/backend/internal/models"
)

// ErrDuplicateToken: a token with this address is already registered on the
// network.
var ErrDuplicateToken = errors.New("token already registered")

var ErrTokenNotFound = errors.New("token not found")

type TokenRepo struct {
	pool *pgxpool.Pool
}

func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

func (r *TokenRepo) Create(ctx context.Context, t *models.Token) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tokens (symbol, name, address, decimals, network)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, t.Symbol, t.Name, t.Address, t.Decimals, t.Network).Scan(&t.ID, &t.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateToken
	}
	return err
}

// ListByNetwork returns registered tokens in registration order.
func (r *TokenRepo) ListByNetwork(ctx context.Context, network string) ([]models.Token, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, symbol, name, address, decimals, network, created_at
		FROM tokens WHERE network = $1
		ORDER BY created_at ASC
	`, network)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Name, &t.Address, &t.Decimals, &t.Network, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (r *TokenRepo) GetByAddress(ctx context.Context, network, address string) (*models.Token, error) {
	var t models.Token
	err := r.pool.QueryRow(ctx, `
		SELECT id, symbol, name, address, decimals, network, created_at
		FROM tokens WHERE network = $1 AND lower(address) = lower($2)
	`, network, address).Scan(&t.ID, &t.Symbol, &t.Name, &t.Address, &t.Decimals, &t.Network, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}
