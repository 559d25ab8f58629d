package deals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrDuplicate is returned when a saved deal id already exists.
var ErrDuplicate = errors.New("deals: duplicate saved deal")

// SavedDeal is an archived quote snapshot.
type SavedDeal struct {
	ID        uuid.UUID       `json:"id"`
	VIN       string          `json:"vin"`
	UserID    string          `json:"userId"`
	StoreID   string          `json:"storeId,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"createdAt"`
}

// DBTX is the subset of pgx used by Store; *pgxpool.Pool satisfies it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists saved deals in Postgres.
type Store struct {
	db DBTX
}

// NewStore constructs a Store.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

const insertSavedDeal = `INSERT INTO saved_deals (id, vin, user_id, store_id, snapshot, total, created_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)`

// Insert archives d. Inserting the same id twice returns ErrDuplicate.
func (s *Store) Insert(ctx context.Context, d SavedDeal) error {
	if s == nil || s.db == nil {
		return errors.New("deals: store not configured")
	}
	_, err := s.db.Exec(ctx, insertSavedDeal,
		d.ID, d.VIN, d.UserID, d.StoreID, []byte(d.Snapshot), d.Total.StringFixed(2), d.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("deals: insert: %w", err)
	}
	return nil
}

const listSavedDealsByVIN = `SELECT id, vin, user_id, store_id, snapshot, total::text, created_at
FROM saved_deals
WHERE vin = $1
ORDER BY created_at DESC
LIMIT $2`

// ListByVIN returns the most recent saved deals for a vehicle, newest first.
func (s *Store) ListByVIN(ctx context.Context, vin string, limit int) ([]SavedDeal, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("deals: store not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, listSavedDealsByVIN, vin, limit)
	if err != nil {
		return nil, fmt.Errorf("deals: list: %w", err)
	}
	defer rows.Close()

	out := make([]SavedDeal, 0)
	for rows.Next() {
		var (
			d        SavedDeal
			snapshot []byte
			total    string
		)
		if err := rows.Scan(&d.ID, &d.VIN, &d.UserID, &d.StoreID, &snapshot, &total, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("deals: scan: %w", err)
		}
		d.Snapshot = json.RawMessage(snapshot)
		d.Total, err = decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("deals: parse total: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deals: rows: %w", err)
	}
	return out, nil
}
