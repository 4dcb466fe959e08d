package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/avans-mx/avanbot/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL with the given DSN and applies
// migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SearchParts(ctx context.Context, term string) ([]models.Part, error) {
	parts, err := s.searchParts(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		avail, err := s.availability(ctx, parts[0].ID)
		if err != nil {
			return nil, err
		}
		parts[0].Availability = avail
	}
	slog.Debug("PostgresStore SearchParts succeeded", "term", term, "count", len(parts))
	return parts, nil
}

func (s *PostgresStore) SearchPartsForStatus(ctx context.Context, term string) ([]models.Part, error) {
	parts, err := s.searchParts(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		st, err := s.status(ctx, parts[0].ID)
		if err != nil {
			return nil, err
		}
		parts[0].Status = st
	}
	slog.Debug("PostgresStore SearchPartsForStatus succeeded", "term", term, "count", len(parts))
	return parts, nil
}

func (s *PostgresStore) searchParts(ctx context.Context, term string) ([]models.Part, error) {
	pattern := "%" + term + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code FROM parts
		WHERE name ILIKE $1 OR code ILIKE $1
		ORDER BY name LIMIT $2`, pattern, searchLimit)
	if err != nil {
		slog.Error("PostgresStore part search query failed", "error", err, "term", term)
		return nil, fmt.Errorf("failed to search parts for %q: %w", term, err)
	}
	defer rows.Close()
	return scanParts(rows)
}

func (s *PostgresStore) availability(ctx context.Context, partID int64) ([]models.Availability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT warehouse, quantity FROM part_stock WHERE part_id = $1 ORDER BY warehouse`, partID)
	if err != nil {
		slog.Error("PostgresStore availability query failed", "error", err, "partID", partID)
		return nil, fmt.Errorf("failed to query availability for part %d: %w", partID, err)
	}
	defer rows.Close()
	return scanAvailability(rows)
}

func (s *PostgresStore) status(ctx context.Context, partID int64) (*models.StatusInfo, error) {
	var st models.StatusInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT status_stage, status_updated FROM parts WHERE id = $1`, partID).
		Scan(&st.Stage, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore status query failed", "error", err, "partID", partID)
		return nil, fmt.Errorf("failed to query status for part %d: %w", partID, err)
	}
	if st.Stage == "" {
		return nil, nil
	}
	return &st, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, docNum int64) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_num, card_name, paid_to_date, invoiced_to_date, delivered_to_date
		FROM orders WHERE doc_num = $1`, docNum).
		Scan(&o.DocNum, &o.CardName, &o.PaidToDate, &o.InvoicedToDate, &o.DeliveredToDate)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetOrder not found", "docNum", docNum)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOrder failed", "error", err, "docNum", docNum)
		return nil, fmt.Errorf("failed to query order %d: %w", docNum, err)
	}
	return &o, nil
}

func (s *PostgresStore) SearchOrdersByClient(ctx context.Context, name string) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_num, card_name, paid_to_date, invoiced_to_date, delivered_to_date
		FROM orders WHERE card_name ILIKE $1
		ORDER BY doc_num DESC LIMIT $2`, "%"+name+"%", searchLimit)
	if err != nil {
		slog.Error("PostgresStore SearchOrdersByClient failed", "error", err, "name", name)
		return nil, fmt.Errorf("failed to search orders for %q: %w", name, err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *PostgresStore) RecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_num, card_name, paid_to_date, invoiced_to_date, delivered_to_date
		FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		slog.Error("PostgresStore RecentOrders failed", "error", err)
		return nil, fmt.Errorf("failed to query recent orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *PostgresStore) LowStockParts(ctx context.Context, threshold int) ([]models.Part, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.code FROM parts p
		LEFT JOIN part_stock ps ON ps.part_id = p.id
		GROUP BY p.id, p.name, p.code
		HAVING COALESCE(SUM(ps.quantity), 0) <= $1
		ORDER BY p.name LIMIT $2`, threshold, searchLimit)
	if err != nil {
		slog.Error("PostgresStore LowStockParts failed", "error", err)
		return nil, fmt.Errorf("failed to query low stock parts: %w", err)
	}
	defer rows.Close()
	return scanParts(rows)
}

func (s *PostgresStore) InventorySummary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM parts),
		       (SELECT COALESCE(SUM(quantity), 0) FROM part_stock),
		       (SELECT COUNT(DISTINCT warehouse) FROM part_stock)`).
		Scan(&sum.TotalParts, &sum.TotalStock, &sum.Warehouses)
	if err != nil {
		slog.Error("PostgresStore InventorySummary failed", "error", err)
		return Summary{}, fmt.Errorf("failed to query inventory summary: %w", err)
	}
	return sum, nil
}

func (s *PostgresStore) AddInteraction(ctx context.Context, in models.Interaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (type, message, response, context, created_at)
		VALUES ($1, $2, $3, $4, $5)`, in.Type, in.Message, in.Response, in.Context, in.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddInteraction failed", "error", err, "context", in.Context)
		return fmt.Errorf("failed to insert interaction for %s: %w", in.Context, err)
	}
	slog.Debug("PostgresStore AddInteraction succeeded", "type", in.Type, "context", in.Context)
	return nil
}

func (s *PostgresStore) RecentInteractions(ctx context.Context, limit int) ([]models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, message, response, context, created_at
		FROM interactions ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		slog.Error("PostgresStore RecentInteractions failed", "error", err)
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
