package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/avans-mx/avanbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at the DSN path and
// applies migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SearchParts(ctx context.Context, term string) ([]models.Part, error) {
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
	slog.Debug("SQLiteStore SearchParts succeeded", "term", term, "count", len(parts))
	return parts, nil
}

func (s *SQLiteStore) SearchPartsForStatus(ctx context.Context, term string) ([]models.Part, error) {
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
	slog.Debug("SQLiteStore SearchPartsForStatus succeeded", "term", term, "count", len(parts))
	return parts, nil
}

func (s *SQLiteStore) searchParts(ctx context.Context, term string) ([]models.Part, error) {
	pattern := "%" + term + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code FROM parts
		WHERE name LIKE ? OR code LIKE ?
		ORDER BY name LIMIT ?`, pattern, pattern, searchLimit)
	if err != nil {
		slog.Error("SQLiteStore part search query failed", "error", err, "term", term)
		return nil, fmt.Errorf("failed to search parts for %q: %w", term, err)
	}
	defer rows.Close()
	return scanParts(rows)
}

func (s *SQLiteStore) availability(ctx context.Context, partID int64) ([]models.Availability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT warehouse, quantity FROM part_stock WHERE part_id = ? ORDER BY warehouse`, partID)
	if err != nil {
		slog.Error("SQLiteStore availability query failed", "error", err, "partID", partID)
		return nil, fmt.Errorf("failed to query availability for part %d: %w", partID, err)
	}
	defer rows.Close()
	return scanAvailability(rows)
}

func (s *SQLiteStore) status(ctx context.Context, partID int64) (*models.StatusInfo, error) {
	var st models.StatusInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT status_stage, status_updated FROM parts WHERE id = ?`, partID).
		Scan(&st.Stage, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore status query failed", "error", err, "partID", partID)
		return nil, fmt.Errorf("failed to query status for part %d: %w", partID, err)
	}
	if st.Stage == "" {
		return nil, nil
	}
	return &st, nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, docNum int64) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_num, card_name, paid_to_date, invoiced_to_date, delivered_to_date
		FROM orders WHERE doc_num = ?`, docNum).
		Scan(&o.DocNum, &o.CardName, &o.PaidToDate, &o.InvoicedToDate, &o.DeliveredToDate)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetOrder not found", "docNum", docNum)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOrder failed", "error", err, "docNum", docNum)
		return nil, fmt.Errorf("failed to query order %d: %w", docNum, err)
	}
	return &o, nil
}

func (s *SQLiteStore) SearchOrdersByClient(ctx context.Context, name string) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_num, card_name, paid_to_date, invoiced_to_date, delivered_to_date
		FROM orders WHERE card_name LIKE ?
		ORDER BY doc_num DESC LIMIT ?`, "%"+name+"%", searchLimit)
	if err != nil {
		slog.Error("SQLiteStore SearchOrdersByClient failed", "error", err, "name", name)
		return nil, fmt.Errorf("failed to search orders for %q: %w", name, err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *SQLiteStore) RecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_num, card_name, paid_to_date, invoiced_to_date, delivered_to_date
		FROM orders ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentOrders failed", "error", err)
		return nil, fmt.Errorf("failed to query recent orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *SQLiteStore) LowStockParts(ctx context.Context, threshold int) ([]models.Part, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.code FROM parts p
		LEFT JOIN part_stock ps ON ps.part_id = p.id
		GROUP BY p.id, p.name, p.code
		HAVING COALESCE(SUM(ps.quantity), 0) <= ?
		ORDER BY p.name LIMIT ?`, threshold, searchLimit)
	if err != nil {
		slog.Error("SQLiteStore LowStockParts failed", "error", err)
		return nil, fmt.Errorf("failed to query low stock parts: %w", err)
	}
	defer rows.Close()
	return scanParts(rows)
}

func (s *SQLiteStore) InventorySummary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM parts),
		       (SELECT COALESCE(SUM(quantity), 0) FROM part_stock),
		       (SELECT COUNT(DISTINCT warehouse) FROM part_stock)`).
		Scan(&sum.TotalParts, &sum.TotalStock, &sum.Warehouses)
	if err != nil {
		slog.Error("SQLiteStore InventorySummary failed", "error", err)
		return Summary{}, fmt.Errorf("failed to query inventory summary: %w", err)
	}
	return sum, nil
}

func (s *SQLiteStore) AddInteraction(ctx context.Context, in models.Interaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (type, message, response, context, created_at)
		VALUES (?, ?, ?, ?, ?)`, in.Type, in.Message, in.Response, in.Context, in.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddInteraction failed", "error", err, "context", in.Context)
		return fmt.Errorf("failed to insert interaction for %s: %w", in.Context, err)
	}
	slog.Debug("SQLiteStore AddInteraction succeeded", "type", in.Type, "context", in.Context)
	return nil
}

func (s *SQLiteStore) RecentInteractions(ctx context.Context, limit int) ([]models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, message, response, context, created_at
		FROM interactions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentInteractions failed", "error", err)
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
