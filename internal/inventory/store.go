// Package inventory provides storage backends for parts, orders, and
// interaction analytics.
//
// Two persistent backends are supported, SQLite and PostgreSQL, selected by
// DSN shape, plus an in-memory store used by tests and as a zero-config
// default.
package inventory

import (
	"context"
	"strings"

	"github.com/avans-mx/avanbot/internal/models"
)

// searchLimit caps how many parts a fuzzy search returns.
const searchLimit = 10

// Summary aggregates the inventory for the monitoring endpoint.
type Summary struct {
	TotalParts int `json:"total_parts"`
	TotalStock int `json:"total_stock"`
	Warehouses int `json:"warehouses"`
}

// Store is the domain storage interface consumed by the router and the HTTP
// layer.
type Store interface {
	// SearchParts finds parts whose name or code contains term. When exactly
	// one part matches, its per-warehouse availability is attached.
	SearchParts(ctx context.Context, term string) ([]models.Part, error)
	// SearchPartsForStatus is like SearchParts but attaches the production
	// status instead of availability on a single match.
	SearchPartsForStatus(ctx context.Context, term string) ([]models.Part, error)
	// GetOrder returns the order with the given document number, or nil when
	// no such order exists.
	GetOrder(ctx context.Context, docNum int64) (*models.Order, error)
	// SearchOrdersByClient finds orders whose client name contains name.
	SearchOrdersByClient(ctx context.Context, name string) ([]models.Order, error)
	// RecentOrders returns the most recent orders, newest first.
	RecentOrders(ctx context.Context, limit int) ([]models.Order, error)
	// LowStockParts returns parts whose total stock is at or below threshold.
	LowStockParts(ctx context.Context, threshold int) ([]models.Part, error)
	// InventorySummary aggregates part, stock, and warehouse counts.
	InventorySummary(ctx context.Context) (Summary, error)
	// AddInteraction appends one analytics record.
	AddInteraction(ctx context.Context, in models.Interaction) error
	// RecentInteractions returns the most recent analytics records.
	RecentInteractions(ctx context.Context, limit int) ([]models.Interaction, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Opts holds configuration applied via Option.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DSNType identifies which backend a DSN selects.
type DSNType string

const (
	// DSNTypePostgres selects the PostgreSQL backend.
	DSNTypePostgres DSNType = "postgres"
	// DSNTypeSQLite selects the SQLite backend.
	DSNTypeSQLite DSNType = "sqlite"
)

// DetectDSNType classifies a DSN by shape: postgres:// URLs and key=value
// conninfo strings select PostgreSQL, anything else is treated as an SQLite
// file path.
func DetectDSNType(dsn string) DSNType {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// NewStore opens the backend matching the DSN shape. An empty DSN yields the
// in-memory store.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == DSNTypePostgres {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
