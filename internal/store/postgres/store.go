// Package postgres provides the Postgres-backed primary signup store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/torqlist/leadgate/internal/signup"
	"github.com/torqlist/leadgate/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SQLSTATE codes the adapter branches on.
const (
	codeUndefinedTable  = "42P01"
	codeUniqueViolation = "23505"
)

// Config controls the Postgres connection pool used for signup rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ProbeTimeout    time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes signup rows into Postgres and classifies its own errors
// into the store taxonomy.
type Store struct {
	pool         pgxPool
	table        string
	probeTimeout time.Duration
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "signups"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &Store{pool: pool, table: table, probeTimeout: probeTimeout}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "signups"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table, probeTimeout: 2 * time.Second}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Insert persists a signup row. The returned error, when non-nil, is
// always a classified *store.Error.
func (s *Store) Insert(ctx context.Context, rec signup.Record) (signup.Stored, error) {
	if s == nil || s.pool == nil {
		return signup.Stored{}, &store.Error{Kind: store.KindConnectionFailure, Cause: errors.New("store is not configured")}
	}
	id := uuid.NewString()
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	email,
	role,
	source,
	focus,
	ip_address,
	user_agent,
	referrer,
	utm_source,
	utm_medium,
	utm_campaign,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)

	args := []any{
		id,
		rec.Email,
		rec.Role,
		rec.Source,
		rec.Focus,
		rec.IPAddress,
		rec.UserAgent,
		rec.Referrer,
		rec.UTMSource,
		rec.UTMMedium,
		rec.UTMCampaign,
		rec.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return signup.Stored{}, classify(err)
	}
	return signup.Stored{ID: id, Record: rec}, nil
}

// FindByEmail looks up a signup row by normalized email. A missing row is
// not an error: the record pointer is nil.
func (s *Store) FindByEmail(ctx context.Context, email string) (*signup.Stored, error) {
	if s == nil || s.pool == nil {
		return nil, &store.Error{Kind: store.KindConnectionFailure, Cause: errors.New("store is not configured")}
	}
	query := fmt.Sprintf(`
SELECT id, email, role, source, focus, ip_address, user_agent, referrer,
	utm_source, utm_medium, utm_campaign, created_at
FROM %s WHERE email = $1`, s.table)

	var rec signup.Stored
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&rec.ID,
		&rec.Email,
		&rec.Role,
		&rec.Source,
		&rec.Focus,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.Referrer,
		&rec.UTMSource,
		&rec.UTMMedium,
		&rec.UTMCampaign,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return &rec, nil
}

// Probe checks whether the signup relation is reachable and provisioned.
// It runs under a short timeout so a down database cannot stall the
// request path.
func (s *Store) Probe(ctx context.Context) store.Availability {
	if s == nil || s.pool == nil {
		return store.Unreachable
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	var one int
	err := s.pool.QueryRow(probeCtx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", s.table)).Scan(&one)
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return store.Available
	}
	switch store.KindOf(classify(err)) {
	case store.KindSchemaMissing:
		return store.Unprovisioned
	default:
		return store.Unreachable
	}
}

// classify maps a raw pgx error onto the store taxonomy. Only the taxonomy
// leaves this package.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable:
			return &store.Error{Kind: store.KindSchemaMissing, Cause: err}
		case codeUniqueViolation:
			return &store.Error{Kind: store.KindDuplicateKey, Cause: err}
		default:
			return &store.Error{Kind: store.KindOther, Cause: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &store.Error{Kind: store.KindConnectionFailure, Cause: err}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &store.Error{Kind: store.KindConnectionFailure, Cause: err}
	}
	return &store.Error{Kind: store.KindOther, Cause: err}
}
