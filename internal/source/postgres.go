package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rshade/cohort/internal/record"
)

// Postgres defaults.
const (
	DefaultTable          = "patients"
	defaultMaxConns       = 4
	defaultConnectTimeout = 10 * time.Second
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSource reads every row of one table through a pgx connection pool.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// NewPostgresSource connects to dsn and verifies the connection with a ping.
func NewPostgresSource(ctx context.Context, dsn string, opts Options) (*PostgresSource, error) {
	table, err := ParseTable(opts.Table)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresSource{pool: pool, table: table}, nil
}

// ParseTable validates a table name ("patients" or "schema.patients"); an empty name
// selects DefaultTable.
func ParseTable(name string) (pgx.Identifier, error) {
	if name == "" {
		name = DefaultTable
	}
	if !tableNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return pgx.Identifier(strings.Split(name, ".")), nil
}

// Load implements Source. Rows are returned in first-column order.
func (s *PostgresSource) Load(ctx context.Context) ([]record.Record, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1", s.table.Sanitize())

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table.Sanitize(), err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", s.table.Sanitize(), err)
	}

	records := make([]record.Record, len(maps))
	for i, m := range maps {
		records[i] = normalizeRow(m)
	}
	return records, nil
}

// InsertPatients bulk-loads patients into the source table with COPY.
func (s *PostgresSource) InsertPatients(ctx context.Context, patients []record.Patient) (int64, error) {
	n, err := s.pool.CopyFrom(ctx, s.table,
		[]string{"id", "name", "age", "disease"},
		pgx.CopyFromSlice(len(patients), func(i int) ([]any, error) {
			p := patients[i]
			return []any{p.ID, p.Name, p.Age, p.Disease}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copying patients into %s: %w", s.table.Sanitize(), err)
	}
	return n, nil
}

// Close implements Source.
func (s *PostgresSource) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// normalizeRow converts driver-specific numeric values into plain Go numbers. SQL
// NULL becomes nil; NaN and infinities are kept as float64 so measure extraction
// rejects them as non-numeric.
func normalizeRow(row map[string]any) record.Record {
	rec := make(record.Record, len(row))
	for k, v := range row {
		rec[k] = normalizeValue(v)
	}
	return rec
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case pgtype.Numeric:
		if !n.Valid {
			return nil
		}
		f, err := n.Float64Value()
		if err != nil {
			// Out of float64 range: keep the driver value so it reads as non-numeric.
			return n
		}
		return f.Float64
	case *pgtype.Numeric:
		if n == nil {
			return nil
		}
		return normalizeValue(*n)
	default:
		return v
	}
}
