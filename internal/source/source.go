// Package source loads materialized record collections for the aggregation engine
// from files, standard input, or a Postgres table.
package source

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rshade/cohort/internal/record"
)

// Source errors.
var (
	ErrNoSource          = errors.New("no record source configured")
	ErrUnsupportedSource = errors.New("unsupported record source")
	ErrInvalidTable      = errors.New("invalid table name")
	ErrMalformedRecords  = errors.New("malformed record data")
)

// Source produces the full record collection for one aggregation call.
type Source interface {
	Load(ctx context.Context) ([]record.Record, error)
	Close() error
}

// Options tunes the sources Open can construct.
type Options struct {
	// Table is the Postgres table to read (default "patients").
	Table string

	// MaxConns bounds the Postgres connection pool.
	MaxConns int32

	// ConnectTimeout bounds the initial Postgres connect and ping.
	ConnectTimeout time.Duration

	// Stdin is read when the URI is "-" (default os.Stdin).
	Stdin io.Reader
}

// Open selects a Source by URI. "-" reads a JSON array from standard input,
// postgres:// and postgresql:// URIs read a table, and anything else is treated as
// a JSON (.json) or YAML (.yaml, .yml) file path with an optional file:// prefix.
func Open(ctx context.Context, uri string, opts Options) (Source, error) {
	switch {
	case uri == "":
		return nil, ErrNoSource
	case uri == "-":
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		return NewReaderSource(in, FormatJSON), nil
	case IsPostgresURI(uri):
		return NewPostgresSource(ctx, uri, opts)
	default:
		return NewFileSource(strings.TrimPrefix(uri, "file://"))
	}
}

// IsPostgresURI reports whether uri names a Postgres database.
func IsPostgresURI(uri string) bool {
	return strings.HasPrefix(uri, "postgres://") || strings.HasPrefix(uri, "postgresql://")
}

// Static is an in-memory Source.
type Static []record.Record

// Load implements Source.
func (s Static) Load(_ context.Context) ([]record.Record, error) {
	return s, nil
}

// Close implements Source.
func (s Static) Close() error {
	return nil
}
