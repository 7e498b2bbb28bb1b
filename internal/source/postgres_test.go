package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/rshade/cohort/internal/record"
)

// setupTestContainer starts a throwaway Postgres and returns its connection string.
func setupTestContainer(t *testing.T, ctx context.Context) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("hms_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestPostgresSource_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := setupTestContainer(t, ctx)

	version, err := Migrate(ctx, dsn)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	// Running again is a no-op.
	version, err = Migrate(ctx, dsn)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	src, err := NewPostgresSource(ctx, dsn, Options{})
	require.NoError(t, err)
	defer src.Close()

	n, err := src.InsertPatients(ctx, []record.Patient{
		{ID: 3, Name: "Chen", Age: 30, Disease: "none"},
		{ID: 1, Name: "Asha", Age: 10, Disease: "flu"},
		{ID: 2, Name: "Ben", Age: 20, Disease: "cold"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	records, err := src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Asha", records[0]["name"])

	age, err := record.Field("age")
	require.NoError(t, err)
	var sum float64
	for _, r := range records {
		v, err := age(r)
		require.NoError(t, err)
		sum += v
	}
	assert.Equal(t, 60.0, sum)

	opened, err := Open(ctx, dsn, Options{Table: "public.patients"})
	require.NoError(t, err)
	defer opened.Close()
	again, err := opened.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 3)
}

func TestNewPostgresSource_BadDSN(t *testing.T) {
	_, err := NewPostgresSource(context.Background(), "postgres://%zz", Options{})
	assert.Error(t, err)
}
