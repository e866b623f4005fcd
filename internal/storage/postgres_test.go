package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Set NEARBY_TEST_POSTGRES_DSN to a database with the vector extension available.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("NEARBY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NEARBY_TEST_POSTGRES_DSN not set")
	}
	runStoreSuite(t, func(t *testing.T) Store {
		ctx := context.Background()
		s, err := NewPostgresStore(ctx, PostgresConfig{DSN: dsn, Dimensions: testDims})
		require.NoError(t, err)
		_, err = s.db.ExecContext(ctx, `TRUNCATE profile_embeddings, user_profiles`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewPostgresStore_Validation(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), PostgresConfig{Dimensions: 3})
	require.Error(t, err)
	_, err = NewPostgresStore(context.Background(), PostgresConfig{DSN: "postgres://localhost/x"})
	require.Error(t, err)
}
