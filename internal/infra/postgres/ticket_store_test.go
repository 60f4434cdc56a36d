package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/storetest"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Runs against a real database; point DATABASE_URL at a disposable one.
func TestTicketStore_Conformance(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, dsn, postgres.PoolConfig{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, postgres.Migrate(ctx, db))

	storetest.Run(t, func(t *testing.T) port.TicketStore {
		_, err := db.ExecContext(ctx, `TRUNCATE tickets, messages`)
		require.NoError(t, err)
		return postgres.NewTicketStore(db, zap.NewNop())
	})
}

func TestOpen_BadDSN(t *testing.T) {
	_, err := postgres.Open(context.Background(), "postgres://nobody@127.0.0.1:1/none?connect_timeout=1", postgres.PoolConfig{})
	require.Error(t, err)
}
