package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/jobfeed/jobfeed/internal/common/util"
)

const defaultTestConnection = "host=localhost port=5432 user=postgres password=psw sslmode=disable"

// WithTestDb creates a dedicated database, applies migrations and passes a pool connected to it to action.
// The database is dropped afterwards. The test is skipped when no postgres server is reachable; set
// JOBFEED_TEST_POSTGRES to a libpq connection string to point at a server other than localhost.
func WithTestDb(t *testing.T, migrations []Migration, action func(db *pgxpool.Pool)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	connectionString := os.Getenv("JOBFEED_TEST_POSTGRES")
	if connectionString == "" {
		connectionString = defaultTestConnection
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 3*time.Second)
	defer dialCancel()
	db, err := pgx.Connect(dialCtx, connectionString)
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
		return
	}
	defer db.Close(ctx)

	dbName := "test_" + util.NewULID()
	if _, err := db.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		t.Fatal(errors.WithStack(err))
	}

	testDbPool, err := pgxpool.New(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		t.Fatal(errors.WithStack(err))
	}

	defer func() {
		testDbPool.Close()
		// disconnect all db user before cleanup
		_, err := db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			log.WithError(err).Warn("Failed to disconnect users")
		}
		if _, err := db.Exec(ctx, "DROP DATABASE "+dbName); err != nil {
			log.WithError(err).Warn("Failed to drop database")
		}
	}()

	if err := UpdateDatabase(ctx, testDbPool, migrations); err != nil {
		t.Fatal(err)
	}
	action(testDbPool)
}
