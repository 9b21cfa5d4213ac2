package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/changefeed"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool          *pgxpool.Pool
	ConnStr       string
	MigrationsDir string
}

// globalDB is initialized once in TestMain. It stays nil when no database
// could be started, and every test then skips.
var globalDB *testDB

var clinician = auth.Session{UserID: "dr-integration", Roles: []string{auth.RolePhysician}}

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration tests skipped: %v\n", err)
		os.Exit(m.Run())
	}

	globalDB = tdb
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupDatabase connects to TEST_DATABASE_URL when set and otherwise starts a
// throwaway container. Migrations are applied once for the whole package.
func setupDatabase(ctx context.Context) (*testDB, func(), error) {
	migrationsDir := findMigrationsDir()

	connStr := os.Getenv("TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		var err error
		connStr, cleanup, err = startPostgresContainer(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("start postgres container: %w", err)
		}
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		cleanup()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.NewMigrator(pool, migrationsDir).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &testDB{
			Pool:          pool,
			ConnStr:       connStr,
			MigrationsDir: migrationsDir,
		}, func() {
			pool.Close()
			cleanup()
		}, nil
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(filename), "..", "..")
	return filepath.Join(root, "migrations")
}

func requireDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if globalDB == nil {
		t.Skip("no database available")
	}
	return globalDB.Pool
}

func newDiaryService(pool *pgxpool.Pool) (*diary.Service, diary.Repository) {
	repo := diary.NewEventRepoPG(pool)
	return diary.NewService(repo, changefeed.Nop{}, zerolog.Nop()), repo
}

func intPtr(v int) *int { return &v }

func void(on, at string, ml int) *diary.Event {
	return &diary.Event{Kind: diary.KindVoid, OccurredOn: on, OccurredAt: at, VolumeMl: intPtr(ml)}
}

// seedDiary stores events for a fresh patient and returns the patient id.
func seedDiary(t *testing.T, svc *diary.Service, events ...*diary.Event) uuid.UUID {
	t.Helper()
	pid := uuid.New()
	if err := svc.CreateMany(context.Background(), clinician, pid, events); err != nil {
		t.Fatalf("seed diary: %v", err)
	}
	return pid
}
