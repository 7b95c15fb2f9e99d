// Package testhelpers provides shared containers for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/database"
)

const (
	PostgresImage = "postgres:17-alpine"
	RedisImage    = "redis:7-alpine"
)

// TestDB holds a shared PostgreSQL container with the registry schema migrated.
type TestDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once, migrated, and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "registry_test",
			"POSTGRES_USER":     "danovyhlidac",
			"POSTGRES_PASSWORD": "test_password",
		},
		// postgres logs readiness twice: once for the init server, once for the real one
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://danovyhlidac:test_password@%s:%s/registry_test?sslmode=disable",
		host, port.Port())

	var db *database.DB
	for i := 0; i < 10; i++ {
		db, err = database.NewConnection(ctx, &database.Config{URL: connStr, MaxConnections: 5})
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := database.RunMigrations(db, MigrationsPath(), zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// Truncate empties the registry tables so each test starts from a clean store.
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()
	_, err := tdb.DB.Exec(context.Background(),
		"TRUNCATE inquiries, amendments, contracts, suppliers")
	if err != nil {
		t.Fatalf("failed to truncate registry tables: %v", err)
	}
}

// MigrationsPath locates the repository's migrations directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// TestRedis holds a shared Redis container.
type TestRedis struct {
	Container testcontainers.Container
	Client    *redis.Client
}

var (
	sharedRedis     *TestRedis
	sharedRedisOnce sync.Once
	sharedRedisErr  error
)

// GetTestRedis returns a shared Redis container for cache integration tests.
func GetTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRedisOnce.Do(func() {
		sharedRedis, sharedRedisErr = setupRedis()
	})

	if sharedRedisErr != nil {
		t.Fatalf("Failed to setup test redis: %v", sharedRedisErr)
	}

	return sharedRedis
}

func setupRedis() (*TestRedis, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        RedisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &TestRedis{Container: container, Client: client}, nil
}

// Flush empties the Redis database.
func (tr *TestRedis) Flush(t *testing.T) {
	t.Helper()
	if err := tr.Client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}
