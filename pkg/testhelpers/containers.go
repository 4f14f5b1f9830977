// Package testhelpers provides a shared PostgreSQL container seeded
// with a small clinical trial schema for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:16-alpine"

// seedSQL creates the clinical warehouse the pipeline introspects:
// data tables plus the metadata tables the catalog treats specially.
const seedSQL = `
CREATE TABLE subjects (
    subject_id   text PRIMARY KEY,
    study_id     text NOT NULL,
    site_id      integer,
    country      text,
    status       text,
    enrolled_on  date
);

CREATE TABLE sites (
    site_id   integer PRIMARY KEY,
    study_id  text NOT NULL,
    name      text,
    country   text
);

CREATE TABLE adverse_events (
    event_id       bigint PRIMARY KEY,
    subject_id     text REFERENCES subjects(subject_id),
    preferred_term text,
    severity       text,
    serious        boolean,
    onset_date     date
);

CREATE TABLE _studies (
    study_id         text PRIMARY KEY,
    study_number     text,
    phase            text,
    therapeutic_area text
);

CREATE TABLE _table_metadata (
    table_name  text PRIMARY KEY,
    description text
);

INSERT INTO _studies VALUES
    ('ST-001', 'ABC-123', 'Phase III', 'Oncology'),
    ('ST-002', 'XYZ-900', 'Phase II', 'Cardiology');

INSERT INTO _table_metadata VALUES
    ('subjects', 'One row per enrolled subject'),
    ('adverse_events', 'Reported adverse events with MedDRA terms');

INSERT INTO sites VALUES
    (101, 'ST-001', 'Berlin Medical Center', 'DEU'),
    (102, 'ST-001', 'Boston General', 'USA');

INSERT INTO subjects VALUES
    ('S-0001', 'ST-001', 101, 'DEU', 'enrolled', '2024-02-01'),
    ('S-0002', 'ST-001', 102, 'USA', 'enrolled', '2024-02-15'),
    ('S-0003', 'ST-001', 102, 'USA', 'screen failure', '2024-03-01');

INSERT INTO adverse_events VALUES
    (1, 'S-0001', 'Headache', 'mild', false, '2024-03-10'),
    (2, 'S-0001', 'Nausea', 'moderate', false, '2024-03-12'),
    (3, 'S-0002', 'Headache', 'severe', true, '2024-04-02');
`

// TestDB holds the shared container and a connection pool into it.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared seeded PostgreSQL container. The container
// is created once and reused across all tests in the run.
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
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "clinical_trials",
			"POSTGRES_USER":     "trials",
			"POSTGRES_PASSWORD": "test_password",
		},
		Files: []testcontainers.ContainerFile{
			{
				Reader:            strings.NewReader(seedSQL),
				ContainerFilePath: "/docker-entrypoint-initdb.d/seed.sql",
				FileMode:          0o644,
			},
		},
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

	connStr := fmt.Sprintf("postgres://trials:test_password@%s:%s/clinical_trials?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}
