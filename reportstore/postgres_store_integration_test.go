//go:build integration

package reportstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/DataBridgeTech/dbqprep"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "dbq",
				"POSTGRES_PASSWORD": "dbq",
				"POSTGRES_DB":       "reports",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://dbq:dbq@%s:%s/reports?sslmode=disable", host, port.Port())
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	databaseURL := startPostgres(t)

	store, err := OpenPostgresStore(ctx, databaseURL, true, nil)
	require.NoError(t, err)
	defer store.Close()

	// second run is a no-op
	require.NoError(t, Migrate(databaseURL, nil))

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := NewRunRecord("telco_churn", "telco", base, sampleReport(true))
	first.Profile = &dbqprep.TableMetrics{DatasetName: "telco_churn", TotalRows: 7043, TotalColumns: 21}
	second := NewRunRecord("telco_churn", "telco", base.Add(time.Minute), sampleReport(false))

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Report.OverallSuccess)
	require.NotNil(t, got.Profile)
	assert.Equal(t, int64(7043), got.Profile.TotalRows)
	assert.True(t, base.Equal(got.StartedAt))

	runs, err := store.List(ctx, "telco_churn", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Nil(t, runs[0].Profile)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}
