package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/gamehost/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container and returns its native address.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	c, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "start ClickHouse container")

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return c, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(Config{Addr: addr})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	rec := history.Record{ProcessID: "proc-ch", PID: 12345, LaunchPath: "/srv/game", Status: "Initializing"}
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventLaunched, OccurredAt: time.Now().UTC(), Record: rec}))

	rec.Status = "Terminated"
	rec.Reason = "SERVER_PROCESS_CRASHED"
	rec.ExitErr = "signal: killed"
	rec.LogPaths = []string{"/logs/a.log", "/logs/b.log"}
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventExited, OccurredAt: time.Now().UTC(), Record: rec}))

	var count uint64
	require.NoError(t, sink.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM "+DefaultTable+" WHERE process_id = ?", rec.ProcessID).Scan(&count))
	assert.EqualValues(t, 2, count)

	var paths []string
	require.NoError(t, sink.conn.QueryRow(ctx,
		"SELECT log_paths FROM "+DefaultTable+" WHERE type = 'exited'").Scan(&paths))
	assert.Equal(t, rec.LogPaths, paths)
}

func TestClickHouseSink_InvalidTable(t *testing.T) {
	_, err := New(Config{Addr: "127.0.0.1:1", Table: "bad; DROP TABLE x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ClickHouse table name")
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	_, err := New(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
