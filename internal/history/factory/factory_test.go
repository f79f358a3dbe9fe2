package factory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gamehost/internal/history/clickhouse"
)

func TestFactoryDSNTypes(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name        string
		dsn         string
		expectError bool
	}{
		{"Empty DSN", "", true},
		{"Invalid scheme", "invalid://test", true},
		{"SQLite file DSN", "sqlite://" + filepath.Join(dir, "a.db"), false},
		{"SQLite memory DSN", "sqlite://:memory:", false},
		{"Bare path defaults to SQLite", filepath.Join(dir, "b.db"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSinkFromDSN(tt.dsn)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, sink)
			if closer, ok := sink.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
		})
	}
}

func TestParseClickHouseDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want clickhouse.Config
	}{
		{"clickhouse://localhost:9000?table=events", clickhouse.Config{Addr: "localhost:9000", Table: "events"}},
		{"clickhouse://bob:pw@ch:9440/analytics", clickhouse.Config{Addr: "ch:9440", Database: "analytics", Username: "bob", Password: "pw", Table: clickhouse.DefaultTable}},
		{"clickhouse://", clickhouse.Config{Addr: "localhost:9000", Table: clickhouse.DefaultTable}},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := parseClickHouseDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseClickHouseDSN("clickhouse://bad host:%zz")
	assert.Error(t, err)
}
