//go:build !windows

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gamehost/pkg/client"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestServeLaunchesConfiguredProcessesAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	addr := freeAddr(t)
	cfgPath := filepath.Join(dir, "gamehost.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
host_id = "serve-test"
terminate_grace = "1s"

[server]
listen = %q
base_path = "/api"

[history]
dsn = %q

[[processes]]
launch_path = "sleep"
parameters = "30"
concurrent_executions = 2
`, addr, filepath.Join(dir, "history.db"))), 0o600))

	pidFile := filepath.Join(dir, "gamehost.pid")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, &GlobalFlags{}, &ServeFlags{PidFile: pidFile}, []string{cfgPath})
	}()

	c, err := client.New(client.Config{BaseURL: "http://" + addr + "/api", Timeout: time.Second})
	require.NoError(t, err)
	var list []client.Process
	require.Eventually(t, func() bool {
		list, err = c.List(context.Background())
		return err == nil && len(list) == 2
	}, 5*time.Second, 50*time.Millisecond)
	for _, p := range list {
		assert.Equal(t, "Initializing", p.Status)
		assert.Positive(t, p.PID)
	}
	_, err = os.Stat(pidFile)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err))
}

func TestServeBadConfig(t *testing.T) {
	err := runServe(context.Background(), &GlobalFlags{}, &ServeFlags{}, []string{"/does/not/exist.toml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}
