//go:build !windows

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gamehost"
	"github.com/loykin/gamehost/pkg/client"
)

func newTestAgent(t *testing.T) *GlobalFlags {
	t.Helper()
	mgr := gamehost.New(gamehost.Options{TerminateGrace: time.Second})
	ts := httptest.NewServer(gamehost.NewRouter(mgr, "/api", nil))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
		ts.Close()
	})
	return &GlobalFlags{APIUrl: ts.URL + "/api", APITimeout: 5 * time.Second, Output: "json"}
}

func TestRunPsTerminate(t *testing.T) {
	g := newTestAgent(t)
	ctx := context.Background()

	var out bytes.Buffer
	err := runLaunch(ctx, &out, g, &RunFlags{LaunchPath: "sleep", Parameters: "30", ConcurrentExecutions: 2, Activate: true})
	require.NoError(t, err)
	var launched []client.Process
	require.NoError(t, json.Unmarshal(out.Bytes(), &launched))
	require.Len(t, launched, 2)
	for _, p := range launched {
		assert.Equal(t, "Active", p.Status)
	}

	root := buildRoot()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"ps", "--api-url", g.APIUrl, "-o", "table"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "PROCESS ID")
	assert.Contains(t, out.String(), launched[0].ProcessID)
	assert.Contains(t, out.String(), "Active")

	out.Reset()
	err = runTerminate(ctx, &out, g, &TerminateFlags{Reason: "SERVER_PROCESS_FORCE_TERMINATED", Wait: 5 * time.Second}, launched[0].ProcessID)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "SERVER_PROCESS_FORCE_TERMINATED")

	root = buildRoot()
	root.SetOut(&out)
	root.SetArgs([]string{"forget", launched[0].ProcessID, "--api-url", g.APIUrl})
	require.NoError(t, root.Execute())

	root = buildRoot()
	root.SetArgs([]string{"get", launched[0].ProcessID, "--api-url", g.APIUrl})
	err = root.Execute()
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
}

func TestRunBadPathReportsError(t *testing.T) {
	g := newTestAgent(t)
	var out bytes.Buffer
	err := runLaunch(context.Background(), &out, g, &RunFlags{LaunchPath: "/no/such/server"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad executable path")
	assert.Empty(t, out.String())
}

func TestAgentUnreachable(t *testing.T) {
	g := &GlobalFlags{APIUrl: "http://127.0.0.1:1/api", APITimeout: 200 * time.Millisecond}
	err := runLaunch(context.Background(), &bytes.Buffer{}, g, &RunFlags{LaunchPath: "sleep"})
	require.ErrorIs(t, err, errAgentUnreachable)
}

func TestRenderTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, render(&out, "table", []client.Process{{ProcessID: "p1", PID: 42, Status: "Initializing"}}))
	assert.Contains(t, out.String(), "p1")
	assert.Contains(t, out.String(), "42")
	assert.Contains(t, out.String(), "Initializing")
}

func TestTokenFlagAuthenticatesAgainstAgent(t *testing.T) {
	mgr := gamehost.New(gamehost.Options{Identity: gamehost.Identity{AuthToken: "agent-token"}})
	ts := httptest.NewServer(gamehost.NewRouter(mgr, "/api", nil))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
		ts.Close()
	})
	ctx := context.Background()
	g := &GlobalFlags{APIUrl: ts.URL + "/api", APITimeout: 5 * time.Second, Output: "json"}

	_, err := newAPIClient(ctx, g)
	require.ErrorIs(t, err, errAgentUnreachable)

	g.Token = "agent-token"
	c, err := newAPIClient(ctx, g)
	require.NoError(t, err)
	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"ps", "--api-url", g.APIUrl, "--token", "agent-token", "-o", "json"})
	require.NoError(t, root.Execute())
	assert.JSONEq(t, "[]", out.String())
}
