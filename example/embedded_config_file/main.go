package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/loykin/gamehost"
)

// Loads a TOML config and launches the processes it defines through the
// public facade, then terminates them.
func main() {
	// Use the sample config in the repo (adjust path if running from a different cwd)
	cfg, err := gamehost.LoadConfig(filepath.Join("config", "gamehost.toml"))
	if err != nil {
		panic(err)
	}
	mgr := gamehost.NewFromConfig(cfg, nil, gamehost.NewLogger(cfg.Log))

	if _, err := mgr.LaunchAll(cfg.Processes); err != nil {
		fmt.Println("launch errors:", err)
	}
	for _, in := range mgr.List() {
		_ = mgr.Activate(in.ProcessID)
	}
	b, _ := json.MarshalIndent(mgr.List(), "", "  ")
	fmt.Println(string(b))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		fmt.Println("shutdown:", err)
	}
}
