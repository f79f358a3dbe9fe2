package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/gamehost"
)

// Captures a process's stdout and stderr into rotating files under a log
// directory and prints where they were written.
func main() {
	logDir := os.Getenv("GAMEHOST_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), fmt.Sprintf("gamehost-logs-%d", time.Now().UnixNano()))
	}

	var logs gamehost.LogConfig
	logs.File.Dir = logDir
	mgr := gamehost.New(gamehost.Options{
		Logs:   logs.File,
		Logger: gamehost.NewLogger(gamehost.LogConfig{Level: "debug", Color: true}),
	})

	in, err := mgr.Launch(gamehost.Configuration{
		LaunchPath: "sh",
		Parameters: "-c 'echo hello-out; echo hello-err 1>&2; sleep 0.2'",
	})
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := mgr.Wait(ctx, in.ProcessID)
	if err != nil {
		panic(err)
	}
	fmt.Println("status:", done.Status, "reason:", done.TerminationReason)
	fmt.Println("stdout:", filepath.Join(logDir, in.ProcessID+".stdout.log"))
	fmt.Println("stderr:", filepath.Join(logDir, in.ProcessID+".stderr.log"))
}
