package main

import (
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/loykin/gamehost"
)

// Mounts the gamehost API inside an Echo application.
func main() {
	e := echo.New()
	mgr := gamehost.New(gamehost.Options{Identity: gamehost.Identity{HostID: "echo-demo"}})
	base := os.Getenv("API_BASE")
	if base == "" {
		base = "/api"
	}

	h := gamehost.NewRouter(mgr, base, nil)

	// Mount under base using Echo's WrapHandler
	e.Any(base, echo.WrapHandler(h))
	e.Any(base+"/*", echo.WrapHandler(h))

	// Launch two demo servers so you can see them in GET /api/processes
	if _, err := mgr.LaunchAll([]gamehost.Configuration{{
		LaunchPath:           "/bin/sh",
		Parameters:           `-c 'while true; do echo demo; sleep 5; done'`,
		ConcurrentExecutions: 2,
	}}); err != nil {
		log.Println("launch:", err)
	}

	log.Println("starting echo server on :8080 with base", base)
	if err := e.Start(":8080"); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
