package main

import "time"

const (
	defaultAPIUrl     = "http://127.0.0.1:8080/api"
	defaultAPITimeout = 10 * time.Second
)

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
	Token      string
	Output     string
}

type ServeFlags struct {
	PidFile string
}

type RunFlags struct {
	LaunchPath           string
	Parameters           string
	ConcurrentExecutions int
	WorkDir              string
	Env                  []string
	Activate             bool
}

type TerminateFlags struct {
	Reason string
	Wait   time.Duration
}
