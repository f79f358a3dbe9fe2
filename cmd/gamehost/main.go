package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/gamehost"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and every subcommand.
func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	root := createRootCommand(global)
	root.AddCommand(
		createServeCommand(global),
		createRunCommand(global),
		createPsCommand(global),
		createGetCommand(global),
		createActivateCommand(global),
		createTerminateCommand(global),
		createForgetCommand(global),
	)
	return root
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "gamehost",
		Short: "Game-server process host agent",
		Long: `gamehost launches game-server processes on this host, tracks their
lifecycle from Initializing to Terminated and exposes them over HTTP.

Examples:
  gamehost serve gamehost.toml              # Start the agent
  gamehost run --launch-path=/srv/game/server --parameters="-port 7777"
  gamehost ps                               # List processes
  gamehost terminate <id> --reason=SERVER_PROCESS_TERMINATED_UNHEALTHY`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	pf.StringVar(&flags.APIUrl, "api-url", defaultAPIUrl, "agent API base URL")
	pf.DurationVar(&flags.APITimeout, "api-timeout", defaultAPITimeout, "agent API request timeout")
	pf.StringVar(&flags.CACert, "ca-cert", "", "CA certificate for an https agent")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification")
	pf.StringVar(&flags.Token, "token", os.Getenv(gamehost.AuthTokenVar), "agent API token (default $"+gamehost.AuthTokenVar+")")
	pf.StringVarP(&flags.Output, "output", "o", "table", "output format: table or json")
	return root
}
