package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/gamehost/pkg/client"
)

var errAgentUnreachable = errors.New("agent not reachable - please start it first with 'gamehost serve'")

func newAPIClient(ctx context.Context, g *GlobalFlags) (*client.Client, error) {
	c, err := client.New(client.Config{
		BaseURL:  g.APIUrl,
		Timeout:  g.APITimeout,
		CACert:   g.CACert,
		Insecure: g.Insecure,
		Token:    g.Token,
	})
	if err != nil {
		return nil, err
	}
	if !c.IsReachable(ctx) {
		return nil, errAgentUnreachable
	}
	return c, nil
}

func createRunCommand(global *GlobalFlags) *cobra.Command {
	flags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a game-server process on the agent",
		Long: `Launch ConcurrentExecutions copies of a game-server process.

Examples:
  gamehost run --launch-path=/srv/game/server --parameters="-port 7777"
  gamehost run --launch-path=server --work-dir=/srv/game --concurrent-executions=2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLaunch(cmd.Context(), cmd.OutOrStdout(), global, flags)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flags.LaunchPath, "launch-path", "", "executable to launch (required)")
	fs.StringVar(&flags.Parameters, "parameters", "", "command-line parameters")
	fs.IntVar(&flags.ConcurrentExecutions, "concurrent-executions", 1, "number of copies to launch")
	fs.StringVar(&flags.WorkDir, "work-dir", "", "absolute working directory")
	fs.StringSliceVar(&flags.Env, "env", nil, "extra KEY=VALUE environment (repeatable)")
	fs.BoolVar(&flags.Activate, "activate", false, "mark the processes Active right after launch")
	_ = cmd.MarkFlagRequired("launch-path")
	return cmd
}

func runLaunch(ctx context.Context, w io.Writer, g *GlobalFlags, f *RunFlags) error {
	c, err := newAPIClient(ctx, g)
	if err != nil {
		return err
	}
	n := f.ConcurrentExecutions
	if n < 1 {
		n = 1
	}
	req := client.LaunchRequest{
		LaunchPath:           f.LaunchPath,
		Parameters:           f.Parameters,
		ConcurrentExecutions: n,
		WorkDir:              f.WorkDir,
		Env:                  f.Env,
	}
	var (
		out  []client.Process
		errs []error
	)
	for i := 0; i < n; i++ {
		p, err := c.Launch(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f.Activate {
			if err := c.Activate(ctx, p.ProcessID); err != nil {
				errs = append(errs, err)
			} else {
				p.Status = "Active"
			}
		}
		out = append(out, p)
	}
	if len(out) > 0 {
		if err := render(w, g.Output, out); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func createPsCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "ps",
		Aliases: []string{"list"},
		Short:   "List processes tracked by the agent",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newAPIClient(cmd.Context(), global)
			if err != nil {
				return err
			}
			list, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), global.Output, list)
		},
	}
}

func createGetCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <process-id>",
		Short: "Show one process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd.Context(), global)
			if err != nil {
				return err
			}
			p, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), global.Output, []client.Process{p})
		},
	}
}

func createActivateCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <process-id>",
		Short: "Report that a process finished initializing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd.Context(), global)
			if err != nil {
				return err
			}
			if err := c.Activate(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Process '%s' activated\n", args[0])
			return nil
		},
	}
}

func createTerminateCommand(global *GlobalFlags) *cobra.Command {
	flags := &TerminateFlags{}
	cmd := &cobra.Command{
		Use:   "terminate <process-id>",
		Short: "Terminate a process",
		Long: `Terminate a process. The reason defaults to CUSTOMER_INITIATED; with
--wait the command blocks until the process is Terminated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminate(cmd.Context(), cmd.OutOrStdout(), global, flags, args[0])
		},
	}
	cmd.Flags().StringVar(&flags.Reason, "reason", "", "termination reason")
	cmd.Flags().DurationVar(&flags.Wait, "wait", 0, "wait up to this long for the process to terminate")
	return cmd
}

func runTerminate(ctx context.Context, w io.Writer, g *GlobalFlags, f *TerminateFlags, id string) error {
	c, err := newAPIClient(ctx, g)
	if err != nil {
		return err
	}
	if err := c.Terminate(ctx, id, f.Reason); err != nil {
		return err
	}
	if f.Wait <= 0 {
		_, _ = fmt.Fprintf(w, "Process '%s' terminating\n", id)
		return nil
	}
	p, err := waitTerminated(ctx, c, id, f.Wait)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Process '%s' terminated (%s)\n", id, p.TerminationReason)
	return nil
}

func waitTerminated(ctx context.Context, c *client.Client, id string, timeout time.Duration) (client.Process, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		p, err := c.Get(ctx, id)
		if err == nil && p.Status == "Terminated" {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return p, fmt.Errorf("process %s did not terminate within %s", id, timeout)
		case <-t.C:
		}
	}
}

func createForgetCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <process-id>",
		Short: "Drop a terminated process from the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd.Context(), global)
			if err != nil {
				return err
			}
			return c.Forget(cmd.Context(), args[0])
		},
	}
}

// render writes processes as a table or as indented JSON.
func render(w io.Writer, format string, ps []client.Process) error {
	if strings.EqualFold(format, "json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ps)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROCESS ID\tPID\tSTATUS\tREASON\tGAME SESSION\tLAUNCH PATH")
	for _, p := range ps {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			p.ProcessID, p.PID, p.Status, dash(p.TerminationReason), dash(p.GameSessionID), p.Configuration.LaunchPath)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
