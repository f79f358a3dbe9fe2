package process

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration describes how to launch one game-server process.
type Configuration struct {
	LaunchPath           string   `json:"launch_path" mapstructure:"launch_path"`                     // executable to run
	Parameters           string   `json:"parameters" mapstructure:"parameters"`                       // argument string passed to the executable
	ConcurrentExecutions int      `json:"concurrent_executions" mapstructure:"concurrent_executions"` // concurrency hint (default 1)
	WorkDir              string   `json:"work_dir,omitempty" mapstructure:"work_dir"`                 // optional working dir
	Env                  []string `json:"env,omitempty" mapstructure:"env"`                           // optional extra env, "K=V"
}

// Validate checks the fields a launcher depends on.
func (c Configuration) Validate() error {
	if strings.TrimSpace(c.LaunchPath) == "" {
		return errors.New("launch_path is required")
	}
	if c.ConcurrentExecutions < 0 {
		return fmt.Errorf("concurrent_executions cannot be negative: %d", c.ConcurrentExecutions)
	}
	for i, kv := range c.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("env[%d] %q is invalid, must be in KEY=VALUE format", i, kv)
		}
	}
	return nil
}

// Concurrency returns ConcurrentExecutions with the default of 1 applied.
func (c Configuration) Concurrency() int {
	if c.ConcurrentExecutions <= 0 {
		return 1
	}
	return c.ConcurrentExecutions
}

// Args splits Parameters into arguments. Whitespace separates arguments
// unless it is inside single or double quotes; the quotes themselves are
// removed. No shell expansion is performed.
func (c Configuration) Args() []string {
	return splitArgs(c.Parameters)
}

// clone returns a copy that shares no slices with c.
func (c Configuration) clone() Configuration {
	out := c
	if c.Env != nil {
		out.Env = append([]string(nil), c.Env...)
	}
	return out
}

func (c Configuration) String() string {
	return fmt.Sprintf("LaunchPath=%s Parameters=%q ConcurrentExecutions=%d", c.LaunchPath, c.Parameters, c.Concurrency())
}

func splitArgs(s string) []string {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		pending bool
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			pending = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, cur.String())
	}
	return args
}
