package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"-port 7777", []string{"-port", "7777"}},
		{`-name "my server" -map 'de dust'`, []string{"-name", "my server", "-map", "de dust"}},
		{`-empty ""`, []string{"-empty", ""}},
		{"a\tb\nc", []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Configuration{Parameters: tc.in}.Args(), tc.in)
	}
}

func TestConfigurationValidate(t *testing.T) {
	assert.Error(t, Configuration{}.Validate())
	assert.Error(t, Configuration{LaunchPath: "/bin/x", ConcurrentExecutions: -1}.Validate())
	assert.Error(t, Configuration{LaunchPath: "/bin/x", Env: []string{"NOEQUALS"}}.Validate())
	assert.Error(t, Configuration{LaunchPath: "/bin/x", Env: []string{"=v"}}.Validate())
	assert.NoError(t, Configuration{LaunchPath: "/bin/x", Env: []string{"K=V", "E="}}.Validate())
}

func TestConfigurationConcurrencyAndString(t *testing.T) {
	c := Configuration{LaunchPath: "/srv/game", Parameters: "-port 1"}
	assert.Equal(t, 1, c.Concurrency())
	c.ConcurrentExecutions = 4
	assert.Equal(t, 4, c.Concurrency())
	assert.Equal(t, `LaunchPath=/srv/game Parameters="-port 1" ConcurrentExecutions=4`, c.String())
}

func TestConfigurationCloneIsIndependent(t *testing.T) {
	c := Configuration{LaunchPath: "/x", Env: []string{"A=1"}}
	cp := c.clone()
	cp.Env[0] = "A=2"
	assert.Equal(t, "A=1", c.Env[0])
}
