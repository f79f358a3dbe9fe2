package env

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/loykin/gamehost/internal/process"
)

// Variables injected into every game-server process.
const (
	ProcessIDVar = process.EnvProcessID
	HostIDVar    = "GAMEHOST_HOST_ID"
	AuthTokenVar = "GAMEHOST_AUTH_TOKEN"
	AgentURLVar  = "GAMEHOST_AGENT_URL"
)

const mask = "****"

var secretKey = regexp.MustCompile(`(?i)(TOKEN|SECRET|PASSWORD|KEY)`)

type Var map[string]string

// Identity is the agent information handed to game servers so they can
// reach back to the agent.
type Identity struct {
	HostID    string
	AuthToken string
	AgentURL  string
}

// Provider computes per-process environment variables: global variables set
// on the agent plus the agent identity. It implements
// process.EnvironmentProvider.
type Provider struct {
	mu  sync.RWMutex
	id  Identity
	vrs Var
}

func New(id Identity) *Provider {
	return &Provider{id: id, vrs: make(Var)}
}

// AuthToken returns the agent token handed to game servers.
func (p *Provider) AuthToken() string { return p.id.AuthToken }

// Set sets a global variable K=V. Values may reference ${VAR}.
func (p *Provider) Set(k, v string) {
	if k == "" {
		return
	}
	p.mu.Lock()
	p.vrs[k] = v
	p.mu.Unlock()
}

// Unset removes a global variable.
func (p *Provider) Unset(k string) {
	p.mu.Lock()
	delete(p.vrs, k)
	p.mu.Unlock()
}

// SetAll applies "K=V" entries; malformed entries and empty keys are skipped.
func (p *Provider) SetAll(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			p.Set(strings.TrimSpace(k), v)
		}
	}
}

// ProcessEnvironment returns the variables for processID. Global values are
// expanded once against the other globals and then the OS environment;
// identity variables override globals with the same name.
func (p *Provider) ProcessEnvironment(processID string) map[string]string {
	p.mu.RLock()
	out := make(map[string]string, len(p.vrs)+4)
	for k, v := range p.vrs {
		out[k] = expand(v, p.vrs)
	}
	id := p.id
	p.mu.RUnlock()

	out[ProcessIDVar] = processID
	if id.HostID != "" {
		out[HostIDVar] = id.HostID
	}
	if id.AuthToken != "" {
		out[AuthTokenVar] = id.AuthToken
	}
	if id.AgentURL != "" {
		out[AgentURLVar] = id.AgentURL
	}
	return out
}

// PrintableEnvironment renders ProcessEnvironment as sorted K=V pairs joined
// by ", " with secret values masked.
func (p *Provider) PrintableEnvironment(processID string) string {
	m := p.ProcessEnvironment(processID)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		if IsSecret(k) {
			v = mask
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ", ")
}

// IsSecret reports whether values of key must not be logged.
func IsSecret(key string) bool {
	return key == AuthTokenVar || secretKey.MatchString(key)
}

// expand replaces ${NAME} with vars[NAME], falling back to the OS
// environment. Unknown names are left untouched. No recursion.
func expand(s string, vars Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			break
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else if v, ok := os.LookupEnv(name); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
	b.WriteString(s)
	return b.String()
}
