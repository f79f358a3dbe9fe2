package process

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/loykin/gamehost/internal/logger"
)

// EnvProcessID is the variable carrying the process id into the game server.
// ExecLauncher also uses it to name the output files.
const EnvProcessID = "GAMEHOST_PROCESS_ID"

// ExecLauncher starts a Configuration with os/exec.
type ExecLauncher struct {
	cfg  Configuration
	logs logger.FileConfig
}

// NewExecLauncher returns a launcher for cfg. Process stdout/stderr go to
// files described by logs; with a zero FileConfig they are discarded.
func NewExecLauncher(cfg Configuration, logs logger.FileConfig) *ExecLauncher {
	return &ExecLauncher{cfg: cfg.clone(), logs: logs}
}

// Build implements Launcher.
func (l *ExecLauncher) Build(env map[string]string) (Handle, error) {
	path, err := l.resolve()
	if err != nil {
		return nil, err
	}

	cmd := &exec.Cmd{
		Path: path,
		Args: append([]string{path}, l.cfg.Args()...),
		Dir:  l.cfg.WorkDir,
		Env:  mergeEnv(os.Environ(), l.cfg.Env, env),
	}
	configureSysProcAttr(cmd)

	name := env[EnvProcessID]
	if name == "" {
		name = filepath.Base(path)
	}
	stdout, stderr, err := l.logs.ProcessWriters(name)
	if err != nil {
		return nil, fmt.Errorf("open process output: %w", err)
	}
	var closers []io.Closer
	if stdout != nil {
		cmd.Stdout = stdout
		closers = append(closers, stdout)
	}
	if stderr != nil {
		cmd.Stderr = stderr
		closers = append(closers, stderr)
	}

	if err := cmd.Start(); err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, exec.ErrNotFound) ||
			errors.Is(err, syscall.ENOEXEC) {
			return nil, errBadExecutablePath(l.cfg.LaunchPath, err)
		}
		return nil, fmt.Errorf("start %s: %w", l.cfg.LaunchPath, err)
	}
	return newCmdHandle(cmd, closers...), nil
}

// resolve turns LaunchPath into an absolute executable path. Paths with a
// separator are taken relative to WorkDir; bare names are looked up in PATH.
func (l *ExecLauncher) resolve() (string, error) {
	p := strings.TrimSpace(l.cfg.LaunchPath)
	if p == "" {
		return "", errBadExecutablePath(l.cfg.LaunchPath, errors.New("empty launch path"))
	}
	if !filepath.IsAbs(p) && strings.ContainsRune(filepath.ToSlash(p), '/') && l.cfg.WorkDir != "" {
		p = filepath.Join(l.cfg.WorkDir, p)
	}
	found, err := exec.LookPath(p)
	if err != nil && !errors.Is(err, exec.ErrDot) {
		return "", errBadExecutablePath(l.cfg.LaunchPath, err)
	}
	if fi, statErr := os.Stat(found); statErr != nil {
		return "", errBadExecutablePath(l.cfg.LaunchPath, statErr)
	} else if fi.IsDir() {
		return "", errBadExecutablePath(l.cfg.LaunchPath, errors.New("is a directory"))
	}
	abs, err := filepath.Abs(found)
	if err != nil {
		return "", errBadExecutablePath(l.cfg.LaunchPath, err)
	}
	return abs, nil
}

// mergeEnv layers extra "K=V" entries and then vars over base. Later layers
// win; the result is sorted by key.
func mergeEnv(base, extra []string, vars map[string]string) []string {
	m := make(map[string]string, len(base)+len(extra)+len(vars))
	for _, layer := range [][]string{base, extra} {
		for _, kv := range layer {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				m[k] = v
			}
		}
	}
	for k, v := range vars {
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
