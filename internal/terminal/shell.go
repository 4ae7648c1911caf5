package terminal

import (
	"os"
	"strings"
)

const fallbackShell = "/bin/sh"

// ShellConfig describes the default interactive shell.
type ShellConfig struct {
	Shell   string
	Args    []string
	WorkDir string
	Term    string
}

// ShellCommand builds the command for a plain shell session. dir overrides
// the configured working directory when it names an existing directory.
func ShellCommand(cfg ShellConfig, dir string) Command {
	shell := cfg.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = fallbackShell
	}

	return Command{
		Path: shell,
		Args: cfg.Args,
		Env:  SetEnv(os.Environ(), "TERM", termOrDefault(cfg.Term)),
		Dir:  ResolveDir(dir, cfg.WorkDir),
	}
}

// ResolveDir picks the first candidate that is an existing directory,
// falling back to $HOME and then the process working directory.
func ResolveDir(candidates ...string) string {
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home)
	}
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return "/"
	}
	return wd
}

// SetEnv returns env with key set to value, replacing any existing entry.
func SetEnv(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if name, _, _ := strings.Cut(kv, "="); name == key {
			continue
		}
		out = append(out, kv)
	}
	return append(out, key+"="+value)
}

func termOrDefault(term string) string {
	if term == "" {
		return "xterm-256color"
	}
	return term
}
