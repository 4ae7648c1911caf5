package tmux

import "strings"

// DefaultEnvPrefix matches TMUX, TMUX_PANE, TMUX_TMPDIR and friends.
const DefaultEnvPrefix = "TMUX"

// StripEnv returns env without the variables whose name starts with prefix.
// Matching is case-sensitive and only looks at the name, so a value that
// happens to contain the prefix is kept. An attach client started with the
// host's TMUX variables would otherwise refuse to nest or talk to the wrong
// server.
func StripEnv(env []string, prefix string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
