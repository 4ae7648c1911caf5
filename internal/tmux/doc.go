// Package tmux talks to an external tmux server through its CLI.
//
// It covers three concerns: one-shot queries (list-sessions, list-clients,
// has-session), building the command that attaches a new terminal session
// to an existing tmux session, and a Monitor that polls the server in the
// background and reports changes.
//
// tmux is optional. When the binary cannot be found the Monitor stays
// disabled and attach requests fail with ErrUnavailable; nothing else in
// the server depends on it.
package tmux
