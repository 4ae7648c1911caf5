// Package session owns the set of live terminal sessions.
//
// A session is created pending: its pseudo-terminal exists but no process
// runs until the first resize supplies real dimensions. Every session is
// bound to a context derived from its owning connection, so cancelling the
// connection tears down every session it created.
//
// Lifecycle:
//
//	pending --first resize--> running --exit/close/detach--> closed
//	pending --close/spawn failure/disconnect-----------------> closed
//
// Teardown always runs in the same order: stop the process, release the
// terminal, wait for the bridge pumps, then drop the registry entry and
// notify the owner. Once a session disappears from the registry its
// resources are gone.
//
// Example Usage:
//
//	reg := session.NewRegistry(session.Options{Opener: terminal.OpenTerminal})
//	s, err := reg.Create(connCtx, session.CreateRequest{Launch: launch, Sink: conn})
//	err = reg.Resize(s.ID, terminal.Size{Rows: 24, Cols: 80})
//	err = reg.Close(s.ID)
package session
