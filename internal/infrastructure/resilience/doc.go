/*
Package resilience provides a circuit breaker for calls to external tools
that can hang or fail repeatedly.

# Usage

	breaker := resilience.New("tmux", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, tmux.ErrSessionNotFound)
		},
	})

	err := breaker.Do(func() error {
		return client.HasSession(ctx, name)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// skip the optional step
	}

# States

	Closed --[threshold failures]-> Open --[cooldown]-> Half-Open --[probe ok]-> Closed
	                                  ^                      |
	                                  +----[probe failed]----+
*/
package resilience
