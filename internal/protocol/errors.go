package protocol

// ErrorKind is a stable, machine-readable error category
type ErrorKind string

const (
	KindInvalidMessage      ErrorKind = "invalid_message"
	KindUnknownSession      ErrorKind = "unknown_session"
	KindInvalidSize         ErrorKind = "invalid_size"
	KindInvalidTmuxName     ErrorKind = "invalid_tmux_name"
	KindTmuxUnavailable     ErrorKind = "tmux_unavailable"
	KindTmuxSessionNotFound ErrorKind = "tmux_session_not_found"
	KindSpawnFailed         ErrorKind = "spawn_failed"
	KindNotAttachment       ErrorKind = "not_attachment"
	KindSessionClosed       ErrorKind = "session_closed"
	KindRateLimited         ErrorKind = "rate_limited"
	KindInternal            ErrorKind = "internal"
)
