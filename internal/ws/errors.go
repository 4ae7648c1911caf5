package ws

import (
	"errors"

	"github.com/vaughanknight/trex-sub003/internal/domain/bridge"
	"github.com/vaughanknight/trex-sub003/internal/domain/session"
	"github.com/vaughanknight/trex-sub003/internal/protocol"
	"github.com/vaughanknight/trex-sub003/internal/terminal"
	"github.com/vaughanknight/trex-sub003/internal/tmux"
)

// kindOf maps domain errors onto stable protocol error kinds
func kindOf(err error) protocol.ErrorKind {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return protocol.KindUnknownSession
	case errors.Is(err, session.ErrClosed), errors.Is(err, bridge.ErrClosed), errors.Is(err, terminal.ErrClosed):
		return protocol.KindSessionClosed
	case errors.Is(err, terminal.ErrInvalidSize):
		return protocol.KindInvalidSize
	case errors.Is(err, session.ErrSpawnFailed):
		return protocol.KindSpawnFailed
	case errors.Is(err, session.ErrNotAttachment):
		return protocol.KindNotAttachment
	case errors.Is(err, tmux.ErrInvalidName), errors.Is(err, tmux.ErrInvalidWindow):
		return protocol.KindInvalidTmuxName
	case errors.Is(err, tmux.ErrUnavailable):
		return protocol.KindTmuxUnavailable
	case errors.Is(err, tmux.ErrSessionNotFound):
		return protocol.KindTmuxSessionNotFound
	case errors.Is(err, errRateLimited):
		return protocol.KindRateLimited
	default:
		return protocol.KindInternal
	}
}

var errRateLimited = errors.New("too many create requests")
