package tmux

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/vaughanknight/trex-sub003/internal/infrastructure/resilience"
	"github.com/vaughanknight/trex-sub003/internal/terminal"
)

var (
	ErrInvalidName   = errors.New("invalid tmux session name")
	ErrInvalidWindow = errors.New("invalid tmux window index")
)

const maxNameLength = 128

// validSessionName excludes the characters tmux treats as target syntax
// (".", ":") and anything that would need quoting.
var validSessionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks an external session name before it reaches tmux.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLength || !validSessionName.MatchString(name) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidName, name, validSessionName.String())
	}
	return nil
}

// AttachRequest names the tmux target of a new attachment session.
type AttachRequest struct {
	SessionName string
	WindowIndex *int
}

// Attacher validates attach requests and builds the attach command.
type Attacher struct {
	client  *Client
	logger  *zap.Logger
	breaker *resilience.Breaker
}

func NewAttacher(client *Client, logger *zap.Logger) *Attacher {
	if logger == nil {
		logger = zap.NewNop()
	}
	// A missing session is an answer, not a tmux failure
	breaker := resilience.New("tmux-has-session", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, ErrSessionNotFound)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("tmux existence check circuit changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Attacher{client: client, logger: logger, breaker: breaker}
}

// Prepare checks req and returns the command a pending session should
// spawn. The existence check is best effort: only a definite "no such
// session" fails the request, other query errors are logged and the
// attach is allowed to proceed. After repeated query failures the check is
// skipped for a while instead of paying the command timeout every time.
func (a *Attacher) Prepare(ctx context.Context, req AttachRequest) (terminal.Command, error) {
	if err := ValidateName(req.SessionName); err != nil {
		return terminal.Command{}, err
	}
	if req.WindowIndex != nil && *req.WindowIndex < 0 {
		return terminal.Command{}, fmt.Errorf("%w: %d", ErrInvalidWindow, *req.WindowIndex)
	}
	if !a.client.Available() {
		return terminal.Command{}, ErrUnavailable
	}

	err := a.breaker.Do(func() error {
		return a.client.HasSession(ctx, req.SessionName)
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return terminal.Command{}, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionName)
		}
		a.logger.Warn("tmux session check failed, attaching anyway",
			zap.String("tmux_session", req.SessionName),
			zap.Error(err))
	}

	return a.client.AttachCommand(req.SessionName, req.WindowIndex), nil
}
