package authclient

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ChangePasswordMessage struct {
	CurrentSecret string `json:"currentSecret" example:"old_secret_word" doc:"Current password"`
	NewSecret     string `json:"newSecret" example:"some_secret_word" doc:"New password"`
}

func (m ChangePasswordMessage) Type() string { return "session.password.change" }

func (m ChangePasswordMessage) Validate() error {
	return PasswordChange(m).Validate()
}

// ChangePasswordHandler updates the secret of the signed in user.
type ChangePasswordHandler struct {
	backend  PasswordBackend
	session  *SessionMachine
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewChangePasswordHandler creates a handler with sane defaults.
func NewChangePasswordHandler(backend PasswordBackend, session *SessionMachine) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		backend:  backend,
		session:  session,
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  10 * time.Second,
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit password change events.
func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	snap := h.session.Snapshot()
	if !snap.IsAuthenticated {
		return ErrNotAuthenticated
	}

	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.backend.UpdatePassword(ctx, PasswordChange(event)); err != nil {
		h.session.fail(err)
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			h.logger.Warn("password change rejected: %s (%s)", richErr.Message, richErr.TextCode)
			return richErr
		}
		h.logger.Error("password change failed: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		UserID:     snap.User.ID,
		FromStatus: snap.Status,
		ToStatus:   snap.Status,
	})
	return nil
}
