package authclient

import (
	"context"
	"errors"
	"time"
)

// DefaultRoleSettleDelay is the pause before a role change is confirmed.
const DefaultRoleSettleDelay = 500 * time.Millisecond

// RoleService lists and switches the user's active role. A role change is
// never applied locally: the profile is always re-fetched from the server.
type RoleService struct {
	backend  RoleBackend
	session  *SessionMachine
	logger   Logger
	activity ActivitySink
	now      func() time.Time
	settle   time.Duration
}

func NewRoleService(backend RoleBackend, session *SessionMachine) *RoleService {
	return &RoleService{
		backend:  backend,
		session:  session,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
		settle:   DefaultRoleSettleDelay,
	}
}

// WithLogger overrides the logger used by the service.
func (s *RoleService) WithLogger(logger Logger) *RoleService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink sets the sink used to emit role change events.
func (s *RoleService) WithActivitySink(sink ActivitySink) *RoleService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithSettleDelay sets the pause applied after a successful role change.
// Zero disables it.
func (s *RoleService) WithSettleDelay(d time.Duration) *RoleService {
	if d >= 0 {
		s.settle = d
	}
	return s
}

// ActiveRole resolves the role of the current user.
func (s *RoleService) ActiveRole() Role {
	return s.session.Snapshot().ActiveRole()
}

// Permissions projects the current active role.
func (s *RoleService) Permissions() Permissions {
	return s.session.Snapshot().Permissions()
}

// AvailableRoles asks the server which roles the user may switch to. When
// the request fails for a reason other than a dead credential, the roles
// known from the profile are returned instead.
func (s *RoleService) AvailableRoles(ctx context.Context) ([]Role, error) {
	snap := s.session.Snapshot()
	if !snap.HasToken() {
		return nil, ErrNotAuthenticated
	}

	roles, err := s.backend.AvailableRoles(ctx)
	if err == nil {
		return NormalizeRoles(roles), nil
	}

	if IsInvalidCredential(err) || snap.User == nil {
		return nil, err
	}

	s.logger.Warn("available roles request failed, using profile roles: %v", err)
	return AssignableRoles(snap.User), nil
}

// ChangeRole asks the server to switch the active role, then refreshes the
// profile. The returned role is the one the refreshed profile reports.
func (s *RoleService) ChangeRole(ctx context.Context, role Role) (Role, error) {
	snap := s.session.Snapshot()
	if !snap.HasToken() {
		return snap.ActiveRole(), ErrNotAuthenticated
	}

	role = NormalizeRole(string(role))
	if role == "" {
		err := newValidationError(errors.New("role is required"), "invalid role")
		s.session.fail(err)
		return snap.ActiveRole(), err
	}

	previous := snap.ActiveRole()

	if err := s.backend.ChangeRole(ctx, role); err != nil {
		s.session.fail(err)
		s.logger.Warn("change role to %s failed: %v", role, err)
		return previous, err
	}

	if err := s.session.FetchProfile(ctx); err != nil {
		s.logger.Warn("change role to %s: profile refresh failed: %v", role, err)
		return s.ActiveRole(), err
	}

	if err := s.wait(ctx); err != nil {
		return s.ActiveRole(), err
	}

	after := s.session.Snapshot()
	active := after.ActiveRole()
	if !active.Equal(role) {
		s.logger.Warn("change role: requested %s but server reports %s", role, active)
	}

	userID := ""
	if after.User != nil {
		userID = after.User.ID
	}
	recordActivity(ctx, s.activity, s.logger, s.now, ActivityEvent{
		EventType:  ActivityEventRoleChanged,
		UserID:     userID,
		FromStatus: snap.Status,
		ToStatus:   after.Status,
		Metadata: map[string]any{
			"from_role": previous.String(),
			"to_role":   active.String(),
			"requested": role.String(),
		},
	})
	return active, nil
}

func (s *RoleService) wait(ctx context.Context) error {
	if s.settle <= 0 {
		return nil
	}
	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
