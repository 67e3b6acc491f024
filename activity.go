package authclient

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess      ActivityEventType = "session.login.success"
	ActivityEventLoginFailure      ActivityEventType = "session.login.failure"
	ActivityEventLogout            ActivityEventType = "session.logout"
	ActivityEventCredentialRevoked ActivityEventType = "session.credential.revoked"
	ActivityEventProfileRefreshed  ActivityEventType = "session.profile.refreshed"
	ActivityEventProfileUpdated    ActivityEventType = "session.profile.updated"
	ActivityEventProfileRejected   ActivityEventType = "session.profile.rejected"
	ActivityEventPasswordChanged   ActivityEventType = "session.password.changed"
	ActivityEventRoleChanged       ActivityEventType = "session.role.changed"
	ActivityEventChurchSelected    ActivityEventType = "session.church.selected"
)

// ActivityEvent captures diagnostic information about a session change.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	FromStatus Status
	ToStatus   Status
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events. Sinks run best-effort, errors are
// logged and never fail the transition that produced the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("activity sink error for %s: %v", event.EventType, err)
	}
}
