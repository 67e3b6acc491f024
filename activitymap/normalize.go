// Package activitymap turns session activity events into a flat record
// that log pipelines and analytics sinks can consume.
package activitymap

import (
	"cmp"
	"context"
	"maps"
	"strings"
	"time"

	authclient "github.com/goliatone/go-auth-client"
)

const (
	// MetadataKeyFromStatus stores the session status before the transition.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the session status after the transition.
	MetadataKeyToStatus = "to_status"
)

// Levels attached to normalized records.
const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

const (
	defaultChannel    = "session"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
	churchObjectType  = "church"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	Level      string         `json:"level"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*settings)

type settings struct {
	channel       string
	objectType    string
	actorFallback string
	resolveID     func(authclient.ActivityEvent) string
	now           func() time.Time
}

// Normalize converts a session activity event into the normalized shape.
// Church selection events point at the church, everything else at the user.
func Normalize(event authclient.ActivityEvent, opts ...Option) Normalized {
	s := settings{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	userID := strings.TrimSpace(event.UserID)
	out := Normalized{
		ActorID:    cmp.Or(userID, s.actorFallback),
		Verb:       string(event.EventType),
		Level:      levelOf(event.EventType),
		ObjectType: s.objectType,
		ObjectID:   userID,
		Channel:    s.channel,
		Metadata:   statusMetadata(event),
		OccurredAt: event.OccurredAt,
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = s.now().UTC()
	}

	switch {
	case s.resolveID != nil:
		out.ObjectID = strings.TrimSpace(s.resolveID(event))
	case event.EventType == authclient.ActivityEventChurchSelected:
		out.ObjectType = churchObjectType
		churchID, _ := event.Metadata["church_id"].(string)
		out.ObjectID = strings.TrimSpace(churchID)
	}
	return out
}

// Sink adapts fn into an ActivitySink that receives normalized records.
func Sink(fn func(context.Context, Normalized) error, opts ...Option) authclient.ActivitySink {
	return authclient.ActivitySinkFunc(func(ctx context.Context, event authclient.ActivityEvent) error {
		if fn == nil {
			return nil
		}
		return fn(ctx, Normalize(event, opts...))
	})
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(s *settings) {
		s.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(s *settings) {
		s.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(authclient.ActivityEvent) string) Option {
	return func(s *settings) {
		s.resolveID = resolver
	}
}

// WithActorFallback sets the actor id used when the event has no user.
func WithActorFallback(actorID string) Option {
	return func(s *settings) {
		s.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the time used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func levelOf(t authclient.ActivityEventType) string {
	switch t {
	case authclient.ActivityEventLoginFailure,
		authclient.ActivityEventCredentialRevoked,
		authclient.ActivityEventProfileRejected:
		return LevelWarn
	}
	return LevelInfo
}

// statusMetadata copies the event metadata and adds the status pair. The
// source map is never modified.
func statusMetadata(event authclient.ActivityEvent) map[string]any {
	var out map[string]any
	if len(event.Metadata) > 0 {
		out = maps.Clone(event.Metadata)
	}

	for key, status := range map[string]authclient.Status{
		MetadataKeyFromStatus: event.FromStatus,
		MetadataKeyToStatus:   event.ToStatus,
	} {
		if status == "" {
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		out[key] = string(status)
	}
	return out
}
