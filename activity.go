package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess   ActivityEventType = "session.login.success"
	ActivityEventLoginFailure   ActivityEventType = "session.login.failure"
	ActivityEventSignup         ActivityEventType = "session.signup"
	ActivityEventLogout         ActivityEventType = "session.logout"
	ActivityEventOAuthStarted   ActivityEventType = "session.oauth.started"
	ActivityEventTokenRefreshed ActivityEventType = "session.token.refreshed"
	ActivityEventSignedOut      ActivityEventType = "session.signed_out.external"
	ActivityEventPasswordReset  ActivityEventType = "session.password.reset"
	ActivityEventProfileUpdated ActivityEventType = "session.profile.updated"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
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
