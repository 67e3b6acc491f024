package authclient

// Status is the coarse lifecycle state of the session.
type Status string

const (
	StatusUnknown         Status = "unknown"
	StatusInitializing    Status = "initializing"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// sessionTransitions is the allowed status graph. Self loops on the two
// settled states cover refreshes, repeated logouts and re-logins.
var sessionTransitions = map[Status]map[Status]struct{}{
	StatusUnknown: {
		StatusInitializing:    {},
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
	StatusInitializing: {
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
	StatusAuthenticated: {
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
	StatusUnauthenticated: {
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
}

// CanTransition reports whether from -> to is part of the session graph.
func CanTransition(from, to Status) bool {
	if from == "" {
		from = StatusUnknown
	}
	if allowed, ok := sessionTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// IsSettled reports whether initialization has finished.
func (s Status) IsSettled() bool {
	return s == StatusAuthenticated || s == StatusUnauthenticated
}

func (s Status) String() string {
	return string(s)
}

func transitionError(from, to Status) error {
	return withMetadata(ErrInvalidTransition, map[string]any{
		"from": from,
		"to":   to,
	})
}
