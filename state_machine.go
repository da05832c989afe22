package session

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_SESSION_PHASE_TRANSITION"
)

// ErrInvalidTransition is returned when a requested phase change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid session phase transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// Phase is the lifecycle phase of the auth state as a whole.
type Phase string

const (
	// PhaseUninitialized is the pre-init phase: loading, all fields nil.
	PhaseUninitialized Phase = "uninitialized"
	// PhaseAnonymous means no session is held.
	PhaseAnonymous Phase = "anonymous"
	// PhaseAuthenticated means a session and user are held. Re-entry is a
	// valid transition (token refresh, OAuth completion over an existing
	// session).
	PhaseAuthenticated Phase = "authenticated"
)

// phaseTransitions is the allowed transition graph. Uninitialized is entered
// exactly once, at construction, and never re-entered.
var phaseTransitions = map[Phase]map[Phase]struct{}{
	PhaseUninitialized: {
		PhaseAnonymous:     {},
		PhaseAuthenticated: {},
	},
	PhaseAnonymous: {
		PhaseAnonymous:     {},
		PhaseAuthenticated: {},
	},
	PhaseAuthenticated: {
		PhaseAnonymous:     {},
		PhaseAuthenticated: {},
	},
}

func canTransition(from, to Phase) bool {
	if allowed, ok := phaseTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition when the phase change is
// not part of the lifecycle graph.
func ValidateTransition(from, to Phase) error {
	if to == "" {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target phase is empty",
		})
	}

	if !canTransition(from, to) {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
	}

	return nil
}
