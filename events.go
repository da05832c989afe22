package session

import (
	"sort"
	"sync"
)

// AuthEvent identifies a change on the provider's auth-state channel.
type AuthEvent string

const (
	// EventInitialSession is delivered once to every new subscriber with the
	// session held at subscription time (possibly nil).
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	// EventSignedIn is delivered when a session is established, including
	// OAuth redirect completion.
	EventSignedIn AuthEvent = "SIGNED_IN"
	// EventSignedOut is delivered when the session is invalidated.
	EventSignedOut AuthEvent = "SIGNED_OUT"
	// EventTokenRefreshed is delivered when the access token is renewed.
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	// EventUserUpdated is delivered after provider-side user mutations.
	EventUserUpdated AuthEvent = "USER_UPDATED"
	// EventPasswordRecovery is delivered when a recovery link lands.
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// AuthChangeHandler receives (event, session) pairs in provider emit order.
type AuthChangeHandler func(event AuthEvent, session *Session)

// Subscription is a handle on a standing auth-change subscription.
type Subscription interface {
	Unsubscribe()
}

// Emitter fans auth-change events out to subscribers. Providers embed it to
// satisfy the OnAuthStateChange side of IdentityClient. The zero value is
// ready to use.
type Emitter struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]AuthChangeHandler
}

// Subscribe registers a handler for subsequent events.
func (e *Emitter) Subscribe(handler AuthChangeHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = map[int]AuthChangeHandler{}
	}

	id := e.nextID
	e.nextID++
	e.handlers[id] = handler

	return &emitterSubscription{emitter: e, id: id}
}

// Emit delivers the event to every subscriber, synchronously and in
// subscription order with respect to a single event. There is no ordering
// guarantee between an emitted event and a concurrent imperative call.
func (e *Emitter) Emit(event AuthEvent, sess *Session) {
	e.mu.Lock()
	ids := make([]int, 0, len(e.handlers))
	for id := range e.handlers {
		ids = append(ids, id)
	}
	// map iteration order is random; deliver in subscription order
	sort.Ints(ids)
	handlers := make([]AuthChangeHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, e.handlers[id])
	}
	e.mu.Unlock()

	for _, handler := range handlers {
		if handler != nil {
			handler(event, sess)
		}
	}
}

type emitterSubscription struct {
	emitter *Emitter
	id      int
	once    sync.Once
}

func (s *emitterSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.emitter.mu.Lock()
		delete(s.emitter.handlers, s.id)
		s.emitter.mu.Unlock()
	})
}
