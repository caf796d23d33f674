package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle position of one chat connection.
type State int

const (
	// StateConnected means no session has been bound yet.
	StateConnected State = iota
	// StateJoined means a conversation is bound and turns are accepted.
	StateJoined
	// StateClosed means the transport is gone.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the connection-local state owned by the gateway. It holds no
// persisted data; dropping it loses nothing.
type Session struct {
	mu             sync.RWMutex
	id             string
	state          State
	sessionID      string
	conversationID string
}

// NewSession returns a session in the connected state.
func NewSession() *Session {
	return &Session{
		id:    uuid.Must(uuid.NewV7()).String(),
		state: StateConnected,
	}
}

// ID identifies the connection for logging.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Binding returns the bound session and conversation ids, and whether the
// connection is joined.
func (s *Session) Binding() (sessionID, conversationID string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID, s.conversationID, s.state == StateJoined
}

func (s *Session) bind(sessionID, conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.sessionID = sessionID
	s.conversationID = conversationID
	s.state = StateJoined
	return true
}

// Close releases the binding. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.sessionID = ""
	s.conversationID = ""
}
