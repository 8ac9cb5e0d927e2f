package speechtotext

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const DefaultDialTimeout = 10 * time.Second

var (
	// ErrConnection wraps handshake and transport failures. A failed
	// session is never reconnected.
	ErrConnection = errors.New("streaming connection failed")
	// ErrSessionClosed is returned when opening a session that has already
	// been used. Each session carries exactly one connection.
	ErrSessionClosed = errors.New("streaming session already used")
)

// SessionState is the lifecycle of a single streaming connection.
//
//	Idle → Connecting → Open → Closing → Closed
//	         │
//	         └── handshake failure ──→ Closed
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Lifecycle guards state transitions for one session. Safe for concurrent
// use.
type Lifecycle struct {
	mu    sync.RWMutex
	state SessionState
}

func (l *Lifecycle) State() SessionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Lifecycle) IsOpen() bool { return l.State() == StateOpen }

// BeginConnect moves Idle to Connecting. Any other starting state means the
// session was already used.
func (l *Lifecycle) BeginConnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		return fmt.Errorf("%w: state is %s", ErrSessionClosed, l.state)
	}
	l.state = StateConnecting
	return nil
}

// Opened moves Connecting to Open. It reports false if the session was
// closed while the handshake was in flight.
func (l *Lifecycle) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnecting {
		return false
	}
	l.state = StateOpen
	return true
}

// BeginClose moves the session to Closing. It reports false if the session
// is already closing or closed, so teardown runs once.
func (l *Lifecycle) BeginClose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateClosing, StateClosed:
		return false
	}
	l.state = StateClosing
	return true
}

func (l *Lifecycle) Closed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
}
