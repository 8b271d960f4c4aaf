// Package session holds the per-connection bridge Session and the Registry
// of live sessions that routing fans out over.
package session

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cory-johannsen/chatbridge/internal/world"
)

var (
	// ErrSessionClosed is returned when sending on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidTransition is returned when a lifecycle step is taken out of order.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateBound
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateBound:
		return "bound"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the connection capability a Session sends through. The Session
// does not own the connection's reader.
type Conn interface {
	WriteLine(text string) error
	Close() error
}

// Binding is the character a Session is bound to.
type Binding struct {
	PlayerID   int64
	PlayerName string
	Faction    world.Faction
	GuildID    int64
	HasGuild   bool
}

// Identity is the principal of a Session. AccountID is set at authentication;
// the remaining fields are zero until binding.
type Identity struct {
	AccountID int64
	Binding
}

// Session is one live bridge connection.
//
// Identity is written once per lifecycle step by the owning goroutine and
// published atomically, so router goroutines may read it at any time.
type Session struct {
	id         string
	remoteAddr string
	conn       Conn
	state      atomic.Int32
	identity   atomic.Pointer[Identity]
}

// New creates an Unauthenticated Session around conn.
//
// Precondition: conn must be non-nil.
// Postcondition: The returned Session has a fresh random ID.
func New(conn Conn, remoteAddr string) *Session {
	return &Session{
		id:         uuid.NewString(),
		remoteAddr: remoteAddr,
		conn:       conn,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the resolved peer address.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Identity returns a copy of the session principal. ok is false before
// authentication.
func (s *Session) Identity() (Identity, bool) {
	id := s.identity.Load()
	if id == nil {
		return Identity{}, false
	}
	return *id, true
}

// IsBound reports whether the session is bound to a character and still open.
func (s *Session) IsBound() bool {
	st := s.State()
	return st == StateBound || st == StateActive
}

// Authenticate records the verified account.
//
// Precondition: State must be StateUnauthenticated.
// Postcondition: State is StateAuthenticated, or an error is returned and nothing changes.
func (s *Session) Authenticate(accountID int64) error {
	if err := s.expect(StateUnauthenticated); err != nil {
		return err
	}
	s.identity.Store(&Identity{AccountID: accountID})
	return s.advance(StateUnauthenticated, StateAuthenticated)
}

// Bind attaches the selected character.
//
// Precondition: State must be StateAuthenticated.
// Postcondition: State is StateBound and Identity carries b.
func (s *Session) Bind(b Binding) error {
	if err := s.expect(StateAuthenticated); err != nil {
		return err
	}
	cur := s.identity.Load()
	s.identity.Store(&Identity{AccountID: cur.AccountID, Binding: b})
	return s.advance(StateAuthenticated, StateBound)
}

// Activate marks a bound session as ready for commands.
//
// Precondition: State must be StateBound.
func (s *Session) Activate() error {
	return s.advance(StateBound, StateActive)
}

func (s *Session) expect(want State) error {
	if got := s.State(); got != want {
		if got == StateClosed {
			return ErrSessionClosed
		}
		return fmt.Errorf("%w: %s, want %s", ErrInvalidTransition, got, want)
	}
	return nil
}

func (s *Session) advance(from, to State) error {
	if s.state.CompareAndSwap(int32(from), int32(to)) {
		return nil
	}
	return s.expect(from)
}

// Send writes one line to the peer.
//
// Postcondition: Returns ErrSessionClosed if the session is closed, otherwise
// the connection's write error.
func (s *Session) Send(line string) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	return s.conn.WriteLine(line)
}

// Close moves the session to StateClosed and closes the connection.
//
// Postcondition: Safe to call more than once; only the first call closes the connection.
func (s *Session) Close() error {
	if State(s.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	return s.conn.Close()
}
