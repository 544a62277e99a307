package session

import (
	"errors"
	"sync"

	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/wire"
)

// ErrDestroyed is returned by every method of a destroyed session.
var ErrDestroyed = errors.New("session: destroyed")

// Session is a protocol instance safe for use from several goroutines.
// Create sessions with [New] or [Restore].
type Session struct {
	mu        sync.Mutex
	in        *protocol.Instance
	destroyed bool
}

// Tag returns the protocol being run.
func (s *Session) Tag() protocol.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.Tag()
}

// Self returns the local participant id.
func (s *Session) Self() wire.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.Self()
}

// Round returns the round the session is waiting for.
func (s *Session) Round() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.Round()
}

// Status returns the current status. A destroyed session reports Failed.
func (s *Session) Status() protocol.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return protocol.Failed
	}
	return s.in.Status()
}

// Err returns the failure of a Failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	return s.in.Err()
}

// Advance applies inbound messages. See [protocol.Instance.Advance].
func (s *Session) Advance(inbound []*wire.Message) ([]*wire.Message, protocol.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, protocol.Failed, ErrDestroyed
	}
	return s.in.Advance(inbound)
}

// Artifact returns the final output once Done, or nil.
func (s *Session) Artifact() protocol.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	return s.in.Artifact()
}

// MarshalBinary serializes the session for [Restore].
func (s *Session) MarshalBinary() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, ErrDestroyed
	}
	return s.in.MarshalBinary()
}

// Instance returns the wrapped instance. The caller must not use it
// concurrently with the session.
func (s *Session) Instance() *protocol.Instance {
	return s.in
}

// Destroy zeroes all secret state, including a key share artifact. It is
// idempotent.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.in.Wipe()
}

// IsDestroyed reports whether Destroy has been called.
func (s *Session) IsDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
