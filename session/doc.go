// Package session is the high-level entry point for running threshold
// protocols. It picks the concrete protocol for a tag, wraps the resulting
// instance with a lock and a destroy guard, and restores snapshots by
// dispatching on the tag they carry.
//
// # Running a ceremony
//
// Every participant creates its own session with the same session id,
// threshold and participant list:
//
//	id := session.NewID() // generated once, shared out of band
//	s, out, err := session.New(session.Request{
//		Tag:          protocol.TagKeyGen,
//		Self:         myID,
//		Session:      id,
//		Curve:        group.Secp256k1,
//		Threshold:    2,
//		Participants: []wire.ParticipantID{1, 2, 3},
//	}, session.Options{Logger: log})
//	if err != nil {
//		return err
//	}
//
//	// Deliver out, then feed everything received back in:
//	out, status, err := s.Advance(inbound)
//
// When status is protocol.Done, Artifact returns the key share, signature
// or plaintext. On protocol.Failed, the error names the kind and, where
// known, the participant at fault.
//
// # Suspending and resuming
//
// Between any two calls the session can be serialized and dropped:
//
//	data, err := s.MarshalBinary()
//	s.Destroy()
//	// ... later, possibly in another process:
//	s, err = session.Restore(data, session.Options{Logger: log})
//
// The snapshot holds secret material and must be stored accordingly.
//
// # Transport agnostic
//
// The package never touches the network. Callers route broadcast messages
// to every other participant and point-to-point messages to their
// recipient, with any transport and in any order.
package session
