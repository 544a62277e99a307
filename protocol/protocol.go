package protocol

import (
	"fmt"

	"github.com/f3rmion/thresh/wire"
)

// Tag identifies a protocol. It travels in every message and snapshot.
type Tag uint32

const (
	TagKeyGen      Tag = 1
	TagSignECDSA   Tag = 2
	TagSignSchnorr Tag = 3
	TagDecrypt     Tag = 4
)

var tagNames = map[Tag]string{
	TagKeyGen:      "keygen",
	TagSignECDSA:   "sign-ecdsa",
	TagSignSchnorr: "sign-frost",
	TagDecrypt:     "decrypt",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("tag(%d)", uint32(t))
}

// ParseTag returns the tag named by s as printed by [Tag.String].
func ParseTag(s string) (Tag, error) {
	for t, name := range tagNames {
		if name == s {
			return t, nil
		}
	}
	return 0, Failf(KindUnknownProtocolTag, 0, "unknown protocol %q", s)
}

// Status is the outcome of an Advance call.
type Status uint8

const (
	Continue Status = iota
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Delivery is how messages of a round are addressed.
type Delivery uint8

const (
	// Broadcast messages carry wire.Broadcast as recipient.
	Broadcast Delivery = iota
	// PointToPoint messages are addressed to exactly one participant.
	PointToPoint
)

// Outgoing is a payload produced by a protocol step. To is wire.Broadcast
// for broadcast rounds.
type Outgoing struct {
	To      wire.ParticipantID
	Payload []byte
}

// Protocol is one concrete scheme driven by an [Instance]. Rounds are
// numbered from 1. Start produces the round 1 messages. Process receives
// exactly one message from each peer for round r, sorted by sender, and
// returns the messages of round r+1 or, after the last round, the
// artifact. Every expected sender is every participant except self.
//
// Implementations must draw randomness only from Env.Rand and keep all
// state that later rounds need in the body returned by MarshalBody.
type Protocol interface {
	Tag() Tag
	Rounds() int
	Delivery(round int) Delivery
	Start(env *Env) ([]Outgoing, error)
	Process(env *Env, round int, msgs []*wire.Message) ([]Outgoing, Artifact, error)
	MarshalBody() ([]byte, error)
	UnmarshalBody(env *Env, body []byte) error
	// Wipe zeroes secret state. It is called once the run is Done or
	// Failed and when the instance is destroyed.
	Wipe()
}
