package protocol

import (
	"bytes"
	"crypto/rand"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/suite"
	"github.com/f3rmion/thresh/wire"
)

// Discard reasons reported to Config.OnDiscard and the log.
const (
	DiscardNil          = "nil message"
	DiscardTag          = "protocol tag mismatch"
	DiscardSession      = "session mismatch"
	DiscardSender       = "unknown sender"
	DiscardSelf         = "message from self"
	DiscardRecipient    = "addressed to another participant"
	DiscardRound        = "round out of range"
	DiscardStale        = "stale round"
	DiscardDelivery     = "wrong delivery pattern"
	DiscardRetransmit   = "duplicate message"
	DiscardAfterOutcome = "instance finished"
)

// Config describes a new instance.
type Config struct {
	Self    wire.ParticipantID
	Session []byte
	Params  Params
	Logger  logging.Logger
	// Rand supplies the instance seed. Defaults to crypto/rand.
	Rand io.Reader
	// OnDiscard, if set, is called for every discarded inbound message.
	OnDiscard func(reason string)
}

// Instance drives a [Protocol] through its rounds. It owns the protocol's
// secret state and is not safe for concurrent use.
type Instance struct {
	proto     Protocol
	env       *Env
	onDiscard func(string)

	round    uint32
	status   Status
	fault    *Error
	current  map[wire.ParticipantID]*wire.Message
	pending  []*wire.Message
	artifact Artifact
}

// New creates an instance of p and returns it with the round 1 outbound
// messages. Invalid parameters yield a KindInvalidParameters error and no
// instance.
func New(p Protocol, cfg Config) (*Instance, []*wire.Message, error) {
	params := cfg.Params.normalize()
	if err := params.Validate(cfg.Self); err != nil {
		return nil, nil, Fail(KindInvalidParameters, 0, err)
	}
	if len(cfg.Session) == 0 {
		return nil, nil, Failf(KindInvalidParameters, 0, "empty session identifier")
	}
	s, err := suite.Lookup(params.Curve)
	if err != nil {
		return nil, nil, Fail(KindInvalidParameters, 0, err)
	}
	r := cfg.Rand
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, nil, Fail(KindInternal, 0, errors.Wrap(err, "read seed"))
	}

	in := &Instance{
		proto: p,
		env: &Env{
			Self:    cfg.Self,
			Session: append([]byte(nil), cfg.Session...),
			Params:  params,
			Suite:   s,
			Log:     loggerFor(cfg.Logger, p.Tag(), cfg.Self),
			tag:     p.Tag(),
			seed:    seed,
			round:   1,
		},
		onDiscard: cfg.OnDiscard,
		round:     1,
		current:   make(map[wire.ParticipantID]*wire.Message),
	}

	payloads, err := p.Start(in.env)
	if err != nil {
		p.Wipe()
		return nil, nil, asError(err)
	}
	out := in.wrap(payloads, 1)
	out = append(out, in.drain()...)
	if in.status == Failed {
		out = nil
	}
	in.env.Log.Debug("instance created", "participants", len(params.Participants), "threshold", params.Threshold)
	return in, out, nil
}

func loggerFor(l logging.Logger, tag Tag, self wire.ParticipantID) logging.Logger {
	if l == nil {
		l = logging.Nop()
	}
	return l.With("protocol", tag.String(), "self", uint16(self))
}

// Tag returns the protocol tag.
func (in *Instance) Tag() Tag { return in.proto.Tag() }

// Protocol returns the driven protocol.
func (in *Instance) Protocol() Protocol { return in.proto }

// Self returns the local participant id.
func (in *Instance) Self() wire.ParticipantID { return in.env.Self }

// Session returns the session identifier.
func (in *Instance) Session() []byte { return in.env.Session }

// Params returns the run parameters.
func (in *Instance) Params() Params { return in.env.Params }

// Round returns the round whose messages the instance is waiting for.
func (in *Instance) Round() uint32 { return in.round }

// Status returns the current status.
func (in *Instance) Status() Status { return in.status }

// Err returns the failure when Status is Failed.
func (in *Instance) Err() error {
	if in.fault == nil {
		return nil
	}
	return in.fault
}

// Artifact returns the final output when Status is Done.
func (in *Instance) Artifact() Artifact { return in.artifact }

// SetLogger replaces the logger, for instance after a restore.
func (in *Instance) SetLogger(l logging.Logger) {
	in.env.Log = loggerFor(l, in.proto.Tag(), in.env.Self)
}

// Wipe zeroes all secret state held by the instance.
func (in *Instance) Wipe() {
	in.proto.Wipe()
	wipeBytes(in.env.seed)
	if ks, ok := in.artifact.(*KeyShare); ok {
		ks.Wipe()
	}
}

// Advance applies inbound messages and runs every round that becomes
// complete. Messages for a later round are buffered, messages for an
// earlier round or failing validation are discarded. A sender that sends
// two different messages for one round fails the run with
// KindInvalidShare. Once Done or Failed, Advance returns the same status
// and no messages.
func (in *Instance) Advance(inbound []*wire.Message) ([]*wire.Message, Status, error) {
	if in.status != Continue {
		for range inbound {
			in.discard(nil, DiscardAfterOutcome)
		}
		return nil, in.status, in.Err()
	}
	for _, m := range inbound {
		in.accept(m)
		if in.status != Continue {
			return nil, in.status, in.Err()
		}
	}
	out := in.drain()
	if in.status == Failed {
		return nil, in.status, in.Err()
	}
	return out, in.status, nil
}

func (in *Instance) discard(m *wire.Message, reason string) {
	if in.onDiscard != nil {
		in.onDiscard(reason)
	}
	if m == nil {
		in.env.Log.Debug("discarding message", "reason", reason)
		return
	}
	in.env.Log.Debug("discarding message",
		"reason", reason, "sender", uint16(m.Sender), "round", m.Round, "current", in.round)
}

func (in *Instance) fail(err *Error) {
	in.status = Failed
	in.fault = err
	in.current = nil
	in.pending = nil
	in.proto.Wipe()
	in.env.Log.Warn("run failed", "kind", err.Kind.String(), "culprit", uint16(err.Culprit), "error", err.Error())
}

func (in *Instance) accept(m *wire.Message) {
	if m == nil {
		in.discard(nil, DiscardNil)
		return
	}
	switch {
	case m.Protocol != uint32(in.proto.Tag()):
		in.discard(m, DiscardTag)
		return
	case !bytes.Equal(m.Session, in.env.Session):
		in.discard(m, DiscardSession)
		return
	case m.Sender == in.env.Self:
		in.discard(m, DiscardSelf)
		return
	case !in.env.Params.Contains(m.Sender):
		in.discard(m, DiscardSender)
		return
	case m.Recipient != wire.Broadcast && m.Recipient != in.env.Self:
		in.discard(m, DiscardRecipient)
		return
	case m.Round == 0 || int(m.Round) > in.proto.Rounds():
		in.discard(m, DiscardRound)
		return
	case m.Round < in.round:
		in.discard(m, DiscardStale)
		return
	}

	want := in.proto.Delivery(int(m.Round))
	if (want == Broadcast) != m.IsBroadcast() {
		in.discard(m, DiscardDelivery)
		return
	}

	if m.Round > in.round {
		for _, p := range in.pending {
			if p.Sender == m.Sender && p.Round == m.Round {
				in.checkDuplicate(p, m)
				return
			}
		}
		i := sort.Search(len(in.pending), func(i int) bool {
			p := in.pending[i]
			return p.Round > m.Round || (p.Round == m.Round && p.Sender > m.Sender)
		})
		in.pending = append(in.pending, nil)
		copy(in.pending[i+1:], in.pending[i:])
		in.pending[i] = m.Clone()
		return
	}
	in.store(m.Clone())
}

func (in *Instance) store(m *wire.Message) {
	if prev, ok := in.current[m.Sender]; ok {
		in.checkDuplicate(prev, m)
		return
	}
	in.current[m.Sender] = m
}

func (in *Instance) checkDuplicate(prev, m *wire.Message) {
	if prev.Equal(m) {
		in.discard(m, DiscardRetransmit)
		return
	}
	in.fail(Failf(KindInvalidShare, m.Sender, "conflicting messages for round %d", m.Round))
}

// drain processes rounds while every expected sender has delivered.
func (in *Instance) drain() []*wire.Message {
	var out []*wire.Message
	peers := in.env.Peers()
	for in.status == Continue && len(in.current) == len(peers) {
		msgs := make([]*wire.Message, 0, len(peers))
		for _, id := range peers {
			msgs = append(msgs, in.current[id])
		}

		in.env.round = in.round
		payloads, art, err := in.proto.Process(in.env, int(in.round), msgs)
		if err != nil {
			in.fail(asError(err))
			return nil
		}
		out = append(out, in.wrap(payloads, in.round+1)...)
		in.current = make(map[wire.ParticipantID]*wire.Message)

		if art != nil {
			in.artifact = art
			in.status = Done
			in.pending = nil
			in.proto.Wipe()
			in.env.Log.Info("run completed", "round", in.round)
			return out
		}

		in.round++
		in.env.round = in.round
		if int(in.round) > in.proto.Rounds() {
			in.fail(Failf(KindInternal, 0, "protocol ended without an artifact"))
			return nil
		}
		in.env.Log.Debug("advanced round", "round", in.round)
		in.promote()
	}
	return out
}

// promote moves buffered messages of the current round into place.
func (in *Instance) promote() {
	var keep []*wire.Message
	for _, m := range in.pending {
		if m.Round == in.round {
			in.store(m)
			if in.status != Continue {
				return
			}
			continue
		}
		keep = append(keep, m)
	}
	in.pending = keep
}

func (in *Instance) wrap(payloads []Outgoing, round uint32) []*wire.Message {
	out := make([]*wire.Message, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, &wire.Message{
			Protocol:  uint32(in.proto.Tag()),
			Round:     round,
			Sender:    in.env.Self,
			Recipient: p.To,
			Payload:   p.Payload,
			Session:   append([]byte(nil), in.env.Session...),
		})
	}
	return out
}

func sortedMessages(m map[wire.ParticipantID]*wire.Message) []*wire.Message {
	out := make([]*wire.Message, 0, len(m))
	for _, msg := range m {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sender < out[j].Sender })
	return out
}
