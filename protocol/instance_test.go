package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/wire"
)

const tagSum Tag = 99

// sumProtocol broadcasts a random value, then tells every peer the total
// it computed point-to-point and finishes once all totals agree.
type sumProtocol struct {
	Value uint64 `cbor:"1,keyasint"`
	Total uint64 `cbor:"2,keyasint"`
	wiped bool
}

func (p *sumProtocol) Tag() Tag    { return tagSum }
func (p *sumProtocol) Rounds() int { return 2 }

func (p *sumProtocol) Delivery(round int) Delivery {
	if round == 2 {
		return PointToPoint
	}
	return Broadcast
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (p *sumProtocol) Start(env *Env) ([]Outgoing, error) {
	var buf [8]byte
	if _, err := io.ReadFull(env.Rand("value"), buf[:]); err != nil {
		return nil, err
	}
	p.Value = binary.BigEndian.Uint64(buf[:]) >> 8
	return []Outgoing{{To: wire.Broadcast, Payload: u64(p.Value)}}, nil
}

func (p *sumProtocol) Process(env *Env, round int, msgs []*wire.Message) ([]Outgoing, Artifact, error) {
	switch round {
	case 1:
		p.Total = p.Value
		for _, m := range msgs {
			if len(m.Payload) != 8 {
				return nil, nil, Failf(KindInvalidShare, m.Sender, "bad length")
			}
			p.Total += binary.BigEndian.Uint64(m.Payload)
		}
		var out []Outgoing
		for _, peer := range env.Peers() {
			out = append(out, Outgoing{To: peer, Payload: u64(p.Total)})
		}
		return out, nil, nil
	case 2:
		for _, m := range msgs {
			if !bytes.Equal(m.Payload, u64(p.Total)) {
				return nil, nil, Failf(KindInvalidShare, m.Sender, "total mismatch")
			}
		}
		return nil, &Plaintext{Data: u64(p.Total)}, nil
	}
	return nil, nil, Failf(KindInternal, 0, "unexpected round %d", round)
}

func (p *sumProtocol) MarshalBody() ([]byte, error) { return EncodePayload(p) }

func (p *sumProtocol) UnmarshalBody(_ *Env, body []byte) error {
	return DecodePayload(body, p)
}

func (p *sumProtocol) Wipe() { p.wiped = true }

var testSession = []byte("session-1")

func newSum(t *testing.T, self wire.ParticipantID, ids ...wire.ParticipantID) (*Instance, []*wire.Message) {
	t.Helper()
	in, out, err := New(&sumProtocol{}, Config{
		Self:    self,
		Session: testSession,
		Params:  Params{Curve: group.Secp256k1, Threshold: 2, Participants: ids},
	})
	require.NoError(t, err)
	return in, out
}

func addressedTo(msgs []*wire.Message, id wire.ParticipantID) []*wire.Message {
	var out []*wire.Message
	for _, m := range msgs {
		if m.Sender != id && (m.IsBroadcast() || m.Recipient == id) {
			out = append(out, m)
		}
	}
	return out
}

// runAll delivers messages until no party emits anything new.
func runAll(t *testing.T, parties map[wire.ParticipantID]*Instance, initial []*wire.Message) {
	t.Helper()
	queue := initial
	for len(queue) > 0 {
		var next []*wire.Message
		for id, in := range parties {
			out, _, err := in.Advance(addressedTo(queue, id))
			require.NoError(t, err)
			next = append(next, out...)
		}
		queue = next
	}
}

func TestRunToCompletion(t *testing.T) {
	parties := map[wire.ParticipantID]*Instance{}
	var initial []*wire.Message
	for _, id := range []wire.ParticipantID{1, 2, 3} {
		in, out := newSum(t, id, 3, 1, 2)
		parties[id] = in
		initial = append(initial, out...)
	}
	runAll(t, parties, initial)

	var want []byte
	for _, in := range parties {
		require.Equal(t, Done, in.Status())
		pt := in.Artifact().(*Plaintext)
		if want == nil {
			want = pt.Data
		}
		require.Equal(t, want, pt.Data)
		require.True(t, in.Protocol().(*sumProtocol).wiped)
	}
}

func TestFutureRoundIsBuffered(t *testing.T) {
	a, outA := newSum(t, 1, 1, 2, 3)
	b, outB := newSum(t, 2, 1, 2, 3)
	c, outC := newSum(t, 3, 1, 2, 3)

	r2B, _, err := b.Advance(append(addressedTo(outA, 2), addressedTo(outC, 2)...))
	require.NoError(t, err)
	r2C, _, err := c.Advance(append(addressedTo(outA, 3), addressedTo(outB, 3)...))
	require.NoError(t, err)

	// Round 2 first, then round 1, in one call.
	inbound := append(addressedTo(r2B, 1), addressedTo(r2C, 1)...)
	inbound = append(inbound, addressedTo(outB, 1)...)
	inbound = append(inbound, addressedTo(outC, 1)...)
	_, status, err := a.Advance(inbound)
	require.NoError(t, err)
	require.Equal(t, Done, status)
}

func TestStaleAndRetransmittedMessagesDiscarded(t *testing.T) {
	var reasons []string
	a, _, err := New(&sumProtocol{}, Config{
		Self:      1,
		Session:   testSession,
		Params:    Params{Curve: group.Secp256k1, Threshold: 2, Participants: []wire.ParticipantID{1, 2}},
		OnDiscard: func(r string) { reasons = append(reasons, r) },
	})
	require.NoError(t, err)
	_, outB := newSum(t, 2, 1, 2)

	_, status, err := a.Advance(append(outB, outB[0]))
	require.NoError(t, err)
	require.Equal(t, Continue, status)
	require.Equal(t, uint32(2), a.Round())
	require.Equal(t, []string{DiscardRetransmit}, reasons)

	_, status, err = a.Advance(outB)
	require.NoError(t, err)
	require.Equal(t, Continue, status)
	require.Equal(t, []string{DiscardRetransmit, DiscardStale}, reasons)
}

func TestIdenticalDuplicateIgnored(t *testing.T) {
	a, _ := newSum(t, 1, 1, 2, 3)
	_, outB := newSum(t, 2, 1, 2, 3)

	_, status, err := a.Advance([]*wire.Message{outB[0], outB[0].Clone()})
	require.NoError(t, err)
	require.Equal(t, Continue, status)
	require.Equal(t, uint32(1), a.Round())
}

func TestEquivocationFails(t *testing.T) {
	a, _ := newSum(t, 1, 1, 2, 3)
	_, outB := newSum(t, 2, 1, 2, 3)

	forged := outB[0].Clone()
	forged.Payload = u64(42)
	out, status, err := a.Advance([]*wire.Message{outB[0], forged})
	require.Nil(t, out)
	require.Equal(t, Failed, status)
	require.Equal(t, KindInvalidShare, KindOf(err))

	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, wire.ParticipantID(2), pe.Culprit)

	out, status, err = a.Advance(outB)
	require.Nil(t, out)
	require.Equal(t, Failed, status)
	require.Equal(t, KindInvalidShare, KindOf(err))
}

func TestInvalidMessagesDiscarded(t *testing.T) {
	var reasons []string
	a, _, err := New(&sumProtocol{}, Config{
		Self:      1,
		Session:   testSession,
		Params:    Params{Curve: group.Secp256k1, Threshold: 2, Participants: []wire.ParticipantID{1, 2}},
		OnDiscard: func(r string) { reasons = append(reasons, r) },
	})
	require.NoError(t, err)
	_, outB := newSum(t, 2, 1, 2)
	good := outB[0]

	mutate := func(f func(m *wire.Message)) *wire.Message {
		m := good.Clone()
		f(m)
		return m
	}
	inbound := []*wire.Message{
		nil,
		mutate(func(m *wire.Message) { m.Protocol = uint32(TagKeyGen) }),
		mutate(func(m *wire.Message) { m.Session = []byte("other") }),
		mutate(func(m *wire.Message) { m.Sender = 1 }),
		mutate(func(m *wire.Message) { m.Sender = 7 }),
		mutate(func(m *wire.Message) { m.Recipient = 5 }),
		mutate(func(m *wire.Message) { m.Round = 3 }),
		mutate(func(m *wire.Message) { m.Recipient = 1 }),
	}
	_, status, err := a.Advance(inbound)
	require.NoError(t, err)
	require.Equal(t, Continue, status)
	require.Equal(t, []string{
		DiscardNil, DiscardTag, DiscardSession, DiscardSelf,
		DiscardSender, DiscardRecipient, DiscardRound, DiscardDelivery,
	}, reasons)
}

func TestSnapshotRoundtrip(t *testing.T) {
	a, _ := newSum(t, 1, 1, 2, 3)
	_, outB := newSum(t, 2, 1, 2, 3)
	_, outC := newSum(t, 3, 1, 2, 3)

	_, _, err := a.Advance(outB)
	require.NoError(t, err)

	data, err := a.MarshalBinary()
	require.NoError(t, err)

	tag, err := PeekTag(data)
	require.NoError(t, err)
	require.Equal(t, tagSum, tag)

	first, err := Restore(&sumProtocol{}, data, RestoreConfig{})
	require.NoError(t, err)
	second, err := Restore(&sumProtocol{}, data, RestoreConfig{})
	require.NoError(t, err)

	again, err := first.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, data, again)

	out1, s1, err := first.Advance(outC)
	require.NoError(t, err)
	out2, s2, err := second.Advance(outC)
	require.NoError(t, err)
	out3, s3, err := a.Advance(outC)
	require.NoError(t, err)
	require.Equal(t, s3, s1)
	require.Equal(t, s1, s2)
	require.Equal(t, wire.MarshalBatch(out3), wire.MarshalBatch(out1))
	require.Equal(t, wire.MarshalBatch(out1), wire.MarshalBatch(out2))

	d1, err := first.MarshalBinary()
	require.NoError(t, err)
	d3, err := a.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, d3, d1)
}

func TestSnapshotIgnoresArrivalOrder(t *testing.T) {
	ids := []wire.ParticipantID{1, 2, 3, 4}
	seeded := func(self wire.ParticipantID) *Instance {
		in, _, err := New(&sumProtocol{}, Config{
			Self:    self,
			Session: testSession,
			Params:  Params{Curve: group.Secp256k1, Threshold: 2, Participants: ids},
			Rand:    bytes.NewReader(bytes.Repeat([]byte{byte(self)}, SeedSize)),
		})
		require.NoError(t, err)
		return in
	}

	parties := map[wire.ParticipantID]*Instance{}
	var round1 []*wire.Message
	for _, id := range ids {
		in, out := newSum(t, id, ids...)
		parties[id] = in
		round1 = append(round1, out...)
	}
	var round2 []*wire.Message
	for _, id := range []wire.ParticipantID{3, 4} {
		out, _, err := parties[id].Advance(addressedTo(round1, id))
		require.NoError(t, err)
		round2 = append(round2, addressedTo(out, 1)...)
	}
	require.Len(t, round2, 2)
	early := addressedTo(round1, 1)

	a, b := seeded(1), seeded(1)
	_, _, err := a.Advance([]*wire.Message{round2[0], early[2], round2[1], early[0]})
	require.NoError(t, err)
	_, _, err = b.Advance([]*wire.Message{early[0], round2[1], early[2], round2[0]})
	require.NoError(t, err)

	da, err := a.MarshalBinary()
	require.NoError(t, err)
	db, err := b.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestRestoreRejectsCorruptState(t *testing.T) {
	a, _ := newSum(t, 1, 1, 2)
	data, err := a.MarshalBinary()
	require.NoError(t, err)

	_, err = Restore(&sumProtocol{}, data[:len(data)-2], RestoreConfig{})
	require.Equal(t, KindCorruptState, KindOf(err))

	_, err = Restore(&sumProtocol{}, []byte("not cbor at all"), RestoreConfig{})
	require.Equal(t, KindCorruptState, KindOf(err))

	_, err = PeekTag([]byte{0xa0})
	require.Equal(t, KindCorruptState, KindOf(err))
}

// rejectingSum fails every body it is asked to restore.
type rejectingSum struct{ sumProtocol }

func (p *rejectingSum) UnmarshalBody(*Env, []byte) error {
	p.Value = 42
	return errors.New("unreadable body")
}

func TestRestoreWipesRejectedBody(t *testing.T) {
	a, _ := newSum(t, 1, 1, 2)
	data, err := a.MarshalBinary()
	require.NoError(t, err)

	p := &rejectingSum{}
	_, err = Restore(p, data, RestoreConfig{})
	require.Equal(t, KindCorruptState, KindOf(err))
	require.True(t, p.wiped)
}

func TestRestoreTerminalStates(t *testing.T) {
	a, _ := newSum(t, 1, 1, 2, 3)
	_, outB := newSum(t, 2, 1, 2, 3)
	forged := outB[0].Clone()
	forged.Payload = u64(7)
	_, status, _ := a.Advance([]*wire.Message{outB[0], forged})
	require.Equal(t, Failed, status)

	data, err := a.MarshalBinary()
	require.NoError(t, err)
	restored, err := Restore(&sumProtocol{}, data, RestoreConfig{})
	require.NoError(t, err)
	require.Equal(t, Failed, restored.Status())
	require.Equal(t, a.Err().Error(), restored.Err().Error())
	require.Equal(t, KindInvalidShare, KindOf(restored.Err()))
}

func TestSingleParticipantFinishesImmediately(t *testing.T) {
	in, out, err := New(&sumProtocol{}, Config{
		Self:    4,
		Session: testSession,
		Params:  Params{Curve: group.Ed25519, Threshold: 1, Participants: []wire.ParticipantID{4}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, Done, in.Status())
}

// quorumSum refuses to finish its first round without a peer.
type quorumSum struct{ sumProtocol }

func (p *quorumSum) Process(env *Env, round int, msgs []*wire.Message) ([]Outgoing, Artifact, error) {
	if len(msgs) == 0 {
		return nil, nil, Failf(KindInsufficientShares, 0, "no peers")
	}
	return p.sumProtocol.Process(env, round, msgs)
}

func TestFailedAtCreationSendsNothing(t *testing.T) {
	in, out, err := New(&quorumSum{}, Config{
		Self:    4,
		Session: testSession,
		Params:  Params{Curve: group.Ed25519, Threshold: 1, Participants: []wire.ParticipantID{4}},
	})
	require.NoError(t, err)
	require.Equal(t, Failed, in.Status())
	require.Equal(t, KindInsufficientShares, KindOf(in.Err()))
	require.Empty(t, out)
}

func TestInvalidParameters(t *testing.T) {
	cases := map[string]Config{
		"SelfMissing":  {Self: 9, Session: testSession, Params: Params{Curve: group.Secp256k1, Threshold: 1, Participants: []wire.ParticipantID{1, 2}}},
		"ZeroID":       {Self: 1, Session: testSession, Params: Params{Curve: group.Secp256k1, Threshold: 1, Participants: []wire.ParticipantID{0, 1}}},
		"Duplicate":    {Self: 1, Session: testSession, Params: Params{Curve: group.Secp256k1, Threshold: 1, Participants: []wire.ParticipantID{1, 1}}},
		"NoSession":    {Self: 1, Params: Params{Curve: group.Secp256k1, Threshold: 1, Participants: []wire.ParticipantID{1, 2}}},
		"ZeroThresh":   {Self: 1, Session: testSession, Params: Params{Curve: group.Secp256k1, Threshold: 0, Participants: []wire.ParticipantID{1, 2}}},
		"UnknownCurve": {Self: 1, Session: testSession, Params: Params{Curve: group.Unknown, Threshold: 1, Participants: []wire.ParticipantID{1, 2}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := New(&sumProtocol{}, cfg)
			require.Equal(t, KindInvalidParameters, KindOf(err))
		})
	}
}

func TestRandIsDeterministicPerLabel(t *testing.T) {
	env := &Env{tag: tagSum, seed: bytes.Repeat([]byte{1}, SeedSize), round: 1}
	read := func(label string) []byte {
		b := make([]byte, 64)
		_, err := io.ReadFull(env.Rand(label), b)
		require.NoError(t, err)
		return b
	}
	require.Equal(t, read("a"), read("a"))
	require.NotEqual(t, read("a"), read("b"))

	first := read("a")
	env.round = 2
	require.NotEqual(t, first, read("a"))
}

func TestArtifactEncoding(t *testing.T) {
	sig := &Signature{Scheme: SchemeSchnorr, Curve: group.Ed25519, R: []byte{1, 2}, S: []byte{3}}
	enc, err := EncodeArtifact(sig)
	require.NoError(t, err)
	got, err := DecodeArtifact(enc)
	require.NoError(t, err)
	require.Equal(t, sig, got)

	_, err = DecodeKeyShare(enc)
	require.Error(t, err)
}
