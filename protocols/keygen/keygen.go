package keygen

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/channel"
	"github.com/f3rmion/thresh/frost"
	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/wire"
)

type commitMsg struct {
	Hash []byte `cbor:"1,keyasint"`
}

type revealMsg struct {
	Commitments [][]byte `cbor:"1,keyasint"`
	ProofR      []byte   `cbor:"2,keyasint"`
	ProofZ      []byte   `cbor:"3,keyasint"`
	Ephemeral   []byte   `cbor:"4,keyasint"`
}

type shareMsg struct {
	Sealed []byte `cbor:"1,keyasint"`
}

type confirmMsg struct {
	GroupKey    []byte `cbor:"1,keyasint"`
	PublicShare []byte `cbor:"2,keyasint"`
}

type reveal struct {
	data      *frost.Round1Data
	ephemeral group.Point
}

// Protocol is the state of one key generation run.
type Protocol struct {
	f *frost.FROST
	g group.Group

	dealer    *frost.Participant
	ephemeral group.Scalar
	hashes    map[wire.ParticipantID][]byte
	reveals   map[wire.ParticipantID]*reveal
	secret    group.Scalar
}

// New returns an empty key generation protocol for protocol.New or
// protocol.Restore.
func New() *Protocol { return &Protocol{} }

func (p *Protocol) Tag() protocol.Tag { return protocol.TagKeyGen }

func (p *Protocol) Rounds() int { return 4 }

func (p *Protocol) Delivery(round int) protocol.Delivery {
	if round == 3 {
		return protocol.PointToPoint
	}
	return protocol.Broadcast
}

func (p *Protocol) setup(env *protocol.Env) error {
	n := len(env.Params.Participants)
	if env.Params.Threshold > n {
		return protocol.Failf(protocol.KindInvalidParameters, 0,
			"threshold %d exceeds %d participants", env.Params.Threshold, n)
	}
	f, err := env.Suite.FROST(env.Params.Threshold, n)
	if err != nil {
		return protocol.Fail(protocol.KindInvalidParameters, 0, err)
	}
	p.f, p.g = f, env.Suite.Group
	p.hashes = make(map[wire.ParticipantID][]byte)
	p.reveals = make(map[wire.ParticipantID]*reveal)
	return nil
}

func (p *Protocol) Start(env *protocol.Env) ([]protocol.Outgoing, error) {
	if err := p.setup(env); err != nil {
		return nil, err
	}
	dealer, err := p.f.NewParticipant(env.Rand("polynomial"), uint16(env.Self), env.Context())
	if err != nil {
		return nil, errors.Wrap(err, "create dealer")
	}
	e, err := p.g.RandomScalar(env.Rand("ephemeral"))
	if err != nil {
		return nil, errors.Wrap(err, "ephemeral key")
	}
	p.dealer, p.ephemeral = dealer, e

	payload, err := protocol.EncodePayload(commitMsg{Hash: commitment(env, env.Self, p.ownReveal())})
	if err != nil {
		return nil, err
	}
	return []protocol.Outgoing{{To: wire.Broadcast, Payload: payload}}, nil
}

func (p *Protocol) ownReveal() revealMsg {
	return encodeReveal(&reveal{
		data:      p.dealer.Round1Broadcast(),
		ephemeral: p.g.NewPoint().ScalarMult(p.ephemeral, p.g.Generator()),
	})
}

func encodeReveal(r *reveal) revealMsg {
	m := revealMsg{
		ProofR:    r.data.Proof.R.Bytes(),
		ProofZ:    r.data.Proof.Z.Bytes(),
		Ephemeral: r.ephemeral.Bytes(),
	}
	for _, c := range r.data.Commitments {
		m.Commitments = append(m.Commitments, c.Bytes())
	}
	return m
}

func (p *Protocol) decodeReveal(sender wire.ParticipantID, m revealMsg) (*reveal, error) {
	data := &frost.Round1Data{ID: uint16(sender), Proof: &frost.Proof{}}
	for i, enc := range m.Commitments {
		c, err := group.DecodePoint(p.g, enc)
		if err != nil {
			return nil, errors.Wrapf(err, "commitment %d", i)
		}
		data.Commitments = append(data.Commitments, c)
	}
	var err error
	if data.Proof.R, err = group.DecodePoint(p.g, m.ProofR); err != nil {
		return nil, errors.Wrap(err, "proof commitment")
	}
	if data.Proof.Z, err = group.DecodeScalar(p.g, m.ProofZ); err != nil {
		return nil, errors.Wrap(err, "proof response")
	}
	eph, err := group.DecodePoint(p.g, m.Ephemeral)
	if err != nil {
		return nil, errors.Wrap(err, "ephemeral key")
	}
	return &reveal{data: data, ephemeral: eph}, nil
}

// commitment hashes a canonical reveal for participant id.
func commitment(env *protocol.Env, id wire.ParticipantID, m revealMsg) []byte {
	h := sha256.New()
	h.Write([]byte("thresh/keygen/commit"))
	h.Write(env.Context())
	var idb [2]byte
	binary.BigEndian.PutUint16(idb[:], uint16(id))
	h.Write(idb[:])
	for _, c := range m.Commitments {
		h.Write(c)
	}
	h.Write(m.ProofR)
	h.Write(m.ProofZ)
	h.Write(m.Ephemeral)
	return h.Sum(nil)
}

func shareAAD(env *protocol.Env, from, to wire.ParticipantID) []byte {
	aad := env.Context()
	var b [4]byte
	binary.BigEndian.PutUint16(b[0:2], uint16(from))
	binary.BigEndian.PutUint16(b[2:4], uint16(to))
	return append(aad, b[:]...)
}

func (p *Protocol) pairwiseKey(env *protocol.Env, peer wire.ParticipantID) ([]byte, error) {
	return channel.PairwiseKey(p.g, p.ephemeral, p.reveals[peer].ephemeral, env.Session, env.Self, peer)
}

// all returns every dealer's broadcast, own included, sorted by id.
func (p *Protocol) all() []*frost.Round1Data {
	out := []*frost.Round1Data{p.dealer.Round1Broadcast()}
	for _, r := range p.reveals {
		out = append(out, r.data)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func invalid(sender wire.ParticipantID, err error, msg string) error {
	return protocol.Fail(protocol.KindInvalidShare, sender, errors.Wrap(err, msg))
}

func (p *Protocol) Process(env *protocol.Env, round int, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	switch round {
	case 1:
		return p.processCommitments(env, msgs)
	case 2:
		return p.processReveals(env, msgs)
	case 3:
		return p.processShares(env, msgs)
	case 4:
		return p.processConfirmations(env, msgs)
	}
	return nil, nil, protocol.Failf(protocol.KindInternal, 0, "no round %d", round)
}

func (p *Protocol) processCommitments(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	for _, m := range msgs {
		var c commitMsg
		if err := protocol.DecodePayload(m.Payload, &c); err != nil {
			return nil, nil, invalid(m.Sender, err, "commitment")
		}
		if len(c.Hash) != sha256.Size {
			return nil, nil, protocol.Failf(protocol.KindInvalidShare, m.Sender, "commitment hash of %d bytes", len(c.Hash))
		}
		p.hashes[m.Sender] = c.Hash
	}
	payload, err := protocol.EncodePayload(p.ownReveal())
	if err != nil {
		return nil, nil, err
	}
	return []protocol.Outgoing{{To: wire.Broadcast, Payload: payload}}, nil, nil
}

func (p *Protocol) processReveals(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	for _, m := range msgs {
		var rm revealMsg
		if err := protocol.DecodePayload(m.Payload, &rm); err != nil {
			return nil, nil, invalid(m.Sender, err, "reveal")
		}
		r, err := p.decodeReveal(m.Sender, rm)
		if err != nil {
			return nil, nil, invalid(m.Sender, err, "reveal")
		}
		if !bytes.Equal(commitment(env, m.Sender, encodeReveal(r)), p.hashes[m.Sender]) {
			return nil, nil, protocol.Failf(protocol.KindInvalidShare, m.Sender, "reveal does not match commitment")
		}
		if err := p.f.VerifyRound1(r.data, env.Context()); err != nil {
			return nil, nil, invalid(m.Sender, err, "reveal")
		}
		p.reveals[m.Sender] = r
	}

	nonces := env.Rand("share-nonce")
	var out []protocol.Outgoing
	for _, peer := range env.Peers() {
		share := p.f.Round1PrivateSend(p.dealer, uint16(peer))
		key, err := p.pairwiseKey(env, peer)
		if err != nil {
			return nil, nil, err
		}
		sealed, err := channel.Seal(nonces, key, share.Share.Bytes(), shareAAD(env, env.Self, peer))
		group.Wipe(p.g, share.Share)
		if err != nil {
			return nil, nil, err
		}
		payload, err := protocol.EncodePayload(shareMsg{Sealed: sealed})
		if err != nil {
			return nil, nil, err
		}
		out = append(out, protocol.Outgoing{To: peer, Payload: payload})
	}
	return out, nil, nil
}

func (p *Protocol) processShares(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	for _, m := range msgs {
		var sm shareMsg
		if err := protocol.DecodePayload(m.Payload, &sm); err != nil {
			return nil, nil, invalid(m.Sender, err, "share")
		}
		key, err := p.pairwiseKey(env, m.Sender)
		if err != nil {
			return nil, nil, err
		}
		pt, err := channel.Open(key, sm.Sealed, shareAAD(env, m.Sender, env.Self))
		if err != nil {
			return nil, nil, invalid(m.Sender, err, "share")
		}
		share, err := group.DecodeScalar(p.g, pt)
		if err != nil {
			return nil, nil, invalid(m.Sender, err, "share")
		}
		data := &frost.Round1PrivateData{FromID: uint16(m.Sender), ToID: uint16(env.Self), Share: share}
		if err := p.f.Round2ReceiveShare(p.dealer, data, p.reveals[m.Sender].data.Commitments); err != nil {
			return nil, nil, invalid(m.Sender, err, "share")
		}
	}

	ks, err := p.f.Finalize(p.dealer, p.all())
	if err != nil {
		return nil, nil, protocol.Fail(protocol.KindInvalidShare, 0, err)
	}
	p.secret = ks.SecretKey
	env.Log.Debug("shares verified", logging.Redacted("secret_share"))

	payload, err := protocol.EncodePayload(confirmMsg{GroupKey: ks.GroupKey.Bytes(), PublicShare: ks.PublicKey.Bytes()})
	if err != nil {
		return nil, nil, err
	}
	return []protocol.Outgoing{{To: wire.Broadcast, Payload: payload}}, nil, nil
}

func (p *Protocol) processConfirmations(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	all := p.all()
	Y := p.f.GroupKey(all).Bytes()
	for _, m := range msgs {
		var c confirmMsg
		if err := protocol.DecodePayload(m.Payload, &c); err != nil {
			return nil, nil, invalid(m.Sender, err, "confirmation")
		}
		if !bytes.Equal(c.GroupKey, Y) {
			return nil, nil, protocol.Failf(protocol.KindInvalidShare, m.Sender, "group key mismatch")
		}
		if !bytes.Equal(c.PublicShare, p.f.PublicShare(uint16(m.Sender), all).Bytes()) {
			return nil, nil, protocol.Failf(protocol.KindInvalidShare, m.Sender, "public share mismatch")
		}
	}

	ks := &protocol.KeyShare{
		Curve:        p.g.ID(),
		Threshold:    env.Params.Threshold,
		ID:           env.Self,
		Secret:       p.secret.Bytes(),
		GroupKey:     Y,
		PublicShares: make(map[wire.ParticipantID][]byte, len(env.Params.Participants)),
	}
	for _, id := range env.Params.Participants {
		ks.PublicShares[id] = p.f.PublicShare(uint16(id), all).Bytes()
	}
	env.Log.Info("key generation complete", "participants", len(ks.PublicShares))
	return nil, ks, nil
}

type body struct {
	Coefficients [][]byte                         `cbor:"1,keyasint"`
	ProofR       []byte                           `cbor:"2,keyasint"`
	ProofZ       []byte                           `cbor:"3,keyasint"`
	Ephemeral    []byte                           `cbor:"4,keyasint"`
	Hashes       map[wire.ParticipantID][]byte    `cbor:"5,keyasint"`
	Reveals      map[wire.ParticipantID]revealMsg `cbor:"6,keyasint"`
	Shares       map[wire.ParticipantID][]byte    `cbor:"7,keyasint"`
	Secret       []byte                           `cbor:"8,keyasint,omitempty"`
}

func (p *Protocol) MarshalBody() ([]byte, error) {
	b := body{
		ProofR:    p.dealer.Proof().R.Bytes(),
		ProofZ:    p.dealer.Proof().Z.Bytes(),
		Ephemeral: p.ephemeral.Bytes(),
		Hashes:    p.hashes,
		Reveals:   make(map[wire.ParticipantID]revealMsg, len(p.reveals)),
		Shares:    make(map[wire.ParticipantID][]byte),
	}
	for _, c := range p.dealer.Coefficients() {
		b.Coefficients = append(b.Coefficients, c.Bytes())
	}
	for id, r := range p.reveals {
		b.Reveals[id] = encodeReveal(r)
	}
	for from, s := range p.dealer.ReceivedShares() {
		b.Shares[wire.ParticipantID(from)] = s.Bytes()
	}
	if p.secret != nil {
		b.Secret = p.secret.Bytes()
	}
	return protocol.EncodePayload(b)
}

func (p *Protocol) UnmarshalBody(env *protocol.Env, data []byte) error {
	if err := p.setup(env); err != nil {
		return err
	}
	var b body
	if err := protocol.DecodePayload(data, &b); err != nil {
		return err
	}

	coeffs := make([]group.Scalar, len(b.Coefficients))
	for i, enc := range b.Coefficients {
		c, err := group.DecodeScalar(p.g, enc)
		if err != nil {
			return errors.Wrapf(err, "coefficient %d", i)
		}
		coeffs[i] = c
	}
	proof := &frost.Proof{}
	var err error
	if proof.R, err = group.DecodePoint(p.g, b.ProofR); err != nil {
		return errors.Wrap(err, "proof")
	}
	if proof.Z, err = group.DecodeScalar(p.g, b.ProofZ); err != nil {
		return errors.Wrap(err, "proof")
	}
	shares := make(map[uint16]group.Scalar, len(b.Shares))
	for from, enc := range b.Shares {
		if !env.Params.Contains(from) || from == env.Self {
			return errors.Errorf("share from unexpected participant %d", from)
		}
		s, err := group.DecodeScalar(p.g, enc)
		if err != nil {
			return errors.Wrapf(err, "share from %d", from)
		}
		shares[uint16(from)] = s
	}
	if p.dealer, err = p.f.RestoreParticipant(uint16(env.Self), coeffs, proof, shares); err != nil {
		return err
	}
	if p.ephemeral, err = group.DecodeScalar(p.g, b.Ephemeral); err != nil {
		return errors.Wrap(err, "ephemeral key")
	}

	for id, h := range b.Hashes {
		if !env.Params.Contains(id) || id == env.Self || len(h) != sha256.Size {
			return errors.Errorf("bad commitment entry for %d", id)
		}
		p.hashes[id] = h
	}
	for id, rm := range b.Reveals {
		if _, ok := p.hashes[id]; !ok {
			return errors.Errorf("reveal from %d without commitment", id)
		}
		r, err := p.decodeReveal(id, rm)
		if err != nil {
			return err
		}
		p.reveals[id] = r
	}
	if len(b.Secret) > 0 {
		if p.secret, err = group.DecodeScalar(p.g, b.Secret); err != nil {
			return errors.Wrap(err, "secret share")
		}
	}
	return nil
}

func (p *Protocol) Wipe() {
	if p.g == nil {
		return
	}
	if p.dealer != nil {
		p.dealer.Wipe(p.g)
	}
	group.Wipe(p.g, p.ephemeral, p.secret)
}
