package frostsign

import (
	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/frost"
	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/suite"
	"github.com/f3rmion/thresh/wire"
)

type commitMsg struct {
	Hiding  []byte `cbor:"1,keyasint"`
	Binding []byte `cbor:"2,keyasint"`
}

type shareMsg struct {
	Z []byte `cbor:"1,keyasint"`
}

// Protocol signs one message with one key share. The zero value is ready
// for protocol.Restore.
type Protocol struct {
	share   *protocol.KeyShare
	message []byte

	key         *protocol.KeyContext
	nonce       *frost.SigningNonce
	commitments map[wire.ParticipantID]*frost.SigningCommitment
	z           group.Scalar
}

// New returns a signing protocol for message under a copy of share.
func New(share *protocol.KeyShare, message []byte) *Protocol {
	return &Protocol{share: share.Clone(), message: append([]byte(nil), message...)}
}

func (p *Protocol) Tag() protocol.Tag { return protocol.TagSignSchnorr }

func (p *Protocol) Rounds() int { return 2 }

func (p *Protocol) Delivery(int) protocol.Delivery { return protocol.Broadcast }

func (p *Protocol) bind(env *protocol.Env) error {
	key, err := p.share.Bind(env)
	if err != nil {
		return err
	}
	p.key = key
	p.commitments = make(map[wire.ParticipantID]*frost.SigningCommitment)
	return nil
}

func (p *Protocol) Start(env *protocol.Env) ([]protocol.Outgoing, error) {
	if err := p.bind(env); err != nil {
		return nil, err
	}
	nonce, commitment, err := p.key.FROST.SignRound1(env.Rand("nonce"), p.key.Share)
	if err != nil {
		return nil, errors.Wrap(err, "generate nonces")
	}
	p.nonce = nonce
	p.commitments[env.Self] = commitment

	payload, err := protocol.EncodePayload(commitMsg{
		Hiding:  commitment.HidingPoint.Bytes(),
		Binding: commitment.BindingPoint.Bytes(),
	})
	if err != nil {
		return nil, err
	}
	return []protocol.Outgoing{{To: wire.Broadcast, Payload: payload}}, nil
}

func (p *Protocol) decodeCommitment(id wire.ParticipantID, m commitMsg) (*frost.SigningCommitment, error) {
	d, err := group.DecodePoint(p.key.Group, m.Hiding)
	if err != nil {
		return nil, errors.Wrap(err, "hiding commitment")
	}
	e, err := group.DecodePoint(p.key.Group, m.Binding)
	if err != nil {
		return nil, errors.Wrap(err, "binding commitment")
	}
	return &frost.SigningCommitment{ID: uint16(id), HidingPoint: d, BindingPoint: e}, nil
}

func (p *Protocol) commitmentList() []*frost.SigningCommitment {
	out := make([]*frost.SigningCommitment, 0, len(p.commitments))
	for _, c := range p.commitments {
		out = append(out, c)
	}
	return out
}

func (p *Protocol) Process(env *protocol.Env, round int, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	switch round {
	case 1:
		return p.processCommitments(env, msgs)
	case 2:
		return p.processShares(env, msgs)
	}
	return nil, nil, protocol.Failf(protocol.KindInternal, 0, "no round %d", round)
}

func (p *Protocol) processCommitments(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	if n := len(env.Params.Participants); n < p.key.FROST.Threshold() {
		return nil, nil, protocol.Failf(protocol.KindInsufficientShares, 0,
			"%d signers for threshold %d", n, p.key.FROST.Threshold())
	}
	for _, m := range msgs {
		var cm commitMsg
		if err := protocol.DecodePayload(m.Payload, &cm); err != nil {
			return nil, nil, protocol.Fail(protocol.KindInvalidShare, m.Sender, errors.Wrap(err, "commitment"))
		}
		c, err := p.decodeCommitment(m.Sender, cm)
		if err != nil {
			return nil, nil, protocol.Fail(protocol.KindInvalidShare, m.Sender, err)
		}
		p.commitments[m.Sender] = c
	}

	share, err := p.key.FROST.SignRound2(p.key.Share, p.nonce, p.message, p.commitmentList())
	if err != nil {
		return nil, nil, protocol.Fail(protocol.KindInternal, 0, errors.Wrap(err, "sign"))
	}
	p.z = share.Z
	env.Log.Debug("signature share computed", logging.Redacted("nonce"), "signers", len(p.commitments))

	payload, err := protocol.EncodePayload(shareMsg{Z: share.Z.Bytes()})
	if err != nil {
		return nil, nil, err
	}
	return []protocol.Outgoing{{To: wire.Broadcast, Payload: payload}}, nil, nil
}

func (p *Protocol) processShares(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	f, g := p.key.FROST, p.key.Group
	groupKey := p.key.Share.GroupKey
	commitments := p.commitmentList()

	shares := []*frost.SignatureShare{{ID: uint16(env.Self), Z: p.z}}
	for _, m := range msgs {
		var sm shareMsg
		if err := protocol.DecodePayload(m.Payload, &sm); err != nil {
			return nil, nil, protocol.Fail(protocol.KindInvalidShare, m.Sender, errors.Wrap(err, "signature share"))
		}
		z, err := group.DecodeScalar(g, sm.Z)
		if err != nil {
			return nil, nil, protocol.Fail(protocol.KindInvalidShare, m.Sender, errors.Wrap(err, "signature share"))
		}
		share := &frost.SignatureShare{ID: uint16(m.Sender), Z: z}
		if err := f.VerifySignatureShare(share, p.key.PublicShares[m.Sender], groupKey, p.message, commitments); err != nil {
			return nil, nil, protocol.Fail(protocol.KindInvalidShare, m.Sender, err)
		}
		shares = append(shares, share)
	}

	sig, err := f.Aggregate(groupKey, p.message, commitments, shares)
	if err != nil {
		return nil, nil, protocol.Fail(protocol.KindSignatureAggregation, 0, err)
	}
	if !f.Verify(p.message, sig, groupKey) {
		return nil, nil, protocol.Failf(protocol.KindSignatureAggregation, 0, "aggregate signature does not verify")
	}
	env.Log.Info("signature produced", "signers", len(shares))
	return nil, &protocol.Signature{
		Scheme: protocol.SchemeSchnorr,
		Curve:  g.ID(),
		R:      sig.R.Bytes(),
		S:      sig.Z.Bytes(),
	}, nil
}

type body struct {
	Share       *protocol.KeyShare               `cbor:"1,keyasint"`
	Message     []byte                           `cbor:"2,keyasint"`
	NonceD      []byte                           `cbor:"3,keyasint,omitempty"`
	NonceE      []byte                           `cbor:"4,keyasint,omitempty"`
	Commitments map[wire.ParticipantID]commitMsg `cbor:"5,keyasint"`
	Z           []byte                           `cbor:"6,keyasint,omitempty"`
}

func (p *Protocol) MarshalBody() ([]byte, error) {
	b := body{
		Share:       p.share,
		Message:     p.message,
		Commitments: make(map[wire.ParticipantID]commitMsg, len(p.commitments)),
	}
	if p.nonce != nil && !p.nonce.D.IsZero() {
		b.NonceD, b.NonceE = p.nonce.D.Bytes(), p.nonce.E.Bytes()
	}
	for id, c := range p.commitments {
		b.Commitments[id] = commitMsg{Hiding: c.HidingPoint.Bytes(), Binding: c.BindingPoint.Bytes()}
	}
	if p.z != nil {
		b.Z = p.z.Bytes()
	}
	return protocol.EncodePayload(b)
}

func (p *Protocol) UnmarshalBody(env *protocol.Env, data []byte) error {
	var b body
	if err := protocol.DecodePayload(data, &b); err != nil {
		return err
	}
	p.share, p.message = b.Share, b.Message
	if err := p.bind(env); err != nil {
		return err
	}
	g := p.key.Group

	if _, ok := b.Commitments[env.Self]; !ok {
		return errors.New("own commitment missing")
	}
	for id, cm := range b.Commitments {
		if !env.Params.Contains(id) {
			return errors.Errorf("commitment from non-signer %d", id)
		}
		c, err := p.decodeCommitment(id, cm)
		if err != nil {
			return err
		}
		p.commitments[id] = c
	}

	switch {
	case len(b.NonceD) > 0 && len(b.Z) == 0:
		d, err := group.DecodeScalar(g, b.NonceD)
		if err != nil {
			return errors.Wrap(err, "nonce")
		}
		e, err := group.DecodeScalar(g, b.NonceE)
		if err != nil {
			return errors.Wrap(err, "nonce")
		}
		p.nonce = &frost.SigningNonce{ID: uint16(env.Self), D: d, E: e}
	case len(b.NonceD) == 0 && len(b.Z) > 0:
		z, err := group.DecodeScalar(g, b.Z)
		if err != nil {
			return errors.Wrap(err, "signature share")
		}
		p.z = z
	default:
		return errors.New("body must hold either unused nonces or a signature share")
	}
	return nil
}

func (p *Protocol) Wipe() {
	if p.key == nil {
		return
	}
	if p.nonce != nil {
		group.Wipe(p.key.Group, p.nonce.D, p.nonce.E)
	}
	group.Wipe(p.key.Group, p.z)
	p.key.Wipe()
	if p.share != nil {
		p.share.Wipe()
	}
}

// Verify checks a Schnorr signature produced by this package against an
// encoded group key.
func Verify(groupKey, message []byte, sig *protocol.Signature) error {
	if sig == nil || sig.Scheme != protocol.SchemeSchnorr {
		return errors.New("frostsign: not a Schnorr signature")
	}
	s, err := suite.Lookup(sig.Curve)
	if err != nil {
		return err
	}
	Y, err := group.DecodePoint(s.Group, groupKey)
	if err != nil {
		return errors.Wrap(err, "frostsign: group key")
	}
	R, err := group.DecodePoint(s.Group, sig.R)
	if err != nil {
		return errors.Wrap(err, "frostsign: commitment")
	}
	z, err := group.DecodeScalar(s.Group, sig.S)
	if err != nil {
		return errors.Wrap(err, "frostsign: response")
	}
	f, err := s.FROST(1, 1)
	if err != nil {
		return err
	}
	if !f.Verify(message, &frost.Signature{R: R, Z: z}, Y) {
		return errors.New("frostsign: invalid signature")
	}
	return nil
}
