package decrypt

import (
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

type partialMsg struct {
	D []byte `cbor:"1,keyasint"`
	C []byte `cbor:"2,keyasint"`
	Z []byte `cbor:"3,keyasint"`
}

// sealedMsg carries a partialMsg encrypted under the pairwise key of
// sender and recipient.
type sealedMsg struct {
	Sealed []byte `cbor:"1,keyasint"`
}

// Protocol decrypts one ciphertext. The zero value is ready for
// protocol.Restore.
type Protocol struct {
	share      *protocol.KeyShare
	ciphertext *Ciphertext

	key *protocol.KeyContext
	c1  group.Point
}

// New returns a decryption protocol for ct under a copy of share.
func New(share *protocol.KeyShare, ct *Ciphertext) *Protocol {
	p := &Protocol{share: share.Clone()}
	if ct != nil {
		c := *ct
		p.ciphertext = &c
	}
	return p
}

func (p *Protocol) Tag() protocol.Tag { return protocol.TagDecrypt }

func (p *Protocol) Rounds() int { return 1 }

func (p *Protocol) Delivery(int) protocol.Delivery { return protocol.PointToPoint }

func (p *Protocol) bind(env *protocol.Env) error {
	key, err := p.share.Bind(env)
	if err != nil {
		return err
	}
	p.key = key
	if n, t := len(env.Params.Participants), key.FROST.Threshold(); n < t {
		return protocol.Failf(protocol.KindInsufficientShares, 0, "%d participants for threshold %d", n, t)
	}
	if p.ciphertext == nil {
		return protocol.Failf(protocol.KindInvalidParameters, 0, "missing ciphertext")
	}
	if p.ciphertext.Curve != env.Params.Curve {
		return protocol.Failf(protocol.KindInvalidParameters, 0, "ciphertext is on %s", p.ciphertext.Curve)
	}
	_, c1, err := p.ciphertext.decode()
	if err != nil {
		return protocol.Fail(protocol.KindInvalidParameters, 0, err)
	}
	p.c1 = c1
	return nil
}

func partialAAD(env *protocol.Env, from, to wire.ParticipantID) []byte {
	aad := env.Context()
	var b [4]byte
	binary.BigEndian.PutUint16(b[0:2], uint16(from))
	binary.BigEndian.PutUint16(b[2:4], uint16(to))
	return append(aad, b[:]...)
}

func (p *Protocol) pairwiseKey(env *protocol.Env, peer wire.ParticipantID) ([]byte, error) {
	X, ok := p.key.PublicShares[peer]
	if !ok {
		return nil, errors.Errorf("no public share for %d", peer)
	}
	return channel.PairwiseKey(p.key.Group, p.key.Share.SecretKey, X, env.Session, env.Self, peer)
}

func (p *Protocol) Start(env *protocol.Env) ([]protocol.Outgoing, error) {
	if err := p.bind(env); err != nil {
		return nil, err
	}
	g, share := p.key.Group, p.key.Share
	D := g.NewPoint().ScalarMult(share.SecretKey, p.c1)
	pf, err := prove(g, env.Rand("dleq"), env.Context(), share.ID, share.SecretKey, share.PublicKey, p.c1, D)
	if err != nil {
		return nil, errors.Wrap(err, "prove partial")
	}
	partial, err := protocol.EncodePayload(partialMsg{D: D.Bytes(), C: pf.C.Bytes(), Z: pf.Z.Bytes()})
	if err != nil {
		return nil, err
	}

	nonces := env.Rand("partial-nonce")
	var out []protocol.Outgoing
	for _, peer := range env.Peers() {
		key, err := p.pairwiseKey(env, peer)
		if err != nil {
			return nil, protocol.Fail(protocol.KindInvalidParameters, 0, err)
		}
		sealed, err := channel.Seal(nonces, key, partial, partialAAD(env, env.Self, peer))
		if err != nil {
			return nil, err
		}
		payload, err := protocol.EncodePayload(sealedMsg{Sealed: sealed})
		if err != nil {
			return nil, err
		}
		out = append(out, protocol.Outgoing{To: peer, Payload: payload})
	}
	return out, nil
}

func (p *Protocol) decodePartial(env *protocol.Env, sender wire.ParticipantID, payload []byte) (group.Point, error) {
	g := p.key.Group
	var sm sealedMsg
	if err := protocol.DecodePayload(payload, &sm); err != nil {
		return nil, err
	}
	key, err := p.pairwiseKey(env, sender)
	if err != nil {
		return nil, err
	}
	pt, err := channel.Open(key, sm.Sealed, partialAAD(env, sender, env.Self))
	if err != nil {
		return nil, err
	}
	var m partialMsg
	if err := protocol.DecodePayload(pt, &m); err != nil {
		return nil, err
	}
	D, err := group.DecodePoint(g, m.D)
	if err != nil {
		return nil, errors.Wrap(err, "partial")
	}
	pf := &proof{}
	if pf.C, err = group.DecodeScalar(g, m.C); err != nil {
		return nil, errors.Wrap(err, "proof")
	}
	if pf.Z, err = group.DecodeScalar(g, m.Z); err != nil {
		return nil, errors.Wrap(err, "proof")
	}
	if err := verify(g, env.Context(), uint16(sender), p.key.PublicShares[sender], p.c1, D, pf); err != nil {
		return nil, err
	}
	return D, nil
}

func (p *Protocol) Process(env *protocol.Env, round int, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	if round != 1 {
		return nil, nil, protocol.Failf(protocol.KindInternal, 0, "no round %d", round)
	}
	g, share := p.key.Group, p.key.Share
	threshold := p.key.FROST.Threshold()

	partials := map[uint16]group.Point{share.ID: g.NewPoint().ScalarMult(share.SecretKey, p.c1)}
	var rejected []uint16
	for _, m := range msgs {
		D, err := p.decodePartial(env, m.Sender, m.Payload)
		if err != nil {
			env.Log.Warn("rejecting partial decryption", "sender", uint16(m.Sender), "error", err)
			rejected = append(rejected, uint16(m.Sender))
			continue
		}
		partials[uint16(m.Sender)] = D
	}
	if len(partials) < threshold {
		return nil, nil, protocol.Failf(protocol.KindInsufficientShares, 0,
			"%d valid partials for threshold %d (rejected %v)", len(partials), threshold, rejected)
	}

	ids := make([]uint16, 0, len(partials))
	for id := range partials {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// S = sum(lambda_j * D_j) = x*C1 = r*Y
	S := g.NewPoint()
	for _, id := range ids {
		lambda, err := frost.LagrangeCoefficient(g, id, ids)
		if err != nil {
			return nil, nil, protocol.Fail(protocol.KindInternal, 0, err)
		}
		S.Add(S, g.NewPoint().ScalarMult(lambda, partials[id]))
	}
	key, err := sessionKey(S, p.c1)
	if err != nil {
		return nil, nil, protocol.Fail(protocol.KindInternal, 0, err)
	}
	plaintext, err := channel.Open(key, p.ciphertext.Sealed, p.c1.Bytes())
	if err != nil {
		return nil, nil, protocol.Fail(protocol.KindAuthenticationFailed, 0, err)
	}
	env.Log.Info("ciphertext decrypted", "partials", len(ids), logging.Redacted("plaintext"))
	return nil, &protocol.Plaintext{Data: plaintext}, nil
}

type body struct {
	Share      *protocol.KeyShare `cbor:"1,keyasint"`
	Ciphertext *Ciphertext        `cbor:"2,keyasint"`
}

func (p *Protocol) MarshalBody() ([]byte, error) {
	return protocol.EncodePayload(body{Share: p.share, Ciphertext: p.ciphertext})
}

func (p *Protocol) UnmarshalBody(env *protocol.Env, data []byte) error {
	var b body
	if err := protocol.DecodePayload(data, &b); err != nil {
		return err
	}
	p.share, p.ciphertext = b.Share, b.Ciphertext
	return p.bind(env)
}

func (p *Protocol) Wipe() {
	p.key.Wipe()
	if p.share != nil {
		p.share.Wipe()
	}
}
