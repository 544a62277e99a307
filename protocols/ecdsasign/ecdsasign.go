package ecdsasign

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	becdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/frost"
	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/paillier"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/secp256k1"
	"github.com/f3rmion/thresh/wire"
)

// DefaultPaillierBits is the modulus size used when none is configured.
const DefaultPaillierBits = 2048

// maskBits sizes the MtA blinding values: products of two scalars are below
// 2^512 and the mask hides them statistically.
const maskBits = 512 + 80

type commitMsg struct {
	Commit []byte `cbor:"1,keyasint"`
	N      []byte `cbor:"2,keyasint"`
	EncK   []byte `cbor:"3,keyasint"`
}

type mtaMsg struct {
	Gamma []byte `cbor:"1,keyasint"`
	W     []byte `cbor:"2,keyasint"`
}

type revealMsg struct {
	Delta []byte `cbor:"1,keyasint"`
	Gamma []byte `cbor:"2,keyasint"`
	Salt  []byte `cbor:"3,keyasint"`
}

type partialMsg struct {
	S []byte `cbor:"1,keyasint"`
}

// Protocol signs one message with one secp256k1 key share. The zero value
// is ready for protocol.Restore.
type Protocol struct {
	share   *protocol.KeyShare
	message []byte
	bits    int

	key      *protocol.KeyContext
	paillier *paillier.SecretKey
	k        group.Scalar
	gamma    group.Scalar
	salt     []byte
	commits  map[wire.ParticipantID][]byte
	peerKeys map[wire.ParticipantID]*paillier.PublicKey
	peerEncK map[wire.ParticipantID]*paillier.Ciphertext
	betaSum  group.Scalar
	nuSum    group.Scalar
	delta    group.Scalar
	sigma    group.Scalar
	r        group.Scalar
	s        group.Scalar
}

// New returns a signing protocol for message under a copy of share. bits
// is the Paillier modulus size; zero selects DefaultPaillierBits.
func New(share *protocol.KeyShare, message []byte, bits int) *Protocol {
	if bits == 0 {
		bits = DefaultPaillierBits
	}
	return &Protocol{share: share.Clone(), message: append([]byte(nil), message...), bits: bits}
}

func (p *Protocol) Tag() protocol.Tag { return protocol.TagSignECDSA }

func (p *Protocol) Rounds() int { return 4 }

func (p *Protocol) Delivery(round int) protocol.Delivery {
	if round == 2 {
		return protocol.PointToPoint
	}
	return protocol.Broadcast
}

func (p *Protocol) bind(env *protocol.Env) error {
	if env.Params.Curve != group.Secp256k1 {
		return protocol.Failf(protocol.KindInvalidParameters, 0, "ECDSA requires secp256k1, not %s", env.Params.Curve)
	}
	if p.bits < paillier.MinBits {
		return protocol.Failf(protocol.KindInvalidParameters, 0, "Paillier modulus of %d bits", p.bits)
	}
	key, err := p.share.Bind(env)
	if err != nil {
		return err
	}
	p.key = key
	p.commits = make(map[wire.ParticipantID][]byte)
	p.peerKeys = make(map[wire.ParticipantID]*paillier.PublicKey)
	p.peerEncK = make(map[wire.ParticipantID]*paillier.Ciphertext)
	return nil
}

func (p *Protocol) scalar() group.Scalar { return p.key.Group.NewScalar() }

func scalarToInt(s group.Scalar) *big.Int { return new(big.Int).SetBytes(s.Bytes()) }

func (p *Protocol) intToScalar(v *big.Int) group.Scalar {
	s, _ := p.scalar().SetBytes(v.Bytes())
	return s
}

// weightedShare returns w_i = lambda_i * x_i over the signing set.
func (p *Protocol) weightedShare(env *protocol.Env) (group.Scalar, error) {
	lambda, err := frost.LagrangeCoefficient(p.key.Group, uint16(env.Self), env.Params.IDs())
	if err != nil {
		return nil, err
	}
	return p.scalar().Mul(lambda, p.key.Share.SecretKey), nil
}

func commitment(env *protocol.Env, id wire.ParticipantID, gamma, salt []byte) []byte {
	h := sha256.New()
	h.Write([]byte("thresh/ecdsa/gamma"))
	h.Write(env.Context())
	var idb [2]byte
	binary.BigEndian.PutUint16(idb[:], uint16(id))
	h.Write(idb[:])
	h.Write(gamma)
	h.Write(salt)
	return h.Sum(nil)
}

func (p *Protocol) bigGamma() group.Point {
	g := p.key.Group
	return g.NewPoint().ScalarMult(p.gamma, g.Generator())
}

func (p *Protocol) Start(env *protocol.Env) ([]protocol.Outgoing, error) {
	if err := p.bind(env); err != nil {
		return nil, err
	}
	g := p.key.Group
	var err error
	if p.k, err = g.RandomScalar(env.Rand("k")); err != nil {
		return nil, err
	}
	if p.gamma, err = g.RandomScalar(env.Rand("gamma")); err != nil {
		return nil, err
	}
	p.salt = make([]byte, 32)
	if _, err := io.ReadFull(env.Rand("salt"), p.salt); err != nil {
		return nil, err
	}
	if p.paillier, err = paillier.GenerateKey(env.Rand("paillier"), p.bits); err != nil {
		return nil, errors.Wrap(err, "generate Paillier key")
	}
	encK, err := p.paillier.Encrypt(env.Rand("encrypt-k"), scalarToInt(p.k))
	if err != nil {
		return nil, err
	}
	env.Log.Debug("signing nonce committed", logging.Redacted("k"), "paillier_bits", p.paillier.BitLen())

	payload, err := protocol.EncodePayload(commitMsg{
		Commit: commitment(env, env.Self, p.bigGamma().Bytes(), p.salt),
		N:      p.paillier.Bytes(),
		EncK:   encK.Bytes(),
	})
	if err != nil {
		return nil, err
	}
	return []protocol.Outgoing{{To: wire.Broadcast, Payload: payload}}, nil
}

func (p *Protocol) Process(env *protocol.Env, round int, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	switch round {
	case 1:
		return p.processCommitments(env, msgs)
	case 2:
		return p.processMtA(env, msgs)
	case 3:
		return p.processReveals(env, msgs)
	case 4:
		return p.processPartials(env, msgs)
	}
	return nil, nil, protocol.Failf(protocol.KindInternal, 0, "no round %d", round)
}

func invalid(sender wire.ParticipantID, err error, what string) error {
	return protocol.Fail(protocol.KindInvalidShare, sender, errors.Wrap(err, what))
}

func (p *Protocol) acceptCommitment(id wire.ParticipantID, m commitMsg) error {
	if len(m.Commit) != sha256.Size {
		return errors.Errorf("commitment of %d bytes", len(m.Commit))
	}
	pk, err := paillier.ParsePublicKey(m.N)
	if err != nil {
		return err
	}
	encK, err := pk.ParseCiphertext(m.EncK)
	if err != nil {
		return err
	}
	p.commits[id] = m.Commit
	p.peerKeys[id] = pk
	p.peerEncK[id] = encK
	return nil
}

// mask draws a uniform value below 2^maskBits.
func mask(r io.Reader) (*big.Int, error) {
	buf := make([]byte, maskBits/8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}

// mtaResponse returns Enc_j(k_j*x + b) and the local share -b mod q.
func (p *Protocol) mtaResponse(r io.Reader, pk *paillier.PublicKey, encK *paillier.Ciphertext, x group.Scalar) (*paillier.Ciphertext, group.Scalar, error) {
	b, err := mask(r)
	if err != nil {
		return nil, nil, err
	}
	encB, err := pk.Encrypt(r, b)
	if err != nil {
		return nil, nil, err
	}
	c := pk.Add(pk.MulScalar(encK, scalarToInt(x)), encB)
	share := p.scalar().Negate(p.intToScalar(b))
	return c, share, nil
}

func (p *Protocol) processCommitments(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	if n := len(env.Params.Participants); n < p.key.FROST.Threshold() {
		return nil, nil, protocol.Failf(protocol.KindInsufficientShares, 0,
			"%d signers for threshold %d", n, p.key.FROST.Threshold())
	}
	for _, m := range msgs {
		var cm commitMsg
		if err := protocol.DecodePayload(m.Payload, &cm); err != nil {
			return nil, nil, invalid(m.Sender, err, "commitment")
		}
		if err := p.acceptCommitment(m.Sender, cm); err != nil {
			return nil, nil, invalid(m.Sender, err, "commitment")
		}
	}

	w, err := p.weightedShare(env)
	if err != nil {
		return nil, nil, protocol.Fail(protocol.KindInternal, 0, err)
	}
	defer group.Wipe(p.key.Group, w)

	p.betaSum, p.nuSum = p.scalar(), p.scalar()
	rnd := env.Rand("mta")
	var out []protocol.Outgoing
	for _, peer := range env.Peers() {
		pk, encK := p.peerKeys[peer], p.peerEncK[peer]
		cGamma, beta, err := p.mtaResponse(rnd, pk, encK, p.gamma)
		if err != nil {
			return nil, nil, protocol.Fail(protocol.KindInternal, 0, err)
		}
		cW, nu, err := p.mtaResponse(rnd, pk, encK, w)
		if err != nil {
			return nil, nil, protocol.Fail(protocol.KindInternal, 0, err)
		}
		p.betaSum.Add(p.betaSum, beta)
		p.nuSum.Add(p.nuSum, nu)
		group.Wipe(p.key.Group, beta, nu)

		payload, err := protocol.EncodePayload(mtaMsg{Gamma: cGamma.Bytes(), W: cW.Bytes()})
		if err != nil {
			return nil, nil, err
		}
		out = append(out, protocol.Outgoing{To: peer, Payload: payload})
	}
	// Peer Paillier keys are only needed to answer round 1.
	p.peerKeys = make(map[wire.ParticipantID]*paillier.PublicKey)
	p.peerEncK = make(map[wire.ParticipantID]*paillier.Ciphertext)
	return out, nil, nil
}

func (p *Protocol) processMtA(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	w, err := p.weightedShare(env)
	if err != nil {
		return nil, nil, protocol.Fail(protocol.KindInternal, 0, err)
	}
	defer group.Wipe(p.key.Group, w)

	// delta_i = k_i*gamma_i + sum(alpha_ij + beta_ij)
	// sigma_i = k_i*w_i + sum(mu_ij + nu_ij)
	delta := p.scalar().Mul(p.k, p.gamma)
	delta.Add(delta, p.betaSum)
	sigma := p.scalar().Mul(p.k, w)
	sigma.Add(sigma, p.nuSum)
	for _, m := range msgs {
		var mm mtaMsg
		if err := protocol.DecodePayload(m.Payload, &mm); err != nil {
			return nil, nil, invalid(m.Sender, err, "MtA response")
		}
		cGamma, err := p.paillier.ParseCiphertext(mm.Gamma)
		if err != nil {
			return nil, nil, invalid(m.Sender, err, "MtA response")
		}
		cW, err := p.paillier.ParseCiphertext(mm.W)
		if err != nil {
			return nil, nil, invalid(m.Sender, err, "MtA response")
		}
		delta.Add(delta, p.intToScalar(p.paillier.Decrypt(cGamma)))
		sigma.Add(sigma, p.intToScalar(p.paillier.Decrypt(cW)))
	}
	p.delta, p.sigma = delta, sigma
	group.Wipe(p.key.Group, p.betaSum, p.nuSum)
	p.betaSum, p.nuSum = nil, nil
	p.paillier.Wipe()
	p.paillier = nil

	payload, err := protocol.EncodePayload(revealMsg{
		Delta: delta.Bytes(),
		Gamma: p.bigGamma().Bytes(),
		Salt:  p.salt,
	})
	if err != nil {
		return nil, nil, err
	}
	return []protocol.Outgoing{{To: wire.Broadcast, Payload: payload}}, nil, nil
}

func messageScalar(g group.Group, message []byte) group.Scalar {
	digest := sha256.Sum256(message)
	m, _ := g.NewScalar().SetBytes(digest[:])
	return m
}

func (p *Protocol) processReveals(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	g := p.key.Group
	delta := p.scalar().Set(p.delta)
	Gamma := p.bigGamma()
	for _, m := range msgs {
		var rm revealMsg
		if err := protocol.DecodePayload(m.Payload, &rm); err != nil {
			return nil, nil, invalid(m.Sender, err, "reveal")
		}
		if !bytes.Equal(commitment(env, m.Sender, rm.Gamma, rm.Salt), p.commits[m.Sender]) {
			return nil, nil, protocol.Failf(protocol.KindInvalidShare, m.Sender, "Gamma does not match commitment")
		}
		G, err := group.DecodePoint(g, rm.Gamma)
		if err != nil {
			return nil, nil, invalid(m.Sender, err, "reveal")
		}
		d, err := group.DecodeScalar(g, rm.Delta)
		if err != nil {
			return nil, nil, invalid(m.Sender, err, "reveal")
		}
		delta.Add(delta, d)
		Gamma.Add(Gamma, G)
	}

	// R = delta^-1 * sum(Gamma_j) = k^-1 * G
	deltaInv, err := p.scalar().Invert(delta)
	if err != nil {
		return nil, nil, protocol.Failf(protocol.KindSignatureAggregation, 0, "delta is zero")
	}
	R := g.NewPoint().ScalarMult(deltaInv, Gamma)
	if R.IsIdentity() {
		return nil, nil, protocol.Failf(protocol.KindSignatureAggregation, 0, "R is the identity")
	}
	r, _ := p.scalar().SetBytes(R.Bytes()[1:])
	if r.IsZero() {
		return nil, nil, protocol.Failf(protocol.KindSignatureAggregation, 0, "r is zero")
	}

	// s_i = m*k_i + r*sigma_i
	s := p.scalar().Mul(messageScalar(g, p.message), p.k)
	s.Add(s, p.scalar().Mul(r, p.sigma))
	p.r, p.s = r, s
	group.Wipe(g, p.k, p.gamma, p.delta, p.sigma)
	p.k, p.gamma, p.delta, p.sigma = nil, nil, nil, nil

	payload, err := protocol.EncodePayload(partialMsg{S: s.Bytes()})
	if err != nil {
		return nil, nil, err
	}
	return []protocol.Outgoing{{To: wire.Broadcast, Payload: payload}}, nil, nil
}

func (p *Protocol) processPartials(env *protocol.Env, msgs []*wire.Message) ([]protocol.Outgoing, protocol.Artifact, error) {
	g := p.key.Group
	s := p.scalar().Set(p.s)
	for _, m := range msgs {
		var pm partialMsg
		if err := protocol.DecodePayload(m.Payload, &pm); err != nil {
			return nil, nil, invalid(m.Sender, err, "partial signature")
		}
		si, err := group.DecodeScalar(g, pm.S)
		if err != nil {
			return nil, nil, invalid(m.Sender, err, "partial signature")
		}
		s.Add(s, si)
	}
	if s.IsZero() {
		return nil, nil, protocol.Failf(protocol.KindSignatureAggregation, 0, "s is zero")
	}

	sn := s.(*secp256k1.Scalar).ModN()
	if sn.IsOverHalfOrder() {
		sn.Negate()
	}
	sig := &protocol.Signature{
		Scheme: protocol.SchemeECDSA,
		Curve:  group.Secp256k1,
		R:      p.r.Bytes(),
		S:      s.Bytes(),
	}
	if err := Verify(p.key.Share.GroupKey.Bytes(), p.message, sig); err != nil {
		return nil, nil, protocol.Fail(protocol.KindSignatureAggregation, 0, err)
	}
	env.Log.Info("signature produced", "signers", len(msgs)+1)
	return nil, sig, nil
}

// Verify checks an ECDSA signature over SHA-256(message) against a
// compressed secp256k1 public key with btcec.
func Verify(groupKey, message []byte, sig *protocol.Signature) error {
	if sig == nil || sig.Scheme != protocol.SchemeECDSA || sig.Curve != group.Secp256k1 {
		return errors.New("ecdsasign: not a secp256k1 ECDSA signature")
	}
	if len(sig.R) != 32 || len(sig.S) != 32 {
		return errors.New("ecdsasign: malformed signature")
	}
	pub, err := btcec.ParsePubKey(groupKey)
	if err != nil {
		return errors.Wrap(err, "ecdsasign: group key")
	}
	var r, s btcec.ModNScalar
	if r.SetByteSlice(sig.R) || s.SetByteSlice(sig.S) {
		return errors.New("ecdsasign: signature value exceeds the group order")
	}
	digest := sha256.Sum256(message)
	if !becdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
		return errors.New("ecdsasign: invalid signature")
	}
	return nil
}

// DER returns the ASN.1 DER encoding of an ECDSA signature.
func DER(sig *protocol.Signature) ([]byte, error) {
	if sig == nil || sig.Scheme != protocol.SchemeECDSA || len(sig.R) != 32 || len(sig.S) != 32 {
		return nil, errors.New("ecdsasign: not an ECDSA signature")
	}
	var r, s btcec.ModNScalar
	r.SetByteSlice(sig.R)
	s.SetByteSlice(sig.S)
	return becdsa.NewSignature(&r, &s).Serialize(), nil
}
