package ecdsasign

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/paillier"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/wire"
)

type body struct {
	Share     *protocol.KeyShare            `cbor:"1,keyasint"`
	Message   []byte                        `cbor:"2,keyasint"`
	Bits      int                           `cbor:"3,keyasint"`
	K         []byte                        `cbor:"4,keyasint,omitempty"`
	Gamma     []byte                        `cbor:"5,keyasint,omitempty"`
	Salt      []byte                        `cbor:"6,keyasint,omitempty"`
	PaillierP []byte                        `cbor:"7,keyasint,omitempty"`
	PaillierQ []byte                        `cbor:"8,keyasint,omitempty"`
	Commits   map[wire.ParticipantID][]byte `cbor:"9,keyasint,omitempty"`
	BetaSum   []byte                        `cbor:"10,keyasint,omitempty"`
	NuSum     []byte                        `cbor:"11,keyasint,omitempty"`
	Delta     []byte                        `cbor:"12,keyasint,omitempty"`
	Sigma     []byte                        `cbor:"13,keyasint,omitempty"`
	R         []byte                        `cbor:"14,keyasint,omitempty"`
	S         []byte                        `cbor:"15,keyasint,omitempty"`
}

func scalarBytes(s group.Scalar) []byte {
	if s == nil {
		return nil
	}
	return s.Bytes()
}

func (p *Protocol) MarshalBody() ([]byte, error) {
	b := body{
		Share:   p.share,
		Message: p.message,
		Bits:    p.bits,
		K:       scalarBytes(p.k),
		Gamma:   scalarBytes(p.gamma),
		Salt:    p.salt,
		Commits: p.commits,
		BetaSum: scalarBytes(p.betaSum),
		NuSum:   scalarBytes(p.nuSum),
		Delta:   scalarBytes(p.delta),
		Sigma:   scalarBytes(p.sigma),
		R:       scalarBytes(p.r),
		S:       scalarBytes(p.s),
	}
	if p.paillier != nil {
		pp, pq := p.paillier.Primes()
		b.PaillierP, b.PaillierQ = pp.Bytes(), pq.Bytes()
	}
	return protocol.EncodePayload(b)
}

// required lists the body fields each waiting round depends on.
var required = map[uint32][]string{
	1: {"k", "gamma", "salt", "paillier"},
	2: {"k", "gamma", "salt", "paillier", "commits", "beta", "nu"},
	3: {"k", "gamma", "salt", "commits", "delta", "sigma"},
	4: {"r", "s"},
}

func (p *Protocol) UnmarshalBody(env *protocol.Env, data []byte) error {
	var b body
	if err := protocol.DecodePayload(data, &b); err != nil {
		return err
	}
	p.share, p.message, p.bits = b.Share, b.Message, b.Bits
	if err := p.bind(env); err != nil {
		return err
	}
	g := p.key.Group

	present := map[string]bool{}
	scalars := []struct {
		name string
		enc  []byte
		dst  *group.Scalar
	}{
		{"k", b.K, &p.k},
		{"gamma", b.Gamma, &p.gamma},
		{"beta", b.BetaSum, &p.betaSum},
		{"nu", b.NuSum, &p.nuSum},
		{"delta", b.Delta, &p.delta},
		{"sigma", b.Sigma, &p.sigma},
		{"r", b.R, &p.r},
		{"s", b.S, &p.s},
	}
	for _, f := range scalars {
		if len(f.enc) == 0 {
			continue
		}
		v, err := group.DecodeScalar(g, f.enc)
		if err != nil {
			return errors.Wrap(err, f.name)
		}
		*f.dst = v
		present[f.name] = true
	}
	if len(b.Salt) > 0 {
		if len(b.Salt) != 32 {
			return errors.New("salt must be 32 bytes")
		}
		p.salt = b.Salt
		present["salt"] = true
	}
	if len(b.PaillierP) > 0 {
		sk, err := paillier.NewSecretKey(new(big.Int).SetBytes(b.PaillierP), new(big.Int).SetBytes(b.PaillierQ))
		if err != nil {
			return errors.Wrap(err, "Paillier key")
		}
		p.paillier = sk
		present["paillier"] = true
	}
	if len(b.Commits) > 0 {
		if len(b.Commits) != len(env.Peers()) {
			return errors.Errorf("%d commitments for %d peers", len(b.Commits), len(env.Peers()))
		}
		for id, c := range b.Commits {
			if id == env.Self || !env.Params.Contains(id) || len(c) != 32 {
				return errors.Errorf("bad commitment entry for %d", id)
			}
			p.commits[id] = c
		}
		present["commits"] = true
	}
	if len(env.Peers()) == 0 {
		present["commits"] = true
	}

	for _, name := range required[env.Round()] {
		if !present[name] {
			return errors.Errorf("round %d state lacks %s", env.Round(), name)
		}
	}
	return nil
}

func (p *Protocol) Wipe() {
	if p.key == nil {
		return
	}
	group.Wipe(p.key.Group, p.k, p.gamma, p.betaSum, p.nuSum, p.delta, p.sigma, p.s)
	if p.paillier != nil {
		p.paillier.Wipe()
	}
	p.key.Wipe()
	p.share.Wipe()
}
