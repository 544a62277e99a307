package decrypt

import (
	"io"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/channel"
	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/suite"
)

const kdfSalt = "thresh/elgamal"

// Ciphertext is an ElGamal key encapsulation plus an AEAD blob.
type Ciphertext struct {
	Curve  group.ID `cbor:"1,keyasint"`
	C1     []byte   `cbor:"2,keyasint"`
	Sealed []byte   `cbor:"3,keyasint"`
}

// Marshal encodes c deterministically.
func (c *Ciphertext) Marshal() ([]byte, error) {
	return protocol.EncodePayload(c)
}

// ParseCiphertext decodes and checks a ciphertext.
func ParseCiphertext(data []byte) (*Ciphertext, error) {
	c := new(Ciphertext)
	if err := protocol.DecodePayload(data, c); err != nil {
		return nil, errors.Wrap(err, "decrypt: ciphertext")
	}
	if _, _, err := c.decode(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Ciphertext) decode() (suite.Suite, group.Point, error) {
	s, err := suite.Lookup(c.Curve)
	if err != nil {
		return suite.Suite{}, nil, err
	}
	c1, err := group.DecodePoint(s.Group, c.C1)
	if err != nil {
		return suite.Suite{}, nil, errors.Wrap(err, "decrypt: C1")
	}
	if len(c.Sealed) < channel.Overhead {
		return suite.Suite{}, nil, errors.New("decrypt: sealed blob too short")
	}
	return s, c1, nil
}

func sessionKey(shared, c1 group.Point) ([]byte, error) {
	return channel.DeriveKey(shared.Bytes(), []byte(kdfSalt), c1.Bytes())
}

// Encrypt seals plaintext to the holders of groupKey on curve.
func Encrypt(rand io.Reader, curve group.ID, groupKey, plaintext []byte) (*Ciphertext, error) {
	s, err := suite.Lookup(curve)
	if err != nil {
		return nil, err
	}
	g := s.Group
	Y, err := group.DecodePoint(g, groupKey)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt: group key")
	}
	r, err := g.RandomScalar(rand)
	if err != nil {
		return nil, err
	}
	defer group.Wipe(g, r)

	c1 := g.NewPoint().ScalarMult(r, g.Generator())
	key, err := sessionKey(g.NewPoint().ScalarMult(r, Y), c1)
	if err != nil {
		return nil, err
	}
	sealed, err := channel.Seal(rand, key, plaintext, c1.Bytes())
	if err != nil {
		return nil, err
	}
	return &Ciphertext{Curve: curve, C1: c1.Bytes(), Sealed: sealed}, nil
}
