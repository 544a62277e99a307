package ed25519

import (
	"crypto/sha512"
	"errors"
	"io"
	"math/big"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"

	"github.com/f3rmion/thresh/group"
)

var (
	suite = edwards25519.NewBlakeSHA256Ed25519()

	// order is L = 2^252 + 27742317777372353535851937790883648493.
	order = func() *big.Int {
		l, _ := new(big.Int).SetString("27742317777372353535851937790883648493", 10)
		return l.Add(l, new(big.Int).Lsh(big.NewInt(1), 252))
	}()

	// orderMinusOne lets SetBytes compute L*P = (L-1)*P + P without the
	// scalar reducing to zero.
	orderMinusOne = func() kyber.Scalar {
		v := new(big.Int).Sub(order, big.NewInt(1))
		return suite.Scalar().SetBytes(reverse(v.FillBytes(make([]byte, 32))))
	}()

	errTorsion = errors.New("ed25519: point has a small-order component")
)

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// Scalar wraps a kyber edwards25519 scalar. Bytes and SetBytes are
// big-endian like every other group in this module; kyber itself is
// little-endian.
type Scalar struct {
	inner kyber.Scalar
}

func newScalar() *Scalar { return &Scalar{inner: suite.Scalar().Zero()} }

// Add sets s to a + b (mod L) and returns s.
func (s *Scalar) Add(a, b group.Scalar) group.Scalar {
	s.inner.Add(a.(*Scalar).inner, b.(*Scalar).inner)
	return s
}

// Sub sets s to a - b (mod L) and returns s.
func (s *Scalar) Sub(a, b group.Scalar) group.Scalar {
	s.inner.Sub(a.(*Scalar).inner, b.(*Scalar).inner)
	return s
}

// Mul sets s to a * b (mod L) and returns s.
func (s *Scalar) Mul(a, b group.Scalar) group.Scalar {
	s.inner.Mul(a.(*Scalar).inner, b.(*Scalar).inner)
	return s
}

// Negate sets s to -a (mod L) and returns s.
func (s *Scalar) Negate(a group.Scalar) group.Scalar {
	s.inner.Neg(a.(*Scalar).inner)
	return s
}

// Invert sets s to a^(-1) (mod L) and returns s.
// It returns an error if a is zero.
func (s *Scalar) Invert(a group.Scalar) (group.Scalar, error) {
	if a.IsZero() {
		return nil, errors.New("ed25519: cannot invert zero scalar")
	}
	s.inner.Inv(a.(*Scalar).inner)
	return s, nil
}

// Set copies the value of a into s and returns s.
func (s *Scalar) Set(a group.Scalar) group.Scalar {
	s.inner.Set(a.(*Scalar).inner)
	return s
}

// Bytes returns the scalar as 32 big-endian bytes.
func (s *Scalar) Bytes() []byte {
	le, _ := s.inner.MarshalBinary()
	return reverse(le)
}

// SetBytes sets s from big-endian bytes reduced modulo L and returns s.
func (s *Scalar) SetBytes(data []byte) (group.Scalar, error) {
	s.inner.SetBytes(reverse(data))
	return s, nil
}

// Equal reports whether s and b represent the same scalar value.
func (s *Scalar) Equal(b group.Scalar) bool {
	return s.inner.Equal(b.(*Scalar).inner)
}

// IsZero reports whether s is the zero scalar.
func (s *Scalar) IsZero() bool {
	return s.inner.Equal(suite.Scalar().Zero())
}

// Point wraps a kyber edwards25519 point.
type Point struct {
	inner kyber.Point
}

func newPoint() *Point { return &Point{inner: suite.Point().Null()} }

// Add sets p to a + b and returns p.
func (p *Point) Add(a, b group.Point) group.Point {
	p.inner.Add(a.(*Point).inner, b.(*Point).inner)
	return p
}

// Sub sets p to a - b and returns p.
func (p *Point) Sub(a, b group.Point) group.Point {
	p.inner.Sub(a.(*Point).inner, b.(*Point).inner)
	return p
}

// Negate sets p to -a and returns p.
func (p *Point) Negate(a group.Point) group.Point {
	p.inner.Neg(a.(*Point).inner)
	return p
}

// ScalarMult sets p to s * q and returns p.
func (p *Point) ScalarMult(s group.Scalar, q group.Point) group.Point {
	p.inner.Mul(s.(*Scalar).inner, q.(*Point).inner)
	return p
}

// Set copies the value of a into p and returns p.
func (p *Point) Set(a group.Point) group.Point {
	p.inner.Set(a.(*Point).inner)
	return p
}

// Bytes returns the standard 32-byte Ed25519 point encoding.
func (p *Point) Bytes() []byte {
	b, _ := p.inner.MarshalBinary()
	return b
}

// SetBytes decodes a 32-byte encoding and rejects points outside the
// prime-order subgroup.
func (p *Point) SetBytes(data []byte) (group.Point, error) {
	if len(data) != 32 {
		return nil, errors.New("ed25519: invalid point length")
	}
	q := suite.Point()
	if err := q.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	check := suite.Point().Mul(orderMinusOne, q)
	check.Add(check, q)
	if !check.Equal(suite.Point().Null()) {
		return nil, errTorsion
	}
	p.inner = q
	return p, nil
}

// Equal reports whether p and b represent the same curve point.
func (p *Point) Equal(b group.Point) bool {
	return p.inner.Equal(b.(*Point).inner)
}

// IsIdentity reports whether p is the identity element.
func (p *Point) IsIdentity() bool {
	return p.inner.Equal(suite.Point().Null())
}

// Curve implements [group.Group] for the Ed25519 prime-order subgroup.
type Curve struct{}

// New returns the Ed25519 group.
func New() *Curve { return &Curve{} }

// ID returns group.Ed25519.
func (c *Curve) ID() group.ID { return group.Ed25519 }

// NewScalar returns a new scalar initialized to zero.
func (c *Curve) NewScalar() group.Scalar { return newScalar() }

// NewPoint returns a new point initialized to the identity element.
func (c *Curve) NewPoint() group.Point { return newPoint() }

// Generator returns the standard base point of Ed25519.
func (c *Curve) Generator() group.Point {
	return &Point{inner: suite.Point().Base()}
}

// RandomScalar reduces 64 random bytes; zero is resampled.
func (c *Curve) RandomScalar(r io.Reader) (group.Scalar, error) {
	var buf [64]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		s := &Scalar{inner: suite.Scalar().SetBytes(buf[:])}
		if !s.IsZero() {
			return s, nil
		}
	}
}

// HashToScalar reduces a SHA-512 digest of the inputs.
func (c *Curve) HashToScalar(data ...[]byte) (group.Scalar, error) {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	return &Scalar{inner: suite.Scalar().SetBytes(h.Sum(nil))}, nil
}

// Order returns the order of the prime-order subgroup as a big-endian
// byte slice.
func (c *Curve) Order() []byte {
	return order.Bytes()
}
