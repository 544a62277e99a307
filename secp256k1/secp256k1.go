package secp256k1

import (
	"crypto/sha256"
	"errors"
	"io"
	"math/big"

	dcr "github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/f3rmion/thresh/group"
)

// PointLen is the length of a compressed point encoding.
const PointLen = 33

var (
	curveOrder = new(big.Int).Set(dcr.S256().Params().N)

	errPointLength = errors.New("secp256k1: invalid point length")
)

// reduce interprets data as a big-endian integer of any length and reduces
// it modulo the group order.
func reduce(data []byte, out *dcr.ModNScalar) {
	v := new(big.Int).SetBytes(data)
	v.Mod(v, curveOrder)
	var buf [32]byte
	v.FillBytes(buf[:])
	out.SetBytes(&buf)
}

// Scalar is an integer modulo the secp256k1 group order.
type Scalar struct {
	inner dcr.ModNScalar
}

// Add sets s to a + b (mod N) and returns s.
func (s *Scalar) Add(a, b group.Scalar) group.Scalar {
	s.inner.Add2(&a.(*Scalar).inner, &b.(*Scalar).inner)
	return s
}

// Sub sets s to a - b (mod N) and returns s.
func (s *Scalar) Sub(a, b group.Scalar) group.Scalar {
	var negB dcr.ModNScalar
	negB.NegateVal(&b.(*Scalar).inner)
	s.inner.Add2(&a.(*Scalar).inner, &negB)
	return s
}

// Mul sets s to a * b (mod N) and returns s.
func (s *Scalar) Mul(a, b group.Scalar) group.Scalar {
	s.inner.Mul2(&a.(*Scalar).inner, &b.(*Scalar).inner)
	return s
}

// Negate sets s to -a (mod N) and returns s.
func (s *Scalar) Negate(a group.Scalar) group.Scalar {
	s.inner.NegateVal(&a.(*Scalar).inner)
	return s
}

// Invert sets s to a^(-1) (mod N) and returns s.
// It returns an error if a is zero.
func (s *Scalar) Invert(a group.Scalar) (group.Scalar, error) {
	aScalar := a.(*Scalar)
	if aScalar.inner.IsZero() {
		return nil, errors.New("secp256k1: cannot invert zero scalar")
	}
	s.inner.InverseValNonConst(&aScalar.inner)
	return s, nil
}

// Set copies the value of a into s and returns s.
func (s *Scalar) Set(a group.Scalar) group.Scalar {
	s.inner.Set(&a.(*Scalar).inner)
	return s
}

// Bytes returns the scalar as 32 big-endian bytes.
func (s *Scalar) Bytes() []byte {
	b := s.inner.Bytes()
	return b[:]
}

// SetBytes sets s from big-endian bytes reduced modulo N and returns s.
func (s *Scalar) SetBytes(data []byte) (group.Scalar, error) {
	reduce(data, &s.inner)
	return s, nil
}

// Equal reports whether s and b represent the same scalar value.
func (s *Scalar) Equal(b group.Scalar) bool {
	return s.inner.Equals(&b.(*Scalar).inner)
}

// IsZero reports whether s is the zero scalar.
func (s *Scalar) IsZero() bool {
	return s.inner.IsZero()
}

// ModN exposes the underlying scalar for code that hands values to
// btcec, such as ECDSA signature assembly.
func (s *Scalar) ModN() *dcr.ModNScalar {
	return &s.inner
}

// Point is a secp256k1 point held in Jacobian coordinates. The identity is
// encoded as 33 zero bytes on the wire.
type Point struct {
	inner dcr.JacobianPoint
}

func isInfinity(p *dcr.JacobianPoint) bool {
	return (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero()
}

func (p *Point) setInfinity() {
	p.inner.X.SetInt(0)
	p.inner.Y.SetInt(0)
	p.inner.Z.SetInt(0)
}

// Add sets p to a + b and returns p.
func (p *Point) Add(a, b group.Point) group.Point {
	var sum dcr.JacobianPoint
	dcr.AddNonConst(&a.(*Point).inner, &b.(*Point).inner, &sum)
	p.inner.Set(&sum)
	return p
}

// Sub sets p to a - b and returns p.
func (p *Point) Sub(a, b group.Point) group.Point {
	var negB Point
	negB.Negate(b)
	return p.Add(a, &negB)
}

// Negate sets p to -a and returns p.
func (p *Point) Negate(a group.Point) group.Point {
	src := a.(*Point)
	if isInfinity(&src.inner) {
		p.setInfinity()
		return p
	}
	var q dcr.JacobianPoint
	q.Set(&src.inner)
	q.ToAffine()
	q.Y.Negate(1).Normalize()
	p.inner.Set(&q)
	return p
}

// ScalarMult sets p to s * q and returns p.
func (p *Point) ScalarMult(s group.Scalar, q group.Point) group.Point {
	k := &s.(*Scalar).inner
	src := q.(*Point)
	if k.IsZero() || isInfinity(&src.inner) {
		p.setInfinity()
		return p
	}
	var in, out dcr.JacobianPoint
	in.Set(&src.inner)
	in.ToAffine()
	dcr.ScalarMultNonConst(k, &in, &out)
	p.inner.Set(&out)
	return p
}

// Set copies the value of a into p and returns p.
func (p *Point) Set(a group.Point) group.Point {
	p.inner.Set(&a.(*Point).inner)
	return p
}

// Bytes returns the 33-byte SEC1 compressed encoding.
func (p *Point) Bytes() []byte {
	if isInfinity(&p.inner) {
		return make([]byte, PointLen)
	}
	var q dcr.JacobianPoint
	q.Set(&p.inner)
	q.ToAffine()
	return dcr.NewPublicKey(&q.X, &q.Y).SerializeCompressed()
}

// SetBytes sets p from an encoded point and returns p.
// It returns an error if data is not a valid encoding.
func (p *Point) SetBytes(data []byte) (group.Point, error) {
	if len(data) != PointLen {
		return nil, errPointLength
	}
	allZero := true
	for _, b := range data {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		p.setInfinity()
		return p, nil
	}
	pub, err := dcr.ParsePubKey(data)
	if err != nil {
		return nil, err
	}
	pub.AsJacobian(&p.inner)
	return p, nil
}

// Equal reports whether p and b represent the same curve point.
func (p *Point) Equal(b group.Point) bool {
	other := b.(*Point)
	aInf, bInf := isInfinity(&p.inner), isInfinity(&other.inner)
	if aInf || bInf {
		return aInf == bInf
	}
	var x, y dcr.JacobianPoint
	x.Set(&p.inner)
	y.Set(&other.inner)
	x.ToAffine()
	y.ToAffine()
	return x.X.Equals(&y.X) && x.Y.Equals(&y.Y)
}

// IsIdentity reports whether p is the identity element.
func (p *Point) IsIdentity() bool {
	return isInfinity(&p.inner)
}

// Curve implements [group.Group] for secp256k1.
type Curve struct{}

// New returns the secp256k1 group.
func New() *Curve { return &Curve{} }

// ID returns group.Secp256k1.
func (c *Curve) ID() group.ID { return group.Secp256k1 }

// NewScalar returns a new scalar initialized to zero.
func (c *Curve) NewScalar() group.Scalar { return &Scalar{} }

// NewPoint returns a new point initialized to the identity element.
func (c *Curve) NewPoint() group.Point {
	p := &Point{}
	p.setInfinity()
	return p
}

// Generator returns the standard base point G of secp256k1.
func (c *Curve) Generator() group.Point {
	var one dcr.ModNScalar
	one.SetInt(1)
	p := &Point{}
	dcr.ScalarBaseMultNonConst(&one, &p.inner)
	return p
}

// RandomScalar draws 48 bytes and reduces them; zero is resampled.
func (c *Curve) RandomScalar(r io.Reader) (group.Scalar, error) {
	var buf [48]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		s := &Scalar{}
		reduce(buf[:], &s.inner)
		if !s.inner.IsZero() {
			return s, nil
		}
	}
}

// HashToScalar hashes the concatenated inputs with SHA-256 and reduces
// the digest modulo the group order.
func (c *Curve) HashToScalar(data ...[]byte) (group.Scalar, error) {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	s := &Scalar{}
	reduce(h.Sum(nil), &s.inner)
	return s, nil
}

// Order returns the order of the prime-order subgroup as a big-endian
// byte slice.
func (c *Curve) Order() []byte {
	return curveOrder.Bytes()
}
