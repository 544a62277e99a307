package group

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var (
	// ErrNonCanonicalScalar is returned when a received scalar encoding is
	// not the reduced 32-byte big-endian form.
	ErrNonCanonicalScalar = errors.New("group: non-canonical scalar encoding")
	// ErrIdentityPoint is returned when a received point is the identity
	// where a non-trivial element is required.
	ErrIdentityPoint = errors.New("group: unexpected identity point")
)

// ScalarFromUint64 returns n as a scalar of g.
func ScalarFromUint64(g Group, n uint64) Scalar {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], n)
	s, _ := g.NewScalar().SetBytes(buf[:])
	return s
}

// DecodeScalar parses a scalar received from another participant. Unlike
// [Scalar.SetBytes] it refuses encodings that would silently reduce.
func DecodeScalar(g Group, data []byte) (Scalar, error) {
	if len(data) != 32 {
		return nil, ErrNonCanonicalScalar
	}
	s, err := g.NewScalar().SetBytes(data)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(s.Bytes(), data) {
		return nil, ErrNonCanonicalScalar
	}
	return s, nil
}

// DecodePoint parses a point received from another participant and rejects
// the identity.
func DecodePoint(g Group, data []byte) (Point, error) {
	p, err := g.NewPoint().SetBytes(data)
	if err != nil {
		return nil, err
	}
	if p.IsIdentity() {
		return nil, ErrIdentityPoint
	}
	return p, nil
}

// Wipe overwrites each scalar with zero. Go cannot guarantee that no copy
// survives elsewhere in memory, but the live value is cleared.
func Wipe(g Group, scalars ...Scalar) {
	zero := g.NewScalar()
	for _, s := range scalars {
		if s != nil {
			s.Set(zero)
		}
	}
}
