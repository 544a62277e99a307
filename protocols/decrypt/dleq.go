package decrypt

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/group"
)

var errInvalidProof = errors.New("decrypt: invalid DLEQ proof")

// proof shows log_G(X) == log_C1(D) without revealing it.
type proof struct {
	C group.Scalar
	Z group.Scalar
}

func challenge(g group.Group, context []byte, id uint16, X, c1, D, A1, A2 group.Point) (group.Scalar, error) {
	var idb [2]byte
	binary.BigEndian.PutUint16(idb[:], id)
	return g.HashToScalar([]byte("thresh/dleq"), context, idb[:],
		g.Generator().Bytes(), X.Bytes(), c1.Bytes(), D.Bytes(), A1.Bytes(), A2.Bytes())
}

func prove(g group.Group, r io.Reader, context []byte, id uint16, x group.Scalar, X, c1, D group.Point) (*proof, error) {
	k, err := g.RandomScalar(r)
	if err != nil {
		return nil, err
	}
	defer group.Wipe(g, k)
	A1 := g.NewPoint().ScalarMult(k, g.Generator())
	A2 := g.NewPoint().ScalarMult(k, c1)
	c, err := challenge(g, context, id, X, c1, D, A1, A2)
	if err != nil {
		return nil, err
	}
	// z = k + c*x
	z := g.NewScalar().Mul(c, x)
	z.Add(z, k)
	return &proof{C: c, Z: z}, nil
}

func verify(g group.Group, context []byte, id uint16, X, c1, D group.Point, pf *proof) error {
	// A1 = z*G - c*X, A2 = z*C1 - c*D
	A1 := g.NewPoint().ScalarMult(pf.Z, g.Generator())
	A1.Sub(A1, g.NewPoint().ScalarMult(pf.C, X))
	A2 := g.NewPoint().ScalarMult(pf.Z, c1)
	A2.Sub(A2, g.NewPoint().ScalarMult(pf.C, D))
	c, err := challenge(g, context, id, X, c1, D, A1, A2)
	if err != nil {
		return err
	}
	if !c.Equal(pf.C) {
		return errInvalidProof
	}
	return nil
}
