// Package grouptest holds the conformance checks every [group.Group]
// implementation must pass.
package grouptest

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/f3rmion/thresh/group"
)

// Run exercises scalar and point arithmetic and encoding of g.
func Run(t *testing.T, g group.Group) {
	t.Helper()
	t.Run("Scalar", func(t *testing.T) { scalars(t, g) })
	t.Run("Point", func(t *testing.T) { points(t, g) })
	t.Run("Decode", func(t *testing.T) { decode(t, g) })
}

func random(t *testing.T, g group.Group) group.Scalar {
	t.Helper()
	s, err := g.RandomScalar(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func scalars(t *testing.T, g group.Group) {
	t.Run("AddSub", func(t *testing.T) {
		a, b := random(t, g), random(t, g)
		sum := g.NewScalar().Add(a, b)
		if !g.NewScalar().Sub(sum, b).Equal(a) {
			t.Error("(a+b)-b != a")
		}
	})

	t.Run("MulInvert", func(t *testing.T) {
		a := random(t, g)
		aInv, err := g.NewScalar().Invert(a)
		if err != nil {
			t.Fatal(err)
		}
		b := random(t, g)
		if !g.NewScalar().Mul(g.NewScalar().Mul(a, aInv), b).Equal(b) {
			t.Error("a*a^-1 != 1")
		}
	})

	t.Run("InvertZeroFails", func(t *testing.T) {
		if _, err := g.NewScalar().Invert(g.NewScalar()); err == nil {
			t.Error("expected error inverting zero")
		}
	})

	t.Run("Negate", func(t *testing.T) {
		a := random(t, g)
		if !g.NewScalar().Add(a, g.NewScalar().Negate(a)).IsZero() {
			t.Error("a + (-a) != 0")
		}
		if a.Equal(g.NewScalar().Negate(a)) {
			t.Error("a should not equal -a")
		}
	})

	t.Run("BytesRoundtrip", func(t *testing.T) {
		a := random(t, g)
		enc := a.Bytes()
		if len(enc) != 32 {
			t.Fatalf("scalar encoding is %d bytes", len(enc))
		}
		restored, err := g.NewScalar().SetBytes(enc)
		if err != nil {
			t.Fatal(err)
		}
		if !restored.Equal(a) {
			t.Error("scalar bytes roundtrip failed")
		}
	})

	t.Run("FromUint64", func(t *testing.T) {
		two := group.ScalarFromUint64(g, 2)
		one := group.ScalarFromUint64(g, 1)
		if !g.NewScalar().Add(one, one).Equal(two) {
			t.Error("1+1 != 2")
		}
		if !g.NewScalar().IsZero() {
			t.Error("new scalar should be zero")
		}
	})

	t.Run("Wipe", func(t *testing.T) {
		a := random(t, g)
		group.Wipe(g, a)
		if !a.IsZero() {
			t.Error("wiped scalar is not zero")
		}
	})
}

func points(t *testing.T, g group.Group) {
	t.Run("AddSub", func(t *testing.T) {
		P := g.NewPoint().ScalarMult(random(t, g), g.Generator())
		Q := g.NewPoint().ScalarMult(random(t, g), g.Generator())
		sum := g.NewPoint().Add(P, Q)
		if !g.NewPoint().Sub(sum, Q).Equal(P) {
			t.Error("(P+Q)-Q != P")
		}
	})

	t.Run("Distributive", func(t *testing.T) {
		a, b := random(t, g), random(t, g)
		lhs := g.NewPoint().ScalarMult(g.NewScalar().Add(a, b), g.Generator())
		rhs := g.NewPoint().Add(
			g.NewPoint().ScalarMult(a, g.Generator()),
			g.NewPoint().ScalarMult(b, g.Generator()),
		)
		if !lhs.Equal(rhs) {
			t.Error("(a+b)G != aG + bG")
		}
	})

	t.Run("Negate", func(t *testing.T) {
		P := g.NewPoint().ScalarMult(random(t, g), g.Generator())
		if !g.NewPoint().Add(P, g.NewPoint().Negate(P)).IsIdentity() {
			t.Error("P + (-P) != identity")
		}
	})

	t.Run("BytesRoundtrip", func(t *testing.T) {
		P := g.NewPoint().ScalarMult(random(t, g), g.Generator())
		restored, err := g.NewPoint().SetBytes(P.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		if !restored.Equal(P) {
			t.Error("point bytes roundtrip failed")
		}
	})

	t.Run("IdentityRoundtrip", func(t *testing.T) {
		id := g.NewPoint()
		if !id.IsIdentity() {
			t.Fatal("new point should be identity")
		}
		restored, err := g.NewPoint().SetBytes(id.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		if !restored.IsIdentity() {
			t.Error("identity roundtrip failed")
		}
		if g.Generator().IsIdentity() {
			t.Error("generator should not be identity")
		}
	})
}

func decode(t *testing.T, g group.Group) {
	t.Run("ScalarCanonical", func(t *testing.T) {
		a := random(t, g)
		got, err := group.DecodeScalar(g, a.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(a) {
			t.Error("decoded scalar differs")
		}
		if _, err := group.DecodeScalar(g, bytes.Repeat([]byte{0xff}, 32)); err == nil {
			t.Error("unreduced scalar accepted")
		}
		if _, err := group.DecodeScalar(g, a.Bytes()[1:]); err == nil {
			t.Error("short scalar accepted")
		}
	})

	t.Run("PointRejectsIdentity", func(t *testing.T) {
		if _, err := group.DecodePoint(g, g.NewPoint().Bytes()); err == nil {
			t.Error("identity accepted")
		}
	})

	t.Run("PointRejectsWrongLength", func(t *testing.T) {
		P := g.NewPoint().ScalarMult(random(t, g), g.Generator())
		enc := P.Bytes()
		if _, err := group.DecodePoint(g, enc[:len(enc)-1]); err == nil {
			t.Error("truncated point accepted")
		}
		if _, err := group.DecodePoint(g, append(enc, 0)); err == nil {
			t.Error("extended point accepted")
		}
	})
}
