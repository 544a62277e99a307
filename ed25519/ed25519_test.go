package ed25519

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/group/grouptest"
)

func TestConformance(t *testing.T) {
	grouptest.Run(t, New())
}

func TestID(t *testing.T) {
	if New().ID() != group.Ed25519 {
		t.Error("unexpected group id")
	}
}

func TestOrderReducesToZero(t *testing.T) {
	g := New()
	s, err := g.NewScalar().SetBytes(g.Order())
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsZero() {
		t.Error("order should reduce to zero")
	}
}

func TestRejectsSmallOrder(t *testing.T) {
	// (0, -1) has order 2.
	enc, _ := hex.DecodeString("ecffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff7f")
	if _, err := New().NewPoint().SetBytes(enc); err == nil {
		t.Error("small-order point accepted")
	}
}

func TestGeneratorEncoding(t *testing.T) {
	want := "5866666666666666666666666666666666666666666666666666666666666666"
	if got := hex.EncodeToString(New().Generator().Bytes()); got != want {
		t.Errorf("generator encoding %s", got)
	}
}

func TestScalarEndianness(t *testing.T) {
	g := New()
	one := group.ScalarFromUint64(g, 1)
	b := one.Bytes()
	if b[31] != 1 {
		t.Errorf("scalar one encodes as %x", b)
	}
	P := g.NewPoint().ScalarMult(one, g.Generator())
	if !P.Equal(g.Generator()) {
		t.Error("1*G != G")
	}
	s, _ := g.RandomScalar(rand.Reader)
	if _, err := group.DecodeScalar(g, s.Bytes()); err != nil {
		t.Error(err)
	}
}
