package secp256k1

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/group/grouptest"
)

func TestConformance(t *testing.T) {
	grouptest.Run(t, New())
}

func TestID(t *testing.T) {
	if New().ID() != group.Secp256k1 {
		t.Error("unexpected group id")
	}
}

func TestMatchesBtcec(t *testing.T) {
	g := New()
	s, err := g.RandomScalar(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	P := g.NewPoint().ScalarMult(s, g.Generator())

	_, pub := btcec.PrivKeyFromBytes(s.Bytes())
	if !bytes.Equal(pub.SerializeCompressed(), P.Bytes()) {
		t.Error("public key differs from btcec derivation")
	}
}

func TestRejectsBadPrefix(t *testing.T) {
	g := New()
	s, _ := g.RandomScalar(rand.Reader)
	enc := g.NewPoint().ScalarMult(s, g.Generator()).Bytes()
	enc[0] = 0x05
	if _, err := g.NewPoint().SetBytes(enc); err == nil {
		t.Error("invalid prefix accepted")
	}
}

func TestSubOfSelfIsIdentity(t *testing.T) {
	g := New()
	s, _ := g.RandomScalar(rand.Reader)
	P := g.NewPoint().ScalarMult(s, g.Generator())
	if !g.NewPoint().Sub(P, P).IsIdentity() {
		t.Error("P - P is not identity")
	}
	if !bytes.Equal(g.NewPoint().Bytes(), make([]byte, PointLen)) {
		t.Error("identity encoding is not all zero")
	}
}
