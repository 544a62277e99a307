// Package suite resolves a curve identifier to the group and hash suite the
// protocols run over.
package suite

import (
	"fmt"

	"github.com/f3rmion/thresh/bjj"
	"github.com/f3rmion/thresh/ed25519"
	"github.com/f3rmion/thresh/frost"
	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/secp256k1"
)

// Suite pairs a group with the FROST hash functions used on it.
type Suite struct {
	Group  group.Group
	Hasher frost.Hasher
}

// Lookup returns the suite for id.
func Lookup(id group.ID) (Suite, error) {
	switch id {
	case group.Secp256k1:
		return Suite{Group: secp256k1.New(), Hasher: &frost.SHA256Hasher{}}, nil
	case group.BabyJubjub:
		return Suite{Group: bjj.New(), Hasher: frost.NewBlake2bHasher()}, nil
	case group.Ed25519:
		return Suite{Group: ed25519.New(), Hasher: &frost.SHA256Hasher{}}, nil
	default:
		return Suite{}, fmt.Errorf("suite: unsupported curve %d", id)
	}
}

// FROST returns a FROST instance over the suite.
func (s Suite) FROST(threshold, total int) (*frost.FROST, error) {
	return frost.NewWithHasher(s.Group, threshold, total, s.Hasher)
}
