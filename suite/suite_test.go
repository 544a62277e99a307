package suite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3rmion/thresh/group"
)

func TestLookup(t *testing.T) {
	for _, id := range []group.ID{group.Secp256k1, group.BabyJubjub, group.Ed25519} {
		s, err := Lookup(id)
		require.NoError(t, err)
		require.Equal(t, id, s.Group.ID())
		require.NotNil(t, s.Hasher)
	}

	_, err := Lookup(group.Unknown)
	require.Error(t, err)
}
