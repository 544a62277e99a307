package frostsign_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/localnet"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/frostsign"
	"github.com/f3rmion/thresh/wire"
)

var holders = []wire.ParticipantID{1, 2, 3}

func generateKeys(t *testing.T, curve group.ID, threshold int, ids []wire.ParticipantID) map[wire.ParticipantID]*protocol.KeyShare {
	t.Helper()
	shares, err := localnet.GenerateKeys(context.Background(), curve, threshold, ids, localnet.Options{})
	require.NoError(t, err)
	return shares
}

func restore(data []byte) (*protocol.Instance, error) {
	return protocol.Restore(new(frostsign.Protocol), data, protocol.RestoreConfig{})
}

func signNetwork(t *testing.T, shares map[wire.ParticipantID]*protocol.KeyShare, signers []wire.ParticipantID, message []byte, opts localnet.Options) *localnet.Network {
	t.Helper()
	net := localnet.New(opts)
	for _, id := range signers {
		ks := shares[id]
		in, out, err := protocol.New(frostsign.New(ks, message), protocol.Config{
			Self:    id,
			Session: []byte("frostsign-test"),
			Params:  protocol.Params{Curve: ks.Curve, Threshold: ks.Threshold, Participants: signers},
		})
		require.NoError(t, err)
		net.Join(in, out)
	}
	return net
}

func TestSign(t *testing.T) {
	message := []byte("transfer 10 units")
	for _, curve := range []group.ID{group.Secp256k1, group.BabyJubjub, group.Ed25519} {
		t.Run(curve.String(), func(t *testing.T) {
			shares := generateKeys(t, curve, 2, holders)
			groupKey := shares[1].GroupKey

			for _, signers := range [][]wire.ParticipantID{{1, 2}, {1, 3}, {2, 3}, {1, 2, 3}} {
				res, err := signNetwork(t, shares, signers, message, localnet.Options{Seed: int64(len(signers))}).Run(context.Background())
				require.NoError(t, err)
				require.Empty(t, res.Errors)
				require.Len(t, res.Artifacts, len(signers))

				first := res.Artifacts[signers[0]].(*protocol.Signature)
				require.Equal(t, protocol.SchemeSchnorr, first.Scheme)
				require.Equal(t, curve, first.Curve)
				require.NoError(t, frostsign.Verify(groupKey, message, first))
				require.Error(t, frostsign.Verify(groupKey, []byte("transfer 11 units"), first))
				for _, id := range signers {
					require.Equal(t, first, res.Artifacts[id])
				}
			}

			// The caller's key shares survive the runs.
			for _, ks := range shares {
				require.NoError(t, ks.Validate())
			}
		})
	}
}

func TestSignSurvivesRestore(t *testing.T) {
	shares := generateKeys(t, group.Secp256k1, 2, holders)
	signers := []wire.ParticipantID{1, 3}
	res, err := signNetwork(t, shares, signers, []byte("resume"), localnet.Options{
		Seed:     9,
		OneByOne: true,
		Restore:  restore,
	}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 2)
	require.NoError(t, frostsign.Verify(shares[1].GroupKey, []byte("resume"), res.Artifacts[1].(*protocol.Signature)))
}

func TestBelowThreshold(t *testing.T) {
	shares := generateKeys(t, group.Ed25519, 2, holders)

	t.Run("Alone", func(t *testing.T) {
		ks := shares[2]
		in, out, err := protocol.New(frostsign.New(ks, []byte("m")), protocol.Config{
			Self:    2,
			Session: []byte("short"),
			Params:  protocol.Params{Curve: ks.Curve, Threshold: 2, Participants: []wire.ParticipantID{2}},
		})
		require.NoError(t, err)
		require.Equal(t, protocol.Failed, in.Status())
		require.Equal(t, protocol.KindInsufficientShares, protocol.KindOf(in.Err()))
		for _, m := range out {
			require.Equal(t, uint32(1), m.Round, "no signature share may leave")
		}
	})

	t.Run("TwoOfThreeThreshold", func(t *testing.T) {
		shares := generateKeys(t, group.Ed25519, 3, []wire.ParticipantID{1, 2, 3, 4})
		signers := []wire.ParticipantID{2, 4}
		var released int
		res, err := signNetwork(t, shares, signers, []byte("m"), localnet.Options{
			Intercept: func(m *wire.Message) []*wire.Message {
				if m.Round > 1 {
					released++
				}
				return []*wire.Message{m}
			},
		}).Run(context.Background())
		require.NoError(t, err)
		require.Empty(t, res.Artifacts)
		require.Zero(t, released)
		for _, id := range signers {
			require.Equal(t, protocol.KindInsufficientShares, protocol.KindOf(res.Errors[id]))
		}
	})
}

func flipLast(m *wire.Message) *wire.Message {
	out := m.Clone()
	out.Payload = append([]byte(nil), m.Payload...)
	out.Payload[len(out.Payload)-1] ^= 0x01
	return out
}

func TestTamperDetection(t *testing.T) {
	shares := generateKeys(t, group.Secp256k1, 2, holders)
	signers := []wire.ParticipantID{1, 2, 3}

	tests := []struct {
		name    string
		round   uint32
		from    wire.ParticipantID
		victims []wire.ParticipantID
	}{
		{"Commitment", 1, 3, []wire.ParticipantID{1, 2}},
		{"SignatureShare", 2, 2, []wire.ParticipantID{1, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := signNetwork(t, shares, signers, []byte("m"), localnet.Options{
				Intercept: func(m *wire.Message) []*wire.Message {
					if m.Round == tc.round && m.Sender == tc.from {
						return []*wire.Message{flipLast(m)}
					}
					return []*wire.Message{m}
				},
			}).Run(context.Background())
			if err != nil {
				require.ErrorIs(t, err, localnet.ErrStalled)
			}
			for _, id := range tc.victims {
				require.Equal(t, protocol.KindInvalidShare, protocol.KindOf(res.Errors[id]), "party %d", id)
				require.Equal(t, tc.from, protocol.CulpritOf(res.Errors[id]))
				require.Nil(t, res.Artifacts[id])
			}
		})
	}
}

func TestKeyShareMismatch(t *testing.T) {
	shares := generateKeys(t, group.BabyJubjub, 2, holders)
	ks := shares[1]

	tests := []struct {
		name   string
		self   wire.ParticipantID
		share  *protocol.KeyShare
		params protocol.Params
	}{
		{"Threshold", 1, ks, protocol.Params{Curve: ks.Curve, Threshold: 3, Participants: holders}},
		{"Curve", 1, ks, protocol.Params{Curve: group.Ed25519, Threshold: 2, Participants: holders}},
		{"NotAHolder", 1, ks, protocol.Params{Curve: ks.Curve, Threshold: 2, Participants: []wire.ParticipantID{1, 9}}},
		{"ForeignShare", 2, ks, protocol.Params{Curve: ks.Curve, Threshold: 2, Participants: holders}},
		{"MissingShare", 1, nil, protocol.Params{Curve: ks.Curve, Threshold: 2, Participants: holders}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := protocol.New(frostsign.New(tc.share, []byte("m")), protocol.Config{
				Self:    tc.self,
				Session: []byte("mismatch"),
				Params:  tc.params,
			})
			require.Error(t, err)
			require.Equal(t, protocol.KindInvalidParameters, protocol.KindOf(err))
		})
	}
}

func TestVerifyRejectsForeignScheme(t *testing.T) {
	sig := &protocol.Signature{Scheme: protocol.SchemeECDSA, Curve: group.Secp256k1}
	require.Error(t, frostsign.Verify(nil, nil, sig))
	require.Error(t, frostsign.Verify(nil, nil, nil))
}
