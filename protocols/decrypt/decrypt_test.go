package decrypt_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/localnet"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/decrypt"
	"github.com/f3rmion/thresh/suite"
	"github.com/f3rmion/thresh/wire"
)

var holders = []wire.ParticipantID{1, 2, 3}

func generateKeys(t *testing.T, curve group.ID) map[wire.ParticipantID]*protocol.KeyShare {
	t.Helper()
	shares, err := localnet.GenerateKeys(context.Background(), curve, 2, holders, localnet.Options{})
	require.NoError(t, err)
	return shares
}

func restore(data []byte) (*protocol.Instance, error) {
	return protocol.Restore(new(decrypt.Protocol), data, protocol.RestoreConfig{})
}

func decryptNetwork(t *testing.T, shares map[wire.ParticipantID]*protocol.KeyShare, ids []wire.ParticipantID, ct *decrypt.Ciphertext, opts localnet.Options) *localnet.Network {
	t.Helper()
	net := localnet.New(opts)
	for _, id := range ids {
		ks := shares[id]
		in, out, err := protocol.New(decrypt.New(ks, ct), protocol.Config{
			Self:    id,
			Session: []byte("decrypt-test"),
			Params:  protocol.Params{Curve: ks.Curve, Threshold: ks.Threshold, Participants: ids},
		})
		require.NoError(t, err)
		net.Join(in, out)
	}
	return net
}

func plaintexts(t *testing.T, res *localnet.Result) map[wire.ParticipantID][]byte {
	t.Helper()
	out := make(map[wire.ParticipantID][]byte)
	for id, a := range res.Artifacts {
		pt, ok := a.(*protocol.Plaintext)
		require.True(t, ok)
		out[id] = pt.Data
	}
	return out
}

func TestDecrypt(t *testing.T) {
	secret := []byte("the eagle lands at dawn")
	for _, curve := range []group.ID{group.Secp256k1, group.BabyJubjub, group.Ed25519} {
		t.Run(curve.String(), func(t *testing.T) {
			shares := generateKeys(t, curve)
			ct, err := decrypt.Encrypt(rand.Reader, curve, shares[1].GroupKey, secret)
			require.NoError(t, err)

			for _, ids := range [][]wire.ParticipantID{{1, 2}, {2, 3}, {1, 2, 3}} {
				res, err := decryptNetwork(t, shares, ids, ct, localnet.Options{}).Run(context.Background())
				require.NoError(t, err)
				require.Empty(t, res.Errors)
				for _, id := range ids {
					require.Equal(t, secret, plaintexts(t, res)[id])
				}
			}
		})
	}
}

func TestDecryptEmptyPlaintext(t *testing.T) {
	shares := generateKeys(t, group.Ed25519)
	ct, err := decrypt.Encrypt(rand.Reader, group.Ed25519, shares[1].GroupKey, nil)
	require.NoError(t, err)
	res, err := decryptNetwork(t, shares, holders, ct, localnet.Options{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 3)
	require.Empty(t, plaintexts(t, res)[2])
}

func TestDecryptSurvivesRestore(t *testing.T) {
	shares := generateKeys(t, group.Secp256k1)
	ct, err := decrypt.Encrypt(rand.Reader, group.Secp256k1, shares[1].GroupKey, []byte("resume"))
	require.NoError(t, err)
	res, err := decryptNetwork(t, shares, []wire.ParticipantID{1, 3}, ct, localnet.Options{
		OneByOne: true,
		Restore:  restore,
	}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("resume"), plaintexts(t, res)[3])
}

func TestBelowThreshold(t *testing.T) {
	shares := generateKeys(t, group.BabyJubjub)
	ct, err := decrypt.Encrypt(rand.Reader, group.BabyJubjub, shares[1].GroupKey, []byte("x"))
	require.NoError(t, err)

	in, out, err := protocol.New(decrypt.New(shares[3], ct), protocol.Config{
		Self:    3,
		Session: []byte("alone"),
		Params:  protocol.Params{Curve: group.BabyJubjub, Threshold: 2, Participants: []wire.ParticipantID{3}},
	})
	require.Equal(t, protocol.KindInsufficientShares, protocol.KindOf(err))
	require.Nil(t, in)
	require.Empty(t, out)
}

func TestRelayLearnsNoPartial(t *testing.T) {
	shares := generateKeys(t, group.Secp256k1)
	secret := []byte("for holders only")
	ct, err := decrypt.Encrypt(rand.Reader, group.Secp256k1, shares[1].GroupKey, secret)
	require.NoError(t, err)

	s, err := suite.Lookup(group.Secp256k1)
	require.NoError(t, err)
	c1, err := group.DecodePoint(s.Group, ct.C1)
	require.NoError(t, err)
	var partials [][]byte
	for _, id := range holders {
		x, err := group.DecodeScalar(s.Group, shares[id].Secret)
		require.NoError(t, err)
		partials = append(partials, s.Group.NewPoint().ScalarMult(x, c1).Bytes())
	}

	var relayed []*wire.Message
	res, err := decryptNetwork(t, shares, holders, ct, localnet.Options{
		Intercept: func(m *wire.Message) []*wire.Message {
			relayed = append(relayed, m.Clone())
			return []*wire.Message{m}
		},
	}).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, secret, plaintexts(t, res)[2])

	require.Len(t, relayed, len(holders)*(len(holders)-1))
	for _, m := range relayed {
		require.False(t, m.IsBroadcast())
		require.NotContains(t, string(m.Payload), string(secret))
		for _, d := range partials {
			require.False(t, bytes.Contains(m.Payload, d), "partial from %d travels in the clear", m.Sender)
		}
	}
}

func TestMisaddressedPartialRejected(t *testing.T) {
	shares := generateKeys(t, group.Ed25519)
	ct, err := decrypt.Encrypt(rand.Reader, group.Ed25519, shares[1].GroupKey, []byte("route"))
	require.NoError(t, err)

	// Party 3 receives what 2 sealed for 1.
	var forOne []byte
	var held *wire.Message
	res, err := decryptNetwork(t, shares, holders, ct, localnet.Options{
		Intercept: func(m *wire.Message) []*wire.Message {
			switch {
			case m.Sender == 2 && m.Recipient == 1:
				forOne = append([]byte(nil), m.Payload...)
				if held != nil {
					held.Payload = forOne
					return []*wire.Message{m, held}
				}
			case m.Sender == 2 && m.Recipient == 3:
				held = m.Clone()
				if forOne == nil {
					return nil
				}
				held.Payload = forOne
				return []*wire.Message{held}
			}
			return []*wire.Message{m}
		},
	}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("route"), plaintexts(t, res)[1])
	require.Equal(t, []byte("route"), plaintexts(t, res)[3])
}

func flipLast(m *wire.Message) *wire.Message {
	out := m.Clone()
	out.Payload = append([]byte(nil), m.Payload...)
	out.Payload[len(out.Payload)-1] ^= 0x01
	return out
}

func tamperFrom(senders ...wire.ParticipantID) func(*wire.Message) []*wire.Message {
	return func(m *wire.Message) []*wire.Message {
		for _, s := range senders {
			if m.Sender == s {
				return []*wire.Message{flipLast(m)}
			}
		}
		return []*wire.Message{m}
	}
}

func TestInvalidPartialsRejected(t *testing.T) {
	shares := generateKeys(t, group.Secp256k1)
	secret := []byte("still readable")
	ct, err := decrypt.Encrypt(rand.Reader, group.Secp256k1, shares[1].GroupKey, secret)
	require.NoError(t, err)

	t.Run("EnoughRemain", func(t *testing.T) {
		res, err := decryptNetwork(t, shares, holders, ct, localnet.Options{Intercept: tamperFrom(3)}).Run(context.Background())
		require.NoError(t, err)
		require.Empty(t, res.Errors)
		for _, id := range holders {
			require.Equal(t, secret, plaintexts(t, res)[id])
		}
	})

	t.Run("TooFewRemain", func(t *testing.T) {
		res, err := decryptNetwork(t, shares, holders, ct, localnet.Options{Intercept: tamperFrom(2, 3)}).Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, protocol.KindInsufficientShares, protocol.KindOf(res.Errors[1]))
		require.Nil(t, res.Artifacts[1])
	})
}

func TestAuthenticationFailure(t *testing.T) {
	shares := generateKeys(t, group.Ed25519)

	t.Run("TamperedBlob", func(t *testing.T) {
		ct, err := decrypt.Encrypt(rand.Reader, group.Ed25519, shares[1].GroupKey, []byte("payload"))
		require.NoError(t, err)
		ct.Sealed[len(ct.Sealed)-1] ^= 0x80
		res, err := decryptNetwork(t, shares, holders, ct, localnet.Options{}).Run(context.Background())
		require.NoError(t, err)
		for _, id := range holders {
			require.Equal(t, protocol.KindAuthenticationFailed, protocol.KindOf(res.Errors[id]))
		}
	})

	t.Run("OtherGroupKey", func(t *testing.T) {
		other := generateKeys(t, group.Ed25519)
		ct, err := decrypt.Encrypt(rand.Reader, group.Ed25519, other[1].GroupKey, []byte("payload"))
		require.NoError(t, err)
		res, err := decryptNetwork(t, shares, []wire.ParticipantID{1, 2}, ct, localnet.Options{}).Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, protocol.KindAuthenticationFailed, protocol.KindOf(res.Errors[1]))
	})
}

func TestCiphertextEncoding(t *testing.T) {
	shares := generateKeys(t, group.Secp256k1)
	ct, err := decrypt.Encrypt(rand.Reader, group.Secp256k1, shares[1].GroupKey, []byte("abc"))
	require.NoError(t, err)

	data, err := ct.Marshal()
	require.NoError(t, err)
	parsed, err := decrypt.ParseCiphertext(data)
	require.NoError(t, err)
	require.Equal(t, ct, parsed)

	_, err = decrypt.ParseCiphertext([]byte{0xa0})
	require.Error(t, err)

	short := *ct
	short.Sealed = short.Sealed[:10]
	data, err = short.Marshal()
	require.NoError(t, err)
	_, err = decrypt.ParseCiphertext(data)
	require.Error(t, err)
}

func TestCiphertextCurveMismatch(t *testing.T) {
	shares := generateKeys(t, group.Secp256k1)
	ct, err := decrypt.Encrypt(rand.Reader, group.Secp256k1, shares[1].GroupKey, []byte("abc"))
	require.NoError(t, err)
	ct.Curve = group.Ed25519

	_, _, err = protocol.New(decrypt.New(shares[1], ct), protocol.Config{
		Self:    1,
		Session: []byte("mismatch"),
		Params:  protocol.Params{Curve: group.Secp256k1, Threshold: 2, Participants: holders},
	})
	require.Equal(t, protocol.KindInvalidParameters, protocol.KindOf(err))
}
