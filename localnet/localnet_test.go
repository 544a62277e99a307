package localnet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/localnet"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/keygen"
	"github.com/f3rmion/thresh/wire"
)

var ids = []wire.ParticipantID{1, 2, 3}

func join(t *testing.T, net *localnet.Network) {
	t.Helper()
	params := protocol.Params{Curve: group.Secp256k1, Threshold: 2, Participants: ids}
	for _, id := range ids {
		in, out, err := protocol.New(keygen.New(), protocol.Config{Self: id, Session: []byte("net"), Params: params})
		require.NoError(t, err)
		net.Join(in, out)
	}
}

func restoreKeyGen(data []byte) (*protocol.Instance, error) {
	return protocol.Restore(keygen.New(), data, protocol.RestoreConfig{})
}

func TestGenerateKeys(t *testing.T) {
	shares, err := localnet.GenerateKeys(context.Background(), group.BabyJubjub, 2, ids, localnet.Options{Seed: 7})
	require.NoError(t, err)
	require.Len(t, shares, len(ids))
	for _, id := range ids {
		require.NoError(t, shares[id].Validate())
		require.Equal(t, shares[1].GroupKey, shares[id].GroupKey)
	}
}

func TestRunWithRestore(t *testing.T) {
	net := localnet.New(localnet.Options{Seed: 3, Restore: restoreKeyGen, OneByOne: true})
	join(t, net)
	first := net.Instance(1)

	res, err := net.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Artifacts, len(ids))
	require.NotSame(t, first, net.Instance(1))
	require.Nil(t, net.Instance(9))
}

func TestRetransmissionsAreHarmless(t *testing.T) {
	net := localnet.New(localnet.Options{
		Intercept: func(m *wire.Message) []*wire.Message {
			return []*wire.Message{m, m.Clone()}
		},
	})
	join(t, net)
	res, err := net.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Artifacts, len(ids))
}

func TestStalled(t *testing.T) {
	net := localnet.New(localnet.Options{
		Intercept: func(m *wire.Message) []*wire.Message {
			if m.Sender == 3 {
				return nil
			}
			return []*wire.Message{m}
		},
	})
	join(t, net)
	res, err := net.Run(context.Background())
	require.ErrorIs(t, err, localnet.ErrStalled)
	require.Empty(t, res.Artifacts)
	require.Empty(t, res.Errors)
	require.Equal(t, protocol.Continue, net.Instance(1).Status())
}

func TestMaxSteps(t *testing.T) {
	net := localnet.New(localnet.Options{MaxSteps: 1})
	join(t, net)
	_, err := net.Run(context.Background())
	require.Error(t, err)
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	net := localnet.New(localnet.Options{})
	join(t, net)
	_, err := net.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
