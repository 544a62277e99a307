package localnet

import (
	"context"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/keygen"
	"github.com/f3rmion/thresh/wire"
)

// GenerateKeys runs key generation among ids and returns every party's key
// share. It fails if any party fails.
func GenerateKeys(ctx context.Context, curve group.ID, threshold int, ids []wire.ParticipantID, opts Options) (map[wire.ParticipantID]*protocol.KeyShare, error) {
	session := []byte("localnet/keygen")
	params := protocol.Params{Curve: curve, Threshold: threshold, Participants: ids}

	net := New(opts)
	for _, id := range ids {
		in, out, err := protocol.New(keygen.New(), protocol.Config{
			Self:    id,
			Session: session,
			Params:  params,
			Logger:  opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		net.Join(in, out)
	}
	res, err := net.Run(ctx)
	if err != nil {
		return nil, err
	}
	shares := make(map[wire.ParticipantID]*protocol.KeyShare, len(ids))
	for _, id := range ids {
		if err := res.Errors[id]; err != nil {
			return nil, errors.Wrapf(err, "party %d", id)
		}
		ks, ok := res.Artifacts[id].(*protocol.KeyShare)
		if !ok {
			return nil, errors.Errorf("party %d produced no key share", id)
		}
		shares[id] = ks
	}
	return shares, nil
}
