package protocol

import (
	"github.com/f3rmion/thresh/frost"
	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/wire"
)

// KeyContext is a key share decoded for use in a signing or decryption run.
type KeyContext struct {
	Group        group.Group
	FROST        *frost.FROST
	Share        *frost.KeyShare
	PublicShares map[wire.ParticipantID]group.Point
}

// Bind validates k against the run described by env and decodes it. Every
// mismatch is KindInvalidParameters: the curve, the threshold, self, and
// any participant that does not hold a share.
func (k *KeyShare) Bind(env *Env) (*KeyContext, error) {
	if k == nil {
		return nil, Failf(KindInvalidParameters, 0, "missing key share")
	}
	if err := k.Validate(); err != nil {
		return nil, Fail(KindInvalidParameters, 0, err)
	}
	switch {
	case k.Curve != env.Params.Curve:
		return nil, Failf(KindInvalidParameters, 0, "key share is on %s, run on %s", k.Curve, env.Params.Curve)
	case k.Threshold != env.Params.Threshold:
		return nil, Failf(KindInvalidParameters, 0, "key share threshold %d, run threshold %d", k.Threshold, env.Params.Threshold)
	case k.ID != env.Self:
		return nil, Failf(KindInvalidParameters, 0, "key share belongs to %d, not %d", k.ID, env.Self)
	}
	for _, id := range env.Params.Participants {
		if _, ok := k.PublicShares[id]; !ok {
			return nil, Failf(KindInvalidParameters, 0, "participant %d holds no key share", id)
		}
	}

	g := env.Suite.Group
	f, err := env.Suite.FROST(k.Threshold, len(k.PublicShares))
	if err != nil {
		return nil, Fail(KindInvalidParameters, 0, err)
	}
	kc := &KeyContext{
		Group:        g,
		FROST:        f,
		PublicShares: make(map[wire.ParticipantID]group.Point, len(k.PublicShares)),
	}
	// Validate has already decoded every field once.
	for id, enc := range k.PublicShares {
		kc.PublicShares[id], _ = group.DecodePoint(g, enc)
	}
	secret, _ := group.DecodeScalar(g, k.Secret)
	groupKey, _ := group.DecodePoint(g, k.GroupKey)
	kc.Share = &frost.KeyShare{
		ID:        uint16(k.ID),
		SecretKey: secret,
		PublicKey: kc.PublicShares[k.ID],
		GroupKey:  groupKey,
	}
	return kc, nil
}

// Wipe zeroes the decoded secret share.
func (kc *KeyContext) Wipe() {
	if kc != nil && kc.Share != nil {
		group.Wipe(kc.Group, kc.Share.SecretKey)
	}
}
