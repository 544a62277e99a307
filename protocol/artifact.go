package protocol

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/suite"
	"github.com/f3rmion/thresh/wire"
)

// ArtifactKind discriminates encoded artifacts.
type ArtifactKind uint8

const (
	ArtifactKeyShare ArtifactKind = iota + 1
	ArtifactSignature
	ArtifactPlaintext
)

// Artifact is the final output of a run. Ownership passes to the caller.
type Artifact interface {
	Kind() ArtifactKind
}

// KeyShare is the KeyGen output and the key context for signing and
// decryption. PublicShares holds X_k for every key holder, including self.
type KeyShare struct {
	Curve        group.ID                      `cbor:"1,keyasint"`
	Threshold    int                           `cbor:"2,keyasint"`
	ID           wire.ParticipantID            `cbor:"3,keyasint"`
	Secret       []byte                        `cbor:"4,keyasint"`
	GroupKey     []byte                        `cbor:"5,keyasint"`
	PublicShares map[wire.ParticipantID][]byte `cbor:"6,keyasint"`
}

func (*KeyShare) Kind() ArtifactKind { return ArtifactKeyShare }

// Participants returns every key holder in ascending order.
func (k *KeyShare) Participants() []wire.ParticipantID {
	ids := make([]wire.ParticipantID, 0, len(k.PublicShares))
	for id := range k.PublicShares {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Wipe zeroes the secret share.
func (k *KeyShare) Wipe() { wipeBytes(k.Secret) }

// Clone returns a deep copy, so that a run can wipe its copy without
// touching the caller's.
func (k *KeyShare) Clone() *KeyShare {
	if k == nil {
		return nil
	}
	c := *k
	c.Secret = append([]byte(nil), k.Secret...)
	c.GroupKey = append([]byte(nil), k.GroupKey...)
	c.PublicShares = make(map[wire.ParticipantID][]byte, len(k.PublicShares))
	for id, x := range k.PublicShares {
		c.PublicShares[id] = append([]byte(nil), x...)
	}
	return &c
}

// Validate decodes every field under its curve and checks that the secret
// share matches the published X_id.
func (k *KeyShare) Validate() error {
	s, err := suite.Lookup(k.Curve)
	if err != nil {
		return err
	}
	n := len(k.PublicShares)
	if k.Threshold < 1 || k.Threshold > n {
		return errors.Errorf("threshold %d out of range for %d holders", k.Threshold, n)
	}
	if _, err := group.DecodePoint(s.Group, k.GroupKey); err != nil {
		return errors.Wrap(err, "group key")
	}
	for id, enc := range k.PublicShares {
		if id == wire.Broadcast {
			return errors.New("public share for reserved id 0")
		}
		if _, err := group.DecodePoint(s.Group, enc); err != nil {
			return errors.Wrapf(err, "public share %d", id)
		}
	}
	x, err := group.DecodeScalar(s.Group, k.Secret)
	if err != nil {
		return errors.Wrap(err, "secret share")
	}
	own, ok := k.PublicShares[k.ID]
	if !ok {
		return errors.Errorf("no public share for self %d", k.ID)
	}
	X := s.Group.NewPoint().ScalarMult(x, s.Group.Generator())
	group.Wipe(s.Group, x)
	if !bytes.Equal(X.Bytes(), own) {
		return errors.New("secret share does not match public share")
	}
	return nil
}

// Scheme names the signature algorithm of a [Signature].
type Scheme uint8

const (
	SchemeECDSA Scheme = iota + 1
	SchemeSchnorr
)

// Signature is a threshold signature. For ECDSA, R and S are the 32-byte
// big-endian r and s. For Schnorr, R is the encoded commitment point and S
// the response scalar.
type Signature struct {
	Scheme Scheme   `cbor:"1,keyasint"`
	Curve  group.ID `cbor:"2,keyasint"`
	R      []byte   `cbor:"3,keyasint"`
	S      []byte   `cbor:"4,keyasint"`
}

func (*Signature) Kind() ArtifactKind { return ArtifactSignature }

// Bytes returns R || S.
func (s *Signature) Bytes() []byte {
	return append(append([]byte(nil), s.R...), s.S...)
}

// Plaintext is the result of threshold decryption.
type Plaintext struct {
	Data []byte `cbor:"1,keyasint"`
}

func (*Plaintext) Kind() ArtifactKind { return ArtifactPlaintext }

type encodedArtifact struct {
	Kind ArtifactKind `cbor:"1,keyasint"`
	Body []byte       `cbor:"2,keyasint"`
}

// EncodeArtifact serializes a with its kind.
func EncodeArtifact(a Artifact) ([]byte, error) {
	body, err := EncodePayload(a)
	if err != nil {
		return nil, err
	}
	return EncodePayload(encodedArtifact{Kind: a.Kind(), Body: body})
}

// DecodeArtifact parses an artifact produced by [EncodeArtifact].
func DecodeArtifact(data []byte) (Artifact, error) {
	var enc encodedArtifact
	if err := DecodePayload(data, &enc); err != nil {
		return nil, err
	}
	var a Artifact
	switch enc.Kind {
	case ArtifactKeyShare:
		a = &KeyShare{}
	case ArtifactSignature:
		a = &Signature{}
	case ArtifactPlaintext:
		a = &Plaintext{}
	default:
		return nil, errors.Errorf("unknown artifact kind %d", enc.Kind)
	}
	if err := DecodePayload(enc.Body, a); err != nil {
		return nil, err
	}
	return a, nil
}

// DecodeKeyShare parses and validates an encoded key share artifact.
func DecodeKeyShare(data []byte) (*KeyShare, error) {
	a, err := DecodeArtifact(data)
	if err != nil {
		return nil, err
	}
	ks, ok := a.(*KeyShare)
	if !ok {
		return nil, errors.Errorf("artifact kind %d is not a key share", a.Kind())
	}
	if err := ks.Validate(); err != nil {
		return nil, err
	}
	return ks, nil
}
