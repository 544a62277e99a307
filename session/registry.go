package session

import (
	"io"

	"github.com/google/uuid"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/decrypt"
	"github.com/f3rmion/thresh/protocols/ecdsasign"
	"github.com/f3rmion/thresh/protocols/frostsign"
	"github.com/f3rmion/thresh/protocols/keygen"
	"github.com/f3rmion/thresh/wire"
)

// Request describes a new run.
type Request struct {
	Tag  protocol.Tag
	Self wire.ParticipantID
	// Session must be identical for every participant of the run.
	Session []byte
	// Curve and Threshold default to the key share's for signing and
	// decryption.
	Curve        group.ID
	Threshold    int
	Participants []wire.ParticipantID

	// KeyShare is the KeyGen output, required for signing and decryption.
	KeyShare *protocol.KeyShare
	// Message is the payload to sign.
	Message []byte
	// Ciphertext is the value to decrypt.
	Ciphertext *decrypt.Ciphertext
}

// Options are the local, non-serialized collaborators of a session.
type Options struct {
	Logger logging.Logger
	// Rand seeds the instance. Defaults to crypto/rand.
	Rand io.Reader
	// PaillierBits sizes the Paillier modulus for ECDSA signing. Zero
	// selects ecdsasign.DefaultPaillierBits.
	PaillierBits int
	OnDiscard    func(reason string)
}

// NewID returns a fresh random session identifier.
func NewID() []byte {
	id := uuid.New()
	return id[:]
}

// blank returns an empty protocol for tag, for restoring into. The switch
// is the closed set of protocols this module can run.
func blank(tag protocol.Tag) (protocol.Protocol, error) {
	switch tag {
	case protocol.TagKeyGen:
		return new(keygen.Protocol), nil
	case protocol.TagSignECDSA:
		return new(ecdsasign.Protocol), nil
	case protocol.TagSignSchnorr:
		return new(frostsign.Protocol), nil
	case protocol.TagDecrypt:
		return new(decrypt.Protocol), nil
	default:
		return nil, protocol.Failf(protocol.KindUnknownProtocolTag, 0, "protocol tag %d", uint32(tag))
	}
}

func build(req Request, opts Options) (protocol.Protocol, error) {
	switch req.Tag {
	case protocol.TagKeyGen:
		return keygen.New(), nil
	case protocol.TagSignECDSA:
		return ecdsasign.New(req.KeyShare, req.Message, opts.PaillierBits), nil
	case protocol.TagSignSchnorr:
		return frostsign.New(req.KeyShare, req.Message), nil
	case protocol.TagDecrypt:
		return decrypt.New(req.KeyShare, req.Ciphertext), nil
	default:
		return nil, protocol.Failf(protocol.KindUnknownProtocolTag, 0, "protocol tag %d", uint32(req.Tag))
	}
}

// New creates a session and returns it with its round 1 messages.
func New(req Request, opts Options) (*Session, []*wire.Message, error) {
	p, err := build(req, opts)
	if err != nil {
		return nil, nil, err
	}
	params := protocol.Params{Curve: req.Curve, Threshold: req.Threshold, Participants: req.Participants}
	if ks := req.KeyShare; ks != nil && req.Tag != protocol.TagKeyGen {
		if params.Curve == group.Unknown {
			params.Curve = ks.Curve
		}
		if params.Threshold == 0 {
			params.Threshold = ks.Threshold
		}
	}
	in, out, err := protocol.New(p, protocol.Config{
		Self:      req.Self,
		Session:   req.Session,
		Params:    params,
		Logger:    opts.Logger,
		Rand:      opts.Rand,
		OnDiscard: opts.OnDiscard,
	})
	if err != nil {
		return nil, nil, err
	}
	return &Session{in: in}, out, nil
}

// Restore rebuilds a session from [Session.MarshalBinary] output. An
// unknown tag is KindUnknownProtocolTag; any other problem is
// KindCorruptState. Nothing is partially restored.
func Restore(data []byte, opts Options) (*Session, error) {
	tag, err := protocol.PeekTag(data)
	if err != nil {
		return nil, err
	}
	p, err := blank(tag)
	if err != nil {
		return nil, err
	}
	in, err := protocol.Restore(p, data, protocol.RestoreConfig{Logger: opts.Logger, OnDiscard: opts.OnDiscard})
	if err != nil {
		return nil, err
	}
	return &Session{in: in}, nil
}

// RestoreInstance is [Restore] without the session wrapper, in the shape
// localnet expects.
func RestoreInstance(data []byte) (*protocol.Instance, error) {
	s, err := Restore(data, Options{})
	if err != nil {
		return nil, err
	}
	return s.in, nil
}
