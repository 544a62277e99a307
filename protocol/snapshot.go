package protocol

import (
	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/suite"
	"github.com/f3rmion/thresh/wire"
)

const (
	snapshotMagic   = "THRS"
	snapshotVersion = 1
)

type faultState struct {
	Kind    ErrorKind          `cbor:"1,keyasint"`
	Culprit wire.ParticipantID `cbor:"2,keyasint"`
	Message string             `cbor:"3,keyasint"`
}

type snapshot struct {
	Magic        string               `cbor:"1,keyasint"`
	Version      uint8                `cbor:"2,keyasint"`
	Tag          Tag                  `cbor:"3,keyasint"`
	Self         wire.ParticipantID   `cbor:"4,keyasint"`
	Session      []byte               `cbor:"5,keyasint"`
	Curve        group.ID             `cbor:"6,keyasint"`
	Threshold    int                  `cbor:"7,keyasint"`
	Participants []wire.ParticipantID `cbor:"8,keyasint"`
	Seed         []byte               `cbor:"9,keyasint"`
	Round        uint32               `cbor:"10,keyasint"`
	Status       Status               `cbor:"11,keyasint"`
	Fault        *faultState          `cbor:"12,keyasint,omitempty"`
	Current      [][]byte             `cbor:"13,keyasint"`
	Pending      [][]byte             `cbor:"14,keyasint"`
	Artifact     []byte               `cbor:"15,keyasint,omitempty"`
	Body         []byte               `cbor:"16,keyasint,omitempty"`
}

type header struct {
	Magic   string `cbor:"1,keyasint"`
	Version uint8  `cbor:"2,keyasint"`
	Tag     Tag    `cbor:"3,keyasint"`
}

// MarshalBinary serializes the complete instance state: parameters, seed,
// round, buffered messages, outcome and the protocol body. The encoding is
// deterministic.
func (in *Instance) MarshalBinary() ([]byte, error) {
	s := snapshot{
		Magic:        snapshotMagic,
		Version:      snapshotVersion,
		Tag:          in.proto.Tag(),
		Self:         in.env.Self,
		Session:      in.env.Session,
		Curve:        in.env.Params.Curve,
		Threshold:    in.env.Params.Threshold,
		Participants: in.env.Params.Participants,
		Seed:         in.env.seed,
		Round:        in.round,
		Status:       in.status,
	}
	for _, m := range sortedMessages(in.current) {
		s.Current = append(s.Current, m.Marshal())
	}
	for _, m := range in.pending {
		s.Pending = append(s.Pending, m.Marshal())
	}

	switch in.status {
	case Continue:
		body, err := in.proto.MarshalBody()
		if err != nil {
			return nil, errors.Wrap(err, "marshal body")
		}
		s.Body = body
	case Done:
		art, err := EncodeArtifact(in.artifact)
		if err != nil {
			return nil, err
		}
		s.Artifact = art
	case Failed:
		s.Fault = &faultState{Kind: in.fault.Kind, Culprit: in.fault.Culprit}
		if in.fault.Err != nil {
			s.Fault.Message = in.fault.Err.Error()
		}
	}
	return EncodePayload(s)
}

// PeekTag returns the protocol tag of a snapshot without decoding the rest.
func PeekTag(data []byte) (Tag, error) {
	var h header
	if err := decodeHeader(data, &h); err != nil {
		return 0, Fail(KindCorruptState, 0, err)
	}
	if h.Magic != snapshotMagic || h.Version != snapshotVersion {
		return 0, Failf(KindCorruptState, 0, "not a snapshot (magic %q, version %d)", h.Magic, h.Version)
	}
	return h.Tag, nil
}

func decodeHeader(data []byte, h *header) error {
	// The header is a prefix view of the snapshot map, so unknown fields are
	// expected here.
	var full map[uint64]any
	if err := decMode.Unmarshal(data, &full); err != nil {
		return err
	}
	magic, _ := full[1].(string)
	version, _ := full[2].(uint64)
	tag, _ := full[3].(uint64)
	h.Magic = magic
	h.Version = uint8(version)
	h.Tag = Tag(tag)
	return nil
}

// RestoreConfig carries the non-serialized collaborators of a restored
// instance.
type RestoreConfig struct {
	Logger    logging.Logger
	OnDiscard func(reason string)
}

// Restore rebuilds an instance of p from MarshalBinary output. p must be a
// fresh value of the protocol named by the snapshot tag. Any structural
// problem yields KindCorruptState and no instance.
func Restore(p Protocol, data []byte, cfg RestoreConfig) (*Instance, error) {
	var s snapshot
	if err := DecodePayload(data, &s); err != nil {
		return nil, Fail(KindCorruptState, 0, err)
	}
	if s.Magic != snapshotMagic || s.Version != snapshotVersion {
		return nil, Failf(KindCorruptState, 0, "not a snapshot (magic %q, version %d)", s.Magic, s.Version)
	}
	if s.Tag != p.Tag() {
		return nil, Failf(KindCorruptState, 0, "snapshot tag %s restored as %s", s.Tag, p.Tag())
	}

	params := Params{Curve: s.Curve, Threshold: s.Threshold, Participants: s.Participants}
	if err := params.Validate(s.Self); err != nil {
		return nil, Fail(KindCorruptState, 0, err)
	}
	for i := 1; i < len(params.Participants); i++ {
		if params.Participants[i-1] >= params.Participants[i] {
			return nil, Failf(KindCorruptState, 0, "participants not sorted")
		}
	}
	st, err := suite.Lookup(s.Curve)
	if err != nil {
		return nil, Fail(KindCorruptState, 0, err)
	}
	if len(s.Seed) != SeedSize || len(s.Session) == 0 {
		return nil, Failf(KindCorruptState, 0, "bad seed or session")
	}
	if s.Round < 1 || int(s.Round) > p.Rounds() {
		return nil, Failf(KindCorruptState, 0, "round %d out of range", s.Round)
	}

	in := &Instance{
		proto: p,
		env: &Env{
			Self:    s.Self,
			Session: s.Session,
			Params:  params,
			Suite:   st,
			Log:     loggerFor(cfg.Logger, p.Tag(), s.Self),
			tag:     p.Tag(),
			seed:    s.Seed,
			round:   s.Round,
		},
		onDiscard: cfg.OnDiscard,
		round:     s.Round,
		status:    s.Status,
		current:   make(map[wire.ParticipantID]*wire.Message),
	}

	switch s.Status {
	case Continue:
		if err := p.UnmarshalBody(in.env, s.Body); err != nil {
			p.Wipe()
			return nil, Fail(KindCorruptState, 0, err)
		}
		if err := in.restoreMessages(s.Current, s.Pending); err != nil {
			p.Wipe()
			return nil, Fail(KindCorruptState, 0, err)
		}
	case Done:
		art, err := DecodeArtifact(s.Artifact)
		if err != nil {
			return nil, Fail(KindCorruptState, 0, err)
		}
		in.artifact = art
	case Failed:
		if s.Fault == nil {
			return nil, Failf(KindCorruptState, 0, "failed snapshot without fault")
		}
		in.fault = &Error{Kind: s.Fault.Kind, Culprit: s.Fault.Culprit}
		if s.Fault.Message != "" {
			in.fault.Err = errors.New(s.Fault.Message)
		}
		in.current = nil
	default:
		return nil, Failf(KindCorruptState, 0, "unknown status %d", s.Status)
	}
	return in, nil
}

// restoreMessages re-validates buffered messages as if they had just
// arrived. A snapshot cannot smuggle in anything Advance would reject.
func (in *Instance) restoreMessages(current, pending [][]byte) error {
	for _, enc := range current {
		m, err := wire.Unmarshal(enc)
		if err != nil {
			return err
		}
		if m.Round != in.round {
			return errors.Errorf("buffered message for round %d in round %d", m.Round, in.round)
		}
		if err := in.admit(m); err != nil {
			return err
		}
	}
	for _, enc := range pending {
		m, err := wire.Unmarshal(enc)
		if err != nil {
			return err
		}
		if m.Round <= in.round {
			return errors.Errorf("pending message for round %d in round %d", m.Round, in.round)
		}
		if err := in.admit(m); err != nil {
			return err
		}
	}
	return nil
}

func (in *Instance) admit(m *wire.Message) error {
	var reason string
	saved := in.onDiscard
	in.onDiscard = func(r string) { reason = r }
	in.accept(m)
	in.onDiscard = saved
	if reason != "" {
		return errors.Errorf("buffered message rejected: %s", reason)
	}
	if in.status != Continue {
		return errors.New("buffered messages conflict")
	}
	return nil
}
