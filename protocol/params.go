package protocol

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/wire"
)

// Params are fixed at creation and never mutated. Participants is the set
// taking part in this run: every key holder for KeyGen, the signer or
// decryptor subset otherwise.
type Params struct {
	Curve        group.ID
	Threshold    int
	Participants []wire.ParticipantID
}

// normalize returns a copy with Participants sorted.
func (p Params) normalize() Params {
	ids := append([]wire.ParticipantID(nil), p.Participants...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	p.Participants = ids
	return p
}

// Validate checks p as seen by participant self. It does not compare the
// threshold to the participant count: signing and decryption accept a
// short set and fail later with KindInsufficientShares.
func (p Params) Validate(self wire.ParticipantID) error {
	if p.Threshold < 1 {
		return errors.Errorf("threshold %d must be at least 1", p.Threshold)
	}
	if len(p.Participants) == 0 {
		return errors.New("empty participant list")
	}
	seen := make(map[wire.ParticipantID]bool, len(p.Participants))
	for _, id := range p.Participants {
		if id == wire.Broadcast {
			return errors.New("participant id 0 is reserved")
		}
		if seen[id] {
			return errors.Errorf("duplicate participant %d", id)
		}
		seen[id] = true
	}
	if !seen[self] {
		return errors.Errorf("self %d is not a participant", self)
	}
	return nil
}

// Contains reports whether id takes part in the run.
func (p Params) Contains(id wire.ParticipantID) bool {
	i := sort.Search(len(p.Participants), func(i int) bool { return p.Participants[i] >= id })
	return i < len(p.Participants) && p.Participants[i] == id
}

// IDs returns the participants as plain integers for the frost helpers.
func (p Params) IDs() []uint16 {
	out := make([]uint16, len(p.Participants))
	for i, id := range p.Participants {
		out[i] = uint16(id)
	}
	return out
}

// Peers returns every participant except self, in ascending order.
func (p Params) Peers(self wire.ParticipantID) []wire.ParticipantID {
	out := make([]wire.ParticipantID, 0, len(p.Participants))
	for _, id := range p.Participants {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
