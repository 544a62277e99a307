package boundary

import (
	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/decrypt"
	"github.com/f3rmion/thresh/session"
	"github.com/f3rmion/thresh/wire"
)

// CreateRequest is the encoded argument of [Table.Create]. KeyShare holds
// [protocol.EncodeArtifact] output of a KeyGen run and Ciphertext holds
// [decrypt.Ciphertext.Marshal] output. Curve and Threshold may be left
// empty when a key share is given.
type CreateRequest struct {
	Tag          protocol.Tag         `cbor:"1,keyasint"`
	Self         wire.ParticipantID   `cbor:"2,keyasint"`
	Session      []byte               `cbor:"3,keyasint"`
	Curve        string               `cbor:"4,keyasint,omitempty"`
	Threshold    int                  `cbor:"5,keyasint,omitempty"`
	Participants []wire.ParticipantID `cbor:"6,keyasint"`
	KeyShare     []byte               `cbor:"7,keyasint,omitempty"`
	Message      []byte               `cbor:"8,keyasint,omitempty"`
	Ciphertext   []byte               `cbor:"9,keyasint,omitempty"`
}

// Marshal encodes r deterministically.
func (r *CreateRequest) Marshal() ([]byte, error) {
	return protocol.EncodePayload(r)
}

// ParseCreateRequest decodes a request. Unknown fields are rejected.
func ParseCreateRequest(data []byte) (*CreateRequest, error) {
	r := new(CreateRequest)
	if err := protocol.DecodePayload(data, r); err != nil {
		return nil, &Error{Code: CodeInvalidBuffer, Err: err}
	}
	return r, nil
}

// sessionRequest decodes the nested buffers. The returned key share is
// owned by the caller and must be wiped.
func (r *CreateRequest) sessionRequest() (session.Request, error) {
	req := session.Request{
		Tag:          r.Tag,
		Self:         r.Self,
		Session:      r.Session,
		Threshold:    r.Threshold,
		Participants: r.Participants,
		Message:      r.Message,
	}
	if r.Curve != "" {
		id, err := group.ParseID(r.Curve)
		if err != nil {
			return req, protocol.Fail(protocol.KindInvalidParameters, 0, err)
		}
		req.Curve = id
	}
	if len(r.KeyShare) > 0 {
		ks, err := protocol.DecodeKeyShare(r.KeyShare)
		if err != nil {
			return req, &Error{Code: CodeInvalidBuffer, Err: err}
		}
		req.KeyShare = ks
	}
	if len(r.Ciphertext) > 0 {
		ct, err := decrypt.ParseCiphertext(r.Ciphertext)
		if err != nil {
			if req.KeyShare != nil {
				req.KeyShare.Wipe()
			}
			return req, &Error{Code: CodeInvalidBuffer, Err: err}
		}
		req.Ciphertext = ct
	}
	return req, nil
}
