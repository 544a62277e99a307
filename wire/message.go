package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParticipantID identifies a participant within one run. Zero is reserved
// for [Broadcast].
type ParticipantID uint16

// Broadcast is the recipient value addressing every participant.
const Broadcast ParticipantID = 0

const (
	fieldProtocol  protowire.Number = 1
	fieldRound     protowire.Number = 2
	fieldSender    protowire.Number = 3
	fieldRecipient protowire.Number = 4
	fieldPayload   protowire.Number = 5
	fieldSession   protowire.Number = 6

	fieldBatchMessage protowire.Number = 1
)

// ErrMalformed is returned for input that is not a valid encoding.
var ErrMalformed = errors.New("wire: malformed message")

// Message is one protocol message. Payload is opaque without Protocol and
// Round.
type Message struct {
	Protocol  uint32
	Round     uint32
	Sender    ParticipantID
	Recipient ParticipantID
	Payload   []byte
	Session   []byte
}

// IsBroadcast reports whether m is addressed to every participant.
func (m *Message) IsBroadcast() bool {
	return m.Recipient == Broadcast
}

// Equal reports whether both messages encode identically.
func (m *Message) Equal(o *Message) bool {
	return m.Protocol == o.Protocol &&
		m.Round == o.Round &&
		m.Sender == o.Sender &&
		m.Recipient == o.Recipient &&
		bytes.Equal(m.Payload, o.Payload) &&
		bytes.Equal(m.Session, o.Session)
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	c := *m
	c.Payload = append([]byte(nil), m.Payload...)
	c.Session = append([]byte(nil), m.Session...)
	return &c
}

func (m *Message) String() string {
	to := "broadcast"
	if !m.IsBroadcast() {
		to = fmt.Sprint(m.Recipient)
	}
	return fmt.Sprintf("msg{protocol=%d round=%d from=%d to=%s len=%d}", m.Protocol, m.Round, m.Sender, to, len(m.Payload))
}

// Header returns the encoding of every field except the payload. Channel
// encryption binds it as associated data.
func (m *Message) Header() []byte {
	return m.appendHeader(nil)
}

func (m *Message) appendHeader(b []byte) []byte {
	b = appendVarintField(b, fieldProtocol, uint64(m.Protocol))
	b = appendVarintField(b, fieldRound, uint64(m.Round))
	b = appendVarintField(b, fieldSender, uint64(m.Sender))
	b = appendVarintField(b, fieldRecipient, uint64(m.Recipient))
	b = appendBytesField(b, fieldSession, m.Session)
	return b
}

// Marshal encodes m. Fields are written in ascending order and zero values
// are omitted, so equal messages have equal encodings.
func (m *Message) Marshal() []byte {
	b := appendVarintField(nil, fieldProtocol, uint64(m.Protocol))
	b = appendVarintField(b, fieldRound, uint64(m.Round))
	b = appendVarintField(b, fieldSender, uint64(m.Sender))
	b = appendVarintField(b, fieldRecipient, uint64(m.Recipient))
	b = appendBytesField(b, fieldPayload, m.Payload)
	b = appendBytesField(b, fieldSession, m.Session)
	return b
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// Unmarshal decodes a single message.
func Unmarshal(data []byte) (*Message, error) {
	m := &Message{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType && num >= fieldProtocol && num <= fieldRecipient:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			if err := m.setVarint(num, v); err != nil {
				return nil, err
			}
		case typ == protowire.BytesType && (num == fieldPayload || num == fieldSession):
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			if num == fieldPayload {
				m.Payload = append([]byte(nil), v...)
			} else {
				m.Session = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}

func (m *Message) setVarint(num protowire.Number, v uint64) error {
	switch num {
	case fieldProtocol, fieldRound:
		if v > math.MaxUint32 {
			return fmt.Errorf("%w: field %d out of range", ErrMalformed, num)
		}
		if num == fieldProtocol {
			m.Protocol = uint32(v)
		} else {
			m.Round = uint32(v)
		}
	case fieldSender, fieldRecipient:
		if v > math.MaxUint16 {
			return fmt.Errorf("%w: participant id %d out of range", ErrMalformed, v)
		}
		if num == fieldSender {
			m.Sender = ParticipantID(v)
		} else {
			m.Recipient = ParticipantID(v)
		}
	}
	return nil
}

// MarshalBatch encodes a list of messages.
func MarshalBatch(msgs []*Message) []byte {
	var b []byte
	for _, m := range msgs {
		b = protowire.AppendTag(b, fieldBatchMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Marshal())
	}
	return b
}

// UnmarshalBatch decodes a list produced by [MarshalBatch].
func UnmarshalBatch(data []byte) ([]*Message, error) {
	var msgs []*Message
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]
		if num != fieldBatchMessage || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]
		m, err := Unmarshal(v)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
