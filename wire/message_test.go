package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sample() *Message {
	return &Message{
		Protocol:  3,
		Round:     2,
		Sender:    7,
		Recipient: 9,
		Payload:   []byte("payload"),
		Session:   []byte("session-1"),
	}
}

func TestMarshalRoundtrip(t *testing.T) {
	m := sample()
	got, err := Unmarshal(m.Marshal())
	require.NoError(t, err)
	require.True(t, m.Equal(got))
}

func TestBroadcastOmitsRecipient(t *testing.T) {
	m := sample()
	m.Recipient = Broadcast
	got, err := Unmarshal(m.Marshal())
	require.NoError(t, err)
	require.True(t, got.IsBroadcast())
	require.Less(t, len(m.Marshal()), len(sample().Marshal()))
}

func TestUnknownFieldsSkipped(t *testing.T) {
	b := sample().Marshal()
	b = protowire.AppendTag(b, 42, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))
	b = protowire.AppendTag(b, 43, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.True(t, sample().Equal(got))
}

func TestMissingFieldsAreZero(t *testing.T) {
	got, err := Unmarshal(nil)
	require.NoError(t, err)
	require.Zero(t, got.Protocol)
	require.True(t, got.IsBroadcast())
	require.Empty(t, got.Payload)
}

func TestRejectsMalformed(t *testing.T) {
	t.Run("Truncated", func(t *testing.T) {
		b := sample().Marshal()
		_, err := Unmarshal(b[:len(b)-3])
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("SenderOutOfRange", func(t *testing.T) {
		b := protowire.AppendTag(nil, fieldSender, protowire.VarintType)
		b = protowire.AppendVarint(b, 1<<20)
		_, err := Unmarshal(b)
		require.ErrorIs(t, err, ErrMalformed)
	})
}

func TestHeaderExcludesPayload(t *testing.T) {
	a, b := sample(), sample()
	b.Payload = []byte("different")
	require.Equal(t, a.Header(), b.Header())

	b.Round++
	require.NotEqual(t, a.Header(), b.Header())
}

func TestBatchRoundtrip(t *testing.T) {
	first, second := sample(), sample()
	second.Sender = 8
	second.Recipient = Broadcast

	got, err := UnmarshalBatch(MarshalBatch([]*Message{first, second}))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, first.Equal(got[0]))
	require.True(t, second.Equal(got[1]))

	empty, err := UnmarshalBatch(nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}
