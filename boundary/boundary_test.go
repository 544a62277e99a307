package boundary_test

import (
	"bytes"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/f3rmion/thresh/boundary"
	"github.com/f3rmion/thresh/paillier"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/ecdsasign"
	"github.com/f3rmion/thresh/protocols/frostsign"
	"github.com/f3rmion/thresh/wire"
)

var holders = []wire.ParticipantID{1, 2, 3}

func newTable(t *testing.T) *boundary.Table {
	t.Helper()
	tb, err := boundary.NewTable(boundary.Config{PaillierBits: paillier.MinBits})
	require.NoError(t, err)
	return tb
}

func encode(t *testing.T, r boundary.CreateRequest) []byte {
	t.Helper()
	b, err := r.Marshal()
	require.NoError(t, err)
	return b
}

// deliver routes batches between parties until no message is in flight.
func deliver(t *testing.T, ids []wire.ParticipantID, first [][]byte, advance func(wire.ParticipantID, []byte) []byte) {
	t.Helper()
	var flight []*wire.Message
	for _, b := range first {
		msgs, err := wire.UnmarshalBatch(b)
		require.NoError(t, err)
		flight = append(flight, msgs...)
	}
	for step := 0; len(flight) > 0; step++ {
		require.Less(t, step, 50)
		inbox := make(map[wire.ParticipantID][]*wire.Message)
		for _, m := range flight {
			for _, id := range ids {
				if id != m.Sender && (m.IsBroadcast() || m.Recipient == id) {
					inbox[id] = append(inbox[id], m)
				}
			}
		}
		flight = nil
		for _, id := range ids {
			if len(inbox[id]) == 0 {
				continue
			}
			msgs, err := wire.UnmarshalBatch(advance(id, wire.MarshalBatch(inbox[id])))
			require.NoError(t, err)
			flight = append(flight, msgs...)
		}
	}
}

// runHandles creates one instance per request and runs them to completion.
func runHandles(t *testing.T, tb *boundary.Table, reqs []boundary.CreateRequest) map[wire.ParticipantID][]byte {
	t.Helper()
	handles := make(map[wire.ParticipantID]boundary.Handle)
	var ids []wire.ParticipantID
	var first [][]byte
	for _, r := range reqs {
		h, out, err := tb.Create(encode(t, r))
		require.NoError(t, err)
		handles[r.Self] = h
		ids = append(ids, r.Self)
		first = append(first, out)
	}
	deliver(t, ids, first, func(id wire.ParticipantID, batch []byte) []byte {
		out, _, err := tb.Advance(handles[id], batch)
		require.NoError(t, err)
		return out
	})
	artifacts := make(map[wire.ParticipantID][]byte)
	for id, h := range handles {
		status, err := tb.Status(h)
		require.NoError(t, err)
		require.Equal(t, protocol.Done, status)
		a, err := tb.Artifact(h)
		require.NoError(t, err)
		artifacts[id] = a
		require.NoError(t, tb.Destroy(h))
	}
	require.Zero(t, tb.Len())
	return artifacts
}

func keygen(t *testing.T, tb *boundary.Table) map[wire.ParticipantID][]byte {
	t.Helper()
	var reqs []boundary.CreateRequest
	for _, id := range holders {
		reqs = append(reqs, boundary.CreateRequest{
			Tag: protocol.TagKeyGen, Self: id, Session: []byte("boundary-keygen"),
			Curve: "secp256k1", Threshold: 2, Participants: holders,
		})
	}
	return runHandles(t, tb, reqs)
}

func groupKey(t *testing.T, share []byte) []byte {
	t.Helper()
	ks, err := protocol.DecodeKeyShare(share)
	require.NoError(t, err)
	return ks.GroupKey
}

func TestHandleLifecycle(t *testing.T) {
	tb := newTable(t)
	shares := keygen(t, tb)
	key := groupKey(t, shares[1])

	signers := []wire.ParticipantID{1, 3}
	var reqs []boundary.CreateRequest
	for _, id := range signers {
		reqs = append(reqs, boundary.CreateRequest{
			Tag: protocol.TagSignECDSA, Self: id, Session: []byte("boundary-ecdsa"),
			Participants: signers, KeyShare: shares[id], Message: []byte("pay bob"),
		})
	}
	sigs := runHandles(t, tb, reqs)
	require.Equal(t, sigs[1], sigs[3])
	a, err := protocol.DecodeArtifact(sigs[1])
	require.NoError(t, err)
	require.NoError(t, ecdsasign.Verify(key, []byte("pay bob"), a.(*protocol.Signature)))
}

func TestStatelessStep(t *testing.T) {
	tb := newTable(t)
	shares := keygen(t, tb)
	signers := []wire.ParticipantID{2, 3}

	states := make(map[wire.ParticipantID][]byte)
	var first [][]byte
	for _, id := range signers {
		h, out, err := tb.Create(encode(t, boundary.CreateRequest{
			Tag: protocol.TagSignSchnorr, Self: id, Session: []byte("boundary-frost"),
			Participants: signers, KeyShare: shares[id], Message: []byte("m"),
		}))
		require.NoError(t, err)
		states[id], err = tb.Serialize(h)
		require.NoError(t, err)
		require.NoError(t, tb.Destroy(h))
		first = append(first, out)
	}
	deliver(t, signers, first, func(id wire.ParticipantID, batch []byte) []byte {
		next, out, _, err := tb.Step(states[id], batch)
		require.NoError(t, err)
		states[id] = next
		return out
	})

	h, err := tb.Deserialize(states[2])
	require.NoError(t, err)
	art, err := tb.Artifact(h)
	require.NoError(t, err)
	a, err := protocol.DecodeArtifact(art)
	require.NoError(t, err)
	require.NoError(t, frostsign.Verify(groupKey(t, shares[2]), []byte("m"), a.(*protocol.Signature)))
}

func TestEncryptThenDecrypt(t *testing.T) {
	tb := newTable(t)
	shares := keygen(t, tb)
	ct, err := tb.Encrypt("secp256k1", groupKey(t, shares[1]), []byte("for the group"))
	require.NoError(t, err)

	decryptors := []wire.ParticipantID{1, 2}
	var reqs []boundary.CreateRequest
	for _, id := range decryptors {
		reqs = append(reqs, boundary.CreateRequest{
			Tag: protocol.TagDecrypt, Self: id, Session: []byte("boundary-decrypt"),
			Participants: decryptors, KeyShare: shares[id], Ciphertext: ct,
		})
	}
	for _, pt := range runHandles(t, tb, reqs) {
		a, err := protocol.DecodeArtifact(pt)
		require.NoError(t, err)
		require.Equal(t, []byte("for the group"), a.(*protocol.Plaintext).Data)
	}

	_, err = tb.Encrypt("p256", groupKey(t, shares[1]), nil)
	require.Equal(t, boundary.CodeInvalidParameters, boundary.CodeOf(err))
}

func TestErrorCodes(t *testing.T) {
	tb := newTable(t)
	valid := boundary.CreateRequest{
		Tag: protocol.TagKeyGen, Self: 1, Session: []byte("codes"),
		Curve: "bjj", Threshold: 2, Participants: holders,
	}

	t.Run("Create", func(t *testing.T) {
		unknown := valid
		unknown.Tag = 77
		zero := valid
		zero.Threshold = 0
		curve := valid
		curve.Curve = "p256"
		share := valid
		share.Tag = protocol.TagSignSchnorr
		share.KeyShare = []byte{0xff}

		for name, tc := range map[string]struct {
			req  []byte
			want boundary.Code
		}{
			"Empty":        {nil, boundary.CodeInvalidBuffer},
			"Garbage":      {[]byte{0x01, 0x02}, boundary.CodeInvalidBuffer},
			"Oversized":    {make([]byte, boundary.MaxBuffer+1), boundary.CodeInvalidBuffer},
			"UnknownTag":   {encode(t, unknown), boundary.CodeUnknownProtocolTag},
			"ZeroThresh":   {encode(t, zero), boundary.CodeInvalidParameters},
			"UnknownCurve": {encode(t, curve), boundary.CodeInvalidParameters},
			"BadKeyShare":  {encode(t, share), boundary.CodeInvalidBuffer},
		} {
			t.Run(name, func(t *testing.T) {
				h, out, err := tb.Create(tc.req)
				require.Equal(t, tc.want, boundary.CodeOf(err), "%v", err)
				require.Zero(t, h)
				require.Nil(t, out)
			})
		}
		require.Zero(t, tb.Len())
	})

	t.Run("Handles", func(t *testing.T) {
		_, _, err := tb.Advance(0, nil)
		require.Equal(t, boundary.CodeInvalidHandle, boundary.CodeOf(err))
		_, err = tb.Serialize(12345)
		require.Equal(t, boundary.CodeInvalidHandle, boundary.CodeOf(err))

		h, _, err := tb.Create(encode(t, valid))
		require.NoError(t, err)
		_, err = tb.Artifact(h)
		require.Equal(t, boundary.CodeNotDone, boundary.CodeOf(err))
		_, status, err := tb.Advance(h, []byte{0x0a, 0xff})
		require.Equal(t, boundary.CodeInvalidBuffer, boundary.CodeOf(err))
		require.Equal(t, protocol.Continue, status)

		require.NoError(t, tb.Destroy(h))
		require.Equal(t, boundary.CodeInvalidHandle, boundary.CodeOf(tb.Destroy(h)))
		_, _, err = tb.Advance(h, nil)
		require.Equal(t, boundary.CodeInvalidHandle, boundary.CodeOf(err))
	})

	t.Run("Deserialize", func(t *testing.T) {
		_, err := tb.Deserialize(nil)
		require.Equal(t, boundary.CodeInvalidBuffer, boundary.CodeOf(err))
		_, err = tb.Deserialize([]byte("definitely not cbor state"))
		require.Equal(t, boundary.CodeCorruptState, boundary.CodeOf(err))

		_, _, _, err = tb.Step([]byte{0xa0}, nil)
		require.Equal(t, boundary.CodeCorruptState, boundary.CodeOf(err))
	})
}

func TestRunFailureCarriesKind(t *testing.T) {
	tb := newTable(t)
	shares := keygen(t, tb)
	h, out, err := tb.Create(encode(t, boundary.CreateRequest{
		Tag: protocol.TagSignSchnorr, Self: 1, Session: []byte("alone"),
		Participants: []wire.ParticipantID{1}, KeyShare: shares[1], Message: []byte("m"),
	}))
	require.NoError(t, err)
	msgs, err := wire.UnmarshalBatch(out)
	require.NoError(t, err)
	for _, m := range msgs {
		require.Equal(t, uint32(1), m.Round)
	}

	_, status, err := tb.Advance(h, nil)
	require.Equal(t, protocol.Failed, status)
	require.Equal(t, boundary.CodeInsufficientShares, boundary.CodeOf(err))

	state, err := tb.Serialize(h)
	require.NoError(t, err)
	_, _, status, err = tb.Step(state, nil)
	require.Equal(t, protocol.Failed, status)
	require.Equal(t, boundary.CodeInsufficientShares, boundary.CodeOf(err))
}

func TestSealOpen(t *testing.T) {
	tb := newTable(t)
	key := bytes.Repeat([]byte{7}, 32)
	blob, err := tb.Seal(key, []byte("payload"), []byte("hdr"))
	require.NoError(t, err)

	pt, err := tb.Open(key, blob, []byte("hdr"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), pt)

	for i := range blob {
		tampered := append([]byte(nil), blob...)
		tampered[i] ^= 0x01
		pt, err := tb.Open(key, tampered, []byte("hdr"))
		require.Equal(t, boundary.CodeAuthenticationFailed, boundary.CodeOf(err))
		require.Nil(t, pt)
	}
	_, err = tb.Open(key, blob, []byte("other"))
	require.Equal(t, boundary.CodeAuthenticationFailed, boundary.CodeOf(err))
	_, err = tb.Seal(key[:16], []byte("x"), nil)
	require.Equal(t, boundary.CodeInvalidBuffer, boundary.CodeOf(err))
}

func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metric:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	tb, err := boundary.NewTable(boundary.Config{Registerer: reg})
	require.NoError(t, err)
	_, err = boundary.NewTable(boundary.Config{Registerer: reg})
	require.Error(t, err)

	keygen(t, tb)
	require.Equal(t, 3.0, counter(t, reg, "thresh_instances_created_total", map[string]string{"protocol": "keygen"}))
	require.Positive(t, counter(t, reg, "thresh_advances_total", map[string]string{"protocol": "keygen", "status": "done"}))

	h, _, err := tb.Create(encode(t, boundary.CreateRequest{
		Tag: protocol.TagKeyGen, Self: 1, Session: []byte("a"),
		Curve: "ed25519", Threshold: 1, Participants: []wire.ParticipantID{1, 2},
	}))
	require.NoError(t, err)
	stray := &wire.Message{Protocol: uint32(protocol.TagKeyGen), Round: 1, Sender: 2, Session: []byte("b"), Payload: []byte{1}}
	_, _, err = tb.Advance(h, wire.MarshalBatch([]*wire.Message{stray}))
	require.NoError(t, err)
	require.Equal(t, 1.0, counter(t, reg, "thresh_messages_discarded_total", map[string]string{"reason": protocol.DiscardSession}))
}

func TestConcurrentHandles(t *testing.T) {
	tb := newTable(t)
	done := make(chan boundary.Handle, len(holders))
	for _, id := range holders {
		req := encode(t, boundary.CreateRequest{
			Tag: protocol.TagKeyGen, Self: id, Session: []byte("c"),
			Curve: "bjj", Threshold: 2, Participants: holders,
		})
		go func() {
			h, _, err := tb.Create(req)
			if err != nil {
				done <- 0
				return
			}
			done <- h
		}()
	}
	var got []boundary.Handle
	for range holders {
		got = append(got, <-done)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Equal(t, []boundary.Handle{1, 2, 3}, got)
	require.Equal(t, 3, tb.Len())

	tb.Close()
	require.Zero(t, tb.Len())
	_, err := tb.Serialize(got[0])
	require.Equal(t, boundary.CodeInvalidHandle, boundary.CodeOf(err))
}
