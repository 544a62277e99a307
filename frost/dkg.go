package frost

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/f3rmion/thresh/group"
)

// Proof is a Schnorr proof of knowledge of the constant term of a dealer's
// polynomial. It binds the dealer id and a caller-supplied context so a
// commitment cannot be replayed by another participant or in another run.
type Proof struct {
	R group.Point
	Z group.Scalar
}

// Round1Data is broadcast by each participant in round 1.
type Round1Data struct {
	ID          uint16        // participant identifier
	Commitments []group.Point // commitments to polynomial coefficients
	Proof       *Proof        // proof of knowledge of coefficient 0
}

// Round1PrivateData is sent privately to each participant.
type Round1PrivateData struct {
	FromID uint16       // sender's ID
	ToID   uint16       // recipient's ID
	Share  group.Scalar // polynomial evaluation for recipient
}

// Participant holds state during DKG.
type Participant struct {
	id             uint16
	coefficients   []group.Scalar          // our secret polynomial
	commitments    []group.Point           // public commitments
	proof          *Proof                  // proof of knowledge of coefficients[0]
	receivedShares map[uint16]group.Scalar // shares from others
}

func proofContext(context []byte, id uint16) []byte {
	out := make([]byte, len(context)+2)
	copy(out, context)
	binary.BigEndian.PutUint16(out[len(context):], id)
	return out
}

// NewParticipant creates a participant for DKG. context is bound into the
// proof of knowledge and must be identical for every participant of a run,
// typically the session identifier.
func (f *FROST) NewParticipant(r io.Reader, id uint16, context []byte) (*Participant, error) {
	if id == 0 {
		return nil, errors.New("participant id must be non-zero")
	}
	// Generate random polynomial of degree t-1
	coeffs := make([]group.Scalar, f.threshold)
	for i := 0; i < f.threshold; i++ {
		c, err := f.group.RandomScalar(r)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	p := &Participant{
		id:             id,
		coefficients:   coeffs,
		receivedShares: make(map[uint16]group.Scalar),
	}
	p.commitments = f.commit(coeffs)

	proof, err := f.prove(r, id, coeffs[0], p.commitments[0], context)
	if err != nil {
		return nil, err
	}
	p.proof = proof
	return p, nil
}

// RestoreParticipant rebuilds DKG state from its serialized parts.
// Commitments are recomputed from the coefficients.
func (f *FROST) RestoreParticipant(id uint16, coeffs []group.Scalar, proof *Proof, shares map[uint16]group.Scalar) (*Participant, error) {
	if id == 0 {
		return nil, errors.New("participant id must be non-zero")
	}
	if len(coeffs) != f.threshold {
		return nil, fmt.Errorf("expected %d coefficients, got %d", f.threshold, len(coeffs))
	}
	if proof == nil || proof.R == nil || proof.Z == nil {
		return nil, errors.New("missing proof of knowledge")
	}
	received := make(map[uint16]group.Scalar, len(shares))
	for from, s := range shares {
		received[from] = s
	}
	return &Participant{
		id:             id,
		coefficients:   coeffs,
		commitments:    f.commit(coeffs),
		proof:          proof,
		receivedShares: received,
	}, nil
}

func (f *FROST) commit(coeffs []group.Scalar) []group.Point {
	// C_i = coeffs[i] * G
	commits := make([]group.Point, len(coeffs))
	for i, c := range coeffs {
		commits[i] = f.group.NewPoint().ScalarMult(c, f.group.Generator())
	}
	return commits
}

func (f *FROST) prove(r io.Reader, id uint16, secret group.Scalar, public group.Point, context []byte) (*Proof, error) {
	k, err := f.group.RandomScalar(r)
	if err != nil {
		return nil, err
	}
	R := f.group.NewPoint().ScalarMult(k, f.group.Generator())
	c := f.hasher.H2(f.group, R.Bytes(), public.Bytes(), proofContext(context, id))

	// z = k + a0*c
	z := f.group.NewScalar().Mul(secret, c)
	z.Add(z, k)
	group.Wipe(f.group, k)
	return &Proof{R: R, Z: z}, nil
}

// ID returns the participant identifier.
func (p *Participant) ID() uint16 { return p.id }

// Coefficients returns the secret polynomial. Callers persisting it must
// treat it as key material.
func (p *Participant) Coefficients() []group.Scalar { return p.coefficients }

// Proof returns the proof of knowledge for coefficient 0.
func (p *Participant) Proof() *Proof { return p.proof }

// ReceivedShares returns the verified shares received so far, keyed by sender.
func (p *Participant) ReceivedShares() map[uint16]group.Scalar { return p.receivedShares }

// Wipe zeroes the polynomial and every received share.
func (p *Participant) Wipe(g group.Group) {
	group.Wipe(g, p.coefficients...)
	for _, s := range p.receivedShares {
		group.Wipe(g, s)
	}
}

// Round1Broadcast returns data to broadcast to all participants.
func (p *Participant) Round1Broadcast() *Round1Data {
	return &Round1Data{
		ID:          p.id,
		Commitments: p.commitments,
		Proof:       p.proof,
	}
}

// VerifyRound1 checks the shape of a received broadcast and its proof of
// knowledge under the run context.
func (f *FROST) VerifyRound1(data *Round1Data, context []byte) error {
	if len(data.Commitments) != f.threshold {
		return fmt.Errorf("expected %d commitments, got %d", f.threshold, len(data.Commitments))
	}
	for _, c := range data.Commitments {
		if c.IsIdentity() {
			return group.ErrIdentityPoint
		}
	}
	if data.Proof == nil {
		return ErrInvalidProof
	}
	c := f.hasher.H2(f.group, data.Proof.R.Bytes(), data.Commitments[0].Bytes(), proofContext(context, data.ID))

	// z*G == R + c*C_0
	lhs := f.group.NewPoint().ScalarMult(data.Proof.Z, f.group.Generator())
	rhs := f.group.NewPoint().ScalarMult(c, data.Commitments[0])
	rhs.Add(rhs, data.Proof.R)
	if !lhs.Equal(rhs) {
		return ErrInvalidProof
	}
	return nil
}

// Round1PrivateSend returns the share to send privately to recipient.
func (f *FROST) Round1PrivateSend(p *Participant, recipientID uint16) *Round1PrivateData {
	return &Round1PrivateData{
		FromID: p.id,
		ToID:   recipientID,
		Share:  f.evalPolynomial(p.coefficients, f.Identifier(recipientID)),
	}
}

// Round2ReceiveShare verifies and stores a received share.
func (f *FROST) Round2ReceiveShare(p *Participant, data *Round1PrivateData, senderCommitments []group.Point) error {
	if data.ToID != p.id {
		return fmt.Errorf("share addressed to %d", data.ToID)
	}
	// share * G == sum(commitments[i] * recipientID^i)
	lhs := f.group.NewPoint().ScalarMult(data.Share, f.group.Generator())
	rhs := f.evalCommitments(senderCommitments, f.Identifier(data.ToID))
	if !lhs.Equal(rhs) {
		return ErrInvalidShare
	}

	p.receivedShares[data.FromID] = data.Share
	return nil
}

// Finalize computes the final key share after receiving all shares.
// allBroadcasts must contain every participant's broadcast, including our
// own, and a verified share must have been received from each other dealer.
func (f *FROST) Finalize(p *Participant, allBroadcasts []*Round1Data) (*KeyShare, error) {
	// Sum all received shares (including our own)
	secretKey := f.evalPolynomial(p.coefficients, f.Identifier(p.id))
	for _, b := range allBroadcasts {
		if b.ID == p.id {
			continue
		}
		share, ok := p.receivedShares[b.ID]
		if !ok {
			return nil, fmt.Errorf("missing share from participant %d", b.ID)
		}
		secretKey.Add(secretKey, share)
	}

	publicKey := f.group.NewPoint().ScalarMult(secretKey, f.group.Generator())
	if !publicKey.Equal(f.PublicShare(p.id, allBroadcasts)) {
		return nil, ErrInvalidShare
	}

	return &KeyShare{
		ID:        p.id,
		SecretKey: secretKey,
		PublicKey: publicKey,
		GroupKey:  f.GroupKey(allBroadcasts),
	}, nil
}

// GroupKey is the sum of all constant term commitments.
func (f *FROST) GroupKey(allBroadcasts []*Round1Data) group.Point {
	groupKey := f.group.NewPoint()
	for _, b := range allBroadcasts {
		groupKey.Add(groupKey, b.Commitments[0])
	}
	return groupKey
}

// PublicShare derives X_id from public commitments alone.
func (f *FROST) PublicShare(id uint16, allBroadcasts []*Round1Data) group.Point {
	x := f.Identifier(id)
	acc := f.group.NewPoint()
	for _, b := range allBroadcasts {
		acc.Add(acc, f.evalCommitments(b.Commitments, x))
	}
	return acc
}
