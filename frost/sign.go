package frost

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/f3rmion/thresh/group"
)

// SigningNonce holds a participant's nonce pair for signing.
type SigningNonce struct {
	ID uint16
	D  group.Scalar // hiding nonce
	E  group.Scalar // binding nonce
}

// SigningCommitment is broadcast in round 1 of signing.
type SigningCommitment struct {
	ID           uint16
	HidingPoint  group.Point // D * G
	BindingPoint group.Point // E * G
}

// SignatureShare is a participant's share of the signature.
type SignatureShare struct {
	ID uint16
	Z  group.Scalar
}

// SignRound1 generates nonces and commitment for signing. Nonces are hedged:
// each is H3 of fresh randomness and the secret share.
func (f *FROST) SignRound1(r io.Reader, share *KeyShare) (*SigningNonce, *SigningCommitment, error) {
	d, err := f.nonce(r, share.SecretKey)
	if err != nil {
		return nil, nil, err
	}
	e, err := f.nonce(r, share.SecretKey)
	if err != nil {
		return nil, nil, err
	}

	nonce := &SigningNonce{
		ID: share.ID,
		D:  d,
		E:  e,
	}

	commitment := &SigningCommitment{
		ID:           share.ID,
		HidingPoint:  f.group.NewPoint().ScalarMult(d, f.group.Generator()),
		BindingPoint: f.group.NewPoint().ScalarMult(e, f.group.Generator()),
	}

	return nonce, commitment, nil
}

func (f *FROST) nonce(r io.Reader, secret group.Scalar) (group.Scalar, error) {
	random := make([]byte, 32)
	if _, err := io.ReadFull(r, random); err != nil {
		return nil, err
	}
	n := f.hasher.H3(f.group, random, secret.Bytes())
	if n.IsZero() {
		return nil, errors.New("derived zero nonce")
	}
	return n, nil
}

// SortCommitments returns the commitments ordered by participant id and
// rejects duplicates. Every function below works on this canonical order
// so that all signers derive the same binding factors.
func SortCommitments(commitments []*SigningCommitment) ([]*SigningCommitment, error) {
	sorted := append([]*SigningCommitment(nil), commitments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID == sorted[i-1].ID {
			return nil, fmt.Errorf("duplicate commitment from participant %d", sorted[i].ID)
		}
	}
	return sorted, nil
}

func idBytes(id uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], id)
	return b[:]
}

func signerIDs(commitments []*SigningCommitment) []uint16 {
	ids := make([]uint16, len(commitments))
	for i, c := range commitments {
		ids[i] = c.ID
	}
	return ids
}

// SignRound2 generates a signature share and consumes the nonce: its
// scalars are zeroed and a second call with the same nonce fails.
func (f *FROST) SignRound2(
	share *KeyShare,
	nonce *SigningNonce,
	message []byte,
	commitments []*SigningCommitment,
) (*SignatureShare, error) {
	if nonce.D.IsZero() || nonce.E.IsZero() {
		return nil, ErrNonceConsumed
	}
	sorted, err := SortCommitments(commitments)
	if err != nil {
		return nil, err
	}
	if len(sorted) < f.threshold {
		return nil, fmt.Errorf("need %d signers, have %d", f.threshold, len(sorted))
	}
	var own *SigningCommitment
	for _, c := range sorted {
		if c.ID == share.ID {
			own = c
		}
	}
	if own == nil {
		return nil, errors.New("own commitment missing from signing set")
	}
	if !own.HidingPoint.Equal(f.group.NewPoint().ScalarMult(nonce.D, f.group.Generator())) ||
		!own.BindingPoint.Equal(f.group.NewPoint().ScalarMult(nonce.E, f.group.Generator())) {
		return nil, errors.New("own commitment does not match nonce")
	}

	bindingFactors := f.computeBindingFactors(share.GroupKey, message, sorted)
	R := f.groupCommitment(sorted, bindingFactors)
	c := f.hasher.H2(f.group, R.Bytes(), share.GroupKey.Bytes(), message)

	lambda, err := LagrangeCoefficient(f.group, share.ID, signerIDs(sorted))
	if err != nil {
		return nil, err
	}

	// z_i = d + rho * e + lambda * s * c
	z := f.group.NewScalar().Mul(bindingFactors[share.ID], nonce.E)
	z.Add(z, nonce.D)
	lambdaSC := f.group.NewScalar().Mul(lambda, share.SecretKey)
	lambdaSC.Mul(lambdaSC, c)
	z.Add(z, lambdaSC)

	group.Wipe(f.group, nonce.D, nonce.E)

	return &SignatureShare{
		ID: share.ID,
		Z:  z,
	}, nil
}

// VerifySignatureShare checks z_i*G == D_i + rho_i*E_i + lambda_i*c*X_i.
func (f *FROST) VerifySignatureShare(
	sigShare *SignatureShare,
	publicShare group.Point,
	groupKey group.Point,
	message []byte,
	commitments []*SigningCommitment,
) error {
	sorted, err := SortCommitments(commitments)
	if err != nil {
		return err
	}
	var comm *SigningCommitment
	for _, c := range sorted {
		if c.ID == sigShare.ID {
			comm = c
		}
	}
	if comm == nil {
		return fmt.Errorf("no commitment for participant %d", sigShare.ID)
	}

	bindingFactors := f.computeBindingFactors(groupKey, message, sorted)
	R := f.groupCommitment(sorted, bindingFactors)
	c := f.hasher.H2(f.group, R.Bytes(), groupKey.Bytes(), message)
	lambda, err := LagrangeCoefficient(f.group, sigShare.ID, signerIDs(sorted))
	if err != nil {
		return err
	}

	lhs := f.group.NewPoint().ScalarMult(sigShare.Z, f.group.Generator())
	rhs := f.group.NewPoint().ScalarMult(bindingFactors[sigShare.ID], comm.BindingPoint)
	rhs.Add(rhs, comm.HidingPoint)
	lc := f.group.NewScalar().Mul(lambda, c)
	rhs.Add(rhs, f.group.NewPoint().ScalarMult(lc, publicShare))
	if !lhs.Equal(rhs) {
		return ErrInvalidShare
	}
	return nil
}

// Aggregate combines signature shares into a final signature.
func (f *FROST) Aggregate(
	groupKey group.Point,
	message []byte,
	commitments []*SigningCommitment,
	shares []*SignatureShare,
) (*Signature, error) {
	sorted, err := SortCommitments(commitments)
	if err != nil {
		return nil, err
	}
	if len(shares) != len(sorted) {
		return nil, fmt.Errorf("have %d shares for %d commitments", len(shares), len(sorted))
	}

	bindingFactors := f.computeBindingFactors(groupKey, message, sorted)
	R := f.groupCommitment(sorted, bindingFactors)

	z := f.group.NewScalar()
	for _, s := range shares {
		z.Add(z, s.Z)
	}

	return &Signature{R: R, Z: z}, nil
}

// Verify checks a FROST signature.
func (f *FROST) Verify(message []byte, sig *Signature, groupKey group.Point) bool {
	c := f.hasher.H2(f.group, sig.R.Bytes(), groupKey.Bytes(), message)

	// z*G == R + c*Y
	lhs := f.group.NewPoint().ScalarMult(sig.Z, f.group.Generator())
	rhs := f.group.NewPoint().ScalarMult(c, groupKey)
	rhs.Add(rhs, sig.R)

	return lhs.Equal(rhs)
}

// groupCommitment computes R = sum(D_i + rho_i * E_i).
func (f *FROST) groupCommitment(sorted []*SigningCommitment, bindingFactors map[uint16]group.Scalar) group.Point {
	R := f.group.NewPoint()
	for _, comm := range sorted {
		rhoE := f.group.NewPoint().ScalarMult(bindingFactors[comm.ID], comm.BindingPoint)
		R.Add(R, rhoE)
		R.Add(R, comm.HidingPoint)
	}
	return R
}

func (f *FROST) computeBindingFactors(groupKey group.Point, message []byte, sorted []*SigningCommitment) map[uint16]group.Scalar {
	var commBytes []byte
	for _, c := range sorted {
		commBytes = append(commBytes, idBytes(c.ID)...)
		commBytes = append(commBytes, c.HidingPoint.Bytes()...)
		commBytes = append(commBytes, c.BindingPoint.Bytes()...)
	}

	rhoInput := append([]byte(nil), groupKey.Bytes()...)
	rhoInput = append(rhoInput, f.hasher.H4(f.group, message)...)
	rhoInput = append(rhoInput, f.hasher.H5(f.group, commBytes)...)

	factors := make(map[uint16]group.Scalar, len(sorted))
	for _, c := range sorted {
		factors[c.ID] = f.hasher.H1(f.group, rhoInput, idBytes(c.ID))
	}
	return factors
}
