package frost

import (
	"errors"
	"fmt"
	"sort"

	"github.com/f3rmion/thresh/group"
)

var (
	// ErrInvalidShare is returned when a secret share or signature share
	// fails verification against its public commitments.
	ErrInvalidShare = errors.New("frost: invalid share")
	// ErrInvalidProof is returned when a proof of knowledge does not verify.
	ErrInvalidProof = errors.New("frost: invalid proof of knowledge")
	// ErrNonceConsumed is returned when a signing nonce is used twice.
	ErrNonceConsumed = errors.New("frost: signing nonce already consumed")
)

// FROST holds the group, hash suite and threshold parameters.
type FROST struct {
	group     group.Group
	hasher    Hasher
	threshold int // t - minimum signers needed
	total     int // n - total participants
}

// KeyShare represents a participant's share of the secret key.
type KeyShare struct {
	ID        uint16       // participant identifier, never zero
	SecretKey group.Scalar // secret key share x_i
	PublicKey group.Point  // public key share X_i = x_i*G
	GroupKey  group.Point  // combined group public key Y
}

// Signature is a Schnorr signature.
type Signature struct {
	R group.Point
	Z group.Scalar
}

// New creates a FROST instance with the given group and threshold parameters
// using the SHA-256 hash suite.
// threshold is the minimum number of signers required (t).
// total is the total number of participants (n).
func New(g group.Group, threshold, total int) (*FROST, error) {
	return NewWithHasher(g, threshold, total, &SHA256Hasher{})
}

// NewWithHasher creates a FROST instance with a custom hash suite, such as
// [Blake2bHasher] for Baby Jubjub deployments.
func NewWithHasher(g group.Group, threshold, total int, h Hasher) (*FROST, error) {
	if threshold < 1 {
		return nil, errors.New("threshold must be at least 1")
	}
	if total < threshold {
		return nil, errors.New("total must be >= threshold")
	}
	if total > 65535 {
		return nil, errors.New("total exceeds the participant id space")
	}
	if h == nil {
		h = &SHA256Hasher{}
	}

	return &FROST{
		group:     g,
		hasher:    h,
		threshold: threshold,
		total:     total,
	}, nil
}

// Group returns the group the instance operates in.
func (f *FROST) Group() group.Group { return f.group }

// Threshold returns t.
func (f *FROST) Threshold() int { return f.threshold }

// Identifier maps a participant id to its scalar evaluation point.
func (f *FROST) Identifier(id uint16) group.Scalar {
	return group.ScalarFromUint64(f.group, uint64(id))
}

func (f *FROST) evalPolynomial(coeffs []group.Scalar, x group.Scalar) group.Scalar {
	result := f.group.NewScalar().Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coeffs[i])
	}
	return result
}

// evalCommitments returns sum(C_k * x^k), the public image of a polynomial
// evaluation.
func (f *FROST) evalCommitments(commitments []group.Point, x group.Scalar) group.Point {
	acc := f.group.NewPoint()
	xPower := group.ScalarFromUint64(f.group, 1)
	for _, c := range commitments {
		acc.Add(acc, f.group.NewPoint().ScalarMult(xPower, c))
		xPower = f.group.NewScalar().Mul(xPower, x)
	}
	return acc
}

// LagrangeCoefficient returns lambda_id for interpolation at zero over the
// participant set ids. id must be a member of ids and ids must not repeat.
func LagrangeCoefficient(g group.Group, id uint16, ids []uint16) (group.Scalar, error) {
	if id == 0 {
		return nil, errors.New("participant id zero")
	}
	x := group.ScalarFromUint64(g, uint64(id))
	num := group.ScalarFromUint64(g, 1)
	den := group.ScalarFromUint64(g, 1)

	seen := make(map[uint16]bool, len(ids))
	member := false
	for _, other := range ids {
		if seen[other] {
			return nil, fmt.Errorf("duplicate participant %d", other)
		}
		seen[other] = true
		if other == id {
			member = true
			continue
		}
		xj := group.ScalarFromUint64(g, uint64(other))
		num.Mul(num, xj)
		den.Mul(den, g.NewScalar().Sub(xj, x))
	}
	if !member {
		return nil, fmt.Errorf("participant %d not in set", id)
	}

	denInv, err := g.NewScalar().Invert(den)
	if err != nil {
		return nil, err
	}
	return g.NewScalar().Mul(num, denInv), nil
}

// SortedIDs returns a sorted copy of ids.
func SortedIDs(ids []uint16) []uint16 {
	out := append([]uint16(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
