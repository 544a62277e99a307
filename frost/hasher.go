package frost

import (
	"crypto/sha256"
	"hash"
	"slices"

	"golang.org/x/crypto/blake2b"

	"github.com/f3rmion/thresh/group"
)

// Hasher is the hash suite of a FROST instance. Each function uses its own
// domain tag.
type Hasher interface {
	// H1 derives a signer's binding factor from the binding prefix
	// (group key, H4(msg), H5(commitments)) and its id.
	H1(g group.Group, rhoInput, signerID []byte) group.Scalar
	// H2 is the Schnorr challenge over R, Y and the message.
	H2(g group.Group, R, Y, msg []byte) group.Scalar
	// H3 derives a nonce from fresh randomness and the signer's secret.
	H3(g group.Group, random, secret []byte) group.Scalar
	// H4 digests the message.
	H4(g group.Group, msg []byte) []byte
	// H5 digests the encoded commitment list.
	H5(g group.Group, encCommitList []byte) []byte
}

const (
	tagRho   = "rho"
	tagChal  = "chal"
	tagNonce = "nonce"
	tagMsg   = "msg"
	tagCom   = "com"
)

// tagged implements the five functions for any hash with a domain prefix.
// Scalars are reduced from a 64-byte digest.
type tagged struct {
	prefix       string
	newHash      func() hash.Hash
	littleEndian bool
}

func (t tagged) digest(tag string, data ...[]byte) []byte {
	h := t.newHash()
	h.Write([]byte(t.prefix))
	h.Write([]byte(tag))
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func (t tagged) scalar(g group.Group, tag string, data ...[]byte) group.Scalar {
	wide := t.digest(tag, data...)
	if len(wide) < 64 {
		// Widen short digests with a second, counter-separated block.
		wide = append(wide, t.digest(tag+"\x01", data...)...)
	}
	if t.littleEndian {
		slices.Reverse(wide)
	}
	s, _ := g.NewScalar().SetBytes(wide)
	return s
}

func (t tagged) h1(g group.Group, rhoInput, signerID []byte) group.Scalar {
	return t.scalar(g, tagRho, rhoInput, signerID)
}

func (t tagged) h2(g group.Group, R, Y, msg []byte) group.Scalar {
	return t.scalar(g, tagChal, R, Y, msg)
}

func (t tagged) h3(g group.Group, random, secret []byte) group.Scalar {
	return t.scalar(g, tagNonce, random, secret)
}

// SHA256Hasher is the suite for secp256k1 and ed25519.
type SHA256Hasher struct{}

var sha256Suite = tagged{prefix: "thresh-frost-sha256-v1", newHash: sha256.New}

func (*SHA256Hasher) H1(g group.Group, rhoInput, signerID []byte) group.Scalar {
	return sha256Suite.h1(g, rhoInput, signerID)
}

func (*SHA256Hasher) H2(g group.Group, R, Y, msg []byte) group.Scalar {
	return sha256Suite.h2(g, R, Y, msg)
}

func (*SHA256Hasher) H3(g group.Group, random, secret []byte) group.Scalar {
	return sha256Suite.h3(g, random, secret)
}

func (*SHA256Hasher) H4(_ group.Group, msg []byte) []byte {
	return sha256Suite.digest(tagMsg, msg)
}

func (*SHA256Hasher) H5(_ group.Group, encCommitList []byte) []byte {
	return sha256Suite.digest(tagCom, encCommitList)
}

// Blake2bHasher is Blake2b-512 with a domain prefix, digests read
// little-endian. With the default prefix it matches the Ledger and iden3
// Baby Jubjub FROST deployments.
type Blake2bHasher struct {
	// Prefix defaults to "FROST-EDBABYJUJUB-BLAKE512-v1".
	Prefix string
}

// NewBlake2bHasher returns a Blake2bHasher with the default prefix.
func NewBlake2bHasher() *Blake2bHasher {
	return &Blake2bHasher{Prefix: "FROST-EDBABYJUJUB-BLAKE512-v1"}
}

func (h *Blake2bHasher) suite() tagged {
	return tagged{
		prefix: h.Prefix,
		newHash: func() hash.Hash {
			b, _ := blake2b.New512(nil)
			return b
		},
		littleEndian: true,
	}
}

func (h *Blake2bHasher) H1(g group.Group, rhoInput, signerID []byte) group.Scalar {
	return h.suite().h1(g, rhoInput, signerID)
}

func (h *Blake2bHasher) H2(g group.Group, R, Y, msg []byte) group.Scalar {
	return h.suite().h2(g, R, Y, msg)
}

func (h *Blake2bHasher) H3(g group.Group, random, secret []byte) group.Scalar {
	return h.suite().h3(g, random, secret)
}

func (h *Blake2bHasher) H4(_ group.Group, msg []byte) []byte {
	return h.suite().digest(tagMsg, msg)
}

func (h *Blake2bHasher) H5(_ group.Group, encCommitList []byte) []byte {
	return h.suite().digest(tagCom, encCommitList)
}
