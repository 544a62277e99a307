package paillier

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/cronokirby/saferith"
)

// MinBits is the smallest modulus GenerateKey accepts.
const MinBits = 1024

var (
	// ErrInvalidCiphertext is returned for a ciphertext outside Z*_{N^2}.
	ErrInvalidCiphertext = errors.New("paillier: invalid ciphertext")
	// ErrInvalidPublicKey is returned for a modulus that cannot be a Paillier key.
	ErrInvalidPublicKey = errors.New("paillier: invalid public key")

	one = new(saferith.Nat).SetUint64(1)
)

func natFromBig(x *big.Int) *saferith.Nat {
	return new(saferith.Nat).SetBig(x, x.BitLen())
}

// PublicKey is a Paillier modulus N.
type PublicKey struct {
	n        *big.Int
	nNat     *saferith.Nat
	nMod     *saferith.Modulus
	nSquared *saferith.Modulus
}

// NewPublicKey wraps N. It rejects even or undersized moduli.
func NewPublicKey(n *big.Int) (*PublicKey, error) {
	if n.Sign() <= 0 || n.Bit(0) == 0 || n.BitLen() < MinBits {
		return nil, ErrInvalidPublicKey
	}
	nn := new(big.Int).Mul(n, n)
	nNat := natFromBig(n)
	return &PublicKey{
		n:        new(big.Int).Set(n),
		nNat:     nNat,
		nMod:     saferith.ModulusFromNat(nNat),
		nSquared: saferith.ModulusFromNat(natFromBig(nn)),
	}, nil
}

// ParsePublicKey decodes the big-endian modulus produced by [PublicKey.Bytes].
func ParsePublicKey(data []byte) (*PublicKey, error) {
	return NewPublicKey(new(big.Int).SetBytes(data))
}

// N returns a copy of the modulus.
func (pk *PublicKey) N() *big.Int { return new(big.Int).Set(pk.n) }

// BitLen returns the modulus size in bits.
func (pk *PublicKey) BitLen() int { return pk.n.BitLen() }

// Bytes returns the big-endian modulus.
func (pk *PublicKey) Bytes() []byte { return pk.n.Bytes() }

// Ciphertext is an element of Z*_{N^2}.
type Ciphertext struct {
	c *saferith.Nat
}

// Bytes returns the big-endian ciphertext.
func (c *Ciphertext) Bytes() []byte { return c.c.Big().Bytes() }

// ParseCiphertext decodes a ciphertext under pk and checks its range.
func (pk *PublicKey) ParseCiphertext(data []byte) (*Ciphertext, error) {
	v := new(big.Int).SetBytes(data)
	nn := pk.nSquared.Big()
	if v.Sign() == 0 || v.Cmp(nn) >= 0 {
		return nil, ErrInvalidCiphertext
	}
	if new(big.Int).GCD(nil, nil, v, pk.n).Cmp(big.NewInt(1)) != 0 {
		return nil, ErrInvalidCiphertext
	}
	return &Ciphertext{c: natFromBig(v)}, nil
}

// randomUnit samples r in Z*_N from rand.
func (pk *PublicKey) randomUnit(rand io.Reader) (*big.Int, error) {
	buf := make([]byte, (pk.n.BitLen()+7)/8+16)
	for {
		if _, err := io.ReadFull(rand, buf); err != nil {
			return nil, err
		}
		r := new(big.Int).SetBytes(buf)
		r.Mod(r, pk.n)
		if r.Sign() != 0 && new(big.Int).GCD(nil, nil, r, pk.n).Cmp(big.NewInt(1)) == 0 {
			return r, nil
		}
	}
}

// Encrypt encrypts m, which must lie in [0, N).
func (pk *PublicKey) Encrypt(rand io.Reader, m *big.Int) (*Ciphertext, error) {
	if m.Sign() < 0 || m.Cmp(pk.n) >= 0 {
		return nil, fmt.Errorf("paillier: plaintext out of range")
	}
	r, err := pk.randomUnit(rand)
	if err != nil {
		return nil, err
	}
	return pk.encryptWithNonce(natFromBig(m), natFromBig(r)), nil
}

// encryptWithNonce computes (1 + m*N) * r^N mod N^2.
func (pk *PublicKey) encryptWithNonce(m, r *saferith.Nat) *Ciphertext {
	gm := new(saferith.Nat).ModMul(m, pk.nNat, pk.nSquared)
	gm.ModAdd(gm, one, pk.nSquared)
	rn := new(saferith.Nat).Exp(r, pk.nNat, pk.nSquared)
	return &Ciphertext{c: gm.ModMul(gm, rn, pk.nSquared)}
}

// Add returns a ciphertext of the sum of the plaintexts.
func (pk *PublicKey) Add(a, b *Ciphertext) *Ciphertext {
	return &Ciphertext{c: new(saferith.Nat).ModMul(a.c, b.c, pk.nSquared)}
}

// MulScalar returns a ciphertext of k times the plaintext of c.
func (pk *PublicKey) MulScalar(c *Ciphertext, k *big.Int) *Ciphertext {
	return &Ciphertext{c: new(saferith.Nat).Exp(c.c, natFromBig(k), pk.nSquared)}
}

// SecretKey holds the factorization of N.
type SecretKey struct {
	*PublicKey
	p, q *big.Int
	phi  *saferith.Nat
	mu   *saferith.Nat
}

// NewSecretKey rebuilds a key from its primes.
func NewSecretKey(p, q *big.Int) (*SecretKey, error) {
	if p.Cmp(q) == 0 || !p.ProbablyPrime(20) || !q.ProbablyPrime(20) {
		return nil, ErrInvalidPublicKey
	}
	n := new(big.Int).Mul(p, q)
	pk, err := NewPublicKey(n)
	if err != nil {
		return nil, err
	}
	phi := new(big.Int).Mul(new(big.Int).Sub(p, big.NewInt(1)), new(big.Int).Sub(q, big.NewInt(1)))
	if new(big.Int).GCD(nil, nil, phi, n).Cmp(big.NewInt(1)) != 0 {
		return nil, ErrInvalidPublicKey
	}
	phiNat := natFromBig(phi)
	return &SecretKey{
		PublicKey: pk,
		p:         new(big.Int).Set(p),
		q:         new(big.Int).Set(q),
		phi:       phiNat,
		mu:        new(saferith.Nat).ModInverse(phiNat, pk.nMod),
	}, nil
}

// GenerateKey creates a key with a modulus of the given size. All
// randomness comes from rand.
func GenerateKey(rand io.Reader, bits int) (*SecretKey, error) {
	if bits < MinBits {
		return nil, fmt.Errorf("paillier: modulus of %d bits is below %d", bits, MinBits)
	}
	for {
		p, err := prime(rand, bits/2)
		if err != nil {
			return nil, err
		}
		q, err := prime(rand, bits-bits/2)
		if err != nil {
			return nil, err
		}
		sk, err := NewSecretKey(p, q)
		if errors.Is(err, ErrInvalidPublicKey) {
			continue
		}
		return sk, err
	}
}

// prime returns a prime of exactly bits bits. It is a deterministic
// function of the bytes read, unlike crypto/rand.Prime.
func prime(rand io.Reader, bits int) (*big.Int, error) {
	buf := make([]byte, (bits+7)/8)
	excess := uint(len(buf)*8 - bits)
	two := big.NewInt(2)
	for {
		if _, err := io.ReadFull(rand, buf); err != nil {
			return nil, err
		}
		buf[0] &= byte(0xff >> excess)
		// Top two bits set so p*q has the full size.
		buf[0] |= byte(0xc0 >> excess)
		if excess == 7 {
			buf[1] |= 0x80
		}
		buf[len(buf)-1] |= 1

		p := new(big.Int).SetBytes(buf)
		for i := 0; i < 4096 && p.BitLen() == bits; i++ {
			if p.ProbablyPrime(20) {
				return p, nil
			}
			p.Add(p, two)
		}
	}
}

// Primes returns copies of p and q for serialization.
func (sk *SecretKey) Primes() (p, q *big.Int) {
	return new(big.Int).Set(sk.p), new(big.Int).Set(sk.q)
}

// Decrypt returns the plaintext of c in [0, N).
func (sk *SecretKey) Decrypt(c *Ciphertext) *big.Int {
	// m = L(c^phi mod N^2) * mu mod N, L(x) = (x-1)/N
	x := new(saferith.Nat).Exp(c.c, sk.phi, sk.nSquared).Big()
	x.Sub(x, big.NewInt(1))
	x.Div(x, sk.n)
	m := new(saferith.Nat).ModMul(natFromBig(x), sk.mu, sk.nMod)
	return m.Big()
}

// Wipe clears the factorization.
func (sk *SecretKey) Wipe() {
	sk.p.SetInt64(0)
	sk.q.SetInt64(0)
}
