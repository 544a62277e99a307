package protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/suite"
	"github.com/f3rmion/thresh/wire"
)

// SeedSize is the length of the per-instance seed.
const SeedSize = 32

// Env is what a protocol sees of its instance: identity, parameters and a
// deterministic randomness source. It is rebuilt from the snapshot on
// restore.
type Env struct {
	Self    wire.ParticipantID
	Session []byte
	Params  Params
	Suite   suite.Suite
	Log     logging.Logger

	tag   Tag
	seed  []byte
	round uint32
}

// Round returns the round being started or processed.
func (e *Env) Round() uint32 { return e.round }

// Peers returns every participant except self.
func (e *Env) Peers() []wire.ParticipantID { return e.Params.Peers(e.Self) }

// Context returns bytes binding a value to this run: tag and session.
func (e *Env) Context() []byte {
	out := make([]byte, 4, 4+len(e.Session))
	binary.BigEndian.PutUint32(out, uint32(e.tag))
	return append(out, e.Session...)
}

// Rand returns a deterministic stream for label in the current round. The
// key is HKDF-SHA256 over the instance seed with (tag, round, label) as
// info, expanded by a ChaCha20 keystream. Calling Rand twice with the same
// label in one round yields the same stream.
func (e *Env) Rand(label string) io.Reader {
	info := make([]byte, 8, 8+len(label))
	binary.BigEndian.PutUint32(info[0:4], uint32(e.tag))
	binary.BigEndian.PutUint32(info[4:8], e.round)
	info = append(info, label...)

	key := make([]byte, chacha20.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, e.seed, []byte("thresh/round-rand"), info), key); err != nil {
		panic(err)
	}
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		panic(err)
	}
	return &keystream{cipher: c}
}

type keystream struct {
	cipher *chacha20.Cipher
}

func (k *keystream) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	k.cipher.XORKeyStream(p, p)
	return len(p), nil
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
