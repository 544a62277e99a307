// Package ed25519 implements [group.Group] over the prime-order subgroup of
// edwards25519, backed by the kyber suite.
//
// Scalars use the module-wide 32-byte big-endian encoding. Points use the
// standard 32-byte Ed25519 encoding, and decoding rejects any point with a
// small-order component.
package ed25519
