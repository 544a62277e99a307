// Package secp256k1 implements [group.Group] over the secp256k1 curve using
// the decred secp256k1 arithmetic. It is the only group accepted by the
// ECDSA-style threshold signing protocol, and it is the default curve for
// key generation, FROST signing and threshold decryption.
//
// Points are encoded as 33-byte SEC1 compressed keys; the identity, which has
// no SEC1 encoding, is written as 33 zero bytes.
package secp256k1
