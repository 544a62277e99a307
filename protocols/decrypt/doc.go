// Package decrypt implements hybrid threshold ElGamal.
//
// [Encrypt] picks r, publishes C1 = r*G and seals the plaintext under a key
// derived from r*Y, where Y is the group key. Decryption is a single
// broadcast round: each participant publishes D_i = x_i*C1 with a
// Chaum-Pedersen proof that D_i and X_i share a discrete log. Partials that
// fail the proof are dropped. With at least t valid partials, r*Y is
// recovered by Lagrange interpolation in the exponent and the blob opened.
package decrypt
