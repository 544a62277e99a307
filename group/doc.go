// Package group defines the abstract prime-order group used by every
// threshold protocol in this module.
//
// Three interfaces hide all curve-specific arithmetic:
//
//   - [Scalar]: integers modulo the group order
//   - [Point]: group elements
//   - [Group]: factory, generator, random and hashed scalars
//
// Concrete groups live in sibling packages (secp256k1, bjj, ed25519) and are
// selected by [ID] through the suite package. Protocol code never type-asserts
// to a concrete group.
//
// # Mutable receivers
//
// Arithmetic sets the receiver and returns it:
//
//	// a + b*c
//	r := g.NewScalar().Mul(b, c)
//	r = g.NewScalar().Add(a, r)
//
// # Untrusted input
//
// Bytes that arrive from other participants must go through [DecodeScalar]
// and [DecodePoint], which reject non-canonical scalars, invalid points and
// the identity.
package group
