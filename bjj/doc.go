// Package bjj implements [group.Group] over the Baby Jubjub twisted Edwards
// curve, backed by gnark-crypto. Its curve id is [group.BabyJubjub] ("bjj").
//
// The curve lives over the BN254 scalar field:
//
//	a*x^2 + y^2 = 1 + d*x^2*y^2,  a = 168700, d = 168696
//
// All arithmetic is in the prime-order subgroup of order
//
//	2736030358979909402780800718157159386076813972158567259200215660948447373041
//
// Points encode as 32 compressed bytes; the identity encodes like any other
// point and is rejected by [group.DecodePoint]. Scalars encode as 32 bytes
// big-endian.
//
// # Usage
//
// Protocols reach the group through the suite registry, which pairs it with
// the Blake2b FROST hasher:
//
//	s, _ := suite.Lookup(group.BabyJubjub)
//	f, err := s.FROST(threshold, total)
//
// [New] returns the group directly for code that needs only arithmetic.
package bjj
