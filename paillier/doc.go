// Package paillier implements the Paillier additively homomorphic
// cryptosystem with generator N+1, as needed for multiplicative-to-additive
// share conversion in threshold ECDSA.
//
// Modular arithmetic runs on saferith's constant-time naturals. Key
// generation reads all of its randomness from the supplied reader, so a
// deterministic reader yields a deterministic key.
package paillier
