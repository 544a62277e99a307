// Package keygen implements distributed key generation as a four-round
// [protocol.Protocol]: a Feldman DKG with proofs of knowledge, preceded by a
// commit round so that no dealer can choose its polynomial after seeing
// the others.
//
//  1. Broadcast H(context, id, commitments, proof, ephemeral key).
//  2. Broadcast the opening; receivers check the hash, the commitment count
//     and the proof of knowledge.
//  3. Send each peer its share, sealed with a key derived from the
//     ephemeral Diffie-Hellman keys of round 2. Receivers verify it against
//     the sender's commitments.
//  4. Broadcast (Y, X_i); receivers check both against their own
//     derivation from public commitments.
//
// The result is a [protocol.KeyShare] holding x_i, Y and every X_k.
package keygen
