// Package frost implements the FROST (Flexible Round-Optimized Schnorr Threshold)
// primitives over an arbitrary prime-order group: a Feldman DKG with proofs of
// knowledge, two-round signing, and Lagrange interpolation shared by the other
// threshold protocols.
//
// The functions here are stateless computations over explicit inputs. Round
// management, message validation and resumable state live in the protocol
// packages built on top of them.
//
// # Distributed Key Generation (DKG)
//
//  1. Each participant creates a polynomial with [FROST.NewParticipant] and
//     broadcasts [Participant.Round1Broadcast]: Feldman commitments and a
//     proof of knowledge bound to the run context.
//  2. Receivers check broadcasts with [FROST.VerifyRound1].
//  3. Each participant sends [FROST.Round1PrivateSend] to every peer, and
//     receivers verify with [FROST.Round2ReceiveShare].
//  4. [FROST.Finalize] combines the shares; [FROST.PublicShare] and
//     [FROST.GroupKey] derive the public key material from commitments.
//
// # Threshold Signing
//
//  1. Each signer generates hedged nonces with [FROST.SignRound1].
//  2. Each signer computes z_i with [FROST.SignRound2] over the complete
//     commitment list. The list is always sorted by participant id and the
//     binding factor covers the group key, the message and every commitment.
//  3. [FROST.VerifySignatureShare] identifies a misbehaving signer and
//     [FROST.Aggregate] sums the shares; [FROST.Verify] checks the result.
//
// Nonces are single use. [FROST.SignRound2] zeroes them and refuses a nonce
// that was already consumed.
package frost
