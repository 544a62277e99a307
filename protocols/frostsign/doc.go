// Package frostsign runs two-round FROST threshold Schnorr signing as a
// [protocol.Protocol].
//
// Round 1 broadcasts the nonce commitments (D_i, E_i). Once all commitments
// are in, each signer sorts them by participant id, derives the binding
// factors over the complete list and broadcasts its share z_i. The combiner
// verifies every z_j against D_j, E_j and X_j before aggregating, then
// verifies the aggregate signature under the group key.
//
// Nonces are consumed by the first Process call and zeroed; an instance
// never signs twice.
package frostsign
