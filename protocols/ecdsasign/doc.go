// Package ecdsasign runs threshold ECDSA over secp256k1 as a four-round
// [protocol.Protocol], following the multiplicative-to-additive (MtA) shape
// of Gennaro-Goldfeder 2018 without the range proofs.
//
// Each signer i holds w_i = lambda_i * x_i, so that sum(w_i) = x over the
// signing set. The rounds are:
//
//  1. Broadcast a commitment to Gamma_i = gamma_i*G, a fresh Paillier
//     modulus N_i and Enc_i(k_i).
//  2. Send each peer j two MtA responses under N_j: Enc_j(k_j*gamma_i + b)
//     and Enc_j(k_j*w_i + b'), keeping -b and -b' as additive shares.
//  3. Broadcast delta_i (a share of k*gamma) and open Gamma_i.
//  4. Compute R = delta^-1 * sum(Gamma_j), r = R.x and broadcast
//     s_i = m*k_i + r*sigma_i, where sigma_i is a share of k*x.
//
// The combined s is normalized to low-S and the signature verified with
// btcec before it is returned.
package ecdsasign
