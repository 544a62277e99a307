// Package channel provides authenticated encryption for point-to-point
// protocol payloads. The orchestrator relays messages it must not read, so
// participants encrypt private shares under a pairwise key before handing
// them over.
//
// Blobs are nonce || ciphertext || tag under AES-256-GCM. A blob that fails
// authentication is always reported as [ErrAuthenticationFailed], never as
// an empty plaintext.
package channel
