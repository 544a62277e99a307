// Package boundary is the foreign-callable surface of the engine.
//
// Live instances sit behind opaque [Handle] values in a [Table] that the
// caller constructs; a handle is an index into the table, never an address.
// Every entry point validates its buffers, converts panics into errors and
// reports failures as an explicit [Code]. Destroying a handle zeroes the
// instance's secret state before it is released.
//
// # Encodings
//
// Create requests are deterministic CBOR ([CreateRequest]). Inbound and
// outbound messages are wire batches ([wire.MarshalBatch]). Instance state is
// the self-describing snapshot produced by [session.Session.MarshalBinary],
// and artifacts are [protocol.EncodeArtifact] output.
//
// # Stateless use
//
// [Table.Step] advances a serialized state directly, for callers that keep no
// live instances between calls.
package boundary
