// Package wire defines the protocol message envelope exchanged between
// participants and its binary encoding.
//
// The encoding is protobuf-compatible and written with protowire, so any
// protobuf runtime can read it with the schema below. Unknown fields are
// skipped and missing fields decode to their zero value.
//
//	message Message {
//	  uint32 protocol  = 1;
//	  uint32 round     = 2;
//	  uint32 sender    = 3;
//	  uint32 recipient = 4; // 0 = broadcast
//	  bytes  payload   = 5;
//	  bytes  session   = 6;
//	}
//
//	message Batch {
//	  repeated bytes messages = 1;
//	}
package wire
