// Package logging defines the small structured logger used by protocol
// instances, the boundary layer and the simulator. The default
// implementation is backed by zap; [Nop] discards everything.
//
// Secret values are never passed to a Logger. Call sites that would
// otherwise log key material emit [Redacted] in its place.
package logging
