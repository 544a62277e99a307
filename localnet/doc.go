// Package localnet runs protocol instances against each other in memory. It
// plays the orchestrator: it routes broadcast and point-to-point messages,
// shuffles delivery order, and can snapshot and restore every instance
// between deliveries to exercise resumption.
//
// Each delivery step advances all parties concurrently; an instance is only
// ever touched by one goroutine at a time.
package localnet
