// Command thresim runs the threshold protocols among simulated parties in
// one process: key generation followed by any of FROST signing, ECDSA
// signing and threshold decryption.
//
//	thresim --curve secp256k1 --parties 5 --threshold 3 --signers 1,3,5
//	THRESIM_RESTORE=true thresim --protocols decrypt
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "thresim:", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "thresim:", err)
		os.Exit(1)
	}
}
