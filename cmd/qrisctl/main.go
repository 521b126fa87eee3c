// Command qrisctl is an offline toolbox for QRIS payloads: checksum, decode,
// fingerprint signing, tag 62 injection and verification.
package main

import (
	"fmt"
	"os"
)

// Version is stamped at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
