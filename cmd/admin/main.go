// Command admin runs one-off maintenance tasks against the user database:
// schema migration, default user seeding, expired key sweeping and key issuance.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
