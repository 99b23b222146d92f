// Command prbmgctl performs operator tasks against a prbmg deployment:
// schema migrations, user provisioning, token minting and model resolution.
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
