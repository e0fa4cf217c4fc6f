// Command warp-keygen generates a secp256k1 keypair serialized the way warp
// expects in its configuration files, optionally searching for a public key
// matching a regular expression.
package main

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/pflag"

	"github.com/a7g4/warp/internal/wirecrypto"
)

func main() {
	help := pflag.BoolP("help", "h", false, "Show this help text")
	pflag.Parse()
	if *help {
		fmt.Printf("usage: %s [regex]\n\nGenerates a keypair, retrying until the public key matches regex (default: match anything).\n", os.Args[0])
		os.Exit(0)
	}

	pattern := ".*"
	if pflag.NArg() > 0 {
		pattern = pflag.Arg(0)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid regex %q: %v\n", pattern, err)
		os.Exit(1)
	}

	fmt.Printf("Searching for %s\n", re.String())

	for {
		priv, err := wirecrypto.GeneratePrivateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: generate private key: %v\n", err)
			os.Exit(1)
		}
		pubString := priv.PublicKey().String()
		if re.MatchString(pubString) {
			fmt.Printf("Private key: %s\n", priv.String())
			fmt.Printf("Public key: %s\n", pubString)
			return
		}
	}
}
