package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rlmd-io/rlmdcore/cryptoref"
)

func main() {
	count := flag.Int("validators", 5, "Number of keys to generate")
	outDir := flag.String("keys-dir", "keys", "Output directory for keys")
	stake := flag.Uint64("stake", 1, "Stake assigned to each validator in the printed YAML")
	printYAML := flag.Bool("print-yaml", false, "Print GENESIS_VALIDATORS yaml to stdout")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	var pubkeys []string

	fmt.Printf("Generating %d keys in %s...\n", *count, *outDir)
	for i := 0; i < *count; i++ {
		// Deterministic seed based on index
		kp := cryptoref.GenerateKeypair(uint64(i))

		pkPath := filepath.Join(*outDir, fmt.Sprintf("validator_%d.pk", i))
		skPath := filepath.Join(*outDir, fmt.Sprintf("validator_%d.sk", i))

		if err := cryptoref.SaveKeypair(kp, pkPath, skPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save keypair %d: %v\n", i, err)
			os.Exit(1)
		}

		pubkeys = append(pubkeys, hex.EncodeToString(kp.PublicKeyBytes()))

		fmt.Printf("Generated keypair %d\n", i)
	}

	if *printYAML {
		fmt.Println("\nGENESIS_VALIDATORS:")
		for _, pk := range pubkeys {
			fmt.Printf("  - pubkey: \"0x%s\"\n", pk)
			fmt.Printf("    stake: %d\n", *stake)
		}
	}
}
