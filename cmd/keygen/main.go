// Command keygen generates key material for a FheDataHub deployment.
//
// # Usage
//
// Generate a BFV key pair for the hub (public) and oracle (secret):
//
//	go run ./cmd/keygen bfv --out=bfv
//	# writes bfv.pub and bfv.key
//
// Generate an Ed25519 signing key pair, printed as hex:
//
//	go run ./cmd/keygen ed25519
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/marthaediazx/FheDataHub/cmd/common"
	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "bfv":
		err = runBFV(os.Args[2:])
	case "ed25519":
		err = runEd25519(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`keygen - generate FheDataHub key material

Usage:
  keygen bfv --out=<prefix>    Generate a BFV key pair (<prefix>.pub, <prefix>.key)
  keygen ed25519               Generate an Ed25519 key pair (hex on stdout)`)
}

func runBFV(args []string) error {
	fs := flag.NewFlagSet("bfv", flag.ExitOnError)
	out := fs.String("out", "bfv", "Output file prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("Generating BFV key pair, this can take a moment...")
	publicKey, secretKey, err := fhe.GenerateBFVKeyPair()
	if err != nil {
		return fmt.Errorf("generating BFV keys: %w", err)
	}

	pubPath := *out + ".pub"
	secPath := *out + ".key"
	if err := common.WriteKeyFile(pubPath, publicKey); err != nil {
		return err
	}
	if err := common.WriteKeyFile(secPath, secretKey); err != nil {
		return err
	}

	fmt.Printf("Public key:  %s (%d bytes, for the hub)\n", pubPath, len(publicKey))
	fmt.Printf("Secret key:  %s (%d bytes, for the oracle only)\n", secPath, len(secretKey))
	return nil
}

func runEd25519(args []string) error {
	fs := flag.NewFlagSet("ed25519", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating ed25519 keys: %w", err)
	}

	fmt.Printf("Public key:  %s\n", pub.String())
	fmt.Printf("Private key: %s\n", hex.EncodeToString(priv.Bytes()))
	return nil
}
