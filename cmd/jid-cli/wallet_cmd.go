package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"jidchain/cmd/internal/passphrase"
	"jidchain/crypto"
	"jidchain/rpc"
)

const walletPassEnv = "JID_WALLET_PASSPHRASE"

var walletPassphrase = passphrase.NewSource(walletPassEnv, "wallet keystore")

func loadWallet(path string) (*crypto.PrivateKey, error) {
	path = activeProfile.keystore(path)
	if path == "" {
		return nil, errors.New("--key is required (or set keystore in the profile)")
	}
	pass, err := walletPassphrase.Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

// walletToken returns JID_RPC_TOKEN when set, otherwise a token self-signed
// by key.
func walletToken(key *crypto.PrivateKey) (string, error) {
	if rpcAuthToken != "" {
		return rpcAuthToken, nil
	}
	return rpc.SignSelfToken(key, activeProfile.Issuer, activeProfile.Audience, activeProfile.ttl())
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out string
	fs.StringVar(&out, "out", "", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	out = strings.TrimSpace(out)
	if out == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	if _, err := os.Stat(out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", out)
		return 1
	}
	pass, err := walletPassphrase.GetNew()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "account: %s\nkeystore: %s\n", key.Account(), out)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath string
	fs.StringVar(&keyPath, "key", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadWallet(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	account := key.Account()
	fmt.Fprintf(stdout, "account: %s\nhex: %s\nhashed: %s\n", account, account.Hex(), crypto.HashedAccount(key.PublicKey()))
	return 0
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath string
	fs.StringVar(&keyPath, "key", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadWallet(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	token, err := rpc.SignSelfToken(key, activeProfile.Issuer, activeProfile.Audience, activeProfile.ttl())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
