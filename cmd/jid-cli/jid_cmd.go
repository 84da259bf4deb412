package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"jidchain/crypto"
	"jidchain/native/jid"
)

type builtMessage struct {
	Message string `json:"message"`
	Nonce   uint64 `json:"nonce"`
}

// signAction asks the node for the canonical message and signs it locally.
func signAction(key *crypto.PrivateKey, action jid.Action, name string, extra ...interface{}) (string, uint64, error) {
	params := append([]interface{}{action.String(), name, key.Account().String()}, extra...)
	result, rpcErr, err := rpcCall("jid_buildMessage", params, "")
	if err != nil {
		return "", 0, err
	}
	if rpcErr != nil {
		return "", 0, fmt.Errorf("build message: %s", rpcErr.Message)
	}
	var msg builtMessage
	if err := json.Unmarshal(result, &msg); err != nil {
		return "", 0, fmt.Errorf("decode message: %w", err)
	}
	proof, err := jid.SignEnvelope(key, msg.Message)
	if err != nil {
		return "", 0, err
	}
	return "0x" + hex.EncodeToString(proof), msg.Nonce, nil
}

func requireFlag(stderr io.Writer, name, value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		fmt.Fprintf(stderr, "Error: --%s is required\n", name)
		return "", false
	}
	return trimmed, true
}

func runRegister(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath, name, value string
	var expiresAt uint64
	fs.StringVar(&keyPath, "key", "", "keystore file of the registering account")
	fs.StringVar(&name, "jid", "", "identifier to register")
	fs.Uint64Var(&expiresAt, "expires-at", 0, "expiry in unix milliseconds (0 never expires)")
	fs.StringVar(&value, "value", "", "amount to attach (defaults to the registration fee)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	name, ok := requireFlag(stderr, "jid", name)
	if !ok {
		return 1
	}
	key, err := loadWallet(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	proof, nonce, err := signAction(key, jid.ActionRegister, name)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	token, err := walletToken(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params := []interface{}{name, proof, nonce, expiresAt}
	if v := strings.ReplaceAll(strings.TrimSpace(value), "_", ""); v != "" {
		params = append(params, v)
	}
	return invoke("jid_register", params, token, stdout, stderr)
}

func runResolve(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var name string
	fs.StringVar(&name, "jid", "", "identifier to resolve")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	name, ok := requireFlag(stderr, "jid", name)
	if !ok {
		return 1
	}
	return runSimpleQuery("jid_resolve", []interface{}{name}, stdout, stderr)
}

func runReverse(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reverse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var addr string
	fs.StringVar(&addr, "addr", "", "account to look up")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, ok := requireFlag(stderr, "addr", addr)
	if !ok {
		return 1
	}
	return runSimpleQuery("jid_resolveByAccount", []interface{}{addr}, stdout, stderr)
}

func runUpdate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath, name, metadataHex, text string
	fs.StringVar(&keyPath, "key", "", "keystore file of the owner")
	fs.StringVar(&name, "jid", "", "identifier to update")
	fs.StringVar(&metadataHex, "metadata", "", "hex encoded metadata")
	fs.StringVar(&text, "text", "", "plain text metadata")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	name, ok := requireFlag(stderr, "jid", name)
	if !ok {
		return 1
	}
	if metadataHex != "" && text != "" {
		fmt.Fprintln(stderr, "Error: --metadata and --text are mutually exclusive")
		return 1
	}
	if text != "" {
		metadataHex = hex.EncodeToString([]byte(text))
	}
	key, err := loadWallet(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	token, err := walletToken(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return invoke("jid_updateMetadata", []interface{}{name, "0x" + strings.TrimPrefix(metadataHex, "0x")}, token, stdout, stderr)
}

func runTransfer(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath, name, to string
	fs.StringVar(&keyPath, "key", "", "keystore file of the current owner")
	fs.StringVar(&name, "jid", "", "identifier to transfer")
	fs.StringVar(&to, "to", "", "account receiving the identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	name, ok := requireFlag(stderr, "jid", name)
	if !ok {
		return 1
	}
	to, ok = requireFlag(stderr, "to", to)
	if !ok {
		return 1
	}
	if _, err := crypto.ParseAccount(to); err != nil {
		fmt.Fprintf(stderr, "Error: --to: %v\n", err)
		return 1
	}
	key, err := loadWallet(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	proof, nonce, err := signAction(key, jid.ActionTransfer, name, to)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	token, err := walletToken(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return invoke("jid_transfer", []interface{}{name, to, proof, nonce}, token, stdout, stderr)
}

func runRevoke(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath, name string
	var confirm bool
	fs.StringVar(&keyPath, "key", "", "keystore file of the owner")
	fs.StringVar(&name, "jid", "", "identifier to revoke")
	fs.BoolVar(&confirm, "yes", false, "confirm the revocation is permanent")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	name, ok := requireFlag(stderr, "jid", name)
	if !ok {
		return 1
	}
	if !confirm {
		fmt.Fprintln(stderr, "Error: revocation is permanent; pass --yes to confirm")
		return 1
	}
	key, err := loadWallet(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	token, err := walletToken(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return invoke("jid_revoke", []interface{}{name}, token, stdout, stderr)
}

func runNonce(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("nonce", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var addr, action string
	fs.StringVar(&addr, "addr", "", "account to query")
	fs.StringVar(&action, "action", "register", "register or transfer")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, ok := requireFlag(stderr, "addr", addr)
	if !ok {
		return 1
	}
	if _, valid := jid.ParseAction(action); !valid {
		fmt.Fprintf(stderr, "Error: unknown action %q\n", action)
		return 1
	}
	return runSimpleQuery("jid_getNonce", []interface{}{addr, action}, stdout, stderr)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var addr string
	fs.StringVar(&addr, "addr", "", "account to query")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, ok := requireFlag(stderr, "addr", addr)
	if !ok {
		return 1
	}
	return runSimpleQuery("account_balance", []interface{}{addr}, stdout, stderr)
}

func runFaucet(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("faucet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var addr string
	fs.StringVar(&addr, "addr", "", "account to fund")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, ok := requireFlag(stderr, "addr", addr)
	if !ok {
		return 1
	}
	return runSimpleQuery("dev_faucet", []interface{}{addr}, stdout, stderr)
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var name string
	var limit uint64
	fs.StringVar(&name, "jid", "", "identifier or identifier hash")
	fs.Uint64Var(&limit, "limit", 50, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	name, ok := requireFlag(stderr, "jid", name)
	if !ok {
		return 1
	}
	return runSimpleQuery("explorer_history", []interface{}{name, limit}, stdout, stderr)
}
