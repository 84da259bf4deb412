package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var rpcEndpoint = defaultRPCEndpoint() // RPC_URL, the profile or --rpc override the default
var rpcAuthToken = os.Getenv("JID_RPC_TOKEN")

var httpClient = &http.Client{Timeout: 15 * time.Second}

// rpcCall is swapped out in tests.
var rpcCall = callRPC

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	command, rest := args[0], args[1:]
	switch command {
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "address":
		return runAddress(rest, stdout, stderr)
	case "token":
		return runToken(rest, stdout, stderr)
	case "register":
		return runRegister(rest, stdout, stderr)
	case "resolve":
		return runResolve(rest, stdout, stderr)
	case "reverse":
		return runReverse(rest, stdout, stderr)
	case "update":
		return runUpdate(rest, stdout, stderr)
	case "transfer":
		return runTransfer(rest, stdout, stderr)
	case "revoke":
		return runRevoke(rest, stdout, stderr)
	case "nonce":
		return runNonce(rest, stdout, stderr)
	case "info":
		return runSimpleQuery("jid_info", nil, stdout, stderr)
	case "balance":
		return runBalance(rest, stdout, stderr)
	case "faucet":
		return runFaucet(rest, stdout, stderr)
	case "history":
		return runHistory(rest, stdout, stderr)
	case "admin":
		return runAdminCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  jid-cli [--rpc URL] [--profile FILE] <command> [flags]

Commands:
  keygen    Generate a wallet key and save it to an encrypted keystore
  address   Print the account of a keystore
  token     Mint a self-signed bearer token for a keystore
  register  Register an identifier for the keystore account
  resolve   Resolve an identifier to its record
  reverse   Look up the identifier held by an account
  update    Replace the metadata of an owned identifier
  transfer  Transfer an owned identifier to another account
  revoke    Permanently revoke an owned identifier
  nonce     Show the next nonce of an account
  info      Show registry configuration and counters
  balance   Show the native balance of an account
  faucet    Request development funds
  history   Show explorer history for an identifier
  admin     Administrative commands (see jid-cli admin)
`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8645"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	profilePath := defaultProfilePath()
	rpcOverride := ""
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--profile":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				rpcOverride = args[i+1]
			} else {
				profilePath = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			rpcOverride = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--profile="):
			profilePath = strings.TrimPrefix(arg, "--profile=")
		default:
			out = append(out, arg)
		}
	}
	profile, err := loadProfile(profilePath)
	if err != nil {
		return nil, err
	}
	activeProfile = profile
	if profile.RPC != "" && os.Getenv("RPC_URL") == "" {
		rpcEndpoint = profile.RPC
	}
	if rpcOverride != "" {
		rpcEndpoint = rpcOverride
	}
	return out, nil
}

func callRPC(method string, params []interface{}, token string) (json.RawMessage, *rpcError, error) {
	if params == nil {
		params = []interface{}{}
	}
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": params}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reach node at %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response from node (HTTP %d)", resp.StatusCode)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	if len(err.Data) > 0 {
		fmt.Fprintf(w, "RPC error %d: %s %s\n", err.Code, err.Message, string(err.Data))
		return 1
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err == nil {
		result = pretty.Bytes()
	}
	if _, err := w.Write(result); err == nil {
		if result[len(result)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
}

// invoke performs the call and renders the outcome, returning the exit code.
func invoke(method string, params []interface{}, token string, stdout, stderr io.Writer) int {
	result, rpcErr, err := rpcCall(method, params, token)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runSimpleQuery(method string, params []interface{}, stdout, stderr io.Writer) int {
	return invoke(method, params, rpcAuthToken, stdout, stderr)
}
