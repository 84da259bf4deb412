package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jidchain/cmd/internal/passphrase"
	"jidchain/crypto"
	"jidchain/native/jid"
)

type recordedCall struct {
	method string
	params []interface{}
	token  string
}

func stubRPC(t *testing.T, respond func(method string) json.RawMessage) *[]recordedCall {
	t.Helper()
	calls := &[]recordedCall{}
	original := rpcCall
	rpcCall = func(method string, params []interface{}, token string) (json.RawMessage, *rpcError, error) {
		*calls = append(*calls, recordedCall{method: method, params: params, token: token})
		return respond(method), nil, nil
	}
	t.Cleanup(func() { rpcCall = original })
	return calls
}

func writeWallet(t *testing.T) (string, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{0x07}, 32))
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.keystore")
	if err := crypto.SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	original := walletPassphrase
	walletPassphrase = passphrase.Static("secret")
	t.Cleanup(func() { walletPassphrase = original })
	return path, key
}

func TestCommandsValidateFlags(t *testing.T) {
	stubRPC(t, func(method string) json.RawMessage {
		t.Fatalf("unexpected RPC call for method %s", method)
		return nil
	})
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"resolve"}, "--jid is required"},
		{[]string{"reverse"}, "--addr is required"},
		{[]string{"transfer", "--jid", "alice"}, "--to is required"},
		{[]string{"revoke", "--jid", "alice"}, "pass --yes"},
		{[]string{"nonce", "--addr", "x", "--action", "mint"}, "unknown action"},
		{[]string{"admin", "blacklist"}, "--jid is required"},
		{[]string{"admin", "explode"}, "Unknown admin subcommand"},
		{[]string{"bogus"}, "Unknown command"},
	}
	for _, tc := range cases {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		if code := run(tc.args, stdout, stderr); code != 1 {
			t.Fatalf("%v: expected exit 1, got %d", tc.args, code)
		}
		if !strings.Contains(stderr.String(), tc.want) {
			t.Fatalf("%v: expected %q in stderr, got %q", tc.args, tc.want, stderr.String())
		}
	}
}

func TestRegisterSignsBuiltMessage(t *testing.T) {
	keyPath, key := writeWallet(t)
	message := jid.RegisterMessage([32]byte{0x01}, "alice", 0, crypto.AccountID{0x02})
	calls := stubRPC(t, func(method string) json.RawMessage {
		if method == "jid_buildMessage" {
			payload, _ := json.Marshal(map[string]interface{}{"message": message, "nonce": 0})
			return payload
		}
		return json.RawMessage(`{"ok":true}`)
	})

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	if code := run([]string{"register", "--key", keyPath, "--jid", "alice"}, stdout, stderr); code != 0 {
		t.Fatalf("register exit %d: %s", code, stderr.String())
	}
	if len(*calls) != 2 || (*calls)[1].method != "jid_register" {
		t.Fatalf("unexpected calls %+v", *calls)
	}
	register := (*calls)[1]
	if register.token == "" {
		t.Fatalf("expected a bearer token")
	}
	proofHex, _ := register.params[1].(string)
	raw, err := hex.DecodeString(strings.TrimPrefix(proofHex, "0x"))
	if err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	verifier := jid.NewVerifier(jid.ModeStrict)
	if err := verifier.Verify(key.Account(), message, raw); err != nil {
		t.Fatalf("proof does not verify: %v", err)
	}
}

func TestProfileSetsEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte("rpc: http://registry.example:9000\ntokenTTL: 5m\n"), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	t.Setenv("RPC_URL", "")
	original := rpcEndpoint
	t.Cleanup(func() { rpcEndpoint = original; activeProfile = Profile{} })

	rest, err := applyGlobalFlags([]string{"--profile", path, "info"})
	if err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if len(rest) != 1 || rest[0] != "info" {
		t.Fatalf("unexpected remaining args %v", rest)
	}
	if rpcEndpoint != "http://registry.example:9000" {
		t.Fatalf("expected profile endpoint, got %s", rpcEndpoint)
	}
	if activeProfile.ttl().Minutes() != 5 {
		t.Fatalf("expected 5m ttl, got %s", activeProfile.ttl())
	}
}
