package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

func runAdminCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("admin "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath, name, reason, amount, account string
	fs.StringVar(&keyPath, "key", "", "keystore file of the registry owner")

	var method string
	var params func() ([]interface{}, bool)
	switch sub {
	case "pause", "unpause":
		method = "jid_setPaused"
		params = func() ([]interface{}, bool) { return []interface{}{sub == "pause"}, true }
	case "blacklist", "unblacklist":
		fs.StringVar(&name, "jid", "", "identifier")
		method = "jid_" + sub
		params = func() ([]interface{}, bool) {
			v, ok := requireFlag(stderr, "jid", name)
			return []interface{}{v}, ok
		}
	case "revoke":
		fs.StringVar(&name, "jid", "", "identifier to revoke")
		fs.StringVar(&reason, "reason", "", "reason; only its digest is published")
		method = "jid_adminRevoke"
		params = func() ([]interface{}, bool) {
			v, ok := requireFlag(stderr, "jid", name)
			return []interface{}{v, reason}, ok
		}
	case "withdraw":
		fs.StringVar(&amount, "amount", "", "amount to withdraw in base units")
		method = "jid_withdraw"
		params = func() ([]interface{}, bool) {
			v, ok := requireFlag(stderr, "amount", amount)
			return []interface{}{strings.ReplaceAll(v, "_", "")}, ok
		}
	case "set-fee":
		fs.StringVar(&amount, "fee", "", "registration fee in base units")
		method = "jid_setRegistrationFee"
		params = func() ([]interface{}, bool) {
			v, ok := requireFlag(stderr, "fee", amount)
			return []interface{}{strings.ReplaceAll(v, "_", "")}, ok
		}
	case "transfer-ownership":
		fs.StringVar(&account, "to", "", "new registry owner")
		method = "jid_transferOwnership"
		params = func() ([]interface{}, bool) {
			v, ok := requireFlag(stderr, "to", account)
			return []interface{}{v}, ok
		}
	default:
		fmt.Fprintf(stderr, "Unknown admin subcommand: %s\n", sub)
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	if err := fs.Parse(rest); err != nil {
		return 1
	}
	values, ok := params()
	if !ok {
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
	return invoke(method, values, token, stdout, stderr)
}

func adminUsage() string {
	return strings.TrimSpace(`Usage:
  jid-cli admin <command> --key FILE [flags]

Commands:
  pause               Pause registrations and transfers
  unpause             Resume the registry
  blacklist           Block an identifier from registration
  unblacklist         Lift a blacklist entry
  revoke              Revoke any identifier with a reason
  withdraw            Withdraw collected fees to the owner
  set-fee             Change the registration fee
  transfer-ownership  Hand the registry to a new owner
`)
}
