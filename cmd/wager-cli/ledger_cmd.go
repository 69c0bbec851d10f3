package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func runRegister(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("register", stderr)
	var username string
	fs.StringVar(&username, "username", "", "username to claim")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(username) == "" {
		return printCommandError(stderr, "--username is required")
	}
	return execute(stdout, stderr, http.MethodPost, "/users", map[string]string{"username": username})
}

func runUser(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return printCommandError(stderr, "usage: user <address>")
	}
	return execute(stdout, stderr, http.MethodGet, "/users/"+url.PathEscape(args[0]), nil)
}

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("mint", stderr)
	var address, token, amount string
	fs.StringVar(&address, "address", "", "account to credit")
	fs.StringVar(&token, "token", "", "token symbol")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printCommandError(stderr, "--address is required")
	}
	if msg := checkTokenAmount(token, amount); msg != "" {
		return printCommandError(stderr, msg)
	}
	return execute(stdout, stderr, http.MethodPost, "/mint", map[string]string{
		"address": address,
		"token":   strings.ToUpper(token),
		"amount":  amount,
	})
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	switch len(args) {
	case 1:
		return execute(stdout, stderr, http.MethodGet, "/ledgers/"+url.PathEscape(args[0]), nil)
	case 2:
		path := fmt.Sprintf("/ledgers/%s/balances/%s", url.PathEscape(args[0]), url.PathEscape(strings.ToUpper(args[1])))
		return execute(stdout, stderr, http.MethodGet, path, nil)
	default:
		return printCommandError(stderr, "usage: balance <address> [token]")
	}
}

func runDeposit(args []string, stdout, stderr io.Writer) int {
	return runLedgerTransfer("deposit", args, stdout, stderr)
}

func runWithdraw(args []string, stdout, stderr io.Writer) int {
	return runLedgerTransfer("withdraw", args, stdout, stderr)
}

func runLedgerTransfer(action string, args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet(action, stderr)
	var address, token, amount string
	fs.StringVar(&address, "address", gatewayCaller, "ledger owner (defaults to --caller)")
	fs.StringVar(&token, "token", "", "token symbol")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printCommandError(stderr, "--address is required")
	}
	if msg := checkTokenAmount(token, amount); msg != "" {
		return printCommandError(stderr, msg)
	}
	path := fmt.Sprintf("/ledgers/%s/%s", url.PathEscape(address), action)
	return execute(stdout, stderr, http.MethodPost, path, map[string]string{
		"token":  strings.ToUpper(token),
		"amount": amount,
	})
}

func runApprove(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("approve", stderr)
	var address, spender, token, amount string
	fs.StringVar(&address, "address", gatewayCaller, "ledger owner (defaults to --caller)")
	fs.StringVar(&spender, "spender", "", "account allowed to spend")
	fs.StringVar(&token, "token", "", "token symbol")
	fs.StringVar(&amount, "amount", "", "allowance in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printCommandError(stderr, "--address is required")
	}
	if spender == "" {
		return printCommandError(stderr, "--spender is required")
	}
	if msg := checkTokenAmount(token, amount); msg != "" {
		return printCommandError(stderr, msg)
	}
	return execute(stdout, stderr, http.MethodPost, "/ledgers/"+url.PathEscape(address)+"/approvals", map[string]string{
		"spender": spender,
		"token":   strings.ToUpper(token),
		"amount":  amount,
	})
}

func runRevoke(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("revoke", stderr)
	var address, spender, token string
	fs.StringVar(&address, "address", gatewayCaller, "ledger owner (defaults to --caller)")
	fs.StringVar(&spender, "spender", "", "account whose approval is revoked")
	fs.StringVar(&token, "token", "", "token symbol")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" || spender == "" || token == "" {
		return printCommandError(stderr, "--address, --spender and --token are required")
	}
	path := fmt.Sprintf("/ledgers/%s/approvals/%s?%s", url.PathEscape(address), url.PathEscape(spender),
		url.Values{"token": {strings.ToUpper(token)}}.Encode())
	return execute(stdout, stderr, http.MethodDelete, path, nil)
}

// checkTokenAmount returns a usage message when either value is missing or
// the amount is not a plain decimal integer.
func checkTokenAmount(token, amount string) string {
	if strings.TrimSpace(token) == "" {
		return "--token is required"
	}
	if amount == "" {
		return "--amount is required"
	}
	if !isDigits(amount) {
		return "--amount must be a non-negative integer"
	}
	return ""
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// runTreasury reads or drains the platform treasury ledger. Withdrawals pay
// the authority's external balance.
func runTreasury(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printCommandError(stderr, "usage: treasury <balance TOKEN|withdraw --token --amount>")
	}
	switch args[0] {
	case "balance":
		if len(args) != 2 {
			return printCommandError(stderr, "usage: treasury balance <token>")
		}
		return execute(stdout, stderr, http.MethodGet, "/treasury/balances/"+url.PathEscape(strings.ToUpper(args[1])), nil)
	case "withdraw":
		fs := newCommandFlagSet("treasury withdraw", stderr)
		var token, amount string
		fs.StringVar(&token, "token", "", "token symbol")
		fs.StringVar(&amount, "amount", "", "amount in base units")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if msg := checkTokenAmount(token, amount); msg != "" {
			return printCommandError(stderr, msg)
		}
		return execute(stdout, stderr, http.MethodPost, "/treasury/withdraw", map[string]string{
			"token":  strings.ToUpper(token),
			"amount": amount,
		})
	default:
		return printCommandError(stderr, fmt.Sprintf("unknown treasury subcommand %q", args[0]))
	}
}
