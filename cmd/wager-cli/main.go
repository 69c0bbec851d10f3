package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	gatewayURL   = defaultGatewayURL() // WAGER_GATEWAY_URL or --gateway
	gatewayToken = strings.TrimSpace(os.Getenv("WAGER_AUTH_TOKEN"))
	// gatewayCaller is sent as X-Wager-Caller when no bearer token is set.
	// Only development gateways running without auth honour it.
	gatewayCaller = strings.TrimSpace(os.Getenv("WAGER_CALLER"))
)

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
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "register":
		return runRegister(args[1:], stdout, stderr)
	case "user":
		return runUser(args[1:], stdout, stderr)
	case "mint":
		return runMint(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "deposit":
		return runDeposit(args[1:], stdout, stderr)
	case "withdraw":
		return runWithdraw(args[1:], stdout, stderr)
	case "approve":
		return runApprove(args[1:], stdout, stderr)
	case "revoke":
		return runRevoke(args[1:], stdout, stderr)
	case "treasury":
		return runTreasury(args[1:], stdout, stderr)
	case "bet":
		return runBetCommand(args[1:], stdout, stderr)
	case "arbiter":
		return runArbiterCommand(args[1:], stdout, stderr)
	case "history":
		return runHistoryCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func defaultGatewayURL() string {
	if v := strings.TrimSpace(os.Getenv("WAGER_GATEWAY_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// applyGlobalFlags strips the connection flags wherever they appear so
// subcommand flag sets never see them.
func applyGlobalFlags(args []string) ([]string, error) {
	globals := map[string]*string{
		"--gateway": &gatewayURL,
		"--auth":    &gatewayToken,
		"--caller":  &gatewayCaller,
	}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		target, ok := globals[name]
		if !ok {
			out = append(out, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", name)
			}
			value = args[i+1]
			i++
		}
		*target = strings.TrimSpace(value)
	}
	return out, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: wager-cli [--gateway URL] [--auth JWT] [--caller ADDRESS] <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Requests authenticate with --auth (or WAGER_AUTH_TOKEN). Development gateways")
	fmt.Fprintln(w, "running without auth accept --caller (or WAGER_CALLER) instead.")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  generate-key --out <file>          - Generates a key and writes an encrypted keystore")
	fmt.Fprintln(w, "  address --key <file>               - Prints the address held by a keystore")
	fmt.Fprintln(w, "  token                              - Issues a gateway bearer token")
	fmt.Fprintln(w, "  register --username <name>         - Registers the caller as a user")
	fmt.Fprintln(w, "  user <address>                     - Shows a registered user")
	fmt.Fprintln(w, "  mint                               - Credits an account (treasury only)")
	fmt.Fprintln(w, "  balance <address> [token]          - Shows ledger balances")
	fmt.Fprintln(w, "  deposit | withdraw                 - Moves tokens into or out of the caller's ledger")
	fmt.Fprintln(w, "  approve | revoke                   - Manages spending approvals")
	fmt.Fprintln(w, "  treasury balance|withdraw          - Reads or pays out collected fees (authority only)")
	fmt.Fprintln(w, "  bet                                - Bet lifecycle subcommands")
	fmt.Fprintln(w, "  arbiter                            - Arbiter governance subcommands")
	fmt.Fprintln(w, "  history                            - Indexed bet and event history")
}
