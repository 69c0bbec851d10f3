package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var betNow = time.Now

func runBetCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, betUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return runBetCreate(args[1:], stdout, stderr)
	case "get":
		return runBetGet(args[1:], stdout, stderr)
	case "list":
		return runBetList(args[1:], stdout, stderr)
	case "accept", "withdraw", "cancel", "expire":
		return runBetTransition(args[0], args[1:], stdout, stderr)
	case "declare":
		return runBetDeclare(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown bet subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, betUsage())
		return 1
	}
}

func runBetCreate(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("bet create", stderr)
	var (
		kind        string
		token       string
		arbiter     string
		acceptor    string
		stake       string
		arbiterFee  string
		platformFee string
		payout      string
		condition   string
		deadline    string
	)
	fs.StringVar(&kind, "type", "open", "bet type (open or direct)")
	fs.StringVar(&token, "token", "", "stake token symbol")
	fs.StringVar(&arbiter, "arbiter", "", "arbiter address")
	fs.StringVar(&acceptor, "acceptor", "", "counterparty address for direct bets")
	fs.StringVar(&stake, "stake", "", "stake per side in base units")
	fs.StringVar(&arbiterFee, "arbiter-fee", "0", "arbiter fee in base units")
	fs.StringVar(&platformFee, "platform-fee", "0", "platform fee in base units")
	fs.StringVar(&payout, "payout", "", "winner payout (defaults to both stakes minus fees)")
	fs.StringVar(&condition, "condition", "", "human readable win condition")
	fs.StringVar(&deadline, "deadline", "", "optional deadline as +duration or RFC3339 timestamp")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printCommandError(stderr, "unexpected positional arguments")
	}
	if arbiter == "" {
		return printCommandError(stderr, "--arbiter is required")
	}
	if strings.TrimSpace(condition) == "" {
		return printCommandError(stderr, "--condition is required")
	}
	if msg := checkTokenAmount(token, stake); msg != "" {
		return printCommandError(stderr, strings.Replace(msg, "--amount", "--stake", 1))
	}
	optional := []struct{ name, value string }{
		{"--arbiter-fee", arbiterFee},
		{"--platform-fee", platformFee},
		{"--payout", payout},
	}
	for _, opt := range optional {
		if opt.value != "" && !isDigits(opt.value) {
			return printCommandError(stderr, opt.name+" must be a non-negative integer")
		}
	}
	body := map[string]interface{}{
		"type":        strings.ToLower(kind),
		"token":       strings.ToUpper(token),
		"arbiter":     arbiter,
		"stake":       stake,
		"arbiterFee":  arbiterFee,
		"platformFee": platformFee,
		"condition":   condition,
	}
	if acceptor != "" {
		body["acceptor"] = acceptor
	}
	if payout != "" {
		body["payout"] = payout
	}
	if deadline != "" {
		unix, err := parseDeadline(deadline, betNow())
		if err != nil {
			return printCommandError(stderr, err.Error())
		}
		body["deadline"] = unix
	}
	return execute(stdout, stderr, http.MethodPost, "/bets", body)
}

func runBetGet(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("bet get", stderr)
	var id string
	fs.StringVar(&id, "id", "", "bet identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := validateBetID(id); err != nil {
		return printCommandError(stderr, err.Error())
	}
	return execute(stdout, stderr, http.MethodGet, "/bets/"+id, nil)
}

func runBetList(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("bet list", stderr)
	var participant, status string
	fs.StringVar(&participant, "participant", "", "only bets involving this address")
	fs.StringVar(&status, "status", "", "only bets in this status")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	query := url.Values{}
	if participant != "" {
		query.Set("participant", participant)
	}
	if status != "" {
		query.Set("status", status)
	}
	path := "/bets"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return execute(stdout, stderr, http.MethodGet, path, nil)
}

func runBetTransition(action string, args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("bet "+action, stderr)
	var id string
	fs.StringVar(&id, "id", "", "bet identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := validateBetID(id); err != nil {
		return printCommandError(stderr, err.Error())
	}
	return execute(stdout, stderr, http.MethodPost, "/bets/"+id+"/"+action, nil)
}

func runBetDeclare(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("bet declare", stderr)
	var id, winner, loser string
	fs.StringVar(&id, "id", "", "bet identifier")
	fs.StringVar(&winner, "winner", "", "winning participant")
	fs.StringVar(&loser, "loser", "", "losing participant (optional)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := validateBetID(id); err != nil {
		return printCommandError(stderr, err.Error())
	}
	if winner == "" {
		return printCommandError(stderr, "--winner is required")
	}
	body := map[string]string{"winner": winner}
	if loser != "" {
		body["loser"] = loser
	}
	return execute(stdout, stderr, http.MethodPost, "/bets/"+id+"/declare", body)
}

func betUsage() string {
	return strings.Join([]string{
		"Usage: wager-cli bet <subcommand> [flags]",
		"Subcommands:",
		"  create   --token --arbiter --stake --condition [--type --acceptor --arbiter-fee --platform-fee --payout --deadline]",
		"  get      --id",
		"  list     [--participant] [--status]",
		"  accept   --id",
		"  declare  --id --winner [--loser]",
		"  withdraw --id",
		"  cancel   --id",
		"  expire   --id",
	}, "\n")
}

// validateBetID accepts the 0x-prefixed 20-byte hex form the gateway returns.
func validateBetID(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("--id is required")
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return fmt.Errorf("--id must be 0x-prefixed")
	}
	hexPart := trimmed[2:]
	if len(hexPart) != 40 || !isHex(hexPart) {
		return fmt.Errorf("--id must be 20 bytes of hex")
	}
	return nil
}

func isHex(value string) bool {
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func parseDeadline(value string, now time.Time) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "+") {
		dur, err := time.ParseDuration(strings.TrimSpace(trimmed[1:]))
		if err != nil {
			return 0, fmt.Errorf("invalid deadline duration")
		}
		if dur <= 0 {
			return 0, fmt.Errorf("deadline duration must be positive")
		}
		return uint64(now.Add(dur).Unix()), nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid RFC3339 deadline")
	}
	if ts.Unix() <= 0 {
		return 0, fmt.Errorf("deadline must be after the unix epoch")
	}
	return uint64(ts.Unix()), nil
}
