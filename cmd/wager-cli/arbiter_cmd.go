package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func runArbiterCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, arbiterUsage())
		return 1
	}
	switch args[0] {
	case "add":
		return runArbiterAdd(args[1:], stdout, stderr)
	case "get":
		if len(args) != 2 {
			return printCommandError(stderr, "usage: arbiter get <address>")
		}
		return execute(stdout, stderr, http.MethodGet, "/arbiters/"+url.PathEscape(args[1]), nil)
	case "list":
		return runArbiterList(args[1:], stdout, stderr)
	case "suspend", "block", "reinstate":
		return runArbiterStatus(args[0], args[1:], stdout, stderr)
	case "penalize", "release":
		return runArbiterBond(args[0], args[1:], stdout, stderr)
	case "bond":
		return runArbiterPostBond(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown arbiter subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, arbiterUsage())
		return 1
	}
}

func runArbiterAdd(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("arbiter add", stderr)
	var address string
	fs.StringVar(&address, "address", "", "arbiter address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printCommandError(stderr, "--address is required")
	}
	return execute(stdout, stderr, http.MethodPost, "/arbiters", map[string]string{"address": address})
}

func runArbiterList(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("arbiter list", stderr)
	var blocked bool
	fs.BoolVar(&blocked, "blocked", false, "list blocked arbiters instead of the active set")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	path := "/arbiters"
	if blocked {
		path += "?blocked=true"
	}
	return execute(stdout, stderr, http.MethodGet, path, nil)
}

func runArbiterStatus(action string, args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("arbiter "+action, stderr)
	var address, reason string
	fs.StringVar(&address, "address", "", "arbiter address")
	fs.StringVar(&reason, "reason", "", "reason recorded with the transition")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printCommandError(stderr, "--address is required")
	}
	path := fmt.Sprintf("/arbiters/%s/%s", url.PathEscape(address), action)
	return execute(stdout, stderr, http.MethodPost, path, map[string]string{"reason": reason})
}

func runArbiterBond(action string, args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("arbiter "+action, stderr)
	var address, token, amount string
	fs.StringVar(&address, "address", "", "arbiter address")
	fs.StringVar(&token, "token", "", "bond token symbol")
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
	path := fmt.Sprintf("/arbiters/%s/%s", url.PathEscape(address), action)
	return execute(stdout, stderr, http.MethodPost, path, map[string]string{
		"token":  strings.ToUpper(token),
		"amount": amount,
	})
}

func runArbiterPostBond(args []string, stdout, stderr io.Writer) int {
	fs := newCommandFlagSet("arbiter bond", stderr)
	var token, amount string
	fs.StringVar(&token, "token", "", "bond token symbol")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if msg := checkTokenAmount(token, amount); msg != "" {
		return printCommandError(stderr, msg)
	}
	return execute(stdout, stderr, http.MethodPost, "/arbiters/bond", map[string]string{
		"token":  strings.ToUpper(token),
		"amount": amount,
	})
}

func arbiterUsage() string {
	return strings.Join([]string{
		"Usage: wager-cli arbiter <subcommand> [flags]",
		"Subcommands:",
		"  add       --address",
		"  get       <address>",
		"  list      [--blocked]",
		"  suspend   --address [--reason]",
		"  block     --address [--reason]",
		"  reinstate --address [--reason]",
		"  bond      --token --amount",
		"  penalize  --address --token --amount",
		"  release   --address --token --amount",
	}, "\n")
}
