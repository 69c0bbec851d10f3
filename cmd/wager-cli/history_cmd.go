package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

func runHistoryCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printCommandError(stderr, "usage: history <bets|events> [flags]")
	}
	fs := newCommandFlagSet("history "+args[0], stderr)
	var (
		limit  int
		query  = url.Values{}
		path   string
		filter = func(name, value string) {
			if value != "" {
				query.Set(name, value)
			}
		}
	)
	fs.IntVar(&limit, "limit", 0, "maximum rows to return")
	switch args[0] {
	case "bets":
		var participant, status, token string
		var offset int
		fs.StringVar(&participant, "participant", "", "only bets involving this address")
		fs.StringVar(&status, "status", "", "only bets in this status")
		fs.StringVar(&token, "token", "", "only bets staked in this token")
		fs.IntVar(&offset, "offset", 0, "rows to skip")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		filter("participant", participant)
		filter("status", status)
		filter("token", token)
		if offset > 0 {
			query.Set("offset", strconv.Itoa(offset))
		}
		path = "/history/bets"
	case "events":
		var bet, kind string
		var after uint64
		fs.StringVar(&bet, "bet", "", "only events for this bet id")
		fs.StringVar(&kind, "type", "", "event type, or a prefix ending in '.'")
		fs.Uint64Var(&after, "after", 0, "only events with a higher sequence")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		filter("bet", bet)
		filter("type", kind)
		if after > 0 {
			query.Set("after", strconv.FormatUint(after, 10))
		}
		path = "/history/events"
	default:
		return printCommandError(stderr, fmt.Sprintf("unknown history view %q", args[0]))
	}
	if limit < 0 {
		return printCommandError(stderr, "--limit must not be negative")
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return execute(stdout, stderr, http.MethodGet, path, nil)
}
