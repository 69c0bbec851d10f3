package routes

import (
	"net/http"
	"strconv"

	"wagerchain/explorer"
)

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("%s: invalid value %q", name, raw)
	}
	return v, nil
}

func (s *server) historyBets(r *http.Request) (interface{}, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return nil, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return nil, err
	}
	query := r.URL.Query()
	return s.history.Bets(r.Context(), explorer.BetFilter{
		Participant: query.Get("participant"),
		Status:      query.Get("status"),
		Token:       query.Get("token"),
		Limit:       limit,
		Offset:      offset,
	})
}

func (s *server) historyEvents(r *http.Request) (interface{}, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return nil, err
	}
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, badRequest("after: invalid value %q", raw)
		}
	}
	return s.history.Events(r.Context(), explorer.EventFilter{
		BetID: r.URL.Query().Get("bet"),
		Type:  r.URL.Query().Get("type"),
		After: after,
		Limit: limit,
	})
}
