package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// apiError mirrors the gateway's error body.
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Kind    string `json:"kind"`
}

var (
	gatewayCall    = callGateway
	newRequestKey  = func() string { return uuid.NewString() }
	gatewayTimeout = 15 * time.Second
)

// callGateway issues one request against the /v1 API. Mutations carry a fresh
// Idempotency-Key so a retried command cannot apply twice on the gateway.
func callGateway(method, path string, body interface{}) (json.RawMessage, *apiError, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	endpoint := strings.TrimRight(gatewayURL, "/") + "/v1" + path
	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", newRequestKey())
	}
	switch {
	case gatewayToken != "":
		req.Header.Set("Authorization", "Bearer "+gatewayToken)
	case gatewayCaller != "":
		req.Header.Set("X-Wager-Caller", gatewayCaller)
	}

	client := &http.Client{Timeout: gatewayTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr, nil
	}
	return json.RawMessage(raw), nil, nil
}

func printCommandError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleAPIError(w io.Writer, err *apiError) int {
	if err.Kind != "" {
		fmt.Fprintf(w, "Gateway error %d (%s): %s\n", err.Status, err.Kind, err.Message)
	} else {
		fmt.Fprintf(w, "Gateway error %d: %s\n", err.Status, err.Message)
	}
	return 1
}

func handleCallError(w io.Writer, err error) int {
	fmt.Fprintf(w, "Gateway call failed: %v\n", err)
	return 1
}

func writeResult(w io.Writer, result json.RawMessage) {
	if len(bytes.TrimSpace(result)) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(w, string(result))
		return
	}
	fmt.Fprintln(w, pretty.String())
}

// execute runs a call and prints the outcome, returning the exit code.
func execute(stdout, stderr io.Writer, method, path string, body interface{}) int {
	result, apiErr, err := gatewayCall(method, path, body)
	if err != nil {
		return handleCallError(stderr, err)
	}
	if apiErr != nil {
		return handleAPIError(stderr, apiErr)
	}
	writeResult(stdout, result)
	return 0
}
