package routes

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"wagerchain/crypto"
	"wagerchain/gateway/middleware"
	"wagerchain/gateway/store"
)

// HeaderIdempotencyKey carries the client-chosen key that makes a mutation
// safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderReplayed is set on responses served from the idempotency store.
const HeaderReplayed = "Idempotent-Replayed"

type readFunc func(r *http.Request) (interface{}, error)

type mutationFunc func(r *http.Request, caller [20]byte) (int, interface{}, error)

func (s *server) read(fn readFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := fn(r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

// mutate resolves the caller, replays stored responses for a repeated
// Idempotency-Key and records the outcome in the audit log.
func (s *server) mutate(fn mutationFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := middleware.CallerFrom(r.Context())
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "caller identity required", Kind: "authorization"})
			return
		}
		callerID := crypto.MustAddress(caller).String()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
		if err != nil {
			writeError(w, badRequest("read body: %v", err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		key := r.Header.Get(HeaderIdempotencyKey)
		hash := requestHash(r, body)
		if key != "" && s.idempotency != nil {
			cached, err := s.idempotency.Lookup(callerID, key, hash)
			if err != nil {
				s.finish(w, r, callerID, err, 0, nil)
				return
			}
			if cached != nil {
				w.Header().Set(HeaderReplayed, "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}
		}

		status, payload, err := fn(r, caller)
		if err != nil {
			s.finish(w, r, callerID, err, 0, nil)
			if key != "" && s.idempotency != nil {
				errStatus, _ := statusFor(err)
				if errStatus < http.StatusInternalServerError {
					s.remember(callerID, key, hash, errStatus, errorBody(err))
				}
			}
			return
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			s.finish(w, r, callerID, err, 0, nil)
			return
		}
		encoded = append(encoded, '\n')
		if key != "" && s.idempotency != nil {
			s.remember(callerID, key, hash, status, encoded)
		}
		s.finish(w, r, callerID, nil, status, encoded)
	}
}

func (s *server) remember(callerID, key, hash string, status int, body []byte) {
	if err := s.idempotency.Save(callerID, key, hash, status, body); err != nil {
		s.logger.Warn("idempotency save failed", slog.String("caller", callerID), slog.String("error", err.Error()))
	}
}

func (s *server) finish(w http.ResponseWriter, r *http.Request, callerID string, err error, status int, body []byte) {
	kind := ""
	if err != nil {
		status, kind = statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("mutation failed",
				slog.String("path", r.URL.Path),
				slog.String("caller", callerID),
				slog.String("error", err.Error()))
		}
		writeError(w, err)
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}
	if s.audit == nil {
		return
	}
	entry := store.AuditEntry{
		RequestID: middleware.RequestIDFrom(r.Context()),
		Caller:    callerID,
		Method:    r.Method,
		Path:      r.URL.Path,
		Status:    status,
		ErrorKind: kind,
	}
	if auditErr := s.audit.Record(context.WithoutCancel(r.Context()), entry); auditErr != nil {
		s.logger.Warn("audit record failed", slog.String("error", auditErr.Error()))
	}
}

func errorBody(err error) []byte {
	rec := &bodyRecorder{header: http.Header{}}
	writeError(rec, err)
	return rec.buf.Bytes()
}

func requestHash(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte{0})
	sum.Write([]byte(r.URL.Path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// bodyRecorder captures a rendered error so it can be cached verbatim.
type bodyRecorder struct {
	header http.Header
	buf    bytes.Buffer
}

func (b *bodyRecorder) Header() http.Header         { return b.header }
func (b *bodyRecorder) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bodyRecorder) WriteHeader(int)             {}
