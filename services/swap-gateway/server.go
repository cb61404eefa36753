package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"swaplock/observability"
)

const (
	maxRequestBody       = 1 << 20
	headerIdempotencyKey = "Idempotency-Key"
)

// Server exposes the gateway's REST surface in front of a swaplock node.
type Server struct {
	node   NodeClient
	auth   *Authenticator
	store  *SQLiteStore
	logger *slog.Logger
}

// NewServer wires the REST handler with its node client, authenticator and store.
func NewServer(node NodeClient, auth *Authenticator, store *SQLiteStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{node: node, auth: auth, store: store, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
	route := r.Method + " " + r.URL.Path
	defer func() {
		observability.Gateway().Observe(route, recorder.status, time.Since(started))
	}()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/healthz":
		recorder.WriteHeader(http.StatusOK)
		recorder.Write([]byte("ok"))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/escrows":
		s.handleCreate(recorder, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/escrows/reveal":
		s.handleReveal(recorder, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/escrows/cancel":
		s.handleCancel(recorder, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/escrows":
		s.handleGet(recorder, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/events":
		s.handleEvents(recorder, r)
	default:
		writeError(recorder, http.StatusNotFound, "not found")
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   []byte
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func readRequestBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte("\n"))
	h.Write([]byte(path))
	h.Write([]byte("\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// authenticate reads the body, verifies the signature headers and returns the
// body bytes plus the caller's API key.
func (s *Server) authenticate(w *responseRecorder, r *http.Request) ([]byte, string, bool) {
	body, err := readRequestBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return nil, "", false
	}
	apiKey, err := s.auth.Authenticate(r, body)
	if err != nil {
		if errors.Is(err, errNonceReplayed) {
			observability.Gateway().RecordReplay()
		}
		s.logger.Warn("request rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, "", false
	}
	return body, apiKey, true
}

// runIdempotent replays a stored response for the Idempotency-Key header when
// present, otherwise executes handler and stores the outcome.
func (s *Server) runIdempotent(w *responseRecorder, r *http.Request, body []byte, handler func()) {
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		handler()
		return
	}
	ctx := r.Context()
	requestHash := hashRequest(r.Method, r.URL.Path, body)
	stored, err := s.store.LookupIdempotency(ctx, key, requestHash)
	if errors.Is(err, ErrIdempotencyMismatch) {
		writeError(w, http.StatusConflict, "idempotency key reused with different request")
		return
	}
	if err != nil {
		s.logger.Error("idempotency lookup failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if stored != nil {
		observability.Gateway().RecordReplay()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stored.StatusCode)
		w.Write(stored.ResponseBody)
		return
	}
	handler()
	if err := s.store.SaveIdempotency(ctx, key, requestHash, w.status, w.body); err != nil {
		s.logger.Error("idempotency save failed", slog.Any("error", err))
	}
}

func (s *Server) audit(ctx context.Context, apiKey, method, path string, status int) {
	if err := s.store.InsertAuditLog(ctx, apiKey, method, path, status); err != nil {
		s.logger.Error("audit log insert failed", slog.Any("error", err))
	}
}

// forwardNodeError maps a node RPC failure onto the gateway response.
func (s *Server) forwardNodeError(w *responseRecorder, err error) {
	var rpcErr *NodeRPCError
	if errors.As(err, &rpcErr) {
		status := rpcErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadGateway
		}
		message := rpcErr.Message
		if rpcErr.Data != "" {
			message = rpcErr.Data
		}
		writeError(w, status, message)
		return
	}
	s.logger.Error("node call failed", slog.Any("error", err))
	writeError(w, http.StatusBadGateway, "node unavailable")
}

func (s *Server) handleCreate(w *responseRecorder, r *http.Request) {
	body, apiKey, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	defer func() { s.audit(r.Context(), apiKey, r.Method, r.URL.Path, w.status) }()

	s.runIdempotent(w, r, body, func() {
		var req CreateEscrowRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		view, err := s.node.CreateEscrow(r.Context(), req)
		if err != nil {
			s.forwardNodeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	})
}

func (s *Server) handleReveal(w *responseRecorder, r *http.Request) {
	body, apiKey, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	defer func() { s.audit(r.Context(), apiKey, r.Method, r.URL.Path, w.status) }()

	s.runIdempotent(w, r, body, func() {
		var req RevealEscrowRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		amount, err := s.node.RevealEscrow(r.Context(), req)
		if err != nil {
			s.forwardNodeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"amount": amount})
	})
}

func (s *Server) handleCancel(w *responseRecorder, r *http.Request) {
	body, apiKey, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	defer func() { s.audit(r.Context(), apiKey, r.Method, r.URL.Path, w.status) }()

	s.runIdempotent(w, r, body, func() {
		var req CancelEscrowRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		amount, err := s.node.CancelEscrow(r.Context(), req)
		if err != nil {
			s.forwardNodeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"amount": amount})
	})
}

func (s *Server) handleGet(w *responseRecorder, r *http.Request) {
	orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if orderID == "" || owner == "" {
		writeError(w, http.StatusBadRequest, "orderId and owner query parameters are required")
		return
	}
	view, err := s.node.GetEscrow(r.Context(), orderID, owner)
	if err != nil {
		s.forwardNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEvents(w *responseRecorder, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	events, err := s.store.ListEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("event listing failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []StoredEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
