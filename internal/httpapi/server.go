// Package httpapi exposes the provider-facing webhook endpoints and a small
// management REST surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/switchboard/internal/auth"
	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/events"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/provider"
	"github.com/antoniostano/switchboard/internal/registry"
	"github.com/antoniostano/switchboard/internal/store"
	"github.com/antoniostano/switchboard/internal/stream"
)

// TokenChecker validates the provider-signed bearer token on callback
// requests. *auth.TokenValidator satisfies it.
type TokenChecker interface {
	Validate(authorization string) error
}

// ReadyChecker reports whether a backing dependency is reachable.
type ReadyChecker func(ctx context.Context) error

type Server struct {
	store    store.Store
	registry *registry.Registry
	events   *events.Dispatcher
	bridge   *stream.Bridge
	actions  provider.Actions
	tokens   TokenChecker
	metrics  *observability.Metrics
	ready    []ReadyChecker
	upgrader websocket.Upgrader
}

func New(
	s store.Store,
	reg *registry.Registry,
	dispatcher *events.Dispatcher,
	bridge *stream.Bridge,
	actions provider.Actions,
	tokens TokenChecker,
	metrics *observability.Metrics,
	ready ...ReadyChecker,
) *Server {
	return &Server{
		store:    s,
		registry: reg,
		events:   dispatcher,
		bridge:   bridge,
		actions:  actions,
		tokens:   tokens,
		metrics:  metrics,
		ready:    ready,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Streams come from the telephony provider, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health/liveness", s.handleLiveness)
	r.Get("/health/readiness", s.handleReadiness)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/communicationservices/callback/{call_id}/{secret}", s.handleCallback)
	r.Get("/communicationservices/wss/{call_id}/{secret}", s.handleStream)

	r.Post("/call", s.handleCreateCall)
	r.Get("/call", s.handleSearchCalls)
	r.Get("/call/{id_or_phone}", s.handleGetCall)

	return r
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.ready {
		if err := check(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "dependency not ready", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleCallback receives a batch of provider call events. The request must
// carry a valid provider token and the per-call secret in the path. Events in
// a batch target the same call but are dispatched independently, each loading
// and persisting its own copy.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.tokens.Validate(r.Header.Get("Authorization")); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	callID := chi.URLParam(r, "call_id")
	secret := chi.URLParam(r, "secret")
	if _, err := auth.AuthorizeCall(r.Context(), s.store, callID, secret); err != nil {
		respondAuthError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	var rawEvents []json.RawMessage
	if err := json.Unmarshal(body, &rawEvents); err != nil {
		respondError(w, http.StatusBadRequest, "body must be a JSON array of events")
		return
	}

	var wg sync.WaitGroup
	for _, raw := range rawEvents {
		env, err := events.ParseEnvelope(raw)
		if err != nil {
			log.Printf("call %s: dropping undecodable event: %v", callID, err)
			continue
		}
		wg.Add(1)
		go func(env events.Envelope) {
			defer wg.Done()
			// Each event gets a fresh load so concurrent handlers never share
			// a call value.
			c, err := auth.AuthorizeCall(r.Context(), s.store, callID, secret)
			if err != nil {
				log.Printf("call %s: event skipped: %v", callID, err)
				return
			}
			if err := s.events.Dispatch(r.Context(), c, env); err != nil {
				log.Printf("call %s: event %s failed: %v", callID, env.Kind, err)
			}
		}(env)
	}
	wg.Wait()

	w.WriteHeader(http.StatusNoContent)
}

// handleStream upgrades the provider's media connection and runs the audio
// bridge until either side closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")
	secret := chi.URLParam(r, "secret")
	c, err := auth.AuthorizeCall(r.Context(), s.store, callID, secret)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := s.bridge.Run(r.Context(), conn, c); err != nil {
		log.Printf("call %s: media stream ended with error: %v", c.ID, err)
	}
}

type createCallRequest struct {
	PhoneNumber      string `json:"phone_number"`
	BotName          string `json:"bot_name"`
	AgentPhoneNumber string `json:"agent_phone_number"`
	Lang             string `json:"lang"`
	Task             string `json:"task"`
}

// handleCreateCall starts an outbound call to the given phone number.
func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if violations := validatePhoneNumber(req.PhoneNumber); len(violations) > 0 {
		respondError(w, http.StatusUnprocessableEntity, "invalid phone number", violations...)
		return
	}

	var initiate *call.Initiate
	if req.BotName != "" || req.AgentPhoneNumber != "" || req.Lang != "" || req.Task != "" {
		initiate = &call.Initiate{
			BotName:          req.BotName,
			AgentPhoneNumber: req.AgentPhoneNumber,
			Lang:             req.Lang,
			Task:             req.Task,
		}
	}

	callbackURL, streamURL, c, err := s.registry.ResolveOrCreate(r.Context(), req.PhoneNumber, initiate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create call failed", err.Error())
		return
	}

	connectionID, err := s.actions.CreateCall(r.Context(), req.PhoneNumber, callbackURL, streamURL)
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues("create_call").Inc()
		respondError(w, http.StatusBadGateway, "provider rejected the call", err.Error())
		return
	}
	c.ConnectionID = connectionID
	if err := s.store.Save(r.Context(), c); err != nil {
		respondError(w, http.StatusInternalServerError, "persist call failed", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleSearchCalls(w http.ResponseWriter, r *http.Request) {
	phoneNumber := strings.TrimSpace(r.URL.Query().Get("phone_number"))
	if phoneNumber == "" {
		respondError(w, http.StatusBadRequest, "query parameter phone_number is required")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	calls, err := s.store.SearchAllByPhone(r.Context(), phoneNumber, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, calls)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id_or_phone")

	c, err := s.store.Get(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		c, err = s.store.SearchOneByPhone(r.Context(), key)
	}
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load call failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func validatePhoneNumber(phoneNumber string) []string {
	var violations []string
	if phoneNumber == "" {
		return []string{"phone_number is required"}
	}
	if !strings.HasPrefix(phoneNumber, "+") {
		violations = append(violations, "phone_number must be in E.164 format starting with +")
	}
	digits := strings.TrimPrefix(phoneNumber, "+")
	if len(digits) < 7 || len(digits) > 15 {
		violations = append(violations, "phone_number must contain 7 to 15 digits")
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			violations = append(violations, fmt.Sprintf("phone_number contains invalid character %q", r))
			break
		}
	}
	return violations
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string, details ...string) {
	respondJSON(w, status, errorResponse{Error: errorDetail{Message: message, Details: details}})
}

func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound):
		respondError(w, http.StatusNotFound, "call not found")
	case errors.Is(err, auth.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "secret does not match")
	default:
		respondError(w, http.StatusInternalServerError, "authorization failed", err.Error())
	}
}
