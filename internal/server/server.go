// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the completion relay over HTTP for clients
// that are not the bundled TUI.
//
// Endpoints:
//   - POST /api/chat   - one buffered completion over a message history
//   - POST /api/upload - multipart file ingestion for prompt folding
//   - GET  /health     - liveness check
//
// Failures are JSON: {"error": "...", "details": "..."} with a non-200
// status. Upstream statuses pass through so callers can distinguish
// rate limits from outages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/quill-tui/internal/ingest"
	"github.com/jeranaias/quill-tui/internal/model"
	"github.com/jeranaias/quill-tui/internal/relay"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default listen port.
	DefaultPort = 8787

	// MaxRequestBodySize caps /api/chat bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxUploadSize caps /api/upload bodies, slightly above the
	// attachment ceiling to leave room for multipart framing.
	MaxUploadSize = ingest.MaxFileSize + 64*1024

	// MaxMessageCount is the maximum history length per request.
	MaxMessageCount = 100

	// MaxTokensLimit is the maximum accepted max_tokens value.
	MaxTokensLimit = 128000

	// MinTemperature and MaxTemperature bound the sampling parameter.
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// validRoles is the accepted set for incoming message roles. The
// relay narrows further on the wire; this guard exists to reject
// obviously broken clients with a 400 instead of confusing upstream
// errors.
var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// ============================================================================
// TYPES
// ============================================================================

// Completer is the relay dependency. *relay.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, history []relay.Turn, p relay.Params) (*relay.Reply, error)
}

// ChatMessage is one history entry in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the /api/chat request body.
type ChatRequest struct {
	Messages     []ChatMessage `json:"messages"`
	Model        string        `json:"model,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	SystemPrompt string        `json:"systemPrompt,omitempty"`
}

// ChatResponse is the /api/chat success body.
type ChatResponse struct {
	Message ChatMessage `json:"message"`
}

// UploadResponse is the /api/upload success body. Content is empty
// for non-text files.
type UploadResponse struct {
	FileName   string `json:"file_name"`
	StoredName string `json:"stored_name"`
	FileSize   int64  `json:"file_size"`
	Content    string `json:"content,omitempty"`
	Prompt     string `json:"prompt"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Server is the relay HTTP server.
type Server struct {
	completer Completer
	log       zerolog.Logger
	mux       *http.ServeMux
}

// New creates a server around the given completer.
func New(completer Completer, log zerolog.Logger) *Server {
	s := &Server{
		completer: completer,
		log:       log,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/upload", s.handleUpload)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.withRecovery(s.withLogging(s.withCORS(s.mux)))
}

// ListenAndServe blocks serving on the given port until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Int("port", port).Msg("relay server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if reason := validateChat(&req); reason != "" {
		s.writeError(w, http.StatusBadRequest, "invalid request", reason)
		return
	}

	history := make([]relay.Turn, len(req.Messages))
	for i, m := range req.Messages {
		history[i] = relay.Turn{Role: model.Role(m.Role), Content: m.Content}
	}

	reply, err := s.completer.Complete(r.Context(), history, relay.Params{
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		s.writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Message: ChatMessage{Role: string(model.RoleAssistant), Content: reply.Content},
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field", err.Error())
		return
	}
	defer file.Close()

	ingested, err := ingest.FromReader(header.Filename, header.Size, file)
	if errors.Is(err, ingest.ErrTooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge, "file too large",
			fmt.Sprintf("limit is %d bytes", ingest.MaxFileSize))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading upload", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		FileName:   ingested.Name,
		StoredName: ingested.StoredName,
		FileSize:   ingested.Size,
		Content:    ingested.Content,
		Prompt:     ingested.PromptBlock(),
	})
}

// ============================================================================
// VALIDATION
// ============================================================================

// validateChat returns an empty string when the request is acceptable.
func validateChat(req *ChatRequest) string {
	if len(req.Messages) == 0 {
		return "messages must not be empty"
	}
	if len(req.Messages) > MaxMessageCount {
		return fmt.Sprintf("too many messages (max %d)", MaxMessageCount)
	}
	for i, m := range req.Messages {
		if !validRoles[m.Role] {
			return fmt.Sprintf("invalid role %q at message %d", m.Role, i)
		}
		if m.Content == "" {
			return fmt.Sprintf("empty content at message %d", i)
		}
	}
	if req.Temperature != nil && (*req.Temperature < MinTemperature || *req.Temperature > MaxTemperature) {
		return fmt.Sprintf("temperature must be between %g and %g", MinTemperature, MaxTemperature)
	}
	if req.MaxTokens < 0 || req.MaxTokens > MaxTokensLimit {
		return fmt.Sprintf("max_tokens must be between 0 and %d", MaxTokensLimit)
	}
	return ""
}

// ============================================================================
// RESPONSES
// ============================================================================

// writeRelayError maps the relay taxonomy onto HTTP statuses. Upstream
// statuses pass through untouched.
func (s *Server) writeRelayError(w http.ResponseWriter, err error) {
	var re *relay.RelayError
	if !errors.As(err, &re) {
		s.writeError(w, http.StatusInternalServerError, "completion failed", err.Error())
		return
	}

	switch re.Kind {
	case relay.KindTimeout:
		s.writeError(w, http.StatusGatewayTimeout, "upstream timed out", re.Message)
	case relay.KindUpstream:
		s.writeError(w, re.StatusCode, "upstream error", re.Message)
	case relay.KindTransport:
		s.writeError(w, http.StatusBadGateway, "upstream unreachable", re.Message)
	default:
		s.writeError(w, http.StatusBadGateway, "upstream response unusable", re.Message)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg, details string) {
	s.log.Warn().Int("status", status).Str("error", msg).Str("details", details).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
