package graphql

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// HandlerConfig configures the GraphQL HTTP handler.
type HandlerConfig struct {
	// Path is where the endpoint is mounted, used by the playground to
	// address queries.
	Path string
	// Playground serves the gqlgen playground on GET requests.
	Playground bool
}

// EndpointPattern converts the configured endpoint path into a ServeMux
// registration pattern. The root path maps to "/{$}" so it matches only
// "/" itself and the resource routes keep winning on their prefixes.
func EndpointPattern(path string) string {
	if path == "/" {
		return "/{$}"
	}
	return path
}

// NewHTTPHandler wraps the executor in a standard GraphQL HTTP
// endpoint: POST executes, GET serves the playground when enabled.
func NewHTTPHandler(executor *Executor, cfg HandlerConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}

	var play http.Handler
	if cfg.Playground {
		play = playground.Handler("BotAPI GraphQL", cfg.Path)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if play != nil {
				play.ServeHTTP(w, r)
				return
			}
			http.Error(w, "playground disabled", http.StatusMethodNotAllowed)
		case http.MethodPost:
			defer r.Body.Close()

			var req Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeResponse(w, http.StatusBadRequest, &Response{
					Errors: gqlerror.List{gqlerror.Errorf("malformed request body")},
				})
				return
			}

			resp := executor.Execute(r.Context(), req)
			writeResponse(w, http.StatusOK, resp)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func writeResponse(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Debug("graphql response write failed", "error", err)
	}
}
