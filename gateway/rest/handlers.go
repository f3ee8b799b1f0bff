package rest

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/c360/botapi/metric"
	"github.com/c360/botapi/registry"
)

// Handler serves the REST routes over a registry.
type Handler struct {
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// NewHandler creates the REST handler. Metrics may be nil.
func NewHandler(reg *registry.Registry, logger *slog.Logger, metrics *metric.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: reg, logger: logger, metrics: metrics}
}

// RegisterRoutes mounts every REST route on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /users", h.listUsers)
	mux.HandleFunc("POST /users", h.createUser)
	mux.HandleFunc("GET /users/{user_id}", h.getUser)
	mux.HandleFunc("PUT /users/{user_id}", h.renameUser)
	mux.HandleFunc("GET /users/{user_id}/messages", h.listMessages)
	mux.HandleFunc("POST /users/{user_id}/messages", h.sendMessage)
	mux.HandleFunc("GET /users/{user_id}/messages/stream", h.streamMessages)
	mux.HandleFunc("GET /users/{user_id}/messages/{message_id}", h.getMessage)
}

// requireJSON rejects writes whose Content-Type is not application/json.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeErrorEnvelope(w, http.StatusUnsupportedMediaType,
			"request body must be application/json")
		return false
	}
	return true
}

// decodeBody parses the request body into dst, reporting malformed JSON
// as a 400.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			writeErrorEnvelope(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeErrorEnvelope(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// fail logs the full error and writes the sanitized envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
	writeErrorEnvelope(w, mapErrorToHTTPStatus(err), sanitizeError(err))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.registry.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, typeUserList, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}

	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	user, err := h.registry.CreateUser(r.Context(), req.ID, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeID(w, http.StatusCreated, typeUserCreated, user.ID)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.registry.GetUser(r.Context(), r.PathValue("user_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, typeUser, user)
}

func (h *Handler) renameUser(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	userID := r.PathValue("user_id")
	if err := h.registry.SetUserName(r.Context(), userID, req.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	writeID(w, http.StatusOK, typeUserUpdated, userID)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.registry.ListMessages(r.Context(), r.PathValue("user_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, typeMessageList, msgs)
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	msg, response, err := h.registry.SendMessage(r.Context(), r.PathValue("user_id"), req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var responseID *string
	if response != nil {
		responseID = &response.ID
	}
	writeMessageReceived(w, http.StatusCreated, msg.ID, responseID)
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.registry.GetMessage(r.Context(),
		r.PathValue("user_id"), r.PathValue("message_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, typeMessage, msg)
}
