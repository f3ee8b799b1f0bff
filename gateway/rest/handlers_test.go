package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/botapi/registry"
)

type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }

func (echoEngine) Respond(_ context.Context, _, content string) (string, error) {
	if strings.Contains(content, "nothing to say") {
		return "", nil
	}
	return "echo: " + content, nil
}

func newTestMux(t *testing.T) (*http.ServeMux, *registry.Registry) {
	t.Helper()

	reg, err := registry.New(registry.NewMemStore(), echoEngine{})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(reg, nil, nil).RegisterRoutes(mux)
	return mux, reg
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateAndGetUser(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice","name":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "user_created", body["type"])
	assert.Equal(t, "alice", body["id"])

	rec = doJSON(t, mux, http.MethodGet, "/users/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "user", body["type"])
	user := body["value"].(map[string]any)
	assert.Equal(t, "alice", user["id"])
	assert.Equal(t, "Alice", user["name"])
}

func TestCreateUserGeneratedID(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/users", `{"name":"Anon"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["id"])
}

func TestCreateUserRequiresJSONContentType(t *testing.T) {
	mux, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"id":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["type"])
}

func TestCreateUserMalformedBody(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/users", `{"id": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUserDuplicateConflict(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user already exists", decode(t, rec)["value"])
}

func TestListUsers(t *testing.T) {
	mux, _ := newTestMux(t)

	doJSON(t, mux, http.MethodPost, "/users", `{"id":"a"}`)
	doJSON(t, mux, http.MethodPost, "/users", `{"id":"b"}`)

	rec := doJSON(t, mux, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "user_list", body["type"])
	assert.Len(t, body["value"], 2)
}

func TestGetUserNotFound(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/users/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", decode(t, rec)["value"])
}

func TestRenameUser(t *testing.T) {
	mux, _ := newTestMux(t)

	doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice","name":"Alice"}`)

	rec := doJSON(t, mux, http.MethodPut, "/users/alice", `{"name":"Alicia"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "user_updated", body["type"])
	assert.Equal(t, "alice", body["id"])

	rec = doJSON(t, mux, http.MethodGet, "/users/alice", "")
	user := decode(t, rec)["value"].(map[string]any)
	assert.Equal(t, "Alicia", user["name"])

	rec = doJSON(t, mux, http.MethodPut, "/users/ghost", `{"name":"X"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendAndListMessages(t *testing.T) {
	mux, _ := newTestMux(t)

	doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice"}`)

	rec := doJSON(t, mux, http.MethodPost, "/users/alice/messages", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "message_received", body["type"])
	msgID := body["id"].(string)
	responseID := body["response_id"].(string)
	assert.True(t, strings.HasPrefix(msgID, "c"))
	assert.True(t, strings.HasPrefix(responseID, "s"))

	rec = doJSON(t, mux, http.MethodGet, "/users/alice/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "message_list", body["type"])
	msgs := body["value"].([]any)
	require.Len(t, msgs, 2)

	first := msgs[0].(map[string]any)
	second := msgs[1].(map[string]any)
	assert.Equal(t, "client", first["origin"])
	assert.Equal(t, "hello", first["content"])
	assert.Equal(t, "server", second["origin"])
	assert.Equal(t, "echo: hello", second["content"])
}

func TestSendMessageSilentBot(t *testing.T) {
	mux, _ := newTestMux(t)

	doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice"}`)

	rec := doJSON(t, mux, http.MethodPost, "/users/alice/messages", `{"content":"nothing to say"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["id"])
	assert.Nil(t, body["response_id"])
	// The key itself stays present.
	assert.Contains(t, rec.Body.String(), "response_id")
}

func TestSendMessageValidation(t *testing.T) {
	mux, _ := newTestMux(t)

	doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice"}`)

	rec := doJSON(t, mux, http.MethodPost, "/users/alice/messages", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message content cannot be empty", decode(t, rec)["value"])

	rec = doJSON(t, mux, http.MethodPost, "/users/ghost/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMessage(t *testing.T) {
	mux, _ := newTestMux(t)

	doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice"}`)
	doJSON(t, mux, http.MethodPost, "/users", `{"id":"bob"}`)

	rec := doJSON(t, mux, http.MethodPost, "/users/alice/messages", `{"content":"hi"}`)
	msgID := decode(t, rec)["id"].(string)

	rec = doJSON(t, mux, http.MethodGet, "/users/alice/messages/"+msgID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "message", body["type"])
	msg := body["value"].(map[string]any)
	assert.Equal(t, "hi", msg["content"])

	// The same message under another user is not found.
	rec = doJSON(t, mux, http.MethodGet, "/users/bob/messages/"+msgID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/users/alice/messages/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "message not found", decode(t, rec)["value"])
}

func TestStreamDeliversMessages(t *testing.T) {
	mux, reg := newTestMux(t)

	doJSON(t, mux, http.MethodPost, "/users", `{"id":"alice"}`)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/users/alice/messages/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	_, _, err = reg.SendMessage(context.Background(), "alice", "hello")
	require.NoError(t, err)

	var first registry.Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, registry.OriginClient, first.Origin)
	assert.Equal(t, "hello", first.Content)

	var second registry.Message
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, registry.OriginServer, second.Origin)
	assert.Equal(t, "echo: hello", second.Content)
}

func TestStreamUnknownUser(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/users/ghost/messages/stream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
