package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatbridge/internal/chat"
	"chatbridge/internal/history"
	"chatbridge/internal/middleware"
	"chatbridge/internal/prompt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAdapter string

func (a staticAdapter) Generate(context.Context, string, *middleware.LLMParams) (string, error) {
	return string(a), nil
}

func newTestServer(reply string) (*Server, *history.Cache) {
	cache := history.New(nil)
	svc := chat.NewService(staticAdapter(reply), cache, prompt.New("", "Bot"))
	return NewServer(svc, cache, "", 0, nil), cache
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatAndHistory(t *testing.T) {
	s, _ := newTestServer("喵")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/chat", `{"conversation_id":"g1","author_id":"u1","message":"你好"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "喵", resp.Reply)

	rec = do(t, h, http.MethodGet, "/api/history/g1?n=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []history.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bot", msgs[0].AuthorID)

	rec = do(t, h, http.MethodGet, "/api/conversations", "")
	assert.JSONEq(t, `{"g1":2}`, rec.Body.String())
}

func TestDrawReturnsImageURL(t *testing.T) {
	s, _ := newTestServer("https://image.pollinations.ai/prompt/cat")
	rec := do(t, s.Handler(), http.MethodPost, "/api/draw", `{"conversation_id":"g1","message":"cat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, chat.DrawResultText, resp.Reply)
	assert.Equal(t, "https://image.pollinations.ai/prompt/cat", resp.ImageURL)
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer("x")
	h := s.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/chat", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/chat", `{"message":"hi"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/api/chat", `{"conversation_id":"g1","message":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/history/g1?n=x", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/chat", "").Code)
}

func TestHistoryUnknownConversation(t *testing.T) {
	s, _ := newTestServer("x")
	rec := do(t, s.Handler(), http.MethodGet, "/api/history/none", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer("x")
	rec := do(t, s.Handler(), http.MethodGet, "/api/status", "")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, float64(history.DefaultMaxSize), body["max_size"])
}
