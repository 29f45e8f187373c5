package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chat-core/internal/action"
	"chat-core/internal/chat/authz"
	chatmessage "chat-core/internal/chat/message"
	"chat-core/internal/httputil"
	"chat-core/internal/storage/database"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClock()
	repos := database.NewMemoryRepositories(clock)
	svc := chatmessage.NewService(repos.Message, repos.Receipt, authz.AllowAll{}, clock)
	registry := action.NewRegistry()
	svc.Register(registry)
	return Router(registry, repos)
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer u1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDispatchActionResponseEnvelope(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(t, r, http.MethodPost, "/api/chat/message/sendMessage",
		`{"converseId":"c1","content":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Message != httputil.ActionCompleted {
		t.Errorf("envelope = %+v", resp)
	}
	var sent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &sent); err != nil {
		t.Fatal(err)
	}
	if sent.ID == "" {
		t.Errorf("data should carry the created message, got %s", resp.Data)
	}

	// 只讀便捷端點用取數訊息
	w = doRequest(t, r, http.MethodGet, "/api/chat/message/fetchConverseMessage?converseId=c1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("fetch status = %d, body = %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Message != httputil.DataRetrieved {
		t.Errorf("fetch envelope = %+v", resp)
	}
}

func TestDispatchActionErrors(t *testing.T) {
	r := newTestRouter(t)

	// 未註冊的動作名
	w := doRequest(t, r, http.MethodPost, "/api/chat/message/nope", `{}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d", w.Code)
	}

	// 壞掉的 JSON 請求體
	w = doRequest(t, r, http.MethodPost, "/api/chat/message/sendMessage", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", w.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success || resp.Error != httputil.InvalidParameter {
		t.Errorf("error envelope = %+v", resp)
	}
}
