package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/animeshkarmakar7/CommuNet/internal/auth"
	"github.com/animeshkarmakar7/CommuNet/internal/realtime"
)

type testEnv struct {
	mux      *http.ServeMux
	registry *realtime.Registry
	store    *realtime.InMemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := realtime.NewInMemoryStore()
	registry := realtime.NewRegistry(log)
	router := realtime.NewRouter(log, store, registry, time.Hour)
	t.Cleanup(router.Close)

	authSvc := auth.NewService(log, auth.NewInMemoryStore())
	h := NewHandler(log, authSvc, router, store)

	mux := http.NewServeMux()
	h.Register(mux)

	return &testEnv{mux: mux, registry: registry, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (e *testEnv) signup(t *testing.T, name, email string) (userID, token string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Token string `json:"token"`
	}
	decodeBody(t, rec, &out)
	return out.User.ID, out.Token
}

func TestAPI_RegisterLoginMe(t *testing.T) {
	e := newTestEnv(t)

	adaID, _ := e.signup(t, "Ada", "ada@example.com")

	rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &login)

	rec = e.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d body %s", rec.Code, rec.Body.String())
	}
	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	decodeBody(t, rec, &me)
	if me.ID != adaID || me.Email != "ada@example.com" {
		t.Fatalf("unexpected me: %+v", me)
	}
}

func TestAPI_DuplicateEmailConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.signup(t, "Ada", "ada@example.com")

	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Ada Again",
		"email":    "ada@example.com",
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAPI_AuthRequired(t *testing.T) {
	e := newTestEnv(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/users"},
		{http.MethodPost, "/api/messages"},
		{http.MethodGet, "/api/conversations"},
		{http.MethodGet, "/api/messages/u2"},
		{http.MethodPut, "/api/messages/someid/read"},
	}
	for _, p := range paths {
		rec := e.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: status = %d, want 401", p.method, p.path, rec.Code)
		}
		rec = e.do(t, p.method, p.path, "bogus-token", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s with bad token: status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestAPI_SendAndHistory(t *testing.T) {
	e := newTestEnv(t)

	_, adaTok := e.signup(t, "Ada", "ada@example.com")
	bobID, bobTok := e.signup(t, "Bob", "bob@example.com")

	rec := e.do(t, http.MethodPost, "/api/messages", adaTok, map[string]string{
		"receiver_id": bobID,
		"content":     "hello bob",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: status %d body %s", rec.Code, rec.Body.String())
	}
	var sent struct {
		Message struct {
			ID            string `json:"id"`
			DeliveryState string `json:"delivery_state"`
		} `json:"message"`
		Delivered bool `json:"delivered"`
	}
	decodeBody(t, rec, &sent)
	if sent.Delivered {
		t.Fatalf("receiver is offline, delivered should be false")
	}
	if sent.Message.DeliveryState != realtime.DeliveryStateSent {
		t.Fatalf("state = %q, want sent", sent.Message.DeliveryState)
	}

	// Bob fetches the conversation from his side.
	rec = e.do(t, http.MethodGet, "/api/messages/"+peerFromToken(t, e, adaTok), bobTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status %d body %s", rec.Code, rec.Body.String())
	}
	var hist struct {
		Messages []struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"messages"`
		HasMore bool `json:"has_more"`
	}
	decodeBody(t, rec, &hist)
	if len(hist.Messages) != 1 || hist.Messages[0].Content != "hello bob" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestAPI_SendValidation(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.signup(t, "Ada", "ada@example.com")

	rec := e.do(t, http.MethodPost, "/api/messages", tok, map[string]string{
		"receiver_id": "u2",
		"content":     "   ",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank content: status = %d, want 400", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/messages", tok, "not an object")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status = %d, want 400", rec.Code)
	}
}

func TestAPI_MarkRead(t *testing.T) {
	e := newTestEnv(t)

	_, adaTok := e.signup(t, "Ada", "ada@example.com")
	bobID, bobTok := e.signup(t, "Bob", "bob@example.com")

	rec := e.do(t, http.MethodPost, "/api/messages", adaTok, map[string]string{
		"receiver_id": bobID,
		"content":     "read me",
	})
	var sent struct {
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
	}
	decodeBody(t, rec, &sent)

	// Only the receiver may mark it read.
	rec = e.do(t, http.MethodPut, "/api/messages/"+sent.Message.ID+"/read", adaTok, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("sender mark: status = %d, want 404", rec.Code)
	}

	rec = e.do(t, http.MethodPut, "/api/messages/"+sent.Message.ID+"/read", bobTok, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read: status = %d body %s", rec.Code, rec.Body.String())
	}

	// Idempotent.
	rec = e.do(t, http.MethodPut, "/api/messages/"+sent.Message.ID+"/read", bobTok, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("repeat mark read: status = %d", rec.Code)
	}

	// State is visible to the original sender.
	rec = e.do(t, http.MethodGet, "/api/messages/"+bobID, adaTok, nil)
	var hist struct {
		Messages []struct {
			DeliveryState string `json:"delivery_state"`
		} `json:"messages"`
	}
	decodeBody(t, rec, &hist)
	if len(hist.Messages) != 1 || hist.Messages[0].DeliveryState != realtime.DeliveryStateRead {
		t.Fatalf("unexpected history after read: %+v", hist)
	}
}

func TestAPI_Conversations(t *testing.T) {
	e := newTestEnv(t)

	adaID, adaTok := e.signup(t, "Ada", "ada@example.com")
	bobID, bobTok := e.signup(t, "Bob", "bob@example.com")
	cidID, cidTok := e.signup(t, "Cid", "cid@example.com")

	send := func(tok, to, content string) string {
		rec := e.do(t, http.MethodPost, "/api/messages", tok, map[string]string{
			"receiver_id": to,
			"content":     content,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("send %q: status %d body %s", content, rec.Code, rec.Body.String())
		}
		var sent struct {
			Message struct {
				ID string `json:"id"`
			} `json:"message"`
		}
		decodeBody(t, rec, &sent)
		return sent.Message.ID
	}

	send(bobTok, adaID, "hi from bob")
	readID := send(bobTok, adaID, "still there?")
	send(cidTok, adaID, "hi from cid")

	// Ada reads one of Bob's two messages.
	rec := e.do(t, http.MethodPut, "/api/messages/"+readID+"/read", adaTok, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read: status %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/conversations", adaTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("conversations: status %d body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Conversations []struct {
			PeerID      string `json:"peer_id"`
			LastMessage struct {
				Content string `json:"content"`
			} `json:"last_message"`
			Unread int `json:"unread"`
		} `json:"conversations"`
	}
	decodeBody(t, rec, &out)
	if len(out.Conversations) != 2 {
		t.Fatalf("got %d conversations, want 2: %+v", len(out.Conversations), out)
	}

	// Cid messaged last, so his thread leads.
	if out.Conversations[0].PeerID != cidID || out.Conversations[0].Unread != 1 {
		t.Fatalf("conversations[0] = %+v, want cid with 1 unread", out.Conversations[0])
	}
	if out.Conversations[1].PeerID != bobID || out.Conversations[1].Unread != 1 {
		t.Fatalf("conversations[1] = %+v, want bob with 1 unread", out.Conversations[1])
	}
	if out.Conversations[1].LastMessage.Content != "still there?" {
		t.Fatalf("bob last message = %q", out.Conversations[1].LastMessage.Content)
	}

	// Bob's own inbox shows the read state he caused, nothing unread.
	rec = e.do(t, http.MethodGet, "/api/conversations", bobTok, nil)
	decodeBody(t, rec, &out)
	if len(out.Conversations) != 1 || out.Conversations[0].PeerID != adaID || out.Conversations[0].Unread != 0 {
		t.Fatalf("bob conversations = %+v", out.Conversations)
	}
}

func TestAPI_ListUsersExcludesSelf(t *testing.T) {
	e := newTestEnv(t)

	_, adaTok := e.signup(t, "Ada", "ada@example.com")
	e.signup(t, "Bob", "bob@example.com")
	e.signup(t, "Cid", "cid@example.com")

	rec := e.do(t, http.MethodGet, "/api/users", adaTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("users: status %d", rec.Code)
	}
	var users []struct {
		Email string `json:"email"`
	}
	decodeBody(t, rec, &users)
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
	for _, u := range users {
		if u.Email == "ada@example.com" {
			t.Fatalf("caller included in /api/users")
		}
	}
}

func TestAPI_LogoutRevokes(t *testing.T) {
	e := newTestEnv(t)
	_, tok := e.signup(t, "Ada", "ada@example.com")

	rec := e.do(t, http.MethodPost, "/api/auth/logout", tok, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/auth/me", tok, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: status = %d, want 401", rec.Code)
	}
}

func TestAPI_HistoryPaging(t *testing.T) {
	e := newTestEnv(t)

	_, adaTok := e.signup(t, "Ada", "ada@example.com")
	bobID, _ := e.signup(t, "Bob", "bob@example.com")

	for i := 0; i < 5; i++ {
		rec := e.do(t, http.MethodPost, "/api/messages", adaTok, map[string]string{
			"receiver_id": bobID,
			"content":     fmt.Sprintf("msg %d", i),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("send %d: status %d", i, rec.Code)
		}
	}

	rec := e.do(t, http.MethodGet, "/api/messages/"+bobID+"?limit=3", adaTok, nil)
	var page struct {
		Messages []struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"messages"`
		HasMore bool `json:"has_more"`
	}
	decodeBody(t, rec, &page)
	if len(page.Messages) != 3 || !page.HasMore {
		t.Fatalf("page1: %d messages, hasMore=%v", len(page.Messages), page.HasMore)
	}

	last := page.Messages[2].ID
	rec = e.do(t, http.MethodGet, "/api/messages/"+bobID+"?limit=3&after_id="+last, adaTok, nil)
	decodeBody(t, rec, &page)
	if len(page.Messages) != 2 || page.HasMore {
		t.Fatalf("page2: %d messages, hasMore=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].Content != "msg 3" {
		t.Fatalf("page2 starts at %q", page.Messages[0].Content)
	}
}

// peerFromToken resolves the user id behind a token via /api/auth/me.
func peerFromToken(t *testing.T, e *testEnv, token string) string {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}
	var me struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &me)
	return me.ID
}
