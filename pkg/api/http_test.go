package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"echoclub/pkg/config"
	"echoclub/pkg/logger"
	"echoclub/pkg/models"
	"echoclub/pkg/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger.Init()
	dbdir := filepath.Join(t.TempDir(), "db")
	if err := store.Open(dbdir); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	srv := httptest.NewServer(NewServer(&config.Config{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func doAuthed(t *testing.T, client *http.Client, method, url, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func registerAndLogin(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	client := srv.Client()
	resp := postJSON(t, client, srv.URL+"/v1/auth/register", "", map[string]string{"name": name, "password": "secret1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", name, resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, client, srv.URL+"/v1/auth/login", "", map[string]string{"name": name, "password": "secret1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", name, resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()
	return login.Token
}

func registerAndJoin(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	tok := registerAndLogin(t, srv, name)
	resp := postJSON(t, srv.Client(), srv.URL+"/v1/session", tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join %s: status %d", name, resp.StatusCode)
	}
	resp.Body.Close()
	return tok
}

func TestRegisterDuplicateIsDistinct(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/v1/auth/register", "", map[string]string{"name": "alice", "password": "secret1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}

	resp = postJSON(t, client, srv.URL+"/v1/auth/register", "", map[string]string{"name": "alice", "password": "other-pass"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register must 409, got %d", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "this name is already in use" {
		t.Fatalf("duplicate message must be specific, got %q", body.Error)
	}
}

func TestRegisterValidationRejected(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.Client(), srv.URL+"/v1/auth/register", "", map[string]string{"name": "ab", "password": "secret1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short name must 400, got %d", resp.StatusCode)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/v1/messages", "", map[string]string{"text": "hi"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("send without session must 401, got %d", resp.StatusCode)
	}
	resp = doAuthed(t, client, http.MethodGet, srv.URL+"/v1/presence", "bogus-token")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("presence without session must 401, got %d", resp.StatusCode)
	}
}

func TestJoinSendAndLeaveFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	tok := registerAndJoin(t, srv, "alice")

	resp := postJSON(t, client, srv.URL+"/v1/messages", tok, map[string]string{"text": "hello room"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send: status %d", resp.StatusCode)
	}

	msgs, err := store.ListMessages()
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	var joined, sent bool
	for _, m := range msgs {
		if m.System && bytes.Contains([]byte(m.Text), []byte("joined")) {
			joined = true
		}
		if !m.System && m.Text == "hello room" {
			sent = true
		}
	}
	if !joined || !sent {
		t.Fatalf("expected join announcement and sent message, got %+v", msgs)
	}

	roster, _ := store.ListPresence()
	if len(roster) != 1 || roster[0].DisplayName != "alice" {
		t.Fatalf("expected alice on the roster, got %+v", roster)
	}

	resp = doAuthed(t, client, http.MethodDelete, srv.URL+"/v1/session", tok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("leave: status %d", resp.StatusCode)
	}
	roster, _ = store.ListPresence()
	if len(roster) != 0 {
		t.Fatalf("roster must be empty after leave, got %+v", roster)
	}
	// The token was revoked at leave.
	resp = postJSON(t, client, srv.URL+"/v1/session", tok, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token must not rejoin, got %d", resp.StatusCode)
	}
}

func TestConcurrentJoinStartsSingleSession(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	tok := registerAndLogin(t, srv, "alice")

	// Many simultaneous joins with one token must collapse to a single
	// live session: one 200, the rest 409, one join announcement.
	var wg sync.WaitGroup
	var joined int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/session", nil)
			if err != nil {
				return
			}
			req.Header.Set("Authorization", "Bearer "+tok)
			resp, err := client.Do(req)
			if err != nil {
				return
			}
			if resp.StatusCode == http.StatusOK {
				atomic.AddInt32(&joined, 1)
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()
	if joined != 1 {
		t.Fatalf("expected exactly one successful join, got %d", joined)
	}

	msgs, err := store.ListMessages()
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	announcements := 0
	for _, m := range msgs {
		if m.System && bytes.Contains([]byte(m.Text), []byte("joined")) {
			announcements++
		}
	}
	if announcements != 1 {
		t.Fatalf("expected one join announcement, got %d", announcements)
	}
}

func TestEmptySendIsSilentNoOp(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	tok := registerAndJoin(t, srv, "alice")

	before, _ := store.ListMessages()
	resp := postJSON(t, client, srv.URL+"/v1/messages", tok, map[string]string{"text": "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("whitespace send: status %d", resp.StatusCode)
	}
	after, _ := store.ListMessages()
	if len(after) != len(before) {
		t.Fatalf("whitespace send must not write a document")
	}
}

func TestClearAllEndpoint(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	tok := registerAndJoin(t, srv, "alice")

	for _, text := range []string{"one", "two"} {
		resp := postJSON(t, client, srv.URL+"/v1/messages", tok, map[string]string{"text": text})
		resp.Body.Close()
	}
	resp := doAuthed(t, client, http.MethodDelete, srv.URL+"/v1/messages", tok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear: status %d", resp.StatusCode)
	}
	msgs, _ := store.ListMessages()
	if len(msgs) != 0 {
		t.Fatalf("expected empty collection after clear, got %d", len(msgs))
	}
}

func TestListMessagesServesLocalView(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	tok := registerAndJoin(t, srv, "alice")

	resp := postJSON(t, client, srv.URL+"/v1/messages", tok, map[string]string{"text": "visible"})
	resp.Body.Close()

	// The local view reconciles asynchronously; poll briefly.
	var got []models.Message
	for i := 0; i < 100; i++ {
		r := doAuthed(t, client, http.MethodGet, srv.URL+"/v1/messages", tok)
		got = nil
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode messages: %v", err)
		}
		r.Body.Close()
		if len(got) >= 2 { // join announcement + send
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(got) < 2 {
		t.Fatalf("local view never reconciled: %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].TS <= got[i-1].TS {
			t.Fatalf("served view not ascending by timestamp")
		}
	}
}
