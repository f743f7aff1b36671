package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	xoauth2 "golang.org/x/oauth2"

	wh "github.com/whisperlabs/whisper"
	"github.com/whisperlabs/whisper/stores"
)

type secretsResponse struct {
	Secrets []wh.SecretEntry `json:"secrets"`
}

func newTestApp(t *testing.T) (*wh.App, wh.UserStore) {
	store := stores.NewFSUserStore(t.TempDir())
	app := wh.New("TestApp", store)
	app.Local.Hasher = &wh.PasswordHasher{Cost: 4}
	return app, store
}

func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func listSecrets(t *testing.T, client *http.Client, baseURL string) []wh.SecretEntry {
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/secrets", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET /secrets: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /secrets status %d", resp.StatusCode)
	}
	var out secretsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode secrets: %v", err)
	}
	return out.Secrets
}

func postFormURL(t *testing.T, client *http.Client, target string, formData map[string]string) *http.Response {
	form := url.Values{}
	for k, v := range formData {
		form.Set(k, v)
	}
	resp, err := client.PostForm(target, form)
	if err != nil {
		t.Fatalf("POST %s: %v", target, err)
	}
	return resp
}

// The core journey end to end: register alice, see the empty board, log
// in, submit a secret, see it listed with no credential material anywhere.
func TestRegisterSubmitListJourney(t *testing.T) {
	app, _ := newTestApp(t)
	server := httptest.NewServer(app.Handler())
	defer server.Close()
	client := newClient(t)

	if secrets := listSecrets(t, client, server.URL); len(secrets) != 0 {
		t.Fatalf("expected empty listing before any submissions, got %v", secrets)
	}

	resp := postFormURL(t, client, server.URL+"/register", map[string]string{
		"username": "alice", "password": "pw123-secret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status %d", resp.StatusCode)
	}

	// log out, then back in with the same credentials
	resp, err := client.Get(server.URL + "/logout")
	if err != nil {
		t.Fatalf("GET /logout: %v", err)
	}
	resp.Body.Close()

	resp = postFormURL(t, client, server.URL+"/login", map[string]string{
		"username": "alice", "password": "pw123-secret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}

	resp = postFormURL(t, client, server.URL+"/submit", map[string]string{"secret": "cats"})
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", resp.StatusCode, body)
	}

	secrets := listSecrets(t, client, server.URL)
	if len(secrets) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(secrets))
	}
	if secrets[0].Identity != "alice" || secrets[0].Secret != "cats" {
		t.Errorf("unexpected entry %+v", secrets[0])
	}

	// the raw listing must never leak credential material
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/secrets", nil)
	req.Header.Set("Accept", "application/json")
	raw, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET /secrets: %v", err)
	}
	rawBody, _ := io.ReadAll(raw.Body)
	raw.Body.Close()
	for _, needle := range []string{"password", "hash", "$2a$"} {
		if strings.Contains(string(rawBody), needle) {
			t.Errorf("listing leaks %q: %s", needle, rawBody)
		}
	}
}

func TestSubmitRequiresLogin(t *testing.T) {
	app, _ := newTestApp(t)
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	client := newClient(t)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	form := url.Values{"secret": []string{"sneaky"}}
	resp, err := client.PostForm(server.URL+"/submit", form)
	if err != nil {
		t.Fatalf("POST /submit: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("anonymous submit: expected redirect, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "/login") {
		t.Errorf("expected redirect to /login, got %q", loc)
	}

	// and nothing was stored
	if secrets := listSecrets(t, newClient(t), server.URL); len(secrets) != 0 {
		t.Errorf("anonymous submit must not store anything, got %v", secrets)
	}
}

func TestSubmitOverwritesSecret(t *testing.T) {
	app, _ := newTestApp(t)
	server := httptest.NewServer(app.Handler())
	defer server.Close()
	client := newClient(t)

	resp := postFormURL(t, client, server.URL+"/register", map[string]string{
		"username": "bob", "password": "pw123-secret",
	})
	resp.Body.Close()

	for _, secret := range []string{"first", "second"} {
		resp = postFormURL(t, client, server.URL+"/submit", map[string]string{"secret": secret})
		resp.Body.Close()
	}

	secrets := listSecrets(t, client, server.URL)
	if len(secrets) != 1 {
		t.Fatalf("expected 1 entry after overwrite, got %d", len(secrets))
	}
	if secrets[0].Secret != "second" {
		t.Errorf("expected last write to win, got %q", secrets[0].Secret)
	}
}

// External login: first callback creates the user, a second callback with
// the same provider subject resolves to the same record.
func TestExternalLoginJourney(t *testing.T) {
	app, store := newTestApp(t)
	app.UseGoogle("test-client", "test-secret", "")

	mock := newMockProvider(map[string]any{
		"id":    "g-42",
		"email": "gina@example.com",
		"name":  "Gina",
	})
	defer mock.Close()
	app.Google.Config().Endpoint = xoauth2.Endpoint{
		AuthURL:  mock.URL + "/auth",
		TokenURL: mock.URL + "/token",
	}
	app.Google.UserInfoURL = mock.URL + "/userinfo"

	server := httptest.NewServer(app.Handler())
	defer server.Close()

	runGoogleLogin(t, server.URL, "first-login-marker")
	runGoogleLogin(t, server.URL, "second-login-marker")

	// both logins landed on one record: find-or-create found, not created
	user, created, err := store.EnsureExternalUser(context.Background(), "google", "g-42", nil)
	if err != nil {
		t.Fatalf("external user not stored: %v", err)
	}
	if created {
		t.Fatal("expected the record to already exist after the logins")
	}
	if user.PasswordHash != nil {
		t.Error("external-only user must have no password hash")
	}
	if user.Secret == nil || *user.Secret != "second-login-marker" {
		t.Error("both logins should have written through to the same record")
	}

	// and the listing shows exactly one entry for the subject
	count := 0
	for _, e := range listSecrets(t, newClient(t), server.URL) {
		if e.Identity == "google:g-42" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one listing entry for the subject, got %d", count)
	}
}

// runGoogleLogin drives both steps of the redirect flow against the app,
// then submits marker as the logged-in user's secret.
func runGoogleLogin(t *testing.T, baseURL string, marker string) {
	client := newClient(t)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	// step one: app redirects to the provider and sets the state cookie
	resp, err := client.Get(baseURL + "/auth/google")
	if err != nil {
		t.Fatalf("GET /auth/google: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("redirect step: expected 302, got %d", resp.StatusCode)
	}
	authURL, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("bad auth url: %v", err)
	}
	state := authURL.Query().Get("state")
	if state == "" {
		t.Fatal("redirect carries no state")
	}

	// step two: provider calls back with the code and our state
	callback := baseURL + "/auth/google/callback?state=" + url.QueryEscape(state) + "&code=test-code"
	resp, err = client.Get(callback)
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback: expected 302 to the app, got %d", resp.StatusCode)
	}

	// the session now resolves: ask an authenticated endpoint
	resp, err = client.Get(baseURL + "/submit")
	if err != nil {
		t.Fatalf("GET /submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session not established after callback: %d", resp.StatusCode)
	}

	// leave a marker secret behind so the caller can see which record
	// this login wrote to
	form := url.Values{"secret": []string{marker}}
	resp, err = client.PostForm(baseURL+"/submit", form)
	if err != nil {
		t.Fatalf("POST /submit: %v", err)
	}
	resp.Body.Close()
}

// newMockProvider serves the provider's token and userinfo endpoints
func newMockProvider(userInfo map[string]any) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userInfo)
	})
	return httptest.NewServer(mux)
}
