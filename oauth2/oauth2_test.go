package oauth2_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/whisperlabs/whisper/oauth2"
	oauth2lib "golang.org/x/oauth2"
)

// mockOAuthServer creates a mock OAuth provider server that handles:
// - /token endpoint for token exchange
// - /userinfo endpoint for user data retrieval
type mockOAuthServer struct {
	server           *httptest.Server
	tokenEndpoint    string
	userInfoEndpoint string

	tokenResponse    map[string]any
	userInfoResponse map[string]any
	tokenError       bool
	userInfoError    bool
}

func newMockOAuthServer() *mockOAuthServer {
	mock := &mockOAuthServer{
		tokenResponse: map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		},
		userInfoResponse: map[string]any{
			"id":    "12345",
			"email": "testuser@example.com",
			"name":  "Test User",
		},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if mock.tokenError {
			http.Error(w, "token exchange failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.tokenResponse)
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if mock.userInfoError {
			http.Error(w, "user info failed", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	})

	mock.server = httptest.NewServer(mux)
	mock.tokenEndpoint = mock.server.URL + "/token"
	mock.userInfoEndpoint = mock.server.URL + "/userinfo"

	return mock
}

func (m *mockOAuthServer) Close() {
	m.server.Close()
}

// TestOauthRedirector tests the OAuth redirect handler
func TestOauthRedirector(t *testing.T) {
	config := &oauth2lib.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{"email", "profile"},
		Endpoint: oauth2lib.Endpoint{
			AuthURL:  "https://provider.example.com/auth",
			TokenURL: "https://provider.example.com/token",
		},
	}

	redirector := oauth2.OauthRedirector(config)

	t.Run("redirects to OAuth provider", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		redirector(rr, req)

		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}

		location, err := url.Parse(rr.Header().Get("Location"))
		if err != nil {
			t.Fatalf("invalid Location header: %v", err)
		}
		if !strings.HasPrefix(location.String(), "https://provider.example.com/auth") {
			t.Errorf("redirect should target the provider, got %s", location)
		}
		if location.Query().Get("state") == "" {
			t.Error("redirect should carry a state parameter")
		}
		if location.Query().Get("client_id") != "test-client-id" {
			t.Error("redirect should carry the client id")
		}
	})

	t.Run("sets matching state cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		redirector(rr, req)

		var stateCookie *http.Cookie
		for _, c := range rr.Result().Cookies() {
			if c.Name == "oauthstate" {
				stateCookie = c
			}
		}
		if stateCookie == nil {
			t.Fatal("oauthstate cookie not set")
		}

		location, _ := url.Parse(rr.Header().Get("Location"))
		if location.Query().Get("state") != stateCookie.Value {
			t.Error("state parameter and cookie should match")
		}
	})

	t.Run("fresh state every redirect", func(t *testing.T) {
		states := map[string]bool{}
		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rr := httptest.NewRecorder()
			redirector(rr, req)
			location, _ := url.Parse(rr.Header().Get("Location"))
			states[location.Query().Get("state")] = true
		}
		if len(states) != 5 {
			t.Errorf("expected 5 distinct states, got %d", len(states))
		}
	})

	t.Run("remembers callback URL", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?callbackURL=/after-login", nil)
		rr := httptest.NewRecorder()

		redirector(rr, req)

		found := false
		for _, c := range rr.Result().Cookies() {
			if c.Name == "oauthCallbackURL" && c.Value == "/after-login" {
				found = true
			}
		}
		if !found {
			t.Error("oauthCallbackURL cookie not set")
		}
	})
}

func newTestGoogle(mock *mockOAuthServer, handleUser oauth2.HandleUserFunc) *oauth2.GoogleOAuth2 {
	g := oauth2.NewGoogleOAuth2("test-client", "test-secret", "http://localhost/callback", handleUser)
	g.Config().Endpoint = oauth2lib.Endpoint{
		AuthURL:  mock.server.URL + "/auth",
		TokenURL: mock.tokenEndpoint,
	}
	g.UserInfoURL = mock.userInfoEndpoint
	return g
}

func callbackRequest(state, cookieState string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/callback?state="+url.QueryEscape(state)+"&code=test-code", nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: "oauthstate", Value: cookieState})
	}
	return req
}

func TestGoogleCallback(t *testing.T) {
	t.Run("successful exchange calls HandleUser", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()

		var gotProvider string
		var gotUserInfo map[string]any
		g := newTestGoogle(mock, func(authtype, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
			gotProvider = provider
			gotUserInfo = userInfo
			w.WriteHeader(http.StatusOK)
		})

		rr := httptest.NewRecorder()
		g.HandleCallback(rr, callbackRequest("state123", "state123"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 from HandleUser, got %d", rr.Code)
		}
		if gotProvider != "google" {
			t.Errorf("provider = %q", gotProvider)
		}
		if gotUserInfo["id"] != "12345" {
			t.Errorf("userInfo = %v", gotUserInfo)
		}
	})

	t.Run("missing state cookie rejected", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()

		g := newTestGoogle(mock, func(authtype, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
			t.Error("HandleUser must not be called")
		})

		rr := httptest.NewRecorder()
		g.HandleCallback(rr, callbackRequest("state123", ""))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("state mismatch rejected", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()

		g := newTestGoogle(mock, func(authtype, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
			t.Error("HandleUser must not be called")
		})

		rr := httptest.NewRecorder()
		g.HandleCallback(rr, callbackRequest("tampered", "state123"))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("failed exchange redirects to failure path", func(t *testing.T) {
		mock := newMockOAuthServer()
		mock.tokenError = true
		defer mock.Close()

		g := newTestGoogle(mock, func(authtype, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
			t.Error("HandleUser must not be called")
		})

		rr := httptest.NewRecorder()
		g.HandleCallback(rr, callbackRequest("state123", "state123"))

		if rr.Code != http.StatusTemporaryRedirect {
			t.Fatalf("expected redirect, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); !strings.HasPrefix(loc, "/login") {
			t.Errorf("expected failure redirect to login, got %q", loc)
		}
	})

	t.Run("failed userinfo fetch redirects to failure path", func(t *testing.T) {
		mock := newMockOAuthServer()
		mock.userInfoError = true
		defer mock.Close()

		g := newTestGoogle(mock, func(authtype, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
			t.Error("HandleUser must not be called")
		})

		rr := httptest.NewRecorder()
		g.HandleCallback(rr, callbackRequest("state123", "state123"))

		if rr.Code != http.StatusTemporaryRedirect {
			t.Fatalf("expected redirect, got %d", rr.Code)
		}
	})
}
