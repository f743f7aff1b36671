package whisper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"log/slog"
)

type userParamNameKey string

// Middleware resolves the logged-in user for a request: the session is
// consulted first, then any auth token from the Authorization header or
// the auth-token cookie. Anonymous requests resolve to "" - resolution
// itself never fails a request.
type Middleware struct {
	Session             *SessionManager
	AuthTokenHeaderName string
	AuthTokenCookieName string
	UserParamName       string
	CallbackURLParam    string
	RedirectURL         string
	VerifyToken         func(tokenString string) (loggedInUserId string, err error)
}

// EnsureReasonableDefaults ensures that config values have reasonable defaults
func (a *Middleware) EnsureReasonableDefaults() {
	if a.UserParamName == "" {
		a.UserParamName = "loggedInUserId"
	}
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
}

// GetLoggedInUserId returns the ID of the logged in user for the current
// request, or "" when anonymous.
func (a *Middleware) GetLoggedInUserId(r *http.Request) string {
	v := r.Context().Value(userParamNameKey(a.UserParamName))
	if v != nil {
		loggedInUserId := v.(string)
		if loggedInUserId != "" {
			return loggedInUserId
		}
	}

	if a.Session != nil {
		if userId := a.Session.Resolve(r.Context()); userId != "" {
			return userId
		}
	}

	if a.VerifyToken == nil {
		return ""
	}

	// Otherwise check the Auth header and cookies
	authTokens := r.Header.Values(a.AuthTokenHeaderName)
	for i, t := range authTokens {
		authTokens[i] = strings.TrimPrefix(t, "Bearer ")
	}
	for _, cookie := range r.CookiesNamed(a.AuthTokenCookieName) {
		if len(cookie.Value) > 0 {
			authTokens = append(authTokens, cookie.Value)
		}
	}

	for _, authToken := range authTokens {
		loggedInUserId, err := a.VerifyToken(authToken)
		if err == nil && loggedInUserId != "" {
			return loggedInUserId
		} else if err != nil {
			slog.Warn("error verifying token", "error", err)
		}
	}

	return ""
}

// ExtractUser loads the logged-in user ID (if any) into the request
// context for downstream handlers. Performs no redirects.
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			userParam := a.GetLoggedInUserId(r)
			next.ServeHTTP(w, a.setLoggedInUserId(userParam, r))
		},
	)
}

// EnsureUser gates a handler on an authenticated session. Anonymous
// requests are redirected to RedirectURL (carrying the original path in
// CallbackURLParam) or denied with a 401 when no redirect is configured.
// The wrapped handler never partially executes.
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			userParam := a.GetLoggedInUserId(r)
			if userParam == "" {
				if a.RedirectURL != "" && !wantsJSON(r) {
					originalUrl := r.URL.Path
					encodedUrl := strings.Replace(url.QueryEscape(originalUrl), "+", "%20", -1)
					fullRedirUrl := fmt.Sprintf("%s?%s=%s", a.RedirectURL, a.CallbackURLParam, encodedUrl)
					http.Redirect(w, r, fullRedirUrl, http.StatusFound)
				} else {
					http.Error(w, `{"error": "Not authenticated"}`, http.StatusUnauthorized)
				}
				return
			}
			next.ServeHTTP(w, a.setLoggedInUserId(userParam, r))
		},
	)
}

// Set the logged in user id into the request's variable set
// This will make it available to all other handlers downstream
func (a *Middleware) setLoggedInUserId(userId string, r *http.Request) *http.Request {
	contextWithUser := context.WithValue(r.Context(), userParamNameKey(a.UserParamName), userId)
	return r.WithContext(contextWithUser)
}

// wantsJSON reports whether the client prefers a JSON response over an
// HTML redirect.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
