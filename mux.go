package whisper

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	xoauth2 "golang.org/x/oauth2"

	oa2 "github.com/whisperlabs/whisper/oauth2"
)

// App wires the strategies, session manager and user store into the
// route surface:
//
//	GET  /                       home
//	GET/POST /register           local signup
//	GET/POST /login              local login
//	GET  /auth/google[,/callback]  external login (when configured)
//	GET  /auth/github[,/callback]
//	GET/POST /logout             idempotent logout
//	GET  /secrets                public listing of submitted secrets
//	GET/POST /submit             authenticated secret submission
type App struct {
	router     *mux.Router
	Session    *SessionManager
	Middleware Middleware

	// Optional name that can be used as a prefix for all required vars
	AppName string

	// Name of the cookie/session var where the auth token is stored
	AuthTokenVar string

	// Must be passed in
	Store UserStore

	Local  *LocalAuth
	Google *oa2.GoogleOAuth2
	Github *oa2.GithubOAuth2

	// All the domains where the auth token cookies will be set on a login success or logout
	CookieDomains []string

	// JWT related fields
	JwtIssuer    string
	JWTSecretKey string

	// How long is a session valid for. Defaults to 1 day.
	SessionTimeoutInSeconds int
}

// New creates an App over the given store with defaults filled in
func New(appName string, store UserStore) *App {
	out := (&App{AppName: appName, Store: store}).EnsureDefaults()
	return out
}

func (a *App) EnsureDefaults() *App {
	if a.AppName == "" {
		a.AppName = "Whisper"
	}
	if a.SessionTimeoutInSeconds <= 0 {
		a.SessionTimeoutInSeconds = 86400
	}
	if a.JwtIssuer == "" {
		a.JwtIssuer = fmt.Sprintf("%s-Issuer", a.AppName)
	}
	if a.AuthTokenVar == "" {
		a.AuthTokenVar = fmt.Sprintf("%sAuthToken", a.AppName)
	}
	if a.JWTSecretKey == "" {
		a.JWTSecretKey = strings.TrimSpace(os.Getenv("WHISPER_JWT_SECRET_KEY"))
		if a.JWTSecretKey == "" {
			a.JWTSecretKey = "MyTestJWTSecretKey123456"
		}
	}
	if a.Session == nil {
		a.Session = NewSessionManager(time.Second * time.Duration(a.SessionTimeoutInSeconds))
	}
	if a.Local == nil {
		a.Local = &LocalAuth{
			Store:      a.Store,
			Hasher:     &PasswordHasher{},
			HandleUser: a.HandleLocalUser,
			OnLoginError: func(err *AuthError, w http.ResponseWriter, r *http.Request) bool {
				if wantsJSON(r) {
					return false
				}
				http.Redirect(w, r, "/login?error="+url.QueryEscape(err.Code), http.StatusSeeOther)
				return true
			},
		}
	}
	a.Middleware.Session = a.Session
	if a.Middleware.AuthTokenCookieName == "" {
		a.Middleware.AuthTokenCookieName = a.AuthTokenVar
	}
	if a.Middleware.RedirectURL == "" {
		a.Middleware.RedirectURL = "/login"
	}
	if a.Middleware.VerifyToken == nil {
		a.Middleware.VerifyToken = a.verifyJWT
	}
	return a
}

// Handler returns the root handler: the router wrapped in the session
// middleware so every request can resolve its session token.
func (a *App) Handler() http.Handler {
	return a.Session.LoadAndSave(a.setupRoutes().router)
}

func (a *App) setupRoutes() *App {
	if a.router != nil {
		return a
	}
	a.EnsureDefaults()
	r := mux.NewRouter()
	r.HandleFunc("/", a.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/register", a.handleRegisterForm).Methods(http.MethodGet)
	r.HandleFunc("/register", a.Local.HandleSignup).Methods(http.MethodPost)
	r.HandleFunc("/login", a.handleLoginForm).Methods(http.MethodGet)
	r.Handle("/login", a.Local).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.onLogout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/secrets", a.handleListSecrets).Methods(http.MethodGet)
	r.Handle("/submit", a.Middleware.EnsureUser(http.HandlerFunc(a.handleSubmitForm))).Methods(http.MethodGet)
	r.Handle("/submit", a.Middleware.EnsureUser(http.HandlerFunc(a.handleSubmitSecret))).Methods(http.MethodPost)

	if a.Google != nil {
		r.HandleFunc("/auth/google", a.Google.HandleRedirect).Methods(http.MethodGet)
		r.HandleFunc("/auth/google/callback", a.Google.HandleCallback).Methods(http.MethodGet)
	}
	if a.Github != nil {
		r.HandleFunc("/auth/github", a.Github.HandleRedirect).Methods(http.MethodGet)
		r.HandleFunc("/auth/github/callback", a.Github.HandleCallback).Methods(http.MethodGet)
	}
	a.router = r
	return a
}

// UseGoogle enables the Google external strategy
func (a *App) UseGoogle(clientId, clientSecret, callbackUrl string) *App {
	a.Google = oa2.NewGoogleOAuth2(clientId, clientSecret, callbackUrl, a.HandleOAuthUser)
	return a
}

// UseGithub enables the GitHub external strategy
func (a *App) UseGithub(clientId, clientSecret, callbackUrl string) *App {
	a.Github = oa2.NewGithubOAuth2(clientId, clientSecret, callbackUrl, a.HandleOAuthUser)
	return a
}

// HandleLocalUser completes a successful local authentication: establish
// the session, set the auth token cookie, redirect to the secrets page.
func (a *App) HandleLocalUser(authtype string, provider string, token *xoauth2.Token, user *User, w http.ResponseWriter, r *http.Request) {
	if err := a.setLoggedInUser(user, w, r); err != nil {
		log.Println("error establishing session: ", err)
		http.Error(w, `{"error": "Something went wrong"}`, http.StatusInternalServerError)
		return
	}
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success": true, "identity": %q}`, user.DisplayIdentity())
		return
	}
	http.Redirect(w, r, "/secrets", http.StatusSeeOther)
}

// HandleOAuthUser is called by the oauth callback handler with the auth
// token and provider profile after a successful exchange. The local record
// is found-or-created from the provider's stable subject id, then a
// session is established exactly as for local logins.
func (a *App) HandleOAuthUser(authtype string, provider string, token *xoauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
	subject := subjectId(userInfo)
	if subject == "" {
		log.Println("provider profile missing subject id: ", userInfo)
		http.Redirect(w, r, "/login?error=oauth", http.StatusSeeOther)
		return
	}

	profile := map[string]any{}
	for _, k := range []string{"name", "email", "login", "picture"} {
		if v, ok := userInfo[k]; ok {
			profile[k] = v
		}
	}

	user, created, err := a.Store.EnsureExternalUser(r.Context(), provider, subject, profile)
	if err != nil {
		log.Println("error ensuring external user: ", err)
		http.Redirect(w, r, "/login?error=oauth", http.StatusSeeOther)
		return
	}
	if created {
		log.Printf("Created %s user for subject %s", provider, subject)
	}

	if err := a.setLoggedInUser(user, w, r); err != nil {
		log.Println("error establishing session: ", err)
		http.Redirect(w, r, "/login?error=oauth", http.StatusSeeOther)
		return
	}

	// Auth done - go back to where we need to be
	callbackURL := "/secrets"
	callbackURLCookie, _ := r.Cookie("oauthCallbackURL")
	if callbackURLCookie != nil && callbackURLCookie.Value != "" {
		callbackURL = callbackURLCookie.Value
	}
	// then delete it too so it wont be used for subsequent redirects
	http.SetCookie(w, &http.Cookie{
		Name:   "oauthCallbackURL",
		Value:  "",
		Path:   "/",
		MaxAge: -1, Expires: time.Now(),
	})
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

// subjectId extracts the provider's stable subject id from the profile
// document. Google sends a string, GitHub a number.
func subjectId(userInfo map[string]any) string {
	switch v := userInfo["id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	if v, ok := userInfo["sub"].(string); ok {
		return v
	}
	return ""
}

// setLoggedInUser establishes (or with nil, tears down) the login session
// and the auth token cookie across the configured cookie domains.
func (a *App) setLoggedInUser(user *User, w http.ResponseWriter, r *http.Request) error {
	a.EnsureDefaults()
	domains := a.CookieDomains
	if slices.Index(a.CookieDomains, "") < 0 { // default domain
		domains = append(domains, "")
	}

	if user == nil {
		if err := a.Session.Logout(r.Context()); err != nil {
			return err
		}
		for _, cookieDomain := range domains {
			http.SetCookie(w, &http.Cookie{
				Name:   a.AuthTokenVar,
				Value:  "",
				Domain: cookieDomain,
				Path:   "/",
				MaxAge: -1, Expires: time.Now(),
			})
		}
		return nil
	}

	if err := a.Session.Establish(r.Context(), user); err != nil {
		return err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.ID,
		"iss": a.JwtIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	tokenString, err := token.SignedString([]byte(a.JWTSecretKey))
	if err != nil {
		slog.Info("error signing token", "err", err)
		return err
	}

	for _, cookieDomain := range domains {
		http.SetCookie(w, &http.Cookie{
			Name:     a.AuthTokenVar,
			Value:    tokenString,
			Domain:   cookieDomain,
			Path:     "/",
			HttpOnly: true,
			Expires:  time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds)),
			MaxAge:   a.SessionTimeoutInSeconds,
		})
	}
	return nil
}

func (a *App) verifyJWT(tokenString string) (loggedInUserId string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(a.JWTSecretKey), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if sub == "" {
		return "", fmt.Errorf("subject not found")
	} else if err != nil {
		return "", err
	}
	return sub, nil
}

func (a *App) onLogout(w http.ResponseWriter, r *http.Request) {
	log.Println("Logging out user...")
	if err := a.setLoggedInUser(nil, w, r); err != nil {
		log.Println("error destroying session: ", err)
	}
	toUrl := r.URL.Query().Get("to")
	if toUrl == "" {
		toUrl = "/"
	}
	http.Redirect(w, r, toUrl, http.StatusFound)
}
