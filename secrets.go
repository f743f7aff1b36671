package whisper

import (
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
)

// The page handlers below render one-off inline pages, enough to drive
// the flows from a browser. Anything programmatic should send
// Accept: application/json and get JSON back.

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>Keep one secret. Share it with everyone.</p>
<ul>
	<li><a href="/register">Register</a></li>
	<li><a href="/login">Login</a></li>
	<li><a href="/secrets">Browse secrets</a></li>
</ul>
</body>
</html>`, a.AppName, a.AppName)
}

func (a *App) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Register</title></head>
<body>
<h1>Register</h1>
<form method="POST" action="/register">
	<label>Username: <input type="text" name="username" required minlength="3" maxlength="20"></label>
	<label>Password: <input type="password" name="password" required minlength="8"></label>
	<button type="submit">Register</button>
</form>
</body>
</html>`)
}

func (a *App) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	notice := ""
	if r.URL.Query().Get("error") != "" {
		notice = "<p>Login failed. Please try again.</p>"
	}
	external := ""
	if a.Google != nil {
		external += `<p><a href="/auth/google">Login with Google</a></p>`
	}
	if a.Github != nil {
		external += `<p><a href="/auth/github">Login with GitHub</a></p>`
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Login</title></head>
<body>
<h1>Login</h1>
%s<form method="POST" action="/login">
	<label>Username: <input type="text" name="username" required></label>
	<label>Password: <input type="password" name="password" required></label>
	<button type="submit">Login</button>
</form>
%s</body>
</html>`, notice, external)
}

// handleListSecrets serves the public listing: every user who has
// submitted a secret, identified by display identity only. No credential
// material ever leaves this handler.
func (a *App) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Store.ListSecrets(r.Context())
	if err != nil {
		log.Println("error listing secrets: ", err)
		http.Error(w, `{"error": "Something went wrong"}`, http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"secrets": entries})
		return
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "<li><b>%s</b>: %s</li>\n", html.EscapeString(e.Identity), html.EscapeString(e.Secret))
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Secrets</title></head>
<body>
<h1>Secrets</h1>
<ul>
%s</ul>
<p><a href="/submit">Submit yours</a> | <a href="/logout">Logout</a></p>
</body>
</html>`, b.String())
}

func (a *App) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Submit a Secret</title></head>
<body>
<h1>Submit a Secret</h1>
<form method="POST" action="/submit">
	<label>Secret: <input type="text" name="secret" required></label>
	<button type="submit">Submit</button>
</form>
</body>
</html>`)
}

// handleSubmitSecret overwrites the current user's secret. Only reachable
// through the EnsureUser gate, so a user ID is always present.
func (a *App) handleSubmitSecret(w http.ResponseWriter, r *http.Request) {
	userId := a.Middleware.GetLoggedInUserId(r)

	secret, err := parseSecret(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(NewAuthError(ErrCodeMissingField, "Secret is required", "secret"))
		return
	}

	if err := a.Store.SetSecret(r.Context(), userId, secret); err != nil {
		log.Println("error saving secret: ", err)
		http.Error(w, `{"error": "Something went wrong"}`, http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success": true}`)
		return
	}
	http.Redirect(w, r, "/secrets", http.StatusSeeOther)
}

func parseSecret(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("error parsing form")
		}
		if secret := r.FormValue("secret"); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("secret required")
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		return "", fmt.Errorf("invalid post body")
	}
	if secret, ok := data["secret"].(string); ok && secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("secret required")
}
