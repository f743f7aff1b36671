// Package oauth2 implements the external authentication strategy: a
// two-step redirect flow against an OAuth2 identity provider. The code
// exchange and profile fetch are delegated to golang.org/x/oauth2; this
// package only drives the flow and hands the resulting provider profile
// to the application's HandleUser callback.
package oauth2

import (
	"context"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExchangeTimeout bounds the code exchange and userinfo fetch. A
// slow or dead provider is an authentication failure, not a hang.
const DefaultExchangeTimeout = 10 * time.Second

type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string
	HandleUser   HandleUserFunc

	// AuthFailureUrl is where the user agent is sent when the provider
	// denies or the exchange fails. Defaults to "/login?error=oauth".
	AuthFailureUrl string

	// ExchangeTimeout bounds the provider exchange. Zero means
	// DefaultExchangeTimeout.
	ExchangeTimeout time.Duration

	oauthConfig oauth2.Config
}

func NewBaseOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	if clientId == "" {
		clientId = os.Getenv("OAUTH2_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_CLIENT_SECRET")
	}
	if callbackUrl == "" {
		callbackUrl = os.Getenv("OAUTH2_CALLBACK_URL")
	}
	return &BaseOAuth2{
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		HandleUser:     handleUser,
		AuthFailureUrl: "/login?error=oauth",
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
}

// Config exposes the underlying oauth2 config, mainly so tests can point
// the endpoint at a mock provider.
func (b *BaseOAuth2) Config() *oauth2.Config {
	return &b.oauthConfig
}

// HandleRedirect sends the user agent to the provider's authorization
// endpoint with a fresh state cookie.
func (b *BaseOAuth2) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	OauthRedirector(&b.oauthConfig)(w, r)
}

// ExchangeContext returns a context bounding the provider exchange
func (b *BaseOAuth2) ExchangeContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := b.ExchangeTimeout
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}
