// Package auth handles OAuth application registration and token exchange
// against a Mastodon-compatible instance, plus file-backed storage of the
// resulting credentials.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	fedihttp "github.com/cecil-the-coder/fediverse-kit/pkg/http"
)

// OutOfBandRedirect is the redirect URI for flows without a local callback
// server; the instance displays the authorization code to the user.
const OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"

// AppConfig describes the application to register with an instance.
type AppConfig struct {
	ClientName  string
	RedirectURI string   // defaults to OutOfBandRedirect
	Scopes      []string // defaults to ["read"]
	Website     string
}

// App is a registered OAuth application on one instance.
type App struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// RegisterApp creates an OAuth application on the instance at base.
func RegisterApp(ctx context.Context, hc *fedihttp.Client, base string, cfg AppConfig) (*App, error) {
	if cfg.ClientName == "" {
		return nil, fmt.Errorf("auth: client name is required")
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = OutOfBandRedirect
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"read"}
	}

	form := url.Values{}
	form.Set("client_name", cfg.ClientName)
	form.Set("redirect_uris", cfg.RedirectURI)
	form.Set("scopes", strings.Join(cfg.Scopes, " "))
	if cfg.Website != "" {
		form.Set("website", cfg.Website)
	}

	req, err := fedihttp.NewFormRequest(base+"/api/v1/apps", form)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("registering app: %w", err)
	}

	var app App
	if err := fedihttp.ProcessJSONResponse(resp, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// OAuthConfig builds the oauth2 configuration for an app on an instance.
func OAuthConfig(base string, app *App, redirectURI string, scopes []string) *oauth2.Config {
	if redirectURI == "" {
		redirectURI = OutOfBandRedirect
	}
	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  base + "/oauth/authorize",
			TokenURL: base + "/oauth/token",
		},
	}
}

// AuthorizeURL returns the URL the user visits to grant access.
func AuthorizeURL(base string, app *App, redirectURI string, scopes []string) string {
	return OAuthConfig(base, app, redirectURI, scopes).AuthCodeURL("", oauth2.AccessTypeOffline)
}

// ExchangeCode trades an authorization code for an access token.
func ExchangeCode(ctx context.Context, base string, app *App, redirectURI string, scopes []string, code string) (*oauth2.Token, error) {
	token, err := OAuthConfig(base, app, redirectURI, scopes).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token, nil
}
