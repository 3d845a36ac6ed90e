package meta

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-social-sync/core"
)

type tokenPayload struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int64 `json:"expires_in"`
}

func (p *tokenPayload) recognized() bool {
	return strings.TrimSpace(p.AccessToken) != ""
}

func (p tokenPayload) toResponse() core.TokenResponse {
	resp := core.TokenResponse{
		AccessToken: p.AccessToken,
		TokenType:   strings.ToLower(strings.TrimSpace(p.TokenType)),
	}
	if p.ExpiresIn != nil && *p.ExpiresIn > 0 {
		resp.ExpiresIn = *p.ExpiresIn
	}
	return resp
}

// BuildAuthorizationURL is pure; it performs no I/O.
func (c *Client) BuildAuthorizationURL(app core.AppCredentials, state string, scopes []string) (string, error) {
	appID := strings.TrimSpace(app.AppID)
	redirectURI := strings.TrimSpace(app.RedirectURI)
	state = strings.TrimSpace(state)
	switch {
	case appID == "":
		return "", core.NewFieldValidationError("app_id", "app id is required")
	case redirectURI == "":
		return "", core.NewFieldValidationError("redirect_uri", "redirect uri is required")
	case state == "":
		return "", core.NewFieldValidationError("state", "state is required")
	}

	authURL, err := url.Parse(c.cfg.AuthorizeURL)
	if err != nil {
		return "", core.NewConfigurationError("meta: authorize url is invalid")
	}
	query := authURL.Query()
	query.Set("client_id", appID)
	query.Set("redirect_uri", redirectURI)
	query.Set("state", state)
	query.Set("response_type", "code")
	if normalized := normalizeScopes(scopes); len(normalized) > 0 {
		query.Set("scope", strings.Join(normalized, ","))
	}
	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

// ExchangeCode trades an authorization code for a short-lived user token.
func (c *Client) ExchangeCode(ctx context.Context, app core.AppCredentials, code string) (core.TokenResponse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenResponse{}, core.NewFieldValidationError("code", "authorization code is required")
	}
	query := url.Values{}
	query.Set("client_id", app.AppID)
	query.Set("redirect_uri", app.RedirectURI)
	query.Set("client_secret", app.AppSecret)
	query.Set("code", code)

	var payload tokenPayload
	if err := c.do(ctx, graphRequest{
		operation:     "exchange_code",
		method:        http.MethodPost,
		path:          "oauth/access_token",
		query:         query,
		rateScope:     app.AppID,
		rateScopeType: "app",
	}, &payload); err != nil {
		return core.TokenResponse{}, err
	}
	return payload.toResponse(), nil
}

// UpgradeToken exchanges a user token for a long-lived one. Responses without
// expires_in are treated as non-expiring.
func (c *Client) UpgradeToken(ctx context.Context, app core.AppCredentials, token string) (core.TokenResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.TokenResponse{}, core.NewFieldValidationError("access_token", "token is required")
	}
	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", app.AppID)
	query.Set("client_secret", app.AppSecret)
	query.Set("fb_exchange_token", token)

	var payload tokenPayload
	if err := c.do(ctx, graphRequest{
		operation:     "upgrade_token",
		path:          "oauth/access_token",
		query:         query,
		rateScope:     app.AppID,
		rateScopeType: "app",
	}, &payload); err != nil {
		return core.TokenResponse{}, err
	}
	return payload.toResponse(), nil
}

func normalizeScopes(scopes []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out
}
