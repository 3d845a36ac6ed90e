// Package meta talks to the Meta Graph API: OAuth code exchange, long-lived
// token upgrade, account discovery and content listing.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-social-sync/core"
)

const (
	maxResponseBodyBytes   = 1 << 20
	defaultMaxAccountPages = 10
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	AuthorizeURL    string
	GraphBaseURL    string
	RequestTimeout  time.Duration
	HTTPClient      HTTPDoer
	RateLimitPolicy core.RateLimitPolicy
	// MaxAccountPages caps how many pages of /me/accounts are followed.
	MaxAccountPages int
}

// ConfigFromCore copies the graph and oauth endpoints from the service config.
func ConfigFromCore(cfg core.Config) Config {
	return Config{
		AuthorizeURL:   cfg.OAuth.AuthorizeURL,
		GraphBaseURL:   cfg.Graph.BaseURL,
		RequestTimeout: cfg.Graph.RequestTimeout,
	}
}

type Client struct {
	cfg        Config
	httpClient HTTPDoer
}

func New(cfg Config) (*Client, error) {
	cfg.AuthorizeURL = strings.TrimSpace(cfg.AuthorizeURL)
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = core.DefaultAuthorizeURL
	}
	cfg.GraphBaseURL = strings.TrimRight(strings.TrimSpace(cfg.GraphBaseURL), "/")
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = core.DefaultGraphBaseURL
	}
	for name, raw := range map[string]string{"authorize url": cfg.AuthorizeURL, "graph base url": cfg.GraphBaseURL} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, core.NewConfigurationError(fmt.Sprintf("meta: %s must be an absolute url", name))
		}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = core.DefaultRequestTimeout
	}
	if cfg.MaxAccountPages <= 0 {
		cfg.MaxAccountPages = defaultMaxAccountPages
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// graphPayload is implemented by every success payload so responses that match
// neither the success nor the error shape are rejected.
type graphPayload interface {
	recognized() bool
}

type graphErrorEnvelope struct {
	Error *graphError `json:"error"`
}

type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

type graphRequest struct {
	operation string
	method    string
	path      string
	query     url.Values
	// rateScope and rateScopeType identify the rate-limit bucket owner.
	rateScope     string
	rateScopeType string
}

func (c *Client) do(ctx context.Context, req graphRequest, out graphPayload) error {
	if c == nil || c.httpClient == nil {
		return core.NewConfigurationError("meta: client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := core.RateLimitKey{
		ProviderID: core.ProviderMeta,
		ScopeType:  req.rateScopeType,
		ScopeID:    req.rateScope,
		BucketKey:  req.operation,
	}
	if c.cfg.RateLimitPolicy != nil && strings.TrimSpace(req.rateScope) != "" {
		if err := c.cfg.RateLimitPolicy.BeforeCall(ctx, key); err != nil {
			return rateLimitError(err)
		}
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	endpoint := c.cfg.GraphBaseURL + "/" + strings.TrimLeft(req.path, "/")
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	method := req.method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, endpoint, nil)
	if err != nil {
		return core.NewInternalError(err, "meta: build request")
	}
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportError(req.operation, err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return transportError(req.operation, readErr)
	}

	if c.cfg.RateLimitPolicy != nil && strings.TrimSpace(req.rateScope) != "" {
		_ = c.cfg.RateLimitPolicy.AfterCall(ctx, key, core.ProviderResponseMeta{
			StatusCode: response.StatusCode,
			Headers:    flattenHeaders(response.Header),
		})
	}

	if int64(len(body)) > maxResponseBodyBytes {
		return core.NewExternalAPIError(core.ExternalAPIFailure{
			Operation:  req.operation,
			Message:    fmt.Sprintf("response exceeds %d bytes", maxResponseBodyBytes),
			StatusCode: response.StatusCode,
		})
	}
	return decodeGraphResponse(req.operation, response.StatusCode, body, out)
}

func decodeGraphResponse(operation string, status int, body []byte, out graphPayload) error {
	var envelope graphErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.NewExternalAPIError(core.ExternalAPIFailure{
			Operation:  operation,
			Message:    "response is not valid json",
			StatusCode: status,
		})
	}
	if envelope.Error != nil {
		return core.NewExternalAPIError(core.ExternalAPIFailure{
			Operation:  operation,
			Message:    envelope.Error.Message,
			Type:       envelope.Error.Type,
			StatusCode: status,
			Code:       envelope.Error.Code,
			Subcode:    envelope.Error.Subcode,
		})
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.NewExternalAPIError(core.ExternalAPIFailure{
			Operation:  operation,
			StatusCode: status,
		})
	}
	if err := json.Unmarshal(body, out); err != nil || !out.recognized() {
		return core.NewExternalAPIError(core.ExternalAPIFailure{
			Operation:  operation,
			Message:    "unrecognized response shape",
			StatusCode: status,
		})
	}
	return nil
}

func transportError(operation string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("meta: %s request failed", operation)).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorExternalAPI)
}

type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

func rateLimitError(err error) error {
	if converter, ok := err.(serviceErrorConverter); ok {
		return converter.ToServiceError()
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return core.NewRateLimitedError(err.Error())
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(key)] = values[0]
	}
	return out
}

var (
	_ core.TokenExchanger = (*Client)(nil)
	_ core.ContentLister  = (*Client)(nil)
)
