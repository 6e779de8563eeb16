// Package upstream holds the request plumbing shared by the provider clients.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
)

const maxErrBody = 8 << 10

// StatusError is a non-2xx reply. It unwraps to model.ErrUpstream.
type StatusError struct {
	Upstream string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Upstream, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return model.ErrUpstream }

// ParseBase validates a configured endpoint.
func ParseBase(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, model.ErrNotConfigured
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q needs scheme and host: %w", raw, model.ErrNotConfigured)
	}
	return u, nil
}

// GetJSON issues a GET against base+path with params and decodes the reply
// into out. Transport failures and bad statuses wrap model.ErrUpstream.
func GetJSON(ctx context.Context, client *http.Client, name string, base *url.URL, path string,
	params url.Values, header http.Header, out any,
) error {
	u := *base
	if path != "" {
		u = *base.JoinPath(path)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency(name, err, time.Since(start).Seconds())
		return fmt.Errorf("%s: %w: %w", name, model.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		serr := &StatusError{Upstream: name, Code: resp.StatusCode, Body: string(b)}
		observability.ObserveUpstreamLatency(name, serr, time.Since(start).Seconds())
		return serr
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	observability.ObserveUpstreamLatency(name, err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s: decode body: %w: %w", name, model.ErrUpstream, err)
	}
	return nil
}
