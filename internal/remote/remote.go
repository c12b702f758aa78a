// Package remote holds the typed boundary clients for every collaborator
// service: build/flash, catalog, port discovery, project persistence,
// identity userinfo, and the device streaming channel. Loose JSON response
// shapes are converted to typed values here, and failure classes are
// normalized: HTTP 401 becomes ErrUnauthorized, every other collaborator
// failure becomes a *RemoteError carrying human-readable detail.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized reports that a collaborator rejected the current
// credential. It is the only error class that cascades beyond the operation
// that raised it (session sign-out).
var ErrUnauthorized = errors.New("remote: unauthorized")

// RemoteError is a collaborator-reported failure: the call completed but the
// service declined it.
type RemoteError struct {
	Op     string // e.g. "compile", "projects.create"
	Status int    // HTTP status, 0 when the service reported failure in-band
	Detail string // human-readable cause
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote: %s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("remote: %s: %s", e.Op, e.Detail)
}

// TokenFunc supplies the current credential, if any. All authenticated
// outbound calls consult it per request so a sign-out is picked up
// immediately.
type TokenFunc func() (string, bool)

// Client is the shared HTTP plumbing for the REST collaborators.
type Client struct {
	base  string
	http  *http.Client
	token TokenFunc
}

// NewClient builds a Client for the given base URL. token may be nil for
// unauthenticated services.
func NewClient(base string, token TokenFunc) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		http:  &http.Client{Timeout: 2 * time.Minute},
		token: token,
	}
}

// errorEnvelope is the collaborator's failure body shape.
type errorEnvelope struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// doJSON performs one JSON round trip. A non-nil out is decoded from the
// response body on 2xx.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: %s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("remote: %s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok, ok := c.token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{Op: op, Status: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("remote: %s: decode response: %w", op, err)
		}
	}
	return nil
}

// decodeJSON decodes a JSON body into out.
func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readErrorDetail extracts a human-readable cause from a failure body.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 8192))
	if err != nil || len(data) == 0 {
		return "no detail provided"
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Detail != "" {
			return env.Detail
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(data))
}
