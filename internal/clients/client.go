// internal/clients/client.go

// Package clients talks to a running libradesk server over its JSON API. The
// typed clients implement the manager interfaces, so remote and in-process
// callers are interchangeable.
package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"libradesk/internal/audit"
	"libradesk/internal/errs"
	"libradesk/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot fetches the server's current store snapshot.
func (c *Client) Snapshot(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/snapshot", nil, &snap)
	return snap, err
}

// Audit asks the server to run its consistency checks.
func (c *Client) Audit(ctx context.Context) (*audit.Report, error) {
	var report audit.Report
	if err := c.do(ctx, http.MethodGet, "/api/v1/audit", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// do sends body as JSON and decodes a 2xx response into out. Error responses
// are turned back into classified errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Backend(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	kind := errs.ParseKind(body.Kind)
	if kind == errs.KindUnknown {
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, body.Error)
	}
	return &errs.Error{Kind: kind, Message: body.Error}
}
