package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/totegamma/portfolio"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "portfolio-client"
)

// Client talks to the case study REST API. Errors returned by the server are
// decoded back into the domain error kinds.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
}

type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c.client
	wrapped.Transport = &transport{base: base, token: c.token}
	c.client = &wrapped
	return c
}

type transport struct {
	base  http.RoundTripper
	token string
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}

func (c *Client) HttpRequest(ctx context.Context, method, path string, body, response any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return portfolio.StorageError{Op: "request", Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if response == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// decodeError maps an error response onto the domain error of the same kind.
func decodeError(resp *http.Response) error {
	var body portfolio.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Kind == "" {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	e := body.Error
	switch e.Kind {
	case portfolio.KindValidation:
		return portfolio.ValidationError{Field: e.Field, Message: e.Message}
	case portfolio.KindConflict:
		return portfolio.ConflictError{}
	case portfolio.KindNotFound:
		return portfolio.NotFoundError{Resource: strings.TrimSuffix(e.Message, " not found")}
	case portfolio.KindAuthorization:
		return portfolio.AuthorizationError{}
	case portfolio.KindUnconfirmedWrite:
		return portfolio.UnconfirmedWriteError{}
	case portfolio.KindStorage:
		return portfolio.StorageError{Op: "request", Retryable: e.Retryable, Cause: fmt.Errorf("%s", e.Message)}
	}
	return fmt.Errorf("unexpected error kind %q: %s", e.Kind, e.Message)
}

func casestudyPath(id string) string {
	return "/api/v1/casestudies/" + url.PathEscape(id)
}

func (c *Client) Create(ctx context.Context, req portfolio.CreateRequest) (portfolio.WriteResponse, error) {
	var out portfolio.WriteResponse
	err := c.HttpRequest(ctx, http.MethodPost, "/api/v1/casestudies", req, &out)
	return out, err
}

// Update sends req. A non-nil ExpectedUpdatedAt makes the write conditional.
func (c *Client) Update(ctx context.Context, id string, req portfolio.UpdateRequest) (portfolio.WriteResponse, error) {
	var out portfolio.WriteResponse
	err := c.HttpRequest(ctx, http.MethodPut, casestudyPath(id), req, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (portfolio.CaseStudy, error) {
	var out portfolio.CaseStudy
	err := c.HttpRequest(ctx, http.MethodGet, casestudyPath(id), nil, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.HttpRequest(ctx, http.MethodDelete, casestudyPath(id)+"?confirm=true", nil, nil)
}

func (c *Client) List(ctx context.Context, filter portfolio.ListFilter) ([]portfolio.CaseStudy, error) {
	q := url.Values{}
	if filter.Status != nil {
		q.Set("status", string(*filter.Status))
	}
	if filter.Featured != nil {
		q.Set("featured", strconv.FormatBool(*filter.Featured))
	}
	if filter.Tag != "" {
		q.Set("tag", filter.Tag)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/api/v1/casestudies"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []portfolio.CaseStudy
	err := c.HttpRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Versions(ctx context.Context, id string) ([]portfolio.VersionSnapshot, error) {
	var out []portfolio.VersionSnapshot
	err := c.HttpRequest(ctx, http.MethodGet, casestudyPath(id)+"/versions", nil, &out)
	return out, err
}

func (c *Client) Version(ctx context.Context, id string, number int) (portfolio.VersionSnapshot, error) {
	var out portfolio.VersionSnapshot
	err := c.HttpRequest(ctx, http.MethodGet, casestudyPath(id)+"/versions/"+strconv.Itoa(number), nil, &out)
	return out, err
}

func (c *Client) Restore(ctx context.Context, id string, number int, expectedUpdatedAt *time.Time) (portfolio.WriteResponse, error) {
	var out portfolio.WriteResponse
	path := casestudyPath(id) + "/versions/" + strconv.Itoa(number) + "/restore"
	err := c.HttpRequest(ctx, http.MethodPost, path, portfolio.RestoreRequest{ExpectedUpdatedAt: expectedUpdatedAt}, &out)
	return out, err
}

func (c *Client) RecordView(ctx context.Context, id string) error {
	return c.HttpRequest(ctx, http.MethodPost, casestudyPath(id)+"/views", nil, nil)
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]portfolio.SearchHit, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out []portfolio.SearchHit
	err := c.HttpRequest(ctx, http.MethodGet, "/api/v1/search?"+q.Encode(), nil, &out)
	return out, err
}
