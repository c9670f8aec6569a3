// Package dinopark forwards requests to the internal DinoPark orgchart and
// search services and hands their JSON back untouched.
package dinopark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mozillians/internal/access"
)

// maxBody bounds how much of an upstream response is buffered.
const maxBody = 16 << 20

var ErrInvalidJSON = errors.New("upstream returned invalid json")

// StatusError is returned when an upstream answers with a 4xx or 5xx.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: http %d", e.URL, e.Status)
}

// Client talks plain HTTP to the two services. Hosts are "host:port".
type Client struct {
	orgchartHost string
	searchHost   string
	http         *http.Client
}

func NewClient(orgchartHost, searchHost string, timeout time.Duration) *Client {
	return &Client{
		orgchartHost: orgchartHost,
		searchHost:   searchHost,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Orgchart returns the full organization chart.
func (c *Client) Orgchart(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, c.orgchartHost, "orgchart")
}

// OrgchartRelated returns manager, peers and directs of userID.
func (c *Client) OrgchartRelated(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.get(ctx, c.orgchartHost, "orgchart", "related", userID)
}

// SearchSimple runs a free text search filtered by scope.
func (c *Client) SearchSimple(ctx context.Context, scope access.Level, query string) (json.RawMessage, error) {
	return c.get(ctx, c.searchHost, "search", "simple", scope.String(), query)
}

// SearchProfile fetches one profile filtered by scope.
func (c *Client) SearchProfile(ctx context.Context, scope access.Level, userID string) (json.RawMessage, error) {
	return c.get(ctx, c.searchHost, "search", "get", scope.String(), userID)
}

// BuildURL joins segments under http://host/. Each segment is escaped, so a
// "/" or a dot segment inside a query or user id cannot change the upstream route.
func BuildURL(host string, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		switch s {
		case ".":
			escaped[i] = "%2E"
		case "..":
			escaped[i] = "%2E%2E"
		default:
			escaped[i] = url.PathEscape(s)
		}
	}
	u := url.URL{
		Scheme:  "http",
		Host:    host,
		Path:    "/" + strings.Join(segments, "/"),
		RawPath: "/" + strings.Join(escaped, "/"),
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, host string, segments ...string) (json.RawMessage, error) {
	target := BuildURL(host, segments...)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, &StatusError{Status: resp.StatusCode, URL: target}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("upstream %s: read body: %w", target, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("upstream %s: %w", target, ErrInvalidJSON)
	}
	return raw, nil
}
