// Package dirclient is the HTTP client for the directory service that owns message
// routing groups. Every call is bounded by a per-call timeout and a small retry budget.
package dirclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/lifecycle"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 3
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Retries is the total number of attempts for transient failures.
	Retries   uint
	RetryBase time.Duration
}

func New(baseURL, bearer string, timeout time.Duration, retries uint) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if retries == 0 {
		retries = defaultRetries
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Bearer:     bearer,
		Timeout:    timeout,
		Retries:    retries,
		RetryBase:  200 * time.Millisecond,
	}
}

// StatusError is a non-2xx response from the directory.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory %s %s: http %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (c *Client) CreateGroup(ctx context.Context, id, displayName string) error {
	body, err := json.Marshal(map[string]string{"id": id, "display_name": displayName})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/groups", body)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict {
		// Group ids are contract and community ids, so an existing group is
		// ours: usually a retry after the first attempt landed.
		return nil
	}
	return err
}

func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/groups/"+url.PathEscape(id), nil)
	return ignoreNotFound(err)
}

func (c *Client) AddPrincipal(ctx context.Context, principalID, groupID string) error {
	_, err := c.do(ctx, http.MethodPut, memberPath(groupID, principalID), nil)
	return err
}

func (c *Client) RemovePrincipal(ctx context.Context, principalID, groupID string) error {
	_, err := c.do(ctx, http.MethodDelete, memberPath(groupID, principalID), nil)
	return ignoreNotFound(err)
}

func (c *Client) GetGroup(ctx context.Context, id string) (lifecycle.Group, error) {
	raw, err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(id), nil)
	if err != nil {
		if isNotFound(err) {
			return lifecycle.Group{}, fmt.Errorf("group %s: %w", id, domain.ErrNotFound)
		}
		return lifecycle.Group{}, err
	}
	var g lifecycle.Group
	if err := json.Unmarshal(raw, &g); err != nil {
		return lifecycle.Group{}, fmt.Errorf("decode group %s: %w", id, err)
	}
	if g.Members == nil {
		g.Members = []string{}
	}
	return g, nil
}

func memberPath(groupID, principalID string) string {
	return "/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(principalID)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryBase
	b.MaxInterval = 2 * time.Second
	return backoff.Retry(ctx, func() ([]byte, error) {
		out, err := c.attempt(ctx, method, path, body)
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.Retries))
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Removal of something already gone is a success.
func ignoreNotFound(err error) error {
	if isNotFound(err) {
		return nil
	}
	return err
}
