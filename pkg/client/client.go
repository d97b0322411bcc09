// Package client is a Go client for the calendar service HTTP API.
//
// Like the browser client it identifies the user by email, sent as a query
// parameter on GET and as a body field otherwise.
package client

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
)

// DefaultWatchInterval matches the browser client's re-fetch period.
const DefaultWatchInterval = 5 * time.Minute

// ErrUnauthorized is returned when the server answers 401.
var ErrUnauthorized = errors.New("session expired, sign in again")

// APIError is any other non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type Attendee struct {
	Email string `json:"email"`
}

// Event is the subset of the provider event the client reads.
type Event struct {
	ID        string     `json:"id"`
	Summary   string     `json:"summary"`
	HTMLLink  string     `json:"htmlLink,omitempty"`
	Start     EventTime  `json:"start"`
	End       EventTime  `json:"end"`
	Attendees []Attendee `json:"attendees,omitempty"`
}

type EventInput struct {
	Summary       string   `json:"summary"`
	Description   string   `json:"description,omitempty"`
	StartDateTime string   `json:"startDateTime"`
	EndDateTime   string   `json:"endDateTime"`
	Attendees     []string `json:"attendees,omitempty"`
	TimeZone      string   `json:"timeZone,omitempty"`
}

type Client struct {
	baseURL string
	email   string
	http    *http.Client
}

func New(baseURL, email string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		http:    httpClient,
	}
}

// AuthURL returns the provider consent URL to open in a browser.
func (c *Client) AuthURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/google", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) Check(ctx context.Context) (bool, error) {
	var out struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, &out); err != nil {
		return false, err
	}
	return out.Authenticated, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", map[string]any{}, nil)
}

func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	var events []Event
	if err := c.do(ctx, http.MethodGet, "/api/events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	var ev Event
	if err := c.do(ctx, http.MethodPost, "/api/events", in, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id string, in EventInput) (*Event, error) {
	var ev Event
	if err := c.do(ctx, http.MethodPut, "/api/events/"+url.PathEscape(id), in, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/events/"+url.PathEscape(id), map[string]any{}, nil)
}

// Watch calls fn with the event list now and then every interval until ctx
// is done or the session ends. Other fetch errors are passed to fn and the
// watch continues.
func (c *Client) Watch(ctx context.Context, interval time.Duration, fn func([]Event, error)) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		events, err := c.ListEvents(ctx)
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(events, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if method == http.MethodGet {
		q := u.Query()
		q.Set("email", c.email)
		u.RawQuery = q.Encode()
	} else {
		payload, err := withEmail(body, c.email)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// withEmail marshals body and adds the email field to the resulting object.
func withEmail(body any, email string) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	quoted, err := json.Marshal(email)
	if err != nil {
		return nil, err
	}
	fields["email"] = quoted
	return json.Marshal(fields)
}
