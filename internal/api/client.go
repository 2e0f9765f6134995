// Package api is the thin client for the persistence HTTP API. The core
// treats every non-2xx status and every transport error uniformly as
// failure; callers translate that into optimistic-state rollback or a
// failed flag, never into a crash.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
)

// Persistence is the boundary the sync engine calls for durable effects.
type Persistence interface {
	// CreateMessage posts a composed message and returns the authoritative
	// record, including the server-assigned id and created_at.
	CreateMessage(ctx context.Context, threadID string, req CreateMessageRequest) (*models.Message, error)

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, messageID string) error

	// MarkSeen acknowledges a message for the viewer. An empty messageID
	// acknowledges the thread's latest message.
	MarkSeen(ctx context.Context, threadID, messageID string) error

	// ListMessages fetches the thread snapshot, ordered created_at ascending.
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
}

// CreateMessageRequest is the body of POST /threads/{id}/messages. LocalID
// rides along so the server can echo it back on the push event, letting any
// client correlate the broadcast with its own placeholder.
type CreateMessageRequest struct {
	Body      string           `json:"body,omitempty"`
	MediaURL  string           `json:"media_url,omitempty"`
	MediaType models.MediaType `json:"media_type,omitempty"`
	LocalID   string           `json:"local_id"`
}

type seenRequest struct {
	MessageID string `json:"message_id,omitempty"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: unexpected status %d: %s", e.Code, e.Body)
}

const defaultRequestTimeout = 10 * time.Second

// Client talks to the persistence API over fasthttp.
type Client struct {
	base    string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
}

// NewClient constructs a client for the given base URL. token is the
// viewer's session bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		base:    baseURL,
		token:   token,
		timeout: defaultRequestTimeout,
		http: &fasthttp.Client{
			ReadTimeout:  defaultRequestTimeout,
			WriteTimeout: defaultRequestTimeout,
		},
	}
}

func (c *Client) CreateMessage(ctx context.Context, threadID string, req CreateMessageRequest) (*models.Message, error) {
	var out models.Message
	url := fmt.Sprintf("%s/threads/%s/messages", c.base, threadID)
	if err := c.do(ctx, fasthttp.MethodPost, url, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	url := fmt.Sprintf("%s/messages/%s", c.base, messageID)
	return c.do(ctx, fasthttp.MethodDelete, url, nil, nil)
}

func (c *Client) MarkSeen(ctx context.Context, threadID, messageID string) error {
	url := fmt.Sprintf("%s/threads/%s/seen", c.base, threadID)
	return c.do(ctx, fasthttp.MethodPost, url, seenRequest{MessageID: messageID}, nil)
}

func (c *Client) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var out []models.Message
	url := fmt.Sprintf("%s/threads/%s/messages", c.base, threadID)
	if err := c.do(ctx, fasthttp.MethodGet, url, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("api: %s %s: %w", method, url, err)
	}

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		return &StatusError{Code: code, Body: string(resp.Body())}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}
	return nil
}
