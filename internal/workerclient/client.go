package workerclient

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

	"github.com/sony/gobreaker"

	"github.com/orrn/printdispatch/internal/api/handlers"
	"github.com/orrn/printdispatch/internal/core"
)

var (
	ErrUnauthorized = errors.New("worker token rejected by server")
	ErrRejected     = errors.New("request rejected by server")
	ErrNotFound     = errors.New("print job not found")
	ErrServer       = errors.New("server error")
)

const requestTimeout = 15 * time.Second

// APIClient talks to the print job endpoints with one restaurant's token.
// Calls go through a circuit breaker so an unreachable server is not hammered
// on every poll.
type APIClient struct {
	base    *url.URL
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewAPIClient(serverURL, token string) (*APIClient, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "print-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// the server answered; only transport and 5xx failures trip
			return err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRejected) || errors.Is(err, ErrNotFound)
		},
	})

	return &APIClient{
		base:    base,
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
		breaker: breaker,
	}, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	return err
}

func (c *APIClient) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var e handlers.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
	msg := e.Message
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	default:
		return fmt.Errorf("%w: %d %s", ErrServer, resp.StatusCode, msg)
	}
}

func jobPath(id, action string) string {
	return "/print-jobs/" + url.PathEscape(id) + "/" + action
}

func (c *APIClient) Pending(ctx context.Context) ([]handlers.PendingJob, error) {
	var resp handlers.PendingResponse
	if err := c.do(ctx, http.MethodGet, "/print-jobs/pending", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *APIClient) StartPrinting(ctx context.Context, id, clientID string) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "start_printing"), handlers.StartPrintingRequest{ClientID: clientID}, nil)
}

func (c *APIClient) MarkCompleted(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "mark_completed"), nil, nil)
}

func (c *APIClient) MarkFailed(ctx context.Context, id, message string) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "mark_failed"), handlers.MarkFailedRequest{Error: message}, nil)
}

func (c *APIClient) Retry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "retry"), nil, nil)
}

func (c *APIClient) Stats(ctx context.Context) (*core.Stats, error) {
	var stats core.Stats
	if err := c.do(ctx, http.MethodGet, "/print-jobs/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
