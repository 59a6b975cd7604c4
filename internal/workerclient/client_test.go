package workerclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/orrn/printdispatch/internal/api/handlers"
	"github.com/orrn/printdispatch/internal/core"
)

func newClient(t *testing.T, h http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewAPIClient(srv.URL+"/", "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(handlers.ErrorResponse{Error: code, Message: code + " happened"})
}

func TestClientPendingDecodesContent(t *testing.T) {
	content := []byte{0x1b, 0x40, 0xfa, 0x00}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/print-jobs/pending" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(handlers.PendingResponse{
			Count: 1,
			Jobs:  []handlers.PendingJob{{ID: "j1", Content: content, ContentEncoding: "base64"}},
		})
	})

	jobs, err := c.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || string(jobs[0].Content) != string(content) {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestClientSendsBodies(t *testing.T) {
	var got map[string]string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/print-jobs/j1/mark_failed" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(handlers.TransitionResponse{ID: "j1", Status: core.StatusFailed})
	})

	if err := c.MarkFailed(context.Background(), "j1", "paper out"); err != nil {
		t.Fatal(err)
	}
	if got["error"] != "paper out" {
		t.Errorf("body = %v", got)
	}
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusBadRequest, ErrRejected},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusInternalServerError, ErrServer},
	}
	for _, tt := range tests {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, tt.status, "x")
		})
		err := c.StartPrinting(context.Background(), "j1", "w1")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestClientBreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeError(w, http.StatusBadGateway, "bad_gateway")
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Pending(ctx); !errors.Is(err, ErrServer) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := c.Pending(ctx); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if calls != 3 {
		t.Errorf("server saw %d calls, want 3", calls)
	}
}

func TestClientBreakerIgnoresRejections(t *testing.T) {
	calls := 0
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeError(w, http.StatusBadRequest, "invalid_transition")
	})

	for i := 0; i < 5; i++ {
		if err := c.Retry(context.Background(), "j1"); !errors.Is(err, ErrRejected) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if calls != 5 {
		t.Errorf("calls = %d", calls)
	}
}
