package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapceipt/snapceipt/internal/credential"
)

// ErrUnauthorized is returned when a request still fails authorization
// after a successful credential refresh and retry. Callers should treat
// it as a sign-in problem, not retry further.
var ErrUnauthorized = errors.New("request unauthorized after credential refresh")

// Request is an outbound backend call
type Request struct {
	Method string
	Path   string
	Body   any
}

// Response carries the backend status and raw body. Non-2xx statuses
// other than the recovered 401 are surfaced here unmodified; retry
// policy for them belongs to the caller.
type Response struct {
	StatusCode int
	Body       []byte
}

type refreshResult struct {
	token string
	err   error
}

// Gateway wraps outbound backend calls. It injects the stored bearer
// credential and recovers expired-credential failures through a
// single-flight refresh: at most one refresh call is in flight at any
// time, and every request that observes a 401 while one is running
// waits for it instead of starting its own.
type Gateway struct {
	baseURL        string
	httpClient     *http.Client
	creds          credential.Store
	refreshTimeout time.Duration

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult // FIFO, resolved in registration order
}

// New creates a Gateway for the backend at baseURL
func New(baseURL string, creds credential.Store) *Gateway {
	return &Gateway{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		creds:          creds,
		refreshTimeout: 15 * time.Second,
	}
}

// Send performs an authenticated backend call. On a 401 it refreshes
// the credential (joining an in-flight refresh if one exists) and
// retries the original request exactly once with the new credential. A
// second 401 is terminal and returned as ErrUnauthorized.
func (g *Gateway) Send(ctx context.Context, req Request) (*Response, error) {
	token, err := g.creds.Get(ctx)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return nil, fmt.Errorf("reading credential: %w", err)
	}

	resp, err := g.do(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	newToken, err := g.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing credential: %w", err)
	}

	// Always retry with the credential the refresh settled on, never
	// with a re-read that could race a later refresh.
	resp, err = g.do(ctx, req, newToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	return resp, nil
}

// Login authenticates with email and password and stores the returned
// bearer credential.
func (g *Gateway) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	resp, err := g.do(ctx, Request{Method: http.MethodPost, Path: "/api/auth/login", Body: body}, "")
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected (status %d): %s", resp.StatusCode, APIMessage(resp.Body))
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if payload.Token == "" {
		return fmt.Errorf("login response missing token")
	}

	if err := g.creds.Set(ctx, payload.Token); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// Logout removes the stored credential
func (g *Gateway) Logout(ctx context.Context) error {
	if err := g.creds.Remove(ctx); err != nil {
		return fmt.Errorf("removing credential: %w", err)
	}
	return nil
}

// refresh obtains a fresh credential. The first caller becomes the
// leader and performs the network call; callers that arrive while it
// runs register as followers and are resolved with the leader's
// outcome in registration order.
func (g *Gateway) refresh(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.refreshing {
		ch := make(chan refreshResult, 1)
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			// Stop waiting; the leader's refresh keeps running.
			return "", ctx.Err()
		}
	}
	g.refreshing = true
	g.mu.Unlock()

	token, err := g.doRefresh(ctx)
	g.settle(token, err)
	return token, err
}

// settle publishes the leader's outcome to all queued followers, FIFO
func (g *Gateway) settle(token string, err error) {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.refreshing = false
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
}

// doRefresh calls the refresh endpoint with the currently stored
// credential and persists the replacement. It runs detached from the
// triggering caller's context so an abandoned request cannot abort a
// refresh other requests are waiting on.
func (g *Gateway) doRefresh(ctx context.Context) (string, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
	defer cancel()

	current, err := g.creds.Get(rctx)
	if err != nil {
		return "", fmt.Errorf("reading credential for refresh: %w", err)
	}

	slog.Info("Refreshing expired credential")
	resp, err := g.do(rctx, Request{Method: http.MethodPost, Path: "/api/auth/refresh"}, current)
	if err != nil {
		return "", err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The stored credential is dead. Drop it so subsequent calls
		// fail fast; signing the user out again is the caller's call.
		if rerr := g.creds.Remove(rctx); rerr != nil {
			slog.Warn("Failed to remove rejected credential", "error", rerr)
		}
		return "", fmt.Errorf("refresh rejected (status %d): %s", resp.StatusCode, APIMessage(resp.Body))
	default:
		return "", fmt.Errorf("refresh failed (status %d): %s", resp.StatusCode, APIMessage(resp.Body))
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("refresh response missing token")
	}

	if err := g.creds.Set(rctx, payload.Token); err != nil {
		return "", fmt.Errorf("storing refreshed credential: %w", err)
	}
	return payload.Token, nil
}

// do performs one HTTP round trip with the given bearer credential
func (g *Gateway) do(ctx context.Context, req Request, token string) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, g.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling backend: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{StatusCode: httpResp.StatusCode, Body: data}, nil
}

// APIMessage extracts the human-readable message from a backend error
// payload, which uses either an "error" or a "message" key.
func APIMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}
