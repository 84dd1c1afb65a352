// Package api is the HTTP gateway to the FinSight backend: a thin JSON
// client that attaches bearer credentials, surfaces typed errors and fires
// a global hook on 401 responses.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenSource yields the current bearer token. The second return is false
// when no session is active, in which case requests go out unauthenticated.
type TokenSource interface {
	Token() (string, bool)
}

// Client talks to the FinSight backend. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func()
	log            *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource installs the bearer token provider.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHook installs the function invoked once per request that
// comes back 401, except for login and register calls where a 401 just means
// bad credentials. The composition root points it at the session reset.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithLogger attaches a logger; without it the client stays silent.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a Client targeting the given API base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs a JSON request. A non-nil body is marshalled; a non-nil out
// receives the decoded 2xx response. Non-2xx statuses return *Error, with the
// unauthorized hook fired first for 401s. No retries are attempted.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := c.checkStatus(resp.StatusCode, data, method, path); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Get is shorthand for Do with GET and no request body.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post is shorthand for Do with POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// GetBlob fetches path in binary mode, returning the raw bytes and the
// response Content-Type. Used for report downloads.
func (c *Client) GetBlob(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading response: %w", err)
	}
	if err := c.checkStatus(resp.StatusCode, data, http.MethodGet, path); err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	c.log.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend not reachable (%w)", err)
	}
	return resp, nil
}

// checkStatus converts non-2xx responses into *Error. The 401 hook fires
// exactly once per failing call, before the error is returned — except for
// the credential exchange itself: a 401 from login or register means bad
// credentials, not an expired session, and must not reset anything.
func (c *Client) checkStatus(status int, body []byte, method, path string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	apiErr := newError(status, body)
	if status == http.StatusUnauthorized && c.onUnauthorized != nil && !isCredentialExchange(path) {
		c.log.Info("unauthorized response, resetting session",
			zap.String("method", method),
			zap.String("path", path))
		c.onUnauthorized()
	}
	c.log.Debug("api error",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("detail", apiErr.Detail))
	return apiErr
}

func isCredentialExchange(path string) bool {
	return path == "/auth/login" || path == "/auth/register"
}

// --- endpoint wrappers ---

// Login exchanges credentials for a token and profile.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.Post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &out)
	return out, err
}

// Register creates an account; the response shape matches Login.
func (c *Client) Register(ctx context.Context, email, password, fullName string) (AuthResponse, error) {
	var out AuthResponse
	err := c.Post(ctx, "/auth/register", registerRequest{Email: email, Password: password, FullName: fullName}, &out)
	return out, err
}

// Me returns the profile behind the current token.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	err := c.Get(ctx, "/auth/me", &out)
	return out, err
}

// SendMessage posts a chat message. A zero conversation id asks the server
// to open a new conversation.
func (c *Client) SendMessage(ctx context.Context, message string, conversationID int) (ChatResponse, error) {
	var out ChatResponse
	err := c.Post(ctx, "/chat/message", ChatRequest{Message: message, ConversationID: conversationID}, &out)
	return out, err
}

// Conversations lists all conversations, most recently updated first.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	err := c.Get(ctx, "/chat/conversations", &out)
	return out, err
}

// Conversation fetches one conversation with its message history.
func (c *Client) Conversation(ctx context.Context, id int) (ConversationDetail, error) {
	var out ConversationDetail
	err := c.Get(ctx, fmt.Sprintf("/chat/conversations/%d", id), &out)
	return out, err
}

// CreateConversation creates an empty conversation with an optional title.
func (c *Client) CreateConversation(ctx context.Context, title string) (Conversation, error) {
	var out Conversation
	err := c.Post(ctx, "/chat/conversations", createConversationRequest{Title: title}, &out)
	return out, err
}

// GenerateReport queues report generation; the returned report is still
// pending or processing.
func (c *Client) GenerateReport(ctx context.Context, req ReportRequest) (Report, error) {
	var out Report
	err := c.Post(ctx, "/reports/generate", req, &out)
	return out, err
}

// Reports fetches one page of the report list.
func (c *Client) Reports(ctx context.Context, skip, limit int) (ReportList, error) {
	var out ReportList
	err := c.Get(ctx, fmt.Sprintf("/reports/list?skip=%d&limit=%d", skip, limit), &out)
	return out, err
}

// Report fetches a single report's detail.
func (c *Client) Report(ctx context.Context, id int) (Report, error) {
	var out Report
	err := c.Get(ctx, fmt.Sprintf("/reports/%d", id), &out)
	return out, err
}

// DownloadReport fetches the report file in binary mode.
func (c *Client) DownloadReport(ctx context.Context, id int) ([]byte, string, error) {
	return c.GetBlob(ctx, fmt.Sprintf("/reports/%d/download", id))
}
