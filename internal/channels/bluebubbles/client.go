package bluebubbles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHTTPTimeout = 10 * time.Second

	// private-api delivery; the apple-script fallback is not supported here.
	sendMethodPrivateAPI = "private-api"
)

// DeliveryError reports a failed call to the BlueBubbles API.
type DeliveryError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bluebubbles: %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("bluebubbles: %s failed: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Client sends messages and typing indicators via the BlueBubbles server API.
// Each call is a single best-effort attempt bounded by the HTTP timeout.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client

	// newTempGUID generates the per-send duplicate-protection id.
	newTempGUID func() string
}

// NewClient creates a new BlueBubbles API client.
func NewClient(baseURL, password string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		password:    password,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		newTempGUID: func() string { return uuid.NewString() },
	}
}

// SetBaseURL overrides the server base URL (useful for testing).
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// SendText delivers a text message to the given chat.
func (c *Client) SendText(ctx context.Context, chatGUID, text string) error {
	req := TextRequest{
		ChatGUID: chatGUID,
		TempGUID: c.newTempGUID(),
		Message:  text,
		Method:   sendMethodPrivateAPI,
	}
	return c.do(ctx, "send text", http.MethodPost, "/message/text", req)
}

// SetTyping toggles the typing indicator on the given chat.
func (c *Client) SetTyping(ctx context.Context, chatGUID string, typing bool) error {
	method := http.MethodPost
	op := "set typing"
	if !typing {
		method = http.MethodDelete
		op = "clear typing"
	}
	return c.do(ctx, op, method, "/chat/"+url.PathEscape(chatGUID)+"/typing", nil)
}

// MarkChatRead marks the given chat as read.
func (c *Client) MarkChatRead(ctx context.Context, chatGUID string) error {
	return c.do(ctx, "mark read", http.MethodPost, "/chat/"+url.PathEscape(chatGUID)+"/read", nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return &DeliveryError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(encoded)
	}

	endpoint := c.baseURL + path + "?password=" + url.QueryEscape(c.password)
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &DeliveryError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &DeliveryError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		detail := strings.TrimSpace(string(respBody))

		var apiResp APIResponse
		if json.Unmarshal(respBody, &apiResp) == nil && apiResp.Message != "" {
			detail = apiResp.Message
		}
		return &DeliveryError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", detail),
		}
	}
	return nil
}
