package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/ridewell/alertcast-backend/pkg/errors"
)

const (
	defaultBaseURL            = "https://push.ridewell.dev/v1"
	multicastPath             = "/messages:multicast"
	errorBodyReadLimit  int64 = 4096
	defaultHTTPTimeout        = 10 * time.Second
)

var errServerKeyRequired = errors.New("push server key is required")

// Client talks to the multicast push gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	serverKey  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured gateway base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimSuffix(trimmed, "/")
		}
	}
}

// NewClient builds the push gateway client given a server key.
func NewClient(serverKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(serverKey)
	if trimmedKey == "" {
		return nil, errServerKeyRequired
	}

	client := &Client{
		serverKey:  trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// MulticastRequest carries one batch of device tokens plus the payload.
type MulticastRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`

	// Provider delivery hints. The gateway treats these as optional.
	Priority      string `json:"priority,omitempty"`
	Sound         string `json:"sound,omitempty"`
	BadgeIncrement bool  `json:"badgeIncrement,omitempty"`
}

// SendResult is the outcome for a single token, in request order.
type SendResult struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// MulticastResponse aggregates the per-token outcomes of one batch call.
type MulticastResponse struct {
	Results []SendResult `json:"results"`
}

// SendMulticast delivers one notification to many tokens in a single call.
// The response carries exactly one result per input token, in input order.
func (c *Client) SendMulticast(ctx context.Context, req MulticastRequest) (*MulticastResponse, error) {
	if len(req.Tokens) == 0 {
		return &MulticastResponse{}, nil
	}

	if req.Priority == "" {
		req.Priority = "high"
	}
	if req.Sound == "" {
		req.Sound = "default"
	}
	req.BadgeIncrement = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding multicast request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+multicastPath, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building multicast request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.serverKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "push gateway unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.Wrap(
			pkgerrors.CodeDependency,
			fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			"multicast send failed",
		)
	}

	var decoded MulticastResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding multicast response")
	}
	if len(decoded.Results) != len(req.Tokens) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf(
			"multicast response carried %d results for %d tokens", len(decoded.Results), len(req.Tokens)))
	}
	return &decoded, nil
}
