package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/version"
)

const (
	maxResponseBody = 10 << 20
	maxErrorBody    = 1 << 20
)

// Client talks to one tool server endpoint. Headers are supplied per call so
// credentials can be re-read for every request.
type Client struct {
	name       string
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Int64
	log        *logging.Logger
}

// NewClient creates a client for the tool server at endpoint.
func NewClient(name, endpoint string, httpClient *http.Client, log *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		name:       name,
		endpoint:   endpoint,
		httpClient: httpClient,
		log:        log.Sub("mcp").With("server", name),
	}
}

// Name returns the server name this client was created with.
func (c *Client) Name() string { return c.name }

// Endpoint returns the server URL.
func (c *Client) Endpoint() string { return c.endpoint }

// ListTools calls tools/list and returns the advertised tool descriptors.
func (c *Client) ListTools(ctx context.Context, header http.Header) ([]domain.ToolDescriptor, error) {
	body, err := c.post(ctx, MethodToolsList, map[string]any{}, header)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var resp struct {
		Result *toolsListResult `json:"result"`
		Error  *RPCError        `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.Result == nil {
		return nil, nil
	}

	tools := make([]domain.ToolDescriptor, 0, len(resp.Result.Tools))
	for _, t := range resp.Result.Tools {
		schema := t.InputSchema
		if len(schema) == 0 || string(schema) == "null" {
			schema = t.InputSchemaSnake
		}
		tools = append(tools, domain.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	c.log.Debug().Int("count", len(tools)).Msg("listed tools")
	return tools, nil
}

// CallTool invokes a tool and returns the unwrapped result. A response
// without a result member is returned as-is.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage, header http.Header) (json.RawMessage, error) {
	body, err := c.post(ctx, MethodToolsCall, CallParams{Name: name, Arguments: args}, header)
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal tools/call response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, resp.Error)
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return json.RawMessage(bytes.TrimSpace(body)), nil
	}
	return resp.Result, nil
}

// post sends one JSON-RPC request and returns the raw response body.
func (c *Client) post(ctx context.Context, method string, params any, header http.Header) ([]byte, error) {
	payload, err := json.Marshal(NewRequest(c.nextID.Add(1), method, params))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug().Int("status", resp.StatusCode).Str("method", method).Msg("tool server error response")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
