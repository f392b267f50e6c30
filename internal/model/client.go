// ABOUTME: HTTP client for an OpenAI-compatible chat completions backend
// ABOUTME: Supports blocking completion and SSE streaming with tool-call deltas

package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings for a model backend client
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a model backend client from config
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "model"),
	}
}

// Configured reports whether the client has credentials to reach a backend
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// Complete sends the message list and returns the full assistant response.
// Tool choice is left to the model.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*ChatMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
	}
	if len(tools) > 0 {
		reqBody.ToolChoice = "auto"
	}

	resp, err := c.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Reason: fmt.Sprintf("reading response: %v", err), RetryAfter: DefaultRetryAfter}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &UnavailableError{Reason: fmt.Sprintf("parsing response: %v", err), RetryAfter: DefaultRetryAfter}
	}
	if parsed.Error != nil {
		return nil, &UnavailableError{Reason: parsed.Error.Message, RetryAfter: DefaultRetryAfter}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return nil, &UnavailableError{Reason: "no completion returned", RetryAfter: DefaultRetryAfter}
	}

	return parsed.Choices[0].Message, nil
}

// Stream sends the message list with streaming enabled and returns a channel
// of incremental deltas plus an error channel. Both channels are closed when
// the stream ends; at most one error is delivered.
func (c *Client) Stream(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (<-chan Delta, <-chan error) {
	deltaChan := make(chan Delta, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(deltaChan)
		defer close(errChan)

		if !c.Configured() {
			errChan <- ErrNotConfigured
			return
		}

		startTime := time.Now()

		reqBody := chatRequest{
			Model:    c.model,
			Messages: messages,
			Tools:    tools,
			Stream:   true,
		}
		if len(tools) > 0 {
			reqBody.ToolChoice = "auto"
		}

		resp, err := c.post(ctx, reqBody)
		if err != nil {
			errChan <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errChan <- statusError(resp, body)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				c.logger.Debug("stream complete", "elapsed", time.Since(startTime))
				return
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				errChan <- &UnavailableError{Reason: chunk.Error.Message, RetryAfter: DefaultRetryAfter}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			delta := toDelta(chunk.Choices[0])
			if delta.Content == "" && len(delta.ToolCalls) == 0 && delta.FinishReason == "" {
				continue
			}

			select {
			case deltaChan <- delta:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				errChan <- ctx.Err()
				return
			}
			errChan <- &UnavailableError{Reason: fmt.Sprintf("stream read: %v", err), RetryAfter: DefaultRetryAfter}
		}
	}()

	return deltaChan, errChan
}

// post sends a chat completion request, mapping transport failures to UnavailableError
func (c *Client) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UnavailableError{Reason: err.Error(), RetryAfter: DefaultRetryAfter}
	}
	return resp, nil
}

// statusError maps a non-200 response to the appropriate error type
func statusError(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		retryAfter := DefaultRateLimitRetryAfter
		if header := resp.Header.Get("Retry-After"); header != "" {
			if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	default:
		reason := strings.TrimSpace(string(body))
		if len(reason) > 200 {
			reason = reason[:200]
		}
		return &UnavailableError{
			Reason:     fmt.Sprintf("status %d: %s", resp.StatusCode, reason),
			RetryAfter: DefaultRetryAfter,
		}
	}
}

// toDelta converts a wire choice into a Delta
func toDelta(ch choice) Delta {
	d := Delta{FinishReason: ch.FinishReason}
	if ch.Delta == nil {
		return d
	}
	d.Content = ch.Delta.Content
	for _, tc := range ch.Delta.ToolCalls {
		d.ToolCalls = append(d.ToolCalls, ToolCallDelta{
			Index:     tc.Index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return d
}
