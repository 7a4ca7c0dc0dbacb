// Package telegram sends messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/builder-radar/internal/fault"
)

const (
	defaultBaseURL = "https://api.telegram.org"

	// ProviderName labels delivery errors raised by this client.
	ProviderName = "telegram"

	// ParseModeHTML renders <b>, <i>, and <a href> tags.
	ParseModeHTML = "HTML"
)

// Client sends chat messages.
type Client interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error)
}

// SendMessageRequest is the request body for POST /bot<token>/sendMessage.
type SendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// Message is the subset of the sent message returned by the API.
type Message struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
}

type apiResponse struct {
	OK          bool     `json:"ok"`
	Result      *Message `json:"result,omitempty"`
	ErrorCode   int      `json:"error_code,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendMessage posts a message. A non-200 status or a response with ok=false
// returns a *fault.ProviderError.
func (c *httpClient) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "telegram: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "telegram: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// The request URL embeds the bot token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, eris.Wrap(err, "telegram: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "telegram: read response")
	}

	var result apiResponse
	if jsonErr := json.Unmarshal(respBody, &result); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return nil, eris.Wrap(jsonErr, "telegram: unmarshal response")
	}

	if resp.StatusCode != http.StatusOK || !result.OK {
		status := resp.StatusCode
		if result.ErrorCode != 0 {
			status = result.ErrorCode
		}
		detail := result.Description
		if detail == "" {
			detail = string(respBody)
		}
		return nil, &fault.ProviderError{Provider: ProviderName, StatusCode: status, Body: detail}
	}

	return result.Result, nil
}
