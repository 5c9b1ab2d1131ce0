// Package rest performs envelope-style JSON requests against the chat
// service.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"boxim-bot/internal/logging"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxResponseBytes = 1 << 20

	// HeaderAccessToken carries the session token on authenticated calls.
	HeaderAccessToken = "accessToken"
)

type Client struct {
	http      *http.Client
	baseURL   string
	origin    string
	userAgent string
	logger    *logging.Logger
}

// Envelope is the shape of every response body.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func New(httpClient *http.Client, baseURL, origin string, logger *logging.Logger) *Client {
	if httpClient == nil {
		panic("rest.New: http client must not be nil")
	}
	if logger == nil {
		panic("rest.New: logger must not be nil")
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		origin:    strings.TrimRight(origin, "/"),
		userAgent: defaultUserAgent,
		logger:    logger,
	}
}

// Call sends body (JSON encoded when non-nil) to path and decodes the
// envelope's data into out when out is non-nil. A non-empty token is sent in
// the accessToken header.
func (c *Client) Call(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debugf("%s %s -> %s", method, path, resp.Status)

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("request rejected",
			logging.Field("path", path),
			logging.Field("status", resp.Status),
			logging.Field("response", logging.FormatPayload(data)),
		)
		return &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if readErr != nil {
		return fmt.Errorf("read %s response: %w", path, readErr)
	}
	if len(data) > maxResponseBytes {
		return fmt.Errorf("read %s response: %w", path, ErrResponseTooLarge)
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logger.Warn("invalid response JSON",
			logging.Field("path", path),
			logging.Field("content_type", resp.Header.Get("Content-Type")),
			logging.Field("error", err),
			logging.Field("response", logging.FormatPayload(data)),
		)
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if envelope.Code != CodeSuccess {
		c.logger.Debug("request returned failure code",
			logging.Field("path", path),
			logging.Field("code", envelope.Code),
			logging.Field("message", envelope.Message),
		)
		return &APIError{Code: envelope.Code, Message: envelope.Message}
	}
	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
		req.Header.Set("Referer", c.origin+"/")
	}
	if token != "" {
		req.Header.Set(HeaderAccessToken, token)
	}
}
