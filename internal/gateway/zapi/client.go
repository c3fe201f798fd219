// Package zapi sends text messages through a Z-API instance.
package zapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/gateway"
)

// maxBody bounds how much of a gateway response is kept for diagnostics.
const maxBody = 64 << 10

// Client posts {phone, message} to the configured send-text URL.
type Client struct {
	url         string
	clientToken string
	timeout     time.Duration
	http        *http.Client
	logger      *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Z-API client. timeout bounds every call; zero means 10s.
func New(url, clientToken string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		url:         url,
		clientToken: clientToken,
		timeout:     timeout,
		http:        &http.Client{},
		logger:      logger.Named("zapi"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendText implements gateway.Sender.
func (c *Client) SendText(ctx context.Context, phone, text string) gateway.Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(sendTextRequest{Phone: phone, Message: text})
	if err != nil {
		return gateway.NetworkError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return gateway.NetworkError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientToken != "" {
		req.Header.Set("Client-Token", c.clientToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("send-text timed out", zap.String("phone", phone), zap.Duration("timeout", c.timeout))
			return gateway.Result{OK: false, Status: gateway.StatusTimeout, BodyText: fmt.Sprintf("<timeout after %s>", c.timeout)}
		}
		c.logger.Warn("send-text failed", zap.String("phone", phone), zap.Error(err))
		return gateway.NetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	bodyText := string(raw)
	if err != nil {
		bodyText = fmt.Sprintf("<error reading response body: %v>", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		c.logger.Info("send-text rejected", zap.String("phone", phone), zap.Int("status", resp.StatusCode))
	}
	return gateway.Result{OK: ok, Status: resp.StatusCode, BodyText: bodyText}
}
