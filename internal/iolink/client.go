package iolink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout matches the master's documented response budget
const DefaultTimeout = 8000 * time.Millisecond

// maxBodySize bounds what is read from a single response
const maxBodySize = 64 << 10

// Client talks to one IO-Link master. The endpoint is fixed for its lifetime.
type Client struct {
	endpoint   string
	url        string
	cid        int
	httpClient *http.Client
	validator  *Validator
	logger     *zap.Logger
}

func NewClient(endpoint string, timeout time.Duration, cid int, logger *zap.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("iolink endpoint required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if cid == 0 {
		cid = 1
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Client{
		endpoint:   endpoint,
		url:        "http://" + endpoint,
		cid:        cid,
		httpClient: &http.Client{Timeout: timeout},
		validator:  validator,
		logger:     logger,
	}, nil
}

// Endpoint returns the master's host address
func (c *Client) Endpoint() string {
	return c.endpoint
}

// FetchValue sendet einen Getdata-Request und liefert data.value.
// Failures are returned as *TransportError; retry policy belongs to the caller.
func (c *Client) FetchValue(ctx context.Context, address string) (Value, error) {
	body, err := NewRequest(c.cid, address).Encode()
	if err != nil {
		return Value{}, c.transportError(address, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Value{}, c.transportError(address, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Value{}, c.transportError(address, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Value{}, c.transportError(address, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := &TransportError{
			Endpoint:   c.endpoint,
			Address:    address,
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       string(data),
		}
		c.logger.Error("IO-Link request failed",
			zap.String("address", address),
			zap.Int("status", resp.StatusCode),
			zap.Any("headers", resp.Header),
			zap.String("body", string(data)))
		return Value{}, terr
	}

	if err := c.validator.ValidateResponse(data); err != nil {
		return Value{}, &TransportError{
			Endpoint:   c.endpoint,
			Address:    address,
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       string(data),
			Err:        err,
		}
	}

	envelope, err := DecodeResponse(data)
	if err != nil {
		return Value{}, c.transportError(address, err)
	}

	if envelope.Code != DiagOK {
		return Value{}, &TransportError{
			Endpoint:   c.endpoint,
			Address:    address,
			StatusCode: resp.StatusCode,
			DiagCode:   envelope.Code,
			Header:     resp.Header.Clone(),
			Body:       string(data),
		}
	}

	value := envelope.Value()
	c.logger.Debug("IO-Link value fetched",
		zap.String("address", address),
		zap.Stringer("value", value))

	return value, nil
}

// IsTimeout reports whether err is a transport timeout
func IsTimeout(err error) bool {
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Err == nil {
		return false
	}
	if errors.Is(terr.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(terr.Err, &netErr) && netErr.Timeout()
}

func (c *Client) transportError(address string, err error) *TransportError {
	return &TransportError{
		Endpoint: c.endpoint,
		Address:  address,
		Err:      err,
	}
}
