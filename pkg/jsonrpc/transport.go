package jsonrpc

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// Transport sends one request body and returns the HTTP status and response body.
type Transport interface {
	Post(ctx context.Context, url string, body []byte) (status int, respBody []byte, err error)
}

// HTTPTransport posts JSON bodies with resty.
type HTTPTransport struct {
	client *resty.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(url)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), resp.Body(), nil
}
