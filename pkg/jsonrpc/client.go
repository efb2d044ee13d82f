// Package jsonrpc is a minimal Ethereum JSON-RPC 2.0 client. Every call is a single blocking
// POST bounded by a fixed deadline; retries are left to the caller's next cycle.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every request, including the time spent waiting on the rate limiter.
const DefaultTimeout = 30 * time.Second

var (
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qprelay_rpc_requests_total",
			Help: "Total number of JSON-RPC requests by method and outcome",
		}, []string{"method", "outcome"})
	rpcLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qprelay_rpc_request_duration_seconds",
			Help:    "Latency of JSON-RPC requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"})
)

// Request is one JSON-RPC call. Params are already JSON encoded.
type Request struct {
	ID     uint32
	Method string
	Params []json.RawMessage
}

// NewRequest builds a request with id 1, encoding each param with encoding/json.
func NewRequest(method string, params ...interface{}) (*Request, error) {
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode param for %s: %w", method, err)
		}
		raw = append(raw, b)
	}
	return &Request{ID: 1, Method: method, Params: raw}, nil
}

type envelope struct {
	ID      uint32            `json:"id"`
	Method  string            `json:"method"`
	JSONRPC string            `json:"jsonrpc"`
	Params  []json.RawMessage `json:"params"`
}

// MarshalJSON renders {"id":..,"method":..,"jsonrpc":"2.0","params":[..]}.
func (r *Request) MarshalJSON() ([]byte, error) {
	params := r.Params
	if params == nil {
		params = []json.RawMessage{}
	}
	return json.Marshal(envelope{ID: r.ID, Method: r.Method, JSONRPC: "2.0", Params: params})
}

// Response wraps the body of a successful call.
type Response struct {
	Result gjson.Result
	Raw    []byte
}

// ResultString returns the result as a string, e.g. the hex payload of eth_call.
func (r *Response) ResultString() string {
	return r.Result.String()
}

// IsNull reports whether the node returned "result": null.
func (r *Response) IsNull() bool {
	return r.Result.Type == gjson.Null
}

type Client struct {
	logger    *zap.Logger
	transport Transport
	timeout   time.Duration

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type Option func(*Client)

func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit limits requests per endpoint URL. A zero limit disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limit = limit
		c.burst = burst
	}
}

func NewClient(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		logger:   logger,
		timeout:  DefaultTimeout,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(c.timeout)
	}
	return c
}

func (c *Client) limiter(url string) *rate.Limiter {
	if c.limit == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[url]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[url] = l
	}
	return l
}

// Fetch posts req to url and returns the parsed response. Transport failures, non-200
// statuses and unparseable bodies are reported as *chainutils.RequestError, which matches
// chainutils.ErrGettingJsonRpcResponse. An error object in the body is a *chainutils.JsonRpcError.
func (c *Client) Fetch(ctx context.Context, url string, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.fetch(ctx, url, req)
	rpcLatency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		rpcRequests.WithLabelValues(req.Method, "error").Inc()
		c.logger.Debug("json-rpc request failed", zap.String("method", req.Method), zap.String("url", url), zap.Error(err))
		return nil, err
	}
	rpcRequests.WithLabelValues(req.Method, "ok").Inc()
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, url string, req *Request) (*Response, error) {
	if l := c.limiter(url); l != nil {
		if err := l.Wait(ctx); err != nil {
			return nil, &chainutils.RequestError{Stage: "rate limit", Err: err}
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &chainutils.RequestError{Stage: "encode", Err: err}
	}
	c.logger.Debug("about to submit json-rpc request", zap.String("method", req.Method), zap.ByteString("body", body))

	status, respBody, err := c.transport.Post(ctx, url, body)
	if err != nil {
		return nil, &chainutils.RequestError{Stage: "transport", Err: err}
	}
	if status != 200 {
		return nil, &chainutils.RequestError{Stage: "status", Err: fmt.Errorf("unexpected http status code %d", status)}
	}
	if !gjson.ValidBytes(respBody) {
		return nil, &chainutils.RequestError{Stage: "parse", Err: fmt.Errorf("invalid json body: %q", truncate(respBody))}
	}

	if e := gjson.GetBytes(respBody, "error"); e.Exists() && e.Type != gjson.Null {
		return nil, &chainutils.JsonRpcError{Code: e.Get("code").Int(), Message: e.Get("message").String()}
	}

	result := gjson.GetBytes(respBody, "result")
	if !result.Exists() {
		return nil, &chainutils.RequestError{Stage: "parse", Err: fmt.Errorf("response has no result: %q", truncate(respBody))}
	}
	return &Response{Result: result, Raw: respBody}, nil
}

func truncate(b []byte) []byte {
	const max = 256
	if len(b) > max {
		return b[:max]
	}
	return b
}
