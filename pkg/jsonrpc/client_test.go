package jsonrpc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReply struct {
	status int
	body   string
	err    error
}

type fakeTransport struct {
	mu      sync.Mutex
	replies []fakeReply
	bodies  []string
}

func (f *fakeTransport) Post(_ context.Context, _ string, body []byte) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, string(body))
	if len(f.replies) == 0 {
		return 500, nil, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.status, []byte(r.body), r.err
}

func newTestClient(replies ...fakeReply) (*Client, *fakeTransport) {
	ft := &fakeTransport{replies: replies}
	return NewClient(zap.NewNop(), WithTransport(ft)), ft
}

func TestRequestEnvelope(t *testing.T) {
	req, err := NewRequest("eth_chainId")
	require.NoError(t, err)
	b, err := req.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"method":"eth_chainId","jsonrpc":"2.0","params":[]}`, string(b))

	req, err = NewRequest("eth_getTransactionCount", "0xabc", "latest")
	require.NoError(t, err)
	b, err = req.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"method":"eth_getTransactionCount","jsonrpc":"2.0","params":["0xabc","latest"]}`, string(b))

	b, err = (&Request{ID: 7, Method: "x"}).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":7,"method":"x","jsonrpc":"2.0","params":[]}`, string(b))
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		label      string
		reply      fakeReply
		coarse     bool
		rpcErrCode int64
	}{
		{label: "TransportFailure", reply: fakeReply{err: errors.New("connection refused")}, coarse: true},
		{label: "BadStatus", reply: fakeReply{status: 502, body: "bad gateway"}, coarse: true},
		{label: "NotJSON", reply: fakeReply{status: 200, body: "<html>"}, coarse: true},
		{label: "MissingResult", reply: fakeReply{status: 200, body: `{"jsonrpc":"2.0","id":1}`}, coarse: true},
		{label: "RpcError", reply: fakeReply{status: 200, body: `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce too low"}}`}, rpcErrCode: -32000},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			c, _ := newTestClient(tc.reply)
			req, err := NewRequest("eth_blockNumber")
			require.NoError(t, err)
			_, err = c.Fetch(context.Background(), "http://node", req)
			require.Error(t, err)
			if tc.coarse {
				assert.ErrorIs(t, err, chainutils.ErrGettingJsonRpcResponse)
				var reqErr *chainutils.RequestError
				assert.True(t, errors.As(err, &reqErr))
			} else {
				var rpcErr *chainutils.JsonRpcError
				require.True(t, errors.As(err, &rpcErr))
				assert.Equal(t, tc.rpcErrCode, rpcErr.Code)
				assert.Equal(t, "nonce too low", rpcErr.Message)
			}
		})
	}
}

func TestFetchResult(t *testing.T) {
	c, ft := newTestClient(
		fakeReply{status: 200, body: `{"jsonrpc":"2.0","id":1,"result":"0x65f4"}`},
		fakeReply{status: 200, body: `{"jsonrpc":"2.0","id":1,"result":null}`},
	)

	id, err := c.ChainID(context.Background(), "http://node")
	require.NoError(t, err)
	assert.Equal(t, uint64(26100), id)
	assert.Equal(t, `{"id":1,"method":"eth_chainId","jsonrpc":"2.0","params":[]}`, ft.bodies[0])

	req, err := NewRequest("eth_getTransactionByHash", "0x00")
	require.NoError(t, err)
	resp, err := c.Fetch(context.Background(), "http://node", req)
	require.NoError(t, err)
	assert.True(t, resp.IsNull())
}

func TestTransactionStatus(t *testing.T) {
	hash := common.HexToHash("0x01")
	tests := []struct {
		label    string
		body     string
		expected TransactionStatus
	}{
		{label: "NotFound", body: `{"jsonrpc":"2.0","id":1,"result":null}`, expected: StatusNotFound},
		{label: "Pending", body: `{"jsonrpc":"2.0","id":1,"result":{"blockNumber":null,"status":null}}`, expected: StatusPending},
		{label: "Confirmed", body: `{"jsonrpc":"2.0","id":1,"result":{"blockNumber":"0x10","status":"0x1"}}`, expected: StatusConfirmed},
		{label: "Failed", body: `{"jsonrpc":"2.0","id":1,"result":{"blockNumber":"0x10","status":"0x0"}}`, expected: StatusFailed},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			c, ft := newTestClient(fakeReply{status: 200, body: tc.body})
			status, err := c.TransactionStatus(context.Background(), "http://node", hash)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, status)
			assert.Contains(t, ft.bodies[0], `"method":"eth_getTransactionReceipt"`)
			assert.Contains(t, ft.bodies[0], `"0x0000000000000000000000000000000000000000000000000000000000000001"`)
		})
	}
}

func TestHTTPTransport(t *testing.T) {
	var gotBody string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	id, err := c.ChainID(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, `{"id":1,"method":"eth_chainId","jsonrpc":"2.0","params":[]}`, gotBody)
	assert.Contains(t, gotContentType, "application/json")
}
