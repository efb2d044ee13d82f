package qprelayd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc/jsonrpctest"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/qpconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func TestVerifyChainID(t *testing.T) {
	node := jsonrpctest.NewNode(97)
	rpc := jsonrpc.NewClient(zap.NewNop(), jsonrpc.WithTransport(jsonrpctest.Network{"http://bsc": node}))
	quick := func() backoff.BackOff { return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3) }

	tests := []struct {
		label   string
		network qpconfig.NetworkItem
		wantErr error
	}{
		{label: "Match", network: qpconfig.NetworkItem{URL: "http://bsc", ID: 97}},
		{label: "Mismatch", network: qpconfig.NetworkItem{URL: "http://bsc", ID: 56}, wantErr: ErrChainIDMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			err := verifyChainID(context.Background(), zap.NewNop(), rpc, tc.network, quick())
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("Unreachable", func(t *testing.T) {
		err := verifyChainID(context.Background(), zap.NewNop(), rpc, qpconfig.NetworkItem{URL: "http://nowhere", ID: 97}, quick())
		assert.Error(t, err)
	})
}

func TestVerifyChainIDRetriesUntilReachable(t *testing.T) {
	node := jsonrpctest.NewNode(26100)
	calls := 0
	node.Handle("eth_chainId", func(gjson.Result) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, &jsonrpctest.RPCError{Code: -32000, Message: "starting up"}
		}
		return "0x65f4", nil
	})
	rpc := jsonrpc.NewClient(zap.NewNop(), jsonrpc.WithTransport(node))

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
	require.NoError(t, verifyChainID(context.Background(), zap.NewNop(), rpc, qpconfig.NetworkItem{URL: "http://qp", ID: 26100}, bo))
	assert.Equal(t, 3, calls)
}

func TestGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.key")
	addr, err := generateKey(path, "test key", common.RelayKeyArmoredBlock)
	require.NoError(t, err)

	key, err := common.LoadRelayKey(path, false)
	require.NoError(t, err)
	assert.Equal(t, addr, ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestPrintStatus(t *testing.T) {
	node := jsonrpctest.NewNode(97)
	hash := ethcommon.HexToHash("0x029729a1d69ddeaa8f6c2417ae0e799d5784a12f04675785432d6441c5e5b881")
	node.SetReceipt(hash, &jsonrpctest.Receipt{BlockNumber: 16, Status: 1})
	rpc := jsonrpc.NewClient(zap.NewNop(), jsonrpc.WithTransport(node))

	var out bytes.Buffer
	require.NoError(t, printStatus(context.Background(), &out, rpc, "http://bsc", hash.Hex()))
	assert.Contains(t, out.String(), "status: confirmed")
	assert.Contains(t, out.String(), "block:  0x10")

	out.Reset()
	require.NoError(t, printStatus(context.Background(), &out, rpc, "http://bsc", ethcommon.HexToHash("0x01").Hex()))
	assert.Contains(t, out.String(), "status: not_found")

	assert.Error(t, printStatus(context.Background(), &out, rpc, "http://bsc", "0x1234"))
}
