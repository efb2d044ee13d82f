package contract

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc/jsonrpctest"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testChainID = 26100

var (
	gatewayAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	ledgerAddr    = common.HexToAddress("0x1000000000000000000000000000000000000002")
	minerMgrAddr  = common.HexToAddress("0x1000000000000000000000000000000000000003")
	authMgrAddr   = common.HexToAddress("0x1000000000000000000000000000000000000004")
	stateAddr     = common.HexToAddress("0x1000000000000000000000000000000000000005")
	tokenAddr     = common.HexToAddress("0x1000000000000000000000000000000000000006")
	assignedMiner = common.HexToAddress("0x2000000000000000000000000000000000000001")
)

type keySigner struct {
	key *ecdsa.PrivateKey
}

func (k keySigner) Sign(_ context.Context, hash []byte) ([]byte, error) {
	return crypto.Sign(hash, k.key)
}

func addressWord(a common.Address) []byte {
	return abi.Encode([]abi.Token{abi.AddressToken(a)})
}

func stringWord(s string) []byte {
	return abi.Encode([]abi.Token{abi.StringToken(s)})
}

func newTestContract(t *testing.T) (*Client, *jsonrpctest.Node) {
	t.Helper()
	node := jsonrpctest.NewNode(testChainID)
	node.SetCallResult(gatewayAddr, "quantumPortalLedgerMgr()", addressWord(ledgerAddr))
	node.SetCallResult(ledgerAddr, "minerMgr()", addressWord(minerMgrAddr))
	node.SetCallResult(ledgerAddr, "authorityMgr()", addressWord(authMgrAddr))
	node.SetCallResult(ledgerAddr, "state()", addressWord(stateAddr))
	node.SetCallResult(minerMgrAddr, "NAME()", stringWord("FERRUM_QUANTUM_PORTAL_MINER_MGR"))
	node.SetCallResult(minerMgrAddr, "VERSION()", stringWord("000.010"))
	node.SetCallResult(authMgrAddr, "NAME()", stringWord("FERRUM_QUANTUM_PORTAL_AUTHORITY_MGR"))
	node.SetCallResult(authMgrAddr, "VERSION()", stringWord("000.010"))

	rpc := jsonrpc.NewClient(zap.NewNop(), jsonrpc.WithTransport(node))
	c, err := NewClient(zap.NewNop(), rpc, "http://chain", gatewayAddr, testChainID)
	require.NoError(t, err)
	return c, node
}

func countRequests(node *jsonrpctest.Node, method string) int {
	n := 0
	for _, m := range node.Requests() {
		if m == method {
			n++
		}
	}
	return n
}

func TestDiscovery(t *testing.T) {
	c, node := newTestContract(t)
	ctx := context.Background()

	ledger, err := c.LedgerManager(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledgerAddr, ledger)

	state, err := c.StateContract(ctx)
	require.NoError(t, err)
	assert.Equal(t, stateAddr, state)

	miner, err := c.MinerManager(ctx)
	require.NoError(t, err)
	assert.Equal(t, minerMgrAddr, miner.Address)
	assert.Equal(t, []byte("FERRUM_QUANTUM_PORTAL_MINER_MGR"), miner.Name)
	assert.Equal(t, []byte("000.010"), miner.Version)

	authority, err := c.AuthorityManager(ctx)
	require.NoError(t, err)
	assert.Equal(t, authMgrAddr, authority.Address)
	assert.Equal(t, []byte("FERRUM_QUANTUM_PORTAL_AUTHORITY_MGR"), authority.Name)

	domain := authority.Domain(testChainID)
	assert.Equal(t, uint64(testChainID), domain.ChainID)
	assert.Equal(t, authMgrAddr, domain.VerifyingContract)

	calls := countRequests(node, "eth_call")
	_, err = c.MinerManager(ctx)
	require.NoError(t, err)
	_, err = c.LedgerManager(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls, countRequests(node, "eth_call"), "cached lookups must not hit the node")

	c.SetAddressCacheTTL(0)
	_, err = c.LedgerManager(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls+1, countRequests(node, "eth_call"))
}

func TestCallDefaultsToLedgerManager(t *testing.T) {
	c, node := newTestContract(t)
	node.SetCallResult(ledgerAddr, "isLocalBlockReady(uint64)", abi.Encode([]abi.Token{abi.BoolToken(true)}))

	b, err := c.CallBytes(context.Background(), "isLocalBlockReady(uint64)", []abi.Token{abi.Uint64Token(4)}, nil)
	require.NoError(t, err)
	tokens, err := abi.Decode([]abi.ParamKind{abi.TypeBool}, b)
	require.NoError(t, err)
	ready, ok := tokens[0].ToBool()
	require.True(t, ok)
	assert.True(t, ready)
}

func TestCallRevert(t *testing.T) {
	c, _ := newTestContract(t)
	to := stateAddr
	_, err := c.Call(context.Background(), "unknown()", nil, &to)
	require.Error(t, err)
	var rpcErr *chainutils.JsonRpcError
	assert.ErrorAs(t, err, &rpcErr)
}

func TestMinerForBlock(t *testing.T) {
	c, node := newTestContract(t)
	var gotInput []byte
	node.HandleCall(minerMgrAddr, "selectMinerAddress(bytes32,uint256,uint256)", func(input []byte) ([]byte, error) {
		gotInput = input
		return addressWord(assignedMiner), nil
	})

	hash := common.HexToHash("0xabcd")
	miner, err := c.MinerForBlock(context.Background(), hash, 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, assignedMiner, miner)

	tokens, err := abi.Decode([]abi.ParamKind{abi.TypeFixedBytes(32), abi.TypeUint(256), abi.TypeUint(256)}, gotInput)
	require.NoError(t, err)
	got, _ := tokens[0].ToFixedBytes()
	assert.Equal(t, hash[:], got)
	ts, _ := tokens[1].ToUint()
	assert.Equal(t, uint64(1000), ts.Uint64())
}

func TestSend(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	tests := []struct {
		label       string
		gasLimit    *uint64
		expectedGas uint64
		estimates   int
	}{
		{label: "EstimatedGas", expectedGas: 50_000, estimates: 1},
		{label: "FixedGas", gasLimit: func() *uint64 { g := uint64(1_000_000); return &g }(), expectedGas: 1_000_000, estimates: 0},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			c, node := newTestContract(t)
			node.SetNonce(from, 7)
			node.SetGasPrice(2_000_000_000)

			hash, err := c.Send(context.Background(), SendOpts{
				Signature: "mineRemoteBlock(uint64,uint64)",
				Inputs:    []abi.Token{abi.Uint64Token(1), abi.Uint64Token(2)},
				GasLimit:  tc.gasLimit,
				From:      from,
				Signer:    keySigner{key: key},
				Recipient: ledgerAddr,
			})
			require.NoError(t, err)

			sent := node.Sent()
			require.Len(t, sent, 1)
			tx := sent[0]
			assert.Equal(t, hash, tx.Hash())
			assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
			assert.Equal(t, uint64(7), tx.Nonce())
			assert.Equal(t, tc.expectedGas, tx.Gas())
			assert.Equal(t, big.NewInt(2_500_000_000), tx.GasPrice())
			assert.Equal(t, ledgerAddr, *tx.To())
			assert.Equal(t, abi.Selector("mineRemoteBlock(uint64,uint64)"), tx.Data()[:4])
			assert.Equal(t, big.NewInt(testChainID), tx.ChainId())
			assert.Equal(t, tc.estimates, countRequests(node, "eth_estimateGas"))

			sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(testChainID)), tx)
			require.NoError(t, err)
			assert.Equal(t, from, sender)
		})
	}
}

func TestSendWithoutSigner(t *testing.T) {
	c, _ := newTestContract(t)
	_, err := c.Send(context.Background(), SendOpts{Signature: "f()", Recipient: ledgerAddr})
	assert.ErrorIs(t, err, &chainutils.TransactionCreationError{Kind: chainutils.NoSignerFound})
}

func TestMarkupGasPrice(t *testing.T) {
	assert.Equal(t, uint64(125), MarkupGasPrice(uint256.NewInt(100)).Uint64())
	assert.Equal(t, uint64(1), MarkupGasPrice(uint256.NewInt(1)).Uint64())
	assert.Equal(t, uint64(0), MarkupGasPrice(uint256.NewInt(0)).Uint64())
}

func TestERC20TotalSupply(t *testing.T) {
	c, node := newTestContract(t)
	node.SetCallResult(tokenAddr, "totalSupply()", abi.Encode([]abi.Token{abi.Uint64Token(1_000_000)}))

	supply, err := NewERC20(c, tokenAddr).TotalSupply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), supply.Uint64())

	node.SetCallResult(tokenAddr, "totalSupply()", []byte{0x01})
	_, err = NewERC20(c, tokenAddr).TotalSupply(context.Background())
	assert.ErrorIs(t, err, chainutils.ErrBadRemoteData)
}
