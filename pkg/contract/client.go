// Package contract issues eth_call queries and signed legacy transactions against the quantum
// portal contracts of one EVM chain.
package contract

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	// gasPriceMarkupPercent is applied to eth_gasPrice when no price is given.
	gasPriceMarkupPercent = 125

	addressCacheSize = 64
	// DefaultAddressCacheTTL bounds how long discovered manager addresses are reused.
	DefaultAddressCacheTTL = 10 * time.Minute
)

var txSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qprelay_tx_submitted_total",
		Help: "Total number of transactions submitted by chain and method",
	}, []string{"chain_id", "method"})

// TxSigner signs a 32 byte hash and returns a 65 byte r ‖ s ‖ recid signature.
type TxSigner interface {
	Sign(ctx context.Context, hash []byte) ([]byte, error)
}

type Client struct {
	logger *zap.Logger
	rpc    *jsonrpc.Client

	URL             string
	GatewayContract common.Address
	ChainID         uint64

	cache    *lru.Cache
	cacheTTL time.Duration
}

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

func NewClient(logger *zap.Logger, rpc *jsonrpc.Client, url string, gateway common.Address, chainID uint64) (*Client, error) {
	cache, err := lru.New(addressCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create address cache: %w", err)
	}
	return &Client{
		logger:          logger.With(zap.Uint64("chain_id", chainID)),
		rpc:             rpc,
		URL:             url,
		GatewayContract: gateway,
		ChainID:         chainID,
		cache:           cache,
		cacheTTL:        DefaultAddressCacheTTL,
	}, nil
}

// SetAddressCacheTTL changes the lifetime of cached discovery results. Zero disables caching.
func (c *Client) SetAddressCacheTTL(ttl time.Duration) {
	c.cacheTTL = ttl
	c.cache.Purge()
}

func (c *Client) cached(key string) (interface{}, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if time.Now().After(entry.expires) {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (c *Client) store(key string, value interface{}) {
	if c.cacheTTL <= 0 {
		return
	}
	c.cache.Add(key, cacheEntry{value: value, expires: time.Now().Add(c.cacheTTL)})
}

type callArgs struct {
	Data string `json:"data"`
	To   string `json:"to"`
}

type estimateArgs struct {
	Input string `json:"input"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// Call performs eth_call of signature(inputs) at "latest". A nil to targets the ledger manager.
func (c *Client) Call(ctx context.Context, signature string, inputs []abi.Token, to *common.Address) (*jsonrpc.Response, error) {
	var target common.Address
	if to != nil {
		target = *to
	} else {
		ledger, err := c.LedgerManager(ctx)
		if err != nil {
			return nil, err
		}
		target = ledger
	}

	data := abi.EncodeFunction(signature, inputs)
	c.logger.Debug("eth_call", zap.String("signature", signature), zap.Stringer("to", target))

	req, err := jsonrpc.NewRequest("eth_call",
		callArgs{Data: chainutils.BytesToHex0x(data), To: chainutils.AddressToHex(target)},
		"latest",
	)
	if err != nil {
		return nil, err
	}
	return c.rpc.Fetch(ctx, c.URL, req)
}

// CallBytes is Call with the hex result decoded.
func (c *Client) CallBytes(ctx context.Context, signature string, inputs []abi.Token, to *common.Address) ([]byte, error) {
	resp, err := c.Call(ctx, signature, inputs, to)
	if err != nil {
		return nil, err
	}
	b, err := chainutils.HexToBytes(resp.ResultString())
	if err != nil {
		return nil, fmt.Errorf("failed to decode result of %s: %w", signature, err)
	}
	return b, nil
}

// SendOpts describes one contract transaction. Nil GasLimit, GasPrice and Nonce are filled in
// from the node.
type SendOpts struct {
	Signature string
	Inputs    []abi.Token
	GasLimit  *uint64
	GasPrice  *uint256.Int
	Value     *uint256.Int
	Nonce     *uint64
	From      common.Address
	Signer    TxSigner
	Recipient common.Address
}

// Send builds, signs and submits a legacy transaction and returns its hash.
func (c *Client) Send(ctx context.Context, opts SendOpts) (common.Hash, error) {
	if opts.Signer == nil {
		return common.Hash{}, chainutils.NewTransactionCreationError(chainutils.NoSignerFound, nil)
	}
	data := abi.EncodeFunction(opts.Signature, opts.Inputs)
	value := opts.Value
	if value == nil {
		value = new(uint256.Int)
	}

	var nonce uint64
	if opts.Nonce != nil {
		nonce = *opts.Nonce
	} else {
		n, err := c.Nonce(ctx, opts.From)
		if err != nil {
			return common.Hash{}, err
		}
		nonce = n
	}

	var gasLimit uint64
	if opts.GasLimit != nil {
		gasLimit = *opts.GasLimit
	} else {
		g, err := c.EstimateGas(ctx, data, value, opts.From, opts.Recipient)
		if err != nil {
			return common.Hash{}, err
		}
		gasLimit = g
	}

	gasPrice := opts.GasPrice
	if gasPrice == nil {
		gp, err := c.GasPrice(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		gasPrice = MarkupGasPrice(gp)
	}

	recipient := opts.Recipient
	tx := &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice.ToBig(),
		Gas:      gasLimit,
		To:       &recipient,
		Value:    value.ToBig(),
		Data:     data,
	}

	hash := chainutils.TxHashToSign(tx, c.ChainID)
	sig, err := opts.Signer.Sign(ctx, hash[:])
	if err != nil {
		return common.Hash{}, chainutils.NewTransactionCreationError(chainutils.SigningFailed, err)
	}
	signed, err := chainutils.SignedLegacyTransaction(tx, sig, c.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	c.logger.Info("submitting transaction",
		zap.String("signature", opts.Signature),
		zap.Stringer("to", recipient),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gasLimit),
		zap.Stringer("gas_price", gasPrice.ToBig()),
	)

	req, err := jsonrpc.NewRequest("eth_sendRawTransaction", chainutils.BytesToHex0x(raw))
	if err != nil {
		return common.Hash{}, err
	}
	resp, err := c.rpc.Fetch(ctx, c.URL, req)
	if err != nil {
		return common.Hash{}, err
	}
	b, err := chainutils.HexToBytes(resp.ResultString())
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: transaction hash is %d bytes", chainutils.ErrBadRemoteData, len(b))
	}
	txSubmitted.WithLabelValues(fmt.Sprint(c.ChainID), methodName(opts.Signature)).Inc()
	return common.BytesToHash(b), nil
}

// MarkupGasPrice returns gp * 125 / 100.
func MarkupGasPrice(gp *uint256.Int) *uint256.Int {
	out := new(uint256.Int).Mul(gp, uint256.NewInt(gasPriceMarkupPercent))
	return out.Div(out, uint256.NewInt(100))
}

func methodName(signature string) string {
	for i := 0; i < len(signature); i++ {
		if signature[i] == '(' {
			return signature[:i]
		}
	}
	return signature
}

// Nonce returns eth_getTransactionCount(from, "latest").
func (c *Client) Nonce(ctx context.Context, from common.Address) (uint64, error) {
	req, err := jsonrpc.NewRequest("eth_getTransactionCount", chainutils.AddressToHex(from), "latest")
	if err != nil {
		return 0, err
	}
	resp, err := c.rpc.Fetch(ctx, c.URL, req)
	if err != nil {
		return 0, err
	}
	return chainutils.HexToU64(resp.ResultString())
}

// GasPrice returns eth_gasPrice without markup.
func (c *Client) GasPrice(ctx context.Context) (*uint256.Int, error) {
	req, err := jsonrpc.NewRequest("eth_gasPrice")
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.Fetch(ctx, c.URL, req)
	if err != nil {
		return nil, err
	}
	return chainutils.HexToU256(resp.ResultString())
}

// EstimateGas returns eth_estimateGas({input, from, to, value}, "latest").
func (c *Client) EstimateGas(ctx context.Context, input []byte, value *uint256.Int, from, to common.Address) (uint64, error) {
	req, err := jsonrpc.NewRequest("eth_estimateGas",
		estimateArgs{
			Input: chainutils.BytesToHex0x(input),
			From:  chainutils.AddressToHex(from),
			To:    chainutils.AddressToHex(to),
			Value: chainutils.U256ToHex0x(value),
		},
		"latest",
	)
	if err != nil {
		return 0, err
	}
	resp, err := c.rpc.Fetch(ctx, c.URL, req)
	if err != nil {
		return 0, err
	}
	return chainutils.HexToU64(resp.ResultString())
}

// TransactionStatus classifies txHash by its receipt on this chain.
func (c *Client) TransactionStatus(ctx context.Context, txHash common.Hash) (jsonrpc.TransactionStatus, error) {
	return c.rpc.TransactionStatus(ctx, c.URL, txHash)
}
