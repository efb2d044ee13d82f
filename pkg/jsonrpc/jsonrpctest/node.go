// Package jsonrpctest provides an in-process fake Ethereum node implementing jsonrpc.Transport.
package jsonrpctest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tidwall/gjson"
)

// CallHandler returns the raw result of an eth_call. input excludes the selector.
type CallHandler func(input []byte) ([]byte, error)

// MethodHandler returns the JSON-marshalable result of a method.
type MethodHandler func(params gjson.Result) (interface{}, error)

// RPCError makes the node reply with a JSON-RPC error object.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string { return e.Message }

type callKey struct {
	to       common.Address
	selector string
}

// Receipt is the scripted receipt of a transaction. Pending receipts have no block number.
type Receipt struct {
	Pending     bool
	BlockNumber uint64
	Status      uint64
}

// Node is a scriptable fake. The zero value is not usable; use NewNode.
type Node struct {
	mu       sync.Mutex
	chainID  uint64
	calls    map[callKey]CallHandler
	methods  map[string]MethodHandler
	receipts map[common.Hash]*Receipt
	sent     []*types.Transaction
	requests []string
	nonces   map[common.Address]uint64
	gasPrice uint64
	gas      uint64
}

func NewNode(chainID uint64) *Node {
	n := &Node{
		chainID:  chainID,
		calls:    make(map[callKey]CallHandler),
		methods:  make(map[string]MethodHandler),
		receipts: make(map[common.Hash]*Receipt),
		nonces:   make(map[common.Address]uint64),
		gasPrice: 1_000_000_000,
		gas:      50_000,
	}
	return n
}

func selectorOf(signature string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// HandleCall registers fn for eth_call of signature on to.
func (n *Node) HandleCall(to common.Address, signature string, fn CallHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[callKey{to: to, selector: selectorOf(signature)}] = fn
}

// SetCallResult makes eth_call of signature on to return result.
func (n *Node) SetCallResult(to common.Address, signature string, result []byte) {
	n.HandleCall(to, signature, func([]byte) ([]byte, error) { return result, nil })
}

// Handle overrides a whole method.
func (n *Node) Handle(method string, fn MethodHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods[method] = fn
}

// SetReceipt sets the receipt returned for hash. A nil receipt means unknown.
func (n *Node) SetReceipt(hash common.Hash, r *Receipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r == nil {
		delete(n.receipts, hash)
		return
	}
	n.receipts[hash] = r
}

func (n *Node) SetGasPrice(wei uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gasPrice = wei
}

func (n *Node) SetNonce(addr common.Address, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[addr] = nonce
}

// Sent returns the decoded raw transactions received so far.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*types.Transaction, len(n.sent))
	copy(out, n.sent)
	return out
}

// Requests returns the method names received so far, in order.
func (n *Node) Requests() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.requests))
	copy(out, n.requests)
	return out
}

// Post implements jsonrpc.Transport.
func (n *Node) Post(_ context.Context, _ string, body []byte) (int, []byte, error) {
	req := gjson.ParseBytes(body)
	method := req.Get("method").String()
	params := req.Get("params")

	n.mu.Lock()
	n.requests = append(n.requests, method)
	override, hasOverride := n.methods[method]
	n.mu.Unlock()

	var result interface{}
	var err error
	if hasOverride {
		result, err = override(params)
	} else {
		result, err = n.dispatch(method, params)
	}

	var resp map[string]interface{}
	if err != nil {
		code := int64(-32000)
		if rpcErr, ok := err.(*RPCError); ok {
			code = rpcErr.Code
		}
		resp = map[string]interface{}{"jsonrpc": "2.0", "id": 1, "error": map[string]interface{}{"code": code, "message": err.Error()}}
	} else {
		resp = map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": result}
	}
	out, mErr := json.Marshal(resp)
	if mErr != nil {
		return 0, nil, mErr
	}
	return 200, out, nil
}

func (n *Node) dispatch(method string, params gjson.Result) (interface{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch method {
	case "eth_chainId":
		return fmt.Sprintf("0x%x", n.chainID), nil
	case "eth_gasPrice":
		return fmt.Sprintf("0x%x", n.gasPrice), nil
	case "eth_estimateGas":
		return fmt.Sprintf("0x%x", n.gas), nil
	case "eth_getTransactionCount":
		addr := common.HexToAddress(params.Get("0").String())
		return fmt.Sprintf("0x%x", n.nonces[addr]), nil
	case "eth_call":
		return n.call(params.Get("0"))
	case "eth_sendRawTransaction":
		raw, err := hex.DecodeString(strings.TrimPrefix(params.Get("0").String(), "0x"))
		if err != nil {
			return nil, err
		}
		var tx types.Transaction
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		n.sent = append(n.sent, &tx)
		if signer, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), &tx); err == nil {
			n.nonces[signer] = tx.Nonce() + 1
		}
		return tx.Hash().Hex(), nil
	case "eth_getTransactionReceipt":
		hash := common.HexToHash(params.Get("0").String())
		r, ok := n.receipts[hash]
		if !ok {
			return nil, nil
		}
		if r.Pending {
			return map[string]interface{}{"transactionHash": hash.Hex(), "blockNumber": nil, "status": nil}, nil
		}
		return map[string]interface{}{
			"transactionHash": hash.Hex(),
			"blockNumber":     fmt.Sprintf("0x%x", r.BlockNumber),
			"status":          fmt.Sprintf("0x%x", r.Status),
		}, nil
	default:
		return nil, &RPCError{Code: -32601, Message: "method not found: " + method}
	}
}

func (n *Node) call(args gjson.Result) (interface{}, error) {
	to := common.HexToAddress(args.Get("to").String())
	data, err := hex.DecodeString(strings.TrimPrefix(args.Get("data").String(), "0x"))
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, &RPCError{Code: -32000, Message: "execution reverted"}
	}
	fn, ok := n.calls[callKey{to: to, selector: hex.EncodeToString(data[:4])}]
	if !ok {
		return nil, &RPCError{Code: -32000, Message: fmt.Sprintf("execution reverted: no handler for %x on %s", data[:4], to.Hex())}
	}
	// Handlers may call back into the node, so run them unlocked.
	n.mu.Unlock()
	out, err := fn(data[4:])
	n.mu.Lock()
	if err != nil {
		return nil, err
	}
	return "0x" + hex.EncodeToString(out), nil
}

// Network routes requests to a Node by URL.
type Network map[string]*Node

func (net Network) Post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	n, ok := net[url]
	if !ok {
		return 0, nil, fmt.Errorf("no fake node at %s", url)
	}
	return n.Post(ctx, url, body)
}
