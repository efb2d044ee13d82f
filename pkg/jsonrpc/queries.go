package jsonrpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
)

type TransactionStatus int

const (
	StatusNotFound TransactionStatus = iota
	StatusPending
	StatusConfirmed
	StatusFailed
)

func (s TransactionStatus) String() string {
	switch s {
	case StatusNotFound:
		return "not_found"
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Receipt holds the fields of eth_getTransactionReceipt the relay looks at.
type Receipt struct {
	TxHash      common.Hash
	BlockHash   string
	BlockNumber string
	Status      string
	GasUsed     string
}

// ChainID calls eth_chainId.
func (c *Client) ChainID(ctx context.Context, url string) (uint64, error) {
	req, err := NewRequest("eth_chainId")
	if err != nil {
		return 0, err
	}
	resp, err := c.Fetch(ctx, url, req)
	if err != nil {
		return 0, err
	}
	id, err := chainutils.HexToU64(resp.ResultString())
	if err != nil {
		return 0, fmt.Errorf("failed to parse chain id %q: %w", resp.ResultString(), err)
	}
	return id, nil
}

// TransactionReceipt returns nil with no error when the node does not know the transaction.
func (c *Client) TransactionReceipt(ctx context.Context, url string, txHash common.Hash) (*Receipt, error) {
	req, err := NewRequest("eth_getTransactionReceipt", chainutils.H256ToHex0x(txHash))
	if err != nil {
		return nil, err
	}
	resp, err := c.Fetch(ctx, url, req)
	if err != nil {
		return nil, err
	}
	if resp.IsNull() {
		return nil, nil
	}
	if !resp.Result.IsObject() {
		return nil, fmt.Errorf("%w: receipt is not an object", chainutils.ErrBadRemoteData)
	}
	return &Receipt{
		TxHash:      txHash,
		BlockHash:   resp.Result.Get("blockHash").String(),
		BlockNumber: resp.Result.Get("blockNumber").String(),
		Status:      resp.Result.Get("status").String(),
		GasUsed:     resp.Result.Get("gasUsed").String(),
	}, nil
}

// TransactionStatus classifies a transaction by its receipt. A receipt that is not yet attached
// to a block is pending; a mined receipt with status 0x1 is confirmed, anything else failed.
func (c *Client) TransactionStatus(ctx context.Context, url string, txHash common.Hash) (TransactionStatus, error) {
	receipt, err := c.TransactionReceipt(ctx, url, txHash)
	if err != nil {
		return StatusNotFound, err
	}
	return receipt.Classify(), nil
}

func (r *Receipt) Classify() TransactionStatus {
	if r == nil {
		return StatusNotFound
	}
	if r.BlockNumber == "" {
		return StatusPending
	}
	status, err := chainutils.HexToU64(r.Status)
	if err == nil && status == 1 {
		return StatusConfirmed
	}
	return StatusFailed
}
