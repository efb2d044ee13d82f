// Package qpclient implements the quantum portal relay logic for one chain: block queries against
// the portal contracts, construction of mine and finalize transactions, and the decision of
// what, if anything, must be relayed next from a remote chain.
package qpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/contract"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/db"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/relaysigner"
	"go.uber.org/zap"
)

const (
	sigIsLocalBlockReady    = "isLocalBlockReady(uint64)"
	sigLastRemoteMinedBlock = "lastRemoteMinedBlock(uint64)"
	sigLastFinalizedBlock   = "getLastFinalizedBlock(uint256)"
	sigLastLocalBlock       = "getLastLocalBlock(uint256)"
	sigLocalBlockByNonce    = "localBlockByNonce(uint64,uint64)"
	sigMinedBlockByNonce    = "minedBlockByNonce(uint64,uint64)"
	sigMineRemoteBlock      = "mineRemoteBlock(uint64,uint64,(uint64,address,address,address,address,uint256,bytes,uint256,uint256)[],bytes32,uint64,bytes)"
	sigFinalizeSingleSigner = "finalizeSingleSigner(uint256,uint256,uint256[],bytes32,address[],bytes32,uint64,bytes)"
)

type Options struct {
	// EnforceMinerSlot refuses to mine blocks the miner manager assigns to another miner.
	EnforceMinerSlot bool

	// Quorum collects finalizer signature shares. Without it, or with a zero threshold for the
	// remote chain, finalize transactions carry this node's signature alone.
	Quorum *db.QuorumDB

	// Now defaults to time.Now.
	Now func() time.Time
}

// Client is the relay view of one chain.
type Client struct {
	logger   *zap.Logger
	contract *contract.Client
	signer   relaysigner.Signer
	from     common.Address
	opts     Options
}

// NewClient binds signer to the portal contracts reached through contractClient. A nil signer
// yields a read-only client whose transaction builders fail with NoSignerFound.
func NewClient(ctx context.Context, logger *zap.Logger, contractClient *contract.Client, signer relaysigner.Signer, opts Options) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Client{
		logger:   logger.With(zap.Uint64("chain_id", contractClient.ChainID)),
		contract: contractClient,
		signer:   signer,
		opts:     opts,
	}
	if signer != nil {
		c.from = relaysigner.Address(ctx, signer)
	}
	return c
}

func (c *Client) ChainID() uint64 {
	return c.contract.ChainID
}

// From is the address transactions are sent from.
func (c *Client) From() common.Address {
	return c.from
}

func (c *Client) Contract() *contract.Client {
	return c.contract
}

// NowMs returns the client clock in unix milliseconds.
func (c *Client) NowMs() uint64 {
	return uint64(c.opts.Now().UnixMilli())
}

// IsLocalBlockReady reports whether this chain has a closed block for chainID waiting to be mined.
func (c *Client) IsLocalBlockReady(ctx context.Context, chainID uint64) (bool, error) {
	resp, err := c.contract.Call(ctx, sigIsLocalBlockReady, []abi.Token{abi.Uint64Token(chainID)}, nil)
	if err != nil {
		return false, err
	}
	v, err := chainutils.HexToU256(resp.ResultString())
	if err != nil {
		return false, err
	}
	return !v.IsZero(), nil
}

// LastRemoteMinedBlock returns the last block of chainID mined on this chain.
func (c *Client) LastRemoteMinedBlock(ctx context.Context, chainID uint64) (LocalBlock, error) {
	b, err := c.contract.CallBytes(ctx, sigLastRemoteMinedBlock, []abi.Token{abi.Uint64Token(chainID)}, nil)
	if err != nil {
		return LocalBlock{}, err
	}
	return decodeLocalBlock(b)
}

// LastFinalizedBlock returns the last block of chainID finalized on this chain.
func (c *Client) LastFinalizedBlock(ctx context.Context, chainID uint64) (LocalBlock, error) {
	return c.stateBlock(ctx, sigLastFinalizedBlock, chainID)
}

// LastLocalBlock returns the last block this chain produced for chainID.
func (c *Client) LastLocalBlock(ctx context.Context, chainID uint64) (LocalBlock, error) {
	return c.stateBlock(ctx, sigLastLocalBlock, chainID)
}

func (c *Client) stateBlock(ctx context.Context, signature string, chainID uint64) (LocalBlock, error) {
	state, err := c.contract.StateContract(ctx)
	if err != nil {
		return LocalBlock{}, err
	}
	b, err := c.contract.CallBytes(ctx, signature, []abi.Token{abi.Uint64Token(chainID)}, &state)
	if err != nil {
		return LocalBlock{}, err
	}
	return decodeLocalBlock(b)
}

// LocalBlockByNonce returns the block this chain produced for chainID at nonce, with its transactions.
func (c *Client) LocalBlockByNonce(ctx context.Context, chainID, nonce uint64) (LocalBlock, []Transaction, error) {
	b, err := c.contract.CallBytes(ctx, sigLocalBlockByNonce, []abi.Token{abi.Uint64Token(chainID), abi.Uint64Token(nonce)}, nil)
	if err != nil {
		return LocalBlock{}, nil, err
	}
	blockToken, txs, err := decodeBlockAndTxs(b, localBlockTuple)
	if err != nil {
		return LocalBlock{}, nil, err
	}
	block, err := localBlockFromTuple(blockToken)
	if err != nil {
		return LocalBlock{}, nil, fmt.Errorf("failed to decode local block %d/%d: %w", chainID, nonce, err)
	}
	return block, txs, nil
}

// MinedBlockByNonce returns the block of chainID at nonce as mined on this chain, with its transactions.
func (c *Client) MinedBlockByNonce(ctx context.Context, chainID, nonce uint64) (RemoteBlock, []Transaction, error) {
	b, err := c.contract.CallBytes(ctx, sigMinedBlockByNonce, []abi.Token{abi.Uint64Token(chainID), abi.Uint64Token(nonce)}, nil)
	if err != nil {
		return RemoteBlock{}, nil, err
	}
	blockToken, txs, err := decodeBlockAndTxs(b, minedBlockTuple)
	if err != nil {
		return RemoteBlock{}, nil, err
	}
	block, err := minedBlockFromTuple(blockToken)
	if err != nil {
		return RemoteBlock{}, nil, fmt.Errorf("failed to decode mined block %d/%d: %w", chainID, nonce, err)
	}
	return block, txs, nil
}
