package qpclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var errNoQuorum = errors.New("no quorum store configured")

var (
	blocksMined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qprelay_blocks_mined_total",
			Help: "Total number of mine transactions submitted per remote and local chain",
		}, []string{"remote_chain", "local_chain"})

	blocksFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qprelay_blocks_finalized_total",
			Help: "Total number of finalize transactions submitted per remote and local chain",
		}, []string{"remote_chain", "local_chain"})

	verificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qprelay_block_verification_failures_total",
			Help: "Total number of mined blocks whose transactions did not match their source block",
		}, []string{"remote_chain", "local_chain"})
)

// Mine copies the next unmined block that remote produced for this chain. It returns
// submitted=false when there is nothing to mine.
func (c *Client) Mine(ctx context.Context, remote *Client) (common.Hash, bool, error) {
	localChain := c.ChainID()
	remoteChain := remote.ChainID()
	logger := c.logger.With(zap.Uint64("remote_chain", remoteChain))

	ready, err := remote.IsLocalBlockReady(ctx, localChain)
	if err != nil {
		return common.Hash{}, false, err
	}
	if !ready {
		logger.Debug("remote block is not ready")
		return common.Hash{}, false, nil
	}

	lastBlock, err := remote.LastLocalBlock(ctx, localChain)
	if err != nil {
		return common.Hash{}, false, err
	}
	lastMined, err := c.LastRemoteMinedBlock(ctx, remoteChain)
	if err != nil {
		return common.Hash{}, false, err
	}
	if lastMined.Nonce >= lastBlock.Nonce {
		logger.Debug("nothing to mine", zap.Uint64("last_block", lastBlock.Nonce), zap.Uint64("last_mined", lastMined.Nonce))
		return common.Hash{}, false, nil
	}

	next := lastMined.Nonce + 1
	existing, _, err := c.MinedBlockByNonce(ctx, remoteChain, next)
	if err != nil {
		return common.Hash{}, false, err
	}
	if existing.Mined() {
		return common.Hash{}, false, fmt.Errorf("%w: %d/%d", chainutils.ErrRemoteBlockAlreadyMined, remoteChain, next)
	}

	source, txs, err := remote.LocalBlockByNonce(ctx, localChain, next)
	if err != nil {
		return common.Hash{}, false, err
	}

	assigned, err := c.contract.MinerForBlock(ctx, source.Hash(), source.Timestamp, c.NowMs())
	if err != nil {
		return common.Hash{}, false, err
	}
	if assigned != c.from {
		if c.opts.EnforceMinerSlot {
			logger.Info("mining slot belongs to another miner", zap.Stringer("assigned", assigned), zap.Stringer("us", c.from))
			return common.Hash{}, false, fmt.Errorf("%w: block %d/%d is assigned to %s", chainutils.ErrSlotNotAvailable, remoteChain, source.Nonce, assigned)
		}
		logger.Debug("mining outside of our slot", zap.Stringer("assigned", assigned))
	}

	logger.Info("mining block", zap.Uint64("nonce", source.Nonce), zap.Int("txs", len(txs)))
	hash, err := c.CreateMineTransaction(ctx, remoteChain, source.Nonce, txs, source)
	if err != nil {
		return common.Hash{}, false, err
	}
	blocksMined.WithLabelValues(fmt.Sprint(remoteChain), fmt.Sprint(localChain)).Inc()
	return hash, true, nil
}

// Finalize finalizes the last block of remote mined on this chain once it is ahead of the last
// finalized block. It returns submitted=false when nothing was sent, which includes the case of a
// signature share recorded while the quorum is still short.
func (c *Client) Finalize(ctx context.Context, remote *Client) (common.Hash, bool, error) {
	localChain := c.ChainID()
	remoteChain := remote.ChainID()
	logger := c.logger.With(zap.Uint64("remote_chain", remoteChain))

	lastMined, err := c.LastRemoteMinedBlock(ctx, remoteChain)
	if err != nil {
		return common.Hash{}, false, err
	}
	lastFinalized, err := c.LastFinalizedBlock(ctx, remoteChain)
	if err != nil {
		return common.Hash{}, false, err
	}
	if lastMined.Nonce <= lastFinalized.Nonce {
		logger.Debug("nothing to finalize", zap.Uint64("last_mined", lastMined.Nonce), zap.Uint64("last_finalized", lastFinalized.Nonce))
		return common.Hash{}, false, nil
	}

	nonce := lastMined.Nonce
	mined, minedTxs, err := c.MinedBlockByNonce(ctx, remoteChain, nonce)
	if err != nil {
		return common.Hash{}, false, err
	}
	_, sourceTxs, err := remote.LocalBlockByNonce(ctx, localChain, nonce)
	if err != nil {
		return common.Hash{}, false, err
	}
	verified := CompareAndVerifyMinedBlock(sourceTxs, minedTxs)
	if !verified {
		logger.Warn("mined block does not match its source block",
			zap.Uint64("nonce", nonce),
			zap.Int("source_txs", len(sourceTxs)),
			zap.Int("mined_txs", len(minedTxs)),
		)
		verificationFailures.WithLabelValues(fmt.Sprint(remoteChain), fmt.Sprint(localChain)).Inc()
	}

	shares, ready, err := c.collectShares(ctx, remoteChain, nonce, mined)
	if err != nil {
		return common.Hash{}, false, err
	}
	if !ready {
		return common.Hash{}, false, nil
	}

	hash, err := c.PostFinalizeTransaction(ctx, remoteChain, nonce, mined, shares, verified)
	if err != nil {
		return common.Hash{}, false, err
	}
	if c.opts.Quorum != nil {
		if err := c.opts.Quorum.ClearPendingSignatures(remoteChain, nonce); err != nil {
			logger.Error("failed to clear finalize signatures", zap.Uint64("nonce", nonce), zap.Error(err))
		}
	}
	blocksFinalized.WithLabelValues(fmt.Sprint(remoteChain), fmt.Sprint(localChain)).Inc()
	return hash, true, nil
}

// collectShares returns the signatures to finalize with, or ready=false after recording this
// node's share when the quorum has not exceeded its threshold yet.
func (c *Client) collectShares(ctx context.Context, remoteChain, nonce uint64, mined RemoteBlock) ([][]byte, bool, error) {
	var threshold uint32
	if c.opts.Quorum != nil {
		t, err := c.opts.Quorum.FinalizerThreshold(remoteChain)
		if err != nil {
			return nil, false, err
		}
		threshold = t
	}

	if threshold == 0 {
		sig, err := c.SignFinalize(ctx, remoteChain, nonce, mined)
		if err != nil {
			return nil, false, err
		}
		return [][]byte{sig}, true, nil
	}

	pending, err := c.opts.Quorum.PendingFinalizeSignatures(remoteChain, nonce)
	if err != nil {
		return nil, false, err
	}
	if uint32(len(pending)) > threshold {
		shares := make([][]byte, 0, len(pending))
		for _, p := range pending {
			shares = append(shares, p.Signature)
		}
		return shares, true, nil
	}

	if err := c.CreateFinalizeTransaction(ctx, remoteChain, nonce, mined); err != nil {
		return nil, false, err
	}
	c.logger.Info("waiting for finalizer quorum",
		zap.Uint64("remote_chain", remoteChain),
		zap.Uint64("nonce", nonce),
		zap.Int("signatures", len(pending)),
		zap.Uint32("threshold", threshold),
	)
	return nil, false, nil
}
