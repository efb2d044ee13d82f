package qpclient

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/contract"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/eip712"
	"go.uber.org/zap"
)

const (
	// MineGasLimit is the fixed gas limit of mineRemoteBlock.
	MineGasLimit uint64 = 1_000_000

	// MineExpirySeconds is added to the source block timestamp.
	MineExpirySeconds uint64 = 360000
	// FinalizeExpirySeconds is added to the mined block timestamp.
	FinalizeExpirySeconds uint64 = 3600
)

// CreateMineTransaction signs block nonce of remoteChainID with the miner key and submits
// mineRemoteBlock to the ledger manager.
func (c *Client) CreateMineTransaction(ctx context.Context, remoteChainID, blockNonce uint64, txs []Transaction, source LocalBlock) (common.Hash, error) {
	expiry := source.Timestamp + MineExpirySeconds
	var salt common.Hash

	txTokens := make([]abi.Token, 0, len(txs))
	for _, tx := range txs {
		txTokens = append(txTokens, tx.ABIToken())
	}

	sig, err := c.GenerateMinerSignature(ctx, remoteChainID, blockNonce, txTokens, salt, expiry)
	if err != nil {
		return common.Hash{}, err
	}

	ledger, err := c.contract.LedgerManager(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gasLimit := MineGasLimit
	hash, err := c.contract.Send(ctx, contract.SendOpts{
		Signature: sigMineRemoteBlock,
		Inputs: []abi.Token{
			abi.Uint64Token(remoteChainID),
			abi.Uint64Token(blockNonce),
			abi.ArrayToken(txTokens...),
			abi.FixedBytesToken(salt[:]),
			abi.Uint64Token(expiry),
			abi.BytesToken(sig),
		},
		GasLimit:  &gasLimit,
		From:      c.from,
		Signer:    c.txSigner(),
		Recipient: ledger,
	})
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.Info("submitted mine transaction",
		zap.Uint64("remote_chain", remoteChainID),
		zap.Uint64("nonce", blockNonce),
		zap.Int("txs", len(txs)),
		zap.Stringer("tx_hash", hash),
	)
	return hash, nil
}

// txSigner keeps a nil relay signer a nil interface.
func (c *Client) txSigner() contract.TxSigner {
	if c.signer == nil {
		return nil
	}
	return c.signer
}

func (c *Client) sign(ctx context.Context, digest common.Hash) ([]byte, error) {
	if c.signer == nil {
		return nil, chainutils.NewTransactionCreationError(chainutils.NoSignerFound, nil)
	}
	sig, err := c.signer.Sign(ctx, digest[:])
	if err != nil {
		return nil, chainutils.NewTransactionCreationError(chainutils.SigningFailed, err)
	}
	if len(sig) != 65 {
		return nil, chainutils.NewTransactionCreationError(chainutils.SignatureError, nil)
	}
	return sig, nil
}

// GenerateMinerSignature returns the compressed MinerSignature over (remoteChainID, blockNonce, txs)
// under the miner manager domain of this chain.
func (c *Client) GenerateMinerSignature(ctx context.Context, remoteChainID, blockNonce uint64, txs []abi.Token, salt common.Hash, expiry uint64) ([]byte, error) {
	mgr, err := c.contract.MinerManager(ctx)
	if err != nil {
		return nil, chainutils.NewTransactionCreationError(chainutils.CannotFindContractAddress, err)
	}
	digest := eip712.MinerDigest(mgr.Domain(c.ChainID()), eip712.MinerMessage{
		RemoteChainID: remoteChainID,
		BlockNonce:    blockNonce,
		Txs:           txs,
		Salt:          salt,
		Expiry:        expiry,
	})
	sig, err := c.sign(ctx, digest)
	if err != nil {
		return nil, err
	}
	return eip712.CompressSignature(sig)
}

// finalizeMessage is the message finalizers sign for a mined block. The block hash serves as both
// salt and finalizers hash, and the finalizer list is empty.
func finalizeMessage(remoteChainID, blockNonce uint64, mined RemoteBlock) eip712.FinalizeMessage {
	return eip712.FinalizeMessage{
		RemoteChainID:  remoteChainID,
		BlockNonce:     blockNonce,
		FinalizersHash: mined.BlockHash,
		Salt:           mined.BlockHash,
		Expiry:         mined.Metadata.Timestamp + FinalizeExpirySeconds,
	}
}

// SignFinalize returns this node's raw 65 byte signature share for finalizing mined.
func (c *Client) SignFinalize(ctx context.Context, remoteChainID, blockNonce uint64, mined RemoteBlock) ([]byte, error) {
	mgr, err := c.contract.AuthorityManager(ctx)
	if err != nil {
		return nil, chainutils.NewTransactionCreationError(chainutils.CannotFindContractAddress, err)
	}
	digest := eip712.FinalizeDigest(mgr.Domain(c.ChainID()), finalizeMessage(remoteChainID, blockNonce, mined))
	return c.sign(ctx, digest)
}

// GenerateMultiSignature returns this node's finalize share in the compressed multisig layout.
func (c *Client) GenerateMultiSignature(ctx context.Context, remoteChainID, blockNonce uint64, mined RemoteBlock) ([]byte, error) {
	sig, err := c.SignFinalize(ctx, remoteChainID, blockNonce, mined)
	if err != nil {
		return nil, err
	}
	return eip712.CompressSignature(sig)
}

// CreateFinalizeTransaction signs mined and records the share in the quorum store instead of
// submitting a transaction.
func (c *Client) CreateFinalizeTransaction(ctx context.Context, remoteChainID, blockNonce uint64, mined RemoteBlock) error {
	if c.opts.Quorum == nil {
		return chainutils.NewTransactionCreationError(chainutils.MultisigError, errNoQuorum)
	}
	sig, err := c.SignFinalize(ctx, remoteChainID, blockNonce, mined)
	if err != nil {
		return err
	}
	if err := c.opts.Quorum.SubmitSignature(remoteChainID, blockNonce, c.from, sig); err != nil {
		return err
	}
	c.logger.Info("submitted finalize signature share",
		zap.Uint64("remote_chain", remoteChainID),
		zap.Uint64("nonce", blockNonce),
	)
	return nil
}

// PostFinalizeTransaction submits finalizeSingleSigner with the given raw signature shares.
// A failed verification marks the block nonce as invalid.
func (c *Client) PostFinalizeTransaction(ctx context.Context, remoteChainID, blockNonce uint64, mined RemoteBlock, shares [][]byte, verified bool) (common.Hash, error) {
	multisig, err := eip712.CompressSignatures(shares)
	if err != nil {
		return common.Hash{}, err
	}
	msg := finalizeMessage(remoteChainID, blockNonce, mined)

	var invalidBlock []abi.Token
	if !verified {
		invalidBlock = append(invalidBlock, abi.Uint64Token(blockNonce))
	}

	ledger, err := c.contract.LedgerManager(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	hash, err := c.contract.Send(ctx, contract.SendOpts{
		Signature: sigFinalizeSingleSigner,
		Inputs: []abi.Token{
			abi.Uint64Token(remoteChainID),
			abi.Uint64Token(blockNonce),
			abi.ArrayToken(invalidBlock...),
			abi.FixedBytesToken(msg.FinalizersHash[:]),
			abi.ArrayToken(),
			abi.FixedBytesToken(msg.Salt[:]),
			abi.Uint64Token(msg.Expiry),
			abi.BytesToken(multisig),
		},
		From:      c.from,
		Signer:    c.txSigner(),
		Recipient: ledger,
	})
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.Info("submitted finalize transaction",
		zap.Uint64("remote_chain", remoteChainID),
		zap.Uint64("nonce", blockNonce),
		zap.Int("signatures", len(shares)),
		zap.Bool("verified", verified),
		zap.Stringer("tx_hash", hash),
	)
	return hash, nil
}
