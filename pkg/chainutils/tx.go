package chainutils

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxHashToSign returns the EIP-155 signing hash of a legacy transaction.
func TxHashToSign(tx *types.LegacyTx, chainID uint64) common.Hash {
	signer := types.NewEIP155Signer(new(big.Int).SetUint64(chainID))
	return signer.Hash(types.NewTx(tx))
}

// TransactionSignature converts a 65 byte r||s||recid signature into replay protected legacy
// transaction values, with v = recid + chainID*2 + 35.
func TransactionSignature(sig []byte, chainID uint64) (v, r, s *big.Int, err error) {
	if len(sig) != 65 {
		return nil, nil, nil, NewTransactionCreationError(SignatureError, nil)
	}
	recid := sig[64]
	if recid > 3 {
		return nil, nil, nil, NewTransactionCreationError(SignatureError, nil)
	}
	v = new(big.Int).SetUint64(chainID*2 + 35 + uint64(recid))
	r = new(big.Int).SetBytes(sig[0:32])
	s = new(big.Int).SetBytes(sig[32:64])
	return v, r, s, nil
}

// SignedLegacyTransaction attaches sig to tx and returns the signed transaction.
func SignedLegacyTransaction(tx *types.LegacyTx, sig []byte, chainID uint64) (*types.Transaction, error) {
	v, r, s, err := TransactionSignature(sig, chainID)
	if err != nil {
		return nil, err
	}
	signed := *tx
	signed.V, signed.R, signed.S = v, r, s
	return types.NewTx(&signed), nil
}
