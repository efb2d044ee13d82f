package qpclient

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/holiman/uint256"
)

var (
	localBlockComponents = []abi.ParamKind{abi.TypeUint(256), abi.TypeUint(256), abi.TypeUint(256)}
	localBlockTuple      = abi.TypeTuple(localBlockComponents...)

	minedBlockTuple = abi.TypeTuple(
		abi.TypeFixedBytes(32), // blockHash
		abi.TypeAddress,        // miner
		abi.TypeUint(256),      // invalidBlock
		abi.TypeUint(256),      // stake
		abi.TypeUint(256),      // totalValue
		localBlockTuple,        // blockMetadata
	)

	remoteTransactionTuple = abi.TypeTuple(
		abi.TypeUint(256),            // timestamp
		abi.TypeAddress,              // remoteContract
		abi.TypeAddress,              // sourceMsgSender
		abi.TypeAddress,              // sourceBeneficiary
		abi.TypeAddress,              // token
		abi.TypeUint(256),            // amount
		abi.TypeArray(abi.TypeBytes), // method
		abi.TypeUint(256),            // gas
		abi.TypeUint(256),            // fixedFee
	)
)

func badData(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", chainutils.ErrBadRemoteData, fmt.Sprintf(format, args...))
}

func toU64(t abi.Token, field string) (uint64, error) {
	v, ok := t.ToUint()
	if !ok {
		return 0, badData("%s is not a uint", field)
	}
	if !v.IsUint64() {
		return 0, badData("%s overflows uint64", field)
	}
	return v.Uint64(), nil
}

func toU256(t abi.Token, field string) (uint256.Int, error) {
	v, ok := t.ToUint()
	if !ok {
		return uint256.Int{}, badData("%s is not a uint", field)
	}
	return *v, nil
}

// decodeLocalBlock decodes the (uint256,uint256,uint256) result of the block metadata getters.
func decodeLocalBlock(data []byte) (LocalBlock, error) {
	tokens, err := abi.Decode(localBlockComponents, data)
	if err != nil {
		return LocalBlock{}, fmt.Errorf("failed to decode local block: %w", err)
	}
	return localBlockFromTokens(tokens)
}

func localBlockFromTokens(tokens []abi.Token) (LocalBlock, error) {
	if len(tokens) != 3 {
		return LocalBlock{}, badData("local block has %d fields", len(tokens))
	}
	chainID, err := toU64(tokens[0], "chainId")
	if err != nil {
		return LocalBlock{}, err
	}
	nonce, err := toU64(tokens[1], "nonce")
	if err != nil {
		return LocalBlock{}, err
	}
	timestamp, err := toU64(tokens[2], "timestamp")
	if err != nil {
		return LocalBlock{}, err
	}
	return LocalBlock{ChainID: chainID, Nonce: nonce, Timestamp: timestamp}, nil
}

func localBlockFromTuple(t abi.Token) (LocalBlock, error) {
	fields, ok := t.ToTuple()
	if !ok {
		return LocalBlock{}, badData("local block is not a tuple")
	}
	return localBlockFromTokens(fields)
}

func minedBlockFromTuple(t abi.Token) (RemoteBlock, error) {
	fields, ok := t.ToTuple()
	if !ok || len(fields) != 6 {
		return RemoteBlock{}, badData("mined block is not a 6 field tuple")
	}
	hash, ok := fields[0].ToFixedBytes()
	if !ok || len(hash) != 32 {
		return RemoteBlock{}, badData("mined block hash")
	}
	miner, ok := fields[1].ToAddress()
	if !ok {
		return RemoteBlock{}, badData("mined block miner")
	}
	invalid, err := toU256(fields[2], "invalidBlock")
	if err != nil {
		return RemoteBlock{}, err
	}
	stake, err := toU256(fields[3], "stake")
	if err != nil {
		return RemoteBlock{}, err
	}
	total, err := toU256(fields[4], "totalValue")
	if err != nil {
		return RemoteBlock{}, err
	}
	meta, err := localBlockFromTuple(fields[5])
	if err != nil {
		return RemoteBlock{}, err
	}
	b := RemoteBlock{Miner: miner, InvalidBlock: invalid, Stake: stake, TotalValue: total, Metadata: meta}
	copy(b.BlockHash[:], hash)
	return b, nil
}

func transactionFromTuple(t abi.Token) (Transaction, error) {
	f, ok := t.ToTuple()
	if !ok || len(f) != 9 {
		return Transaction{}, badData("remote transaction is not a 9 field tuple")
	}
	var tx Transaction
	var err error
	if tx.Timestamp, err = toU64(f[0], "timestamp"); err != nil {
		return Transaction{}, err
	}
	addrs := []*common.Address{&tx.RemoteContract, &tx.SourceMsgSender, &tx.SourceBeneficiary, &tx.Token}
	for i, dst := range addrs {
		a, ok := f[1+i].ToAddress()
		if !ok {
			return Transaction{}, badData("remote transaction field %d is not an address", 1+i)
		}
		*dst = a
	}
	if tx.Amount, err = toU256(f[5], "amount"); err != nil {
		return Transaction{}, err
	}
	methods, ok := f[6].ToArray()
	if !ok || len(methods) > 1 {
		return Transaction{}, badData("remote transaction method must hold at most one bytes value")
	}
	tx.Method = []byte{}
	if len(methods) == 1 {
		m, ok := methods[0].ToBytes()
		if !ok {
			return Transaction{}, badData("remote transaction method is not bytes")
		}
		tx.Method = m
	}
	if tx.Gas, err = toU64(f[7], "gas"); err != nil {
		return Transaction{}, err
	}
	if tx.FixedFee, err = toU256(f[8], "fixedFee"); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// decodeBlockAndTxs decodes (blockTuple, RemoteTransaction[]).
func decodeBlockAndTxs(data []byte, blockTuple abi.ParamKind) (abi.Token, []Transaction, error) {
	tokens, err := abi.Decode([]abi.ParamKind{blockTuple, abi.TypeArray(remoteTransactionTuple)}, data)
	if err != nil {
		return abi.Token{}, nil, fmt.Errorf("failed to decode block: %w", err)
	}
	if len(tokens) != 2 {
		return abi.Token{}, nil, badData("block result has %d values", len(tokens))
	}
	elems, ok := tokens[1].ToArray()
	if !ok {
		return abi.Token{}, nil, badData("block transactions are not an array")
	}
	txs := make([]Transaction, 0, len(elems))
	for i, e := range elems {
		tx, err := transactionFromTuple(e)
		if err != nil {
			return abi.Token{}, nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return tokens[0], txs, nil
}
