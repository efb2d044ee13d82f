package qpclient

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/holiman/uint256"
)

// LocalBlock is the metadata of a block a chain produced for one remote chain.
type LocalBlock struct {
	ChainID   uint64
	Nonce     uint64
	Timestamp uint64
}

// Hash is keccak(abi.encode(uint256 chainId, uint256 nonce, uint256 timestamp)).
func (b LocalBlock) Hash() common.Hash {
	return chainutils.Keccak256(abi.Encode([]abi.Token{
		abi.Uint64Token(b.ChainID),
		abi.Uint64Token(b.Nonce),
		abi.Uint64Token(b.Timestamp),
	}))
}

// RemoteBlock is a block mined on this chain from a remote chain. A zero BlockHash means the
// nonce has not been mined.
type RemoteBlock struct {
	BlockHash    common.Hash
	Miner        common.Address
	InvalidBlock uint256.Int
	Stake        uint256.Int
	TotalValue   uint256.Int
	Metadata     LocalBlock
}

func (b RemoteBlock) Mined() bool {
	return b.BlockHash != (common.Hash{})
}

// Transaction is one cross-chain call carried by a block.
type Transaction struct {
	Timestamp         uint64
	RemoteContract    common.Address
	SourceMsgSender   common.Address
	SourceBeneficiary common.Address
	Token             common.Address
	Amount            uint256.Int
	Method            []byte
	Gas               uint64
	FixedFee          uint256.Int
}

func (t Transaction) Equal(o Transaction) bool {
	return t.Timestamp == o.Timestamp &&
		t.RemoteContract == o.RemoteContract &&
		t.SourceMsgSender == o.SourceMsgSender &&
		t.SourceBeneficiary == o.SourceBeneficiary &&
		t.Token == o.Token &&
		t.Amount.Eq(&o.Amount) &&
		bytes.Equal(t.Method, o.Method) &&
		t.Gas == o.Gas &&
		t.FixedFee.Eq(&o.FixedFee)
}

// ABIToken returns the mineRemoteBlock tuple of t. The method is carried as a one element bytes array.
func (t Transaction) ABIToken() abi.Token {
	return abi.TupleToken(
		abi.Uint64Token(t.Timestamp),
		abi.AddressToken(t.RemoteContract),
		abi.AddressToken(t.SourceMsgSender),
		abi.AddressToken(t.SourceBeneficiary),
		abi.AddressToken(t.Token),
		abi.UintToken(&t.Amount),
		abi.ArrayToken(abi.BytesToken(t.Method)),
		abi.Uint64Token(t.Gas),
		abi.UintToken(&t.FixedFee),
	)
}

// CompareAndVerifyMinedBlock reports whether mined carries exactly the transactions of source,
// in any order.
func CompareAndVerifyMinedBlock(source, mined []Transaction) bool {
	if len(source) != len(mined) {
		return false
	}
	used := make([]bool, len(mined))
	for _, s := range source {
		found := false
		for i, m := range mined {
			if !used[i] && s.Equal(m) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
