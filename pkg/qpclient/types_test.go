package qpclient

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTx(ts uint64, method []byte) Transaction {
	return Transaction{
		Timestamp:         ts,
		RemoteContract:    common.HexToAddress("0x01"),
		SourceMsgSender:   common.HexToAddress("0x02"),
		SourceBeneficiary: common.HexToAddress("0x03"),
		Token:             common.HexToAddress("0x04"),
		Amount:            *uint256.NewInt(ts * 10),
		Method:            method,
		Gas:               ts + 1,
		FixedFee:          *uint256.NewInt(3),
	}
}

func TestLocalBlockHash(t *testing.T) {
	b := LocalBlock{ChainID: 97, Nonce: 12, Timestamp: 1_700_000_000}

	buf := make([]byte, 96)
	new(uint256.Int).SetUint64(b.ChainID).WriteToSlice(buf[0:32])
	new(uint256.Int).SetUint64(b.Nonce).WriteToSlice(buf[32:64])
	new(uint256.Int).SetUint64(b.Timestamp).WriteToSlice(buf[64:96])
	assert.Equal(t, ethcrypto.Keccak256Hash(buf), b.Hash())

	other := b
	other.Nonce++
	assert.NotEqual(t, b.Hash(), other.Hash())
}

func TestCompareAndVerifyMinedBlock(t *testing.T) {
	a := testTx(1, []byte{0x01})
	b := testTx(2, []byte{})
	altered := a
	altered.Method = []byte{0x02}

	tests := []struct {
		label  string
		source []Transaction
		mined  []Transaction
		want   bool
	}{
		{label: "BothEmpty", want: true},
		{label: "Identical", source: []Transaction{a, b}, mined: []Transaction{a, b}, want: true},
		{label: "Reordered", source: []Transaction{a, b}, mined: []Transaction{b, a}, want: true},
		{label: "Missing", source: []Transaction{a, b}, mined: []Transaction{a}},
		{label: "Extra", source: []Transaction{a}, mined: []Transaction{a, b}},
		{label: "Altered", source: []Transaction{a}, mined: []Transaction{altered}},
		{label: "DuplicateInsteadOfDistinct", source: []Transaction{a, b}, mined: []Transaction{a, a}},
		{label: "Duplicates", source: []Transaction{a, a}, mined: []Transaction{a, a}, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.want, CompareAndVerifyMinedBlock(tc.source, tc.mined))
		})
	}
}

func blockResult(block abi.Token, txs ...abi.Token) []byte {
	return abi.Encode([]abi.Token{block, abi.ArrayToken(txs...)})
}

func localBlockToken(chainID, nonce, ts uint64) abi.Token {
	return abi.TupleToken(abi.Uint64Token(chainID), abi.Uint64Token(nonce), abi.Uint64Token(ts))
}

func TestDecodeLocalBlockWithTxs(t *testing.T) {
	txs := []Transaction{testTx(5, []byte{0xca, 0xfe}), testTx(6, []byte{})}
	data := blockResult(localBlockToken(97, 3, 1000), txs[0].ABIToken(), txs[1].ABIToken())

	blockTok, decoded, err := decodeBlockAndTxs(data, localBlockTuple)
	require.NoError(t, err)
	block, err := localBlockFromTuple(blockTok)
	require.NoError(t, err)
	assert.Equal(t, LocalBlock{ChainID: 97, Nonce: 3, Timestamp: 1000}, block)
	require.Len(t, decoded, 2)
	for i := range txs {
		assert.True(t, txs[i].Equal(decoded[i]), "tx %d", i)
	}
}

func TestDecodeMinedBlock(t *testing.T) {
	hash := common.HexToHash("0xabcdef")
	miner := common.HexToAddress("0x99")
	tok := abi.TupleToken(
		abi.FixedBytesToken(hash[:]),
		abi.AddressToken(miner),
		abi.Uint64Token(0),
		abi.Uint64Token(7),
		abi.Uint64Token(8),
		localBlockToken(97, 4, 2000),
	)

	blockTok, txs, err := decodeBlockAndTxs(blockResult(tok), minedBlockTuple)
	require.NoError(t, err)
	assert.Empty(t, txs)
	mined, err := minedBlockFromTuple(blockTok)
	require.NoError(t, err)
	assert.True(t, mined.Mined())
	assert.Equal(t, hash, mined.BlockHash)
	assert.Equal(t, miner, mined.Miner)
	assert.Equal(t, uint64(7), mined.Stake.Uint64())
	assert.Equal(t, uint64(8), mined.TotalValue.Uint64())
	assert.Equal(t, LocalBlock{ChainID: 97, Nonce: 4, Timestamp: 2000}, mined.Metadata)

	assert.False(t, RemoteBlock{}.Mined())
}

func TestDecodeMethodArray(t *testing.T) {
	base := testTx(1, nil)
	withMethods := func(methods ...abi.Token) abi.Token {
		tok := base.ABIToken()
		tok.Tokens[6] = abi.ArrayToken(methods...)
		return tok
	}

	tests := []struct {
		label   string
		tx      abi.Token
		want    []byte
		wantErr bool
	}{
		{label: "Empty", tx: withMethods(), want: []byte{}},
		{label: "One", tx: withMethods(abi.BytesToken([]byte{0x01, 0x02})), want: []byte{0x01, 0x02}},
		{label: "TooMany", tx: withMethods(abi.BytesToken([]byte{0x01}), abi.BytesToken([]byte{0x02})), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			_, txs, err := decodeBlockAndTxs(blockResult(localBlockToken(1, 1, 1), tc.tx), localBlockTuple)
			if tc.wantErr {
				assert.ErrorIs(t, err, chainutils.ErrBadRemoteData)
				return
			}
			require.NoError(t, err)
			require.Len(t, txs, 1)
			assert.Equal(t, tc.want, txs[0].Method)
		})
	}
}

func TestDecodeLocalBlockErrors(t *testing.T) {
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	overflow := abi.Encode([]abi.Token{abi.Uint64Token(1), abi.UintToken(huge), abi.Uint64Token(1)})

	_, err := decodeLocalBlock(overflow)
	assert.ErrorIs(t, err, chainutils.ErrBadRemoteData)

	_, err = decodeLocalBlock(overflow[:40])
	assert.Error(t, err)

	b, err := decodeLocalBlock(abi.Encode([]abi.Token{abi.Uint64Token(1), abi.Uint64Token(2), abi.Uint64Token(3)}))
	require.NoError(t, err)
	assert.Equal(t, LocalBlock{ChainID: 1, Nonce: 2, Timestamp: 3}, b)
}
