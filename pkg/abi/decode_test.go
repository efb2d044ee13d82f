package abi

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	require.NoError(t, err)
	return b
}

func repeatedAddress(b byte) Token {
	return AddressToken(common.BytesToAddress(bytes.Repeat([]byte{b}, 20)))
}

func repeatedUint(b byte) Token {
	return UintToken(new(uint256.Int).SetBytes32(bytes.Repeat([]byte{b}, 32)))
}

func TestDecodeFromEmptyByteSlice(t *testing.T) {
	invalid := []ParamKind{
		TypeAddress,
		TypeBytes,
		TypeInt(0),
		TypeInt(1),
		TypeBool,
		TypeString,
		TypeArray(TypeBool),
		TypeFixedBytes(1),
		TypeFixedArray(TypeBool, 1),
	}
	for _, p := range invalid {
		t.Run(p.String(), func(t *testing.T) {
			_, err := Decode([]ParamKind{p}, []byte{})
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}

	tokens, err := Decode([]ParamKind{TypeFixedBytes(0)}, []byte{})
	require.NoError(t, err)
	assert.Equal(t, []Token{FixedBytesToken([]byte{})}, tokens)

	tokens, err = Decode([]ParamKind{TypeFixedArray(TypeBool, 0)}, []byte{})
	require.NoError(t, err)
	assert.Equal(t, []Token{FixedArrayToken()}, tokens)
}

func TestDecodeStaticTupleOfAddressesAndUints(t *testing.T) {
	encoded := mustHex(t, `
		0000000000000000000000001111111111111111111111111111111111111111
		0000000000000000000000002222222222222222222222222222222222222222
		1111111111111111111111111111111111111111111111111111111111111111`)

	decoded, err := Decode([]ParamKind{TypeTuple(TypeAddress, TypeAddress, TypeUint(32))}, encoded)
	require.NoError(t, err)
	assert.Equal(t, []Token{TupleToken(repeatedAddress(0x11), repeatedAddress(0x22), repeatedUint(0x11))}, decoded)
}

func TestDecodeDynamicTuple(t *testing.T) {
	encoded := mustHex(t, `
		0000000000000000000000000000000000000000000000000000000000000020
		0000000000000000000000000000000000000000000000000000000000000040
		0000000000000000000000000000000000000000000000000000000000000080
		0000000000000000000000000000000000000000000000000000000000000009
		6761766f66796f726b0000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000009
		6761766f66796f726b0000000000000000000000000000000000000000000000`)

	decoded, err := Decode([]ParamKind{TypeTuple(TypeString, TypeString)}, encoded)
	require.NoError(t, err)
	assert.Equal(t, []Token{TupleToken(StringToken("gavofyork"), StringToken("gavofyork"))}, decoded)
}

func TestDecodeNestedTuple(t *testing.T) {
	encoded := mustHex(t, `
		0000000000000000000000000000000000000000000000000000000000000020
		0000000000000000000000000000000000000000000000000000000000000080
		0000000000000000000000000000000000000000000000000000000000000001
		00000000000000000000000000000000000000000000000000000000000000c0
		0000000000000000000000000000000000000000000000000000000000000100
		0000000000000000000000000000000000000000000000000000000000000004
		7465737400000000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000006
		6379626f72670000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000060
		00000000000000000000000000000000000000000000000000000000000000a0
		00000000000000000000000000000000000000000000000000000000000000e0
		0000000000000000000000000000000000000000000000000000000000000005
		6e69676874000000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000003
		6461790000000000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000040
		0000000000000000000000000000000000000000000000000000000000000080
		0000000000000000000000000000000000000000000000000000000000000004
		7765656500000000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000008
		66756e7465737473000000000000000000000000000000000000000000000000`)

	kind := TypeTuple(
		TypeString,
		TypeBool,
		TypeString,
		TypeTuple(
			TypeString,
			TypeString,
			TypeTuple(TypeString, TypeString),
		),
	)
	decoded, err := Decode([]ParamKind{kind}, encoded)
	require.NoError(t, err)

	deep := TupleToken(StringToken("weee"), StringToken("funtests"))
	inner := TupleToken(StringToken("night"), StringToken("day"), deep)
	outer := TupleToken(StringToken("test"), BoolToken(true), StringToken("cyborg"), inner)
	assert.Equal(t, []Token{outer}, decoded)
}

func TestDecodeComplexTupleOfDynamicAndStaticTypes(t *testing.T) {
	encoded := mustHex(t, `
		0000000000000000000000000000000000000000000000000000000000000020
		1111111111111111111111111111111111111111111111111111111111111111
		0000000000000000000000000000000000000000000000000000000000000080
		0000000000000000000000001111111111111111111111111111111111111111
		0000000000000000000000002222222222222222222222222222222222222222
		0000000000000000000000000000000000000000000000000000000000000009
		6761766f66796f726b0000000000000000000000000000000000000000000000`)

	decoded, err := Decode([]ParamKind{TypeTuple(TypeUint(32), TypeString, TypeAddress, TypeAddress)}, encoded)
	require.NoError(t, err)
	expected := TupleToken(repeatedUint(0x11), StringToken("gavofyork"), repeatedAddress(0x11), repeatedAddress(0x22))
	assert.Equal(t, []Token{expected}, decoded)
}

func TestDecodeParamsContainingDynamicTuple(t *testing.T) {
	encoded := mustHex(t, `
		0000000000000000000000002222222222222222222222222222222222222222
		00000000000000000000000000000000000000000000000000000000000000a0
		0000000000000000000000003333333333333333333333333333333333333333
		0000000000000000000000004444444444444444444444444444444444444444
		0000000000000000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000001
		0000000000000000000000000000000000000000000000000000000000000060
		00000000000000000000000000000000000000000000000000000000000000a0
		0000000000000000000000000000000000000000000000000000000000000009
		7370616365736869700000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000006
		6379626f72670000000000000000000000000000000000000000000000000000`)

	types := []ParamKind{
		TypeAddress,
		TypeTuple(TypeBool, TypeString, TypeString),
		TypeAddress,
		TypeAddress,
		TypeBool,
	}
	decoded, err := Decode(types, encoded)
	require.NoError(t, err)

	expected := []Token{
		repeatedAddress(0x22),
		TupleToken(BoolToken(true), StringToken("spaceship"), StringToken("cyborg")),
		repeatedAddress(0x33),
		repeatedAddress(0x44),
		BoolToken(false),
	}
	assert.Equal(t, expected, decoded)
}

func TestDecodeParamsContainingStaticTuple(t *testing.T) {
	encoded := mustHex(t, `
		0000000000000000000000001111111111111111111111111111111111111111
		0000000000000000000000002222222222222222222222222222222222222222
		0000000000000000000000000000000000000000000000000000000000000001
		0000000000000000000000000000000000000000000000000000000000000000
		0000000000000000000000003333333333333333333333333333333333333333
		0000000000000000000000004444444444444444444444444444444444444444`)

	types := []ParamKind{
		TypeAddress,
		TypeTuple(TypeAddress, TypeBool, TypeBool),
		TypeAddress,
		TypeAddress,
	}
	decoded, err := Decode(types, encoded)
	require.NoError(t, err)

	expected := []Token{
		repeatedAddress(0x11),
		TupleToken(repeatedAddress(0x22), BoolToken(true), BoolToken(false)),
		repeatedAddress(0x33),
		repeatedAddress(0x44),
	}
	assert.Equal(t, expected, decoded)
}

func TestDecodeFixedArrayOfStrings(t *testing.T) {
	// word 0: tail offset of the array, words 1-2: offsets of the strings, then length/value pairs.
	encoded := mustHex(t, `
		0000000000000000000000000000000000000000000000000000000000000020
		0000000000000000000000000000000000000000000000000000000000000040
		0000000000000000000000000000000000000000000000000000000000000080
		0000000000000000000000000000000000000000000000000000000000000003
		666f6f0000000000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000003
		6261720000000000000000000000000000000000000000000000000000000000`)

	decoded, err := Decode([]ParamKind{TypeFixedArray(TypeString, 2)}, encoded)
	require.NoError(t, err)
	assert.Equal(t, []Token{FixedArrayToken(StringToken("foo"), StringToken("bar"))}, decoded)
}

func TestDecodeAfterFixedBytesWithLessThan32Bytes(t *testing.T) {
	encoded := mustHex(t, `
		0000000000000000000000008497afefdc5ac170a664a231f6efb25526ef813f
		0000000000000000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000000
		0000000000000000000000000000000000000000000000000000000000000080
		000000000000000000000000000000000000000000000000000000000000000a
		3078303030303030314600000000000000000000000000000000000000000000`)

	decoded, err := Decode([]ParamKind{TypeAddress, TypeFixedBytes(32), TypeFixedBytes(4), TypeString}, encoded)
	require.NoError(t, err)

	expected := []Token{
		AddressToken(common.HexToAddress("0x8497afefdc5ac170a664a231f6efb25526ef813f")),
		FixedBytesToken(make([]byte, 32)),
		FixedBytesToken(make([]byte, 4)),
		StringToken("0x0000001F"),
	}
	assert.Equal(t, expected, decoded)
}

func TestDecodeInvalidData(t *testing.T) {
	tests := []struct {
		label string
		types []ParamKind
		data  string
	}{
		{
			label: "Misaligned",
			types: []ParamKind{TypeUint(256)},
			data:  "0001",
		},
		{
			label: "BoolPadding",
			types: []ParamKind{TypeBool},
			data:  "0100000000000000000000000000000000000000000000000000000000000001",
		},
		{
			label: "OffsetHighBytes",
			types: []ParamKind{TypeBytes},
			data:  "0100000000000000000000000000000000000000000000000000000000000020",
		},
		{
			label: "OffsetOutOfBounds",
			types: []ParamKind{TypeString},
			data:  "0000000000000000000000000000000000000000000000000000000000000400",
		},
		{
			label: "TruncatedPayload",
			types: []ParamKind{TypeBytes},
			data: "0000000000000000000000000000000000000000000000000000000000000020" +
				"0000000000000000000000000000000000000000000000000000000000000040",
		},
		{
			label: "MissingSecondParam",
			types: []ParamKind{TypeAddress, TypeAddress},
			data:  "0000000000000000000000001111111111111111111111111111111111111111",
		},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			_, err := Decode(tc.types, mustHex(t, tc.data))
			assert.ErrorIs(t, err, ErrInvalidData)
		})
	}
}
