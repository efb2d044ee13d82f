package abi

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// Encode ABI encodes tokens as if they were the members of one top level tuple.
func Encode(tokens []Token) []byte {
	return encodeHeadTail(tokens)
}

// Selector returns the first four bytes of keccak256(signature).
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// EncodeFunction returns the call data for a function: selector followed by the encoded inputs.
func EncodeFunction(signature string, inputs []Token) []byte {
	return append(Selector(signature), Encode(inputs)...)
}

func encodeHeadTail(tokens []Token) []byte {
	heads := make([][]byte, len(tokens))
	tails := make([][]byte, len(tokens))
	headSize := 0
	for i, t := range tokens {
		if t.IsDynamic() {
			tails[i] = encodeToken(t)
			headSize += WordSize
		} else {
			heads[i] = encodeToken(t)
			headSize += len(heads[i])
		}
	}

	out := make([]byte, 0, headSize)
	tailOffset := headSize
	for i, t := range tokens {
		if t.IsDynamic() {
			out = append(out, uintWord(uint64(tailOffset))...)
			tailOffset += len(tails[i])
		} else {
			out = append(out, heads[i]...)
		}
	}
	for _, tail := range tails {
		out = append(out, tail...)
	}
	return out
}

func encodeToken(t Token) []byte {
	switch t.Kind {
	case KindAddress:
		var w word
		copy(w[12:], t.Address[:])
		return w[:]
	case KindInt, KindUint:
		w := t.Number.Bytes32()
		return w[:]
	case KindBool:
		var w word
		if t.Bool {
			w[31] = 1
		}
		return w[:]
	case KindFixedBytes:
		return padRight(t.Data)
	case KindBytes, KindString:
		return append(uintWord(uint64(len(t.Data))), padRight(t.Data)...)
	case KindArray:
		return append(uintWord(uint64(len(t.Tokens))), encodeHeadTail(t.Tokens)...)
	case KindFixedArray, KindTuple:
		return encodeHeadTail(t.Tokens)
	default:
		return nil
	}
}

func uintWord(v uint64) []byte {
	var w word
	for i := 0; i < 8; i++ {
		w[31-i] = byte(v >> (8 * i))
	}
	return w[:]
}

// padRight copies b and zero pads it to a multiple of the word size.
func padRight(b []byte) []byte {
	n := (len(b) + WordSize - 1) / WordSize * WordSize
	out := make([]byte, n)
	copy(out, b)
	return out
}
