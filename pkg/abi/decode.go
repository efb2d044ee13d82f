package abi

import (
	"github.com/ethereum/go-ethereum/common"
)

type word = [WordSize]byte

// Decode decodes ABI encoded data into tokens described by types.
//
// Decoding walks one flat word buffer. Dynamic values are reached through offset
// words that are relative to the start of the enclosing tuple, so nested calls only
// carry a base index instead of copying sub-slices.
func Decode(types []ParamKind, data []byte) ([]Token, error) {
	if len(data) == 0 {
		for _, t := range types {
			if !t.emptyEncodingValid() {
				return nil, ErrInvalidName
			}
		}
	}

	words, err := sliceData(data)
	if err != nil {
		return nil, err
	}

	tokens := make([]Token, 0, len(types))
	offset := 0
	for _, t := range types {
		tok, next, err := decodeParam(t, words, 0, offset)
		if err != nil {
			return nil, err
		}
		offset = next
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func sliceData(data []byte) ([]word, error) {
	if len(data)%WordSize != 0 {
		return nil, ErrInvalidData
	}
	words := make([]word, len(data)/WordSize)
	for i := range words {
		copy(words[i][:], data[i*WordSize:(i+1)*WordSize])
	}
	return words, nil
}

func peek(words []word, pos int) (*word, error) {
	if pos < 0 || pos >= len(words) {
		return nil, ErrInvalidData
	}
	return &words[pos], nil
}

// asU32 reads an offset or length word. Everything above the low four bytes must be zero.
func asU32(w *word) (int, error) {
	for _, b := range w[:28] {
		if b != 0 {
			return 0, ErrInvalidData
		}
	}
	v := uint32(w[28])<<24 | uint32(w[29])<<16 | uint32(w[30])<<8 | uint32(w[31])
	return int(v), nil
}

func asBool(w *word) (bool, error) {
	for _, b := range w[:31] {
		if b != 0 {
			return false, ErrInvalidData
		}
	}
	return w[31] == 1, nil
}

// takeBytes copies length bytes starting at word pos and returns the index of the next word.
func takeBytes(words []word, pos int, length int) ([]byte, int, error) {
	n := (length + WordSize - 1) / WordSize
	if pos < 0 || pos+n > len(words) {
		return nil, 0, ErrInvalidData
	}
	out := make([]byte, 0, n*WordSize)
	for i := 0; i < n; i++ {
		out = append(out, words[pos+i][:]...)
	}
	return out[:length], pos + n, nil
}

// readTail follows the offset word at base+offset and returns the absolute index it points to.
func readTail(words []word, base, offset int) (int, error) {
	w, err := peek(words, base+offset)
	if err != nil {
		return 0, err
	}
	rel, err := asU32(w)
	if err != nil {
		return 0, err
	}
	tail := base + rel/WordSize
	if tail > len(words) {
		return 0, ErrInvalidData
	}
	return tail, nil
}

// decodeParam decodes one value whose head sits at words[base+offset]. It returns the token
// and the offset, relative to base, at which the next sibling's head starts.
func decodeParam(p ParamKind, words []word, base, offset int) (Token, int, error) {
	switch p.Kind {
	case KindAddress:
		w, err := peek(words, base+offset)
		if err != nil {
			return Token{}, 0, err
		}
		return AddressToken(common.BytesToAddress(w[12:])), offset + 1, nil

	case KindInt, KindUint:
		w, err := peek(words, base+offset)
		if err != nil {
			return Token{}, 0, err
		}
		tok := Token{Kind: p.Kind}
		tok.Number.SetBytes32(w[:])
		return tok, offset + 1, nil

	case KindBool:
		w, err := peek(words, base+offset)
		if err != nil {
			return Token{}, 0, err
		}
		b, err := asBool(w)
		if err != nil {
			return Token{}, 0, err
		}
		return BoolToken(b), offset + 1, nil

	case KindFixedBytes:
		// bytes1..bytes32 are right padded with zeros to a full word.
		b, next, err := takeBytes(words, base+offset, p.Size)
		if err != nil {
			return Token{}, 0, err
		}
		return FixedBytesToken(b), next - base, nil

	case KindBytes, KindString:
		lenPos, err := readTail(words, base, offset)
		if err != nil {
			return Token{}, 0, err
		}
		lw, err := peek(words, lenPos)
		if err != nil {
			return Token{}, 0, err
		}
		length, err := asU32(lw)
		if err != nil {
			return Token{}, 0, err
		}
		b, _, err := takeBytes(words, lenPos+1, length)
		if err != nil {
			return Token{}, 0, err
		}
		return Token{Kind: p.Kind, Data: b}, offset + 1, nil

	case KindArray:
		lenPos, err := readTail(words, base, offset)
		if err != nil {
			return Token{}, 0, err
		}
		lw, err := peek(words, lenPos)
		if err != nil {
			return Token{}, 0, err
		}
		length, err := asU32(lw)
		if err != nil {
			return Token{}, 0, err
		}
		elems, _, err := decodeSequence(*p.Elem, length, words, lenPos+1, 0)
		if err != nil {
			return Token{}, 0, err
		}
		return ArrayToken(elems...), offset + 1, nil

	case KindFixedArray:
		if p.IsDynamic() {
			tail, err := readTail(words, base, offset)
			if err != nil {
				return Token{}, 0, err
			}
			elems, _, err := decodeSequence(*p.Elem, p.Size, words, tail, 0)
			if err != nil {
				return Token{}, 0, err
			}
			return FixedArrayToken(elems...), offset + 1, nil
		}
		elems, next, err := decodeSequence(*p.Elem, p.Size, words, base, offset)
		if err != nil {
			return Token{}, 0, err
		}
		return FixedArrayToken(elems...), next, nil

	case KindTuple:
		// A dynamic tuple starts with an offset word to its data, a static one is inline.
		if p.IsDynamic() {
			tail, err := readTail(words, base, offset)
			if err != nil {
				return Token{}, 0, err
			}
			elems, _, err := decodeComponents(p.Components, words, tail, 0)
			if err != nil {
				return Token{}, 0, err
			}
			return TupleToken(elems...), offset + 1, nil
		}
		elems, next, err := decodeComponents(p.Components, words, base, offset)
		if err != nil {
			return Token{}, 0, err
		}
		return TupleToken(elems...), next, nil

	default:
		return Token{}, 0, ErrInvalidData
	}
}

func decodeSequence(elem ParamKind, count int, words []word, base, offset int) ([]Token, int, error) {
	// count comes off the wire, so the allocation is bounded by what the buffer could hold.
	tokens := make([]Token, 0, min(count, len(words)))
	for i := 0; i < count; i++ {
		tok, next, err := decodeParam(elem, words, base, offset)
		if err != nil {
			return nil, 0, err
		}
		offset = next
		tokens = append(tokens, tok)
	}
	return tokens, offset, nil
}

func decodeComponents(components []ParamKind, words []word, base, offset int) ([]Token, int, error) {
	tokens := make([]Token, 0, len(components))
	for _, c := range components {
		tok, next, err := decodeParam(c, words, base, offset)
		if err != nil {
			return nil, 0, err
		}
		offset = next
		tokens = append(tokens, tok)
	}
	return tokens, offset, nil
}
