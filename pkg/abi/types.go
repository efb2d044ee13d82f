// Package abi implements the subset of the Solidity contract ABI that the
// Quantum Portal contracts speak: static words, dynamic bytes and strings,
// arrays, fixed arrays and (possibly nested) tuples.
package abi

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidData is returned when the input is truncated, misaligned or carries
	// non-zero padding where zeros are required.
	ErrInvalidData = errors.New("abi: invalid data")
	// ErrInvalidName is returned when decoding empty input into types that cannot be
	// encoded as zero bytes.
	ErrInvalidName = errors.New("abi: invalid name")
)

// WordSize is the width of a single ABI slot.
const WordSize = 32

// Kind is the discriminator of ParamKind and Token.
type Kind uint8

const (
	KindAddress Kind = iota
	KindInt
	KindUint
	KindBool
	KindFixedBytes
	KindBytes
	KindString
	KindArray
	KindFixedArray
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindBool:
		return "bool"
	case KindFixedBytes:
		return "fixedbytes"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindFixedArray:
		return "fixedarray"
	case KindTuple:
		return "tuple"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParamKind describes the type of one ABI parameter.
//
// Size holds the bit width for Int/Uint and the length for FixedBytes/FixedArray.
// Elem is set for Array and FixedArray, Components for Tuple.
type ParamKind struct {
	Kind       Kind
	Size       int
	Elem       *ParamKind
	Components []ParamKind
}

var (
	TypeAddress = ParamKind{Kind: KindAddress}
	TypeBool    = ParamKind{Kind: KindBool}
	TypeBytes   = ParamKind{Kind: KindBytes}
	TypeString  = ParamKind{Kind: KindString}
)

func TypeUint(bits int) ParamKind { return ParamKind{Kind: KindUint, Size: bits} }

func TypeInt(bits int) ParamKind { return ParamKind{Kind: KindInt, Size: bits} }

func TypeFixedBytes(length int) ParamKind { return ParamKind{Kind: KindFixedBytes, Size: length} }

func TypeArray(elem ParamKind) ParamKind { return ParamKind{Kind: KindArray, Elem: &elem} }

func TypeFixedArray(elem ParamKind, length int) ParamKind {
	return ParamKind{Kind: KindFixedArray, Elem: &elem, Size: length}
}

func TypeTuple(components ...ParamKind) ParamKind {
	return ParamKind{Kind: KindTuple, Components: components}
}

// IsDynamic reports whether values of this type are tail-encoded behind an offset word.
func (p ParamKind) IsDynamic() bool {
	switch p.Kind {
	case KindBytes, KindString, KindArray:
		return true
	case KindFixedArray:
		return p.Elem.IsDynamic()
	case KindTuple:
		for _, c := range p.Components {
			if c.IsDynamic() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// emptyEncodingValid is true for the only types that occupy zero bytes on the wire.
func (p ParamKind) emptyEncodingValid() bool {
	switch p.Kind {
	case KindFixedBytes, KindFixedArray:
		return p.Size == 0
	default:
		return false
	}
}

// String renders the canonical Solidity type name, as used in function signatures.
func (p ParamKind) String() string {
	switch p.Kind {
	case KindAddress:
		return "address"
	case KindInt:
		return fmt.Sprintf("int%d", p.Size)
	case KindUint:
		return fmt.Sprintf("uint%d", p.Size)
	case KindBool:
		return "bool"
	case KindFixedBytes:
		return fmt.Sprintf("bytes%d", p.Size)
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindArray:
		return p.Elem.String() + "[]"
	case KindFixedArray:
		return fmt.Sprintf("%s[%d]", p.Elem.String(), p.Size)
	case KindTuple:
		parts := make([]string, len(p.Components))
		for i, c := range p.Components {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return p.Kind.String()
	}
}

// Signature builds the canonical function signature for name and types, e.g. "transfer(address,uint256)".
func Signature(name string, types ...ParamKind) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}
