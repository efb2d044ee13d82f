package chainutils

import (
	"errors"
	"fmt"
)

var (
	ErrConversion              = errors.New("conversion error")
	ErrGettingJsonRpcResponse  = errors.New("error getting json-rpc response")
	ErrBadRemoteData           = errors.New("bad remote data")
	ErrRemoteBlockAlreadyMined = errors.New("remote block already mined")
	ErrInvalidHexCharacter     = errors.New("invalid hex character")
	ErrSlotNotAvailable        = errors.New("mining slot is not assigned to this signer")
)

// JsonRpcError is an error object returned by the remote node.
type JsonRpcError struct {
	Code    int64
	Message string
}

func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// RequestError refines ErrGettingJsonRpcResponse with the failing stage. It matches
// ErrGettingJsonRpcResponse under errors.Is.
type RequestError struct {
	Stage string
	Err   error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrGettingJsonRpcResponse, e.Stage)
	}
	return fmt.Sprintf("%s: %s: %v", ErrGettingJsonRpcResponse, e.Stage, e.Err)
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGettingJsonRpcResponse}
	}
	return []error{ErrGettingJsonRpcResponse, e.Err}
}

type TransactionCreationKind int

const (
	NoSignerFound TransactionCreationKind = iota + 1
	SigningFailed
	SignatureError
	MultisigError
	CannotFindContractAddress
)

func (k TransactionCreationKind) String() string {
	switch k {
	case NoSignerFound:
		return "no signer found"
	case SigningFailed:
		return "signing failed"
	case SignatureError:
		return "signature error"
	case MultisigError:
		return "multisig error"
	case CannotFindContractAddress:
		return "cannot find contract address"
	default:
		return "unknown"
	}
}

// TransactionCreationError reports a failure while building or signing a transaction.
type TransactionCreationError struct {
	Kind TransactionCreationKind
	Err  error
}

func NewTransactionCreationError(kind TransactionCreationKind, err error) *TransactionCreationError {
	return &TransactionCreationError{Kind: kind, Err: err}
}

func (e *TransactionCreationError) Error() string {
	if e.Err == nil {
		return "error creating transaction: " + e.Kind.String()
	}
	return fmt.Sprintf("error creating transaction: %s: %v", e.Kind, e.Err)
}

func (e *TransactionCreationError) Unwrap() error {
	return e.Err
}

// Is matches any *TransactionCreationError of the same kind.
func (e *TransactionCreationError) Is(target error) bool {
	t, ok := target.(*TransactionCreationError)
	return ok && t.Kind == e.Kind
}
