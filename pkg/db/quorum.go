package db

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
)

// ErrSignerNotRegistered is returned when a signature share comes from an address that is not a
// registered finalizer of the chain.
var ErrSignerNotRegistered = errors.New("signer is not a registered finalizer")

const (
	finalizersPrefix = "quantum-portal::finalizers::"
	thresholdPrefix  = "quantum-portal::threshold::"
	sigsPrefix       = "quantum-portal::sigs::"
)

// FinalizeSignature is one finalizer's share for a block.
type FinalizeSignature struct {
	Signer    common.Address
	Signature []byte
}

// QuorumDB stores the finalizer set, the threshold and the collected signature shares of every chain.
// SECURITY: concurrent SubmitSignature calls are serialized by badger transactions; callers need no extra locking.
type QuorumDB struct {
	db *badger.DB
}

func NewQuorumDB(dbConn *badger.DB) *QuorumDB {
	return &QuorumDB{db: dbConn}
}

func finalizersKey(chainID uint64) []byte {
	return fmt.Appendf(nil, "%s%d", finalizersPrefix, chainID)
}

func thresholdKey(chainID uint64) []byte {
	return fmt.Appendf(nil, "%s%d", thresholdPrefix, chainID)
}

func sigsKey(chainID, nonce uint64) []byte {
	return fmt.Appendf(nil, "%s%d::%d", sigsPrefix, chainID, nonce)
}

// txnGet returns nil, nil for a missing key.
func txnGet(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func decodeAddresses(b []byte) ([]common.Address, error) {
	if len(b)%common.AddressLength != 0 {
		return nil, ErrInputSize{Msg: "finalizer list", Want: (len(b)/common.AddressLength + 1) * common.AddressLength, Got: len(b)}
	}
	addrs := make([]common.Address, 0, len(b)/common.AddressLength)
	for i := 0; i < len(b); i += common.AddressLength {
		addrs = append(addrs, common.BytesToAddress(b[i:i+common.AddressLength]))
	}
	return addrs, nil
}

func encodeSignatures(sigs []FinalizeSignature) []byte {
	var buf []byte
	for _, s := range sigs {
		buf = append(buf, s.Signer.Bytes()...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s.Signature)))
		buf = append(buf, s.Signature...)
	}
	return buf
}

func decodeSignatures(b []byte) ([]FinalizeSignature, error) {
	var sigs []FinalizeSignature
	for len(b) > 0 {
		if len(b) < common.AddressLength+2 {
			return nil, ErrInputSize{Msg: "signature share header", Want: common.AddressLength + 2, Got: len(b)}
		}
		signer := common.BytesToAddress(b[:common.AddressLength])
		n := int(binary.BigEndian.Uint16(b[common.AddressLength : common.AddressLength+2]))
		b = b[common.AddressLength+2:]
		if len(b) < n {
			return nil, ErrInputSize{Msg: "signature share", Want: n, Got: len(b)}
		}
		sigs = append(sigs, FinalizeSignature{Signer: signer, Signature: append([]byte(nil), b[:n]...)})
		b = b[n:]
	}
	return sigs, nil
}

// RegisterFinalizer adds addr to the finalizer set of chainID. Registering an address twice is a no-op.
func (q *QuorumDB) RegisterFinalizer(chainID uint64, addr common.Address) error {
	key := finalizersKey(chainID)
	err := q.db.Update(func(txn *badger.Txn) error {
		b, err := txnGet(txn, key)
		if err != nil {
			return err
		}
		addrs, err := decodeAddresses(b)
		if err != nil {
			return err
		}
		for _, a := range addrs {
			if a == addr {
				return nil
			}
		}
		return txn.Set(key, append(b, addr.Bytes()...))
	})
	if err != nil {
		return &DBError{Op: OpUpdate, Key: key, Err: err}
	}
	return nil
}

// RegisteredFinalizers returns the finalizers of chainID in registration order.
func (q *QuorumDB) RegisteredFinalizers(chainID uint64) ([]common.Address, error) {
	key := finalizersKey(chainID)
	var addrs []common.Address
	err := q.db.View(func(txn *badger.Txn) error {
		b, err := txnGet(txn, key)
		if err != nil {
			return err
		}
		addrs, err = decodeAddresses(b)
		return err
	})
	if err != nil {
		return nil, &DBError{Op: OpRead, Key: key, Err: err}
	}
	return addrs, nil
}

func (q *QuorumDB) SetFinalizerThreshold(chainID uint64, threshold uint32) error {
	key := thresholdKey(chainID)
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, binary.BigEndian.AppendUint32(nil, threshold))
	})
	if err != nil {
		return &DBError{Op: OpUpdate, Key: key, Err: err}
	}
	return nil
}

// FinalizerThreshold returns the number of shares that must be exceeded before a finalize is
// posted with the collected signatures. It is 0 for chains without a threshold.
func (q *QuorumDB) FinalizerThreshold(chainID uint64) (uint32, error) {
	key := thresholdKey(chainID)
	var threshold uint32
	err := q.db.View(func(txn *badger.Txn) error {
		b, err := txnGet(txn, key)
		if err != nil || b == nil {
			return err
		}
		if len(b) != 4 {
			return ErrInputSize{Msg: "finalizer threshold", Want: 4, Got: len(b)}
		}
		threshold = binary.BigEndian.Uint32(b)
		return nil
	})
	if err != nil {
		return 0, &DBError{Op: OpRead, Key: key, Err: err}
	}
	return threshold, nil
}

// SubmitSignature records signer's share for block nonce of chainID. A second share from the same
// signer replaces the first.
func (q *QuorumDB) SubmitSignature(chainID, nonce uint64, signer common.Address, sig []byte) error {
	key := sigsKey(chainID, nonce)
	err := q.db.Update(func(txn *badger.Txn) error {
		fb, err := txnGet(txn, finalizersKey(chainID))
		if err != nil {
			return err
		}
		finalizers, err := decodeAddresses(fb)
		if err != nil {
			return err
		}
		registered := false
		for _, f := range finalizers {
			if f == signer {
				registered = true
				break
			}
		}
		if !registered {
			return ErrSignerNotRegistered
		}

		sb, err := txnGet(txn, key)
		if err != nil {
			return err
		}
		sigs, err := decodeSignatures(sb)
		if err != nil {
			return err
		}
		share := FinalizeSignature{Signer: signer, Signature: append([]byte(nil), sig...)}
		replaced := false
		for i := range sigs {
			if sigs[i].Signer == signer {
				sigs[i] = share
				replaced = true
			}
		}
		if !replaced {
			sigs = append(sigs, share)
		}
		return txn.Set(key, encodeSignatures(sigs))
	})
	if err != nil {
		return &DBError{Op: OpUpdate, Key: key, Err: err}
	}
	return nil
}

// PendingFinalizeSignatures returns the shares collected for block nonce of chainID in submission order.
func (q *QuorumDB) PendingFinalizeSignatures(chainID, nonce uint64) ([]FinalizeSignature, error) {
	key := sigsKey(chainID, nonce)
	var sigs []FinalizeSignature
	err := q.db.View(func(txn *badger.Txn) error {
		b, err := txnGet(txn, key)
		if err != nil {
			return err
		}
		sigs, err = decodeSignatures(b)
		return err
	})
	if err != nil {
		return nil, &DBError{Op: OpRead, Key: key, Err: err}
	}
	return sigs, nil
}

func (q *QuorumDB) ClearPendingSignatures(chainID, nonce uint64) error {
	key := sigsKey(chainID, nonce)
	if err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return &DBError{Op: OpDelete, Key: key, Err: err}
	}
	return nil
}
