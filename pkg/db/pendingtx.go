package db

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TIMEOUT is how long, in milliseconds, a submitted transaction without a receipt stays pending.
const TIMEOUT uint64 = 3600 * 1000

const pendingTxPrefix = "quantum-portal::tx::"

var storedPendingTxTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qprelay_db_pending_tx_stored_total",
		Help: "Total number of pending relay transactions written to the database",
	}, []string{"kind"})

type PendingKind uint8

const (
	PendingNone PendingKind = iota
	PendingMine
	PendingFinalize
)

func (k PendingKind) String() string {
	switch k {
	case PendingMine:
		return "mine"
	case PendingFinalize:
		return "finalize"
	case PendingNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// PendingTransaction is a relay transaction that was submitted but whose receipt is not yet final.
// ChainID is the chain the transaction was sent to. RemoteChain is only meaningful for mine
// transactions and names the chain whose block was copied.
type PendingTransaction struct {
	Kind          PendingKind
	ChainID       uint64
	RemoteChain   uint64
	SubmittedAtMs uint64
	TxHash        common.Hash
}

func NewMineTransaction(localChain, remoteChain, submittedAtMs uint64, txHash common.Hash) *PendingTransaction {
	return &PendingTransaction{
		Kind:          PendingMine,
		ChainID:       localChain,
		RemoteChain:   remoteChain,
		SubmittedAtMs: submittedAtMs,
		TxHash:        txHash,
	}
}

func NewFinalizeTransaction(chainID, submittedAtMs uint64, txHash common.Hash) *PendingTransaction {
	return &PendingTransaction{
		Kind:          PendingFinalize,
		ChainID:       chainID,
		SubmittedAtMs: submittedAtMs,
		TxHash:        txHash,
	}
}

// TimedOut reports whether nowMs is at or past the submission time plus TIMEOUT.
func (p *PendingTransaction) TimedOut(nowMs uint64) bool {
	return nowMs >= p.SubmittedAtMs+TIMEOUT
}

func (p *PendingTransaction) String() string {
	if p.Kind == PendingMine {
		return fmt.Sprintf("%s(%d<-%d, %d, %s)", p.Kind, p.ChainID, p.RemoteChain, p.SubmittedAtMs, p.TxHash.Hex())
	}
	return fmt.Sprintf("%s(%d, %d, %s)", p.Kind, p.ChainID, p.SubmittedAtMs, p.TxHash.Hex())
}

const (
	mineTxSize     = 1 + 8 + 8 + 8 + common.HashLength
	finalizeTxSize = 1 + 8 + 8 + common.HashLength
)

// MarshalBinary encodes the transaction as a kind byte followed by its big-endian fields.
// Mine:     kind | local chain | remote chain | submitted at | tx hash
// Finalize: kind | chain | submitted at | tx hash
// None:     kind
func (p *PendingTransaction) MarshalBinary() ([]byte, error) {
	switch p.Kind {
	case PendingNone:
		return []byte{byte(PendingNone)}, nil
	case PendingMine:
		buf := make([]byte, 0, mineTxSize)
		buf = append(buf, byte(PendingMine))
		buf = binary.BigEndian.AppendUint64(buf, p.ChainID)
		buf = binary.BigEndian.AppendUint64(buf, p.RemoteChain)
		buf = binary.BigEndian.AppendUint64(buf, p.SubmittedAtMs)
		return append(buf, p.TxHash.Bytes()...), nil
	case PendingFinalize:
		buf := make([]byte, 0, finalizeTxSize)
		buf = append(buf, byte(PendingFinalize))
		buf = binary.BigEndian.AppendUint64(buf, p.ChainID)
		buf = binary.BigEndian.AppendUint64(buf, p.SubmittedAtMs)
		return append(buf, p.TxHash.Bytes()...), nil
	default:
		return nil, fmt.Errorf("%w: unknown pending transaction kind %d", ErrMarshal, p.Kind)
	}
}

func (p *PendingTransaction) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return ErrInputSize{Msg: "pending transaction is empty", Want: 1, Got: 0}
	}

	kind := PendingKind(data[0])
	switch kind {
	case PendingNone:
		if len(data) != 1 {
			return ErrInputSize{Msg: "none pending transaction", Want: 1, Got: len(data)}
		}
		*p = PendingTransaction{}
	case PendingMine:
		if len(data) != mineTxSize {
			return ErrInputSize{Msg: "mine pending transaction", Want: mineTxSize, Got: len(data)}
		}
		*p = PendingTransaction{
			Kind:          PendingMine,
			ChainID:       binary.BigEndian.Uint64(data[1:9]),
			RemoteChain:   binary.BigEndian.Uint64(data[9:17]),
			SubmittedAtMs: binary.BigEndian.Uint64(data[17:25]),
			TxHash:        common.BytesToHash(data[25:]),
		}
	case PendingFinalize:
		if len(data) != finalizeTxSize {
			return ErrInputSize{Msg: "finalize pending transaction", Want: finalizeTxSize, Got: len(data)}
		}
		*p = PendingTransaction{
			Kind:          PendingFinalize,
			ChainID:       binary.BigEndian.Uint64(data[1:9]),
			SubmittedAtMs: binary.BigEndian.Uint64(data[9:17]),
			TxHash:        common.BytesToHash(data[17:]),
		}
	default:
		return fmt.Errorf("%w: unknown pending transaction kind %d", ErrUnmarshal, data[0])
	}
	return nil
}

// PendingTxKey returns quantum-portal::tx::<hex of the big-endian chain id>.
func PendingTxKey(chainID uint64) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], chainID)
	return fmt.Appendf(nil, "%s%s", pendingTxPrefix, hex.EncodeToString(be[:]))
}

// PendingTransaction returns the transaction stored in the slot of chainID, or nil when the slot
// is empty. A stored None entry is reported as an empty slot.
func (d *Database) PendingTransaction(chainID uint64) (*PendingTransaction, error) {
	key := PendingTxKey(chainID)
	b, err := d.get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &DBError{Op: OpRead, Key: key, Err: err}
	}

	var tx PendingTransaction
	if err := tx.UnmarshalBinary(b); err != nil {
		return nil, &DBError{Op: OpRead, Key: key, Err: errors.Join(ErrUnmarshal, err)}
	}
	if tx.Kind == PendingNone {
		return nil, nil
	}
	return &tx, nil
}

// StorePendingTransaction writes tx into the slot of tx.ChainID, replacing whatever was there.
func (d *Database) StorePendingTransaction(tx *PendingTransaction) error {
	if tx == nil || tx.Kind == PendingNone {
		return fmt.Errorf("%w: cannot store an empty pending transaction", ErrMarshal)
	}
	b, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	if err := d.update(PendingTxKey(tx.ChainID), b); err != nil {
		return err
	}
	storedPendingTxTotal.WithLabelValues(tx.Kind.String()).Inc()
	return nil
}

// ClearPendingTransaction empties the slot of chainID. Clearing an empty slot is not an error.
func (d *Database) ClearPendingTransaction(chainID uint64) error {
	return d.deleteEntry(PendingTxKey(chainID))
}
