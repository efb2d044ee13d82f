// Package qpclienttest simulates the quantum portal contracts of a chain on top of a fake node.
package qpclienttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/contract"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc/jsonrpctest"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/qpclient"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/relaysigner"
	"go.uber.org/zap"
)

var (
	Gateway          = common.HexToAddress("0x1000000000000000000000000000000000000001")
	LedgerManager    = common.HexToAddress("0x1000000000000000000000000000000000000002")
	MinerManager     = common.HexToAddress("0x1000000000000000000000000000000000000003")
	AuthorityManager = common.HexToAddress("0x1000000000000000000000000000000000000004")
	State            = common.HexToAddress("0x1000000000000000000000000000000000000005")
)

const (
	MinerManagerName     = "FERRUM_QUANTUM_PORTAL_MINER_MGR"
	AuthorityManagerName = "FERRUM_QUANTUM_PORTAL_AUTHORITY_MGR"
	ManagerVersion       = "000.010"
)

type blockKey struct {
	chain uint64
	nonce uint64
}

type localEntry struct {
	block qpclient.LocalBlock
	txs   []qpclient.Transaction
}

type minedEntry struct {
	block qpclient.RemoteBlock
	txs   []qpclient.Transaction
}

// Portal is the contract state of one chain. Blocks that were never added read back as zero
// values with no transactions, like unset contract storage.
type Portal struct {
	Node    *jsonrpctest.Node
	ChainID uint64
	URL     string

	mu            sync.Mutex
	ready         map[uint64]bool
	lastLocal     map[uint64]qpclient.LocalBlock
	lastMined     map[uint64]qpclient.LocalBlock
	lastFinalized map[uint64]qpclient.LocalBlock
	local         map[blockKey]localEntry
	mined         map[blockKey]minedEntry
	assignedMiner common.Address
}

func NewPortal(chainID uint64) *Portal {
	p := &Portal{
		Node:          jsonrpctest.NewNode(chainID),
		ChainID:       chainID,
		URL:           fmt.Sprintf("http://chain-%d", chainID),
		ready:         make(map[uint64]bool),
		lastLocal:     make(map[uint64]qpclient.LocalBlock),
		lastMined:     make(map[uint64]qpclient.LocalBlock),
		lastFinalized: make(map[uint64]qpclient.LocalBlock),
		local:         make(map[blockKey]localEntry),
		mined:         make(map[blockKey]minedEntry),
	}

	n := p.Node
	n.SetCallResult(Gateway, "quantumPortalLedgerMgr()", encode(abi.AddressToken(LedgerManager)))
	n.SetCallResult(LedgerManager, "minerMgr()", encode(abi.AddressToken(MinerManager)))
	n.SetCallResult(LedgerManager, "authorityMgr()", encode(abi.AddressToken(AuthorityManager)))
	n.SetCallResult(LedgerManager, "state()", encode(abi.AddressToken(State)))
	n.SetCallResult(MinerManager, "NAME()", encode(abi.StringToken(MinerManagerName)))
	n.SetCallResult(MinerManager, "VERSION()", encode(abi.StringToken(ManagerVersion)))
	n.SetCallResult(AuthorityManager, "NAME()", encode(abi.StringToken(AuthorityManagerName)))
	n.SetCallResult(AuthorityManager, "VERSION()", encode(abi.StringToken(ManagerVersion)))

	n.HandleCall(LedgerManager, "isLocalBlockReady(uint64)", p.chainArg(func(chain uint64) []byte {
		v := uint64(0)
		if p.ready[chain] {
			v = 1
		}
		return encode(abi.Uint64Token(v))
	}))
	n.HandleCall(LedgerManager, "lastRemoteMinedBlock(uint64)", p.chainArg(func(chain uint64) []byte {
		return encode(blockTokens(p.lastMined[chain])...)
	}))
	n.HandleCall(State, "getLastLocalBlock(uint256)", p.chainArg(func(chain uint64) []byte {
		return encode(blockTokens(p.lastLocal[chain])...)
	}))
	n.HandleCall(State, "getLastFinalizedBlock(uint256)", p.chainArg(func(chain uint64) []byte {
		return encode(blockTokens(p.lastFinalized[chain])...)
	}))
	n.HandleCall(LedgerManager, "localBlockByNonce(uint64,uint64)", p.chainNonceArgs(func(k blockKey) []byte {
		e := p.local[k]
		return encode(abi.TupleToken(blockTokens(e.block)...), txsToken(e.txs))
	}))
	n.HandleCall(LedgerManager, "minedBlockByNonce(uint64,uint64)", p.chainNonceArgs(func(k blockKey) []byte {
		e := p.mined[k]
		return encode(minedBlockToken(e.block), txsToken(e.txs))
	}))
	n.HandleCall(MinerManager, "selectMinerAddress(bytes32,uint256,uint256)", func([]byte) ([]byte, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		return encode(abi.AddressToken(p.assignedMiner)), nil
	})
	return p
}

// Client returns a relay client for this chain.
func (p *Portal) Client(ctx context.Context, signer relaysigner.Signer, opts qpclient.Options) (*qpclient.Client, error) {
	rpc := jsonrpc.NewClient(zap.NewNop(), jsonrpc.WithTransport(p.Node))
	cc, err := contract.NewClient(zap.NewNop(), rpc, p.URL, Gateway, p.ChainID)
	if err != nil {
		return nil, err
	}
	return qpclient.NewClient(ctx, zap.NewNop(), cc, signer, opts), nil
}

// AddLocalBlock records a block this chain produced for target and marks it ready.
func (p *Portal) AddLocalBlock(target uint64, block qpclient.LocalBlock, txs []qpclient.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local[blockKey{target, block.Nonce}] = localEntry{block: block, txs: txs}
	if block.Nonce > p.lastLocal[target].Nonce {
		p.lastLocal[target] = block
	}
	p.ready[target] = true
}

func (p *Portal) SetReady(target uint64, ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready[target] = ready
}

// AddMinedBlock records a block of remote mined on this chain and advances the last mined block.
func (p *Portal) AddMinedBlock(remote uint64, block qpclient.RemoteBlock, txs []qpclient.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mined[blockKey{remote, block.Metadata.Nonce}] = minedEntry{block: block, txs: txs}
	if block.Metadata.Nonce > p.lastMined[remote].Nonce {
		p.lastMined[remote] = block.Metadata
	}
}

func (p *Portal) SetLastMined(remote uint64, block qpclient.LocalBlock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastMined[remote] = block
}

func (p *Portal) SetLastFinalized(remote uint64, block qpclient.LocalBlock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastFinalized[remote] = block
}

func (p *Portal) SetAssignedMiner(miner common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assignedMiner = miner
}

func (p *Portal) chainArg(fn func(chain uint64) []byte) jsonrpctest.CallHandler {
	return func(input []byte) ([]byte, error) {
		args, err := abi.Decode([]abi.ParamKind{abi.TypeUint(256)}, input)
		if err != nil {
			return nil, err
		}
		chain, _ := args[0].ToUint()
		p.mu.Lock()
		defer p.mu.Unlock()
		return fn(chain.Uint64()), nil
	}
}

func (p *Portal) chainNonceArgs(fn func(k blockKey) []byte) jsonrpctest.CallHandler {
	return func(input []byte) ([]byte, error) {
		args, err := abi.Decode([]abi.ParamKind{abi.TypeUint(256), abi.TypeUint(256)}, input)
		if err != nil {
			return nil, err
		}
		chain, _ := args[0].ToUint()
		nonce, _ := args[1].ToUint()
		p.mu.Lock()
		defer p.mu.Unlock()
		return fn(blockKey{chain.Uint64(), nonce.Uint64()}), nil
	}
}

func encode(tokens ...abi.Token) []byte {
	return abi.Encode(tokens)
}

func blockTokens(b qpclient.LocalBlock) []abi.Token {
	return []abi.Token{abi.Uint64Token(b.ChainID), abi.Uint64Token(b.Nonce), abi.Uint64Token(b.Timestamp)}
}

func minedBlockToken(b qpclient.RemoteBlock) abi.Token {
	return abi.TupleToken(
		abi.FixedBytesToken(b.BlockHash[:]),
		abi.AddressToken(b.Miner),
		abi.UintToken(&b.InvalidBlock),
		abi.UintToken(&b.Stake),
		abi.UintToken(&b.TotalValue),
		abi.TupleToken(blockTokens(b.Metadata)...),
	)
}

func txsToken(txs []qpclient.Transaction) abi.Token {
	tokens := make([]abi.Token, 0, len(txs))
	for _, tx := range txs {
		tokens = append(tokens, tx.ABIToken())
	}
	return abi.ArrayToken(tokens...)
}
