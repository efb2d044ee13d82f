package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/abi"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/eip712"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

const (
	sigLedgerManager    = "quantumPortalLedgerMgr()"
	sigMinerManager     = "minerMgr()"
	sigAuthorityManager = "authorityMgr()"
	sigState            = "state()"
	sigName             = "NAME()"
	sigVersion          = "VERSION()"
	sigSelectMiner      = "selectMinerAddress(bytes32,uint256,uint256)"
)

// Manager is a portal manager contract together with its EIP-712 identity.
type Manager struct {
	Address common.Address
	Name    []byte
	Version []byte
}

// Domain returns the signing domain of m on chainID.
func (m Manager) Domain(chainID uint64) eip712.Domain {
	return eip712.Domain{
		Name:              m.Name,
		Version:           m.Version,
		ChainID:           chainID,
		VerifyingContract: m.Address,
	}
}

func (c *Client) addressAt(ctx context.Context, key, signature string, on common.Address) (common.Address, error) {
	if v, ok := c.cached(key); ok {
		return v.(common.Address), nil
	}
	resp, err := c.Call(ctx, signature, nil, &on)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := chainutils.DecodeAddressResponse(resp.ResultString())
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode %s: %w", signature, err)
	}
	c.logger.Debug("discovered contract", zap.String("signature", signature), zap.Stringer("address", addr))
	c.store(key, addr)
	return addr, nil
}

// LedgerManager returns quantumPortalLedgerMgr() of the gateway contract.
func (c *Client) LedgerManager(ctx context.Context) (common.Address, error) {
	return c.addressAt(ctx, "ledger", sigLedgerManager, c.GatewayContract)
}

// StateContract returns state() of the ledger manager.
func (c *Client) StateContract(ctx context.Context) (common.Address, error) {
	ledger, err := c.LedgerManager(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return c.addressAt(ctx, "state", sigState, ledger)
}

// MinerManager returns minerMgr() of the ledger manager with its NAME() and VERSION().
func (c *Client) MinerManager(ctx context.Context) (Manager, error) {
	return c.manager(ctx, "miner", sigMinerManager)
}

// AuthorityManager returns authorityMgr() of the ledger manager with its NAME() and VERSION().
func (c *Client) AuthorityManager(ctx context.Context) (Manager, error) {
	return c.manager(ctx, "authority", sigAuthorityManager)
}

func (c *Client) manager(ctx context.Context, key, signature string) (Manager, error) {
	if v, ok := c.cached(key + "_info"); ok {
		return v.(Manager), nil
	}
	ledger, err := c.LedgerManager(ctx)
	if err != nil {
		return Manager{}, err
	}
	addr, err := c.addressAt(ctx, key, signature, ledger)
	if err != nil {
		return Manager{}, err
	}
	name, err := c.callString(ctx, sigName, addr)
	if err != nil {
		return Manager{}, err
	}
	version, err := c.callString(ctx, sigVersion, addr)
	if err != nil {
		return Manager{}, err
	}
	m := Manager{Address: addr, Name: []byte(name), Version: []byte(version)}
	c.logger.Info("discovered portal manager",
		zap.String("manager", key),
		zap.Stringer("address", addr),
		zap.String("name", name),
		zap.String("version", version),
	)
	c.store(key+"_info", m)
	return m, nil
}

func (c *Client) callString(ctx context.Context, signature string, to common.Address) (string, error) {
	b, err := c.CallBytes(ctx, signature, nil, &to)
	if err != nil {
		return "", err
	}
	tokens, err := abi.Decode([]abi.ParamKind{abi.TypeString}, b)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s of %s: %w", signature, to, err)
	}
	s, _ := tokens[0].ToString()
	return s, nil
}

// MinerForBlock asks the miner manager which miner owns the slot for a block.
func (c *Client) MinerForBlock(ctx context.Context, blockHash common.Hash, blockTimestamp, chainTimestamp uint64) (common.Address, error) {
	mgr, err := c.MinerManager(ctx)
	if err != nil {
		return common.Address{}, err
	}
	resp, err := c.Call(ctx, sigSelectMiner, []abi.Token{
		abi.FixedBytesToken(blockHash[:]),
		abi.Uint64Token(blockTimestamp),
		abi.Uint64Token(chainTimestamp),
	}, &mgr.Address)
	if err != nil {
		return common.Address{}, err
	}
	return chainutils.DecodeAddressResponse(resp.ResultString())
}

// ERC20 reads a token contract through a Client.
type ERC20 struct {
	client *Client
	Token  common.Address
}

func NewERC20(client *Client, token common.Address) *ERC20 {
	return &ERC20{client: client, Token: token}
}

// TotalSupply returns totalSupply().
func (e *ERC20) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	b, err := e.client.CallBytes(ctx, "totalSupply()", nil, &e.Token)
	if err != nil {
		return nil, err
	}
	if len(b) < abi.WordSize {
		return nil, fmt.Errorf("%w: totalSupply returned %d bytes", chainutils.ErrBadRemoteData, len(b))
	}
	return new(uint256.Int).SetBytes(b[:abi.WordSize]), nil
}
