// Package qpconfig holds the relay's network, pair and role configuration.
package qpconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	relaycommon "github.com/ferrumnet/ferrum-network-sub000/pkg/common"
	"github.com/spf13/viper"
)

// NetworksKey is the config file section holding the relay configuration.
const NetworksKey = "networks"

type Role uint8

const (
	RoleNone Role = iota
	RoleMiner
	RoleFinalizer
)

// ParseRole maps "QP_MINER" and "QP_FINALIZER" to their roles. Anything else is RoleNone.
func ParseRole(s string) Role {
	switch s {
	case "QP_MINER":
		return RoleMiner
	case "QP_FINALIZER":
		return RoleFinalizer
	default:
		return RoleNone
	}
}

// RoleFromBytes is ParseRole for raw config bytes.
func RoleFromBytes(b []byte) Role {
	return ParseRole(string(b))
}

func (r Role) String() string {
	switch r {
	case RoleMiner:
		return "QP_MINER"
	case RoleFinalizer:
		return "QP_FINALIZER"
	default:
		return "None"
	}
}

type NetworkItem struct {
	URL             string
	GatewayContract common.Address
	ID              uint64
}

// Pair is a (remote, local) chain pair. Blocks produced on Remote for Local are mined on Local.
type Pair struct {
	Remote uint64
	Local  uint64
}

type QpConfig struct {
	Networks        []NetworkItem
	Pairs           []Pair
	SignerPublicKey []byte
	Role            Role
}

// Network returns the network with the given chain id.
func (c *QpConfig) Network(chainID uint64) (NetworkItem, bool) {
	for _, n := range c.Networks {
		if n.ID == chainID {
			return n, true
		}
	}
	return NetworkItem{}, false
}

// rawNetworkItem and rawQpConfig mirror the file layout:
//
//	networks:
//	  network_vec:
//	    - url: https://rpc.example
//	      gateway_contract_address: "0x..."
//	      id: 26100
//	  pair_vec: [[97, 26100]]
//	  signer_public_key: "0x02..."
//	  role: QP_MINER
type rawNetworkItem struct {
	URL                    string `mapstructure:"url"`
	GatewayContractAddress string `mapstructure:"gateway_contract_address"`
	ID                     uint64 `mapstructure:"id"`
}

type rawQpConfig struct {
	NetworkVec      []rawNetworkItem `mapstructure:"network_vec"`
	PairVec         [][]uint64       `mapstructure:"pair_vec"`
	SignerPublicKey string           `mapstructure:"signer_public_key"`
	Role            string           `mapstructure:"role"`
}

var ErrInvalidConfig = errors.New("invalid relay configuration")

// Load reads and validates the relay configuration under NetworksKey.
func Load(v *viper.Viper) (*QpConfig, error) {
	if !v.IsSet(NetworksKey) {
		return nil, fmt.Errorf("%w: missing %q section", ErrInvalidConfig, NetworksKey)
	}
	var raw rawQpConfig
	if err := v.UnmarshalKey(NetworksKey, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return raw.convert()
}

func (raw *rawQpConfig) convert() (*QpConfig, error) {
	cfg := &QpConfig{Role: ParseRole(raw.Role)}

	seen := make(map[uint64]bool)
	for i, n := range raw.NetworkVec {
		if strings.TrimSpace(n.URL) == "" {
			return nil, fmt.Errorf("%w: network %d has no url", ErrInvalidConfig, i)
		}
		if !relaycommon.ValidateURL(n.URL, relaycommon.RPCSchemes) {
			return nil, fmt.Errorf("%w: network %d url %q is not an http(s) endpoint", ErrInvalidConfig, i, n.URL)
		}
		gateway, err := chainutils.HexToAddress(n.GatewayContractAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: network %d gateway contract: %v", ErrInvalidConfig, i, err)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("%w: duplicate network id %d", ErrInvalidConfig, n.ID)
		}
		seen[n.ID] = true
		cfg.Networks = append(cfg.Networks, NetworkItem{URL: n.URL, GatewayContract: gateway, ID: n.ID})
	}

	for i, p := range raw.PairVec {
		if len(p) != 2 {
			return nil, fmt.Errorf("%w: pair %d must be [remote, local]", ErrInvalidConfig, i)
		}
		pair := Pair{Remote: p[0], Local: p[1]}
		if pair.Remote == pair.Local {
			return nil, fmt.Errorf("%w: pair %d relays chain %d to itself", ErrInvalidConfig, i, pair.Remote)
		}
		if !seen[pair.Remote] || !seen[pair.Local] {
			return nil, fmt.Errorf("%w: pair %d references an unconfigured network", ErrInvalidConfig, i)
		}
		cfg.Pairs = append(cfg.Pairs, pair)
	}

	if raw.SignerPublicKey != "" {
		pk, err := chainutils.HexToBytes(raw.SignerPublicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: signer_public_key: %v", ErrInvalidConfig, err)
		}
		cfg.SignerPublicKey = pk
	}

	return cfg, nil
}
