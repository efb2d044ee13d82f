package qprelayd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/qpconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	statusConfigFile *string
	statusChain      *uint64
	statusRPC        *string
)

func init() {
	statusConfigFile = StatusCmd.Flags().String("configFile", "", "Relay config file used to resolve --chain")
	statusChain = StatusCmd.Flags().Uint64("chain", 0, "Chain id of a configured network")
	statusRPC = StatusCmd.Flags().String("rpc", "", "JSON-RPC URL, overrides the network of --chain")
}

var StatusCmd = &cobra.Command{
	Use:   "status [TXHASH]",
	Short: "Print the receipt status of a relay transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	url := *statusRPC
	if url == "" {
		v, err := qpconfig.InitFileConfig(cmd, qpconfig.ConfigOptions{FilePath: *statusConfigFile, EnvPrefix: "QPRELAYD"})
		if err != nil {
			return err
		}
		cfg, err := qpconfig.Load(v)
		if err != nil {
			return err
		}
		n, ok := cfg.Network(*statusChain)
		if !ok {
			return fmt.Errorf("chain %d is not configured", *statusChain)
		}
		url = n.URL
	}

	rpc := jsonrpc.NewClient(zap.NewNop())
	return printStatus(cmd.Context(), os.Stdout, rpc, url, args[0])
}

func printStatus(ctx context.Context, w io.Writer, rpc *jsonrpc.Client, url, txHash string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := hexHash(txHash)
	if err != nil {
		return err
	}
	receipt, err := rpc.TransactionReceipt(ctx, url, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "tx:     %s\n", raw.Hex())
	fmt.Fprintf(w, "status: %s\n", receipt.Classify())
	if receipt != nil && receipt.BlockNumber != "" {
		fmt.Fprintf(w, "block:  %s\n", receipt.BlockNumber)
	}
	return nil
}

func hexHash(s string) (common.Hash, error) {
	b, err := chainutils.HexToBytes(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("transaction hash must be %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}
