package qprelayd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" // #nosec G108 we are using a custom router (`router := mux.NewRouter()`) and thus not automatically expose pprof.
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/contract"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/db"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/qpclient"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/qpconfig"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/qpservice"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/readiness"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/relaysigner"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	configFilename *string
	dataDir        *string
	signerUri      *string
	statusAddr     *string

	logLevel *string
	jsonLogs *bool

	relayInterval    *time.Duration
	parallelPairs    *bool
	enforceMinerSlot *bool
	enforceRole      *bool

	rpcTimeout   *time.Duration
	rpcRateLimit *float64
	rpcBurst     *int

	chainIDTimeout *time.Duration

	benchmarkSigner *bool
	unsafeDevMode   *bool
)

var ErrChainIDMismatch = errors.New("node reports a different chain id")

func init() {
	configFilename = NodeCmd.Flags().String("configFile", "", "Path to the relay config file (json, yaml or toml)")
	dataDir = NodeCmd.Flags().String("dataDir", "", "Data directory")
	signerUri = NodeCmd.Flags().String("signerUri", "", "Relay signer URI: file://<armored key> or amazonkms://<key arn> (required)")
	statusAddr = NodeCmd.Flags().String("statusAddr", "[::]:6060", "Listen address for status server (disabled if blank)")

	logLevel = NodeCmd.Flags().String("logLevel", "info", "Logging level (debug, info, warn, error, dpanic, panic, fatal)")
	jsonLogs = NodeCmd.Flags().Bool("jsonLogs", false, "Write logs as JSON instead of the console format")

	relayInterval = NodeCmd.Flags().Duration("interval", qpservice.DefaultInterval, "Time between two relay rounds")
	parallelPairs = NodeCmd.Flags().Bool("parallelPairs", false, "Process chain pairs with different local chains concurrently")
	enforceMinerSlot = NodeCmd.Flags().Bool("enforceMinerSlot", false, "Only mine blocks the miner manager assigns to this signer")
	enforceRole = NodeCmd.Flags().Bool("enforceRole", false, "Only mine as QP_MINER and only finalize as QP_FINALIZER")

	rpcTimeout = NodeCmd.Flags().Duration("rpcTimeout", jsonrpc.DefaultTimeout, "Deadline of a single JSON-RPC request")
	rpcRateLimit = NodeCmd.Flags().Float64("rpcRateLimit", 0, "Maximum JSON-RPC requests per second and endpoint (0 disables the limit)")
	rpcBurst = NodeCmd.Flags().Int("rpcBurst", 1, "JSON-RPC rate limit burst")

	chainIDTimeout = NodeCmd.Flags().Duration("chainIdTimeout", 2*time.Minute, "How long to retry eth_chainId for each network at startup")

	benchmarkSigner = NodeCmd.Flags().Bool("benchmarkSigner", false, "Record signing latency metrics")
	unsafeDevMode = NodeCmd.Flags().Bool("unsafeDevMode", false, "Launch node in unsafe development mode")
}

// "Why would anyone do this?" are famous last words.
const devwarning = `
        +++++++++++++++++++++++++++++++++++++++++++++++++++
        |   NODE IS RUNNING IN INSECURE DEVELOPMENT MODE  |
        |                                                 |
        |      Do not use --unsafeDevMode in prod.        |
        +++++++++++++++++++++++++++++++++++++++++++++++++++

`

var nodeViper *viper.Viper

// NodeCmd represents the node command
var NodeCmd = &cobra.Command{
	Use:     "node",
	Short:   "Run the quantum portal relay node",
	PreRunE: initConfig,
	Run:     runNode,
}

func initConfig(cmd *cobra.Command, args []string) error {
	v, err := qpconfig.InitFileConfig(cmd, qpconfig.ConfigOptions{
		FilePath:  *configFilename,
		EnvPrefix: "QPRELAYD",
	})
	if err != nil {
		return err
	}
	nodeViper = v
	return nil
}

func runNode(cmd *cobra.Command, args []string) {
	if *unsafeDevMode {
		fmt.Print(devwarning)
	}

	common.SetRestrictiveUmask()
	if !*unsafeDevMode {
		if err := common.LockMemory(); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		// Refuse to run as root in production mode.
		if os.Geteuid() == 0 {
			fmt.Println("can't run as uid 0")
			os.Exit(1)
		}
	}

	logger, err := newRootLogger(*logLevel, *jsonLogs)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *dataDir == "" {
		logger.Fatal("Please specify --dataDir")
	}
	if *signerUri == "" {
		logger.Fatal("Please specify --signerUri")
	}

	cfg, err := qpconfig.Load(nodeViper)
	if err != nil {
		logger.Fatal("failed to load relay config", zap.Error(err))
	}
	logger.Info("loaded relay config",
		zap.Int("networks", len(cfg.Networks)),
		zap.Int("pairs", len(cfg.Pairs)),
		zap.Stringer("role", cfg.Role),
	)

	// Register components for readiness checks.
	for _, n := range cfg.Networks {
		common.MustRegisterReadinessChain(n.ID)
	}
	readiness.RegisterComponent(common.ReadinessRelayLoop)

	if *statusAddr != "" {
		// Use a custom routing instead of using http.DefaultServeMux directly to avoid accidentally exposing packages
		// that register themselves with it by default (like pprof).
		router := mux.NewRouter()

		// pprof is only exposed in dev mode.
		if *unsafeDevMode {
			router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
		}

		// Simple endpoint exposing node readiness (safe to expose to untrusted clients)
		router.HandleFunc("/readyz", readiness.Handler)

		// Prometheus metrics (safe to expose to untrusted clients)
		router.Handle("/metrics", promhttp.Handler())

		go func() {
			logger.Info("status server listening", zap.String("status_addr", *statusAddr))
			// #nosec G114 local status server not vulnerable to DoS attack
			logger.Error("status server crashed", zap.Error(http.ListenAndServe(*statusAddr, router)))
		}()
	}

	// Node's main lifecycle context.
	rootCtx, rootCtxCancel := context.WithCancel(context.Background())
	defer rootCtxCancel()

	// Handle SIGTERM, SIGINT
	common.ListenSysExit(logger, rootCtxCancel)

	signer, err := relaysigner.NewSignerFromUri(rootCtx, *signerUri, *unsafeDevMode)
	if err != nil {
		logger.Fatal("failed to create relay signer", zap.Error(err))
	}
	if *benchmarkSigner {
		signer = relaysigner.BenchmarkWrappedSigner(signer)
	}
	if err := relaysigner.CheckPublicKey(rootCtx, signer, cfg.SignerPublicKey); err != nil {
		logger.Fatal("configured signer_public_key does not match the relay signer", zap.Error(err))
	}
	logger.Info("loaded relay signer",
		zap.String("signer_type", signer.TypeAsString()),
		zap.Stringer("address", relaysigner.Address(rootCtx, signer)),
	)

	database, err := db.OpenDataDir(logger, *dataDir)
	if err != nil {
		logger.Fatal("failed to open relay database", zap.Error(err))
	}
	defer database.Close()
	quorum := db.NewQuorumDB(database.Conn())

	rpc := jsonrpc.NewClient(logger,
		jsonrpc.WithTimeout(*rpcTimeout),
		jsonrpc.WithRateLimit(rate.Limit(*rpcRateLimit), *rpcBurst),
	)

	clients := make([]*qpclient.Client, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = *chainIDTimeout
		if err := verifyChainID(rootCtx, logger, rpc, n, bo); err != nil {
			logger.Fatal("failed to verify network", zap.Uint64("chain_id", n.ID), zap.String("url", n.URL), zap.Error(err))
		}
		readiness.SetReady(common.ReadinessChain(n.ID))

		cc, err := contract.NewClient(logger, rpc, n.URL, n.GatewayContract, n.ID)
		if err != nil {
			logger.Fatal("failed to create contract client", zap.Uint64("chain_id", n.ID), zap.Error(err))
		}
		clients = append(clients, qpclient.NewClient(rootCtx, logger, cc, signer, qpclient.Options{
			EnforceMinerSlot: *enforceMinerSlot,
			Quorum:           quorum,
		}))
	}

	svc, err := qpservice.NewService(logger, database, clients, cfg.Pairs, cfg.Role, qpservice.Options{
		Interval:      *relayInterval,
		ParallelPairs: *parallelPairs,
		EnforceRole:   *enforceRole,
	})
	if err != nil {
		logger.Fatal("failed to create relay service", zap.Error(err))
	}

	errC := make(chan error, 1)
	common.RunWithScissors(rootCtx, errC, "relay", svc.Run)

	select {
	case <-rootCtx.Done():
	case err := <-errC:
		if !errors.Is(err, context.Canceled) {
			logger.Error("relay loop stopped", zap.Error(err))
		}
	}
	logger.Info("root context cancelled, exiting...")
}

// verifyChainID retries eth_chainId against n.URL until the node answers. A node that reports
// another chain id fails immediately.
func verifyChainID(ctx context.Context, logger *zap.Logger, rpc *jsonrpc.Client, n qpconfig.NetworkItem, bo backoff.BackOff) error {
	return backoff.RetryNotify(func() error {
		id, err := rpc.ChainID(ctx, n.URL)
		if err != nil {
			return err
		}
		if id != n.ID {
			return backoff.Permanent(fmt.Errorf("%w: %s returned %d, want %d", ErrChainIDMismatch, n.URL, id, n.ID))
		}
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		logger.Warn("network not reachable yet", zap.Uint64("chain_id", n.ID), zap.Duration("retry_in", next), zap.Error(err))
	})
}
