// Package qpservice runs the relay loop. Every round it walks the configured (remote, local) chain
// pairs, mines or finalizes whatever the local chain is missing and keeps at most one submitted
// transaction per local chain in flight until its receipt resolves.
package qpservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferrumnet/ferrum-network-sub000/pkg/common"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/db"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/jsonrpc"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/qpclient"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/qpconfig"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/readiness"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultInterval is the time between two relay rounds.
const DefaultInterval = 12 * time.Second

var ErrUnknownChain = errors.New("no client configured for chain")

var (
	pairRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qprelay_pair_rounds_total",
			Help: "Total number of processed chain pair rounds by outcome",
		}, []string{"remote_chain", "local_chain", "outcome"})

	pendingResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qprelay_pending_tx_resolved_total",
			Help: "Total number of pending relay transactions removed by kind and reason",
		}, []string{"kind", "reason"})

	roundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qprelay_round_duration_seconds",
			Help:    "Wall clock time of one relay round over all chain pairs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		})
)

const (
	outcomeSubmitted = "submitted"
	outcomeIdle      = "idle"
	outcomePending   = "pending"
	outcomeLocked    = "locked"
	outcomeError     = "error"
)

type Options struct {
	// Interval defaults to DefaultInterval.
	Interval time.Duration

	// ParallelPairs processes pairs with different local chains concurrently. Pairs sharing a
	// local chain always run one after another since they share its pending slot and sender nonce.
	ParallelPairs bool

	// EnforceRole limits a QP_MINER node to mining and a QP_FINALIZER node to finalizing. A node
	// without a role always does both.
	EnforceRole bool

	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	logger  *zap.Logger
	db      *db.Database
	clients map[uint64]*qpclient.Client
	pairs   []qpconfig.Pair
	role    qpconfig.Role
	opts    Options

	locksMu sync.Mutex
	locks   map[qpconfig.Pair]struct{}
}

func NewService(logger *zap.Logger, database *db.Database, clients []*qpclient.Client, pairs []qpconfig.Pair, role qpconfig.Role, opts Options) (*Service, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	byChain := make(map[uint64]*qpclient.Client, len(clients))
	for _, c := range clients {
		if _, ok := byChain[c.ChainID()]; ok {
			return nil, fmt.Errorf("duplicate client for chain %d", c.ChainID())
		}
		byChain[c.ChainID()] = c
	}
	for _, p := range pairs {
		for _, id := range []uint64{p.Remote, p.Local} {
			if _, ok := byChain[id]; !ok {
				return nil, fmt.Errorf("%w: %d", ErrUnknownChain, id)
			}
		}
	}
	return &Service{
		logger:  logger,
		db:      database,
		clients: byChain,
		pairs:   pairs,
		role:    role,
		opts:    opts,
		locks:   make(map[qpconfig.Pair]struct{}),
	}, nil
}

func (s *Service) nowMs() uint64 {
	return uint64(s.opts.Now().UnixMilli())
}

func (s *Service) client(chainID uint64) (*qpclient.Client, error) {
	c, ok := s.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return c, nil
}

func (s *Service) tryLock(p qpconfig.Pair) bool {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if _, held := s.locks[p]; held {
		return false
	}
	s.locks[p] = struct{}{}
	return true
}

func (s *Service) unlock(p qpconfig.Pair) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.locks, p)
}

// ProcessPairWithLock runs ProcessPair unless the pair is already being processed, in which case
// the round for this pair is skipped.
func (s *Service) ProcessPairWithLock(ctx context.Context, remoteChain, localChain uint64, role qpconfig.Role) error {
	pair := qpconfig.Pair{Remote: remoteChain, Local: localChain}
	if !s.tryLock(pair) {
		s.logger.Info("pair is locked, skipping this round",
			zap.Uint64("remote_chain", remoteChain),
			zap.Uint64("local_chain", localChain),
		)
		pairRounds.WithLabelValues(fmt.Sprint(remoteChain), fmt.Sprint(localChain), outcomeLocked).Inc()
		return nil
	}
	defer s.unlock(pair)
	return s.ProcessPair(ctx, remoteChain, localChain, role)
}

func (s *Service) allowed(role, want qpconfig.Role) bool {
	return !s.opts.EnforceRole || role == qpconfig.RoleNone || role == want
}

// ProcessPair relays one step from remoteChain to localChain. Nothing is attempted while a
// transaction previously sent to localChain is still pending. A submitted mine transaction ends
// the round so the finalize step runs against the updated chain next time.
func (s *Service) ProcessPair(ctx context.Context, remoteChain, localChain uint64, role qpconfig.Role) error {
	logger := s.logger.With(zap.Uint64("remote_chain", remoteChain), zap.Uint64("local_chain", localChain))
	remoteLabel, localLabel := fmt.Sprint(remoteChain), fmt.Sprint(localChain)

	outcome, err := s.processPair(ctx, logger, remoteChain, localChain, role)
	if err != nil {
		pairRounds.WithLabelValues(remoteLabel, localLabel, outcomeError).Inc()
		return err
	}
	pairRounds.WithLabelValues(remoteLabel, localLabel, outcome).Inc()
	return nil
}

func (s *Service) processPair(ctx context.Context, logger *zap.Logger, remoteChain, localChain uint64, role qpconfig.Role) (string, error) {
	local, err := s.client(localChain)
	if err != nil {
		return "", err
	}
	remote, err := s.client(remoteChain)
	if err != nil {
		return "", err
	}

	live, err := s.livePendingTransaction(ctx, localChain)
	if err != nil {
		return "", err
	}
	if live != nil {
		logger.Info("transaction still pending, skipping this round", zap.Stringer("pending", live))
		return outcomePending, nil
	}

	now := s.nowMs()
	if s.allowed(role, qpconfig.RoleMiner) {
		hash, submitted, err := local.Mine(ctx, remote)
		if err != nil {
			return "", fmt.Errorf("failed to mine %d -> %d: %w", remoteChain, localChain, err)
		}
		if submitted {
			if err := s.db.StorePendingTransaction(db.NewMineTransaction(localChain, remoteChain, now, hash)); err != nil {
				return "", err
			}
			return outcomeSubmitted, nil
		}
	}

	if s.allowed(role, qpconfig.RoleFinalizer) {
		hash, submitted, err := local.Finalize(ctx, remote)
		if err != nil {
			return "", fmt.Errorf("failed to finalize %d -> %d: %w", remoteChain, localChain, err)
		}
		if submitted {
			if err := s.db.StorePendingTransaction(db.NewFinalizeTransaction(localChain, now, hash)); err != nil {
				return "", err
			}
			return outcomeSubmitted, nil
		}
	}
	return outcomeIdle, nil
}

// livePendingTransaction returns the stored transaction of chainID if it is still pending.
func (s *Service) livePendingTransaction(ctx context.Context, chainID uint64) (*db.PendingTransaction, error) {
	tx, err := s.db.PendingTransaction(chainID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, nil
	}
	pending, err := s.IsTxPending(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !pending {
		return nil, nil
	}
	return tx, nil
}

// IsTxPending checks the receipt of tx and removes it from the database once it is confirmed,
// failed or has gone without a receipt for db.TIMEOUT. A failed receipt query keeps it pending.
func (s *Service) IsTxPending(ctx context.Context, tx *db.PendingTransaction) (bool, error) {
	c, err := s.client(tx.ChainID)
	if err != nil {
		return false, err
	}
	logger := s.logger.With(zap.Stringer("tx", tx))

	status, err := c.Contract().TransactionStatus(ctx, tx.TxHash)
	if err != nil {
		logger.Warn("failed to query transaction receipt, treating as pending", zap.Error(err))
		return true, nil
	}

	var reason string
	switch status {
	case jsonrpc.StatusPending:
		return true, nil
	case jsonrpc.StatusConfirmed:
		logger.Info("transaction confirmed")
		reason = "confirmed"
	case jsonrpc.StatusFailed:
		logger.Warn("transaction failed, please investigate")
		reason = "failed"
	default:
		if !tx.TimedOut(s.nowMs()) {
			return true, nil
		}
		logger.Error("transaction timed out, please investigate", zap.Uint64("now_ms", s.nowMs()))
		reason = "timeout"
	}

	if err := s.db.ClearPendingTransaction(tx.ChainID); err != nil {
		return false, err
	}
	pendingResolved.WithLabelValues(tx.Kind.String(), reason).Inc()
	return false, nil
}

// RunRound processes every pair once. Pair errors are logged and do not stop the round.
func (s *Service) RunRound(ctx context.Context) {
	start := time.Now()
	defer func() { roundDuration.Observe(time.Since(start).Seconds()) }()

	if !s.opts.ParallelPairs {
		s.processPairs(ctx, s.pairs)
		return
	}

	var order []uint64
	groups := make(map[uint64][]qpconfig.Pair)
	for _, p := range s.pairs {
		if _, ok := groups[p.Local]; !ok {
			order = append(order, p.Local)
		}
		groups[p.Local] = append(groups[p.Local], p)
	}

	var wg sync.WaitGroup
	for _, local := range order {
		wg.Add(1)
		go func(pairs []qpconfig.Pair) {
			defer wg.Done()
			s.processPairs(ctx, pairs)
		}(groups[local])
	}
	wg.Wait()
}

func (s *Service) processPairs(ctx context.Context, pairs []qpconfig.Pair) {
	for _, p := range pairs {
		if ctx.Err() != nil {
			return
		}
		p := p
		err := common.WrapWithScissors(func(ctx context.Context) error {
			return s.ProcessPairWithLock(ctx, p.Remote, p.Local, s.role)
		})(ctx)
		if err != nil {
			s.logger.Error("failed to process pair",
				zap.Uint64("remote_chain", p.Remote),
				zap.Uint64("local_chain", p.Local),
				zap.Error(err),
			)
		}
	}
}

// Run processes all pairs immediately and then once per interval until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting relay loop",
		zap.Int("pairs", len(s.pairs)),
		zap.Stringer("role", s.role),
		zap.Duration("interval", s.opts.Interval),
		zap.Bool("parallel_pairs", s.opts.ParallelPairs),
	)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.RunRound(ctx)
	readiness.SetReady(common.ReadinessRelayLoop)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunRound(ctx)
		}
	}
}
