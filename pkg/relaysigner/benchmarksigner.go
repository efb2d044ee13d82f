package relaysigner

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	latencyBuckets = []float64{10.0, 20.0, 50.0, 100.0, 1000.0, 5000.0, 10000.0, 100_000.0, 1_000_000.0, 10_000_000.0}

	signerSigningLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qprelay_signer_signing_latency_us",
			Help:    "Latency histogram for relay signing requests",
			Buckets: latencyBuckets,
		}, []string{"signer_type"})

	signerSigningErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qprelay_signer_signing_error_count",
			Help: "Total number of errors that occurred during relay signing requests",
		}, []string{"signer_type"})

	signerVerifyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qprelay_signer_sig_verify_latency_us",
			Help:    "Latency histogram for relay signature verification requests",
			Buckets: latencyBuckets,
		}, []string{"signer_type"})

	signerVerifyErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qprelay_signer_verify_error_count",
			Help: "Total number of errors that occurred during relay signature verification requests",
		}, []string{"signer_type"})
)

// BenchmarkSigner wraps another signer and records signing and verification latency.
type BenchmarkSigner struct {
	innerSigner Signer
	signerType  string
}

func BenchmarkWrappedSigner(innerSigner Signer) *BenchmarkSigner {
	if innerSigner == nil {
		return nil
	}
	return &BenchmarkSigner{
		innerSigner: innerSigner,
		signerType:  innerSigner.TypeAsString(),
	}
}

func (b *BenchmarkSigner) Sign(ctx context.Context, hash []byte) ([]byte, error) {
	start := time.Now()
	sig, err := b.innerSigner.Sign(ctx, hash)
	duration := time.Since(start)

	if err != nil {
		signerSigningErrorCount.WithLabelValues(b.signerType).Inc()
	} else {
		signerSigningLatency.WithLabelValues(b.signerType).Observe(float64(duration.Microseconds()))
	}
	return sig, err
}

func (b *BenchmarkSigner) PublicKey(ctx context.Context) ecdsa.PublicKey {
	return b.innerSigner.PublicKey(ctx)
}

func (b *BenchmarkSigner) Verify(ctx context.Context, sig []byte, hash []byte) (bool, error) {
	start := time.Now()
	valid, err := b.innerSigner.Verify(ctx, sig, hash)
	duration := time.Since(start)

	if err != nil {
		signerVerifyErrorCount.WithLabelValues(b.signerType).Inc()
	} else {
		signerVerifyLatency.WithLabelValues(b.signerType).Observe(float64(duration.Microseconds()))
	}
	return valid, err
}

// TypeAsString returns "benchmark".
func (b *BenchmarkSigner) TypeAsString() string {
	return "benchmark"
}
