package common

import (
	"fmt"

	"github.com/ferrumnet/ferrum-network-sub000/pkg/readiness"
)

const ReadinessRelayLoop readiness.Component = "relayLoop"

// ReadinessChain is ready once the node behind a configured network answered with the expected chain id.
func ReadinessChain(chainID uint64) readiness.Component {
	return readiness.Component(fmt.Sprintf("chain-%d", chainID))
}

// MustRegisterReadinessChain registers the component for chainID and panics if it already exists.
func MustRegisterReadinessChain(chainID uint64) {
	readiness.RegisterComponent(ReadinessChain(chainID))
}
