package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		label string
		url   string
		valid bool
	}{
		{label: "HTTP", url: "http://127.0.0.1:8545", valid: true},
		{label: "HTTPS", url: "https://data-seed-prebsc-1-s1.binance.org:8545", valid: true},
		{label: "WebSocket", url: "ws://127.0.0.1:8546"},
		{label: "NoScheme", url: "127.0.0.1:8545"},
		{label: "NoHost", url: "http://"},
		{label: "Garbage", url: "http://[::1"},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidateURL(tc.url, RPCSchemes))
		})
	}
}
