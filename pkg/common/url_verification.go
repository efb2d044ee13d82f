package common

import (
	"net/url"
)

// RPCSchemes are the schemes a JSON-RPC endpoint may use.
var RPCSchemes = []string{"http", "https"}

// ValidateURL reports whether urlStr parses with one of validSchemes and names a host.
func ValidateURL(urlStr string, validSchemes []string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Host == "" {
		return false
	}

	for _, scheme := range validSchemes {
		if parsedURL.Scheme == scheme {
			return true
		}
	}
	return false
}
