// Package readiness implements a minimal health check for use as k8s readiness probes. A component
// stays ready once it has been marked ready; this is not meant for monitoring.
//
// Uses a global singleton registry (similar to the Prometheus client's default behavior).
package readiness

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

var (
	mu       = sync.Mutex{}
	registry = map[string]bool{}
)

type Component string

// RegisterComponent registers the given component name such that it is required to be ready for
// the global check to succeed. It panics if the component is already registered.
func RegisterComponent(component Component) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[string(component)]; ok {
		panic("component already registered")
	}
	registry[string(component)] = false
}

// SetReady sets the given global component state.
func SetReady(component Component) {
	mu.Lock()
	defer mu.Unlock()
	if !registry[string(component)] {
		registry[string(component)] = true
	}
}

// IsReady reports whether every registered component is ready.
func IsReady() bool {
	mu.Lock()
	defer mu.Unlock()
	for _, v := range registry {
		if !v {
			return false
		}
	}
	return true
}

// Reset forgets all components. Tests use it between cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = map[string]bool{}
}

// Handler returns 200 OK if all components are ready, or 412 Precondition Failed otherwise. For
// operator convenience, a list of components and their states is returned as plain text (not
// meant for machine consumption!).
func Handler(w http.ResponseWriter, r *http.Request) {
	resp := new(bytes.Buffer)
	resp.WriteString("[not suitable for monitoring - do not parse]\n\n")

	mu.Lock()
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	ready := true
	for _, k := range names {
		fmt.Fprintf(resp, "%s\t%v\n", k, registry[k])
		if !registry[k] {
			ready = false
		}
	}
	mu.Unlock()

	if !ready {
		w.WriteHeader(http.StatusPreconditionFailed)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = resp.WriteTo(w)
}
