package iface

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

const discoverDialTimeout = 3 * time.Second

// Discover implements the §4.5 "Auto-discovery (when no target supplied)"
// path: try each candidate serial device, then the loopback TCP fallback,
// opening and connecting each in turn. The first candidate that connects
// wins; its Target and live Interface are returned so the caller does not
// have to reopen it. If every candidate fails, the aggregated per-candidate
// errors are returned so the operator can see why.
func Discover(ctx context.Context) (Target, Interface, error) {
	candidates, err := AutoDiscoverCandidates()
	if err != nil {
		return Target{}, nil, err
	}

	failures := map[string]error{}
	for _, candidate := range candidates {
		target, err := ParseTarget(candidate)
		if err != nil {
			failures[candidate] = err
			continue
		}

		dialCtx, cancel := context.WithTimeout(ctx, discoverDialTimeout)
		iface, err := Open(dialCtx, target)
		if err == nil {
			err = iface.Connect(dialCtx)
		}
		cancel()
		if err != nil {
			log.Debug("auto-discovery candidate failed", "candidate", candidate, "err", err)
			failures[candidate] = err
			continue
		}
		log.Info("auto-discovery selected interface", "candidate", candidate)
		return target, iface, nil
	}

	return Target{}, nil, &AggregateDiscoveryError{Failures: failures}
}
