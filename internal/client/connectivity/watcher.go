// Package connectivity tracks whether the remote record store is reachable
// and notifies subscribers on online/offline edges.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/tightlines/internal/logging"
)

const probeTimeout = 3 * time.Second

// State is the process-wide connectivity snapshot. RTT and Bandwidth are
// advisory quality hints; they never gate a sync attempt.
type State struct {
	Online    bool
	RTT       time.Duration
	Bandwidth string
}

// Bandwidth classes derived from the probe round trip.
const (
	BandwidthFast     = "fast"
	BandwidthModerate = "moderate"
	BandwidthSlow     = "slow"
)

// Prober checks store reachability. The remote client satisfies it.
type Prober interface {
	Ping(ctx context.Context) error
}

// Watcher polls the prober on an interval and fires edge-triggered
// transitions. The device starts offline; the first successful probe fires
// the initial offline→online edge.
type Watcher struct {
	prober   Prober
	interval time.Duration
	logger   logging.Logger

	mu    sync.Mutex
	state State
	subs  []func(State)
}

func NewWatcher(prober Prober, interval time.Duration, logger logging.Logger) *Watcher {
	return &Watcher{prober: prober, interval: interval, logger: logger}
}

// OnChange registers fn to be invoked on every online/offline transition.
// Must be called before Run.
func (w *Watcher) OnChange(fn func(State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// State returns the latest snapshot.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run blocks probing the store until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Probe immediately so startup does not wait a full interval.
	w.probe(ctx)

	for {
		select {
		case <-ticker.C:
			w.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := w.prober.Ping(pctx)
	rtt := time.Since(start)

	if ctx.Err() != nil {
		return
	}

	next := State{Online: err == nil}
	if err == nil {
		next.RTT = rtt
		next.Bandwidth = classifyBandwidth(rtt)
	}

	w.mu.Lock()
	prev := w.state
	w.state = next
	subs := w.subs
	w.mu.Unlock()

	if prev.Online == next.Online {
		return
	}

	w.logger.Info(ctx, "connectivity changed", "online", next.Online, "rtt", next.RTT.String(), "bandwidth", next.Bandwidth)
	for _, fn := range subs {
		fn(next)
	}
}

func classifyBandwidth(rtt time.Duration) string {
	switch {
	case rtt < 100*time.Millisecond:
		return BandwidthFast
	case rtt < 400*time.Millisecond:
		return BandwidthModerate
	default:
		return BandwidthSlow
	}
}
