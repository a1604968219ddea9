package stats

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultWindow is the sliding window used for the current submission rate.
const DefaultWindow = 5 * time.Second

// Tracker keeps submission statistics for a load run
type Tracker struct {
	mu  sync.RWMutex
	log log.Logger

	// Current window stats
	currentTPS float64
	maxTPS     float64
	minTPS     float64

	// Overall stats
	sent       uint64
	failed     uint64
	failures   map[string]uint64
	startTime  time.Time
	lastUpdate time.Time

	window     []time.Time
	windowSize time.Duration

	reportInterval time.Duration
	out            io.Writer

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Snapshot is a point-in-time copy of the tracker state.
type Snapshot struct {
	Sent       uint64
	Failed     uint64
	Failures   map[string]uint64
	CurrentTPS float64
	MaxTPS     float64
	MinTPS     float64
	AvgTPS     float64
	Uptime     time.Duration
	LastUpdate time.Time
}

// NewTracker creates a tracker. A zero reportInterval disables periodic reports;
// out receives the human readable report and may be nil.
func NewTracker(l log.Logger, reportInterval time.Duration, out io.Writer) *Tracker {
	now := time.Now()
	return &Tracker{
		log:            l,
		failures:       make(map[string]uint64),
		startTime:      now,
		lastUpdate:     now,
		window:         make([]time.Time, 0, 128),
		windowSize:     DefaultWindow,
		minTPS:         -1, // -1 indicates not initialized
		reportInterval: reportInterval,
		out:            out,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// RecordSent records one accepted submission
func (t *Tracker) RecordSent() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.sent++
	t.lastUpdate = now
	t.window = append(t.window, now)

	// Drop events that fell out of the window
	cutoff := now.Add(-t.windowSize)
	idx := 0
	for idx < len(t.window) && !t.window[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		t.window = t.window[idx:]
	}

	t.calculateTPS(now)
}

// RecordFailure records one failed iteration under the given error kind
func (t *Tracker) RecordFailure(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed++
	t.failures[kind]++
	t.lastUpdate = time.Now()
}

// calculateTPS must be called with the lock held
func (t *Tracker) calculateTPS(now time.Time) {
	if len(t.window) == 0 {
		t.currentTPS = 0
		return
	}

	duration := now.Sub(t.window[0]).Seconds()
	if duration <= 0 {
		return
	}
	t.currentTPS = float64(len(t.window)) / duration

	// A rate over fewer than three events is noise
	if len(t.window) >= 3 && t.currentTPS > t.maxTPS {
		t.maxTPS = t.currentTPS
	}
	if t.minTPS < 0 || (t.currentTPS > 0 && t.currentTPS < t.minTPS) {
		t.minTPS = t.currentTPS
	}
}

// Start begins the periodic reporting goroutine
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.reportLoop(ctx)
}

func (t *Tracker) reportLoop(ctx context.Context) {
	defer close(t.doneCh)

	if t.reportInterval <= 0 {
		select {
		case <-ctx.Done():
		case <-t.stopCh:
		}
		return
	}

	ticker := time.NewTicker(t.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.Report(false)
		}
	}
}

// Stop stops the reporting goroutine. It is safe to call when Start was never called.
func (t *Tracker) Stop() {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()

	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	if started {
		<-t.doneCh
	}
}

// Report writes the statistics to the report writer and the logger
func (t *Tracker) Report(final bool) {
	s := t.Snapshot()

	prefix := "Submission Stats"
	if final {
		prefix = "Final Submission Stats"
	}

	if t.out != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "\n========== %s ==========\n", prefix)
		fmt.Fprintf(&b, "Current TPS:  %.2f tx/s\n", s.CurrentTPS)
		fmt.Fprintf(&b, "Average TPS:  %.2f tx/s\n", s.AvgTPS)
		fmt.Fprintf(&b, "Max TPS:      %.2f tx/s\n", s.MaxTPS)
		fmt.Fprintf(&b, "Min TPS:      %.2f tx/s\n", s.MinTPS)
		fmt.Fprintf(&b, "Sent Txs:     %d\n", s.Sent)
		fmt.Fprintf(&b, "Failed:       %d\n", s.Failed)
		for _, kind := range sortedKeys(s.Failures) {
			fmt.Fprintf(&b, "  %-18s %d\n", kind+":", s.Failures[kind])
		}
		fmt.Fprintf(&b, "Uptime:       %s\n", s.Uptime.Round(time.Second))
		b.WriteString("=====================================\n\n")
		fmt.Fprint(t.out, b.String())
	}

	t.log.Info(prefix,
		"currentTPS", fmt.Sprintf("%.2f", s.CurrentTPS),
		"avgTPS", fmt.Sprintf("%.2f", s.AvgTPS),
		"maxTPS", fmt.Sprintf("%.2f", s.MaxTPS),
		"minTPS", fmt.Sprintf("%.2f", s.MinTPS),
		"sent", s.Sent,
		"failed", s.Failed,
		"uptime", s.Uptime.Round(time.Second).String(),
	)
}

// Snapshot returns the current statistics (thread-safe)
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	minTPS := t.minTPS
	if minTPS < 0 {
		minTPS = 0
	}

	uptime := time.Since(t.startTime)
	avgTPS := 0.0
	if uptime.Seconds() > 0 {
		avgTPS = float64(t.sent) / uptime.Seconds()
	}

	failures := make(map[string]uint64, len(t.failures))
	for k, v := range t.failures {
		failures[k] = v
	}

	return Snapshot{
		Sent:       t.sent,
		Failed:     t.failed,
		Failures:   failures,
		CurrentTPS: t.currentTPS,
		MaxTPS:     t.maxTPS,
		MinTPS:     minTPS,
		AvgTPS:     avgTPS,
		Uptime:     uptime,
		LastUpdate: t.lastUpdate,
	}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
