package object

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = time.Second

// SweepReport describes one completed sweep.
type SweepReport struct {
	SweepStats
	Duration  time.Duration
	Timestamp time.Time
}

// Sweeper periodically reclaims unreferenced heap cells. It takes no locks
// other than each allocator's own.
type Sweeper struct {
	heap     *Heap
	interval time.Duration
	log      zerolog.Logger
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	sweepCount atomic.Uint64
	lastReport atomic.Pointer[SweepReport]
}

// NewSweeper returns a sweeper for heap. A non-positive interval selects
// DefaultSweepInterval.
func NewSweeper(heap *Heap, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{heap: heap, interval: interval, log: log}
	s.enabled.Store(true)
	return s
}

// Start launches the sweep goroutine. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.loop(s.stop, s.stopped)
}

// Stop halts the sweep goroutine and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stopCh, stoppedCh := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled pauses or resumes periodic sweeps.
func (s *Sweeper) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// SweepCount returns the number of sweeps performed.
func (s *Sweeper) SweepCount() uint64 {
	return s.sweepCount.Load()
}

// LastReport returns the most recent sweep report, or nil.
func (s *Sweeper) LastReport() *SweepReport {
	return s.lastReport.Load()
}

// SweepNow runs a sweep immediately.
func (s *Sweeper) SweepNow() *SweepReport {
	return s.sweep()
}

func (s *Sweeper) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if s.enabled.Load() {
				s.sweep()
			}
		}
	}
}

func (s *Sweeper) sweep() *SweepReport {
	start := time.Now()
	report := &SweepReport{SweepStats: s.heap.Sweep(), Timestamp: start}
	report.Duration = time.Since(start)
	s.sweepCount.Add(1)
	s.lastReport.Store(report)
	if total := report.Total(); total > 0 {
		s.log.Debug().
			Int("strings", report.Strings).
			Int("arrays", report.Arrays).
			Int("functions", report.Functions).
			Int("objects", report.Objects).
			Dur("duration", report.Duration).
			Msg("heap sweep")
	}
	return report
}
