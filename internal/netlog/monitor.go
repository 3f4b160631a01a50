package netlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/screenlag/internal/timeutil"
)

// MonitorConfig tunes the background ping monitor.
type MonitorConfig struct {
	// Targets are the hosts probed each cycle, in order.
	Targets []string
	// Interval is the nominal time between cycle starts. A cycle that
	// takes longer than Interval starts the next one immediately.
	Interval time.Duration
	// Timeout bounds each individual probe.
	Timeout time.Duration
	// BufferSize caps how many samples can be queued before collection.
	// When the buffer is full new samples are dropped and counted.
	BufferSize int
	// HighLatencyMs is the threshold for the high-latency count in Stats.
	HighLatencyMs float64
}

// DefaultMonitorConfig returns the standard monitor settings.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Targets:       []string{"8.8.8.8"},
		Interval:      time.Second,
		Timeout:       2 * time.Second,
		BufferSize:    4096,
		HighLatencyMs: 100,
	}
}

// Monitor probes its targets on a fixed cadence from a single background
// goroutine and buffers the resulting samples until Stop collects them.
// Samples are only handed over after the goroutine has gone quiescent, so
// the returned slice is complete and immutable.
type Monitor struct {
	cfg    MonitorConfig
	clock  timeutil.Clock
	pinger Pinger
	log    *slog.Logger

	samples chan Entry
	stop    chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	running bool
	dropped int
}

// NewMonitor builds a Monitor. A nil pinger uses SystemPinger, a nil clock
// uses the real clock, and a nil logger falls back to slog.Default().
func NewMonitor(cfg MonitorConfig, pinger Pinger, clock timeutil.Clock, log *slog.Logger) *Monitor {
	if pinger == nil {
		pinger = SystemPinger{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultMonitorConfig().BufferSize
	}
	return &Monitor{
		cfg:     cfg,
		clock:   clock,
		pinger:  pinger,
		log:     log,
		samples: make(chan Entry, cfg.BufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the probe loop. Starting an already-started or stopped
// monitor is an error.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("monitor already started")
	}
	select {
	case <-m.stop:
		return errors.New("monitor already stopped")
	default:
	}
	if len(m.cfg.Targets) == 0 {
		return errors.New("no ping targets configured")
	}
	m.running = true
	go m.loop()
	m.log.Info("ping monitor started", "targets", m.cfg.Targets, "interval", m.cfg.Interval)
	return nil
}

// Stop signals the probe loop, waits for it to go quiescent, and returns
// every buffered sample in production order. If ctx expires before the
// loop exits the samples gathered so far are still returned along with the
// context error.
func (m *Monitor) Stop(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.mu.Unlock()

	var joinErr error
	select {
	case <-m.done:
	case <-ctx.Done():
		joinErr = fmt.Errorf("join ping monitor: %w", ctx.Err())
	}

	var entries []Entry
	for {
		select {
		case e := <-m.samples:
			entries = append(entries, e)
		default:
			m.mu.Lock()
			dropped := m.dropped
			m.mu.Unlock()
			if dropped > 0 {
				m.log.Warn("ping samples dropped, buffer was full", "dropped", dropped)
			}
			return entries, joinErr
		}
	}
}

func (m *Monitor) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		cycleStart := m.clock.Now()
		for _, target := range m.cfg.Targets {
			m.record(m.probe(target))
			select {
			case <-m.stop:
				return
			default:
			}
		}

		if rest := m.cfg.Interval - m.clock.Now().Sub(cycleStart); rest > 0 {
			m.clock.Sleep(rest)
		}
	}
}

func (m *Monitor) probe(target string) Entry {
	e := Entry{
		Timestamp:  float64(m.clock.Now().UnixNano()) / 1e9,
		Target:     target,
		PacketLoss: 1,
	}
	ms, err := m.pinger.Ping(context.Background(), target, m.cfg.Timeout)
	switch {
	case err == nil:
		e.PingMs = ms
		e.HasPing = true
		e.PacketLoss = 0
		e.Status = StatusOK
	case errors.Is(err, ErrPingTimeout):
		e.Status = StatusTimeout
	case errors.Is(err, ErrPingParse):
		e.Status = StatusParseError
		m.log.Debug("ping output unparseable", "target", target)
	default:
		e.Status = StatusError
		m.log.Debug("ping failed", "target", target, "error", err)
	}
	return e
}

func (m *Monitor) record(e Entry) {
	select {
	case m.samples <- e:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

// MonitorStats summarizes a collected sample run.
type MonitorStats struct {
	Total       int
	Success     int
	Timeouts    int
	Errors      int
	LossRate    float64
	AvgPingMs   float64
	MinPingMs   float64
	MaxPingMs   float64
	HighLatency int
}

// Stats summarizes entries against the configured high-latency threshold.
func (m *Monitor) Stats(entries []Entry) MonitorStats {
	return SummarizeEntries(entries, m.cfg.HighLatencyMs)
}

// SummarizeEntries computes aggregate statistics over a sample run.
func SummarizeEntries(entries []Entry, highLatencyMs float64) MonitorStats {
	s := MonitorStats{Total: len(entries)}
	var pings []float64
	for _, e := range entries {
		switch e.Status {
		case StatusOK:
			s.Success++
		case StatusTimeout:
			s.Timeouts++
		default:
			s.Errors++
		}
		if e.HasPing {
			pings = append(pings, e.PingMs)
			if e.PingMs > highLatencyMs {
				s.HighLatency++
			}
		}
	}
	if s.Total > 0 {
		s.LossRate = float64(s.Total-s.Success) / float64(s.Total)
	}
	if len(pings) > 0 {
		s.AvgPingMs = stat.Mean(pings, nil)
		s.MinPingMs = pings[0]
		s.MaxPingMs = pings[0]
		for _, p := range pings[1:] {
			if p < s.MinPingMs {
				s.MinPingMs = p
			}
			if p > s.MaxPingMs {
				s.MaxPingMs = p
			}
		}
	}
	return s
}
