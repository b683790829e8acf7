package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/cadlive/livemap/internal/engine"
	"github.com/cadlive/livemap/internal/influx"
	"github.com/cadlive/livemap/internal/logging"
	"github.com/cadlive/livemap/internal/supervisor"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Engine     *engine.Engine
	Supervisor *supervisor.Supervisor
	Influx     *influx.Manager
	StatusDir  string
	Interval   time.Duration
}

// Service periodically samples engine and transport counters, writes
// them to a status file and ships them to InfluxDB when available.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 30 * time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample is one monitoring tick.
type Sample struct {
	Time       time.Time `json:"time"`
	State      string    `json:"state"`
	Endpoint   string    `json:"endpoint"`
	Players    int       `json:"players"`
	Signs      int       `json:"signs"`
	Lookups    uint64    `json:"lookups"`
	CacheHits  uint64    `json:"cacheHits"`
	Failures   uint64    `json:"failures"`
	Unmatched  uint64    `json:"unmatched"`
	Received   uint64    `json:"framesReceived"`
	Sent       uint64    `json:"framesSent"`
	Malformed  uint64    `json:"framesMalformed"`
	Reconnects uint64    `json:"reconnects"`
	Pending    int       `json:"pendingOutbound"`
	BadFrames  uint64    `json:"badPayloads"`
}

// GetProgramStatus samples the current engine and transport state.
func (s *Service) GetProgramStatus() (output []string, sample Sample) {
	status := s.deps.Supervisor.Status()
	engStats := s.deps.Engine.Stats()
	chStats := s.deps.Supervisor.ChannelStats()

	sample = Sample{
		Time:       time.Now(),
		State:      string(status.State),
		Endpoint:   status.Endpoint,
		Players:    engStats.Registry.CurrentPlayers,
		Signs:      engStats.Signs,
		Lookups:    engStats.Resolver.Lookups,
		CacheHits:  engStats.Resolver.CacheHits,
		Failures:   engStats.Resolver.Failures,
		Unmatched:  engStats.Resolver.Unmatched,
		Received:   chStats.Received,
		Sent:       chStats.Sent,
		Malformed:  chStats.Malformed,
		Reconnects: chStats.Reconnects,
		Pending:    chStats.Pending,
		BadFrames:  engStats.BadPayloads,
	}

	raw, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(raw))

	return output, sample
}

// writeInflux ships one sample to the engine_performance bucket.
func (s *Service) writeInflux(sample Sample) {
	if s.deps.Influx == nil {
		return
	}

	point := influxdb2.NewPointWithMeasurement("engine_status").
		AddTag("state", sample.State).
		AddTag("endpoint", sample.Endpoint).
		AddField("players", sample.Players).
		AddField("signs", sample.Signs).
		AddField("lookups", int64(sample.Lookups)).
		AddField("cache_hits", int64(sample.CacheHits)).
		AddField("resolution_failures", int64(sample.Failures)).
		AddField("unmatched", int64(sample.Unmatched)).
		AddField("frames_received", int64(sample.Received)).
		AddField("frames_sent", int64(sample.Sent)).
		AddField("frames_malformed", int64(sample.Malformed)).
		AddField("reconnects", int64(sample.Reconnects)).
		AddField("pending_outbound", sample.Pending).
		AddField("bad_payloads", int64(sample.BadFrames)).
		SetTime(sample.Time)

	if err := s.deps.Influx.WritePoint(context.Background(), "engine_performance", point); err != nil {
		s.deps.LogManager.Logger().Error("Error writing status to InfluxDB", "error", err)
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		statusFile, err := os.Create(s.deps.StatusDir + "/status.txt")
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				statusStr, sample := s.GetProgramStatus()

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					for _, line := range statusStr {
						statusFile.WriteString(line + "\n")
					}
				}

				s.writeInflux(sample)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
		s.isRunning = false
	}
}
