// Package probe sends the relay's test message on a schedule so a broken
// token or chat id shows up in the logs before a real booking is lost.
package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"hostelrelay/internal/relay"
	logx "hostelrelay/pkg/logx"
)

// Tester is the part of the relay the probe exercises.
type Tester interface {
	TestConnection(ctx context.Context) relay.Result
}

type Config struct {
	Schedule string
	Location *time.Location
	// Timeout bounds one probe run (default 30s).
	Timeout time.Duration
}

// Snapshot is a point-in-time view of probe activity.
type Snapshot struct {
	Spec     string
	Runs     uint64
	Failures uint64
	LastAt   time.Time
	Last     relay.Result
	Next     time.Time
}

type Service struct {
	cfg    Config
	spec   string
	tester Tester
	log    logx.Logger

	cron  *cron.Cron
	entry cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	runs     uint64
	failures uint64
	lastAt   time.Time
	last     relay.Result
}

// ParseSchedule normalizes a schedule string into a cron spec.
//
// Supported forms:
//   - Cron: "0 9 * * *", "*/30 * * * *"
//   - Descriptor: "@hourly", "@every 6h"
//   - Go duration: "6h", "90m" (becomes "@every 6h0m0s")
func ParseSchedule(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}
	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		s = strings.TrimSpace(s[len("cron:"):])
	} else if !strings.HasPrefix(s, "@") && !strings.ContainsAny(s, " \t") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return "", fmt.Errorf("invalid schedule %q (use cron like '0 9 * * *', '@every 6h' or a duration like '6h')", raw)
		}
		if d <= 0 {
			return "", fmt.Errorf("interval must be > 0")
		}
		s = "@every " + d.String()
	}
	if _, err := cron.ParseStandard(s); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return s, nil
}

func New(cfg Config, tester Tester, log logx.Logger) (*Service, error) {
	if tester == nil {
		return nil, fmt.Errorf("probe: tester is nil")
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg,
		spec:   spec,
		tester: tester,
		log:    log,
		cron:   cron.New(cron.WithLocation(cfg.Location)),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	id, err := s.cron.AddFunc(spec, func() { s.RunOnce(s.ctx) })
	if err != nil {
		return nil, err
	}
	s.entry = id
	return s, nil
}

// Spec returns the normalized cron spec.
func (s *Service) Spec() string { return s.spec }

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info("probe scheduled", logx.String("spec", s.spec), logx.Time("next", s.cron.Entry(s.entry).Next))
}

// Stop halts the schedule and waits for a running probe, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce sends one test message and records the outcome.
func (s *Service) RunOnce(ctx context.Context) relay.Result {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res := s.tester.TestConnection(runCtx)

	s.mu.Lock()
	s.runs++
	if !res.OK {
		s.failures++
	}
	s.lastAt = start
	s.last = res
	s.mu.Unlock()

	if res.OK {
		s.log.Info("connection probe ok", logx.Duration("took", time.Since(start)))
	} else {
		s.log.Warn("connection probe failed", logx.String("reason", res.Reason))
	}
	return res
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Spec:     s.spec,
		Runs:     s.runs,
		Failures: s.failures,
		LastAt:   s.lastAt,
		Last:     s.last,
		Next:     s.cron.Entry(s.entry).Next,
	}
}
