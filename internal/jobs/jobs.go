// Package jobs runs rule jobs and the escalation sweeper by name, one at a
// time, and schedules them in serve mode.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/escalation"
	"github.com/good-yellow-bee/riskline/internal/rules"
)

// Runner executes one rule. *alerting.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, rule alerting.Rule, force bool) (*alerting.Report, error)
}

// Service owns the registered jobs and serializes their execution.
type Service struct {
	runner Runner
	log    *slog.Logger
	order  []string
	jobs   map[string]alerting.Rule

	mu sync.Mutex
}

// NewService registers every rule and the sweeper.
func NewService(runner Runner, rcfg rules.Config, ecfg escalation.Config, log *slog.Logger) *Service {
	s := &Service{
		runner: runner,
		log:    log.With(slog.String("component", "jobs")),
		jobs:   make(map[string]alerting.Rule),
	}
	for _, r := range rules.All(rcfg) {
		s.register(r)
	}
	s.register(escalation.New(ecfg))
	return s
}

func (s *Service) register(r alerting.Rule) {
	s.order = append(s.order, r.Name())
	s.jobs[r.Name()] = r
}

// Names returns every job name in run-all order. The sweeper is last.
func (s *Service) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Run executes the job called name. Runs never overlap.
func (s *Service) Run(ctx context.Context, name string, force bool) (alerting.Snapshot, error) {
	job, ok := s.jobs[name]
	if !ok {
		return alerting.Snapshot{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownRule, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.runner.Run(ctx, job, force)
	if report == nil {
		return alerting.Snapshot{Rule: name}, err
	}
	return report.Snapshot(), err
}

// RunAll executes every job in order and stops at the first fatal error.
func (s *Service) RunAll(ctx context.Context, force bool) ([]alerting.Snapshot, error) {
	out := make([]alerting.Snapshot, 0, len(s.order))
	for _, name := range s.order {
		snap, err := s.Run(ctx, name, force)
		out = append(out, snap)
		if err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}
	}
	return out, nil
}

// Schedule configures the serve-mode loop.
type Schedule struct {
	RulesInterval time.Duration
	SweepInterval time.Duration
	RunOnStart    bool
}

// Start runs the rules and the sweeper on their intervals until ctx is done.
// A fatal run is logged and retried on the next tick.
func (s *Service) Start(ctx context.Context, sched Schedule) {
	var wg sync.WaitGroup
	rulesOnly := s.order[:len(s.order)-1]

	loop := func(every time.Duration, names []string) {
		defer wg.Done()
		if every <= 0 {
			return
		}
		if sched.RunOnStart {
			s.runBatch(ctx, names)
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runBatch(ctx, names)
			}
		}
	}

	wg.Add(2)
	go loop(sched.RulesInterval, rulesOnly)
	go loop(sched.SweepInterval, []string{escalation.Name})

	s.log.Info("scheduler started",
		slog.Duration("rules_interval", sched.RulesInterval),
		slog.Duration("sweep_interval", sched.SweepInterval))
	wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Service) runBatch(ctx context.Context, names []string) {
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Run(ctx, name, false); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.log.Error("scheduled job failed", slog.String("job", name), slog.Any("error", err))
		}
	}
}
