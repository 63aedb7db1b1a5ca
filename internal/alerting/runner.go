package alerting

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/metrics"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/notifier"
	"github.com/good-yellow-bee/riskline/internal/recipients"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Concurrency is the number of tenants processed at once. Values below 2
	// process tenants sequentially.
	Concurrency int
	// BaseURL prefixes every notification link.
	BaseURL string
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Runner executes rules over every tenant.
type Runner struct {
	store    storage.Storage
	mailer   notifier.Mailer
	gate     *dedup.Gate
	resolver *recipients.Resolver
	log      *slog.Logger
	opts     RunnerOptions
}

// NewRunner creates a runner.
func NewRunner(store storage.Storage, mailer notifier.Mailer, gate *dedup.Gate, log *slog.Logger, opts RunnerOptions) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		store:    store,
		mailer:   mailer,
		gate:     gate,
		resolver: recipients.NewResolver(store),
		log:      log,
		opts:     opts,
	}
}

// Run evaluates rule for every tenant. force bypasses dedup. The returned
// error is non-nil only for fatal failures; entity failures are counted in
// the report.
func (r *Runner) Run(ctx context.Context, rule Rule, force bool) (*Report, error) {
	start := time.Now()
	now := r.opts.Now().In(r.gate.Location())
	report := newReport(rule.Name(), now)
	log := r.log.With(slog.String("rule", rule.Name()))
	if force {
		log.Warn("dedup bypassed by --force")
	}

	err := r.run(ctx, rule, force, now, report, log)

	elapsed := time.Since(start)
	report.duration.Store(int64(elapsed))
	metrics.RuleRunDuration.WithLabelValues(rule.Name()).Observe(elapsed.Seconds())

	s := report.Snapshot()
	if err != nil {
		metrics.RuleRunsTotal.WithLabelValues(rule.Name(), "fatal").Inc()
		log.Error("rule run aborted", slog.Any("error", err))
		return report, err
	}
	metrics.RuleRunsTotal.WithLabelValues(rule.Name(), "ok").Inc()
	log.Info("rule run complete",
		slog.Int64("tenants", s.Tenants),
		slog.Int64("processed", s.Processed),
		slog.Int64("notified", s.Notified),
		slog.Int64("suppressed", s.Suppressed),
		slog.Int64("emails", s.Emails),
		slog.Int64("email_failures", s.EmailFailures),
		slog.Int64("mutations", s.Mutations),
		slog.Int64("entity_errors", s.EntityErrors),
		slog.Duration("duration", elapsed),
	)
	return report, nil
}

func (r *Runner) run(ctx context.Context, rule Rule, force bool, now time.Time, report *Report, log *slog.Logger) error {
	tenants, err := r.store.Tenants().List(ctx)
	if err != nil {
		return apperrors.Fatal("list tenants", err)
	}

	gate := r.gate.WithForce(force)
	publisher := NewPublisher(r.store.Notifications(), r.mailer, gate, report, log)
	newEnv := func(t *models.Tenant) *Env {
		return &Env{
			Rule:      rule.Name(),
			Tenant:    t,
			Store:     r.store,
			Resolver:  r.resolver,
			Gate:      gate,
			Log:       log.With(slog.String("tenant", t.ID)),
			Now:       now,
			baseURL:   r.opts.BaseURL,
			publisher: publisher,
			report:    report,
		}
	}

	if r.opts.Concurrency < 2 {
		for _, t := range tenants {
			if err := r.runTenant(ctx, rule, newEnv(t)); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, t := range tenants {
		env := newEnv(t)
		g.Go(func() error {
			return r.runTenant(gctx, rule, env)
		})
	}
	return g.Wait()
}

// runTenant returns only errors that must abort the run.
func (r *Runner) runTenant(ctx context.Context, rule Rule, env *Env) (err error) {
	if err := ctx.Err(); err != nil {
		return apperrors.Fatal("run cancelled", err)
	}
	env.report.tenants.Add(1)

	defer func() {
		if rec := recover(); rec != nil {
			env.Log.ErrorContext(ctx, "tenant evaluation panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			env.entityError()
			err = nil
		}
	}()

	if rerr := rule.Run(ctx, env); rerr != nil {
		if apperrors.IsFatal(rerr) {
			return rerr
		}
		if ctx.Err() != nil {
			return apperrors.Fatal("run cancelled", rerr)
		}
		env.Log.ErrorContext(ctx, "tenant evaluation failed", slog.Any("error", rerr))
		env.entityError()
	}
	return nil
}
