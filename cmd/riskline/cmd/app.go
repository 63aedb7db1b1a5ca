package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/config"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/jobs"
	"github.com/good-yellow-bee/riskline/internal/metrics"
	"github.com/good-yellow-bee/riskline/internal/notifier"
	"github.com/good-yellow-bee/riskline/internal/storage"
	buildinfo "github.com/good-yellow-bee/riskline/pkg/config"
	"github.com/good-yellow-bee/riskline/pkg/logger/slogpretty"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	store  storage.Storage
	mailer notifier.Mailer
	redis  *dedup.RedisLocker
	jobs   *jobs.Service
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, apperrors.Fatal("load config", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	store := storage.NewSQLiteStorage(cfg.Database.Path, log)
	if err := store.Open(); err != nil {
		return nil, apperrors.Fatal("open storage", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, apperrors.Fatal("migrate storage", err)
	}
	return store, nil
}

// newApp loads the configuration and wires storage, email, dedup and jobs.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := slogpretty.SetupLogger(cfg.Env)

	bi := buildinfo.GetBuildInfo()
	metrics.SetBuildInfo(bi.Version, bi.Commit, bi.BuildTime)

	loc, err := cfg.Location()
	if err != nil {
		return nil, apperrors.Fatal("load config", err)
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: store}

	var base notifier.Mailer
	if cfg.SMTP.Enabled() {
		smtp, err := notifier.NewSMTPMailer(cfg.SMTPConfig())
		if err != nil {
			a.Close()
			return nil, apperrors.Fatal("configure smtp", err)
		}
		base = smtp
	} else {
		log.Warn("smtp not configured, emails will be logged only")
		base = notifier.NewLogMailer(log)
	}
	a.mailer = notifier.NewResilientMailer(base, cfg.ResilientConfig(), log)

	var locker dedup.Locker = dedup.NewKeyedMutex()
	if cfg.Locker.Backend == "redis" {
		a.redis, err = dedup.NewRedisLocker(ctx, cfg.RedisLockerConfig(), log)
		if err != nil {
			a.Close()
			return nil, apperrors.Fatal("connect dedup locker", err)
		}
		locker = a.redis
	}

	gate := dedup.NewGate(store.Notifications(), locker, loc)
	runner := alerting.NewRunner(store, a.mailer, gate, log, alerting.RunnerOptions{
		Concurrency: cfg.Runner.Concurrency,
		BaseURL:     cfg.App.BaseURL,
	})
	a.jobs = jobs.NewService(runner, cfg.RulesConfig(), cfg.EscalationConfig(), log)

	log.Debug("riskline ready",
		slog.Any("build", bi),
		slog.String("database", cfg.Database.Path),
		slog.String("mailer", a.mailer.Name()),
		slog.String("locker", cfg.Locker.Backend))
	return a, nil
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.mailer != nil {
		if err := a.mailer.Close(); err != nil {
			a.log.Warn("close mailer", slog.Any("error", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("close redis", slog.Any("error", err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close storage", slog.Any("error", err))
	}
}

// pushMetrics sends the batch metrics to the Pushgateway, if configured.
func (a *app) pushMetrics(ctx context.Context, job string) {
	if err := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, "riskline_"+job, a.cfg.Metrics.Instance); err != nil {
		a.log.Warn("metrics push failed", slog.Any("error", err))
	}
}

func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
