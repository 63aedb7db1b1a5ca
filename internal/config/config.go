// Package config loads the riskline configuration from a YAML file and
// RISKLINE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/escalation"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/notifier"
	"github.com/good-yellow-bee/riskline/internal/rules"
)

// Config is the complete riskline configuration.
type Config struct {
	Env        string     `yaml:"env" env:"RISKLINE_ENV" env-default:"local" validate:"oneof=local dev prod"`
	Timezone   string     `yaml:"timezone" env:"RISKLINE_TIMEZONE" env-default:"UTC" validate:"required,timezone"`
	Database   Database   `yaml:"database"`
	SMTP       SMTP       `yaml:"smtp"`
	Email      Email      `yaml:"email"`
	Locker     Locker     `yaml:"locker"`
	Metrics    Metrics    `yaml:"metrics"`
	App        App        `yaml:"app"`
	Runner     Runner     `yaml:"runner"`
	Rules      Rules      `yaml:"rules"`
	Escalation Escalation `yaml:"escalation"`
	Schedule   Schedule   `yaml:"schedule"`
}

// Database selects the SQLite file.
type Database struct {
	Path string `yaml:"path" env:"RISKLINE_DB_PATH" env-default:"riskline.db" validate:"required"`
}

// SMTP configures the outgoing relay. An empty host logs emails instead of
// sending them.
type SMTP struct {
	Host     string        `yaml:"host" env:"RISKLINE_SMTP_HOST"`
	Port     int           `yaml:"port" env:"RISKLINE_SMTP_PORT" env-default:"587" validate:"min=1,max=65535"`
	Username string        `yaml:"username" env:"RISKLINE_SMTP_USERNAME"`
	Password string        `yaml:"password" env:"RISKLINE_SMTP_PASSWORD"`
	From     string        `yaml:"from" env:"RISKLINE_SMTP_FROM" validate:"required_with=Host"`
	Timeout  time.Duration `yaml:"timeout" env-default:"30s"`
}

// Enabled reports whether a relay is configured.
func (s SMTP) Enabled() bool {
	return s.Host != ""
}

// Email tunes throttling and the circuit breaker in front of the mailer.
type Email struct {
	RatePerSecond      float64       `yaml:"rate_per_second" env-default:"5" validate:"gte=0"`
	Burst              int           `yaml:"burst" env-default:"5" validate:"gte=0"`
	PerRecipientMax    int           `yaml:"per_recipient_max" env-default:"20" validate:"gte=0"`
	PerRecipientWindow time.Duration `yaml:"per_recipient_window" env-default:"1h"`
	BreakerFailures    uint32        `yaml:"breaker_failures" env-default:"5"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout" env-default:"1m"`
}

// Locker selects how the dedup check-then-create sequence is serialized.
type Locker struct {
	Backend       string        `yaml:"backend" env:"RISKLINE_LOCKER" env-default:"memory" validate:"oneof=memory redis"`
	RedisAddr     string        `yaml:"redis_addr" env:"RISKLINE_REDIS_ADDR" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password" env:"RISKLINE_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"RISKLINE_REDIS_DB"`
	Prefix        string        `yaml:"prefix" env-default:"riskline:lock:"`
	TTL           time.Duration `yaml:"ttl" env-default:"30s"`
}

// Metrics configures the Pushgateway used by batch commands.
type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"RISKLINE_PUSHGATEWAY_URL" validate:"omitempty,url"`
	Instance       string `yaml:"instance" env:"RISKLINE_INSTANCE"`
}

// App holds product-facing settings.
type App struct {
	Name    string `yaml:"name" env-default:"Riskline"`
	BaseURL string `yaml:"base_url" env:"RISKLINE_BASE_URL" env-default:"http://localhost:3000" validate:"required,url"`
}

// Runner tunes rule execution.
type Runner struct {
	Concurrency int `yaml:"concurrency" env:"RISKLINE_CONCURRENCY" env-default:"1" validate:"min=1,max=64"`
}

// Rules holds the injected rule thresholds.
type Rules struct {
	OverworkWeeklyHours  float64       `yaml:"overwork_weekly_hours" env-default:"66" validate:"gt=0"`
	OverdueEmailCooldown time.Duration `yaml:"overdue_email_cooldown" env-default:"4h"`
}

// Escalation holds the sweeper thresholds.
type Escalation struct {
	AlertReminder   time.Duration                 `yaml:"alert_reminder" env-default:"8h"`
	AlertEscalation time.Duration                 `yaml:"alert_escalation" env-default:"24h"`
	AlarmReminder   time.Duration                 `yaml:"alarm_reminder" env-default:"2h"`
	AlarmEscalation time.Duration                 `yaml:"alarm_escalation" env-default:"12h"`
	Overrides       map[string]EscalationOverride `yaml:"overrides,omitempty"`
}

// EscalationOverride replaces the category thresholds for one notification type.
type EscalationOverride struct {
	Reminder   time.Duration `yaml:"reminder"`
	Escalation time.Duration `yaml:"escalation"`
}

// Schedule configures serve mode.
type Schedule struct {
	Listen        string        `yaml:"listen" env:"RISKLINE_LISTEN" env-default:":8080" validate:"required"`
	RulesInterval time.Duration `yaml:"rules_interval" env-default:"24h"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"15m"`
	RunOnStart    bool          `yaml:"run_on_start"`
}

var validate = validator.New()

// Load reads path (when set) and the environment, then validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	e := c.Escalation
	if e.AlertReminder >= e.AlertEscalation {
		return fmt.Errorf("escalation.alert_reminder (%s) must be shorter than alert_escalation (%s)", e.AlertReminder, e.AlertEscalation)
	}
	if e.AlarmReminder >= e.AlarmEscalation {
		return fmt.Errorf("escalation.alarm_reminder (%s) must be shorter than alarm_escalation (%s)", e.AlarmReminder, e.AlarmEscalation)
	}
	for typ := range e.Overrides {
		if !isEligible(models.NotificationType(typ)) {
			return fmt.Errorf("escalation.overrides: %q is not an escalation-eligible type", typ)
		}
	}
	return nil
}

func isEligible(typ models.NotificationType) bool {
	for _, t := range escalation.EligibleTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RulesConfig returns the settings injected into rule jobs.
func (c *Config) RulesConfig() rules.Config {
	return rules.Config{
		OverworkWeeklyHours:  c.Rules.OverworkWeeklyHours,
		OverdueEmailCooldown: c.Rules.OverdueEmailCooldown,
	}
}

// EscalationConfig returns the sweeper thresholds.
func (c *Config) EscalationConfig() escalation.Config {
	out := escalation.Config{
		Alert: escalation.Thresholds{Reminder: c.Escalation.AlertReminder, Escalation: c.Escalation.AlertEscalation},
		Alarm: escalation.Thresholds{Reminder: c.Escalation.AlarmReminder, Escalation: c.Escalation.AlarmEscalation},
	}
	if len(c.Escalation.Overrides) > 0 {
		out.Overrides = make(map[models.NotificationType]escalation.Thresholds, len(c.Escalation.Overrides))
		for typ, o := range c.Escalation.Overrides {
			out.Overrides[models.NotificationType(typ)] = escalation.Thresholds{Reminder: o.Reminder, Escalation: o.Escalation}
		}
	}
	return out
}

// SMTPConfig returns the relay settings.
func (c *Config) SMTPConfig() notifier.SMTPConfig {
	return notifier.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		AppName:  c.App.Name,
		Timeout:  c.SMTP.Timeout,
	}
}

// ResilientConfig returns the mailer throttling and breaker settings.
func (c *Config) ResilientConfig() notifier.ResilientConfig {
	return notifier.ResilientConfig{
		RatePerSecond: c.Email.RatePerSecond,
		Burst:         c.Email.Burst,
		PerRecipient: notifier.RateLimitConfig{
			MaxPerWindow: c.Email.PerRecipientMax,
			Window:       c.Email.PerRecipientWindow,
			Enabled:      c.Email.PerRecipientMax > 0,
		},
		BreakerFailures: c.Email.BreakerFailures,
		BreakerTimeout:  c.Email.BreakerTimeout,
	}
}

// RedisLockerConfig returns the Redis locker settings.
func (c *Config) RedisLockerConfig() dedup.RedisLockerConfig {
	return dedup.RedisLockerConfig{
		Addr:     c.Locker.RedisAddr,
		Password: c.Locker.RedisPassword,
		DB:       c.Locker.RedisDB,
		Prefix:   c.Locker.Prefix,
		TTL:      c.Locker.TTL,
	}
}

const redacted = "********"

// Dump writes the effective configuration as YAML with secrets masked.
func (c *Config) Dump(w io.Writer) error {
	cp := *c
	if cp.SMTP.Password != "" {
		cp.SMTP.Password = redacted
	}
	if cp.Locker.RedisPassword != "" {
		cp.Locker.RedisPassword = redacted
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&cp); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
