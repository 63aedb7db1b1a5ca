package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/riskline/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "riskline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "riskline.db", cfg.Database.Path)
	assert.False(t, cfg.SMTP.Enabled())
	assert.Equal(t, "memory", cfg.Locker.Backend)
	assert.Equal(t, 1, cfg.Runner.Concurrency)
	assert.Equal(t, 66.0, cfg.Rules.OverworkWeeklyHours)
	assert.Equal(t, 4*time.Hour, cfg.Rules.OverdueEmailCooldown)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.SweepInterval)

	esc := cfg.EscalationConfig()
	assert.Equal(t, 8*time.Hour, esc.Alert.Reminder)
	assert.Equal(t, 12*time.Hour, esc.Alarm.Escalation)
	assert.Nil(t, esc.Overrides)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
env: prod
timezone: Europe/Berlin
database:
  path: /var/lib/riskline/data.db
smtp:
  host: smtp.acme.test
  from: alerts@acme.test
  password: hunter2
rules:
  overwork_weekly_hours: 50
escalation:
  overrides:
    overwork_alarm:
      reminder: 1h
      escalation: 6h
`)
	t.Setenv("RISKLINE_CONCURRENCY", "4")
	t.Setenv("RISKLINE_BASE_URL", "https://app.acme.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "/var/lib/riskline/data.db", cfg.Database.Path)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 4, cfg.Runner.Concurrency)
	assert.Equal(t, "https://app.acme.test", cfg.App.BaseURL)
	assert.Equal(t, 50.0, cfg.RulesConfig().OverworkWeeklyHours)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	esc := cfg.EscalationConfig()
	assert.Equal(t, time.Hour, esc.Overrides[models.TypeOverwork].Reminder)
	assert.Equal(t, 6*time.Hour, esc.Overrides[models.TypeOverwork].Escalation)

	smtp := cfg.SMTPConfig()
	assert.Equal(t, "Riskline", smtp.AppName)
	assert.Equal(t, "hunter2", smtp.Password)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad env", "env: staging\n"},
		{"redis without addr", "locker:\n  backend: redis\n"},
		{"smtp without from", "smtp:\n  host: smtp.acme.test\n"},
		{"bad timezone", "timezone: Mars/Olympus\n"},
		{"reminder after escalation", "escalation:\n  alert_reminder: 30h\n"},
		{"override of info type", "escalation:\n  overrides:\n    idle_time_alert:\n      reminder: 1h\n      escalation: 2h\n"},
		{"zero concurrency", "runner:\n  concurrency: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDump_MasksSecrets(t *testing.T) {
	path := writeConfig(t, `
smtp:
  host: smtp.acme.test
  from: alerts@acme.test
  password: hunter2
locker:
  backend: redis
  redis_addr: localhost:6379
  redis_password: s3cret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.Dump(&buf))
	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "overdue_email_cooldown: 4h0m0s")

	assert.Equal(t, "hunter2", cfg.SMTP.Password, "dump must not touch the loaded config")
}
