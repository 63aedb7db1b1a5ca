package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/rules"
)

func sampleSnapshots() []alerting.Snapshot {
	return []alerting.Snapshot{
		{Rule: "overwork", Tenants: 2, Processed: 10, Notified: 3, Emails: 3, Mutations: 1, Duration: 1500 * time.Millisecond},
		{Rule: "sweep", Tenants: 2, Processed: 4, Notified: 1, EntityErrors: 1, Duration: 20 * time.Millisecond},
	}
}

func TestRenderReports_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderReports(&buf, outputTable, sampleSnapshots()))
	out := buf.String()
	assert.Contains(t, out, "ENTITY ERRORS")
	assert.Contains(t, out, "overwork")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "1.52s")
}

func TestRenderReports_SingleHasNoFooter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderReports(&buf, outputTable, sampleSnapshots()[:1]))
	assert.NotContains(t, buf.String(), "TOTAL")
}

func TestRenderReports_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderReports(&buf, outputJSON, sampleSnapshots()))

	var got []alerting.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Notified)
	assert.Equal(t, int64(1), got[1].EntityErrors)
}

func TestRenderReports_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderReports(&buf, outputPlain, sampleSnapshots()))
	assert.Contains(t, buf.String(), "overwork: tenants=2 processed=10 notified=3")
	assert.Contains(t, buf.String(), "entity_errors=1")
}

func TestRenderNotifications(t *testing.T) {
	list := []*models.Notification{{
		ID:             "n-1",
		Type:           models.TypeOverwork,
		Category:       models.CategoryAlarm,
		Status:         models.StatusOpen,
		RecipientEmail: "pm@acme.test",
		Title:          "Overwork: dev@acme.test",
		CreatedAt:      time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	require.NoError(t, renderNotifications(&buf, outputTable, list))
	assert.Contains(t, buf.String(), "overwork_alarm")
	assert.Contains(t, buf.String(), "1 notification(s)")

	buf.Reset()
	require.NoError(t, renderNotifications(&buf, outputTable, nil))
	assert.Contains(t, buf.String(), "No notifications found.")

	buf.Reset()
	require.NoError(t, renderNotifications(&buf, outputJSON, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestExecute_MigrateAndRunRule(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "riskline.db")
	t.Setenv("RISKLINE_DB_PATH", dbPath)
	t.Setenv("RISKLINE_ENV", "prod")

	rootCmd.SetArgs([]string{"migrate", "-o", "plain"})
	require.NoError(t, Execute(context.Background()))
	_, err := os.Stat(dbPath)
	require.NoError(t, err)

	rootCmd.SetArgs([]string{"subscription", "-o", "plain"})
	assert.NoError(t, Execute(context.Background()))
}

func TestExecute_BadConfigIsFatal(t *testing.T) {
	t.Setenv("RISKLINE_ENV", "staging")

	rootCmd.SetArgs([]string{"overwork", "-o", "table"})
	assert.Error(t, Execute(context.Background()))
}

func TestExecute_UnknownOutput(t *testing.T) {
	rootCmd.SetArgs([]string{"version", "-o", "xml"})
	err := Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
	rootCmd.SetArgs([]string{"version", "-o", "table"})
	require.NoError(t, Execute(context.Background()))
}

func TestForceFlag_IgnoresEnvironment(t *testing.T) {
	t.Setenv("RISKLINE_FORCE", "true")
	initConfig()

	c := newJobCmd(rules.NameOverwork)
	require.NoError(t, c.ParseFlags(nil))
	assert.False(t, forceFlag(c))

	c = newJobCmd(rules.NameOverwork)
	require.NoError(t, c.ParseFlags([]string{"-f"}))
	assert.True(t, forceFlag(c))

	require.NoError(t, runAllCmd.ParseFlags(nil))
	assert.False(t, forceFlag(runAllCmd))
}

func TestJobDescriptions(t *testing.T) {
	assert.Equal(t, "Alert on people logging too little over the last 30 working days",
		newJobCmd(rules.NameUnderUtilization).Short)
	for _, name := range rules.Names() {
		assert.NotEmpty(t, jobDescriptions[name], name)
	}
}
