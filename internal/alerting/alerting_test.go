package alerting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/notifier/notifiertest"
	"github.com/good-yellow-bee/riskline/internal/recipients"
	"github.com/good-yellow-bee/riskline/internal/storage"
	"github.com/good-yellow-bee/riskline/internal/storage/storagetest"
)

var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

type funcRule struct {
	name string
	fn   func(ctx context.Context, env *Env) error
}

func (r funcRule) Name() string                          { return r.name }
func (r funcRule) Run(ctx context.Context, env *Env) error { return r.fn(ctx, env) }

func newRunner(t *testing.T, f *storagetest.Fixture, mailer *notifiertest.Recorder, concurrency int) *Runner {
	t.Helper()
	gate := dedup.NewGate(f.Store.Notifications(), nil, time.UTC)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(f.Store, mailer, gate, log, RunnerOptions{
		Concurrency: concurrency,
		BaseURL:     "https://app.example.test/",
		Now:         func() time.Time { return testNow },
	})
}

func projectMessage(p *models.Project, policy dedup.Policy) Message {
	return Message{
		Type:       models.TypeLowVelocity,
		Category:   models.CategoryAlert,
		EntityType: models.EntityProject,
		EntityID:   p.ID,
		ProjectID:  p.ID,
		Title:      "Low velocity",
		Body:       "Accuracy dropped",
		Policy:     policy,
	}
}

func TestHighest(t *testing.T) {
	tier, ok := Highest(
		Tier{Type: models.TypeTeamUtilizationCrit, Tripped: true},
		Tier{Type: models.TypeTeamUtilizationWarn, Tripped: true},
	)
	require.True(t, ok)
	assert.Equal(t, models.TypeTeamUtilizationCrit, tier.Type)

	tier, ok = Highest(
		Tier{Type: models.TypeTeamUtilizationCrit},
		Tier{Type: models.TypeTeamUtilizationWarn, Tripped: true},
	)
	require.True(t, ok)
	assert.Equal(t, models.TypeTeamUtilizationWarn, tier.Type)

	_, ok = Highest(Tier{}, Tier{})
	assert.False(t, ok)
}

func TestNotify_DailyDedup(t *testing.T) {
	f := storagetest.NewFixture(t)
	tenant := f.Tenant("owner@acme.test")
	pm := f.User(tenant.ID, "pm@acme.test", models.RoleProjectManager)
	p := f.Project(tenant.ID, "Alpha", models.TeamMembers{{Email: pm.Email, Role: models.RoleProjectManager}})
	mailer := &notifiertest.Recorder{}

	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		msg := projectMessage(p, dedup.PolicyDaily)
		msg.Link = env.Link("/projects/%s", p.ID)
		_, err := env.Notify(ctx, msg, Fixed(recipients.User(pm)))
		return err
	}}

	r := newRunner(t, f, mailer, 1)
	report, err := r.Run(context.Background(), rule, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Snapshot().Notified)

	report, err = r.Run(context.Background(), rule, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Snapshot().Notified)
	assert.Equal(t, int64(1), report.Snapshot().Suppressed)

	list := f.Notifications(storage.NotificationFilter{EntityID: p.ID})
	require.Len(t, list, 1)
	assert.Equal(t, "https://app.example.test/projects/"+p.ID, list[0].Link)
	require.NotNil(t, list[0].LastEmailSent)
	assert.Len(t, mailer.To(pm.Email), 1)
}

func TestNotify_ForceBypassesDedup(t *testing.T) {
	f := storagetest.NewFixture(t)
	tenant := f.Tenant("owner@acme.test")
	pm := f.User(tenant.ID, "pm@acme.test", models.RoleProjectManager)
	p := f.Project(tenant.ID, "Alpha", nil)

	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		_, err := env.Notify(ctx, projectMessage(p, dedup.PolicyDaily), Fixed(recipients.User(pm)))
		return err
	}}

	r := newRunner(t, f, &notifiertest.Recorder{}, 1)
	for i := 0; i < 2; i++ {
		_, err := r.Run(context.Background(), rule, true)
		require.NoError(t, err)
	}
	assert.Len(t, f.Notifications(storage.NotificationFilter{EntityID: p.ID}), 2)
}

func TestNotify_NoRecipientsSkips(t *testing.T) {
	f := storagetest.NewFixture(t)
	tenant := f.Tenant("owner@acme.test")
	p := f.Project(tenant.ID, "Alpha", nil)

	var out Outcome
	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		var err error
		out, err = env.Notify(ctx, projectMessage(p, dedup.PolicyDaily), Fixed())
		return err
	}}

	_, err := newRunner(t, f, &notifiertest.Recorder{}, 1).Run(context.Background(), rule, false)
	require.NoError(t, err)
	assert.True(t, out.NoRecipients)
	assert.Empty(t, f.Notifications(storage.NotificationFilter{EntityID: p.ID}))
}

func TestNotify_EmailFailureKeepsRecord(t *testing.T) {
	f := storagetest.NewFixture(t)
	tenant := f.Tenant("owner@acme.test")
	pm := f.User(tenant.ID, "pm@acme.test", models.RoleProjectManager)
	p := f.Project(tenant.ID, "Alpha", nil)
	mailer := &notifiertest.Recorder{Err: errors.New("smtp down")}

	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		_, err := env.Notify(ctx, projectMessage(p, dedup.PolicyOpen), Fixed(recipients.User(pm)))
		return err
	}}

	report, err := newRunner(t, f, mailer, 1).Run(context.Background(), rule, false)
	require.NoError(t, err)
	s := report.Snapshot()
	assert.Equal(t, int64(1), s.Notified)
	assert.Equal(t, int64(1), s.EmailFailures)

	list := f.Notifications(storage.NotificationFilter{EntityID: p.ID})
	require.Len(t, list, 1)
	assert.Nil(t, list[0].LastEmailSent)
}

func TestEach_IsolatesFailures(t *testing.T) {
	f := storagetest.NewFixture(t)
	f.Tenant("owner@acme.test")

	var visited atomic.Int32
	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		for _, id := range []string{"a", "b", "c"} {
			id := id
			err := env.Each(ctx, models.EntityProject, id, func(*slog.Logger) error {
				visited.Add(1)
				switch id {
				case "a":
					return errors.New("boom")
				case "b":
					panic("bad record")
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}}

	report, err := newRunner(t, f, &notifiertest.Recorder{}, 1).Run(context.Background(), rule, false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), visited.Load())
	s := report.Snapshot()
	assert.Equal(t, int64(3), s.Processed)
	assert.Equal(t, int64(2), s.EntityErrors)
}

func TestRun_FatalAborts(t *testing.T) {
	f := storagetest.NewFixture(t)
	f.Tenant("a@acme.test")
	f.Tenant("b@acme.test")

	var calls atomic.Int32
	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		calls.Add(1)
		return apperrors.Fatal("storage", errors.New("gone"))
	}}

	_, err := newRunner(t, f, &notifiertest.Recorder{}, 1).Run(context.Background(), rule, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_TenantErrorContinues(t *testing.T) {
	f := storagetest.NewFixture(t)
	f.Tenant("a@acme.test")
	f.Tenant("b@acme.test")

	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		return errors.New("tenant broken")
	}}

	report, err := newRunner(t, f, &notifiertest.Recorder{}, 1).Run(context.Background(), rule, false)
	require.NoError(t, err)
	s := report.Snapshot()
	assert.Equal(t, int64(2), s.Tenants)
	assert.Equal(t, int64(2), s.EntityErrors)
}

func TestRun_ConcurrentTenants(t *testing.T) {
	f := storagetest.NewFixture(t)
	for _, owner := range []string{"a@acme.test", "b@acme.test", "c@acme.test", "d@acme.test"} {
		f.Tenant(owner)
	}

	var seen atomic.Int32
	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		seen.Add(1)
		return nil
	}}

	report, err := newRunner(t, f, &notifiertest.Recorder{}, 3).Run(context.Background(), rule, false)
	require.NoError(t, err)
	assert.Equal(t, int32(4), seen.Load())
	assert.Equal(t, int64(4), report.Snapshot().Tenants)
}

func TestDeliver_SkipsDedup(t *testing.T) {
	f := storagetest.NewFixture(t)
	tenant := f.Tenant("owner@acme.test")
	admin := f.User(tenant.ID, "admin@acme.test", models.RoleAdmin)
	p := f.Project(tenant.ID, "Alpha", nil)

	rule := funcRule{name: "test", fn: func(ctx context.Context, env *Env) error {
		msg := projectMessage(p, dedup.PolicyDaily)
		msg.SkipEmail = true
		_, err := env.Deliver(ctx, msg, []recipients.Recipient{recipients.User(admin), recipients.User(admin)})
		return err
	}}

	mailer := &notifiertest.Recorder{}
	r := newRunner(t, f, mailer, 1)
	for i := 0; i < 2; i++ {
		_, err := r.Run(context.Background(), rule, false)
		require.NoError(t, err)
	}

	list := f.Notifications(storage.NotificationFilter{EntityID: p.ID})
	assert.Len(t, list, 2)
	for _, n := range list {
		assert.Nil(t, n.DedupKey)
	}
	assert.Empty(t, mailer.Emails())
}
