package rules

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/notifier/notifiertest"
	"github.com/good-yellow-bee/riskline/internal/storage"
	"github.com/good-yellow-bee/riskline/internal/storage/storagetest"
)

// Wednesday.
var baseNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

var mondayToFriday = models.StringList{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type harness struct {
	*storagetest.Fixture
	t      *testing.T
	mailer *notifiertest.Recorder
	now    time.Time
	tenant *models.Tenant
	pm     *models.User
	admin  *models.User
}

func newHarness(t *testing.T) *harness {
	f := storagetest.NewFixture(t)
	h := &harness{Fixture: f, t: t, mailer: &notifiertest.Recorder{}, now: baseNow}
	h.tenant = f.Tenant("owner@acme.test")
	h.pm = f.User(h.tenant.ID, "pm@acme.test", models.RoleProjectManager)
	h.admin = f.User(h.tenant.ID, "admin@acme.test", models.RoleAdmin)
	return h
}

func (h *harness) runner() *alerting.Runner {
	gate := dedup.NewGate(h.Store.Notifications(), nil, time.UTC)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return alerting.NewRunner(h.Store, h.mailer, gate, log, alerting.RunnerOptions{
		BaseURL: "https://app.acme.test",
		Now:     func() time.Time { return h.now },
	})
}

func (h *harness) run(rule alerting.Rule) alerting.Snapshot {
	h.t.Helper()
	report, err := h.runner().Run(context.Background(), rule, false)
	require.NoError(h.t, err)
	return report.Snapshot()
}

func (h *harness) project(name string, team models.TeamMembers, opts ...func(*models.Project)) *models.Project {
	return h.Project(h.tenant.ID, name, team, opts...)
}

func (h *harness) ofType(typ models.NotificationType) []*models.Notification {
	return h.Notifications(storage.NotificationFilter{Types: []models.NotificationType{typ}})
}

func recipientsOf(list []*models.Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.RecipientEmail
	}
	return out
}

func withPM(h *harness) models.TeamMembers {
	return models.TeamMembers{{Email: h.pm.Email, Role: models.RoleProjectManager}}
}

func TestRegistry(t *testing.T) {
	all := All(DefaultConfig())
	require.Len(t, all, len(Names()))
	for i, r := range all {
		assert.Equal(t, Names()[i], r.Name())
	}

	_, err := New("nope", DefaultConfig())
	assert.ErrorIs(t, err, apperrors.ErrUnknownRule)

	r, err := New(NameOverwork, Config{OverworkWeeklyHours: 40})
	require.NoError(t, err)
	assert.Equal(t, 40.0, r.(*Overwork).WeeklyHoursLimit)
}

func TestReworkTrend_Runaway(t *testing.T) {
	h := newHarness(t)
	p := h.project("Alpha", withPM(h))

	sprints := []struct {
		start, end time.Time
		rework     int
	}{
		{day(2026, 9, 1), day(2026, 9, 14), 26},
		{day(2026, 9, 15), day(2026, 9, 28), 30},
		{day(2026, 9, 29), day(2026, 10, 12), 35},
	}
	for i, s := range sprints {
		h.Sprint(p, "Sprint "+string(rune('1'+i)), s.start, s.end)
		h.Timesheet(h.tenant.ID, p.ID, h.pm.Email, s.start.AddDate(0, 0, 2), 100, s.rework, models.TimesheetApproved)
	}

	s := h.run(&ReworkTrend{})
	assert.Equal(t, int64(1), s.Processed)

	alarms := h.ofType(models.TypeRunawayRework)
	assert.ElementsMatch(t, []string{"pm@acme.test", "admin@acme.test", "owner@acme.test"}, recipientsOf(alarms))
	for _, n := range alarms {
		assert.Equal(t, models.CategoryAlarm, n.Category)
		assert.Equal(t, "https://app.acme.test/projects/"+p.ID, n.Link)
		md, ok := n.Metadata.Metadata.(*models.ReworkMetadata)
		require.True(t, ok)
		assert.Equal(t, []float64{35, 30, 26}, md.ReworkPercents)
	}
	assert.Len(t, h.mailer.Emails(), 3)
	assert.Empty(t, h.ofType(models.TypeHighRework))

	assert.Equal(t, models.ProjectOnHold, h.ReloadProject(p.ID).Status)
	debt, err := h.Store.Sprints().FindCurrentByName(context.Background(), p.ID, techDebtSprintName, calc.Day(h.now))
	require.NoError(t, err)
	assert.True(t, debt.AutoCreated)
	assert.Equal(t, 14, calc.DaysBetween(debt.StartDate, debt.EndDate))

	// The open alarm holds; nothing fires again while it stands.
	s = h.run(&ReworkTrend{})
	assert.Equal(t, int64(0), s.Processed, "project is on hold now")
	assert.Len(t, h.ofType(models.TypeRunawayRework), 3)
	assert.Len(t, h.mailer.Emails(), 3)
}

func TestReworkTrend_HighReworkAlert(t *testing.T) {
	h := newHarness(t)
	p := h.project("Beta", withPM(h))

	// Oldest to newest: 10%, 18%, 20%.
	for i, rework := range []int{10, 18, 20} {
		start := day(2026, 9, 1).AddDate(0, 0, 14*i)
		h.Sprint(p, "S", start, start.AddDate(0, 0, 13))
		h.Timesheet(h.tenant.ID, p.ID, h.pm.Email, start, 100, rework, models.TimesheetSubmitted)
	}

	h.run(&ReworkTrend{})
	alerts := h.ofType(models.TypeHighRework)
	assert.Equal(t, []string{"pm@acme.test"}, recipientsOf(alerts))
	assert.Empty(t, h.ofType(models.TypeRunawayRework))
	assert.Equal(t, models.ProjectActive, h.ReloadProject(p.ID).Status)

	h.run(&ReworkTrend{})
	assert.Len(t, h.ofType(models.TypeHighRework), 1, "daily dedup")
}

func TestReworkTrend_SingleSpikeIsQuiet(t *testing.T) {
	h := newHarness(t)
	p := h.project("Gamma", withPM(h))

	// Oldest to newest: 20%, 14%, 16%.
	for i, rework := range []int{20, 14, 16} {
		start := day(2026, 9, 1).AddDate(0, 0, 14*i)
		h.Sprint(p, "S", start, start.AddDate(0, 0, 13))
		h.Timesheet(h.tenant.ID, p.ID, h.pm.Email, start, 100, rework, models.TimesheetSubmitted)
	}

	h.run(&ReworkTrend{})
	assert.Empty(t, h.ofType(models.TypeHighRework))
	assert.Empty(t, h.ofType(models.TypeRunawayRework))
}

func TestDeadlineRisk(t *testing.T) {
	h := newHarness(t)
	today := calc.Day(h.now)
	p := h.project("Alpha", withPM(h), func(p *models.Project) { p.Deadline = &today })
	for i := 0; i < 3; i++ {
		h.Velocity(p, "S", today.AddDate(0, 0, -14*(i+1)), 12, 10)
	}
	h.Task(p, "a", "", models.TaskTodo, func(t *models.Task) { t.StoryPoints = 60 })
	h.Task(p, "b", "", models.TaskInProgress, func(t *models.Task) { t.StoryPoints = 40 })
	h.Task(p, "done", "", models.TaskCompleted, func(t *models.Task) { t.StoryPoints = 500 })

	h.run(&DeadlineRisk{})

	alarms := h.ofType(models.TypeDeadlineRisk)
	require.Len(t, alarms, 1)
	md := alarms[0].Metadata.Metadata.(*models.DeadlineMetadata)
	assert.Equal(t, 140, md.DaysNeeded)
	assert.Equal(t, 140, md.DeviationDays)
	assert.Equal(t, 100.0, md.RemainingPoints)

	reloaded := h.ReloadProject(p.ID)
	assert.True(t, reloaded.ScopeLocked)
	assert.Equal(t, models.RiskHigh, reloaded.RiskLevel)
}

func TestDeadlineRisk_NoVelocitySkips(t *testing.T) {
	h := newHarness(t)
	today := calc.Day(h.now)
	p := h.project("Alpha", withPM(h), func(p *models.Project) { p.Deadline = &today })
	h.Task(p, "a", "", models.TaskTodo, func(t *models.Task) { t.StoryPoints = 60 })

	s := h.run(&DeadlineRisk{})
	assert.Equal(t, int64(0), s.EntityErrors)
	assert.Empty(t, h.ofType(models.TypeDeadlineRisk))
	assert.False(t, h.ReloadProject(p.ID).ScopeLocked)
}

func TestLowVelocity(t *testing.T) {
	h := newHarness(t)
	today := calc.Day(h.now)
	low := h.project("Low", withPM(h))
	h.Velocity(low, "S1", today.AddDate(0, 0, -15), 10, 8)
	h.Velocity(low, "S2", today.AddDate(0, 0, -1), 10, 7)

	single := h.project("Single", withPM(h))
	h.Velocity(single, "S1", today.AddDate(0, 0, -1), 10, 1)

	fine := h.project("Fine", withPM(h))
	h.Velocity(fine, "S1", today.AddDate(0, 0, -15), 10, 9)
	h.Velocity(fine, "S2", today.AddDate(0, 0, -1), 10, 9)

	h.run(&LowVelocity{})

	alerts := h.ofType(models.TypeLowVelocity)
	require.Len(t, alerts, 1)
	assert.Equal(t, low.ID, alerts[0].EntityID)
	md := alerts[0].Metadata.Metadata.(*models.VelocityMetadata)
	assert.Equal(t, 75.0, md.AverageAccuracy)
	assert.Equal(t, 2, md.BelowStreak)
}

func TestTeamUtilization_AlarmExcludesAlert(t *testing.T) {
	h := newHarness(t)
	dev := h.User(h.tenant.ID, "dev@acme.test", models.RoleMember, func(u *models.User) {
		u.WorkingDays = mondayToFriday
	})
	p := h.project("Alpha", models.TeamMembers{{Email: dev.Email, Role: "developer"}})
	h.Role(p, h.pm.Email, models.RoleProjectManager, "")

	h.run(&TeamUtilization{})

	alarms := h.ofType(models.TypeTeamUtilizationCrit)
	assert.ElementsMatch(t, []string{"pm@acme.test", "admin@acme.test", "owner@acme.test"}, recipientsOf(alarms))
	assert.Empty(t, h.ofType(models.TypeTeamUtilizationWarn))

	md := alarms[0].Metadata.Metadata.(*models.UtilizationMetadata)
	assert.Equal(t, 0.0, md.Utilization)
	assert.Equal(t, 30, md.WindowDays)
}

func TestTeamUtilization_ShortWindowAlert(t *testing.T) {
	h := newHarness(t)
	dev := h.User(h.tenant.ID, "dev@acme.test", models.RoleMember, func(u *models.User) {
		u.WorkingDays = mondayToFriday
	})
	p := h.project("Alpha", models.TeamMembers{{Email: dev.Email, Role: "developer"}})
	h.Role(p, h.pm.Email, models.RoleProjectManager, "")

	// Full days except the most recent 7 working days: 23/30 over the long
	// window, 0/7 over the short one.
	days := calc.WorkingDays(h.now, mondayToFriday, 30, calc.LongLookbackDays)
	for i, d := range days {
		if i >= 7 {
			h.Timesheet(h.tenant.ID, p.ID, dev.Email, d, 480, 0, models.TimesheetApproved)
		}
	}

	h.run(&TeamUtilization{})

	assert.Empty(t, h.ofType(models.TypeTeamUtilizationCrit))
	alerts := h.ofType(models.TypeTeamUtilizationWarn)
	assert.Equal(t, []string{"pm@acme.test"}, recipientsOf(alerts))
}

func TestOverwork(t *testing.T) {
	h := newHarness(t)
	dev := h.User(h.tenant.ID, "dev@acme.test", models.RoleMember)
	p := h.project("Alpha", append(withPM(h), models.TeamMember{Email: dev.Email, Role: "developer"}))
	h.Task(p, "big", dev.Email, models.TaskInProgress, func(t *models.Task) { t.EstimatedHours = 50 })
	h.Task(p, "points", dev.Email, models.TaskTodo, func(t *models.Task) {
		due := calc.Day(h.now).AddDate(0, 0, 2)
		t.DueDate = &due
		t.StoryPoints = 10
	})

	relaxed := h.User(h.tenant.ID, "relaxed@acme.test", models.RoleMember, func(u *models.User) {
		u.IsOverloaded = true
	})

	rule := &Overwork{WeeklyHoursLimit: 66}
	h.run(rule)

	alarms := h.ofType(models.TypeOverwork)
	assert.Equal(t, []string{"pm@acme.test"}, recipientsOf(alarms))
	assert.Equal(t, 70.0, alarms[0].Metadata.Metadata.(*models.OverworkMetadata).WeeklyHours)
	assert.True(t, h.ReloadUser(dev.ID).IsOverloaded)
	assert.False(t, h.ReloadUser(relaxed.ID).IsOverloaded)

	// Still overloaded the next day: no second notification.
	h.now = h.now.Add(24 * time.Hour)
	s := h.run(rule)
	assert.Len(t, h.ofType(models.TypeOverwork), 1)
	assert.Equal(t, int64(0), s.Mutations)
}

func TestMissingTimesheets(t *testing.T) {
	h := newHarness(t)
	lazy := h.User(h.tenant.ID, "lazy@acme.test", models.RoleMember)
	diligent := h.User(h.tenant.ID, "diligent@acme.test", models.RoleMember)
	locked := h.User(h.tenant.ID, "locked@acme.test", models.RoleMember, func(u *models.User) {
		u.IsTimesheetLocked = true
	})
	p := h.project("Alpha", append(withPM(h),
		models.TeamMember{Email: lazy.Email, Role: "developer"},
		models.TeamMember{Email: diligent.Email, Role: "developer"}))

	days := calc.DaysExcludingSunday(h.now, 7)
	require.Len(t, days, 7)
	for _, d := range days[:4] {
		h.Timesheet(h.tenant.ID, p.ID, diligent.Email, d, 480, 0, models.TimesheetSubmitted)
	}
	// Drafts do not count.
	h.Timesheet(h.tenant.ID, p.ID, lazy.Email, days[0], 480, 0, models.TimesheetDraft)

	h.run(&MissingTimesheets{})

	assert.True(t, h.ReloadUser(lazy.ID).IsTimesheetLocked)
	assert.False(t, h.ReloadUser(diligent.ID).IsTimesheetLocked)

	lazyAlarms := h.Notifications(storage.NotificationFilter{
		Types:    []models.NotificationType{models.TypeMissingTimesheets},
		EntityID: lazy.ID,
	})
	assert.ElementsMatch(t, []string{"lazy@acme.test", "pm@acme.test"}, recipientsOf(lazyAlarms))
	md := lazyAlarms[0].Metadata.Metadata.(*models.TimesheetMetadata)
	assert.Len(t, md.MissingDates, 7)

	assert.Empty(t, h.Notifications(storage.NotificationFilter{EntityID: locked.ID}))
	assert.Empty(t, h.Notifications(storage.NotificationFilter{EntityID: diligent.ID}))
}

func TestOverdueTasks_BlockRefreshAndCooldown(t *testing.T) {
	h := newHarness(t)
	dev := h.User(h.tenant.ID, "dev@acme.test", models.RoleMember)
	p := h.project("Alpha", withPM(h))
	for i, d := range []time.Time{day(2026, 10, 1), day(2026, 10, 10)} {
		due := d
		h.Task(p, "late "+string(rune('a'+i)), dev.Email, models.TaskInProgress, func(t *models.Task) { t.DueDate = &due })
	}
	// Due at midnight today; at 09:00 it is already past due and counts.
	dueToday := calc.Day(h.now)
	h.Task(p, "today", dev.Email, models.TaskTodo, func(t *models.Task) { t.DueDate = &dueToday })
	tomorrow := dueToday.AddDate(0, 0, 1)
	h.Task(p, "tomorrow", dev.Email, models.TaskTodo, func(t *models.Task) { t.DueDate = &tomorrow })
	done := day(2026, 10, 2)
	h.Task(p, "finished", dev.Email, models.TaskCompleted, func(t *models.Task) { t.DueDate = &done })

	rule := &OverdueTasks{EmailCooldown: 4 * time.Hour}
	s := h.run(rule)
	assert.Equal(t, int64(1), s.Mutations)
	assert.True(t, h.ReloadUser(dev.ID).IsOverdueBlocked)

	alarms := h.ofType(models.TypeMultipleOverdue)
	assert.ElementsMatch(t, []string{"dev@acme.test", "pm@acme.test"}, recipientsOf(alarms))
	md := alarms[0].Metadata.Metadata.(*models.OverdueMetadata)
	assert.Equal(t, 3, md.OverdueCount)
	assert.Equal(t, 13, md.MostOverdueDays)
	assert.Len(t, h.mailer.Emails(), 2)

	// One hour later: refreshed in place, no new records, no emails, no flag write.
	h.now = h.now.Add(time.Hour)
	s = h.run(rule)
	assert.Equal(t, int64(0), s.Mutations)
	assert.Len(t, h.ofType(models.TypeMultipleOverdue), 2)
	assert.Len(t, h.mailer.Emails(), 2)

	// Past the cooldown the standing alarms are emailed again.
	h.now = h.now.Add(4 * time.Hour)
	h.run(rule)
	assert.Len(t, h.ofType(models.TypeMultipleOverdue), 2)
	assert.Len(t, h.mailer.Emails(), 4)
}

func TestOverdueTasks_ClearsBlockAndResolves(t *testing.T) {
	h := newHarness(t)
	dev := h.User(h.tenant.ID, "dev@acme.test", models.RoleMember, func(u *models.User) {
		u.IsOverdueBlocked = true
	})
	key := "multiple_overdue_alarm|" + dev.ID + "|dev@acme.test|open"
	require.NoError(t, h.Store.Notifications().Create(context.Background(), &models.Notification{
		ID:             "n-1",
		TenantID:       h.tenant.ID,
		RecipientEmail: dev.Email,
		Type:           models.TypeMultipleOverdue,
		Category:       models.CategoryAlarm,
		Status:         models.StatusOpen,
		EntityType:     models.EntityUser,
		EntityID:       dev.ID,
		DedupKey:       &key,
		CreatedAt:      baseNow.Add(-48 * time.Hour),
	}))

	h.run(&OverdueTasks{EmailCooldown: 4 * time.Hour})

	assert.False(t, h.ReloadUser(dev.ID).IsOverdueBlocked)
	n, err := h.Store.Notifications().GetByID(context.Background(), "n-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, n.Status)
	assert.Nil(t, n.DedupKey)
}

func TestIdleTime(t *testing.T) {
	h := newHarness(t)
	idle := h.User(h.tenant.ID, "idle@acme.test", models.RoleMember, func(u *models.User) {
		u.WorkingDays = mondayToFriday
	})
	busy := h.User(h.tenant.ID, "busy@acme.test", models.RoleMember, func(u *models.User) {
		u.WorkingDays = mondayToFriday
	})
	p := h.project("Alpha", append(withPM(h),
		models.TeamMember{Email: idle.Email, Role: "developer"},
		models.TeamMember{Email: busy.Email, Role: "developer"}))
	docs := h.Task(p, "Write docs", "", models.TaskBacklog)
	h.Task(p, "Taken", busy.Email, models.TaskBacklog)

	yesterday := day(2026, 10, 13)
	h.Timesheet(h.tenant.ID, p.ID, idle.Email, yesterday, 240, 0, models.TimesheetSubmitted)
	h.Timesheet(h.tenant.ID, p.ID, busy.Email, yesterday, 450, 0, models.TimesheetSubmitted)

	h.run(&IdleTime{})

	list := h.Notifications(storage.NotificationFilter{
		Types:    []models.NotificationType{models.TypeIdleTime},
		EntityID: idle.ID,
	})
	require.Len(t, list, 1)
	assert.Equal(t, idle.Email, list[0].RecipientEmail)
	assert.Equal(t, models.CategoryInfo, list[0].Category)
	md := list[0].Metadata.Metadata.(*models.IdleMetadata)
	assert.Equal(t, 50.0, md.IdlePercent)
	require.Len(t, md.SuggestedTasks, 1)
	assert.Equal(t, docs.ID, md.SuggestedTasks[0].ID)

	assert.Empty(t, h.Notifications(storage.NotificationFilter{
		Types:    []models.NotificationType{models.TypeIdleTime},
		EntityID: busy.ID,
	}))
}

func TestUnderUtilization(t *testing.T) {
	h := newHarness(t)
	dev := h.User(h.tenant.ID, "dev@acme.test", models.RoleMember, func(u *models.User) {
		u.WorkingDays = mondayToFriday
	})
	h.project("Alpha", append(withPM(h), models.TeamMember{Email: dev.Email, Role: "developer"}))

	h.run(&UnderUtilization{})

	list := h.Notifications(storage.NotificationFilter{
		Types:    []models.NotificationType{models.TypeUnderUtilization},
		EntityID: dev.ID,
	})
	assert.Equal(t, []string{"pm@acme.test"}, recipientsOf(list))
	assert.Equal(t, "https://app.acme.test/users/"+dev.ID, list[0].Link)
}

func TestSubscription_TrialWarningOnce(t *testing.T) {
	h := newHarness(t)
	ends := h.now.Add(48 * time.Hour)
	trial := h.Tenant("founder@beta.test", func(t *models.Tenant) {
		t.Status = models.TenantTrial
		t.TrialEndsAt = &ends
	})

	h.run(&Subscription{})
	warnings := h.Notifications(storage.NotificationFilter{
		TenantID: trial.ID,
		Types:    []models.NotificationType{models.TypeTrialEnding},
	})
	assert.Equal(t, []string{"founder@beta.test"}, recipientsOf(warnings))
	assert.True(t, h.ReloadTenant(trial.ID).FeaturesEnabled.Enabled(models.FeatureTrialWarningSent))

	h.now = h.now.Add(24 * time.Hour)
	h.run(&Subscription{})
	assert.Len(t, h.Notifications(storage.NotificationFilter{
		TenantID: trial.ID,
		Types:    []models.NotificationType{models.TypeTrialEnding},
	}), 1)
}

func TestSubscription_Expiry(t *testing.T) {
	h := newHarness(t)
	past := h.now.Add(-time.Hour)
	trial := h.Tenant("founder@beta.test", func(t *models.Tenant) {
		t.Status = models.TenantTrial
		t.TrialEndsAt = &past
	})
	paid := h.Tenant("boss@gamma.test", func(t *models.Tenant) {
		t.SubscriptionEndsAt = &past
	})

	s := h.run(&Subscription{})
	assert.Equal(t, int64(2), s.Mutations)

	for _, id := range []string{trial.ID, paid.ID} {
		tn := h.ReloadTenant(id)
		assert.Equal(t, models.TenantPastDue, tn.Status)
		assert.Equal(t, models.SubscriptionExpired, tn.SubscriptionStatus)
		assert.Len(t, h.Notifications(storage.NotificationFilter{
			TenantID: id,
			Types:    []models.NotificationType{models.TypeSubscriptionExpired},
		}), 1)
	}
	assert.Equal(t, models.TenantActive, h.ReloadTenant(h.tenant.ID).Status)

	s = h.run(&Subscription{})
	assert.Equal(t, int64(0), s.Mutations)
}
