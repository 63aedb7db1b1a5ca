package calc

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/riskline/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReworkRatio(t *testing.T) {
	tests := []struct {
		name          string
		total, rework int
		want          float64
	}{
		{name: "zero total", total: 0, rework: 0, want: 0},
		{name: "zero total with rework", total: 0, rework: 30, want: 0},
		{name: "quarter", total: 400, rework: 100, want: 25},
		{name: "all rework", total: 60, rework: 60, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReworkRatio(tt.total, tt.rework)
			assert.False(t, math.IsNaN(got))
			assert.False(t, math.IsInf(got, 0))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMaxStreak(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		threshold float64
		dir       Direction
		want      int
	}{
		{name: "runaway rework", values: []float64{35, 30, 26}, threshold: 25, dir: Above, want: 3},
		{name: "only newest and oldest above", values: []float64{16, 14, 20}, threshold: 15, dir: Above, want: 1},
		{name: "two most recent above", values: []float64{18, 16, 10}, threshold: 15, dir: Above, want: 2},
		{name: "equal is not above", values: []float64{15, 15, 15}, threshold: 15, dir: Above, want: 0},
		{name: "empty", values: nil, threshold: 15, dir: Above, want: 0},
		{name: "below direction", values: []float64{80, 70, 90}, threshold: 85, dir: Below, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxStreak(tt.values, tt.threshold, tt.dir))
		})
	}

	assert.True(t, MaxStreak([]float64{35, 30, 26}, 25, Above) >= 3, "isRunaway")
	assert.False(t, MaxStreak([]float64{16, 14, 20}, 15, Above) >= 2, "isHighRework")
}

func TestParseWeekdays(t *testing.T) {
	set := ParseWeekdays([]string{"Monday", "TUE", "wed", " Thursday ", "fri", "bogus"})
	assert.Len(t, set, 5)
	assert.True(t, set[time.Tuesday])
	assert.False(t, set[time.Saturday])

	def := ParseWeekdays(nil)
	assert.Len(t, def, 6)
	assert.False(t, def[time.Sunday])
}

func TestWorkingDays(t *testing.T) {
	// Thursday 2026-10-15
	today := date(2026, time.October, 15)

	days := WorkingDays(today, []string{"mon", "tue", "wed", "thu", "fri"}, 3, ShortLookbackDays)
	require.Len(t, days, 3)
	assert.Equal(t, date(2026, time.October, 14), days[0])
	assert.Equal(t, date(2026, time.October, 13), days[1])
	assert.Equal(t, date(2026, time.October, 12), days[2])

	days = WorkingDays(today, []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}, 5, ShortLookbackDays)
	require.Len(t, days, 5)
	assert.Equal(t, date(2026, time.October, 9), days[3])
	for _, d := range days {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestWorkingDaysLookbackCap(t *testing.T) {
	today := date(2026, time.October, 15)

	// Only Sundays: 30 working days cannot be found within 60 calendar days.
	days := WorkingDays(today, []string{"sunday"}, 30, LongLookbackDays)
	assert.Len(t, days, 9)
	for _, d := range days {
		assert.Equal(t, time.Sunday, d.Weekday())
	}
}

func TestDaysExcludingSunday(t *testing.T) {
	// Tuesday 2026-10-20: previous 7 non-Sunday days span back to Mon 2026-10-12.
	days := DaysExcludingSunday(date(2026, time.October, 20), 7)
	require.Len(t, days, 7)
	assert.Equal(t, date(2026, time.October, 19), days[0])
	assert.Equal(t, date(2026, time.October, 12), days[6])
	for _, d := range days {
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestUtilization(t *testing.T) {
	assert.Equal(t, 0.0, Utilization(0, 30, 480))
	assert.Equal(t, 0.0, Utilization(100, 0, 480))
	assert.InDelta(t, 50.0, Utilization(240*30, 30, 480), 1e-9)
}

func TestForecastDeadline(t *testing.T) {
	today := date(2026, time.October, 15)

	f, ok := ForecastDeadline(100, 10, today, today)
	require.True(t, ok)
	assert.Equal(t, 140, f.DaysNeeded)
	assert.Equal(t, today.AddDate(0, 0, 140), f.ForecastDate)
	assert.Equal(t, 140, f.DeviationDays)

	f, ok = ForecastDeadline(15, 10, today.AddDate(0, 0, 30), today)
	require.True(t, ok)
	assert.Equal(t, 21, f.DaysNeeded)
	assert.Equal(t, -9, f.DeviationDays)

	_, ok = ForecastDeadline(100, 0, today, today)
	assert.False(t, ok)
}

func TestWeeklyWorkloadHours(t *testing.T) {
	// Thursday; week runs Mon 12th to Sun 18th.
	today := date(2026, time.October, 15)
	due := func(d time.Time) *time.Time { return &d }

	tasks := []*models.Task{
		{ID: "due-this-week", Status: models.TaskTodo, DueDate: due(date(2026, time.October, 17)), EstimatedHours: 10},
		{ID: "due-today", Status: models.TaskTodo, DueDate: due(today), StoryPoints: 3},
		{ID: "in-progress-later", Status: models.TaskInProgress, DueDate: due(date(2026, time.October, 30)), EstimatedHours: 5},
		{ID: "review-no-due", Status: models.TaskReview, EstimatedHours: 4},
		{ID: "overdue", Status: models.TaskInProgress, DueDate: due(date(2026, time.October, 14)), EstimatedHours: 50},
		{ID: "completed", Status: models.TaskCompleted, DueDate: due(today), EstimatedHours: 50},
		{ID: "todo-next-week", Status: models.TaskTodo, DueDate: due(date(2026, time.October, 20)), EstimatedHours: 50},
		{ID: "backlog-no-due", Status: models.TaskBacklog, EstimatedHours: 50},
	}

	selected := WorkloadTasks(tasks, today)
	ids := make([]string, 0, len(selected))
	for _, task := range selected {
		ids = append(ids, task.ID)
	}
	assert.ElementsMatch(t, []string{"due-this-week", "due-today", "in-progress-later", "review-no-due"}, ids)
	assert.InDelta(t, 10+6+5+4, WeeklyWorkloadHours(tasks, today), 1e-9)
}

func TestStartOfWeek(t *testing.T) {
	assert.Equal(t, date(2026, time.October, 12), StartOfWeek(date(2026, time.October, 15)))
	assert.Equal(t, date(2026, time.October, 12), StartOfWeek(date(2026, time.October, 18)))
	assert.Equal(t, date(2026, time.October, 19), StartOfWeek(date(2026, time.October, 19)))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 50.0, Percent(240, 480))
	assert.Equal(t, 0.0, Percent(10, 0))
	assert.InDelta(t, 112.5, Percent(540, 480), 1e-9)
}

func TestWall(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	now := time.Date(2026, 10, 14, 1, 30, 0, 0, berlin)
	wall := Wall(now)
	assert.Equal(t, time.Date(2026, 10, 14, 1, 30, 0, 0, time.UTC), wall)
	assert.True(t, Day(now).Before(wall), "midnight of today is already past at 01:30 local")
	assert.False(t, Day(now).AddDate(0, 0, 1).Before(wall))
}
