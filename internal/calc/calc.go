package calc

import (
	"math"
	"time"

	"github.com/good-yellow-bee/riskline/internal/models"
)

// ReworkRatio returns rework as a percentage of total minutes.
// A zero total yields 0, never NaN.
func ReworkRatio(totalMinutes, reworkMinutes int) float64 {
	if totalMinutes <= 0 {
		return 0
	}
	return float64(reworkMinutes) / float64(totalMinutes) * 100
}

// Direction selects which side of the threshold qualifies a period.
type Direction int

const (
	// Above qualifies values strictly greater than the threshold.
	Above Direction = iota
	// Below qualifies values strictly less than the threshold.
	Below
)

func (d Direction) qualifies(v, threshold float64) bool {
	if d == Below {
		return v < threshold
	}
	return v > threshold
}

// MaxStreak scans recentFirst from oldest to newest and returns the longest run
// of consecutive qualifying periods.
func MaxStreak(recentFirst []float64, threshold float64, dir Direction) int {
	run, best := 0, 0
	for i := len(recentFirst) - 1; i >= 0; i-- {
		if dir.qualifies(recentFirst[i], threshold) {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return best
}

// Utilization returns logged minutes as a percentage of working capacity.
func Utilization(loggedMinutes float64, workingDays int, dailyMinutes float64) float64 {
	capacity := float64(workingDays) * dailyMinutes
	if capacity <= 0 {
		return 0
	}
	return loggedMinutes / capacity * 100
}

// Percent returns part as a percentage of whole, 0 when whole is not positive.
func Percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}

// SprintLengthDays is the sprint length the deadline forecast assumes.
const SprintLengthDays = 14

// Forecast is the projected completion of the remaining scope.
type Forecast struct {
	DaysNeeded    int
	ForecastDate  time.Time
	DeviationDays int
}

// ForecastDeadline projects when remainingPoints will be done at averageVelocity
// points per sprint. ok is false when velocity is zero and nothing can be forecast.
func ForecastDeadline(remainingPoints, averageVelocity float64, deadline, today time.Time) (Forecast, bool) {
	if averageVelocity <= 0 {
		return Forecast{}, false
	}
	daysNeeded := int(math.Ceil(remainingPoints / averageVelocity * SprintLengthDays))
	forecastDate := Day(today).AddDate(0, 0, daysNeeded)
	deviation := int(math.Ceil(forecastDate.Sub(Day(deadline)).Hours() / 24))
	return Forecast{
		DaysNeeded:    daysNeeded,
		ForecastDate:  forecastDate,
		DeviationDays: deviation,
	}, true
}

// Average returns the arithmetic mean, 0 for an empty slice.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// WorkloadTasks selects the open tasks that count toward this week's workload:
// due this week or actively worked on (in progress or in review). Anything due
// strictly before today is excluded, which also drops tasks overdue from
// earlier weeks.
func WorkloadTasks(tasks []*models.Task, today time.Time) []*models.Task {
	today = Day(today)
	weekEnd := StartOfWeek(today).AddDate(0, 0, 7)

	var selected []*models.Task
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			continue
		}
		active := t.Status == models.TaskInProgress || t.Status == models.TaskReview
		dueThisWeek := false
		if t.DueDate != nil {
			due := Day(*t.DueDate)
			if due.Before(today) {
				continue
			}
			dueThisWeek = due.Before(weekEnd)
		}
		if dueThisWeek || active {
			selected = append(selected, t)
		}
	}
	return selected
}

// WeeklyWorkloadHours sums effort hours over WorkloadTasks.
func WeeklyWorkloadHours(tasks []*models.Task, today time.Time) float64 {
	var hours float64
	for _, t := range WorkloadTasks(tasks, today) {
		hours += t.EffortHours()
	}
	return hours
}

// Round1 rounds to one decimal place for human-facing messages.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
