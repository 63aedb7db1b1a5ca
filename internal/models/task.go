package models

import "time"

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	TaskBacklog    TaskStatus = "backlog"
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// TerminalTaskStatuses never count as open work.
var TerminalTaskStatuses = []TaskStatus{TaskCompleted, TaskCancelled}

// IsTerminal reports whether no further work is expected on the task.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// Task is a unit of work assigned to a user.
type Task struct {
	ID             string     `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	ProjectID      string     `db:"project_id" json:"project_id"`
	Title          string     `db:"title" json:"title"`
	AssignedTo     string     `db:"assigned_to" json:"assigned_to"`
	Status         TaskStatus `db:"status" json:"status"`
	DueDate        *time.Time `db:"due_date" json:"due_date,omitempty"`
	EstimatedHours float64    `db:"estimated_hours" json:"estimated_hours"`
	StoryPoints    float64    `db:"story_points" json:"story_points"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// EffortHours returns the estimate, falling back to two hours per story point.
func (t *Task) EffortHours() float64 {
	if t.EstimatedHours > 0 {
		return t.EstimatedHours
	}
	return t.StoryPoints * 2
}
