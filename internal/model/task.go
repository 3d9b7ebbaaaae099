package model

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSubmitted TaskStatus = "submitted"
	TaskApproved  TaskStatus = "approved"
	TaskRejected  TaskStatus = "rejected"
	TaskExpired   TaskStatus = "expired"
)

type TaskType string

const (
	TaskRegular TaskType = "regular"
	TaskSpecial TaskType = "special"
)

type Recurrence string

const (
	RecurNone       Recurrence = "none"
	RecurDaily      Recurrence = "daily"
	RecurWeekly     Recurrence = "weekly"
	RecurMonthly    Recurrence = "monthly"
	RecurMinutely   Recurrence = "minutely"
	RecurCustomDays Recurrence = "custom_days"
)

type ExpiryPolicy string

const (
	ExpiryAutoClose ExpiryPolicy = "auto_close"
	ExpiryRollover  ExpiryPolicy = "rollover"
	ExpiryKeep      ExpiryPolicy = "keep"
)

type Task struct {
	ID              int64        `json:"id"`
	FamilyID        string       `json:"family_id"`
	ParentID        int64        `json:"parent_id"`
	ChildID         int64        `json:"child_id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Icon            string       `json:"icon"`
	Points          int          `json:"points"`
	Category        string       `json:"category"`
	TaskType        TaskType     `json:"task_type"`
	Status          TaskStatus   `json:"status"`
	RequirePhoto    bool         `json:"require_photo"`
	PhotoURL        string       `json:"photo_url"`
	Note            string       `json:"note"`
	RejectionReason string       `json:"rejection_reason"`
	Recurrence      Recurrence   `json:"recurrence"`
	RecurrenceDay   *int         `json:"recurrence_day,omitempty"`
	RecurrenceDays  []int        `json:"recurrence_days,omitempty"`
	AutoPublishTime string       `json:"auto_publish_time,omitempty"`
	Deadline        *time.Time   `json:"deadline,omitempty"`
	ExpiryPolicy    ExpiryPolicy `json:"expiry_policy"`
	StreakCount     int          `json:"streak_count"`
	IsRecurring     bool         `json:"is_recurring"`
	IsTemplate      bool         `json:"is_template"`
	OriginalTaskID  *int64       `json:"original_task_id,omitempty"`
	SubmittedAt     *time.Time   `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsRecurringTemplate reports whether the task spawns generated instances.
func (t *Task) IsRecurringTemplate() bool {
	return t.IsTemplate && t.IsRecurring && t.Recurrence != RecurNone
}
