package model

import "time"

type JobType string

const (
	JobDailyReset     JobType = "daily_reset"
	JobRecurringTasks JobType = "recurring_tasks"
	JobInterest       JobType = "interest"
)

type JobFrequency string

const (
	FreqMinutely JobFrequency = "minutely"
	FreqHourly   JobFrequency = "hourly"
	FreqDaily    JobFrequency = "daily"
)

type JobStatus string

const (
	JobStopped JobStatus = "stopped"
	JobRunning JobStatus = "running"
	JobError   JobStatus = "error"
)

type ScheduledJob struct {
	ID           int64        `json:"id"`
	UserID       int64        `json:"user_id"`
	FamilyID     string       `json:"family_id"`
	Name         string       `json:"name"`
	JobType      JobType      `json:"job_type"`
	Frequency    JobFrequency `json:"frequency"`
	Status       JobStatus    `json:"status"`
	RunCount     int          `json:"run_count"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	LastError    string       `json:"last_error"`
	LastRunAt    *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt    *time.Time   `json:"next_run_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
