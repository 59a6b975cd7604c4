package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/orrn/printdispatch/internal/db"
	"github.com/orrn/printdispatch/internal/ticket"
)

var (
	ErrJobNotFound       = errors.New("print job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidJob        = errors.New("invalid print job")
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusPrinting  JobStatus = "printing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

var Statuses = []JobStatus{StatusPending, StatusPrinting, StatusCompleted, StatusFailed}

var transitions = map[JobStatus][]JobStatus{
	StatusPending:  {StatusPrinting, StatusFailed},
	StatusPrinting: {StatusCompleted, StatusFailed},
	StatusFailed:   {StatusPending},
}

// CanTransition reports whether a job may move from one status to another.
// Nothing leaves completed.
func CanTransition(from, to JobStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type TransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot move from %s to %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type Job struct {
	ID              string      `json:"id"`
	RestaurantID    int64       `json:"restaurant_id"`
	JobType         ticket.Kind `json:"job_type"`
	Status          JobStatus   `json:"status"`
	Content         []byte      `json:"-"`
	PrinterName     string      `json:"printer_name"`
	OrderRef        *int64      `json:"order_ref,omitempty"`
	PaymentRef      *int64      `json:"payment_ref,omitempty"`
	RestaurantName  string      `json:"restaurant_name"`
	OrderNumber     string      `json:"order_number"`
	CreatedAt       time.Time   `json:"created_at"`
	ClaimedAt       *time.Time  `json:"claimed_at,omitempty"`
	PrintedAt       *time.Time  `json:"printed_at,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	RetryCount      int         `json:"retry_count"`
	PrintedByClient string      `json:"printed_by_client,omitempty"`
}

func jobFromRow(r *db.PrintJob) *Job {
	j := &Job{
		ID:              r.ID,
		RestaurantID:    r.RestaurantID,
		JobType:         ticket.Kind(r.JobType),
		Status:          JobStatus(r.Status),
		Content:         r.Content,
		PrinterName:     r.PrinterName,
		RestaurantName:  r.RestaurantName,
		OrderNumber:     r.OrderNumber,
		CreatedAt:       r.CreatedAt,
		ErrorMessage:    r.ErrorMessage,
		RetryCount:      r.RetryCount,
		PrintedByClient: r.PrintedByClient,
	}
	if r.OrderRef.Valid {
		v := r.OrderRef.Int64
		j.OrderRef = &v
	}
	if r.PaymentRef.Valid {
		v := r.PaymentRef.Int64
		j.PaymentRef = &v
	}
	if r.ClaimedAt.Valid {
		t := r.ClaimedAt.Time
		j.ClaimedAt = &t
	}
	if r.PrintedAt.Valid {
		t := r.PrintedAt.Time
		j.PrintedAt = &t
	}
	return j
}

type Stats struct {
	RestaurantID  int64               `json:"restaurant_id"`
	ByStatus      map[JobStatus]int   `json:"by_status"`
	PendingByType map[ticket.Kind]int `json:"pending_by_type"`
	Total         int                 `json:"total"`
}
