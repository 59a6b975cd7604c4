package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/db"
	"github.com/orrn/printdispatch/internal/events"
	"github.com/orrn/printdispatch/internal/ticket"
)

// JobStore is the persistence the queue runs on. Every status write is a
// conditional update reporting whether it matched.
type JobStore interface {
	Insert(ctx context.Context, j *db.PrintJob) error
	Get(ctx context.Context, restaurantID int64, id string) (*db.PrintJob, error)
	ListPending(ctx context.Context, restaurantID int64) ([]*db.PrintJob, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*db.PrintJob, error)
	MarkPrinting(ctx context.Context, restaurantID int64, id, client string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, restaurantID int64, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, restaurantID int64, id, message string) (bool, error)
	MarkPending(ctx context.Context, restaurantID int64, id string) (bool, error)
	CountByStatus(ctx context.Context, restaurantID int64) (map[string]int, error)
	CountPendingByType(ctx context.Context, restaurantID int64) (map[string]int, error)
}

type EnqueueRequest struct {
	RestaurantID   int64
	JobType        ticket.Kind
	Content        []byte
	PrinterName    string
	OrderRef       *int64
	PaymentRef     *int64
	RestaurantName string
	OrderNumber    string
}

// Queue is the restaurant-scoped print job state machine.
type Queue struct {
	store  JobStore
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewQueue(store JobStore, pub events.Publisher, log *zap.Logger) *Queue {
	return &Queue{store: store, events: pub, log: log, now: time.Now}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (q *Queue) publish(ctx context.Context, typ events.Type, data events.JobData) {
	if q.events == nil {
		return
	}
	ev := events.Event{Event: typ, Timestamp: q.now().UTC(), Data: data}
	if err := q.events.Publish(ctx, ev); err != nil {
		q.log.Warn("failed to publish job event",
			zap.String("event", string(typ)),
			zap.String("job_id", data.JobID),
			zap.Error(err))
	}
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.RestaurantID <= 0 {
		return "", fmt.Errorf("%w: restaurant id is required", ErrInvalidJob)
	}
	if !req.JobType.Valid() {
		return "", fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, req.JobType)
	}
	if len(req.Content) == 0 {
		return "", fmt.Errorf("%w: content is empty", ErrInvalidJob)
	}

	row := &db.PrintJob{
		ID:             uuid.NewString(),
		RestaurantID:   req.RestaurantID,
		JobType:        string(req.JobType),
		Content:        req.Content,
		PrinterName:    req.PrinterName,
		OrderRef:       nullInt(req.OrderRef),
		PaymentRef:     nullInt(req.PaymentRef),
		RestaurantName: req.RestaurantName,
		OrderNumber:    req.OrderNumber,
		CreatedAt:      q.now(),
	}
	if err := q.store.Insert(ctx, row); err != nil {
		return "", err
	}

	q.log.Info("print job enqueued",
		zap.String("job_id", row.ID),
		zap.Int64("restaurant_id", row.RestaurantID),
		zap.String("job_type", row.JobType),
		zap.String("printer_name", row.PrinterName))
	q.publish(ctx, events.JobEnqueued, events.JobData{
		JobID: row.ID, RestaurantID: row.RestaurantID, JobType: row.JobType, Status: string(StatusPending),
	})
	return row.ID, nil
}

func (q *Queue) FetchPending(ctx context.Context, restaurantID int64) ([]*Job, error) {
	rows, err := q.store.ListPending(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, jobFromRow(r))
	}
	return jobs, nil
}

func (q *Queue) Get(ctx context.Context, restaurantID int64, jobID string) (*Job, error) {
	r, err := q.store.Get(ctx, restaurantID, jobID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	return jobFromRow(r), nil
}

// rejected explains why a guarded update matched no row: the job is missing
// or belongs to someone else, or it is in a status the move does not allow.
func (q *Queue) rejected(ctx context.Context, restaurantID int64, jobID string, to JobStatus) (*Job, error) {
	job, err := q.Get(ctx, restaurantID, jobID)
	if err != nil {
		return nil, err
	}
	return job, &TransitionError{JobID: jobID, From: job.Status, To: to}
}

// Claim moves a pending job to printing for workerID. When two workers race
// on the same job exactly one wins; the other gets ErrInvalidTransition.
func (q *Queue) Claim(ctx context.Context, restaurantID int64, jobID, workerID string) error {
	ok, err := q.store.MarkPrinting(ctx, restaurantID, jobID, workerID, q.now())
	if err != nil {
		return err
	}
	if !ok {
		_, err := q.rejected(ctx, restaurantID, jobID, StatusPrinting)
		return err
	}

	q.log.Info("print job claimed",
		zap.String("job_id", jobID),
		zap.Int64("restaurant_id", restaurantID),
		zap.String("client", workerID))
	q.publish(ctx, events.JobClaimed, events.JobData{
		JobID: jobID, RestaurantID: restaurantID, Status: string(StatusPrinting), Client: workerID,
	})
	return nil
}

// Complete marks a printing job completed. Completing a job that is already
// completed is a no-op.
func (q *Queue) Complete(ctx context.Context, restaurantID int64, jobID string) error {
	ok, err := q.store.MarkCompleted(ctx, restaurantID, jobID, q.now())
	if err != nil {
		return err
	}
	if !ok {
		job, err := q.rejected(ctx, restaurantID, jobID, StatusCompleted)
		if job != nil && job.Status == StatusCompleted {
			return nil
		}
		return err
	}

	q.log.Info("print job completed",
		zap.String("job_id", jobID),
		zap.Int64("restaurant_id", restaurantID))
	q.publish(ctx, events.JobCompleted, events.JobData{
		JobID: jobID, RestaurantID: restaurantID, Status: string(StatusCompleted),
	})
	return nil
}

func (q *Queue) Fail(ctx context.Context, restaurantID int64, jobID, message string) error {
	ok, err := q.store.MarkFailed(ctx, restaurantID, jobID, message)
	if err != nil {
		return err
	}
	if !ok {
		_, err := q.rejected(ctx, restaurantID, jobID, StatusFailed)
		return err
	}

	job, err := q.Get(ctx, restaurantID, jobID)
	retries := 0
	if err == nil {
		retries = job.RetryCount
	}
	q.log.Warn("print job failed",
		zap.String("job_id", jobID),
		zap.Int64("restaurant_id", restaurantID),
		zap.String("error", message),
		zap.Int("retry_count", retries))
	q.publish(ctx, events.JobFailed, events.JobData{
		JobID: jobID, RestaurantID: restaurantID, Status: string(StatusFailed),
		ErrorMessage: message, RetryCount: retries,
	})
	return nil
}

// Retry puts a failed job back in the queue. The retry count is kept.
func (q *Queue) Retry(ctx context.Context, restaurantID int64, jobID string) error {
	ok, err := q.store.MarkPending(ctx, restaurantID, jobID)
	if err != nil {
		return err
	}
	if !ok {
		_, err := q.rejected(ctx, restaurantID, jobID, StatusPending)
		return err
	}

	q.log.Info("print job requeued",
		zap.String("job_id", jobID),
		zap.Int64("restaurant_id", restaurantID))
	q.publish(ctx, events.JobRetried, events.JobData{
		JobID: jobID, RestaurantID: restaurantID, Status: string(StatusPending),
	})
	return nil
}

func (q *Queue) Stats(ctx context.Context, restaurantID int64) (*Stats, error) {
	byStatus, err := q.store.CountByStatus(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	byType, err := q.store.CountPendingByType(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		RestaurantID:  restaurantID,
		ByStatus:      make(map[JobStatus]int, len(Statuses)),
		PendingByType: make(map[ticket.Kind]int, len(byType)),
	}
	for _, s := range Statuses {
		stats.ByStatus[s] = byStatus[string(s)]
		stats.Total += byStatus[string(s)]
	}
	for k, n := range byType {
		stats.PendingByType[ticket.Kind(k)] = n
	}
	return stats, nil
}
