package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*PrintJob, error) {
	j := &PrintJob{}
	err := row.Scan(
		&j.Seq, &j.ID, &j.RestaurantID, &j.JobType, &j.Status, &j.Content, &j.PrinterName,
		&j.OrderRef, &j.PaymentRef, &j.RestaurantName, &j.OrderNumber, &j.CreatedAt,
		&j.ClaimedAt, &j.PrintedAt, &j.ErrorMessage, &j.RetryCount, &j.PrintedByClient)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func affected(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n == 1, nil
}

type JobOperations struct {
	db *DB
}

func (o *JobOperations) Insert(ctx context.Context, j *PrintJob) error {
	j.CreatedAt = j.CreatedAt.UTC()
	_, err := o.db.ExecContext(ctx, o.db.rebind(InsertJob),
		j.ID, j.RestaurantID, j.JobType, j.Content, j.PrinterName, j.OrderRef, j.PaymentRef,
		j.RestaurantName, j.OrderNumber, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	j.Status = "pending"
	return nil
}

func (o *JobOperations) Get(ctx context.Context, restaurantID int64, id string) (*PrintJob, error) {
	j, err := scanJob(o.db.QueryRowContext(ctx, o.db.rebind(GetJob), id, restaurantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) list(ctx context.Context, query string, args ...any) ([]*PrintJob, error) {
	rows, err := o.db.QueryContext(ctx, o.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (o *JobOperations) ListPending(ctx context.Context, restaurantID int64) ([]*PrintJob, error) {
	return o.list(ctx, ListPendingJobs, restaurantID)
}

// ListStale returns pending jobs created before cutoff and printing jobs
// claimed before cutoff, across all restaurants.
func (o *JobOperations) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*PrintJob, error) {
	cutoff = cutoff.UTC()
	return o.list(ctx, ListStaleJobs, cutoff, cutoff, limit)
}

func (o *JobOperations) MarkPrinting(ctx context.Context, restaurantID int64, id, client string, at time.Time) (bool, error) {
	ok, err := affected(o.db.ExecContext(ctx, o.db.rebind(MarkJobPrinting), client, at.UTC(), id, restaurantID))
	if err != nil {
		return false, fmt.Errorf("failed to mark job printing: %w", err)
	}
	return ok, nil
}

func (o *JobOperations) MarkCompleted(ctx context.Context, restaurantID int64, id string, at time.Time) (bool, error) {
	ok, err := affected(o.db.ExecContext(ctx, o.db.rebind(MarkJobCompleted), at.UTC(), id, restaurantID))
	if err != nil {
		return false, fmt.Errorf("failed to mark job completed: %w", err)
	}
	return ok, nil
}

func (o *JobOperations) MarkFailed(ctx context.Context, restaurantID int64, id, message string) (bool, error) {
	ok, err := affected(o.db.ExecContext(ctx, o.db.rebind(MarkJobFailed), message, id, restaurantID))
	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}
	return ok, nil
}

func (o *JobOperations) MarkPending(ctx context.Context, restaurantID int64, id string) (bool, error) {
	ok, err := affected(o.db.ExecContext(ctx, o.db.rebind(MarkJobPending), id, restaurantID))
	if err != nil {
		return false, fmt.Errorf("failed to mark job pending: %w", err)
	}
	return ok, nil
}

func (o *JobOperations) countBy(ctx context.Context, query string, restaurantID int64) (map[string]int, error) {
	rows, err := o.db.QueryContext(ctx, o.db.rebind(query), restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (o *JobOperations) CountByStatus(ctx context.Context, restaurantID int64) (map[string]int, error) {
	return o.countBy(ctx, CountJobsByStatus, restaurantID)
}

func (o *JobOperations) CountPendingByType(ctx context.Context, restaurantID int64) (map[string]int, error) {
	return o.countBy(ctx, CountPendingJobsByType, restaurantID)
}

type ProfileOperations struct {
	db *DB
}

func (o *ProfileOperations) GetRestaurant(ctx context.Context, id int64) (*Restaurant, error) {
	r := &Restaurant{}
	err := o.db.QueryRowContext(ctx, o.db.rebind(GetRestaurant), id).Scan(&r.ID, &r.Name, &r.ParentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get restaurant: %w", err)
	}
	return r, nil
}

func (o *ProfileOperations) UpsertRestaurant(ctx context.Context, r *Restaurant) error {
	if _, err := o.db.ExecContext(ctx, o.db.rebind(UpsertRestaurant), r.ID, r.Name, r.ParentID); err != nil {
		return fmt.Errorf("failed to save restaurant: %w", err)
	}
	return nil
}

func (o *ProfileOperations) GetProfile(ctx context.Context, restaurantID int64) (*PrintProfile, error) {
	p := &PrintProfile{}
	err := o.db.QueryRowContext(ctx, o.db.rebind(GetProfile), restaurantID).Scan(
		&p.RestaurantID, &p.AutoPrintKitchen, &p.AutoPrintBar, &p.AutoPrintBuffet, &p.AutoPrintService,
		&p.AutoPrintReceipt, &p.AutoPrintBill, &p.KitchenPrinterName, &p.BarPrinterName,
		&p.BuffetPrinterName, &p.ServicePrinterName, &p.ReceiptPrinterName, &p.BillPrinterName,
		&p.TaxPercent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get print profile: %w", err)
	}
	return p, nil
}

func (o *ProfileOperations) UpsertProfile(ctx context.Context, p *PrintProfile) error {
	_, err := o.db.ExecContext(ctx, o.db.rebind(UpsertProfile),
		p.RestaurantID, p.AutoPrintKitchen, p.AutoPrintBar, p.AutoPrintBuffet, p.AutoPrintService,
		p.AutoPrintReceipt, p.AutoPrintBill, p.KitchenPrinterName, p.BarPrinterName,
		p.BuffetPrinterName, p.ServicePrinterName, p.ReceiptPrinterName, p.BillPrinterName,
		p.TaxPercent)
	if err != nil {
		return fmt.Errorf("failed to save print profile: %w", err)
	}
	return nil
}

type SettingsOperations struct {
	db *DB
}

func (o *SettingsOperations) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := o.db.QueryRowContext(ctx, o.db.rebind(GetSetting), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (o *SettingsOperations) Set(ctx context.Context, key, value string) error {
	if _, err := o.db.ExecContext(ctx, o.db.rebind(UpsertSetting), key, value); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
