package workerclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/api/handlers"
	"github.com/orrn/printdispatch/internal/config"
	"github.com/orrn/printdispatch/internal/core"
	"github.com/orrn/printdispatch/internal/printer"
)

// ErrStartup marks configuration problems the worker cannot recover from.
var ErrStartup = errors.New("worker startup check failed")

// API is the subset of the print job endpoints a Runner drives.
type API interface {
	Pending(ctx context.Context) ([]handlers.PendingJob, error)
	StartPrinting(ctx context.Context, id, clientID string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error
	Retry(ctx context.Context, id string) error
	Stats(ctx context.Context) (*core.Stats, error)
}

// Runner polls one restaurant's pending jobs and prints them on this host.
type Runner struct {
	api      API
	dir      *printer.Directory
	selector *printer.Selector
	cfg      config.WorkerConfig
	log      *zap.Logger
}

func NewRunner(api API, dir *printer.Directory, cfg config.WorkerConfig, log *zap.Logger) *Runner {
	return &Runner{
		api:      api,
		dir:      dir,
		selector: printer.NewSelector(dir),
		cfg:      cfg,
		log:      log.With(zap.Int64("restaurant_id", cfg.RestaurantID), zap.String("client_id", cfg.ClientID)),
	}
}

// CheckStartup verifies the token against the server. A rejected token or a
// token for another restaurant is fatal; an unreachable server is not.
func (r *Runner) CheckStartup(ctx context.Context) error {
	stats, err := r.api.Stats(ctx)
	switch {
	case errors.Is(err, ErrUnauthorized):
		return fmt.Errorf("%w: %v", ErrStartup, err)
	case err != nil:
		r.log.Warn("server not reachable at startup, polling anyway", zap.Error(err))
		return nil
	case stats.RestaurantID != r.cfg.RestaurantID:
		return fmt.Errorf("%w: token belongs to restaurant %d, config says %d",
			ErrStartup, stats.RestaurantID, r.cfg.RestaurantID)
	}

	r.log.Info("connected to print server",
		zap.Int("pending", stats.ByStatus[core.StatusPending]),
		zap.Int("failed", stats.ByStatus[core.StatusFailed]))
	return nil
}

func (r *Runner) Run(ctx context.Context) error {
	if err := r.CheckStartup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.cfg.PollInterval())
	defer ticker.Stop()

	r.log.Info("worker polling", zap.Duration("interval", r.cfg.PollInterval()))
	for {
		r.Tick(ctx)
		select {
		case <-ctx.Done():
			r.log.Info("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one poll. It never panics and never returns an error; problems
// are logged and the next tick tries again.
func (r *Runner) Tick(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("recovered from panic in poll", zap.Any("panic", p), zap.Stack("stack"))
		}
	}()

	jobs, err := r.api.Pending(ctx)
	if err != nil {
		r.log.Warn("failed to fetch pending jobs", zap.Error(err))
		return
	}
	if len(jobs) > 0 {
		r.log.Debug("pending jobs", zap.Int("count", len(jobs)))
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		r.process(ctx, job)
	}
}

func (r *Runner) process(ctx context.Context, job handlers.PendingJob) {
	log := r.log.With(zap.String("job_id", job.ID), zap.String("job_type", string(job.JobType)))

	if err := r.api.StartPrinting(ctx, job.ID, r.cfg.ClientID); err != nil {
		if errors.Is(err, ErrRejected) || errors.Is(err, ErrNotFound) {
			log.Debug("job claimed elsewhere, skipping", zap.Error(err))
			return
		}
		log.Warn("failed to claim job", zap.Error(err))
		return
	}

	sel, err := r.resolvePrinter(ctx, job.PrinterName)
	if err != nil {
		r.fail(ctx, log, job, fmt.Sprintf("no printer: %v", err))
		return
	}
	if sel.Fallback() {
		log.Warn("using fallback printer",
			zap.String("requested", sel.Requested),
			zap.String("printer", sel.Name),
			zap.String("reason", string(sel.Reason)))
	}

	if err := r.dir.Write(ctx, sel.Name, job.Content); err != nil {
		r.fail(ctx, log, job, err.Error())
		return
	}

	if err := r.api.MarkCompleted(ctx, job.ID); err != nil {
		log.Error("printed but failed to mark completed", zap.String("printer", sel.Name), zap.Error(err))
		return
	}
	log.Info("job printed",
		zap.String("printer", sel.Name),
		zap.String("order_number", job.OrderNumber),
		zap.Int("bytes", len(job.Content)))
}

// resolvePrinter prefers the job's hint, then the configured printer, then
// auto-detection.
func (r *Runner) resolvePrinter(ctx context.Context, hint string) (printer.Selection, error) {
	if hint != "" && !r.dir.IsFatallyOffline(ctx, hint) {
		return printer.Selection{Name: hint, Reason: printer.ReasonRequested, Requested: hint}, nil
	}

	requested := hint
	if configured := r.cfg.PrinterName; configured != "" {
		if !r.dir.IsFatallyOffline(ctx, configured) {
			return printer.Selection{Name: configured, Reason: printer.ReasonConfigured, Requested: requested}, nil
		}
		if requested == "" {
			requested = configured
		}
	}

	if !r.cfg.AutoDetectPrinter {
		return printer.Selection{}, fmt.Errorf("%w: auto-detection disabled", printer.ErrNoPrinterAvailable)
	}
	sel, err := r.selector.Select(ctx, "")
	if err != nil {
		return sel, err
	}
	sel.Requested = requested
	return sel, nil
}

func (r *Runner) fail(ctx context.Context, log *zap.Logger, job handlers.PendingJob, message string) {
	log.Warn("print failed", zap.String("error", message), zap.Int("retry_count", job.RetryCount))

	if err := r.api.MarkFailed(ctx, job.ID, message); err != nil {
		log.Error("failed to mark job failed", zap.Error(err))
		return
	}

	if job.RetryCount >= r.cfg.MaxRetries {
		log.Warn("job out of retries, leaving it failed", zap.Int("max_retries", r.cfg.MaxRetries))
		return
	}
	if err := r.api.Retry(ctx, job.ID); err != nil {
		log.Error("failed to requeue job", zap.Error(err))
	}
}
