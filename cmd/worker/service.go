package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ridewell/alertcast-backend/internal/alerts"
	"github.com/ridewell/alertcast-backend/pkg/config"
	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/logger"
	"github.com/ridewell/alertcast-backend/pkg/metrics"
	"github.com/ridewell/alertcast-backend/pkg/queue"
)

const (
	defaultBatchSize = 10
	defaultPollMs    = 500
	defaultPoolSize  = 2
	maxIdleBackoff   = 10 * time.Second
	jitterWindow     = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type jobRepository interface {
	ClaimDueTx(tx *gorm.DB, now time.Time, limit int) ([]models.Job, error)
	DeleteTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, nextAttemptAt time.Time, cause error) error
	MoveToDeadLetterTx(tx *gorm.DB, job models.Job, cause error) error
}

type alertFailer interface {
	ForceFailedTx(tx *gorm.DB, id uuid.UUID, reason string) (bool, error)
}

type deliveryProcessor interface {
	Process(ctx context.Context, alertID uuid.UUID) error
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        dbClient
	Redis     pinger
	Jobs      jobRepository
	Alerts    alertFailer
	Processor deliveryProcessor
	Metrics   *metrics.DeliveryMetrics
}

// Service drains the durable job queue: claim due jobs under row locks,
// run each through the delivery processor, and either delete, reschedule
// with backoff, or dead-letter them.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	db           dbClient
	redis        pinger
	jobs         jobRepository
	alerts       alertFailer
	processor    deliveryProcessor
	metrics      *metrics.DeliveryMetrics
	backoff      queue.BackoffPolicy
	batchSize    int
	poolSize     int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Jobs == nil {
		return nil, errors.New("job repository is required")
	}
	if params.Alerts == nil {
		return nil, errors.New("alerts repository is required")
	}
	if params.Processor == nil {
		return nil, errors.New("delivery processor is required")
	}

	pollMs := params.Config.Queue.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	poolSize := params.Config.Queue.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	return &Service{
		cfg:       params.Config,
		logg:      params.Logger,
		db:        params.DB,
		redis:     params.Redis,
		jobs:      params.Jobs,
		alerts:    params.Alerts,
		processor: params.Processor,
		metrics:   params.Metrics,
		backoff: queue.BackoffPolicy{
			Base:    params.Config.Queue.BackoffBase,
			Ceiling: params.Config.Queue.BackoffCeiling,
		},
		batchSize:    defaultBatchSize,
		poolSize:     poolSize,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if s.redis != nil {
		if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
			return err
		}
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run polls until the context is canceled. Poll errors back off
// exponentially; an idle queue sleeps one jittered interval.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "worker batch error", err)
			backoff = nextBackoff(backoff, interval, maxIdleBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch claims one batch of due jobs and works them in parallel.
// The claim transaction stays open for the whole batch so SKIP LOCKED
// keeps concurrent workers off these rows until their outcome commits.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		jobs, err := s.jobs.ClaimDueTx(tx, time.Now().UTC(), s.batchSize)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		processed = true

		outcomes := make([]error, len(jobs))
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.poolSize)
		for i := range jobs {
			idx := i
			group.Go(func() error {
				outcomes[idx] = s.runJob(groupCtx, jobs[idx])
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		for i, job := range jobs {
			if err := s.settleJob(ctx, tx, job, outcomes[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) runJob(ctx context.Context, job models.Job) error {
	ctx = s.logg.WithJobID(ctx, job.ID.String())

	switch job.Name {
	case queue.JobDeliverAlert:
		var payload alerts.DeliveryJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return queue.NonRetryable(fmt.Errorf("decode %s payload: %w", job.Name, err))
		}
		if payload.AlertID == uuid.Nil {
			return queue.NonRetryable(errors.New("delivery payload missing alert id"))
		}
		return s.processor.Process(ctx, payload.AlertID)
	default:
		return queue.NonRetryable(fmt.Errorf("unknown job name %q", job.Name))
	}
}

// settleJob records the job outcome inside the claim transaction: delete on
// success, reschedule with backoff, or dead-letter once retries run out.
// Dead-lettering a delivery job also force-fails its alert so it cannot sit
// in_progress forever.
func (s *Service) settleJob(ctx context.Context, tx *gorm.DB, job models.Job, jobErr error) error {
	ctx = s.logg.WithJobID(ctx, job.ID.String())

	if jobErr == nil {
		if err := s.jobs.DeleteTx(tx, job.ID); err != nil {
			return fmt.Errorf("delete job %s: %w", job.ID, err)
		}
		s.metrics.IncJobAttempt("success")
		s.logg.Info(ctx, "job completed")
		return nil
	}

	attempt := job.AttemptCount + 1
	terminal := queue.IsNonRetryable(jobErr) || attempt >= job.MaxAttempts

	ctx = s.logg.WithFields(ctx, map[string]any{
		"job_name":      job.Name,
		"attempt_count": attempt,
		"error":         jobErr.Error(),
	})

	if !terminal {
		delay := s.backoff.Delay(attempt)
		if err := s.jobs.MarkFailedTx(tx, job.ID, time.Now().UTC().Add(delay), jobErr); err != nil {
			return fmt.Errorf("mark job failed %s: %w", job.ID, err)
		}
		s.metrics.IncJobAttempt("retry")
		s.logg.Warn(s.logg.WithField(ctx, "retry_in", delay.String()), "job failed, retry scheduled")
		return nil
	}

	if err := s.jobs.MoveToDeadLetterTx(tx, job, jobErr); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	s.metrics.IncJobAttempt("dead_letter")
	s.metrics.IncDeadLettered()
	s.logg.Warn(ctx, "job dead-lettered")

	if job.Name == queue.JobDeliverAlert {
		var payload alerts.DeliveryJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err == nil && payload.AlertID != uuid.Nil {
			reason := fmt.Sprintf("delivery abandoned after %d attempts: %s", attempt, jobErr.Error())
			changed, err := s.alerts.ForceFailedTx(tx, payload.AlertID, reason)
			if err != nil {
				return fmt.Errorf("force-fail alert %s: %w", payload.AlertID, err)
			}
			if changed {
				s.logg.Warn(s.logg.WithAlertID(ctx, payload.AlertID.String()), "alert marked failed")
			}
		}
	}
	return nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
