// Package jobs runs the background work queue: the daily sweep that moves
// past-dated schedules into their terminal state.
package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const TypeSweepExpired = "schedule:sweep_expired"

// Sweeper is the slice of the schedule service the worker needs.
type Sweeper interface {
	MarkExpiredSchedules(ctx context.Context, now time.Time) (int, error)
}

func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(TypeSweepExpired, nil)
}

type Handler struct {
	sweeper Sweeper
	log     zerolog.Logger
}

func NewHandler(sweeper Sweeper, log zerolog.Logger) *Handler {
	return &Handler{sweeper: sweeper, log: log}
}

func (h *Handler) HandleSweepExpired(ctx context.Context, _ *asynq.Task) error {
	count, err := h.sweeper.MarkExpiredSchedules(ctx, time.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("expiry sweep failed")
		return err
	}
	h.log.Info().Int("expired", count).Msg("expiry sweep done")
	return nil
}

// NewServer builds the worker that consumes queued tasks.
func NewServer(redisURL string, handler *Handler) (*asynq.Server, *asynq.ServeMux, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, nil, err
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{"default": 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSweepExpired, handler.HandleSweepExpired)
	return srv, mux, nil
}

// NewScheduler enqueues the sweep once a day shortly after midnight.
func NewScheduler(redisURL string) (*asynq.Scheduler, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := scheduler.Register("5 0 * * *", NewSweepExpiredTask()); err != nil {
		return nil, err
	}
	return scheduler, nil
}
