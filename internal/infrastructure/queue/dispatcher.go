package queue

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/enterprise-hub/account-service/internal/core/ports"
)

const (
	defaultWorkers     = 4
	defaultMaxAttempts = 5
	defaultBackoff     = 2 * time.Second
	channelBuffer      = 256
)

var _ ports.CleanupQueue = (*Dispatcher)(nil)

// Config tunes the retry workers. Zero values take the defaults.
type Config struct {
	Workers     int
	MaxAttempts int
	// Backoff is the wait before the second attempt; it doubles after each
	// failure.
	Backoff time.Duration
}

// Dispatcher retries cleanup tasks on a fixed set of workers. Tasks for the
// same account always land on the same worker, so they run in the order they
// were enqueued.
type Dispatcher struct {
	workers     []chan ports.CleanupTask
	runner      ports.CleanupRunner
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

func NewDispatcher(cfg Config, runner ports.CleanupRunner, log zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	d := &Dispatcher{
		workers:     make([]chan ports.CleanupTask, cfg.Workers),
		runner:      runner,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		log:         log.With().Str("component", "cleanup_dispatcher").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.CleanupTask, channelBuffer)
	}
	return d
}

// Start launches the workers. They stop when ctx is cancelled; queued tasks
// are then abandoned.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands task to its account's worker. It never blocks a request: a
// full worker buffer drops the task and returns false.
func (d *Dispatcher) Enqueue(task ports.CleanupTask) bool {
	select {
	case d.workers[d.shardIndex(task.AccountID)] <- task:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) shardIndex(accountID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.CleanupTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-ch:
			d.process(ctx, id, task)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, task ports.CleanupTask) {
	wait := d.backoff
	for attempt := 1; ; attempt++ {
		err := d.runner.RunCleanup(ctx, task)
		if err == nil {
			d.log.Info().Str("user_id", task.AccountID).Str("kind", string(task.Kind)).
				Int("attempt", attempt).Msg("cleanup completed")
			return
		}
		if attempt >= d.maxAttempts {
			d.log.Error().Err(err).Str("user_id", task.AccountID).Str("kind", string(task.Kind)).
				Int("worker_id", worker).Msg("cleanup abandoned")
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		wait *= 2
	}
}
