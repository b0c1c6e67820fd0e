// Package pipeline runs the asynchronous evaluation pipeline: ingested
// entries are queued on a bounded channel and a pool of workers evaluates
// each against its team's traps, firing alerts for matches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/good-yellow-bee/logtrap/internal/logger"
	"github.com/good-yellow-bee/logtrap/internal/metrics"
	"github.com/good-yellow-bee/logtrap/internal/models"
)

// Evaluator decides which traps an entry fires.
type Evaluator interface {
	EvaluateEntry(ctx context.Context, entry *models.LogEntry) ([]string, error)
}

// AlertFirer fires the alert rules bound to a triggered trap.
type AlertFirer interface {
	FireAlerts(ctx context.Context, teamID, trapID, message string) ([]*models.AlertHistory, error)
}

// Defaults applied when the config leaves values unset.
const (
	DefaultQueueSize = 10000
	DefaultWorkers   = 4
)

// ErrQueueFull is returned by Publish when the queue is at capacity.
// Evaluation is best-effort under overload: the entry is already stored,
// only its trap evaluation is skipped.
var ErrQueueFull = errors.New("evaluation queue is full")

// Config holds pipeline sizing.
type Config struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// Pipeline feeds ingested entries through trap evaluation and alert firing.
type Pipeline struct {
	traps  Evaluator
	alerts AlertFirer

	queue   chan *models.LogEntry
	workers int

	wg      sync.WaitGroup
	stopMu  sync.Mutex
	stopped bool
}

// New creates a pipeline with a bounded queue.
func New(trapSvc Evaluator, alertSvc AlertFirer, cfg Config) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Pipeline{
		traps:   trapSvc,
		alerts:  alertSvc,
		queue:   make(chan *models.LogEntry, cfg.QueueSize),
		workers: cfg.Workers,
	}
}

// Start launches the worker pool. Workers exit when the context is
// cancelled or the queue is closed and drained.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	log := logger.WithComponent("pipeline")
	log.Info().
		Int("workers", p.workers).
		Int("queue_size", cap(p.queue)).
		Msg("evaluation pipeline started")
}

// Publish enqueues an entry for evaluation. When the queue is full the
// entry is rejected rather than blocking the ingest path.
func (p *Pipeline) Publish(entry *models.LogEntry) error {
	select {
	case p.queue <- entry:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		metrics.QueueRejected.Inc()
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for workers to drain it.
func (p *Pipeline) Stop() {
	p.stopMu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.stopMu.Unlock()
	p.wg.Wait()
	log := logger.WithComponent("pipeline")
	log.Info().Msg("evaluation pipeline stopped")
}

// worker consumes entries until the queue closes or the context ends.
func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-p.queue:
			if !ok {
				return
			}
			metrics.QueueDepth.Set(float64(len(p.queue)))
			p.process(ctx, entry)
		}
	}
}

// process evaluates one entry and fires alerts for matching traps. Every
// failure is contained here: a storage error, evaluation error or panic
// affects only this entry.
func (p *Pipeline) process(ctx context.Context, entry *models.LogEntry) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("pipeline").Inc()
			log := logger.WithComponent("pipeline")
			log.Error().
				Str("entry_id", entry.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("recovered panic while processing entry")
		}
	}()

	metrics.EntriesEvaluated.Inc()

	fired, err := p.traps.EvaluateEntry(ctx, entry)
	if err != nil {
		metrics.EvaluationFailures.Inc()
		log := logger.WithComponent("pipeline")
		log.Error().Err(err).
			Str("entry_id", entry.ID).
			Str("team_id", entry.TeamID).
			Msg("entry evaluation failed")
		return
	}

	for _, trapID := range fired {
		message := fmt.Sprintf("trap triggered by entry %s: %s", entry.ID, entry.Message)
		if _, err := p.alerts.FireAlerts(ctx, entry.TeamID, trapID, message); err != nil {
			log := logger.WithComponent("pipeline")
			log.Error().Err(err).
				Str("trap_id", trapID).
				Str("team_id", entry.TeamID).
				Msg("failed to fire alerts for trap")
		}
	}
}

// QueueDepth reports the current number of queued entries.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}
