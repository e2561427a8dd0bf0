package aggregation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"possync/backend/internal/metrics"
)

var ErrPipelineClosed = errors.New("aggregation pipeline closed")

// Job asks for one (store, day) to be rebuilt. Date is a UTC-midnight day label.
type Job struct {
	TenantID string
	StoreID  string
	Date     time.Time
}

func (j Job) key() string {
	return j.TenantID + "::" + j.StoreID + "::" + j.Date.Format(time.DateOnly)
}

type PipelineOptions struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Pipeline runs recompute jobs on a fixed worker pool. Enqueue never blocks: a job for a
// day that is already waiting is coalesced, and a full queue drops the job. A day is never
// recomputed by two workers at once; a job arriving mid-run marks the day dirty and the
// running worker makes one more pass.
type Pipeline struct {
	agg     *Aggregator
	opts    PipelineOptions
	jobs    chan Job
	mu      sync.Mutex
	pending map[string]struct{}
	running map[string]bool
	closed  bool
	group   *errgroup.Group
}

func NewPipeline(agg *Aggregator, opts PipelineOptions) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 2
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 256
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Pipeline{
		agg:     agg,
		opts:    opts,
		jobs:    make(chan Job, opts.QueueSize),
		pending: make(map[string]struct{}),
		running: make(map[string]bool),
	}
}

// Start launches the workers. Jobs run with ctx as their parent, so cancelling ctx aborts
// in-flight recomputes; use Shutdown to drain instead.
func (p *Pipeline) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		g.Go(func() error {
			for job := range p.jobs {
				p.run(gctx, job)
			}
			return nil
		})
	}
	p.group = g
}

func (p *Pipeline) Enqueue(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	key := job.key()
	if _, ok := p.pending[key]; ok {
		return true
	}
	if _, ok := p.running[key]; ok {
		p.running[key] = true
		return true
	}
	select {
	case p.jobs <- job:
		p.pending[key] = struct{}{}
		return true
	default:
		p.opts.Metrics.AggregationDropped()
		p.opts.Logger.WithFields(logrus.Fields{
			"tenant_id": job.TenantID,
			"store_id":  job.StoreID,
			"date":      job.Date.Format(time.DateOnly),
		}).Warn("aggregation: queue full, job dropped")
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to expire.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	if p.group == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) run(ctx context.Context, job Job) {
	key := job.key()
	p.mu.Lock()
	delete(p.pending, key)
	p.running[key] = false
	p.mu.Unlock()

	for {
		p.recompute(ctx, job)

		p.mu.Lock()
		if !p.running[key] {
			delete(p.running, key)
			p.mu.Unlock()
			return
		}
		// A sale landed mid-run; the snapshot just written may predate it.
		p.running[key] = false
		p.mu.Unlock()
	}
}

func (p *Pipeline) recompute(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()

	started := time.Now()
	_, err := p.agg.RecomputeDay(jobCtx, job.TenantID, job.StoreID, job.Date)
	p.opts.Metrics.AggregationRun(err, time.Since(started))

	log := p.opts.Logger.WithFields(logrus.Fields{
		"tenant_id": job.TenantID,
		"store_id":  job.StoreID,
		"date":      job.Date.Format(time.DateOnly),
	})
	if err != nil {
		log.WithError(err).Error("aggregation: recompute failed")
		return
	}
	log.WithField("elapsed", time.Since(started).String()).Debug("aggregation: day recomputed")
}
