package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config sizes the dispatcher.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type keyQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher runs jobs on a bounded worker pool. Jobs are queued per key and
// keys are served round robin so one busy session cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	logger   *zap.Logger

	mu        sync.Mutex
	queues    map[string]*keyQueue
	ready     *list.List // round robin queue of keys
	positions map[string]*list.Element

	quit     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("worker")
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, logger),
		jobQueue:  make(chan Job, cfg.QueueSize),
		logger:    logger,
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnIdle()
	}

	go d.run()
	return d
}

// Submit queues fn under key without blocking.
func (d *Dispatcher) Submit(key string, fn func()) error {
	if fn == nil {
		return errors.New("worker: nil job")
	}
	select {
	case <-d.quit:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.jobQueue <- Job{Key: key, Run: fn}:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Do submits fn and waits for it to finish. If ctx ends first fn may still
// run later, so callers must not read state fn writes after an error.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func()) error {
	done := make(chan struct{})
	if err := d.Submit(key, func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrDispatcherStopped
		}
	}
}

// Stop stops accepting jobs and retires the workers. Queued jobs that were
// not yet handed to a worker are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.close()
		<-d.stopped
	})
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		if !d.drain() {
			return
		}
		if d.dispatchOne() {
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		}
	}
}

// drain moves every waiting job into its key queue so the round robin sees
// all keys before the next dispatch. It reports false once stopped.
func (d *Dispatcher) drain() bool {
	for {
		select {
		case <-d.quit:
			return false
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
			return true
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Key] = d.ready.PushBack(job.Key)
}

// dispatchOne hands the next job of the front key to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	meta := d.pool.acquire()
	if meta == nil {
		return false
	}
	d.logger.Debug("assign job", zap.String("key", key), zap.Int("worker", meta.id))
	meta.ch <- job
	return true
}
