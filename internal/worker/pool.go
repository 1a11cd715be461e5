package worker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type workerMeta struct {
	id        int
	ch        chan Job
	lastUsed  time.Time
	enqueued  bool // is in the idle queue
	discarded bool // is targeted as delete
}

type jobChannelPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*workerMeta
	metadata map[chan Job]*workerMeta
	min      int
	max      int
	running  int
	nextID   int
	expiry   time.Duration
	closed   bool
	done     chan struct{}
	logger   *zap.Logger
}

const defaultWorkerIdle = 30 * time.Second

func newJobChannelPool(minWorkers, maxWorkers int, idle time.Duration, logger *zap.Logger) *jobChannelPool {
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if minWorkers > maxWorkers {
		minWorkers = maxWorkers
	}
	p := &jobChannelPool{
		metadata: make(map[chan Job]*workerMeta),
		min:      minWorkers,
		max:      maxWorkers,
		expiry:   idle,
		done:     make(chan struct{}),
		logger:   logger,
	}
	p.cond = sync.NewCond(&p.mu)
	go p.purgeStaleWorkers()
	return p
}

// newWorkerLocked registers a worker; the caller must hold p.mu.
func (p *jobChannelPool) newWorkerLocked() (*worker, *workerMeta) {
	p.nextID++
	w := newWorker(p.nextID, p)
	meta := &workerMeta{id: w.id, ch: w.jobs}
	p.metadata[w.jobs] = meta
	p.running++
	return w, meta
}

// spawnIdle starts a worker and parks it in the idle queue, used for warm up.
func (p *jobChannelPool) spawnIdle() {
	p.mu.Lock()
	if p.closed || p.running >= p.max {
		p.mu.Unlock()
		return
	}
	w, meta := p.newWorkerLocked()
	meta.enqueued = true
	meta.lastUsed = time.Now()
	p.idle = append(p.idle, meta)
	p.mu.Unlock()
	w.start()
}

// acquire returns an idle worker, spawns one below max, or waits. It returns
// nil once the pool is closed.
func (p *jobChannelPool) acquire() *workerMeta {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return nil
		}
		if meta := p.popIdleLocked(); meta != nil {
			return meta
		}
		if p.running < p.max {
			w, meta := p.newWorkerLocked()
			w.start()
			return meta
		}
		p.cond.Wait()
	}
}

// release puts a worker back into the idle queue. It reports false when the
// worker should exit instead.
func (p *jobChannelPool) release(ch chan Job) bool {
	p.mu.Lock()
	meta, ok := p.metadata[ch]
	if !ok || meta.discarded {
		p.mu.Unlock()
		return false
	}
	if p.closed {
		p.retireLocked(ch)
		p.mu.Unlock()
		p.cond.Broadcast()
		return false
	}
	if !meta.enqueued {
		meta.enqueued = true
		meta.lastUsed = time.Now()
		p.idle = append(p.idle, meta)
	}
	p.mu.Unlock()
	p.cond.Signal()
	return true
}

// retire deletes a worker
func (p *jobChannelPool) retire(ch chan Job) {
	p.mu.Lock()
	p.retireLocked(ch)
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *jobChannelPool) retireLocked(ch chan Job) {
	if meta, ok := p.metadata[ch]; ok {
		delete(p.metadata, ch)
		meta.discarded = true
		if p.running > 0 {
			p.running--
		}
	}
}

// popIdleLocked check if pool has an idle worker, then return
func (p *jobChannelPool) popIdleLocked() *workerMeta {
	for len(p.idle) > 0 {
		meta := p.idle[0]
		p.idle = p.idle[1:]
		if meta.discarded {
			continue
		}
		meta.enqueued = false
		return meta
	}
	return nil
}

func (p *jobChannelPool) size() (running, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, len(p.idle)
}

// purgeStaleWorkers calls shutdownExpired every expiry period
func (p *jobChannelPool) purgeStaleWorkers() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.shutdownExpired()
		}
	}
}

// shutdownExpired retires idle workers above the minimum
func (p *jobChannelPool) shutdownExpired() {
	var stale []*workerMeta
	now := time.Now()

	p.mu.Lock()
	if len(p.idle) == 0 || p.running <= p.min {
		p.mu.Unlock()
		return
	}
	remaining := p.idle[:0] // reuse the backing array
	for _, meta := range p.idle {
		if meta.discarded {
			continue
		}
		if now.Sub(meta.lastUsed) >= p.expiry && p.running-len(stale) > p.min {
			meta.discarded = true
			meta.enqueued = false
			stale = append(stale, meta)
			continue
		}
		remaining = append(remaining, meta)
	}
	p.idle = remaining
	p.mu.Unlock()

	for _, meta := range stale {
		p.logger.Debug("retire idle worker", zap.Int("worker", meta.id))
		meta.ch <- Job{stop: true}
	}
}

// close stops idle workers and makes busy ones exit after their current job.
func (p *jobChannelPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	idle := p.idle
	p.idle = nil
	for _, meta := range idle {
		meta.discarded = true
		meta.enqueued = false
	}
	p.mu.Unlock()
	p.cond.Broadcast()

	for _, meta := range idle {
		meta.ch <- Job{stop: true}
	}
}
