package worker

import "go.uber.org/zap"

type worker struct {
	id   int
	pool *jobChannelPool
	jobs chan Job
}

func newWorker(id int, pool *jobChannelPool) *worker {
	return &worker{
		id:   id,
		pool: pool,
		jobs: make(chan Job),
	}
}

func (w *worker) start() {
	go func() {
		for job := range w.jobs {
			if job.stop {
				w.pool.retire(w.jobs)
				return
			}
			w.run(job)
			if !w.pool.release(w.jobs) {
				return
			}
		}
	}()
}

func (w *worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("job panicked", zap.Int("worker", w.id), zap.String("key", job.Key), zap.Any("panic", r))
		}
	}()
	job.Run()
}
