package worker

import "errors"

var (
	// ErrDispatcherBusy is returned when the job queue is full.
	ErrDispatcherBusy = errors.New("server is busy, please retry")
	// ErrDispatcherStopped is returned after Stop.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Job is a unit of work queued under a fairness key.
type Job struct {
	Key string
	Run func()

	stop bool
}
