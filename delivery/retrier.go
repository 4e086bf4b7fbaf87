package delivery

import "time"

// Decision is the outcome of evaluating a job attempt.
type Decision int

const (
	// Delivered means the attempt succeeded.
	Delivered Decision = iota

	// Retry means the job should be attempted again later.
	Retry

	// Abandon means the job has exhausted its attempts.
	Abandon
)

func (d Decision) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Retry:
		return "retried"
	default:
		return "abandoned"
	}
}

// Retrier decides what to do after a job attempt.
type Retrier struct {
	schedule []time.Duration
}

// NewRetrier creates a retrier with the given backoff schedule. An empty
// schedule uses DefaultSchedule.
func NewRetrier(schedule []time.Duration) *Retrier {
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}
	return &Retrier{schedule: schedule}
}

// Decide determines what to do with a job after an attempt. Any successful
// result is final; every failure is retried until MaxAttempts attempts have
// been made.
func (r *Retrier) Decide(res Result, job *Job) Decision {
	if res.OK() {
		return Delivered
	}
	if job.AttemptCount < job.MaxAttempts {
		return Retry
	}
	return Abandon
}

// ComputeNextAttempt returns the time at which the next attempt should be
// made, given the number of attempts already made.
func (r *Retrier) ComputeNextAttempt(attemptCount int) time.Time {
	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return time.Now().UTC().Add(r.schedule[idx])
}
