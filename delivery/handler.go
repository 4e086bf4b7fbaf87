package delivery

import (
	"context"
	"net/http"
)

// Result holds the outcome of a single job attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int

	// Skipped reports that the handler completed the job without making a
	// request.
	Skipped bool

	// Header holds the response headers. It is not persisted.
	Header http.Header
}

// OK reports whether the attempt succeeded: no error and either a 2xx status
// or nothing left to do.
func (r Result) OK() bool {
	if r.Error != "" {
		return false
	}
	return r.Skipped || (r.StatusCode >= 200 && r.StatusCode < 300)
}

// Handler performs one attempt of a job.
type Handler interface {
	Perform(ctx context.Context, job *Job) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) Result

// Perform calls f.
func (f HandlerFunc) Perform(ctx context.Context, job *Job) Result {
	return f(ctx, job)
}
