package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxResponseBody = 1024 // 1KB cap on response body storage

	// HeaderSignature carries the HMAC of a callback body.
	HeaderSignature = "x-hook-signature"

	userAgent = "Herald/1.0"
)

// Sender performs outbound HTTP requests for jobs.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given per-request timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Post sends body as JSON to url with the extra header values and returns the
// result. It never returns a Go error; failures are carried in Result.Error.
func (s *Sender) Post(ctx context.Context, url string, body []byte, header http.Header) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is a subscriber-registered callback; hosts are checked against the allow-list.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
			Header:     resp.Header,
		}
	}

	res := Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
		Header:     resp.Header,
	}
	if !res.OK() {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res
}

// Perform delivers a callback job: its body, signed with x-hook-signature.
func (s *Sender) Perform(ctx context.Context, job *Job) Result {
	h := http.Header{}
	h.Set(HeaderSignature, job.Signature)
	return s.Post(ctx, job.URL, job.Body, h)
}
