package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/subscription"
)

// subscriptionModel is the JSON representation stored in Redis. Unlike the
// domain type it carries the secret.
type subscriptionModel struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	EventFilter string    `json:"event_filter"`
	URL         string    `json:"url"`
	Secret      string    `json:"secret"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:          sub.ID.String(),
		Event:       sub.Event,
		EventFilter: sub.EventFilter,
		URL:         sub.URL,
		Secret:      sub.Secret,
		Active:      sub.Active,
		CreatedAt:   sub.CreatedAt,
		UpdatedAt:   sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          subID,
		Event:       m.Event,
		EventFilter: m.EventFilter,
		URL:         m.URL,
		Secret:      m.Secret,
		Active:      m.Active,
	}, nil
}

// jobModel is the JSON representation stored in Redis.
type jobModel struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	SubscriptionID string          `json:"subscription_id"`
	Event          string          `json:"event"`
	URL            string          `json:"url"`
	Body           json.RawMessage `json:"body,omitempty"`
	Signature      string          `json:"signature,omitempty"`
	State          string          `json:"state"`
	AttemptCount   int             `json:"attempt_count"`
	MaxAttempts    int             `json:"max_attempts"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	LastError      string          `json:"last_error"`
	LastStatusCode int             `json:"last_status_code"`
	LastResponse   string          `json:"last_response"`
	LastLatencyMs  int             `json:"last_latency_ms"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toJobModel(j *delivery.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		Kind:           string(j.Kind),
		SubscriptionID: j.SubscriptionID.String(),
		Event:          j.Event,
		URL:            j.URL,
		Body:           j.Body,
		Signature:      j.Signature,
		State:          string(j.State),
		AttemptCount:   j.AttemptCount,
		MaxAttempts:    j.MaxAttempts,
		NextAttemptAt:  j.NextAttemptAt,
		LastError:      j.LastError,
		LastStatusCode: j.LastStatusCode,
		LastResponse:   j.LastResponse,
		LastLatencyMs:  j.LastLatencyMs,
		CompletedAt:    j.CompletedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*delivery.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.ID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &delivery.Job{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             jobID,
		Kind:           delivery.Kind(m.Kind),
		SubscriptionID: subID,
		Event:          m.Event,
		URL:            m.URL,
		Body:           m.Body,
		Signature:      m.Signature,
		State:          delivery.State(m.State),
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		NextAttemptAt:  m.NextAttemptAt,
		LastError:      m.LastError,
		LastStatusCode: m.LastStatusCode,
		LastResponse:   m.LastResponse,
		LastLatencyMs:  m.LastLatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// abandonedModel is the JSON representation stored in Redis.
type abandonedModel struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	Kind           string          `json:"kind"`
	SubscriptionID string          `json:"subscription_id"`
	Event          string          `json:"event"`
	URL            string          `json:"url"`
	Body           json.RawMessage `json:"body,omitempty"`
	Error          string          `json:"error"`
	AttemptCount   int             `json:"attempt_count"`
	LastStatusCode int             `json:"last_status_code"`
	AbandonedAt    time.Time       `json:"abandoned_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toAbandonedModel(e *dlq.Entry) *abandonedModel {
	return &abandonedModel{
		ID:             e.ID.String(),
		JobID:          e.JobID.String(),
		Kind:           string(e.Kind),
		SubscriptionID: e.SubscriptionID.String(),
		Event:          e.Event,
		URL:            e.URL,
		Body:           e.Body,
		Error:          e.Error,
		AttemptCount:   e.AttemptCount,
		LastStatusCode: e.LastStatusCode,
		AbandonedAt:    e.AbandonedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromAbandonedModel(m *abandonedModel) (*dlq.Entry, error) {
	entryID, err := id.ParseAbandonedID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse abandoned ID %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.JobID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             entryID,
		JobID:          jobID,
		Kind:           delivery.Kind(m.Kind),
		SubscriptionID: subID,
		Event:          m.Event,
		URL:            m.URL,
		Body:           m.Body,
		Error:          m.Error,
		AttemptCount:   m.AttemptCount,
		LastStatusCode: m.LastStatusCode,
		AbandonedAt:    m.AbandonedAt,
	}, nil
}

// loadModels fetches the JSON documents for ids in one MGET, in order.
// IDs whose document has disappeared are skipped.
func loadModels[M any](ctx context.Context, s *Store, prefix string, ids []string) ([]*M, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, entryID := range ids {
		keys[i] = entityKey(prefix, entryID)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*M, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		m := new(M)
		if err := json.Unmarshal([]byte(raw), m); err != nil {
			return nil, fmt.Errorf("herald/redis: decode entity: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
