package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/subscription"
)

// --- Subscription models ---

type subscriptionModel struct {
	grove.BaseModel `grove:"table:herald_subscriptions"`

	ID          string    `grove:"id,pk"`
	Event       string    `grove:"event"`
	EventFilter string    `grove:"event_filter"`
	URL         string    `grove:"url"`
	Secret      string    `grove:"secret"`
	Active      bool      `grove:"active"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
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

// --- Job models ---

type jobModel struct {
	grove.BaseModel `grove:"table:herald_jobs"`

	ID             string     `grove:"id,pk"`
	Kind           string     `grove:"kind"`
	SubscriptionID string     `grove:"subscription_id"`
	Event          string     `grove:"event"`
	URL            string     `grove:"url"`
	Body           string     `grove:"body"` // JSON text
	Signature      string     `grove:"signature"`
	State          string     `grove:"state"`
	AttemptCount   int        `grove:"attempt_count"`
	MaxAttempts    int        `grove:"max_attempts"`
	NextAttemptAt  time.Time  `grove:"next_attempt_at"`
	LastError      string     `grove:"last_error"`
	LastStatusCode int        `grove:"last_status_code"`
	LastResponse   string     `grove:"last_response"`
	LastLatencyMs  int        `grove:"last_latency_ms"`
	CompletedAt    *time.Time `grove:"completed_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toJobModel(j *delivery.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		Kind:           string(j.Kind),
		SubscriptionID: j.SubscriptionID.String(),
		Event:          j.Event,
		URL:            j.URL,
		Body:           string(j.Body),
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
		Body:           json.RawMessage(m.Body),
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

// --- Abandoned job models ---

type abandonedModel struct {
	grove.BaseModel `grove:"table:herald_abandoned"`

	ID             string    `grove:"id,pk"`
	JobID          string    `grove:"job_id"`
	Kind           string    `grove:"kind"`
	SubscriptionID string    `grove:"subscription_id"`
	Event          string    `grove:"event"`
	URL            string    `grove:"url"`
	Body           string    `grove:"body"` // JSON text
	Error          string    `grove:"error"`
	AttemptCount   int       `grove:"attempt_count"`
	LastStatusCode int       `grove:"last_status_code"`
	AbandonedAt    time.Time `grove:"abandoned_at"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toAbandonedModel(e *dlq.Entry) *abandonedModel {
	return &abandonedModel{
		ID:             e.ID.String(),
		JobID:          e.JobID.String(),
		Kind:           string(e.Kind),
		SubscriptionID: e.SubscriptionID.String(),
		Event:          e.Event,
		URL:            e.URL,
		Body:           string(e.Body),
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
		Body:           json.RawMessage(m.Body),
		Error:          m.Error,
		AttemptCount:   m.AttemptCount,
		LastStatusCode: m.LastStatusCode,
		AbandonedAt:    m.AbandonedAt,
	}, nil
}
