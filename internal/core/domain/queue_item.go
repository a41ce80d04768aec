package domain

import "time"

// QueueItem is an operation waiting in the offline queue.
type QueueItem struct {
	ID         string          `json:"id"`
	Operation  Operation       `json:"operation"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Retries    int             `json:"retries"`
	Status     QueueItemStatus `json:"status"`
	LastError  string          `json:"last_error,omitempty"`
	LastKind   OutcomeKind     `json:"last_kind,omitempty"`
}

type QueueItemStatus string

const (
	QueueItemPending      QueueItemStatus = "pending"
	QueueItemInFlight     QueueItemStatus = "in_flight"
	QueueItemDeadLettered QueueItemStatus = "dead_lettered"
)
