// ABOUTME: Sync queue entries and the typed mutation payloads they carry.
// ABOUTME: Mutation is a closed union keyed by Operation: create, update, delete.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the kind of mutation recorded in the sync queue.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Entity names the kind of record a queue entry refers to.
type Entity string

// EntityRoutine is currently the only synced entity.
const EntityRoutine Entity = "routine"

// Mutation is a replayable change. Implementations are CreateRoutine,
// UpdateRoutine and DeleteRoutine; the set is closed.
type Mutation interface {
	Operation() Operation
	Entity() Entity
	EntityID() string
	mutation()
}

// CreateRoutine replays the creation of a routine.
type CreateRoutine struct {
	Routine Routine `json:"routine"`
}

// UpdateRoutine replays a full-record update of a routine.
type UpdateRoutine struct {
	Routine Routine `json:"routine"`
}

// DeleteRoutine replays a routine deletion. Only the id is carried.
type DeleteRoutine struct {
	ID string `json:"id"`
}

func (CreateRoutine) Operation() Operation { return OpCreate }
func (UpdateRoutine) Operation() Operation { return OpUpdate }
func (DeleteRoutine) Operation() Operation { return OpDelete }

func (CreateRoutine) Entity() Entity { return EntityRoutine }
func (UpdateRoutine) Entity() Entity { return EntityRoutine }
func (DeleteRoutine) Entity() Entity { return EntityRoutine }

func (m CreateRoutine) EntityID() string { return m.Routine.ID }
func (m UpdateRoutine) EntityID() string { return m.Routine.ID }
func (m DeleteRoutine) EntityID() string { return m.ID }

func (CreateRoutine) mutation() {}
func (UpdateRoutine) mutation() {}
func (DeleteRoutine) mutation() {}

// QueueEntry is a durable record of one pending mutation.
type QueueEntry struct {
	ID          string          `json:"id"`
	Operation   Operation       `json:"operation"`
	Entity      Entity          `json:"entity"`
	EntityID    string          `json:"entity_id"`
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
	Attempts    int             `json:"attempts"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
}

// NewQueueEntry encodes a mutation into a queue entry with zero attempts.
func NewQueueEntry(id string, m Mutation, now time.Time) (*QueueEntry, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Operation(), err)
	}
	return &QueueEntry{
		ID:        id,
		Operation: m.Operation(),
		Entity:    m.Entity(),
		EntityID:  m.EntityID(),
		Data:      data,
		Timestamp: now,
	}, nil
}

// Mutation decodes the entry payload according to its operation.
func (e *QueueEntry) Mutation() (Mutation, error) {
	if e.Entity != EntityRoutine {
		return nil, fmt.Errorf("unknown entity %q", e.Entity)
	}
	switch e.Operation {
	case OpCreate:
		var m CreateRoutine
		if err := json.Unmarshal(e.Data, &m); err != nil {
			return nil, fmt.Errorf("unmarshal create payload: %w", err)
		}
		return m, nil
	case OpUpdate:
		var m UpdateRoutine
		if err := json.Unmarshal(e.Data, &m); err != nil {
			return nil, fmt.Errorf("unmarshal update payload: %w", err)
		}
		return m, nil
	case OpDelete:
		var m DeleteRoutine
		if err := json.Unmarshal(e.Data, &m); err != nil {
			return nil, fmt.Errorf("unmarshal delete payload: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", e.Operation)
	}
}
