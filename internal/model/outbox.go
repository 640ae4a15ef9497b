package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

const (
	EventLabRequestCreated       = "LAB_TEST_REQUEST_CREATED"
	EventLabRequestStatusChanged = "LAB_TEST_REQUEST_STATUS_CHANGED"
	EventLabRequestAssigned      = "LAB_TEST_REQUEST_ASSIGNED"
	EventLabRequestCritical      = "LAB_TEST_REQUEST_CRITICAL"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	AggregateID  uuid.UUID       `db:"aggregate_id" json:"aggregate_id"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// LabRequestEvent is the payload published for request lifecycle events.
type LabRequestEvent struct {
	RequestID       uuid.UUID        `json:"request_id"`
	PatientID       uuid.UUID        `json:"patient_id"`
	DoctorID        uuid.UUID        `json:"doctor_id"`
	LabTestID       uuid.UUID        `json:"lab_test_id"`
	LabTechnicianID *uuid.UUID       `json:"lab_technician_id,omitempty"`
	FromStatus      LabRequestStatus `json:"from_status,omitempty"`
	Status          LabRequestStatus `json:"status"`
	Priority        Priority         `json:"priority"`
	IsCritical      bool             `json:"is_critical"`
	ActorID         uuid.UUID        `json:"actor_id"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

func NewLabRequestEvent(r *LabTestRequest, from LabRequestStatus, actor uuid.UUID, at time.Time) *LabRequestEvent {
	return &LabRequestEvent{
		RequestID:       r.ID,
		PatientID:       r.PatientID,
		DoctorID:        r.DoctorID,
		LabTestID:       r.LabTestID,
		LabTechnicianID: r.LabTechnicianID,
		FromStatus:      from,
		Status:          r.Status,
		Priority:        r.Priority,
		IsCritical:      r.IsCritical,
		ActorID:         actor,
		OccurredAt:      at,
	}
}
