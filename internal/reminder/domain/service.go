package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization_id")
	ErrInvalidEntityType   = errors.New("invalid_entity_type")
	ErrInvalidEntityID     = errors.New("invalid_entity_id")
	ErrInvalidRecipient    = errors.New("invalid_recipient")
	ErrNotFound            = errors.New("reminder_not_found")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
)

// Notifier delivers one reminder to its recipient.
type Notifier interface {
	Notify(ctx context.Context, state *ReminderState) error
}

// UpsertRequest registers or re-registers an obligation for reminders.
// Re-registering an existing entity updates its due date and recipient
// and re-anchors the cadence without resetting the send count.
type UpsertRequest struct {
	OrganizationID string         `json:"organization_id"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	DueAt          time.Time      `json:"due_at"`
	Recipient      string         `json:"recipient"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Response is the external representation of a reminder state.
type Response struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	Status         ReminderStatus `json:"status"`
	DueAt          time.Time      `json:"due_at"`
	NextRemindAt   *time.Time     `json:"next_remind_at,omitempty"`
	ReminderCount  int            `json:"reminder_count"`
	LastRemindedAt *time.Time     `json:"last_reminded_at,omitempty"`
	DismissedUntil *time.Time     `json:"dismissed_until,omitempty"`
	Recipient      string         `json:"recipient,omitempty"`
}

// Service manages reminder escalation for due obligations.
type Service interface {
	// Upsert registers an obligation, keyed by entity type and id.
	Upsert(ctx context.Context, req *UpsertRequest) (*ReminderState, error)

	// Sweep sends every reminder whose schedule has come due. A failed
	// send does not block the rest of the batch.
	Sweep(ctx context.Context) (*SweepResult, error)

	// ExpireOverdue marks obligations past their grace window EXPIRED.
	ExpireOverdue(ctx context.Context) (int, error)

	// Dismiss hides the obligation until its next scheduled stage.
	Dismiss(ctx context.Context, orgID, entityType, entityID string) (*ReminderState, error)

	// Decline marks the obligation refused. No further reminders.
	Decline(ctx context.Context, orgID, entityType, entityID string) (*ReminderState, error)

	// Resolve marks the obligation fulfilled. No further reminders.
	Resolve(ctx context.Context, orgID, entityType, entityID string) (*ReminderState, error)

	// Get returns the state for one entity.
	Get(ctx context.Context, orgID, entityType, entityID string) (*ReminderState, error)
}

// ToResponse converts a model to its external form.
func ToResponse(s *ReminderState) *Response {
	if s == nil {
		return nil
	}

	return &Response{
		ID:             s.ID.String(),
		OrganizationID: s.OrgID.String(),
		EntityType:     s.EntityType,
		EntityID:       s.EntityID.String(),
		Status:         s.Status,
		DueAt:          s.DueAt,
		NextRemindAt:   s.NextRemindAt,
		ReminderCount:  s.ReminderCount,
		LastRemindedAt: s.LastRemindedAt,
		DismissedUntil: s.DismissedUntil,
		Recipient:      s.Recipient,
	}
}
