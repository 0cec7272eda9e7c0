package api

import (
	"time"

	"remindcal/internal/models"
)

type eventResponse struct {
	ID               string     `json:"id"`
	ExternalID       string     `json:"externalId,omitempty"`
	OwnerID          int64      `json:"ownerId"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Location         string     `json:"location,omitempty"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          time.Time  `json:"endTime"`
	ReminderTime     *time.Time `json:"reminderTime,omitempty"`
	RemindersEnabled bool       `json:"remindersEnabled"`
	ReminderSent     bool       `json:"reminderSent"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toResponse(e models.Event) eventResponse {
	return eventResponse{
		ID:               e.ID,
		ExternalID:       e.ExternalID,
		OwnerID:          e.OwnerID,
		Title:            e.Title,
		Description:      e.Description,
		Location:         e.Location,
		StartTime:        e.StartTime,
		EndTime:          e.EndTime,
		ReminderTime:     e.ReminderTime,
		RemindersEnabled: e.RemindersEnabled,
		ReminderSent:     e.ReminderSent,
		Version:          e.Version,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func toResponses(events []models.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toResponse(e))
	}
	return out
}

// eventRequest is the payload for creating or editing an event.
// RemindersEnabled defaults to true when omitted.
type eventRequest struct {
	ExternalID       string     `json:"externalId"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Location         string     `json:"location"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          time.Time  `json:"endTime"`
	ReminderTime     *time.Time `json:"reminderTime"`
	RemindersEnabled *bool      `json:"remindersEnabled"`
	Version          int64      `json:"version"`
}

func (r eventRequest) toEvent() models.Event {
	e := models.NewEvent(r.Title, r.StartTime, r.EndTime)
	e.ExternalID = r.ExternalID
	e.Description = r.Description
	e.Location = r.Location
	e.ReminderTime = r.ReminderTime
	if r.RemindersEnabled != nil {
		e.RemindersEnabled = *r.RemindersEnabled
	}
	e.Version = r.Version
	return e
}

type reconcileResponse struct {
	Outcome string        `json:"outcome"`
	Event   eventResponse `json:"event"`
}

type reminderRequest struct {
	At *time.Time `json:"at"`
}

type remindersEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}
