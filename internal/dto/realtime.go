package dto

import (
	"encoding/json"
	"time"
)

// Envelope is the realtime wire frame: `{ "event": name, "data": payload }`.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NotificationPayload is the data of a notification event.
type NotificationPayload struct {
	Message   string    `json:"message"`
	Type      string    `json:"type,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// TeamPayload is the data of the team membership events.
type TeamPayload struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// ForceDisconnectPayload is the data of a server-initiated disconnect.
type ForceDisconnectPayload struct {
	Reason string `json:"reason"`
}

// PollOpenResponse is returned when a long-poll session is opened.
type PollOpenResponse struct {
	SessionID string `json:"sid"`
}

// PollResponse carries the frames received since the last poll.
type PollResponse struct {
	Events []Envelope `json:"events"`
	Closed bool       `json:"closed,omitempty"`
	Reason string     `json:"reason,omitempty"`
}
