package models

import "time"

type NotificationKind string

const (
	NotificationGeneral         NotificationKind = "notification"
	NotificationTaskAssigned    NotificationKind = "taskAssigned"
	NotificationAddedToTeam     NotificationKind = "userAssignedToTeam"
	NotificationRemovedFromTeam NotificationKind = "userRemovedFromTeam"
	NotificationTeamCreated     NotificationKind = "teamCreated"
)

type Notification struct {
	Kind       NotificationKind `json:"kind"`
	Message    string           `json:"message"`
	TaskID     string           `json:"taskId,omitempty"`
	TeamID     string           `json:"teamId,omitempty"`
	ReceivedAt time.Time        `json:"receivedAt"`
	Read       bool             `json:"read"`
}
