package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yukikurage/task-management-client/internal/dto"
	"github.com/yukikurage/task-management-client/internal/models"
)

type EventName string

const (
	EventNotification        EventName = "notification"
	EventTaskAssigned        EventName = "taskAssigned"
	EventTaskUpdated         EventName = "taskUpdated"
	EventTaskDeleted         EventName = "taskDeleted"
	EventUserAssignedToTeam  EventName = "userAssignedToTeam"
	EventUserRemovedFromTeam EventName = "userRemovedFromTeam"
	EventTeamCreated         EventName = "teamCreated"

	// EventForceDisconnect is a control frame: the server revoked the session.
	EventForceDisconnect EventName = "forceDisconnect"
)

var (
	ErrUnknownEvent   = errors.New("unknown realtime event")
	ErrMalformedEvent = errors.New("malformed realtime event")
)

// Event is one of the server-pushed event kinds below. The set is closed.
type Event interface {
	Name() EventName
	isEvent()
}

type NotificationEvent struct {
	Message   string
	Type      string
	CreatedAt time.Time
}

type TaskAssignedEvent struct {
	Task models.Task
}

type TaskUpdatedEvent struct {
	Task models.Task
}

type TaskDeletedEvent struct {
	TaskID string
}

type UserAssignedToTeamEvent struct {
	TeamID   string
	TeamName string
	UserID   string
}

type UserRemovedFromTeamEvent struct {
	TeamID   string
	TeamName string
	UserID   string
}

type TeamCreatedEvent struct {
	TeamID   string
	TeamName string
}

func (NotificationEvent) Name() EventName        { return EventNotification }
func (TaskAssignedEvent) Name() EventName        { return EventTaskAssigned }
func (TaskUpdatedEvent) Name() EventName         { return EventTaskUpdated }
func (TaskDeletedEvent) Name() EventName         { return EventTaskDeleted }
func (UserAssignedToTeamEvent) Name() EventName  { return EventUserAssignedToTeam }
func (UserRemovedFromTeamEvent) Name() EventName { return EventUserRemovedFromTeam }
func (TeamCreatedEvent) Name() EventName         { return EventTeamCreated }

func (NotificationEvent) isEvent()        {}
func (TaskAssignedEvent) isEvent()        {}
func (TaskUpdatedEvent) isEvent()         {}
func (TaskDeletedEvent) isEvent()         {}
func (UserAssignedToTeamEvent) isEvent()  {}
func (UserRemovedFromTeamEvent) isEvent() {}
func (TeamCreatedEvent) isEvent()         {}

// taskPayload accepts both `{ "task": {...} }` and a bare task object.
type taskPayload struct {
	Task *models.Task `json:"task"`
}

// Decode validates an envelope and turns it into a typed Event.
func Decode(env dto.Envelope) (Event, error) {
	switch EventName(env.Event) {
	case EventNotification:
		var p dto.NotificationPayload
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		if p.Message == "" {
			return nil, fmt.Errorf("%w: %s without message", ErrMalformedEvent, env.Event)
		}
		return NotificationEvent{Message: p.Message, Type: p.Type, CreatedAt: p.CreatedAt}, nil

	case EventTaskAssigned, EventTaskUpdated:
		task, err := decodeTask(env)
		if err != nil {
			return nil, err
		}
		if EventName(env.Event) == EventTaskAssigned {
			return TaskAssignedEvent{Task: task}, nil
		}
		return TaskUpdatedEvent{Task: task}, nil

	case EventTaskDeleted:
		var p dto.TaskDeletedPayload
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		if p.TaskID == "" {
			return nil, fmt.Errorf("%w: %s without taskId", ErrMalformedEvent, env.Event)
		}
		return TaskDeletedEvent{TaskID: p.TaskID}, nil

	case EventUserAssignedToTeam, EventUserRemovedFromTeam, EventTeamCreated:
		var p dto.TeamPayload
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		if p.TeamID == "" {
			return nil, fmt.Errorf("%w: %s without teamId", ErrMalformedEvent, env.Event)
		}
		switch EventName(env.Event) {
		case EventUserAssignedToTeam:
			return UserAssignedToTeamEvent{TeamID: p.TeamID, TeamName: p.TeamName, UserID: p.UserID}, nil
		case EventUserRemovedFromTeam:
			return UserRemovedFromTeamEvent{TeamID: p.TeamID, TeamName: p.TeamName, UserID: p.UserID}, nil
		default:
			return TeamCreatedEvent{TeamID: p.TeamID, TeamName: p.TeamName}, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// Encode builds the wire envelope for an event.
func Encode(ev Event) (dto.Envelope, error) {
	var payload interface{}
	switch e := ev.(type) {
	case NotificationEvent:
		payload = dto.NotificationPayload{Message: e.Message, Type: e.Type, CreatedAt: e.CreatedAt}
	case TaskAssignedEvent:
		payload = taskPayload{Task: &e.Task}
	case TaskUpdatedEvent:
		payload = taskPayload{Task: &e.Task}
	case TaskDeletedEvent:
		payload = dto.TaskDeletedPayload{TaskID: e.TaskID}
	case UserAssignedToTeamEvent:
		payload = dto.TeamPayload{TeamID: e.TeamID, TeamName: e.TeamName, UserID: e.UserID}
	case UserRemovedFromTeamEvent:
		payload = dto.TeamPayload{TeamID: e.TeamID, TeamName: e.TeamName, UserID: e.UserID}
	case TeamCreatedEvent:
		payload = dto.TeamPayload{TeamID: e.TeamID, TeamName: e.TeamName}
	default:
		return dto.Envelope{}, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return NewEnvelope(ev.Name(), payload)
}

// NewEnvelope marshals payload under the given event name.
func NewEnvelope(name EventName, payload interface{}) (dto.Envelope, error) {
	env := dto.Envelope{Event: string(name)}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return dto.Envelope{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	env.Data = raw
	return env, nil
}

func decodeTask(env dto.Envelope) (models.Task, error) {
	var wrapped taskPayload
	if err := unmarshal(env, &wrapped); err != nil {
		return models.Task{}, err
	}
	var task models.Task
	if wrapped.Task != nil {
		task = *wrapped.Task
	} else if err := unmarshal(env, &task); err != nil {
		return models.Task{}, err
	}
	if err := task.Validate(); err != nil {
		return models.Task{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}
	return task, nil
}

func unmarshal(env dto.Envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformedEvent, env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}
	return nil
}
