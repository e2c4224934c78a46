// Package notify collects user-facing notifications pushed over the
// realtime channel.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/realtime"
)

const DefaultCapacity = 50

// Subscriber is the part of the channel manager the inbox needs.
type Subscriber interface {
	Subscribe(name realtime.EventName, h realtime.Handler) realtime.Unsubscribe
}

var watched = []realtime.EventName{
	realtime.EventNotification,
	realtime.EventTaskAssigned,
	realtime.EventUserAssignedToTeam,
	realtime.EventUserRemovedFromTeam,
	realtime.EventTeamCreated,
}

// Inbox keeps the latest notifications, newest first.
type Inbox struct {
	channel  Subscriber
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	items   []models.Notification
	unsubs  []realtime.Unsubscribe
	onEntry func(models.Notification)
}

type Option func(*Inbox)

// WithCapacity bounds how many notifications are kept.
func WithCapacity(n int) Option {
	return func(i *Inbox) {
		if n > 0 {
			i.capacity = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Inbox) {
		i.now = now
	}
}

// WithListener sets a callback run for every new entry.
func WithListener(fn func(models.Notification)) Option {
	return func(i *Inbox) {
		i.onEntry = fn
	}
}

func NewInbox(channel Subscriber, opts ...Option) *Inbox {
	i := &Inbox{
		channel:  channel,
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Activate subscribes to every notification-bearing event.
func (i *Inbox) Activate() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.unsubs != nil {
		return
	}
	i.unsubs = make([]realtime.Unsubscribe, 0, len(watched))
	for _, name := range watched {
		i.unsubs = append(i.unsubs, i.channel.Subscribe(name, i.Handle))
	}
}

// Deactivate removes every subscription made by Activate.
func (i *Inbox) Deactivate() {
	i.mu.Lock()
	unsubs := i.unsubs
	i.unsubs = nil
	i.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}

// Handle turns an event into an inbox entry. Events that carry nothing for
// the user are ignored.
func (i *Inbox) Handle(ev realtime.Event) {
	n, ok := i.toNotification(ev)
	if !ok {
		return
	}

	i.mu.Lock()
	i.items = append([]models.Notification{n}, i.items...)
	if len(i.items) > i.capacity {
		i.items = i.items[:i.capacity]
	}
	fn := i.onEntry
	i.mu.Unlock()

	if fn != nil {
		fn(n)
	}
}

func (i *Inbox) toNotification(ev realtime.Event) (models.Notification, bool) {
	n := models.Notification{ReceivedAt: i.now()}

	switch e := ev.(type) {
	case realtime.NotificationEvent:
		n.Kind = models.NotificationGeneral
		n.Message = e.Message
		if !e.CreatedAt.IsZero() {
			n.ReceivedAt = e.CreatedAt
		}
	case realtime.TaskAssignedEvent:
		n.Kind = models.NotificationTaskAssigned
		n.TaskID = e.Task.ID
		n.Message = fmt.Sprintf("You were assigned to %q", e.Task.Title)
	case realtime.UserAssignedToTeamEvent:
		n.Kind = models.NotificationAddedToTeam
		n.TeamID = e.TeamID
		n.Message = fmt.Sprintf("You were added to team %s", teamLabel(e.TeamName, e.TeamID))
	case realtime.UserRemovedFromTeamEvent:
		n.Kind = models.NotificationRemovedFromTeam
		n.TeamID = e.TeamID
		n.Message = fmt.Sprintf("You were removed from team %s", teamLabel(e.TeamName, e.TeamID))
	case realtime.TeamCreatedEvent:
		n.Kind = models.NotificationTeamCreated
		n.TeamID = e.TeamID
		n.Message = fmt.Sprintf("Team %s was created", teamLabel(e.TeamName, e.TeamID))
	default:
		return models.Notification{}, false
	}
	return n, true
}

func teamLabel(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

// Items returns the kept notifications, newest first.
func (i *Inbox) Items() []models.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]models.Notification(nil), i.items...)
}

func (i *Inbox) Unread() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	count := 0
	for _, n := range i.items {
		if !n.Read {
			count++
		}
	}
	return count
}

func (i *Inbox) MarkAllRead() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx := range i.items {
		i.items[idx].Read = true
	}
}

// Clear drops every entry, e.g. when the session ends.
func (i *Inbox) Clear() {
	i.mu.Lock()
	i.items = nil
	i.mu.Unlock()
}
