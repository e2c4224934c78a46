package services

import (
	"log"

	"github.com/yukikurage/task-management-client/internal/dto"
	"github.com/yukikurage/task-management-client/internal/realtime"
)

// Audience selects which connected users receive an event.
type Audience struct {
	UserIDs  []string
	Admins   bool
	Everyone bool
}

// Publisher pushes events to connected clients.
type Publisher interface {
	Publish(audience Audience, env dto.Envelope)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Audience, dto.Envelope) {}

func publish(p Publisher, audience Audience, ev realtime.Event) {
	env, err := realtime.Encode(ev)
	if err != nil {
		log.Printf("services: failed to encode %s: %v", ev.Name(), err)
		return
	}
	p.Publish(audience, env)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
