package ecs

import (
	"github.com/phanxgames/trafficview"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// NotificationEventType carries every scene notification.
var NotificationEventType = events.NewEventType[trafficview.Event]()

// ClickEventType carries the payload of click notifications only.
var ClickEventType = events.NewEventType[trafficview.ClickResult]()

type donburiStore struct {
	world donburi.World
}

// NewDonburiStore creates an EntityStore backed by a Donburi world.
func NewDonburiStore(world donburi.World) trafficview.EntityStore {
	return &donburiStore{world: world}
}

func (s *donburiStore) EmitEvent(event trafficview.Event) {
	NotificationEventType.Publish(s.world, event)
	if event.Type == trafficview.EventClick && event.Click != nil {
		ClickEventType.Publish(s.world, *event.Click)
	}
}
