package ecs

import (
	"testing"

	"github.com/phanxgames/trafficview"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

var _ trafficview.EntityStore = (*donburiStore)(nil)

func TestDonburiStore_EmitEvent(t *testing.T) {
	world := donburi.NewWorld()
	store := NewDonburiStore(world)

	var received []trafficview.Event
	NotificationEventType.Subscribe(world, func(w donburi.World, e trafficview.Event) {
		received = append(received, e)
	})

	store.EmitEvent(trafficview.Event{Type: trafficview.EventFollow, ID: "veh_1"})
	store.EmitEvent(trafficview.Event{Type: trafficview.EventFeedStatus, Status: "connected"})

	// Events are queued until processed.
	if len(received) != 0 {
		t.Fatalf("received %d events before processing", len(received))
	}
	NotificationEventType.ProcessEvents(world)

	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
	if received[0].Type != trafficview.EventFollow || received[0].ID != "veh_1" {
		t.Errorf("event 0: %+v", received[0])
	}
	if received[1].Type != trafficview.EventFeedStatus || received[1].Status != "connected" {
		t.Errorf("event 1: %+v", received[1])
	}
}

func TestDonburiStore_Click(t *testing.T) {
	world := donburi.NewWorld()
	store := NewDonburiStore(world)

	var clicks []trafficview.ClickResult
	ClickEventType.Subscribe(world, func(w donburi.World, c trafficview.ClickResult) {
		clicks = append(clicks, c)
	})
	var all int
	NotificationEventType.Subscribe(world, func(w donburi.World, e trafficview.Event) {
		all++
	})

	store.EmitEvent(trafficview.Event{
		Type: trafficview.EventClick,
		Click: &trafficview.ClickResult{
			ScreenX: 100,
			ScreenY: 200,
			Button:  trafficview.MouseButtonLeft,
			Refs:    []trafficview.DomainRef{{Kind: trafficview.KindLane, ID: "E1_0", Parent: "E1"}},
		},
	})
	store.EmitEvent(trafficview.Event{Type: trafficview.EventUnfollow, ID: "veh_1"})
	events.ProcessAllEvents(world)

	if all != 2 {
		t.Errorf("notifications = %d, want 2", all)
	}
	if len(clicks) != 1 {
		t.Fatalf("clicks = %d, want 1", len(clicks))
	}
	if clicks[0].ScreenX != 100 || len(clicks[0].Refs) != 1 || clicks[0].Refs[0].ID != "E1_0" {
		t.Errorf("click payload = %+v", clicks[0])
	}
}

func TestDonburiStore_MultipleSubscribers(t *testing.T) {
	world := donburi.NewWorld()
	store := NewDonburiStore(world)

	var count1, count2 int
	NotificationEventType.Subscribe(world, func(w donburi.World, e trafficview.Event) {
		count1++
	})
	NotificationEventType.Subscribe(world, func(w donburi.World, e trafficview.Event) {
		count2++
	})

	store.EmitEvent(trafficview.Event{Type: trafficview.EventEntityRemoved, ID: "veh_9"})
	events.ProcessAllEvents(world)

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both subscribers called once, got %d and %d", count1, count2)
	}
}
