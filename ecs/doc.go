// Package ecs bridges trafficview scene notifications into a [Donburi]
// world.
//
// [NewDonburiStore] returns an EntityStore that republishes every scene
// notification on [NotificationEventType]. Clicks are also published on
// [ClickEventType] so systems that only care about picking can subscribe
// to the click payload directly.
//
// Usage:
//
//	store := ecs.NewDonburiStore(world)
//	scene.SetEntityStore(store)
//
// Events are queued by Donburi; call events.ProcessAllEvents(world) from
// your update loop to deliver them.
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs
